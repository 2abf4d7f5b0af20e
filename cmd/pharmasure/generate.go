package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"pharmasure/pkg/domain"
	"pharmasure/pkg/generation"
	"pharmasure/pkg/upload"
)

var generateOpts struct {
	name    string
	role    string
	company string
	prompt  string
	file    string
	out     string
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate one dashboard and write its HTML",
	Example: `  pharmasure generate --role pharmacist --company "City Meds" --file strip.jpg --out report.html
  pharmasure generate --role patient --prompt "Is Amoxicillin 500mg safe with ibuprofen?"`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		role := domain.Role(strings.ToLower(generateOpts.role))
		if !role.Valid() {
			return fmt.Errorf("unknown role %q", generateOpts.role)
		}
		user := domain.UserProfile{Name: generateOpts.name, Role: role, CompanyName: generateOpts.company}

		req := generation.Request{Prompt: generateOpts.prompt, User: user}
		if generateOpts.file != "" {
			data, err := os.ReadFile(generateOpts.file)
			if err != nil {
				return err
			}
			f, err := upload.New(filepath.Base(generateOpts.file), "", data)
			if err != nil {
				return err
			}
			req.File, req.MIMEType = f.Data, f.MIMEType
		}

		model, err := newContentGenerator(ctx, cfg)
		if err != nil {
			return err
		}
		res, err := generation.NewClient(model, cfg.GenerationTemperature).Generate(ctx, req)
		if err != nil {
			return fmt.Errorf("generate: %w", err)
		}

		for _, src := range res.Sources {
			fmt.Fprintf(cmd.ErrOrStderr(), "source: %s <%s>\n", src.Title, src.URI)
		}
		if generateOpts.out == "" || generateOpts.out == "-" {
			_, err = fmt.Fprint(cmd.OutOrStdout(), res.HTML)
			return err
		}
		return os.WriteFile(generateOpts.out, []byte(res.HTML), 0o644)
	},
}

func init() {
	f := generateCmd.Flags()
	f.StringVar(&generateOpts.name, "name", "Demo User", "name shown on the dashboard")
	f.StringVar(&generateOpts.role, "role", string(domain.RolePatient), "manufacturer, pharmacist or patient")
	f.StringVar(&generateOpts.company, "company", "", "organization shown on the dashboard")
	f.StringVar(&generateOpts.prompt, "prompt", "", "free text request")
	f.StringVar(&generateOpts.file, "file", "", "image, PDF or video to analyze")
	f.StringVarP(&generateOpts.out, "out", "o", "", "output file, stdout when empty")
}
