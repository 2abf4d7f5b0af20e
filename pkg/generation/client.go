package generation

import (
	"context"
	"errors"
	"log/slog"

	"pharmasure/pkg/ai"
	"pharmasure/pkg/domain"
)

const DefaultTemperature float32 = 0.4

// ErrMissingMIMEType is returned when file bytes arrive without a mime type.
var ErrMissingMIMEType = errors.New("file provided without mime type")

// Request is one dashboard generation.
type Request struct {
	Prompt   string
	User     domain.UserProfile
	File     []byte
	MIMEType string
}

// Result is the cleaned markup and its citations.
type Result struct {
	HTML          string
	Sources       []domain.Source
	DocumentTitle string
}

// Client turns role-conditioned requests into dashboards.
type Client struct {
	gen         ai.ContentGenerator
	temperature float32
}

// NewClient wraps a content generator. A zero temperature selects DefaultTemperature.
func NewClient(gen ai.ContentGenerator, temperature float32) *Client {
	if temperature <= 0 {
		temperature = DefaultTemperature
	}
	return &Client{gen: gen, temperature: temperature}
}

// Generate performs exactly one call to the generator. Transport errors are returned as is.
func (c *Client) Generate(ctx context.Context, req Request) (Result, error) {
	hasFile := len(req.File) > 0
	if hasFile && req.MIMEType == "" {
		return Result{}, ErrMissingMIMEType
	}

	parts := []ai.Part{{Text: UserPrompt(req.Prompt, req.User, hasFile)}}
	if hasFile {
		parts = append(parts, ai.Part{InlineData: &ai.Blob{MIMEType: req.MIMEType, Data: req.File}})
	}

	resp, err := c.gen.GenerateContent(ctx, ai.ContentRequest{
		SystemInstruction: SystemInstruction(req.User),
		Parts:             parts,
		Temperature:       c.temperature,
		GoogleSearch:      true,
	})
	if err != nil {
		slog.ErrorContext(ctx, "generation error", "role", req.User.Role, "err", err)
		return Result{}, err
	}

	text := resp.Text
	if text == "" {
		text = emptyResponseHTML
	}
	markup := StripFences(text)
	return Result{
		HTML:          markup,
		Sources:       Sources(resp.GroundingChunks),
		DocumentTitle: DocumentTitle(markup),
	}, nil
}
