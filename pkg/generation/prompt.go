package generation

import (
	"embed"
	"fmt"
	"strings"

	"pharmasure/pkg/domain"
)

//go:embed templates/*.txt
var templateFS embed.FS

var (
	baseTemplate  = mustTemplate("base")
	roleTemplates = map[domain.Role]string{
		domain.RoleManufacturer: mustTemplate("manufacturer"),
		domain.RolePharmacist:   mustTemplate("pharmacist"),
		domain.RolePatient:      mustTemplate("patient"),
	}
)

func mustTemplate(name string) string {
	data, err := templateFS.ReadFile("templates/" + name + ".txt")
	if err != nil {
		panic(fmt.Sprintf("generation: missing template %s: %v", name, err))
	}
	return string(data)
}

// SystemInstruction assembles base, role and personalization blocks.
// Profile values are embedded verbatim, with no escaping.
func SystemInstruction(user domain.UserProfile) string {
	var b strings.Builder
	b.WriteString(baseTemplate)
	b.WriteString("\n")
	b.WriteString(roleTemplates[user.Role])
	b.WriteString("\n")
	b.WriteString(personalization(user))
	return b.String()
}

func personalization(user domain.UserProfile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\nCURRENT USER SESSION:\nName: %s\nRole: %s", user.Name, strings.ToUpper(string(user.Role)))
	if user.CompanyName != "" {
		fmt.Fprintf(&b, "\nOrganization: %s", user.CompanyName)
	}
	if user.LicenseID != "" {
		fmt.Fprintf(&b, "\nLicense ID: %s", user.LicenseID)
	}
	if user.FactoryID != "" {
		fmt.Fprintf(&b, "\nFactory ID: %s", user.FactoryID)
	}
	owner := user.CompanyName
	if owner == "" {
		owner = user.Name
	}
	fmt.Fprintf(&b, "\n\nINSTRUCTION: Personalize the dashboard header and reports to show they belong to \"%s\".", owner)
	return b.String()
}

// UserPrompt picks the text part sent with the request.
func UserPrompt(prompt string, user domain.UserProfile, hasFile bool) string {
	if strings.TrimSpace(prompt) != "" {
		return prompt
	}
	if hasFile {
		return fmt.Sprintf("Analyze this input acting as %s (%s). Search for details about any visible text/medicines and generate the dashboard with ANALYTICS and REMINDERS.", user.Name, user.Role)
	}
	return fmt.Sprintf("Generate a demo Pharma-Sure dashboard for %s (%s) handling 'Amoxicillin 500mg' (Search for real specs and news). Include Dosage Reminders and Safety Analytics.", user.Name, user.Role)
}
