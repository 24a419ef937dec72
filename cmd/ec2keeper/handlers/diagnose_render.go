package handlers

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/imamik/ec2keeper/internal/diagnostics"
)

var (
	colorGreen  = lipgloss.Color("#22c55e")
	colorYellow = lipgloss.Color("#eab308")
	colorRed    = lipgloss.Color("#ef4444")
	colorBlue   = lipgloss.Color("#3b82f6")
	colorDim    = lipgloss.Color("#6b7280")
	colorWhite  = lipgloss.Color("#f9fafb")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorWhite)

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorBlue)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	checkStyle = lipgloss.NewStyle().
			Width(16)
)

var severityStyles = map[diagnostics.Severity]lipgloss.Style{
	diagnostics.SeverityOK:      lipgloss.NewStyle().Foreground(colorGreen),
	diagnostics.SeverityInfo:    lipgloss.NewStyle().Foreground(colorDim),
	diagnostics.SeverityWarning: lipgloss.NewStyle().Foreground(colorYellow),
	diagnostics.SeverityFailure: lipgloss.NewStyle().Foreground(colorRed),
}

var severitySymbols = map[diagnostics.Severity]string{
	diagnostics.SeverityOK:      "✓",
	diagnostics.SeverityInfo:    "·",
	diagnostics.SeverityWarning: "!",
	diagnostics.SeverityFailure: "✗",
}

// renderReport produces a lipgloss-styled diagnostics report.
func renderReport(r diagnostics.Report) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(titleStyle.Render(fmt.Sprintf("  ec2keeper diagnose: %s", r.InstanceID)))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("  " + strings.Repeat("═", 30)))
	b.WriteString("\n\n")

	for _, f := range r.Findings {
		style := severityStyles[f.Severity]
		b.WriteString("  ")
		b.WriteString(style.Render(severitySymbols[f.Severity]))
		b.WriteString("  ")
		b.WriteString(checkStyle.Render(f.Check))
		b.WriteString(" ")
		b.WriteString(f.Message)
		b.WriteString("\n")
	}

	if len(r.Remediation) > 0 {
		b.WriteString("\n")
		b.WriteString(sectionStyle.Render("  Remediation"))
		b.WriteString("\n")
		for _, step := range r.Remediation {
			b.WriteString(fmt.Sprintf("  - %s\n", step))
		}
	}

	b.WriteString("\n")
	if r.Success {
		b.WriteString(severityStyles[diagnostics.SeverityOK].Render("  Instance is reachable over SSH"))
	} else {
		b.WriteString(severityStyles[diagnostics.SeverityFailure].Render("  Instance is not reachable over SSH"))
	}
	b.WriteString("\n")
	return b.String()
}
