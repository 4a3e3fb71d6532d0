package shared

import "github.com/charmbracelet/lipgloss"

// CLI style colors.
var (
	StatusOK    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))  // green
	StatusWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")) // orange
	StatusError = lipgloss.NewStyle().Foreground(lipgloss.Color("196")) // red
	StatusInfo  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))  // blue
	Muted       = lipgloss.NewStyle().Foreground(lipgloss.Color("245")) // gray
	Bold        = lipgloss.NewStyle().Bold(true)
	Header      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
)

// Status symbols.
const (
	SymbolOK    = "✓"
	SymbolWarn  = "⚠"
	SymbolError = "✗"
)

// RenderOK renders a success line with a green checkmark.
func RenderOK(msg string) string { return StatusOK.Render(SymbolOK) + " " + msg }

// RenderWarn renders a warning line with an orange symbol.
func RenderWarn(msg string) string { return StatusWarn.Render(SymbolWarn) + " " + msg }

// RenderError renders an error line with a red X.
func RenderError(msg string) string { return StatusError.Render(SymbolError) + " " + msg }

// RenderLabel renders a dim label, for "label: value" lines.
func RenderLabel(label string) string { return Muted.Render(label) }
