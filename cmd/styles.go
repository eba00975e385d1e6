package cmd

import (
	"github.com/CosmoTheDev/assessmaker/internal/render"
	"github.com/CosmoTheDev/assessmaker/models"
	"github.com/charmbracelet/lipgloss"
)

var (
	slate = lipgloss.Color("#94A3B8")
	green = lipgloss.Color("#22C55E")
	amber = lipgloss.Color("#F59E0B")
	ink   = lipgloss.Color("#E5E7EB")

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(ink)
	dimStyle    = lipgloss.NewStyle().Foreground(slate)
	okStyle     = lipgloss.NewStyle().Foreground(green)
	warnStyle   = lipgloss.NewStyle().Bold(true).Foreground(amber)
)

// severityStyle shades a severity badge with the same colors the exported
// documents use.
func severityStyle(s models.SeverityLevel) lipgloss.Style {
	bg := render.SeverityColor(s)
	fg := render.TextColor(s)
	return lipgloss.NewStyle().
		Bold(true).
		Background(lipgloss.Color("#" + bg.Hex())).
		Foreground(lipgloss.Color("#" + fg.Hex())).
		Padding(0, 1)
}

func statusStyle(status models.FindingStatus) lipgloss.Style {
	if status == models.StatusClosed {
		return okStyle
	}
	return warnStyle
}
