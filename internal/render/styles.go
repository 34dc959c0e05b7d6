package render

import "github.com/charmbracelet/lipgloss"

type tag int

const (
	tagProgress tag = iota
	tagSuccess
	tagFailed
	tagWarning
	tagSkipped
	tagInfo
)

var tagText = map[tag]string{
	tagProgress: "[PROGRESS]",
	tagSuccess:  "[SUCCESS]",
	tagFailed:   "[FAILED]",
	tagWarning:  "[WARNING]",
	tagSkipped:  "[SKIPPED]",
	tagInfo:     "[INFO]",
}

type styles struct {
	tags map[tag]lipgloss.Style

	dim    lipgloss.Style
	red    lipgloss.Style
	green  lipgloss.Style
	yellow lipgloss.Style
	bold   lipgloss.Style

	errorBox lipgloss.Style
	infoBox  lipgloss.Style
	cell     lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	red := lipgloss.Color("9")
	green := lipgloss.Color("10")
	yellow := lipgloss.Color("11")
	blue := lipgloss.Color("12")
	gray := lipgloss.Color("8")

	return styles{
		tags: map[tag]lipgloss.Style{
			tagProgress: r.NewStyle().Foreground(blue),
			tagSuccess:  r.NewStyle().Foreground(green).Bold(true),
			tagFailed:   r.NewStyle().Foreground(red).Bold(true),
			tagWarning:  r.NewStyle().Foreground(yellow).Bold(true),
			tagSkipped:  r.NewStyle().Foreground(gray),
			tagInfo:     r.NewStyle().Foreground(blue),
		},
		dim:    r.NewStyle().Foreground(gray),
		red:    r.NewStyle().Foreground(red),
		green:  r.NewStyle().Foreground(green),
		yellow: r.NewStyle().Foreground(yellow),
		bold:   r.NewStyle().Bold(true),
		errorBox: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(red).
			Padding(0, 1),
		infoBox: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(blue).
			Padding(0, 1),
		cell: r.NewStyle().Padding(0, 1),
	}
}

func (s styles) tag(t tag) string {
	return s.tags[t].Render(tagText[t])
}
