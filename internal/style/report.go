package style

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Row is one label/value line of a Section.
type Row struct {
	Label string
	Value string
	// Style overrides ValueStyle when set.
	Style *lipgloss.Style
}

// KV builds a plain row.
func KV(label, value string) Row { return Row{Label: label, Value: value} }

// Styled builds a row rendered with s.
func Styled(label, value string, s lipgloss.Style) Row {
	return Row{Label: label, Value: value, Style: &s}
}

// Section renders a titled panel with aligned labels.
func Section(title string, rows ...Row) string {
	width := 0
	for _, r := range rows {
		if w := lipgloss.Width(r.Label); w > width {
			width = w
		}
	}

	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		vs := ValueStyle
		if r.Style != nil {
			vs = *r.Style
		}
		label := LabelStyle.Width(width + 2).Render(r.Label + ":")
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, label, vs.Render(r.Value)))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		TitleStyle.Render(title),
		PanelStyle.Render(strings.Join(lines, "\n")))
}

// Report joins sections with a blank line.
func Report(sections ...string) string {
	return strings.Join(sections, "\n") + "\n"
}
