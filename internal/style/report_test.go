package style

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
)

func TestSectionRendersEveryRow(t *testing.T) {
	out := Section("Curve",
		KV("Token", "0xabc"),
		Styled("Status", "active", StatusStyle("active")),
		KV("Current price", "0.01"),
	)

	assert.Contains(t, out, "Curve")
	for _, want := range []string{"Token:", "0xabc", "Status:", "active", "Current price:", "0.01"} {
		assert.Contains(t, out, want)
	}

	// Labels are padded to the widest one, so values line up.
	var cols []int
	for _, line := range strings.Split(out, "\n") {
		for _, v := range []string{"0xabc", "active", "0.01"} {
			if i := strings.Index(line, v); i >= 0 && strings.Contains(line, ":") {
				cols = append(cols, lipgloss.Width(line[:i]))
			}
		}
	}
	if assert.Len(t, cols, 3) {
		assert.Equal(t, cols[0], cols[1])
		assert.Equal(t, cols[1], cols[2])
	}
}

func TestReportEndsWithNewline(t *testing.T) {
	out := Report(Section("A", KV("x", "1")), Section("B", KV("y", "2")))
	assert.True(t, strings.HasSuffix(out, "\n"))
	assert.Less(t, strings.Index(out, "A"), strings.Index(out, "B"))
}
