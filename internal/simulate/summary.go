package simulate

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorPrimary = lipgloss.Color("#7D56F4")
	colorOK      = lipgloss.Color("#04B575")
	colorFail    = lipgloss.Color("#FF5F87")
	colorMuted   = lipgloss.Color("#626262")

	titleStyle = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Bold(true)

	passStyle = lipgloss.NewStyle().Foreground(colorOK).Bold(true)
	failStyle = lipgloss.NewStyle().Foreground(colorFail).Bold(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorPrimary).
			Padding(0, 1)
)

// Render formats a result for the terminal.
func Render(r *Result) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("roadwatch simulation: "+r.Scenario) + "\n")
	fmt.Fprintf(&b, "%d updates in %s\n\n", r.Sent, r.Elapsed.Round(time.Millisecond))

	b.WriteString(headerStyle.Render(fmt.Sprintf("%-12s %-4s %6s %6s %6s %6s", "ACTOR", "ROLE", "SENT", "ALERTS", "INTER", "ERRORS")) + "\n")
	for _, a := range r.Actors {
		fmt.Fprintf(&b, "%-12s %-4s %6d %6d %6d %6d\n",
			a.ID, a.Role, a.Sent, len(a.Alerts), a.Intersections, len(a.Errors))
	}

	b.WriteString("\n")
	if r.Passed() {
		b.WriteString(passStyle.Render("PASS") + " every expected alert arrived")
	} else {
		b.WriteString(failStyle.Render("FAIL") + " missing alerts:")
		for _, e := range r.Missing {
			b.WriteString("\n  " + e.String())
		}
	}
	return boxStyle.Render(b.String())
}
