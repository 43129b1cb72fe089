// Package components provides reusable TUI components.
package components

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Stats holds pipeline counters for display.
type Stats struct {
	Cycles    uint64
	Found     uint64
	Verified  uint64
	Published uint64

	PendingDecoded uint64
	Simulated      uint64
	SignalsSent    uint64

	Attempts  uint64
	DryRuns   uint64
	Confirmed uint64
	Reverted  uint64
	Timeouts  uint64

	HaltedPairs int
}

// StatsComponent renders pipeline statistics.
type StatsComponent struct {
	stats Stats
}

// NewStatsComponent creates a new stats component.
func NewStatsComponent() *StatsComponent {
	return &StatsComponent{}
}

// Update updates the statistics.
func (s *StatsComponent) Update(stats Stats) {
	s.stats = stats
}

// View renders the stats component.
func (s *StatsComponent) View() string {
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Bold(true)
	warnStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)

	v := func(n uint64) string { return valueStyle.Render(fmt.Sprintf("%d", n)) }

	halted := valueStyle.Render(fmt.Sprintf("%d", s.stats.HaltedPairs))
	if s.stats.HaltedPairs > 0 {
		halted = warnStyle.Render(fmt.Sprintf("%d", s.stats.HaltedPairs))
	}

	return labelStyle.Render("PIPELINE") + "\n" +
		fmt.Sprintf("Detection  cycles: %s  found: %s  verified: %s  published: %s\n",
			v(s.stats.Cycles), v(s.stats.Found), v(s.stats.Verified), v(s.stats.Published)) +
		fmt.Sprintf("Mempool    decoded: %s  simulated: %s  signals: %s\n",
			v(s.stats.PendingDecoded), v(s.stats.Simulated), v(s.stats.SignalsSent)) +
		fmt.Sprintf("Execution  attempts: %s  dry runs: %s  confirmed: %s  reverted: %s  timeouts: %s  halted pairs: %s",
			v(s.stats.Attempts), v(s.stats.DryRuns), v(s.stats.Confirmed),
			v(s.stats.Reverted), v(s.stats.Timeouts), halted)
}
