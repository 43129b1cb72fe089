// Package components provides reusable TUI components.
package components

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// TradeRow represents one finished execution attempt in the list.
type TradeRow struct {
	Timestamp string
	Pair      string
	Route     string
	SizeUSD   float64
	ProfitUSD float64
	Status    string
	Succeeded bool
	DryRun    bool
}

// TradesComponent renders the execution attempt history.
type TradesComponent struct {
	rows    []TradeRow
	offset  int
	maxRows int
	visible int
}

// NewTradesComponent creates a new trades component.
func NewTradesComponent(maxRows int) *TradesComponent {
	return &TradesComponent{
		rows:    make([]TradeRow, 0),
		maxRows: maxRows,
		visible: 10,
	}
}

// Add prepends a new trade to the list.
func (t *TradesComponent) Add(row TradeRow) {
	t.rows = append([]TradeRow{row}, t.rows...)
	if len(t.rows) > t.maxRows {
		t.rows = t.rows[:t.maxRows]
	}
}

// Set replaces the displayed trades, newest first.
func (t *TradesComponent) Set(rows []TradeRow) {
	if len(rows) > t.maxRows {
		rows = rows[:t.maxRows]
	}
	t.rows = rows
	if t.offset > len(t.rows)-1 {
		t.offset = 0
	}
}

// Clear clears all trades.
func (t *TradesComponent) Clear() {
	t.rows = make([]TradeRow, 0)
	t.offset = 0
}

// ScrollUp moves the window toward newer trades.
func (t *TradesComponent) ScrollUp() {
	if t.offset > 0 {
		t.offset--
	}
}

// ScrollDown moves the window toward older trades.
func (t *TradesComponent) ScrollDown() {
	if t.offset < len(t.rows)-t.visible {
		t.offset++
	}
}

// View renders the trades component.
func (t *TradesComponent) View() string {
	if len(t.rows) == 0 {
		return "No execution attempts yet..."
	}

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	failStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	dryStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))

	result := headerStyle.Render(fmt.Sprintf("TRADES (last %d)\n", t.maxRows))
	result += "┌─────────┬─────────────┬──────────────────────────┬─────────┬─────────┬──────────────┐\n"
	result += "│  Time   │    Pair     │          Route           │  Size   │ Profit  │    Status    │\n"
	result += "├─────────┼─────────────┼──────────────────────────┼─────────┼─────────┼──────────────┤\n"

	end := t.offset + t.visible
	if end > len(t.rows) {
		end = len(t.rows)
	}
	for _, row := range t.rows[t.offset:end] {
		statusStyle := failStyle
		statusIcon := "✗"
		switch {
		case row.DryRun:
			statusStyle = dryStyle
			statusIcon = "•"
		case row.Succeeded:
			statusStyle = okStyle
			statusIcon = "✓"
		}

		result += fmt.Sprintf("│%8s │%12s │%25s │%8s │%8s │ %s %-10s│\n",
			row.Timestamp,
			truncate(row.Pair, 12),
			truncate(row.Route, 25),
			fmt.Sprintf("$%.0f", row.SizeUSD),
			fmt.Sprintf("$%.2f", row.ProfitUSD),
			statusIcon,
			statusStyle.Render(truncate(row.Status, 10)),
		)
	}

	result += "└─────────┴─────────────┴──────────────────────────┴─────────┴─────────┴──────────────┘"

	return result
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
