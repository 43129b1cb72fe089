// Package components provides reusable TUI components.
package components

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	poolsdomain "github.com/fd1az/dexarb/business/pools/domain"
)

// PoolsComponent renders the synced pool prices, grouped by pair.
type PoolsComponent struct {
	views map[string][]poolsdomain.PoolView
}

// NewPoolsComponent creates a new pools component.
func NewPoolsComponent() *PoolsComponent {
	return &PoolsComponent{}
}

// Update replaces the displayed pool views.
func (p *PoolsComponent) Update(views map[string][]poolsdomain.PoolView) {
	p.views = views
}

// View renders the pools component.
func (p *PoolsComponent) View() string {
	if len(p.views) == 0 {
		return "Waiting for pool sync..."
	}

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	pairStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))

	pairs := make([]string, 0, len(p.views))
	for pair := range p.views {
		pairs = append(pairs, pair)
	}
	sort.Strings(pairs)

	var sb strings.Builder
	sb.WriteString(headerStyle.Render("POOLS"))
	sb.WriteString("\n\n")

	for _, pair := range pairs {
		sb.WriteString(pairStyle.Render("  " + pair))
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("  %-18s  %16s  %8s\n", "Venue", "Price", "Fee"))
		sb.WriteString(dimStyle.Render("  "+strings.Repeat("─", 46)) + "\n")

		views := p.views[pair]
		sorted := make([]poolsdomain.PoolView, len(views))
		copy(sorted, views)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].Venue < sorted[j].Venue
		})

		for _, v := range sorted {
			sb.WriteString(fmt.Sprintf("  %-18s  %16s  %7.2f%%\n",
				v.Venue.String(),
				formatPrice(v.Price, v.QuoteToken0),
				v.FeePercent,
			))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// formatPrice shows the base token priced in the quote currency regardless
// of on-chain token ordering.
func formatPrice(price float64, quoteToken0 bool) string {
	if quoteToken0 && price != 0 {
		price = 1 / price
	}
	if price == 0 {
		return "-"
	}
	if price >= 100 {
		return fmt.Sprintf("%.2f", price)
	}
	return fmt.Sprintf("%.6f", price)
}
