package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/wrenlabs/go-wren/pkg/arbiter"
)

// Console styles shared by every command that prints to a human.
var (
	labelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff9f"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6e7681"))
	alertStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ff5f5f"))
)

// renderLeases formats one line per hardware resource: who holds it, at
// what priority, for how long, and how close the heartbeat is to the
// staleness cutoff.
func renderLeases(arb *arbiter.Arbiter) (string, error) {
	staleness := arb.Config().Staleness

	var b strings.Builder
	b.WriteString(labelStyle.Render(fmt.Sprintf("%-14s %-24s %-7s %-9s %-8s %s",
		"RESOURCE", "HOLDER", "PID", "PRIORITY", "AGE", "STALE IN")))
	b.WriteByte('\n')

	for _, res := range arbiter.Resources() {
		info, held, err := arb.Snapshot(res)
		if err != nil {
			return "", fmt.Errorf("snapshot %s: %w", res, err)
		}
		if !held {
			b.WriteString(dimStyle.Render(fmt.Sprintf("%-14s free", res)))
			b.WriteByte('\n')
			continue
		}

		age := time.Since(info.Acquired).Round(time.Second)
		staleIn := staleness - time.Since(info.Heartbeat)
		stale := staleIn.Round(time.Second).String()
		if staleIn <= 0 {
			stale = "overdue"
		}

		line := fmt.Sprintf("%-14s %-24s %-7d %-9s %-8s %s",
			res, info.ID, info.PID, info.Priority, age, stale)
		if info.Revoked {
			b.WriteString(alertStyle.Render(line + "  (revoked)"))
		} else {
			b.WriteString(line)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
