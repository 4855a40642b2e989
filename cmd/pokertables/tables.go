package main

import (
	"bytes"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/lox/pokertables/internal/config"
)

// TablesCmd prints the stake tiers a config file defines.
type TablesCmd struct {
	Config string `short:"c" default:"tables.hcl" help:"Path to HCL configuration file"`
}

func (c *TablesCmd) Run() error {
	cfg, err := loadConfig(c.Config)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	fmt.Print(formatTiers(cfg.Tiers))
	return nil
}

// formatTiers lays the tiers out as plain text first and styles whole lines
// afterwards, since tabwriter counts escape sequences as cell width.
func formatTiers(tiers []config.TierConfig) string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "level\tblinds\tbuy-in\tseats\tdecision\ttables")
	for _, t := range tiers {
		fmt.Fprintf(w, "%s\t%d/%d\t%d-%d\t%d-%d\t%s\t%d\n",
			t.Level,
			t.SmallBlind, t.BigBlind,
			t.MinBuyIn, t.MaxBuyIn,
			t.MinPlayers, t.MaxSeats,
			t.DecisionTime,
			t.Tables)
	}
	_ = w.Flush()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	var b strings.Builder
	for i, line := range lines {
		if i == 0 {
			b.WriteString(headerStyle.Render(line))
		} else {
			b.WriteString(line)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
