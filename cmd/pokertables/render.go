package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/lox/pokertables/internal/game"
	"github.com/lox/pokertables/internal/server"
	"github.com/lox/pokertables/poker"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	phaseStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("14"))

	redCardStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("9"))

	blackCardStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	turnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	winStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("10"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))
)

func formatCard(c poker.Card) string {
	if c.Suit == poker.Hearts || c.Suit == poker.Diamonds {
		return redCardStyle.Render(c.String())
	}
	return blackCardStyle.Render(c.String())
}

func formatCards(cards []poker.Card) string {
	if len(cards) == 0 {
		return dimStyle.Render("--")
	}
	parts := make([]string, len(cards))
	for i, c := range cards {
		parts[i] = formatCard(c)
	}
	return strings.Join(parts, " ")
}

// formatSnapshot renders a snapshot as a short block: a header line,
// one line per seat, and the result when there is one.
func formatSnapshot(s server.Snapshot) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s  board %s  pot %d  bet %d\n",
		headerStyle.Render("table "+s.TableID),
		phaseStyle.Render(s.Phase.String()),
		formatCards(s.Community),
		s.Pot,
		s.CurrentBet)

	for _, p := range s.Players {
		marker := "  "
		if s.CurrentPlayer != nil && *s.CurrentPlayer == p.UserID {
			marker = turnStyle.Render("> ")
		}
		line := fmt.Sprintf("%sseat %d  %-12s stack %-5d in %-4d",
			marker, p.Seat, p.Username, s.Stacks[p.UserID], s.Contributions[p.UserID])
		if p.Seat == s.Dealer && s.Phase != game.PhaseWaiting {
			line += " (D)"
		}
		if cards, ok := s.HoleCards[p.UserID]; ok {
			line += "  " + formatCards(cards)
		}
		if rank, ok := s.HandRanks[p.UserID]; ok {
			line += "  " + dimStyle.Render(rank)
		}
		if p.Away {
			line += "  " + dimStyle.Render("away")
		}
		b.WriteString(line + "\n")
	}

	if len(s.SplitPots) > 0 {
		ids := make([]string, 0, len(s.SplitPots))
		for id := range s.SplitPots {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		parts := make([]string, len(ids))
		for i, id := range ids {
			name := s.Usernames[id]
			if name == "" {
				name = id
			}
			parts[i] = fmt.Sprintf("%s +%d", name, s.SplitPots[id])
		}
		fmt.Fprintf(&b, "%s %s (%s)\n", winStyle.Render("won:"), strings.Join(parts, ", "), s.ResultReason)
	}
	return b.String()
}

func formatNotice(n server.Notice) string {
	return dimStyle.Render(fmt.Sprintf("[%s] %s", n.Type, n.Reason))
}
