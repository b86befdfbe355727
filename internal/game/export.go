package game

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// exportRound appends a readable summary of a judged round to filename.
func exportRound(filename string, r *Room, res RoundResult, now time.Time) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(formatRound(r, res, now)); err != nil {
		return fmt.Errorf("failed to write to file: %w", err)
	}
	return nil
}

func formatRound(r *Room, res RoundResult, now time.Time) string {
	var sb strings.Builder

	if res.Round == 1 {
		fmt.Fprintf(&sb, "Real Time Royale - %s\n", r.ID)
		fmt.Fprintf(&sb, "Started: %s\n", now.Format("2006-01-02 15:04:05"))
		sb.WriteString(strings.Repeat("=", 50) + "\n")
		fmt.Fprintf(&sb, "Host: %s\nPlayers: %s\n\n", r.Host, strings.Join(r.Players, ", "))
	}

	fmt.Fprintf(&sb, "%s round of %d (%s): %s\n", humanize.Ordinal(res.Round), r.MaxRounds, res.Mode, res.Challenge)
	sb.WriteString(strings.Repeat("-", 40) + "\n")
	fmt.Fprintf(&sb, "Actual: %s\n", displayValue(res.HiddenAnswer))
	for i, rk := range res.Rankings {
		fmt.Fprintf(&sb, "%s. %s: %q (+%d)", humanize.Ordinal(i+1), rk.Player, rk.Answer, rk.Points)
		if rk.Reason != "" {
			fmt.Fprintf(&sb, " - %s", rk.Reason)
		}
		sb.WriteString("\n")
	}
	if res.AIReasoning != "" {
		fmt.Fprintf(&sb, "Judge: %s\n", res.AIReasoning)
	}

	type playerScore struct {
		name  string
		score int
	}
	scores := make([]playerScore, 0, len(r.Players))
	for _, p := range r.Players {
		scores = append(scores, playerScore{p, r.Scores[p]})
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	sb.WriteString("\nScores after this round:\n")
	for _, ps := range scores {
		fmt.Fprintf(&sb, "- %s: %s points\n", ps.name, humanize.Comma(int64(ps.score)))
	}
	sb.WriteString("\n")

	if r.Status == StatusFinished {
		fmt.Fprintf(&sb, "Game ended at %s\n", now.Format("2006-01-02 15:04:05"))
		sb.WriteString(strings.Repeat("=", 50) + "\n\n")
	}
	return sb.String()
}

// displayValue groups thousands for whole numbers and leaves everything else alone.
func displayValue(v string) string {
	var n int64
	if _, err := fmt.Sscanf(v, "%d", &n); err == nil && fmt.Sprint(n) == v {
		return humanize.Comma(n)
	}
	return v
}
