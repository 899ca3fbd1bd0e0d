package chatops

import (
	"fmt"
	"strings"
	"time"

	"adsposter/internal/poster"
	kit "adsposter/internal/transport"
)

var kitHTML = kit.SendOptions{ParseMode: "HTML", DisablePreview: true}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func counts(published, scheduled, skipped int) string {
	return fmt.Sprintf("%d published, %d scheduled, %d skipped", published, scheduled, skipped)
}

func stateIcon(state string) string {
	switch state {
	case "completed":
		return "✅"
	case "failed":
		return "❌"
	case "running":
		return "▶️"
	case "stopping":
		return "⏳"
	}
	return "•"
}

// FormatSummary renders a terminal run summary as plain text.
func FormatSummary(s poster.RunSummary) string {
	took := s.FinishedAt.Sub(s.StartedAt).Round(time.Second)
	var b strings.Builder
	fmt.Fprintf(&b, "%s run %s %s in %s\n%s",
		stateIcon(s.State.String()), shortID(s.ID), s.State, took,
		counts(s.Published, s.Scheduled, s.Skipped))
	if s.Cancelled {
		b.WriteString("\nstopped by request")
	}
	if s.Error != "" {
		b.WriteString("\nerror: " + truncate(s.Error, 300))
	}
	return b.String()
}

// FormatStatus renders the manager state as plain text.
func FormatStatus(st poster.Status, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s state: %s", stateIcon(st.State.String()), st.State)
	if r := st.Run; r != nil {
		fmt.Fprintf(&b, "\nrun %s on %s, %d job(s), source %s, running %s",
			shortID(r.ID), r.Identity, r.Jobs, orDash(r.Source), now.Sub(r.StartedAt).Round(time.Second))
	}
	if l := st.Last; l != nil {
		fmt.Fprintf(&b, "\nlast: %s %s at %s (%s)",
			shortID(l.ID), l.State, l.FinishedAt.Local().Format("2006-01-02 15:04"),
			counts(l.Published, l.Scheduled, l.Skipped))
	}
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
