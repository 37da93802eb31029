package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/cpuguy83/bookwatch/internal/appointment"
	"github.com/cpuguy83/bookwatch/internal/bookings"
	"github.com/cpuguy83/bookwatch/internal/links"
)

// formatAppointments renders appointments grouped by day. Flagged
// appointments are marked with ⚠ and list who they overlap.
func formatAppointments(appts []appointment.Appointment, snap bookings.Snapshot, now time.Time) []string {
	var lines []string
	var lastDay string

	for i := range appts {
		a := &appts[i]
		day := getDayLabel(a.DateTime, now)
		if day != lastDay {
			lines = append(lines, fmt.Sprintf("━━━━ %s ━━━━", day))
			lastDay = day
		}
		lines = append(lines, formatAppointmentLine(a, snap))
	}

	if len(lines) == 0 {
		lines = append(lines, "No appointments")
	}
	if snap.Dropped > 0 {
		lines = append(lines, "", fmt.Sprintf("%d malformed record(s) skipped", snap.Dropped))
	}
	return lines
}

func formatAppointmentLine(a *appointment.Appointment, snap bookings.Snapshot) string {
	prefix := "  "
	if snap.IsFlagged(a.ID) {
		prefix = "⚠ "
	}

	line := fmt.Sprintf("%s%s-%s  %s (%s)  [%s]",
		prefix,
		a.DateTime.Format("15:04"),
		a.End().Format("15:04"),
		a.Title,
		formatDuration(a.Duration()),
		a.ID,
	)
	if a.Location != "" && a.MeetingURL != a.Location {
		line += "  @ " + truncate(a.Location, 40)
	}
	if a.MeetingURL != "" {
		line += "  🔗 " + links.Service(a.MeetingURL)
	}
	if partners := appointment.Partners(snap.Pairs, a.ID); len(partners) > 0 {
		line += "  overlaps " + strings.Join(partners, ",")
	}
	return line
}

// getDayLabel returns a human-readable day label.
func getDayLabel(t time.Time, now time.Time) string {
	loc := t.Location()
	n := now.In(loc)

	today := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, loc)
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)

	switch {
	case day.Equal(today):
		return "Today"
	case day.Equal(today.AddDate(0, 0, 1)):
		return "Tomorrow"
	case day.Equal(today.AddDate(0, 0, -1)):
		return "Yesterday"
	default:
		return t.Format("Mon, Jan 2 2006")
	}
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	hours := d.Hours()
	if hours == float64(int(hours)) {
		return fmt.Sprintf("%dh", int(hours))
	}
	return fmt.Sprintf("%.1fh", hours)
}

// truncate shortens s to maxLen runes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
