package notify

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cpuguy83/bookwatch/internal/appointment"
)

// Conflicts announces appointments that start overlapping another one.
// An appointment is announced once per flagged period: it is forgotten when
// it stops being flagged, and announced again if it is flagged later.
type Conflicts struct {
	sender Sender

	mu       sync.Mutex
	notified map[string]struct{}
}

// NewConflicts creates a conflict notifier sending through s.
func NewConflicts(s Sender) *Conflicts {
	return &Conflicts{
		sender:   s,
		notified: make(map[string]struct{}),
	}
}

// Update compares the current overlaps against what was already announced
// and sends one notification per newly flagged appointment. It returns the
// number of notifications sent.
func (c *Conflicts) Update(upcoming []appointment.Appointment, overlaps appointment.OverlapSet, pairs []appointment.Pair) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id := range c.notified {
		if !overlaps.Has(id) {
			delete(c.notified, id)
		}
	}

	sent := 0
	for _, a := range upcoming {
		if !overlaps.Has(a.ID) {
			continue
		}
		if _, ok := c.notified[a.ID]; ok {
			continue
		}

		n := conflictNotification(a, partnerTitles(upcoming, appointment.Partners(pairs, a.ID)))
		if _, err := c.sender.Send(n); err != nil {
			slog.Warn("conflict notification failed", "id", a.ID, "error", err)
			continue
		}
		c.notified[a.ID] = struct{}{}
		sent++
	}
	return sent
}

func partnerTitles(appts []appointment.Appointment, ids []string) []string {
	titles := make([]string, 0, len(ids))
	for _, id := range ids {
		if a, ok := appointment.Find(appts, id); ok {
			titles = append(titles, a.Title)
		}
	}
	return titles
}

func conflictNotification(a appointment.Appointment, partners []string) Notification {
	body := a.DateTime.Format("Mon Jan 2 15:04") + " - " + a.End().Format("15:04")
	if len(partners) > 0 {
		body += "\nOverlaps with " + strings.Join(partners, ", ")
	}
	return Notification{
		Summary: fmt.Sprintf("Double booked: %s", a.Title),
		Body:    body,
		Urgency: UrgencyCritical,
		Timeout: 30 * time.Second,
	}
}
