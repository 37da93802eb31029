// Package appointment provides the appointment view model and the
// derived views computed from it.
package appointment

import (
	"fmt"
	"time"

	"github.com/cpuguy83/bookwatch/internal/links"
)

// DefaultDuration is applied when a record carries no usable start/end pair.
const DefaultDuration = 60 * time.Minute

// Record is an event record as returned by the bookings backend.
type Record struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`
	StartISO    string `json:"start_iso,omitempty"`
	EndISO      string `json:"end_iso,omitempty"`
}

// Appointment is the view model built from a Record.
type Appointment struct {
	// ID is the backend identifier. It is the only identity an appointment has.
	ID string

	// Title is the display name.
	Title string

	// Date and Time are the wall-clock components (YYYY-MM-DD, HH:MM).
	Date string
	Time string

	// DurationMinutes is derived from start_iso/end_iso, or DefaultDuration.
	DurationMinutes int

	// DateTime is Date+Time resolved in the local zone.
	DateTime time.Time

	Location    string
	Description string

	// MeetingURL is a meeting link found in Location or Description (if any).
	MeetingURL string
}

// Duration returns the appointment length.
func (a *Appointment) Duration() time.Duration {
	if a.DurationMinutes <= 0 {
		return DefaultDuration
	}
	return time.Duration(a.DurationMinutes) * time.Minute
}

// End returns the instant the appointment ends.
func (a *Appointment) End() time.Time {
	return a.DateTime.Add(a.Duration())
}

// IsUpcoming reports whether the appointment starts at or after now.
func (a *Appointment) IsUpcoming(now time.Time) bool {
	return !a.DateTime.Before(now)
}

// FromRecord converts a backend record into an Appointment.
// Records whose date/time cannot be resolved return an error.
func FromRecord(r Record, loc *time.Location) (Appointment, error) {
	if loc == nil {
		loc = time.Local
	}

	dt, err := parseDateTime(r.Date, r.Time, loc)
	if err != nil {
		return Appointment{}, fmt.Errorf("record %q: %w", r.ID, err)
	}

	return Appointment{
		ID:              r.ID,
		Title:           r.Title,
		Date:            r.Date,
		Time:            r.Time,
		DurationMinutes: durationMinutes(r.StartISO, r.EndISO),
		DateTime:        dt,
		Location:        r.Location,
		Description:     r.Description,
		MeetingURL:      links.Detect(r.Location, r.Description),
	}, nil
}

// FromRecords converts records, dropping any that fail to parse.
// The second return value is the number of dropped records.
func FromRecords(records []Record, loc *time.Location) ([]Appointment, int) {
	appts := make([]Appointment, 0, len(records))
	dropped := 0
	for _, r := range records {
		a, err := FromRecord(r, loc)
		if err != nil {
			dropped++
			continue
		}
		appts = append(appts, a)
	}
	return appts, dropped
}

// Partition splits appointments into upcoming (at or after now) and past.
// Input order is preserved in both halves.
func Partition(appts []Appointment, now time.Time) (upcoming, past []Appointment) {
	for _, a := range appts {
		if a.IsUpcoming(now) {
			upcoming = append(upcoming, a)
		} else {
			past = append(past, a)
		}
	}
	return upcoming, past
}

// Find returns the appointment with the given id.
func Find(appts []Appointment, id string) (Appointment, bool) {
	for _, a := range appts {
		if a.ID == id {
			return a, true
		}
	}
	return Appointment{}, false
}

var timeLayouts = []string{"15:04", "15:04:05"}

// parseDateTime combines a YYYY-MM-DD date and HH:MM time in loc.
func parseDateTime(date, clock string, loc *time.Location) (time.Time, error) {
	if date == "" || clock == "" {
		return time.Time{}, fmt.Errorf("missing date or time")
	}

	var lastErr error
	for _, layout := range timeLayouts {
		t, err := time.ParseInLocation("2006-01-02 "+layout, date+" "+clock, loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, fmt.Errorf("parse date/time: %w", lastErr)
}

// durationMinutes derives the length from the ISO timestamps.
func durationMinutes(startISO, endISO string) int {
	if startISO == "" || endISO == "" {
		return int(DefaultDuration / time.Minute)
	}

	start, err := time.Parse(time.RFC3339, startISO)
	if err != nil {
		return int(DefaultDuration / time.Minute)
	}
	end, err := time.Parse(time.RFC3339, endISO)
	if err != nil {
		return int(DefaultDuration / time.Minute)
	}

	mins := int(end.Sub(start).Round(time.Minute) / time.Minute)
	if mins <= 0 {
		return int(DefaultDuration / time.Minute)
	}
	return mins
}
