package export

import (
	"bytes"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	ics "github.com/emersion/go-ical"

	"github.com/cpuguy83/bookwatch/internal/appointment"
)

func testAppointments() []appointment.Appointment {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	return []appointment.Appointment{
		{ID: "a", Title: "Dentist", DateTime: base, DurationMinutes: 45, Location: "Main St"},
		{ID: "b", Title: "Standup", DateTime: base.Add(30 * time.Minute), DurationMinutes: 15, MeetingURL: "https://zoom.us/j/123"},
		{ID: "c", Title: "Lunch", DateTime: base.Add(3 * time.Hour)},
	}
}

func TestWriteICS(t *testing.T) {
	appts := testAppointments()
	pairs := appointment.OverlapPairs(appts)

	path := filepath.Join(t.TempDir(), "nested", "bookwatch.ics")
	if err := WriteICS(path, appts, pairs); err != nil {
		t.Fatalf("WriteICS() error: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file left behind")
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	cal, err := ics.NewDecoder(f).Decode()
	if err != nil {
		t.Fatalf("failed to decode ICS: %v", err)
	}

	events := cal.Events()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}

	byUID := make(map[string]ics.Event)
	for _, ev := range events {
		uid, err := ev.Props.Text(ics.PropUID)
		if err != nil {
			t.Fatal(err)
		}
		byUID[uid] = ev
	}

	tests := []struct {
		uid     string
		overlap []string
		end     time.Time
	}{
		{"a@bookwatch", []string{"b"}, time.Date(2026, 3, 10, 9, 45, 0, 0, time.UTC)},
		{"b@bookwatch", []string{"a"}, time.Date(2026, 3, 10, 9, 45, 0, 0, time.UTC)},
		{"c@bookwatch", nil, time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.uid, func(t *testing.T) {
			ev, ok := byUID[tt.uid]
			if !ok {
				t.Fatalf("missing event %s", tt.uid)
			}

			var overlap []string
			for _, prop := range ev.Props.Values(PropOverlap) {
				overlap = append(overlap, prop.Value)
			}
			if !slices.Equal(overlap, tt.overlap) {
				t.Errorf("%s = %q, want %q", PropOverlap, overlap, tt.overlap)
			}

			end, err := ev.DateTimeEnd(time.UTC)
			if err != nil {
				t.Fatal(err)
			}
			if !end.Equal(tt.end) {
				t.Errorf("end = %v, want %v", end, tt.end)
			}
		})
	}

	if url, _ := byUID["b@bookwatch"].Props.Text(ics.PropURL); url != "https://zoom.us/j/123" {
		t.Errorf("URL = %q", url)
	}
}

func TestEventOverlapPerPartner(t *testing.T) {
	a := testAppointments()[0]
	stamp := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	cal := ics.NewCalendar()
	cal.Props.SetText(ics.PropVersion, "2.0")
	cal.Props.SetText(ics.PropProductID, productID)
	cal.Children = append(cal.Children, Event(a, []string{"b", "c"}, stamp))

	var buf bytes.Buffer
	if err := ics.NewEncoder(&buf).Encode(cal); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	for _, want := range []string{"X-BOOKWATCH-OVERLAP:b\r\n", "X-BOOKWATCH-OVERLAP:c\r\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, `b\,c`) {
		t.Errorf("partners written as one escaped list:\n%s", out)
	}
}

func TestDigest(t *testing.T) {
	a := testAppointments()[0]
	base := Digest(a, []string{"b"})

	if got := Digest(a, []string{"b"}); got != base {
		t.Errorf("digest not stable")
	}

	renamed := a
	renamed.Title = "Orthodontist"
	moved := a
	moved.DateTime = moved.DateTime.Add(time.Hour)

	tests := []struct {
		name     string
		a        appointment.Appointment
		partners []string
	}{
		{"title", renamed, []string{"b"}},
		{"start", moved, []string{"b"}},
		{"no partners", a, nil},
		{"extra partner", a, []string{"b", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if Digest(tt.a, tt.partners) == base {
				t.Errorf("digest did not change")
			}
		})
	}

	appts := testAppointments()
	pairs := appointment.OverlapPairs(appts)
	if CalendarDigest(appts, pairs) != CalendarDigest(appts, pairs) {
		t.Errorf("calendar digest not stable")
	}
	if CalendarDigest(appts, pairs) == CalendarDigest(appts[:2], pairs) {
		t.Errorf("calendar digest ignores removed appointment")
	}
}
