package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cpuguy83/bookwatch/internal/appointment"
	"github.com/cpuguy83/bookwatch/internal/bookings"
)

func TestPublisherOfferKeepsLatest(t *testing.T) {
	p := &publisher{updates: make(chan bookings.Snapshot, 1)}

	p.offer(bookings.Snapshot{Dropped: 1})
	p.offer(bookings.Snapshot{Dropped: 2})

	select {
	case snap := <-p.updates:
		if snap.Dropped != 2 {
			t.Errorf("got snapshot %d, want the latest", snap.Dropped)
		}
	default:
		t.Fatal("no snapshot queued")
	}
}

func TestPublisherWritesExport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bookwatch.ics")
	p := &publisher{exportPath: path}

	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	upcoming := []appointment.Appointment{
		{ID: "a", Title: "Dentist", DateTime: start, DurationMinutes: 60},
		{ID: "b", Title: "Call", DateTime: start.Add(15 * time.Minute), DurationMinutes: 30},
	}
	p.publish(context.Background(), bookings.Snapshot{
		Upcoming: upcoming,
		Overlaps: appointment.DetectOverlaps(upcoming),
		Pairs:    appointment.OverlapPairs(upcoming),
	})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "X-BOOKWATCH-OVERLAP:a") {
		t.Errorf("export missing overlap property:\n%s", data)
	}
}

func TestPublisherSkipsUnchangedExport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bookwatch.ics")
	p := &publisher{exportPath: path}

	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	snap := bookings.Snapshot{
		Upcoming: []appointment.Appointment{{ID: "a", Title: "Dentist", DateTime: start, DurationMinutes: 60}},
	}
	ctx := context.Background()
	p.publish(ctx, snap)

	// Mark the file so a rewrite is visible.
	if err := os.WriteFile(path, []byte("marker"), 0644); err != nil {
		t.Fatal(err)
	}
	p.publish(ctx, snap)
	if data, _ := os.ReadFile(path); string(data) != "marker" {
		t.Errorf("unchanged snapshot rewrote the export")
	}

	// A missing file is written again.
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	p.publish(ctx, snap)
	if data, _ := os.ReadFile(path); !strings.Contains(string(data), "SUMMARY:Dentist") {
		t.Errorf("removed export not restored:\n%s", data)
	}

	if err := os.WriteFile(path, []byte("marker"), 0644); err != nil {
		t.Fatal(err)
	}
	snap.Upcoming[0].Title = "Orthodontist"
	p.publish(ctx, snap)
	if data, _ := os.ReadFile(path); !strings.Contains(string(data), "SUMMARY:Orthodontist") {
		t.Errorf("changed snapshot not exported:\n%s", data)
	}
}

func TestParseStart(t *testing.T) {
	loc := time.FixedZone("test", 2*60*60)

	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"2026-03-10T09:00:00Z", time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC), false},
		{"2026-03-10 11:00", time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC), false},
		{"tomorrow", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseStart(tt.in, loc)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseStart() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("parseStart() = %v, want %v", got, tt.want)
			}
		})
	}
}
