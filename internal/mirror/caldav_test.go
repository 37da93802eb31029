package mirror

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cpuguy83/bookwatch/internal/appointment"
)

type davRecorder struct {
	mu      sync.Mutex
	puts    map[string]string
	deletes []string
	auth    []string
	methods map[string]int
}

func newDavRecorder() *davRecorder {
	return &davRecorder{puts: make(map[string]string), methods: make(map[string]int)}
}

func (d *davRecorder) requests() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	var n int
	for _, c := range d.methods {
		n += c
	}
	return n
}

func (d *davRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()

	user, _, _ := r.BasicAuth()
	d.auth = append(d.auth, user)
	d.methods[r.Method]++

	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		d.puts[r.URL.Path] = string(body)
		w.WriteHeader(http.StatusCreated)
	case http.MethodDelete:
		d.deletes = append(d.deletes, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	default:
		// No listing support: the mirror falls back to tracking its own writes.
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestCalDAVSync(t *testing.T) {
	rec := newDavRecorder()
	srv := httptest.NewServer(rec)
	defer srv.Close()

	m, err := NewCalDAV(srv.URL, "/dav/appointments", "me", "secret")
	if err != nil {
		t.Fatal(err)
	}

	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	appts := []appointment.Appointment{
		{ID: "a", Title: "Dentist", DateTime: base, DurationMinutes: 60},
		{ID: "b", Title: "Standup", DateTime: base.Add(30 * time.Minute), DurationMinutes: 15},
	}

	ctx := context.Background()
	if err := m.Sync(ctx, appts, appointment.OverlapPairs(appts)); err != nil {
		t.Fatalf("Sync() error: %v", err)
	}

	rec.mu.Lock()
	body, ok := rec.puts["/dav/appointments/bookwatch-a.ics"]
	if !ok {
		t.Fatalf("object for a not written: %v", rec.puts)
	}
	if !strings.Contains(body, "X-BOOKWATCH-OVERLAP:b") {
		t.Errorf("overlap property missing:\n%s", body)
	}
	if len(rec.puts) != 2 {
		t.Errorf("puts = %d, want 2", len(rec.puts))
	}
	for _, u := range rec.auth {
		if u != "me" {
			t.Errorf("request without basic auth user: %q", u)
		}
	}
	rec.mu.Unlock()

	// b disappears from the backend.
	if err := m.Sync(ctx, appts[:1], nil); err != nil {
		t.Fatalf("second Sync() error: %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	want := []string{"/dav/appointments/bookwatch-b.ics"}
	if !slices.Equal(rec.deletes, want) {
		t.Errorf("deletes = %v, want %v", rec.deletes, want)
	}
	// a lost its partner, so it is uploaded again without the property.
	if rec.methods[http.MethodPut] != 3 {
		t.Errorf("PUTs = %d, want 3", rec.methods[http.MethodPut])
	}
	if strings.Contains(rec.puts["/dav/appointments/bookwatch-a.ics"], "X-BOOKWATCH-OVERLAP") {
		t.Errorf("stale overlap property on a")
	}
}

func TestCalDAVSync_SkipsUnchanged(t *testing.T) {
	rec := newDavRecorder()
	srv := httptest.NewServer(rec)
	defer srv.Close()

	m, err := NewCalDAV(srv.URL, "/dav/appointments", "", "")
	if err != nil {
		t.Fatal(err)
	}

	appts := []appointment.Appointment{
		{ID: "a", Title: "Dentist", DateTime: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC), DurationMinutes: 60},
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := m.Sync(ctx, appts, nil); err != nil {
			t.Fatalf("Sync() error: %v", err)
		}
	}

	// One listing attempt, rejected by the server, and one upload.
	if n := rec.requests(); n != 2 {
		t.Errorf("requests = %d, want 2 (%v)", n, rec.methods)
	}
	rec.mu.Lock()
	if rec.methods["PROPFIND"] != 1 {
		t.Errorf("PROPFIND = %d, want 1", rec.methods["PROPFIND"])
	}
	rec.mu.Unlock()

	appts[0].Title = "Orthodontist"
	if err := m.Sync(ctx, appts, nil); err != nil {
		t.Fatalf("Sync() error: %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.methods[http.MethodPut] != 2 {
		t.Errorf("PUTs after change = %d, want 2", rec.methods[http.MethodPut])
	}
	if !strings.Contains(rec.puts["/dav/appointments/bookwatch-a.ics"], "SUMMARY:Orthodontist") {
		t.Errorf("changed appointment not uploaded")
	}
}

func TestCalDAVSync_HostileID(t *testing.T) {
	rec := newDavRecorder()
	srv := httptest.NewServer(rec)
	defer srv.Close()

	m, err := NewCalDAV(srv.URL, "/dav/appointments", "", "")
	if err != nil {
		t.Fatal(err)
	}

	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	appts := []appointment.Appointment{
		{ID: "x/../../other/victim", Title: "Evil", DateTime: start},
		{ID: "..", Title: "Dots", DateTime: start.Add(2 * time.Hour)},
		{ID: "a b?c", Title: "Spaces", DateTime: start.Add(4 * time.Hour)},
	}
	if err := m.Sync(context.Background(), appts, nil); err != nil {
		t.Fatalf("Sync() error: %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.puts) != 3 {
		t.Errorf("puts = %d, want 3: %v", len(rec.puts), rec.puts)
	}
	for p := range rec.puts {
		if !strings.HasPrefix(p, "/dav/appointments/bookwatch-") || strings.Count(p, "/") != 3 {
			t.Errorf("object written outside the collection: %s", p)
		}
	}
}

func TestObjectPath(t *testing.T) {
	m := &CalDAV{collection: "/dav/appointments/"}

	tests := []struct {
		id   string
		want string
	}{
		{"a", "/dav/appointments/bookwatch-a.ics"},
		{"AAMkAD-1_2.3@x", "/dav/appointments/bookwatch-AAMkAD-1_2.3@x.ics"},
	}
	for _, tt := range tests {
		got, err := m.objectPath(tt.id)
		if err != nil {
			t.Fatalf("objectPath(%q) error: %v", tt.id, err)
		}
		if got != tt.want {
			t.Errorf("objectPath(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}

	a, _ := m.objectPath("x/y")
	b, _ := m.objectPath("x/z")
	if a == b {
		t.Errorf("distinct ids share object %s", a)
	}
}
