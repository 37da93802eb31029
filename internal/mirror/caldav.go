// Package mirror publishes appointments to a CalDAV collection.
package mirror

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"regexp"
	"strings"
	"sync"
	"time"

	ics "github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"

	"github.com/cpuguy83/bookwatch/internal/appointment"
	"github.com/cpuguy83/bookwatch/internal/export"
)

// objectPrefix marks calendar objects owned by the mirror. Objects without
// it are never touched.
const objectPrefix = "bookwatch-"

// plainID matches ids that are safe to use verbatim as an object name.
var plainID = regexp.MustCompile(`^[A-Za-z0-9._@-]+$`)

// CalDAV keeps a CalDAV collection in step with the appointment cache:
// one calendar object per appointment, removed once the appointment is gone.
type CalDAV struct {
	client     *caldav.Client
	collection string

	mu     sync.Mutex
	known  map[string]string // object path -> digest of the uploaded event, "" if found by listing
	seeded bool
}

// NewCalDAV creates a mirror writing into collection on the server at url.
func NewCalDAV(url, collection, username, password string) (*CalDAV, error) {
	httpClient := &http.Client{
		Timeout: 60 * time.Second,
		Transport: &basicAuthTransport{
			username: username,
			password: password,
			base:     http.DefaultTransport,
		},
	}

	client, err := caldav.NewClient(httpClient, url)
	if err != nil {
		return nil, fmt.Errorf("create caldav client: %w", err)
	}

	if !strings.HasSuffix(collection, "/") {
		collection += "/"
	}

	return &CalDAV{
		client:     client,
		collection: collection,
		known:      make(map[string]string),
	}, nil
}

// objectPath maps an appointment id to its object inside the collection.
// Ids with characters outside plainID are replaced by their hash.
func (m *CalDAV) objectPath(id string) (string, error) {
	name := id
	if !plainID.MatchString(id) {
		sum := sha256.Sum256([]byte(id))
		name = "h" + hex.EncodeToString(sum[:16])
	}
	p := path.Join(m.collection, objectPrefix+name+".ics")
	if path.Dir(p) != path.Clean(m.collection) {
		return "", fmt.Errorf("object for %q escapes collection %s", id, m.collection)
	}
	return p, nil
}

// Sync uploads new or changed appointments and removes objects for
// appointments that no longer exist. Individual failures are logged and the
// first one is returned after the whole pass.
func (m *CalDAV) Sync(ctx context.Context, appts []appointment.Appointment, pairs []appointment.Pair) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.seeded {
		m.seed(ctx)
	}

	var firstErr error
	record := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	now := time.Now()
	current := make(map[string]struct{}, len(appts))
	var uploaded int
	for _, a := range appts {
		p, err := m.objectPath(a.ID)
		if err != nil {
			slog.Warn("mirror skipped appointment", "id", a.ID, "error", err)
			record(err)
			continue
		}
		current[p] = struct{}{}

		partners := appointment.Partners(pairs, a.ID)
		digest := export.Digest(a, partners)
		if prev, ok := m.known[p]; ok && prev == digest {
			continue
		}

		cal := ics.NewCalendar()
		cal.Props.SetText(ics.PropVersion, "2.0")
		cal.Props.SetText(ics.PropProductID, "-//Bookwatch//Bookwatch//EN")
		cal.Children = append(cal.Children, export.Event(a, partners, now))

		if _, err := m.client.PutCalendarObject(ctx, p, cal); err != nil {
			slog.Warn("mirror put failed", "id", a.ID, "error", err)
			record(fmt.Errorf("put %s: %w", p, err))
			continue
		}
		m.known[p] = digest
		uploaded++
	}

	for p := range m.known {
		if _, ok := current[p]; ok {
			continue
		}
		if err := m.client.RemoveAll(ctx, p); err != nil {
			slog.Warn("mirror remove failed", "path", p, "error", err)
			record(fmt.Errorf("remove %s: %w", p, err))
			continue
		}
		delete(m.known, p)
	}

	slog.Debug("mirror synced", "collection", m.collection, "objects", len(current), "uploaded", uploaded)
	return firstErr
}

// seed records objects a previous run left in the collection so they can be
// removed if their appointments are gone. It runs once per CalDAV, even if
// the listing fails.
func (m *CalDAV) seed(ctx context.Context) {
	m.seeded = true

	infos, err := m.client.ReadDir(ctx, m.collection, false)
	if err != nil {
		slog.Debug("mirror listing failed, tracking only new objects", "error", err)
		return
	}
	for _, fi := range infos {
		if fi.IsDir {
			continue
		}
		name := path.Base(fi.Path)
		if strings.HasPrefix(name, objectPrefix) && strings.HasSuffix(name, ".ics") {
			m.known[path.Join(m.collection, name)] = ""
		}
	}
}

// basicAuthTransport adds basic auth to HTTP requests.
type basicAuthTransport struct {
	username string
	password string
	base     http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.username != "" {
		req = req.Clone(req.Context())
		req.SetBasicAuth(t.username, t.password)
	}
	return t.base.RoundTrip(req)
}
