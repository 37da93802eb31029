// Package bookings keeps a refreshed local cache of the backend's appointments.
package bookings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/cpuguy83/bookwatch/internal/api"
	"github.com/cpuguy83/bookwatch/internal/appointment"
	"github.com/cpuguy83/bookwatch/internal/auth"
	"github.com/cpuguy83/bookwatch/internal/filter"
)

var (
	// ErrBusy is returned by Load when another fetch is in flight.
	ErrBusy = errors.New("fetch already in flight")
	// ErrStopped is returned when the store has been torn down.
	ErrStopped = errors.New("store stopped")
	// ErrUnknownAppointment is returned for ids not in the cache.
	ErrUnknownAppointment = errors.New("unknown appointment")
)

// Backend is the subset of the bookings API the store uses.
type Backend interface {
	ListEvents(ctx context.Context, from, to time.Time) ([]appointment.Record, error)
	SyncCalendar(ctx context.Context) error
	UpdateEvent(ctx context.Context, id string, upd api.EventUpdate) error
	DeleteEvent(ctx context.Context, id string) error
}

// Snapshot is the derived state of one applied fetch.
type Snapshot struct {
	// Appointments holds every parsed, filtered appointment sorted by start.
	Appointments []appointment.Appointment
	Upcoming     []appointment.Appointment
	Past         []appointment.Appointment

	// Overlaps is computed over Upcoming only.
	Overlaps appointment.OverlapSet
	Pairs    []appointment.Pair

	// Dropped counts records that could not be parsed.
	Dropped   int
	FetchedAt time.Time
}

// IsFlagged reports whether id overlaps another upcoming appointment.
func (s Snapshot) IsFlagged(id string) bool {
	return s.Overlaps.Has(id)
}

// Options configures a Store.
type Options struct {
	Interval time.Duration
	Back     time.Duration
	Ahead    time.Duration
	Location *time.Location
	Filter   *filter.Filter

	// SyncSchedule is an optional cron expression for re-triggering the
	// external calendar sync while the store runs.
	SyncSchedule string

	// Host reports visibility and focus changes. Optional.
	Host Host

	// OnChange is called after every applied fetch. It must not call Stop.
	OnChange func(Snapshot)

	// Now overrides the clock.
	Now func() time.Time
}

// Store is the event cache for a single host instance.
type Store struct {
	backend Backend
	opts    Options

	inFlight atomic.Bool
	alive    atomic.Bool
	visible  atomic.Bool
	started  atomic.Bool

	// applyMu serializes the liveness check with applying a result.
	applyMu sync.Mutex

	mu   sync.RWMutex
	snap Snapshot

	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	cron        *cron.Cron
	done        chan struct{}

	newTicker func(time.Duration) (<-chan time.Time, func())
}

// New creates a store. It does not fetch until Start, Poll or Load is called.
func New(backend Backend, opts Options) *Store {
	if opts.Interval <= 0 {
		opts.Interval = 6 * time.Second
	}
	if opts.Back <= 0 {
		opts.Back = 365 * 24 * time.Hour
	}
	if opts.Ahead <= 0 {
		opts.Ahead = 365 * 24 * time.Hour
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Store{
		backend: backend,
		opts:    opts,
		snap:    Snapshot{Overlaps: appointment.OverlapSet{}},
		newTicker: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		},
	}
	s.alive.Store(true)
	s.visible.Store(true)
	return s
}

// Start triggers the external calendar sync, fetches once and then keeps
// polling until Stop or ctx is done.
func (s *Store) Start(ctx context.Context) error {
	if !s.alive.Load() {
		return ErrStopped
	}
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("store already started")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	if s.opts.SyncSchedule != "" {
		s.cron = cron.New()
		if _, err := s.cron.AddFunc(s.opts.SyncSchedule, func() { s.syncCalendar(s.ctx) }); err != nil {
			s.cancel()
			return fmt.Errorf("schedule calendar sync: %w", err)
		}
		s.cron.Start()
	}

	if s.opts.Host != nil {
		s.unsubscribe = s.opts.Host.Subscribe(s.handleHostEvent)
	}

	go s.run(s.ctx)

	slog.Info("bookings store started",
		"interval", s.opts.Interval,
		"window_back", s.opts.Back,
		"window_ahead", s.opts.Ahead,
	)
	return nil
}

func (s *Store) run(ctx context.Context) {
	defer close(s.done)

	s.syncCalendar(ctx)
	s.Poll(ctx)

	ticks, stop := s.newTicker(s.opts.Interval)
	defer stop()

	for {
		select {
		case <-ticks:
			if !s.visible.Load() {
				slog.Debug("host hidden, skipping poll")
				continue
			}
			s.Poll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Stop tears the store down. Host listeners are removed and the poll loop
// ends; a fetch still in flight completes but its result is discarded.
func (s *Store) Stop() {
	s.applyMu.Lock()
	wasAlive := s.alive.Swap(false)
	s.applyMu.Unlock()
	if !wasAlive {
		return
	}

	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	if s.cron != nil {
		s.cron.Stop()
	}
	if s.cancel != nil {
		s.cancel()
	}
	slog.Debug("bookings store stopped")
}

// Done is closed when the poll loop has exited. It is nil before Start.
func (s *Store) Done() <-chan struct{} {
	return s.done
}

// Snapshot returns the current derived state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Poll fetches and applies the event list once. It returns false without
// doing anything when another fetch is in flight or the store is stopped.
// Fetch failures keep the previous cache and are only logged.
func (s *Store) Poll(ctx context.Context) bool {
	_, err := s.refresh(ctx)
	switch {
	case errors.Is(err, ErrBusy):
		slog.Debug("poll skipped, fetch in flight")
		return false
	case errors.Is(err, ErrStopped):
		return false
	case errors.Is(err, auth.ErrNoToken):
		slog.Debug("no token, skipping fetch", "reason", err)
	case err != nil:
		slog.Warn("fetch events failed, keeping cached appointments", "error", err)
	}
	return true
}

// Load is Poll for callers that want the outcome: it returns the applied
// snapshot or the reason nothing was applied.
func (s *Store) Load(ctx context.Context) (Snapshot, error) {
	return s.refresh(ctx)
}

// Refresh starts an out-of-band poll in the background. It does nothing
// unless the store has been started and not yet stopped.
func (s *Store) Refresh() {
	if !s.started.Load() || !s.alive.Load() {
		return
	}
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	go s.Poll(ctx)
}

// SetVisible records host visibility. Becoming visible polls immediately.
func (s *Store) SetVisible(visible bool) {
	was := s.visible.Swap(visible)
	if visible && !was {
		slog.Debug("host visible, refreshing")
		s.Refresh()
	}
}

// Focus polls immediately.
func (s *Store) Focus() {
	slog.Debug("host focused, refreshing")
	s.Refresh()
}

func (s *Store) handleHostEvent(ev HostEvent) {
	switch ev {
	case HostHidden:
		s.SetVisible(false)
	case HostVisible:
		s.SetVisible(true)
	case HostFocused:
		s.Focus()
	}
}

func (s *Store) refresh(ctx context.Context) (Snapshot, error) {
	if !s.alive.Load() {
		return Snapshot{}, ErrStopped
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		return Snapshot{}, ErrBusy
	}
	defer s.inFlight.Store(false)

	snap, err := s.Fetch(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) && !s.alive.Load() {
			return Snapshot{}, ErrStopped
		}
		return Snapshot{}, err
	}

	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	if !s.alive.Load() {
		slog.Debug("store stopped during fetch, discarding result")
		return Snapshot{}, ErrStopped
	}

	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()

	if s.opts.OnChange != nil {
		s.opts.OnChange(snap)
	}
	return snap, nil
}

// Fetch retrieves the event window and derives a snapshot without applying it.
func (s *Store) Fetch(ctx context.Context) (Snapshot, error) {
	now := s.opts.Now()
	from, to := now.Add(-s.opts.Back), now.Add(s.opts.Ahead)

	records, err := s.backend.ListEvents(ctx, from, to)
	if err != nil {
		return Snapshot{}, err
	}

	snap := s.build(records, now)
	slog.Debug("fetched events",
		"records", len(records),
		"appointments", len(snap.Appointments),
		"upcoming", len(snap.Upcoming),
		"overlapping", len(snap.Overlaps),
		"dropped", snap.Dropped,
	)
	return snap, nil
}

// build derives every view from the raw records.
func (s *Store) build(records []appointment.Record, now time.Time) Snapshot {
	appts, dropped := appointment.FromRecords(records, s.opts.Location)
	appts = s.opts.Filter.Apply(appts)

	sort.SliceStable(appts, func(i, j int) bool {
		return appts[i].DateTime.Before(appts[j].DateTime)
	})

	upcoming, past := appointment.Partition(appts, now)

	return Snapshot{
		Appointments: appts,
		Upcoming:     upcoming,
		Past:         past,
		Overlaps:     appointment.DetectOverlaps(upcoming),
		Pairs:        appointment.OverlapPairs(upcoming),
		Dropped:      dropped,
		FetchedAt:    now,
	}
}

// syncCalendar triggers the backend's external calendar sync. Failures are
// logged and otherwise ignored.
func (s *Store) syncCalendar(ctx context.Context) {
	if err := s.backend.SyncCalendar(ctx); err != nil {
		slog.Debug("calendar sync failed", "error", err)
		return
	}
	slog.Debug("calendar sync triggered")
}

// Reschedule moves an appointment to start, keeping its duration, and on a
// started store refreshes the cache.
func (s *Store) Reschedule(ctx context.Context, id string, start time.Time) error {
	a, ok := appointment.Find(s.Snapshot().Appointments, id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAppointment, id)
	}

	upd := api.EventUpdate{
		Title:       a.Title,
		StartISO:    start.Format(time.RFC3339),
		EndISO:      start.Add(a.Duration()).Format(time.RFC3339),
		Location:    a.Location,
		Description: a.Description,
	}
	if err := s.backend.UpdateEvent(ctx, id, upd); err != nil {
		return fmt.Errorf("reschedule %s: %w", id, err)
	}

	slog.Info("rescheduled appointment", "id", id, "start", upd.StartISO)
	s.Refresh()
	return nil
}

// Delete removes an appointment and, on a started store, refreshes the cache.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.backend.DeleteEvent(ctx, id); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}

	slog.Info("deleted appointment", "id", id)
	s.Refresh()
	return nil
}
