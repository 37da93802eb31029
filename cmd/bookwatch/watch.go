package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cpuguy83/bookwatch/internal/bookings"
	"github.com/cpuguy83/bookwatch/internal/config"
	"github.com/cpuguy83/bookwatch/internal/export"
	"github.com/cpuguy83/bookwatch/internal/mirror"
	"github.com/cpuguy83/bookwatch/internal/notify"
)

func newWatchCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Keep polling the backend and act on overlaps as they appear",
		Long: "Keep polling the backend and act on overlaps as they appear.\n" +
			"SIGUSR1 pauses polling (hidden), SIGUSR2 resumes it with an immediate refresh.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			return runWatch(cmd.Context(), cfg)
		},
	}
}

// publisher fans applied snapshots out to the configured sinks. It runs on
// its own goroutine so slow sinks never hold up the store.
type publisher struct {
	exportPath string
	exported   string // digest of the calendar last written to exportPath
	conflicts  *notify.Conflicts
	mirror     *mirror.CalDAV

	updates chan bookings.Snapshot
}

func newPublisher(cfg *config.Config) (*publisher, func(), error) {
	p := &publisher{
		exportPath: cfg.Export.Path,
		updates:    make(chan bookings.Snapshot, 1),
	}
	cleanup := func() {}

	if cfg.Notifications.Enabled {
		bus, err := notify.NewDBus("Bookwatch")
		if err != nil {
			slog.Warn("failed to initialize notifications", "error", err)
		} else {
			p.conflicts = notify.NewConflicts(bus)
			cleanup = func() { bus.Close() }
		}
	}

	if cfg.Mirror.Enabled() {
		password, err := cfg.Mirror.GetPassword()
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("mirror password: %w", err)
		}
		p.mirror, err = mirror.NewCalDAV(cfg.Mirror.URL, cfg.Mirror.Collection, cfg.Mirror.Username, password)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
	}

	return p, cleanup, nil
}

// offer queues snap, replacing any snapshot not yet published.
func (p *publisher) offer(snap bookings.Snapshot) {
	for {
		select {
		case p.updates <- snap:
			return
		default:
		}
		select {
		case <-p.updates:
		default:
		}
	}
}

func (p *publisher) run(ctx context.Context) {
	for {
		select {
		case snap := <-p.updates:
			p.publish(ctx, snap)
		case <-ctx.Done():
			return
		}
	}
}

func (p *publisher) publish(ctx context.Context, snap bookings.Snapshot) {
	slog.Info("appointments updated",
		"upcoming", len(snap.Upcoming),
		"past", len(snap.Past),
		"overlapping", len(snap.Overlaps),
	)
	for _, id := range snap.Overlaps.IDs() {
		slog.Debug("overlap", "id", id)
	}

	if p.exportPath != "" {
		p.writeExport(snap)
	}
	if p.conflicts != nil {
		p.conflicts.Update(snap.Upcoming, snap.Overlaps, snap.Pairs)
	}
	if p.mirror != nil {
		if err := p.mirror.Sync(ctx, snap.Upcoming, snap.Pairs); err != nil {
			slog.Warn("mirror sync incomplete", "error", err)
		}
	}
}

// writeExport rewrites the ICS file unless it already holds snap's calendar.
func (p *publisher) writeExport(snap bookings.Snapshot) {
	digest := export.CalendarDigest(snap.Upcoming, snap.Pairs)
	if digest == p.exported {
		if _, err := os.Stat(p.exportPath); err == nil {
			return
		}
	}
	if err := export.WriteICS(p.exportPath, snap.Upcoming, snap.Pairs); err != nil {
		slog.Warn("failed to write ICS", "path", p.exportPath, "error", err)
		return
	}
	p.exported = digest
}

func runWatch(ctx context.Context, cfg *config.Config) error {
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	sopts, err := storeOptions(cfg)
	if err != nil {
		return err
	}

	pub, cleanup, err := newPublisher(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	sopts.Host = bookings.SignalHost{}
	sopts.OnChange = pub.offer

	store := bookings.New(client, sopts)
	if err := store.Start(ctx); err != nil {
		return fmt.Errorf("start store: %w", err)
	}

	pubCtx, cancelPub := context.WithCancel(context.Background())
	defer cancelPub()
	go pub.run(pubCtx)

	slog.Info("bookwatch running", "backend", cfg.API.BaseURL)

	<-ctx.Done()
	slog.Info("received signal, shutting down")
	store.Stop()

	select {
	case <-store.Done():
	case <-time.After(5 * time.Second):
		slog.Warn("poll loop did not exit in time")
	}
	return nil
}
