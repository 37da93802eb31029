package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cpuguy83/bookwatch/internal/api"
	"github.com/cpuguy83/bookwatch/internal/auth"
	"github.com/cpuguy83/bookwatch/internal/bookings"
	"github.com/cpuguy83/bookwatch/internal/config"
	"github.com/cpuguy83/bookwatch/internal/filter"
)

func (o *globalOptions) loadConfig() (*config.Config, error) {
	if o.configPath != "" {
		return config.LoadFrom(o.configPath)
	}
	return config.Load()
}

func newClient(cfg *config.Config) (*api.Client, error) {
	tokens, err := auth.NewSource(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("token source: %w", err)
	}

	return api.NewClient(api.Options{
		BaseURL:   cfg.API.BaseURL,
		Timeout:   cfg.API.Timeout,
		RateLimit: cfg.API.RateLimit,
		RateBurst: cfg.API.RateBurst,
	}, tokens), nil
}

func storeOptions(cfg *config.Config) (bookings.Options, error) {
	f, err := filter.New(cfg.Filters)
	if err != nil {
		return bookings.Options{}, fmt.Errorf("filters: %w", err)
	}

	return bookings.Options{
		Interval:     cfg.Poll.Interval,
		Back:         cfg.Poll.Back,
		Ahead:        cfg.Poll.Ahead,
		Location:     cfg.Location(),
		Filter:       f,
		SyncSchedule: cfg.Poll.SyncCron,
	}, nil
}

// loadStore builds a store and applies one fetch. It is used by the
// one-shot commands.
func (o *globalOptions) loadStore(ctx context.Context) (*bookings.Store, bookings.Snapshot, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, bookings.Snapshot{}, err
	}

	client, err := newClient(cfg)
	if err != nil {
		return nil, bookings.Snapshot{}, err
	}

	sopts, err := storeOptions(cfg)
	if err != nil {
		return nil, bookings.Snapshot{}, err
	}

	store := bookings.New(client, sopts)
	snap, err := store.Load(ctx)
	if errors.Is(err, auth.ErrNoToken) {
		return nil, bookings.Snapshot{}, fmt.Errorf("not signed in: %w", err)
	}
	if err != nil {
		return nil, bookings.Snapshot{}, fmt.Errorf("fetch appointments: %w", err)
	}
	return store, snap, nil
}

// parseStart accepts RFC 3339 or "YYYY-MM-DD HH:MM" in loc.
func parseStart(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid start %q: want RFC 3339 or \"YYYY-MM-DD HH:MM\"", s)
	}
	return t, nil
}
