// Package api is the client for the bookings backend.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/cpuguy83/bookwatch/internal/appointment"
	"github.com/cpuguy83/bookwatch/internal/auth"
)

// ErrNotFound is returned when the backend reports 404 for an event.
var ErrNotFound = errors.New("event not found")

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %s", e.Method, e.Path, e.Status)
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.Code == http.StatusNotFound
}

// Options configures a Client.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64 // requests per second, 0 disables pacing
	RateBurst int
}

// Client talks to the bookings backend with bearer-token auth.
type Client struct {
	http    *resty.Client
	tokens  auth.TokenSource
	limiter *rate.Limiter
}

// NewClient creates a new backend client.
func NewClient(opts Options, tokens auth.TokenSource) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	hc := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json")

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	return &Client{
		http:    hc,
		tokens:  tokens,
		limiter: limiter,
	}
}

// request prepares an authenticated request. It returns auth.ErrNoToken
// (possibly wrapped) when there is no token to send.
func (c *Client) request(ctx context.Context) (*resty.Request, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, auth.ErrNoToken
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for rate limiter: %w", err)
	}

	return c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("X-Request-ID", uuid.NewString()), nil
}

func checkResponse(resp *resty.Response, method, path string) error {
	if resp.IsSuccess() {
		return nil
	}
	return &StatusError{
		Method: method,
		Path:   path,
		Code:   resp.StatusCode(),
		Status: resp.Status(),
	}
}

// ListEvents fetches every event between from and to.
func (c *Client) ListEvents(ctx context.Context, from, to time.Time) ([]appointment.Record, error) {
	const path = "/events/list/"

	req, err := c.request(ctx)
	if err != nil {
		return nil, err
	}

	var records []appointment.Record
	resp, err := req.
		SetQueryParam("from", from.Format(time.RFC3339)).
		SetQueryParam("to", to.Format(time.RFC3339)).
		SetResult(&records).
		ForceContentType("application/json").
		Get(path)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	if err := checkResponse(resp, http.MethodGet, path); err != nil {
		return nil, err
	}

	return records, nil
}

// SyncCalendar asks the backend to pull from the linked external calendar.
// The response body is ignored.
func (c *Client) SyncCalendar(ctx context.Context) error {
	const path = "/google/sync/"

	req, err := c.request(ctx)
	if err != nil {
		return err
	}

	resp, err := req.Post(path)
	if err != nil {
		return fmt.Errorf("sync calendar: %w", err)
	}
	return checkResponse(resp, http.MethodPost, path)
}

// EventUpdate is the body of an event PATCH.
type EventUpdate struct {
	Title       string `json:"title"`
	StartISO    string `json:"start_iso"`
	EndISO      string `json:"end_iso"`
	Location    string `json:"location"`
	Description string `json:"description"`
}

// UpdateEvent patches the event with the given id.
func (c *Client) UpdateEvent(ctx context.Context, id string, upd EventUpdate) error {
	req, err := c.request(ctx)
	if err != nil {
		return err
	}

	resp, err := req.
		SetPathParam("id", id).
		SetBody(upd).
		Patch("/events/{id}/")
	if err != nil {
		return fmt.Errorf("update event %s: %w", id, err)
	}
	return checkResponse(resp, http.MethodPatch, "/events/"+id+"/")
}

// DeleteEvent deletes the event with the given id.
func (c *Client) DeleteEvent(ctx context.Context, id string) error {
	req, err := c.request(ctx)
	if err != nil {
		return err
	}

	resp, err := req.
		SetPathParam("id", id).
		Delete("/events/{id}/")
	if err != nil {
		return fmt.Errorf("delete event %s: %w", id, err)
	}
	return checkResponse(resp, http.MethodDelete, "/events/"+id+"/")
}
