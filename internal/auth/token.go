// Package auth provides bearer tokens for the bookings backend.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cpuguy83/bookwatch/internal/config"
)

// ErrNoToken is returned when no usable token is available.
// Callers treat it as "not signed in" rather than as a failure.
var ErrNoToken = errors.New("no bearer token available")

// TokenSource returns the bearer token to send with backend requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Static is a fixed token, typically from the config file or token_cmd.
type Static string

// Token returns the token, or ErrNoToken if it is empty or an expired JWT.
func (s Static) Token(_ context.Context) (string, error) {
	if s == "" {
		return "", ErrNoToken
	}
	if err := checkExpiry(string(s), time.Now()); err != nil {
		return "", err
	}
	return string(s), nil
}

// Expiry returns the exp claim of a JWT without verifying its signature.
// ok is false for opaque tokens and JWTs without an exp claim.
func Expiry(token string) (exp time.Time, ok bool) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	nd, err := parsed.Claims.GetExpirationTime()
	if err != nil || nd == nil {
		return time.Time{}, false
	}
	return nd.Time, true
}

func checkExpiry(token string, now time.Time) error {
	exp, ok := Expiry(token)
	if !ok {
		return nil
	}
	if !now.Before(exp) {
		return fmt.Errorf("%w: token expired at %s", ErrNoToken, exp.Format(time.RFC3339))
	}
	return nil
}

// NewSource picks a token source from configuration.
// Precedence: token/token_cmd, keyring, MSAL device code.
func NewSource(cfg config.AuthConfig) (TokenSource, error) {
	tok, err := cfg.GetToken()
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}
	if tok != "" {
		if exp, ok := Expiry(tok); ok {
			slog.Debug("using static token", "expires", exp)
		}
		return Static(tok), nil
	}

	if cfg.Keyring {
		return OpenKeyring()
	}

	if cfg.MSAL != nil {
		return NewDeviceCodeAuth(cfg.MSAL.ClientID, cfg.MSAL.Authority, cfg.MSAL.Scopes)
	}

	// Nothing configured: every request is skipped until a token appears.
	return Static(""), nil
}
