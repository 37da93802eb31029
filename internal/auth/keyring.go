package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const (
	keyringService = "bookwatch"
	keyringKey     = "api-token"
)

// Keyring reads the bearer token from the OS keyring.
type Keyring struct {
	ring keyring.Keyring
}

// OpenKeyring opens the bookwatch keyring entry.
func OpenKeyring() (*Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: keyringService,
	})
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	return &Keyring{ring: ring}, nil
}

// NewKeyring wraps an already opened keyring.
func NewKeyring(ring keyring.Keyring) *Keyring {
	return &Keyring{ring: ring}
}

// Token returns the stored token. A missing entry is ErrNoToken.
func (k *Keyring) Token(ctx context.Context) (string, error) {
	item, err := k.ring.Get(keyringKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("read keyring: %w", err)
	}
	return Static(item.Data).Token(ctx)
}

// Store saves token in the keyring, replacing any previous value.
func (k *Keyring) Store(token string) error {
	if err := k.ring.Set(keyring.Item{
		Key:   keyringKey,
		Data:  []byte(token),
		Label: "bookwatch API token",
	}); err != nil {
		return fmt.Errorf("write keyring: %w", err)
	}
	return nil
}

// Clear removes the stored token.
func (k *Keyring) Clear() error {
	err := k.ring.Remove(keyringKey)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("remove keyring entry: %w", err)
	}
	return nil
}
