// Package store persists the pending destination between the origin page and
// the gate page. Backends share one small key/value contract.
package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrUnavailable marks a backend that could not serve the request.
var ErrUnavailable = errors.New("store unavailable")

// Store is a string key/value store that outlives a single page.
type Store interface {
	// Set writes value under key.
	Set(ctx context.Context, key, value string) error
	// Get returns the value under key, or def when it is absent. On failure
	// it returns def together with an error wrapping ErrUnavailable.
	Get(ctx context.Context, key, def string) (string, error)
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// Handoff is the single pending-redirect slot. The origin handler writes it,
// the gate handler reads it and clears it right before the final navigation.
type Handoff struct {
	store  Store
	key    string
	logger *zap.Logger
}

// NewHandoff binds a slot name to a store.
func NewHandoff(s Store, key string, logger *zap.Logger) *Handoff {
	return &Handoff{store: s, key: key, logger: logger.Named("handoff")}
}

// Key returns the slot name.
func (h *Handoff) Key() string { return h.key }

// Put records dest as the pending destination, replacing any previous one.
func (h *Handoff) Put(ctx context.Context, dest string) error {
	if err := h.store.Set(ctx, h.key, dest); err != nil {
		return fmt.Errorf("write pending destination: %w", err)
	}
	h.logger.Debug("Pending destination stored", zap.String("key", h.key))
	return nil
}

// Pending returns the stored destination, or "" when there is none. A read
// failure is returned alongside "" so callers can treat it as absent.
func (h *Handoff) Pending(ctx context.Context) (string, error) {
	v, err := h.store.Get(ctx, h.key, "")
	if err != nil {
		return "", fmt.Errorf("read pending destination: %w", err)
	}
	return v, nil
}

// Clear removes the pending destination.
func (h *Handoff) Clear(ctx context.Context) error {
	if err := h.store.Delete(ctx, h.key); err != nil {
		return fmt.Errorf("clear pending destination: %w", err)
	}
	return nil
}
