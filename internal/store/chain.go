package store

import (
	"context"
	"errors"
	"fmt"
)

// Chain tries several backends in order. Writes land in the first backend
// that accepts them and clear the key in the backends before it, so reads,
// which return the first non-empty value, never see an older write.
type Chain struct {
	stores []Store
}

func NewChain(stores ...Store) *Chain {
	return &Chain{stores: stores}
}

func (c *Chain) Set(ctx context.Context, key, value string) error {
	var errs []error
	for i, s := range c.stores {
		err := s.Set(ctx, key, value)
		if err == nil {
			for _, earlier := range c.stores[:i] {
				// Best effort; an unreachable backend is skipped by Get as well.
				_ = earlier.Delete(ctx, key)
			}
			return nil
		}
		errs = append(errs, err)
	}
	return c.exhausted("set", errs)
}

func (c *Chain) Get(ctx context.Context, key, def string) (string, error) {
	var errs []error
	for _, s := range c.stores {
		v, err := s.Get(ctx, key, "")
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if v != "" {
			return v, nil
		}
	}
	if len(errs) == len(c.stores) {
		return def, c.exhausted("get", errs)
	}
	return def, nil
}

// Delete clears key everywhere. It fails only when no backend could be reached.
func (c *Chain) Delete(ctx context.Context, key string) error {
	var errs []error
	for _, s := range c.stores {
		if err := s.Delete(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == len(c.stores) {
		return c.exhausted("delete", errs)
	}
	return nil
}

func (c *Chain) exhausted(op string, errs []error) error {
	if len(errs) == 0 {
		return fmt.Errorf("%w: chain %s: no backends configured", ErrUnavailable, op)
	}
	return fmt.Errorf("%w: chain %s: %w", ErrUnavailable, op, errors.Join(errs...))
}
