package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// brokenStore fails every call.
type brokenStore struct{ err error }

func (b brokenStore) Set(context.Context, string, string) error { return b.err }
func (b brokenStore) Get(_ context.Context, _ string, def string) (string, error) {
	return def, b.err
}
func (b brokenStore) Delete(context.Context, string) error { return b.err }

// readOnlyStore rejects writes but still serves reads and deletes.
type readOnlyStore struct{ *Memory }

func (readOnlyStore) Set(context.Context, string, string) error { return unavailable("read only") }

func unavailable(msg string) error { return fmt.Errorf("%w: %s", ErrUnavailable, msg) }

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	v, err := m.Get(ctx, "k", "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", v)

	require.NoError(t, m.Set(ctx, "k", "one"))
	require.NoError(t, m.Set(ctx, "k", "two"))
	v, err = m.Get(ctx, "k", "")
	require.NoError(t, err)
	assert.Equal(t, "two", v, "last write wins")

	require.NoError(t, m.Delete(ctx, "k"))
	require.NoError(t, m.Delete(ctx, "k"), "deleting an absent key is not an error")
	v, _ = m.Get(ctx, "k", "")
	assert.Empty(t, v)
}

func TestHandoff(t *testing.T) {
	ctx := context.Background()

	t.Run("should round trip a destination", func(t *testing.T) {
		h := NewHandoff(NewMemory(), "workink_redirect_dest", zap.NewNop())

		pending, err := h.Pending(ctx)
		require.NoError(t, err)
		assert.Empty(t, pending)

		require.NoError(t, h.Put(ctx, "https://example.com/page"))
		pending, err = h.Pending(ctx)
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/page", pending)

		require.NoError(t, h.Clear(ctx))
		pending, err = h.Pending(ctx)
		require.NoError(t, err)
		assert.Empty(t, pending)
		assert.Equal(t, "workink_redirect_dest", h.Key())
	})

	t.Run("should report an unavailable store as absent with an error", func(t *testing.T) {
		h := NewHandoff(brokenStore{err: unavailable("down")}, "k", zap.NewNop())

		pending, err := h.Pending(ctx)
		assert.Empty(t, pending)
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.ErrorIs(t, h.Put(ctx, "x"), ErrUnavailable)
		assert.ErrorIs(t, h.Clear(ctx), ErrUnavailable)
	})
}

func TestChain(t *testing.T) {
	ctx := context.Background()

	t.Run("should write to the first available backend", func(t *testing.T) {
		second := NewMemory()
		c := NewChain(brokenStore{err: unavailable("primary")}, second)

		require.NoError(t, c.Set(ctx, "k", "dest"))
		v, _ := second.Get(ctx, "k", "")
		assert.Equal(t, "dest", v)

		v, err := c.Get(ctx, "k", "")
		require.NoError(t, err)
		assert.Equal(t, "dest", v)
	})

	t.Run("should not let an earlier backend shadow a newer write", func(t *testing.T) {
		first := readOnlyStore{NewMemory()}
		require.NoError(t, first.Memory.Set(ctx, "k", "stale"))
		second := NewMemory()
		c := NewChain(first, second)

		require.NoError(t, c.Set(ctx, "k", "fresh"))

		v, err := c.Get(ctx, "k", "")
		require.NoError(t, err)
		assert.Equal(t, "fresh", v)
		old, _ := first.Get(ctx, "k", "")
		assert.Empty(t, old)
	})

	t.Run("should prefer the first non-empty value", func(t *testing.T) {
		first, second := NewMemory(), NewMemory()
		require.NoError(t, second.Set(ctx, "k", "older"))
		c := NewChain(first, second)

		v, err := c.Get(ctx, "k", "def")
		require.NoError(t, err)
		assert.Equal(t, "older", v)

		require.NoError(t, first.Set(ctx, "k", "newer"))
		v, _ = c.Get(ctx, "k", "def")
		assert.Equal(t, "newer", v)
	})

	t.Run("should return the default when nothing is stored", func(t *testing.T) {
		c := NewChain(brokenStore{err: unavailable("a")}, NewMemory())
		v, err := c.Get(ctx, "k", "def")
		require.NoError(t, err)
		assert.Equal(t, "def", v)
	})

	t.Run("should fail only when every backend fails", func(t *testing.T) {
		boom := errors.New("boom")
		c := NewChain(brokenStore{err: unavailable("a")}, brokenStore{err: boom})

		assert.ErrorIs(t, c.Set(ctx, "k", "v"), ErrUnavailable)
		assert.ErrorIs(t, c.Set(ctx, "k", "v"), boom)
		v, err := c.Get(ctx, "k", "def")
		assert.Equal(t, "def", v)
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.ErrorIs(t, c.Delete(ctx, "k"), ErrUnavailable)
	})

	t.Run("should delete from every backend", func(t *testing.T) {
		first, second := NewMemory(), NewMemory()
		_ = first.Set(ctx, "k", "a")
		_ = second.Set(ctx, "k", "b")
		c := NewChain(first, brokenStore{err: unavailable("x")}, second)

		require.NoError(t, c.Delete(ctx, "k"))
		v, _ := c.Get(ctx, "k", "")
		assert.Empty(t, v)
	})

	t.Run("should fail with no members", func(t *testing.T) {
		assert.ErrorIs(t, NewChain().Set(ctx, "k", "v"), ErrUnavailable)
	})
}
