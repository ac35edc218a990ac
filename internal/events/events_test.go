package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ace221390/work.ink/internal/flow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordingConn struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	err      error
}

func (c *recordingConn) Publish(subject string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.subjects = append(c.subjects, subject)
	c.payloads = append(c.payloads, data)
	return nil
}

func sampleReport() Report {
	return Report{
		VisitID:   "v-1",
		TabID:     "t-1",
		URL:       "https://work.ink/",
		Role:      "gate",
		Outcome:   flow.Outcome{Kind: flow.Redirected, Destination: "https://example.com/", Tier: "direct"},
		StartedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Duration:  2800 * time.Millisecond,
	}
}

func TestNATSPublisher(t *testing.T) {
	t.Run("should publish the report as json", func(t *testing.T) {
		conn := &recordingConn{}
		p := NewNATSPublisher(conn, "workink.outcomes")

		require.NoError(t, p.Publish(context.Background(), sampleReport()))

		require.Len(t, conn.subjects, 1)
		assert.Equal(t, "workink.outcomes", conn.subjects[0])
		var decoded map[string]any
		require.NoError(t, json.Unmarshal(conn.payloads[0], &decoded))
		assert.Equal(t, "gate", decoded["role"])
		outcome := decoded["outcome"].(map[string]any)
		assert.Equal(t, "redirected", outcome["kind"])
		assert.Equal(t, "https://example.com/", outcome["destination"])
	})

	t.Run("should carry the outcome error", func(t *testing.T) {
		conn := &recordingConn{}
		r := sampleReport()
		r.Outcome = flow.Outcome{Kind: flow.Failed, Err: errors.New("net::ERR_NAME_NOT_RESOLVED")}

		require.NoError(t, NewNATSPublisher(conn, "s").Publish(context.Background(), r))
		assert.Contains(t, string(conn.payloads[0]), `"error":"net::ERR_NAME_NOT_RESOLVED"`)
	})

	t.Run("should wrap connection errors", func(t *testing.T) {
		boom := errors.New("nats: connection closed")
		p := NewNATSPublisher(&recordingConn{err: boom}, "s")
		assert.ErrorIs(t, p.Publish(context.Background(), sampleReport()), boom)
	})
}

func TestLogPublisher(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	p := NewLogPublisher(zap.New(core))

	require.NoError(t, p.Publish(context.Background(), sampleReport()))
	r := sampleReport()
	r.Outcome = flow.Outcome{Kind: flow.InvalidDestination}
	require.NoError(t, p.Publish(context.Background(), r))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "direct", entries[0].ContextMap()["tier"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
}

func TestMulti(t *testing.T) {
	var got []string
	ok := Func(func(_ context.Context, r Report) error { got = append(got, r.VisitID); return nil })
	boom := errors.New("boom")
	failing := Func(func(context.Context, Report) error { return boom })

	err := Multi{ok, failing, ok}.Publish(context.Background(), sampleReport())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"v-1", "v-1"}, got)
}
