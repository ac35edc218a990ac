package browser

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ace221390/work.ink/internal/humanoid"
	"github.com/ace221390/work.ink/internal/page"
)

func TestCombineContext(t *testing.T) {
	t.Run("should cancel when the operation context is done", func(t *testing.T) {
		type key struct{}
		session := context.WithValue(context.Background(), key{}, "tab")
		op, cancelOp := context.WithCancel(context.Background())

		combined, cancel := CombineContext(session, op)
		defer cancel()
		assert.Equal(t, "tab", combined.Value(key{}))

		cancelOp()
		select {
		case <-combined.Done():
		case <-time.After(time.Second):
			t.Fatal("combined context was not cancelled")
		}
	})

	t.Run("should cancel when the session context is done", func(t *testing.T) {
		session, cancelSession := context.WithCancel(context.Background())
		combined, cancel := CombineContext(session, context.Background())
		defer cancel()

		cancelSession()
		<-combined.Done()
		assert.ErrorIs(t, combined.Err(), context.Canceled)
	})
}

// devtoolsServer serves the DevTools HTTP endpoints of a browser with the given targets.
func devtoolsServer(t *testing.T, targets []map[string]string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"Browser":              "HeadlessChrome/120.0.0.0",
			"Protocol-Version":     "1.3",
			"webSocketDebuggerUrl": "ws://127.0.0.1:9222/devtools/browser/abc",
		})
	})
	mux.HandleFunc("/json/list", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(targets)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestResolveRemote(t *testing.T) {
	targets := []map[string]string{
		{"id": "W1", "type": "service_worker", "url": "https://work.ink/sw.js"},
		{"id": "P1", "type": "page", "url": "https://my-site.co/"},
		{"id": "P2", "type": "page", "url": "https://work.ink/"},
	}
	server := devtoolsServer(t, targets)
	ctx := context.Background()

	t.Run("should pick the first page", func(t *testing.T) {
		remote, err := ResolveRemote(ctx, server.URL, "")
		require.NoError(t, err)
		assert.Equal(t, "ws://127.0.0.1:9222/devtools/browser/abc", remote.WebSocketURL)
		assert.Equal(t, "P1", remote.TargetID)
	})

	t.Run("should pick the requested page", func(t *testing.T) {
		remote, err := ResolveRemote(ctx, server.URL, "P2")
		require.NoError(t, err)
		assert.Equal(t, "P2", remote.TargetID)
	})

	t.Run("should reject an unknown or non-page target", func(t *testing.T) {
		_, err := ResolveRemote(ctx, server.URL, "W1")
		assert.ErrorIs(t, err, ErrNoTarget)
	})

	t.Run("should fail without pages", func(t *testing.T) {
		empty := devtoolsServer(t, nil)
		_, err := ResolveRemote(ctx, empty.URL, "")
		assert.ErrorIs(t, err, ErrNoTarget)
	})
}

func TestMouseEvent(t *testing.T) {
	p := mouseEvent(humanoid.MouseEventData{
		Type:       humanoid.MousePress,
		X:          10.5,
		Y:          20,
		Button:     humanoid.ButtonLeft,
		Buttons:    1,
		ClickCount: 1,
	})
	assert.Equal(t, input.MousePressed, p.Type)
	assert.Equal(t, 10.5, p.X)
	assert.Equal(t, 20.0, p.Y)
	assert.Equal(t, input.Left, p.Button)
	assert.Equal(t, int64(1), p.Buttons)
	assert.Equal(t, int64(1), p.ClickCount)

	move := mouseEvent(humanoid.MouseEventData{Type: humanoid.MouseMove, X: 1, Y: 2})
	assert.Equal(t, input.MouseMoved, move.Type)
	assert.Zero(t, move.ClickCount)
}

func TestKeyEvents(t *testing.T) {
	down, up := keyEvents(page.Enter)
	assert.Equal(t, input.KeyDown, down.Type)
	assert.Equal(t, "Enter", down.Key)
	assert.Equal(t, "\r", down.Text)
	assert.Equal(t, int64(13), down.WindowsVirtualKeyCode)
	assert.Equal(t, input.KeyUp, up.Type)
	assert.Empty(t, up.Text)
}

func TestControlWithoutBackendNode(t *testing.T) {
	c := &control{view: &pageView{tab: &Tab{ctx: context.Background()}}}
	assert.ErrorIs(t, c.Activate(context.Background()), page.ErrNoElement)
	_, err := c.Center(context.Background())
	assert.ErrorIs(t, err, page.ErrNoElement)
}
