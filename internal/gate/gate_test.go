package gate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ace221390/work.ink/internal/actuator"
	"github.com/ace221390/work.ink/internal/flow"
	"github.com/ace221390/work.ink/internal/humanoid"
	"github.com/ace221390/work.ink/internal/locator"
	"github.com/ace221390/work.ink/internal/mocks"
	"github.com/ace221390/work.ink/internal/page/pagetest"
	"github.com/ace221390/work.ink/internal/store"
	"github.com/ace221390/work.ink/internal/watch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	slot       = "workink_redirect_dest"
	agreePage  = `<html><body><button mode="primary" size="large"><span>AGREE</span></button></body></html>`
	loaderPage = `<html><body><div class="spinner"></div></body></html>`
)

type timings struct {
	titlePoll, titleTimeout   time.Duration
	searchPoll, searchTimeout time.Duration
	settle                    time.Duration
}

func fast() timings {
	return timings{
		titlePoll:     20 * time.Millisecond,
		titleTimeout:  2 * time.Second,
		searchPoll:    10 * time.Millisecond,
		searchTimeout: 200 * time.Millisecond,
		settle:        30 * time.Millisecond,
	}
}

func production() timings {
	return timings{
		titlePoll:     500 * time.Millisecond,
		titleTimeout:  120 * time.Second,
		searchPoll:    250 * time.Millisecond,
		searchTimeout: 5 * time.Second,
		settle:        2 * time.Second,
	}
}

func newDetector(t *testing.T, tm timings) *Detector {
	t.Helper()
	d, err := NewDetector("Just a", tm.titlePoll, tm.titleTimeout, zap.NewNop())
	require.NoError(t, err)
	return d
}

func newHandler(t *testing.T, st store.Store, tm timings) *Handler {
	t.Helper()
	loc, err := locator.New(locator.Settings{
		Label:      "AGREE",
		LabelTag:   "span",
		ControlTag: "button",
		Hints:      []string{`button[mode="primary"][size="large"]`, `button[mode="primary"]`, `button[size="large"]`, `button`},
	}, zap.NewNop())
	require.NoError(t, err)

	return NewHandler(Settings{
		FallbackParam:  "__dest",
		SearchInterval: tm.searchPoll,
		SearchTimeout:  tm.searchTimeout,
		SettleDelay:    tm.settle,
	},
		store.NewHandoff(st, slot, zap.NewNop()),
		newDetector(t, tm),
		loc,
		actuator.New(zap.NewNop(), humanoid.DefaultConfig(), time.Second),
		zap.NewNop(),
	)
}

func storeWith(t *testing.T, dest string) *store.Memory {
	t.Helper()
	m := store.NewMemory()
	if dest != "" {
		require.NoError(t, m.Set(context.Background(), slot, dest))
	}
	return m
}

func pending(t *testing.T, m *store.Memory) string {
	t.Helper()
	v, err := m.Get(context.Background(), slot, "")
	require.NoError(t, err)
	return v
}

func TestChallengeActive(t *testing.T) {
	d := newDetector(t, fast())
	testCases := map[string]bool{
		"Just a moment...":   true,
		"just a second":      true,
		"JUST A MOMENT":      true,
		"Welcome":            false,
		"":                   false,
		"Work.ink - Just a…": true,
	}
	for title, want := range testCases {
		assert.Equal(t, want, d.ChallengeActive(title), title)
	}
}

func TestWaitReady(t *testing.T) {
	t.Run("should resolve immediately when no challenge is shown", func(t *testing.T) {
		p := pagetest.New("https://work.ink/")
		p.SetTitle("Welcome")

		trig := newDetector(t, fast()).WaitReady(context.Background(), p)

		assert.Equal(t, watch.Immediate, trig)
		title, mut := p.Observers()
		assert.Zero(t, title)
		assert.Zero(t, mut)
	})

	t.Run("should resolve on the title change signal", func(t *testing.T) {
		tm := fast()
		tm.titlePoll = time.Hour
		p := pagetest.New("https://work.ink/")
		p.SetTitle("Just a moment...")
		go func() {
			time.Sleep(50 * time.Millisecond)
			p.SetTitle("Welcome")
		}()

		trig := newDetector(t, tm).WaitReady(context.Background(), p)

		assert.Equal(t, watch.Signal, trig)
		title, _ := p.Observers()
		assert.Zero(t, title, "title observer should be torn down")
	})

	t.Run("should resolve on the poll when observation fails", func(t *testing.T) {
		p := pagetest.New("https://work.ink/")
		p.ObserveErr = errors.New("DOM domain not enabled")
		p.SetTitle("Just a moment...")
		go func() {
			time.Sleep(50 * time.Millisecond)
			p.SetTitleQuietly("Welcome")
		}()

		trig := newDetector(t, fast()).WaitReady(context.Background(), p)
		assert.Equal(t, watch.Poll, trig)
	})

	t.Run("should give up at the timeout bound", func(t *testing.T) {
		tm := fast()
		tm.titleTimeout = 150 * time.Millisecond
		p := pagetest.New("https://work.ink/")
		p.SetTitle("Just a moment...")

		start := time.Now()
		trig := newDetector(t, tm).WaitReady(context.Background(), p)
		elapsed := time.Since(start)

		assert.Equal(t, watch.Timeout, trig)
		assert.GreaterOrEqual(t, elapsed, 150*time.Millisecond)
		assert.Less(t, elapsed, time.Second)
		title, _ := p.Observers()
		assert.Zero(t, title)
	})
}

func TestHandle(t *testing.T) {
	ctx := context.Background()

	t.Run("should do nothing without a destination", func(t *testing.T) {
		p := pagetest.New("https://work.ink/")
		p.SetTitle("Just a moment...")

		out := newHandler(t, store.NewMemory(), fast()).Handle(ctx, p)

		assert.Equal(t, flow.NoOp, out.Kind)
		assert.Empty(t, p.Navigations())
		_, snapshots := p.Reads()
		assert.Zero(t, snapshots)
	})

	t.Run("should prefer the stored destination over the query", func(t *testing.T) {
		st := storeWith(t, "https://a.example/from-store")
		p := pagetest.New("https://work.ink/?__dest=https%3A%2F%2Fb.example%2Ffrom-query")
		p.SetTitle("Welcome")
		p.SetHTML(agreePage)

		out := newHandler(t, st, fast()).Handle(ctx, p)

		assert.Equal(t, flow.Redirected, out.Kind)
		assert.Equal(t, "store", out.Source)
		navs := p.Navigations()
		require.Len(t, navs, 1)
		assert.Equal(t, "https://a.example/from-store", navs[0].URL)
		assert.False(t, navs[0].Replace)
		assert.Empty(t, pending(t, st))
	})

	t.Run("should use the query fallback when the store is empty", func(t *testing.T) {
		p := pagetest.New("https://work.ink/?__dest=https%3A%2F%2Fexample.com%2Fpage%3Fx%3D1")
		p.SetTitle("Welcome")
		p.SetHTML(agreePage)

		out := newHandler(t, store.NewMemory(), fast()).Handle(ctx, p)

		assert.Equal(t, flow.Redirected, out.Kind)
		assert.Equal(t, "query", out.Source)
		assert.Equal(t, "https://example.com/page?x=1", out.Destination)
		assert.Equal(t, string(actuator.TierDirect), out.Tier)
	})

	t.Run("should keep a query fallback with a stray percent", func(t *testing.T) {
		p := pagetest.New("https://work.ink/?__dest=https://example.com/sale?off=100%")
		p.SetTitle("Welcome")
		p.SetHTML(agreePage)

		out := newHandler(t, store.NewMemory(), fast()).Handle(ctx, p)

		assert.Equal(t, flow.Redirected, out.Kind)
		assert.Equal(t, "query", out.Source)
		navs := p.Navigations()
		require.Len(t, navs, 1)
		assert.Equal(t, "https://example.com/sale?off=100%", navs[0].URL)
	})

	t.Run("should read the store once and treat a failure as absent", func(t *testing.T) {
		st := new(mocks.MockStore)
		st.On("Get", mock.Anything, slot, "").Return("", store.ErrUnavailable).Once()
		st.On("Delete", mock.Anything, slot).Return(store.ErrUnavailable).Once()

		p := pagetest.New("https://work.ink/?__dest=https%3A%2F%2Fexample.com%2F")
		p.SetTitle("Welcome")
		p.SetHTML(agreePage)

		out := newHandler(t, st, fast()).Handle(ctx, p)

		assert.Equal(t, flow.Redirected, out.Kind)
		assert.Equal(t, "https://example.com/", out.Destination)
		st.AssertExpectations(t)
		st.AssertNumberOfCalls(t, "Get", 1)
	})

	t.Run("should clear an invalid destination without navigating", func(t *testing.T) {
		st := storeWith(t, "http://")
		p := pagetest.New("https://work.ink/")
		p.SetTitle("Welcome")
		p.SetHTML(agreePage)

		out := newHandler(t, st, fast()).Handle(ctx, p)

		assert.Equal(t, flow.InvalidDestination, out.Kind)
		assert.Error(t, out.Err)
		assert.Empty(t, pending(t, st))
		assert.Empty(t, p.Navigations())
		assert.Empty(t, p.Controls(), "no control should be touched")
	})

	t.Run("should resolve a relative destination against the gate URL", func(t *testing.T) {
		st := storeWith(t, "/after")
		p := pagetest.New("https://work.ink/abc")
		p.SetTitle("Welcome")
		p.SetHTML(agreePage)

		out := newHandler(t, st, fast()).Handle(ctx, p)

		assert.Equal(t, flow.Redirected, out.Kind)
		assert.Equal(t, "https://work.ink/after", out.Destination)
	})

	t.Run("should find a control that appears after a mutation", func(t *testing.T) {
		tm := fast()
		tm.searchPoll = time.Hour
		tm.searchTimeout = 2 * time.Second
		st := storeWith(t, "https://example.com/")
		p := pagetest.New("https://work.ink/")
		p.SetTitle("Welcome")
		p.SetHTML(loaderPage)
		go func() {
			time.Sleep(50 * time.Millisecond)
			p.SetHTML(agreePage)
		}()

		out := newHandler(t, st, tm).Handle(ctx, p)

		assert.Equal(t, flow.Redirected, out.Kind)
		assert.Equal(t, string(actuator.TierDirect), out.Tier)
		_, mut := p.Observers()
		assert.Zero(t, mut, "mutation observer should be torn down")
	})

	t.Run("should navigate anyway when the control never appears", func(t *testing.T) {
		tm := fast()
		st := storeWith(t, "https://example.com/")
		p := pagetest.New("https://work.ink/")
		p.SetTitle("Welcome")
		p.SetHTML(loaderPage)

		start := time.Now()
		out := newHandler(t, st, tm).Handle(ctx, p)

		assert.Equal(t, flow.Redirected, out.Kind)
		assert.Equal(t, string(actuator.TierNone), out.Tier)
		assert.Empty(t, pending(t, st))
		navs := p.Navigations()
		require.Len(t, navs, 1)
		assert.Equal(t, "https://example.com/", navs[0].URL)
		assert.GreaterOrEqual(t, navs[0].At.Sub(start), tm.searchTimeout+tm.settle)
		assert.Empty(t, p.Controls())
	})

	t.Run("should report a failed final navigation", func(t *testing.T) {
		st := storeWith(t, "https://example.com/")
		p := pagetest.New("https://work.ink/")
		p.SetTitle("Welcome")
		p.SetHTML(agreePage)
		p.NavigateErr = errors.New("net::ERR_ABORTED")

		out := newHandler(t, st, fast()).Handle(ctx, p)

		assert.Equal(t, flow.Failed, out.Kind)
		assert.ErrorContains(t, out.Err, "ERR_ABORTED")
	})

	t.Run("should abort when the page goes away during the challenge", func(t *testing.T) {
		st := storeWith(t, "https://example.com/")
		p := pagetest.New("https://work.ink/")
		p.SetTitle("Just a moment...")
		cctx, cancel := context.WithCancel(ctx)
		go func() {
			time.Sleep(50 * time.Millisecond)
			cancel()
		}()

		out := newHandler(t, st, fast()).Handle(cctx, p)

		assert.Equal(t, flow.Aborted, out.Kind)
		assert.Empty(t, p.Navigations())
		assert.Equal(t, "https://example.com/", pending(t, st), "slot is kept for the next load")
	})
}

func TestProceedIsIdempotent(t *testing.T) {
	st := storeWith(t, "https://example.com/")
	h := newHandler(t, st, fast())
	p := pagetest.New("https://work.ink/")
	p.SetTitle("Welcome")
	p.SetHTML(agreePage)
	v := &visit{h: h, page: p, dest: "https://example.com/", source: "store", logger: zap.NewNop()}

	var wg sync.WaitGroup
	results := make([]bool, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = v.proceed(context.Background())
		}(i)
	}
	wg.Wait()

	ran := 0
	for _, r := range results {
		if r {
			ran++
		}
	}
	assert.Equal(t, 1, ran)
	assert.Len(t, p.Navigations(), 1)
	controls := p.Controls()
	require.Len(t, controls, 1)
	assert.Equal(t, 1, controls[0].Stats().Activations)
}

// TestGateScenario plays the whole gate flow with production timings: the
// challenge clears and the consent button renders 800ms after load.
func TestGateScenario(t *testing.T) {
	if testing.Short() {
		t.Skip("uses production timings")
	}
	st := storeWith(t, "https://example.com/page")
	p := pagetest.New("https://work.ink/")
	p.SetTitle("Just a moment...")
	p.SetHTML(loaderPage)

	go func() {
		time.Sleep(800 * time.Millisecond)
		p.SetHTMLQuietly(agreePage)
		p.SetTitle("Welcome")
	}()

	start := time.Now()
	out := newHandler(t, st, production()).Handle(context.Background(), p)

	require.Equal(t, flow.Redirected, out.Kind)
	assert.Equal(t, string(watch.Signal), out.Challenge)
	assert.Equal(t, string(actuator.TierDirect), out.Tier)
	assert.Empty(t, pending(t, st))

	navs := p.Navigations()
	require.Len(t, navs, 1)
	assert.Equal(t, "https://example.com/page", navs[0].URL)
	assert.False(t, navs[0].Replace)
	assert.GreaterOrEqual(t, navs[0].At.Sub(start), 2800*time.Millisecond)
	assert.Less(t, navs[0].At.Sub(start), 4*time.Second)

	controls := p.Controls()
	require.Len(t, controls, 1)
	assert.Equal(t, 1, controls[0].Stats().Activations)
	title, mut := p.Observers()
	assert.Zero(t, title)
	assert.Zero(t, mut)
}
