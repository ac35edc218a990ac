package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/ace221390/work.ink/internal/config"
	"github.com/ace221390/work.ink/internal/engine"
)

// Manager owns the browser process (or the connection to a running one) and
// the tabs it watches.
type Manager struct {
	logger *zap.Logger
	cfg    config.BrowserConfig

	// ChromeDP allocator context manages the underlying browser executable.
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc

	// browserCtx is bound to the first tab.
	browserCtx    context.Context
	browserCancel context.CancelFunc

	tabs map[target.ID]*Tab
	mu   sync.Mutex
}

// NewManager launches a browser, or attaches to the one at cfg.RemoteURL.
func NewManager(ctx context.Context, logger *zap.Logger, cfg config.BrowserConfig) (*Manager, error) {
	m := &Manager{
		logger: logger.Named("browser_manager"),
		cfg:    cfg,
		tabs:   make(map[target.ID]*Tab),
	}

	ctxOpts := []chromedp.ContextOption{
		chromedp.WithLogf(m.logger.Sugar().Debugf),
		chromedp.WithErrorf(m.logger.Sugar().Errorf),
	}

	if cfg.RemoteURL != "" {
		remote, err := ResolveRemote(ctx, cfg.RemoteURL, cfg.TargetID)
		if err != nil {
			return nil, err
		}
		m.allocatorCtx, m.allocatorCancel = chromedp.NewRemoteAllocator(context.WithoutCancel(ctx), remote.WebSocketURL)
		ctxOpts = append(ctxOpts, chromedp.WithTargetID(target.ID(remote.TargetID)))
		m.logger.Info("Attaching to running browser",
			zap.String("devtools", cfg.RemoteURL),
			zap.String("target_id", remote.TargetID),
		)
	} else {
		m.allocatorCtx, m.allocatorCancel = chromedp.NewExecAllocator(context.WithoutCancel(ctx), m.generateAllocatorOptions()...)
	}
	// The browser outlives ctx; Shutdown stops it.

	m.browserCtx, m.browserCancel = chromedp.NewContext(m.allocatorCtx, ctxOpts...)

	// Starts the browser (or connects) and attaches the first tab.
	if err := chromedp.Run(m.browserCtx); err != nil {
		m.browserCancel()
		m.allocatorCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	m.logger.Info("Browser manager initialized",
		zap.Bool("headless", cfg.Headless),
		zap.Bool("remote", cfg.RemoteURL != ""),
	)
	return m, nil
}

// generateAllocatorOptions configures the flags for the browser executable.
func (m *Manager) generateAllocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	if !m.cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if m.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(m.cfg.ExecPath))
	}
	if m.cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(m.cfg.UserDataDir))
	}

	opts = append(opts,
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),

		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("metrics-recording-only", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-hang-monitor", true),
		chromedp.Flag("disable-prompt-on-repost", true),

		chromedp.Flag("disable-gpu", m.cfg.Headless),
	)

	for _, arg := range m.cfg.Args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if name == "" {
			continue
		}
		if hasValue {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}

	return opts
}

// Watch reports a visit on out for every main-frame navigation of every page
// tab, including tabs opened later. It returns once discovery is set up.
func (m *Manager) Watch(ctx context.Context, out chan<- engine.Visit) error {
	first := chromedp.FromContext(m.browserCtx)
	if first == nil || first.Target == nil {
		return fmt.Errorf("browser context has no target")
	}
	m.track(m.browserCtx, nil, first.Target.TargetID, out)

	chromedp.ListenBrowser(m.browserCtx, func(ev interface{}) {
		switch ev := ev.(type) {
		case *target.EventTargetCreated:
			if ev.TargetInfo.Type != "page" {
				return
			}
			// Listener callbacks must not block.
			go m.attach(ev.TargetInfo.TargetID, out)
		case *target.EventTargetDestroyed:
			go m.forget(ev.TargetID)
		}
	})

	runCtx, cancel := CombineContext(m.browserCtx, ctx)
	defer cancel()
	if err := chromedp.Run(runCtx, target.SetDiscoverTargets(true)); err != nil {
		return fmt.Errorf("enable target discovery: %w", err)
	}
	return nil
}

// attach starts watching a tab that appeared after the first one.
func (m *Manager) attach(id target.ID, out chan<- engine.Visit) {
	m.mu.Lock()
	_, known := m.tabs[id]
	m.mu.Unlock()
	if known {
		return
	}

	tabCtx, cancel := chromedp.NewContext(m.browserCtx, chromedp.WithTargetID(id))
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		m.logger.Warn("Failed to attach to tab", zap.String("target_id", string(id)), zap.Error(err))
		return
	}
	m.track(tabCtx, cancel, id, out)
}

func (m *Manager) track(tabCtx context.Context, cancel context.CancelFunc, id target.ID, out chan<- engine.Visit) {
	m.mu.Lock()
	if _, known := m.tabs[id]; known {
		m.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return
	}
	t := newTab(tabCtx, cancel, id, m.cfg, m.logger)
	m.tabs[id] = t
	m.mu.Unlock()

	t.watch(out)
	m.logger.Debug("Watching tab", zap.String("target_id", string(id)))
}

func (m *Manager) forget(id target.ID) {
	m.mu.Lock()
	t, ok := m.tabs[id]
	delete(m.tabs, id)
	m.mu.Unlock()
	if ok {
		t.close()
		m.logger.Debug("Tab closed", zap.String("target_id", string(id)))
	}
}

// Open navigates the first tab to rawURL.
func (m *Manager) Open(ctx context.Context, rawURL string) error {
	runCtx, cancel := CombineContext(m.browserCtx, ctx)
	defer cancel()
	return navigate(runCtx, rawURL)
}

// Shutdown detaches from every tab and stops the browser. An attached
// browser is left running.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down browser manager...")

	m.mu.Lock()
	tabs := make([]*Tab, 0, len(m.tabs))
	for _, t := range m.tabs {
		tabs = append(tabs, t)
	}
	m.tabs = make(map[target.ID]*Tab)
	m.mu.Unlock()

	for _, t := range tabs {
		t.close()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if m.cfg.RemoteURL == "" {
			// Closes the browser gracefully before the allocator kills it.
			if err := chromedp.Cancel(m.browserCtx); err != nil {
				m.logger.Debug("Browser close returned an error", zap.Error(err))
			}
		} else {
			m.browserCancel()
		}
		m.allocatorCancel()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("Browser shutdown timed out", zap.Error(ctx.Err()))
		return ctx.Err()
	case <-time.After(15 * time.Second):
		m.logger.Warn("Browser shutdown is taking too long, giving up")
	}

	m.logger.Info("Browser manager shutdown complete.")
	return nil
}
