package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	cdpdom "github.com/chromedp/cdproto/dom"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/ace221390/work.ink/internal/config"
	"github.com/ace221390/work.ink/internal/dom"
	"github.com/ace221390/work.ink/internal/engine"
	"github.com/ace221390/work.ink/internal/page"
)

// navQueueSize bounds the main-frame navigations waiting to be reported.
const navQueueSize = 16

// Tab is one watched browser tab.
type Tab struct {
	id     target.ID
	ctx    context.Context
	cancel context.CancelFunc
	cfg    config.BrowserConfig
	logger *zap.Logger

	navs      chan *url.URL
	closeOnce sync.Once
}

func newTab(ctx context.Context, cancel context.CancelFunc, id target.ID, cfg config.BrowserConfig, logger *zap.Logger) *Tab {
	return &Tab{
		id:     id,
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
		logger: logger.With(zap.String("target_id", string(id))),
		navs:   make(chan *url.URL, navQueueSize),
	}
}

func (t *Tab) ID() string { return string(t.id) }

// watch reports every main-frame navigation on out, in order.
func (t *Tab) watch(out chan<- engine.Visit) {
	chromedp.ListenTarget(t.ctx, func(ev interface{}) {
		nav, ok := ev.(*cdppage.EventFrameNavigated)
		if !ok || nav.Frame == nil || nav.Frame.ParentID != "" {
			return
		}
		u, err := url.Parse(nav.Frame.URL + nav.Frame.URLFragment)
		if err != nil {
			t.logger.Debug("Ignoring unparsable frame URL", zap.String("url", nav.Frame.URL), zap.Error(err))
			return
		}
		select {
		case t.navs <- u:
		default:
			t.logger.Warn("Navigation queue full, dropping page load", zap.String("url", u.String()))
		}
	})

	go func() {
		for {
			select {
			case <-t.ctx.Done():
				return
			case u := <-t.navs:
				select {
				case out <- engine.Visit{TabID: t.ID(), Page: t.view(u)}:
				case <-t.ctx.Done():
					return
				}
			}
		}
	}()

	// The page already loaded in an attached tab counts as a visit.
	go func() {
		var current string
		if err := chromedp.Run(t.ctx, chromedp.Location(&current)); err != nil {
			t.logger.Debug("Could not read current location", zap.Error(err))
			return
		}
		if u, err := url.Parse(current); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
			select {
			case t.navs <- u:
			default:
			}
		}
	}()
}

func (t *Tab) close() {
	t.closeOnce.Do(func() {
		if t.cancel != nil {
			t.cancel()
		}
	})
}

func (t *Tab) view(u *url.URL) *pageView {
	return &pageView{tab: t, url: u}
}

// pageView is one load of a document in a tab.
type pageView struct {
	tab *Tab
	url *url.URL
}

var _ page.Page = (*pageView)(nil)

// run executes actions on the tab, bounded by ctx and timeout.
func (v *pageView) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(v.tab.ctx, ctx)
	defer cancel()
	if timeout > 0 {
		var tcancel context.CancelFunc
		runCtx, tcancel = context.WithTimeout(runCtx, timeout)
		defer tcancel()
	}
	return chromedp.Run(runCtx, actions...)
}

func (v *pageView) URL() *url.URL {
	u := *v.url
	return &u
}

func (v *pageView) Title(ctx context.Context) (string, error) {
	var title string
	if err := v.run(ctx, v.tab.cfg.ActionTimeout, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("read title: %w", err)
	}
	return title, nil
}

func (v *pageView) Snapshot(ctx context.Context) (*dom.Document, error) {
	var nodes []*cdp.Node
	err := v.run(ctx, v.tab.cfg.ActionTimeout,
		chromedp.Nodes("html", &nodes, chromedp.ByQuery, chromedp.Populate(-1, true)))
	if err != nil {
		return nil, fmt.Errorf("snapshot document: %w", err)
	}
	if len(nodes) == 0 {
		return nil, page.ErrNoElement
	}
	return dom.FromCDP(nodes[0]), nil
}

func (v *pageView) Navigate(ctx context.Context, targetURL string) error {
	runCtx, cancel := CombineContext(v.tab.ctx, ctx)
	defer cancel()
	if d := v.tab.cfg.NavigationTimeout; d > 0 {
		var tcancel context.CancelFunc
		runCtx, tcancel = context.WithTimeout(runCtx, d)
		defer tcancel()
	}
	return navigate(runCtx, targetURL)
}

func (v *pageView) Replace(ctx context.Context, targetURL string) error {
	quoted, err := json.Marshal(targetURL)
	if err != nil {
		return fmt.Errorf("encode target: %w", err)
	}
	expr := fmt.Sprintf("location.replace(%s)", quoted)
	return v.run(ctx, v.tab.cfg.NavigationTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		_, exc, err := runtime.Evaluate(expr).Do(ctx)
		if err != nil {
			return fmt.Errorf("replace location: %w", err)
		}
		if exc != nil {
			return fmt.Errorf("replace location: %s", exc.Text)
		}
		return nil
	}))
}

func (v *pageView) ObserveTitle(ctx context.Context) (<-chan struct{}, error) {
	return v.observe(ctx)
}

func (v *pageView) ObserveMutations(ctx context.Context) (<-chan struct{}, error) {
	return v.observe(ctx)
}

// observe signals after DOM changes reported by the browser. The whole tree is
// requested first; the browser only reports changes to nodes sent to us.
func (v *pageView) observe(ctx context.Context) (<-chan struct{}, error) {
	var nodes []*cdp.Node
	err := v.run(ctx, v.tab.cfg.ActionTimeout,
		chromedp.Nodes("html", &nodes, chromedp.ByQuery, chromedp.Populate(-1, true)))
	if err != nil {
		return nil, fmt.Errorf("track document: %w", err)
	}

	lctx, cancel := CombineContext(v.tab.ctx, ctx)
	ch := make(chan struct{}, 1)
	var (
		mu     sync.Mutex
		closed bool
	)

	chromedp.ListenTarget(lctx, func(ev interface{}) {
		switch ev.(type) {
		case *cdpdom.EventChildNodeInserted, *cdpdom.EventChildNodeRemoved,
			*cdpdom.EventChildNodeCountUpdated, *cdpdom.EventCharacterDataModified,
			*cdpdom.EventAttributeModified, *cdpdom.EventAttributeRemoved,
			*cdpdom.EventSetChildNodes, *cdpdom.EventDocumentUpdated:
		default:
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- struct{}{}:
		default:
		}
	})

	go func() {
		<-lctx.Done()
		cancel()
		mu.Lock()
		closed = true
		close(ch)
		mu.Unlock()
	}()
	return ch, nil
}

func (v *pageView) Control(el dom.Element) page.Control {
	return &control{view: v, backendID: el.BackendID}
}

// navigate starts loading targetURL in the tab bound to ctx without waiting
// for the load; the tab's context outlives the page that asked for it.
func navigate(ctx context.Context, targetURL string) error {
	return chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, errText, err := cdppage.Navigate(targetURL).Do(ctx)
		if err != nil {
			return fmt.Errorf("navigate to %s: %w", targetURL, err)
		}
		if errText != "" {
			return fmt.Errorf("navigate to %s: %s", targetURL, errText)
		}
		return nil
	}))
}
