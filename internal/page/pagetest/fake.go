// Package pagetest provides an in-memory page.Page for handler tests.
package pagetest

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/ace221390/work.ink/internal/dom"
	"github.com/ace221390/work.ink/internal/humanoid"
	"github.com/ace221390/work.ink/internal/page"
	"golang.org/x/net/html"
)

// Navigation is one recorded navigation request.
type Navigation struct {
	URL     string
	Replace bool
	At      time.Time
}

// ControlBehavior configures the controls a Fake hands out.
type ControlBehavior struct {
	ActivateErr error
	CenterErr   error
	DispatchErr error
	KeyErr      error
	Center      humanoid.Vector2D
}

// Fake is a scriptable page. Tests change its title and markup while a
// handler runs; subscribers are signalled the way a browser would.
type Fake struct {
	mu            sync.Mutex
	url           *url.URL
	title         string
	doc           *dom.Document
	titleSub      map[chan struct{}]struct{}
	mutSub        map[chan struct{}]struct{}
	navs          []Navigation
	controls      map[*html.Node]*Control
	titleReads    int
	snapshotReads int

	TitleErr    error
	SnapshotErr error
	ObserveErr  error
	NavigateErr error
	Behavior    ControlBehavior
}

var _ page.Page = (*Fake)(nil)

// New creates a Fake at rawURL with an empty document.
func New(rawURL string) *Fake {
	u, err := url.Parse(rawURL)
	if err != nil {
		panic(err)
	}
	return &Fake{
		url:      u,
		doc:      dom.MustParse(""),
		titleSub: map[chan struct{}]struct{}{},
		mutSub:   map[chan struct{}]struct{}{},
		controls: map[*html.Node]*Control{},
		Behavior: ControlBehavior{Center: humanoid.Vector2D{X: 320, Y: 240}},
	}
}

// SetTitle changes the title and signals title observers.
func (f *Fake) SetTitle(title string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.title = title
	notify(f.titleSub)
}

// SetHTML replaces the document and signals mutation observers.
func (f *Fake) SetHTML(markup string) {
	doc := dom.MustParse(markup)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.doc = doc
	notify(f.mutSub)
}

// SetHTMLQuietly replaces the document without signalling, as if observation had failed.
func (f *Fake) SetHTMLQuietly(markup string) {
	doc := dom.MustParse(markup)
	f.mu.Lock()
	f.doc = doc
	f.mu.Unlock()
}

// SetTitleQuietly changes the title without signalling.
func (f *Fake) SetTitleQuietly(title string) {
	f.mu.Lock()
	f.title = title
	f.mu.Unlock()
}

// Navigations returns the recorded navigation requests.
func (f *Fake) Navigations() []Navigation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Navigation(nil), f.navs...)
}

// Controls returns every control handed out so far.
func (f *Fake) Controls() []*Control {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Control, 0, len(f.controls))
	for _, c := range f.controls {
		out = append(out, c)
	}
	return out
}

// Observers returns the number of live title and mutation subscriptions.
func (f *Fake) Observers() (title, mutations int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.titleSub), len(f.mutSub)
}

// Reads returns how many times the title and the DOM were read.
func (f *Fake) Reads() (title, snapshots int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.titleReads, f.snapshotReads
}

func (f *Fake) URL() *url.URL { return f.url }

func (f *Fake) Title(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titleReads++
	if f.TitleErr != nil {
		return "", f.TitleErr
	}
	return f.title, ctx.Err()
}

func (f *Fake) Snapshot(ctx context.Context) (*dom.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshotReads++
	if f.SnapshotErr != nil {
		return nil, f.SnapshotErr
	}
	return f.doc, ctx.Err()
}

func (f *Fake) Navigate(_ context.Context, target string) error {
	return f.record(target, false)
}

func (f *Fake) Replace(_ context.Context, target string) error {
	return f.record(target, true)
}

func (f *Fake) record(target string, replace bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.NavigateErr != nil {
		return f.NavigateErr
	}
	f.navs = append(f.navs, Navigation{URL: target, Replace: replace, At: time.Now()})
	return nil
}

func (f *Fake) ObserveTitle(ctx context.Context) (<-chan struct{}, error) {
	return f.observe(ctx, f.titleSub)
}

func (f *Fake) ObserveMutations(ctx context.Context) (<-chan struct{}, error) {
	return f.observe(ctx, f.mutSub)
}

func (f *Fake) observe(ctx context.Context, subs map[chan struct{}]struct{}) (<-chan struct{}, error) {
	f.mu.Lock()
	if f.ObserveErr != nil {
		f.mu.Unlock()
		return nil, f.ObserveErr
	}
	ch := make(chan struct{}, 1)
	subs[ch] = struct{}{}
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		delete(subs, ch)
		close(ch)
		f.mu.Unlock()
	}()
	return ch, nil
}

func (f *Fake) Control(el dom.Element) page.Control {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.controls[el.Node]; ok {
		return c
	}
	c := &Control{Element: el, behavior: f.Behavior}
	f.controls[el.Node] = c
	return c
}

// notify must be called with the lock held; subscribers are only closed under it.
func notify(subs map[chan struct{}]struct{}) {
	for ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
