package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ace221390/work.ink/internal/events"
	"github.com/ace221390/work.ink/internal/flow"
	"github.com/ace221390/work.ink/internal/page"
)

// -- Interfaces for Dependency Inversion --

// Handler runs one role's flow against a page load.
type Handler interface {
	Handle(ctx context.Context, p page.Page) flow.Outcome
}

// Visit is one page load in a tab, as reported by the browser.
type Visit struct {
	TabID string
	Page  page.Page
}

const publishTimeout = 5 * time.Second

// running tracks the in-flight visit of a tab.
type running struct {
	id     string
	cancel context.CancelFunc
}

// Engine dispatches page loads to the handler of their role. A newer load of
// a tab cancels the visit still running for that tab.
type Engine struct {
	logger    *zap.Logger
	router    *Router
	handlers  map[Role]Handler
	publisher events.Publisher

	wg       sync.WaitGroup
	mu       sync.Mutex
	inflight map[string]*running
}

func New(logger *zap.Logger, router *Router, origin, gate Handler, publisher events.Publisher) *Engine {
	return &Engine{
		logger:    logger.With(zap.String("component", "visit_engine")),
		router:    router,
		handlers:  map[Role]Handler{RoleOrigin: origin, RoleGate: gate},
		publisher: publisher,
		inflight:  make(map[string]*running),
	}
}

// Start consumes visits until the channel is closed or ctx is done.
func (e *Engine) Start(ctx context.Context, visits <-chan Visit) {
	e.logger.Info("Starting visit engine")
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for {
			select {
			case <-ctx.Done():
				e.cancelAll()
				return
			case v, ok := <-visits:
				if !ok {
					e.logger.Debug("Visit channel closed")
					return
				}
				e.dispatch(ctx, v)
			}
		}
	}()
}

// Stop waits for the dispatcher and every in-flight visit to finish.
func (e *Engine) Stop() {
	e.logger.Info("Stopping visit engine... waiting for visits to finish.")
	e.wg.Wait()
	e.logger.Info("Visit engine stopped gracefully.")
}

func (e *Engine) cancelAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for tab, r := range e.inflight {
		r.cancel()
		delete(e.inflight, tab)
	}
}

// dispatch supersedes the tab's previous visit and starts handling v.
func (e *Engine) dispatch(ctx context.Context, v Visit) {
	u := v.Page.URL()
	role := e.router.Route(u)
	id := uuid.NewString()
	logger := e.logger.With(zap.String("visit_id", id), zap.String("tab_id", v.TabID), zap.String("role", string(role)))

	e.mu.Lock()
	if prev, ok := e.inflight[v.TabID]; ok {
		logger.Debug("Superseding previous visit", zap.String("previous_visit_id", prev.id))
		prev.cancel()
		delete(e.inflight, v.TabID)
	}

	h := e.handlers[role]
	if h == nil {
		e.mu.Unlock()
		e.report(ctx, events.Report{
			VisitID:   id,
			TabID:     v.TabID,
			URL:       u.String(),
			Role:      string(role),
			Outcome:   flow.Outcome{Kind: flow.Ignored},
			StartedAt: time.Now().UTC(),
		}, logger)
		return
	}

	vctx, cancel := context.WithCancel(ctx)
	r := &running{id: id, cancel: cancel}
	e.inflight[v.TabID] = r
	e.wg.Add(1)
	e.mu.Unlock()

	logger.Info("Handling page load", zap.String("url", u.String()))
	go func() {
		defer e.wg.Done()
		defer cancel()

		start := time.Now()
		out := h.Handle(vctx, v.Page)

		e.mu.Lock()
		if e.inflight[v.TabID] == r {
			delete(e.inflight, v.TabID)
		}
		e.mu.Unlock()

		e.report(ctx, events.Report{
			VisitID:   id,
			TabID:     v.TabID,
			URL:       u.String(),
			Role:      string(role),
			Outcome:   out,
			Error:     out.ErrMessage(),
			StartedAt: start.UTC(),
			Duration:  time.Since(start),
		}, logger)
	}()
}

// report publishes r even when ctx is already cancelled.
func (e *Engine) report(ctx context.Context, r events.Report, logger *zap.Logger) {
	if e.publisher == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := e.publisher.Publish(pctx, r); err != nil {
		logger.Warn("Failed to publish visit report", zap.Error(err))
	}
}
