package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/ace221390/work.ink/internal/actuator"
	"github.com/ace221390/work.ink/internal/browser"
	"github.com/ace221390/work.ink/internal/config"
	"github.com/ace221390/work.ink/internal/engine"
	"github.com/ace221390/work.ink/internal/events"
	"github.com/ace221390/work.ink/internal/gate"
	"github.com/ace221390/work.ink/internal/locator"
	"github.com/ace221390/work.ink/internal/observability"
	"github.com/ace221390/work.ink/internal/origin"
	"github.com/ace221390/work.ink/internal/store"
)

// visitQueueSize buffers page loads between the tabs and the engine.
const visitQueueSize = 64

// Components holds every service a browsing session needs.
type Components struct {
	Store   store.Store
	Handoff *store.Handoff
	Browser *browser.Manager
	Engine  *engine.Engine
	NATS    *nats.Conn
	Visits  chan engine.Visit

	closeStore store.Closer
}

// Shutdown releases the components in reverse dependency order. The engine
// must already be stopped, or its context cancelled.
func (c *Components) Shutdown() {
	logger := observability.GetLogger()
	logger.Debug("Beginning components shutdown sequence.")

	if c.Engine != nil {
		c.Engine.Stop()
		logger.Debug("Visit engine stopped.")
	}

	if c.Browser != nil {
		// The run context is usually cancelled by now.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := c.Browser.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error during browser manager shutdown.", zap.Error(err))
		}
	}

	if c.NATS != nil {
		if err := c.NATS.Drain(); err != nil {
			logger.Warn("Error draining NATS connection.", zap.Error(err))
		}
	}

	if c.closeStore != nil {
		if err := c.closeStore(); err != nil {
			logger.Warn("Error closing store.", zap.Error(err))
		}
	}
	logger.Info("All components shut down.")
}

// ComponentFactory builds the components for a command. extra receives every
// visit report in addition to the configured publishers.
type ComponentFactory interface {
	Create(ctx context.Context, cfg *config.Config, extra events.Publisher) (*Components, error)
}

type concreteFactory struct{}

func NewComponentFactory() ComponentFactory {
	return &concreteFactory{}
}

// Create wires the store, handlers, engine and browser.
func (f *concreteFactory) Create(ctx context.Context, cfg *config.Config, extra events.Publisher) (c *Components, err error) {
	logger := observability.GetLogger()
	c = &Components{Visits: make(chan engine.Visit, visitQueueSize)}

	// Ensure cleanup happens if initialization fails midway.
	defer func() {
		if err != nil {
			logger.Error("Component initialization failed, cleaning up.", zap.Error(err))
			c.Shutdown()
			c = nil
		}
	}()

	c.Store, c.closeStore, err = store.Open(ctx, cfg.Store, logger)
	if err != nil {
		return c, fmt.Errorf("failed to open store: %w", err)
	}
	c.Handoff = store.NewHandoff(c.Store, cfg.Store.Key, logger)

	originH, gateH, err := NewHandlers(cfg, c.Handoff, logger)
	if err != nil {
		return c, err
	}

	publishers := events.Multi{events.NewLogPublisher(logger)}
	if cfg.Events.NATSURL != "" {
		c.NATS, err = events.ConnectNATS(cfg.Events.NATSURL, logger)
		if err != nil {
			return c, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		publishers = append(publishers, events.NewNATSPublisher(c.NATS, cfg.Events.Subject))
	}
	if extra != nil {
		publishers = append(publishers, extra)
	}

	c.Engine = engine.New(logger, engine.NewRouter(cfg.Origin, cfg.Gate), originH, gateH, publishers)

	c.Browser, err = browser.NewManager(ctx, logger, cfg.Browser)
	if err != nil {
		return c, fmt.Errorf("failed to start browser: %w", err)
	}
	return c, nil
}

// NewHandlers builds the origin and gate handlers from cfg.
func NewHandlers(cfg *config.Config, handoff *store.Handoff, logger *zap.Logger) (*origin.Handler, *gate.Handler, error) {
	originH, err := origin.NewHandler(origin.Settings{
		Param:         cfg.Origin.Param,
		GateRoot:      cfg.Gate.RootURL,
		FallbackParam: cfg.Gate.FallbackParam,
	}, handoff, logger)
	if err != nil {
		return nil, nil, err
	}

	detector, err := gate.NewDetector(cfg.Gate.TitlePattern, cfg.Gate.TitlePollInterval, cfg.Gate.TitleTimeout, logger)
	if err != nil {
		return nil, nil, err
	}
	loc, err := locator.New(locator.Settings{
		Label:      cfg.Gate.ConsentLabel,
		Hints:      cfg.Gate.Hints,
		LabelTag:   cfg.Gate.LabelTag,
		ControlTag: cfg.Gate.ControlTag,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	act := actuator.New(logger, cfg.Browser.Humanoid, cfg.Browser.ActionTimeout)

	gateH := gate.NewHandler(gate.Settings{
		FallbackParam:  cfg.Gate.FallbackParam,
		SearchInterval: cfg.Gate.SearchPollInterval,
		SearchTimeout:  cfg.Gate.SearchTimeout,
		SettleDelay:    cfg.Gate.SettleDelay,
	}, handoff, detector, loc, act, logger)

	return originH, gateH, nil
}
