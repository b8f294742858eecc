// pkg/engine/engine.go
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pixelpilot/internal/config"
	"github.com/xkilldash9x/pixelpilot/pkg/agent"
	"github.com/xkilldash9x/pixelpilot/pkg/browser"
	"github.com/xkilldash9x/pixelpilot/pkg/inference"
)

// shutdownGrace bounds how long Shutdown waits for the browser to confirm
// its exit.
const shutdownGrace = 10 * time.Second

// Engine wires the browser surface, the inference gateway, and the
// orchestrator into one runnable unit. All dependencies are constructed
// here and passed down explicitly; nothing reaches for process-wide state.
type Engine struct {
	logger       *zap.Logger
	cfg          *config.Config
	manager      *browser.Manager
	session      *browser.Session
	gateway      *inference.Gateway
	orchestrator *agent.Orchestrator
}

// New builds a fully wired engine: launches the browser, opens the surface
// session, and connects the inference backend.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	manager, err := browser.NewManager(ctx, logger, cfg.Browser)
	if err != nil {
		return nil, err
	}

	session, err := manager.NewSession(ctx)
	if err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = manager.Shutdown(shutdownCtx)
		return nil, err
	}

	client, err := inference.NewGeminiClient(ctx, logger, cfg.LLM, agent.SystemPrompt)
	if err != nil {
		session.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = manager.Shutdown(shutdownCtx)
		return nil, err
	}

	gateway := inference.NewGateway(logger, client, cfg.LLM.RequestsPerMinute)

	var viz agent.Visualizer
	if cfg.Browser.Overlay {
		viz = browser.NewOverlay(logger, session)
	} else {
		viz = browser.NewLogVisualizer(logger)
	}

	dispatcher := agent.NewDispatcher(logger, session, session, viz)
	orchestrator := agent.NewOrchestrator(logger, session, gateway, dispatcher, agent.Options{
		CaptureTimeout: cfg.Agent.CaptureTimeout,
		SettleDelay:    cfg.Agent.SettleDelay,
	})

	return &Engine{
		logger:       logger.Named("engine"),
		cfg:          cfg,
		manager:      manager,
		session:      session,
		gateway:      gateway,
		orchestrator: orchestrator,
	}, nil
}

// Orchestrator exposes the task loop to callers.
func (e *Engine) Orchestrator() *agent.Orchestrator { return e.orchestrator }

// Navigate points the surface at a URL before a task starts.
func (e *Engine) Navigate(ctx context.Context, url string) error {
	return e.session.Navigate(ctx, url)
}

// Ask performs an ad hoc screenshot-plus-question exchange. It queues
// behind any in-flight loop call and leaves the task conversation alone.
func (e *Engine) Ask(ctx context.Context, question string) (string, error) {
	capCtx, cancel := context.WithTimeout(ctx, e.cfg.Agent.CaptureTimeout)
	frame, err := e.session.Capture(capCtx)
	cancel()
	if err != nil {
		return "", fmt.Errorf("capture failed: %w", err)
	}
	return e.gateway.Ask(ctx, frame, question)
}

// Shutdown tears the engine down: session first, then the browser process,
// bounded by a grace period.
func (e *Engine) Shutdown() {
	e.logger.Info("Engine shutting down...")
	e.session.Close()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := e.manager.Shutdown(ctx); err != nil {
		e.logger.Warn("Browser shutdown incomplete", zap.Error(err))
	}
}
