// ABOUTME: Gateway orchestrator that wires the registry, worker client, and HTTP server
// ABOUTME: Manages session lifecycle, message dispatch, and graceful shutdown

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/garapadev/garapasystem-sub001/internal/auth"
	"github.com/garapadev/garapasystem-sub001/internal/config"
	"github.com/garapadev/garapasystem-sub001/internal/dedupe"
	"github.com/garapadev/garapasystem-sub001/internal/session"
	"github.com/garapadev/garapasystem-sub001/internal/worker"
)

// Gateway orchestrates the session gateway components.
// It manages the worker control client, the per-session event channels,
// and the HTTP server the business application talks to.
type Gateway struct {
	config     *config.Config
	registry   *session.Registry
	channels   *worker.ChannelRegistry
	manager    *Manager
	dispatcher *Dispatcher
	httpServer *http.Server
	logger     *slog.Logger

	// serverID identifies this gateway instance
	serverID string

	// dedupe suppresses worker event redeliveries
	dedupe *dedupe.Cache

	// broadcaster pushes inbound messages to subscribers
	broadcaster *Broadcaster
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	verifier := auth.NewStaticVerifier(cfg.Worker.AdminToken)
	registry := session.NewRegistry()
	channels := worker.NewChannelRegistry(logger.With("component", "channels"))
	dedupeCache := dedupe.New(5*time.Minute, 100_000) // TTL 5min, max 100k entries
	broadcaster := NewBroadcaster(logger.With("component", "broadcaster"))

	client := worker.NewClient(worker.ClientConfig{
		BaseURL:       cfg.Worker.BaseURL,
		AdminToken:    cfg.Worker.AdminToken,
		StartTimeout:  cfg.Worker.StartTimeout,
		StatusTimeout: cfg.Worker.StatusTimeout,
		StopTimeout:   cfg.Worker.StopTimeout,
	}, logger.With("component", "worker-client"))

	dialCfg := worker.DialConfig{
		WSURL:      cfg.Worker.WSURL,
		AdminToken: cfg.Worker.AdminToken,
		MaxRetries: cfg.Sessions.MaxRetries,
	}
	dialer := func(ctx context.Context, sessionID string, handler worker.EventHandler) (*worker.Channel, error) {
		return worker.Dial(ctx, dialCfg, sessionID, handler, logger.With("component", "channel", "session", sessionID))
	}

	manager := NewManager(ManagerParams{
		Verifier:    verifier,
		Registry:    registry,
		Channels:    channels,
		Client:      client,
		Dialer:      dialer,
		Broadcaster: broadcaster,
		Dedupe:      dedupeCache,
		Logger:      logger.With("component", "manager"),
		MaxSessions: cfg.Sessions.MaxConcurrent,
	})

	dispatcher := NewDispatcher(DispatcherParams{
		Verifier:          verifier,
		Registry:          registry,
		Channels:          channels,
		Logger:            logger.With("component", "dispatcher"),
		MessageDelay:      cfg.Sessions.MessageDelay,
		AllowedMediaTypes: cfg.Media.AllowedTypes,
	})

	gw := &Gateway{
		config:      cfg,
		registry:    registry,
		channels:    channels,
		manager:     manager,
		dispatcher:  dispatcher,
		logger:      logger.With("component", "gateway"),
		serverID:    generateServerID(),
		dedupe:      dedupeCache,
		broadcaster: broadcaster,
	}

	mux := http.NewServeMux()
	gw.RegisterRoutes(mux)

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// Manager returns the session lifecycle manager.
func (g *Gateway) Manager() *Manager { return g.manager }

// Dispatcher returns the message dispatcher.
func (g *Gateway) Dispatcher() *Dispatcher { return g.dispatcher }

// Run starts the gateway server and blocks until the context is canceled.
// Returns nil on graceful shutdown (context canceled), or an error if the
// server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	if g.config.Sessions.ReconcileInterval > 0 {
		go g.manager.RunReconciler(ctx, g.config.Sessions.ReconcileInterval, g.config.Sessions.SessionTimeout)
	}

	serverErr := g.waitForShutdownSignal(ctx, errCh)
	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown gracefully stops the gateway server and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway", "sessions", g.registry.Len())

	err := g.httpServer.Shutdown(ctx)

	g.channels.CloseAll()
	g.broadcaster.Close()
	g.dedupe.Close()

	if err != nil {
		return fmt.Errorf("HTTP shutdown: %w", err)
	}
	return nil
}

// generateServerID creates a unique identifier for this gateway instance.
func generateServerID() string {
	return fmt.Sprintf("wagateway-%d", time.Now().UnixNano()%1000000)
}
