package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/harun/sessiond/internal/config"
	"github.com/harun/sessiond/internal/logger"
	"github.com/harun/sessiond/internal/observability"
	"github.com/harun/sessiond/internal/tracing"
	"github.com/harun/sessiond/pkg/gateway"
	"github.com/harun/sessiond/pkg/record"
)

// shutdownTimeout bounds how long Stop waits for the gateway to drain
const shutdownTimeout = 5 * time.Second

// Daemon represents the sessiond service
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	// Core modules
	store  *record.Store
	router *gateway.Router
	loop   *gateway.Loop

	// Services
	gatewayServer *gateway.Server

	// Internal
	eventLoop *EventLoop
	lifecycle *LifecycleManager

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startTime time.Time
	running   bool
	mu        sync.RWMutex
}

// Status describes a running or stopped daemon
type Status struct {
	Running          bool
	PID              int
	Uptime           time.Duration
	StartTime        time.Time
	Addr             string
	LoopState        string
	Processed        uint64
	ConnectedClients int
}

// New creates a new daemon instance
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	observability.EnsureRegistered()

	d := &Daemon{
		config: cfg,
		logger: log,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := d.initializeCoreModules(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize core modules: %w", err)
	}

	if err := d.initializeServices(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	d.eventLoop = NewEventLoop(d)
	d.lifecycle = NewLifecycleManager(d)

	return d, nil
}

// initializeCoreModules builds the store, router and request loop
func (d *Daemon) initializeCoreModules() error {
	if auditPath := d.config.Logging.AuditFile; auditPath != "" {
		if err := observability.InitAuditLogger(auditPath); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to initialize audit logger, audit events are discarded")
		} else {
			d.logger.Info().Str("path", auditPath).Msg("Audit logger initialized")
		}
	}

	d.store = record.NewStore(d.logger.Component("store"))
	d.logger.Info().Msg("Record store initialized")

	router, err := gateway.NewRouter(gateway.RouterConfig{
		Store:       d.store,
		BaseDir:     d.config.Store.BaseDir,
		DefaultFile: d.config.Store.DefaultFile,
		Logger:      d.logger.Component("router"),
	})
	if err != nil {
		return fmt.Errorf("failed to create router: %w", err)
	}
	d.router = router
	d.logger.Info().
		Str("base_dir", d.config.Store.BaseDir).
		Str("default_file", router.ResolvePath("")).
		Msg("Request router initialized")

	d.loop = gateway.NewLoop(router, d.logger.Component("loop"))

	return nil
}

// initializeServices builds the network transports
func (d *Daemon) initializeServices() error {
	server, err := gateway.NewServer(gateway.Config{
		Host:   d.config.Gateway.Host,
		Port:   d.config.Gateway.Port,
		Loop:   d.loop,
		Logger: d.logger.Component("gateway"),
	})
	if err != nil {
		return fmt.Errorf("failed to create gateway server: %w", err)
	}
	d.gatewayServer = server
	d.logger.Info().Str("addr", server.Addr()).Msg("Gateway server initialized")

	return nil
}

// Start starts the daemon service
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	logger := d.logger.GetZerolog().With().Str("trace_id", tracing.NewRequestID()).Logger()
	logger.Info().Msg("Starting sessiond daemon")

	if err := d.lifecycle.Start(); err != nil {
		d.markStopped()
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	// The loop must be consuming before the transports accept requests
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.eventLoop.Run(d.ctx)
	}()

	if err := d.gatewayServer.Start(); err != nil {
		d.cancel()
		d.wg.Wait()
		_ = d.lifecycle.Stop()
		d.markStopped()
		return fmt.Errorf("failed to start gateway server: %w", err)
	}
	logger.Info().Str("addr", d.gatewayServer.Addr()).Msg("Gateway server started")

	logger.Info().Msg("Daemon started successfully")

	return nil
}

// Stop stops the daemon service gracefully
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	logger := d.logger.GetZerolog().With().Str("trace_id", tracing.NewRequestID()).Logger()
	logger.Info().Msg("Stopping sessiond daemon")

	// Stop accepting requests first so nothing is cut off mid-write
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	if err := d.gatewayServer.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to stop gateway server")
	}
	cancel()

	d.cancel()
	d.wg.Wait()
	d.eventLoop.HandleShutdown()

	if err := d.lifecycle.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	// Close audit logger
	if err := observability.GetAuditLogger().Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close audit logger")
	}

	logger.Info().Msg("Daemon stopped successfully")

	return nil
}

func (d *Daemon) markStopped() {
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running: d.running,
	}

	if d.running {
		status.PID = os.Getpid()
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
		status.Addr = d.gatewayServer.Addr()
		status.LoopState = d.loop.State().String()
		status.Processed = d.loop.Processed()
		status.ConnectedClients = len(d.gatewayServer.GetConnectedClients())
	}

	return status
}

// Wait blocks until SIGINT or SIGTERM arrives, then stops the daemon. It
// also returns if the daemon is stopped some other way.
func (d *Daemon) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		d.logger.Info().Str("signal", sig.String()).Msg("Received signal")
		if err := d.Stop(); err != nil {
			d.logger.Error().Err(err).Msg("Failed to stop daemon")
		}
	case <-d.ctx.Done():
	}
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}

// GetLogger returns the daemon logger
func (d *Daemon) GetLogger() *logger.Logger {
	return d.logger
}

// GetRouter returns the request router
func (d *Daemon) GetRouter() *gateway.Router {
	return d.router
}

// GetGatewayServer returns the gateway server
func (d *Daemon) GetGatewayServer() *gateway.Server {
	return d.gatewayServer
}
