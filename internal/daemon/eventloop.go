package daemon

import (
	"context"
	"errors"
)

// EventLoop drives the request loop for the lifetime of the daemon
type EventLoop struct {
	daemon *Daemon
}

// NewEventLoop creates a new event loop
func NewEventLoop(d *Daemon) *EventLoop {
	return &EventLoop{
		daemon: d,
	}
}

// Run processes requests until ctx is cancelled
func (e *EventLoop) Run(ctx context.Context) {
	e.daemon.logger.Info().Msg("Event loop started")

	if err := e.daemon.loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		e.daemon.logger.Error().Err(err).Msg("Event loop exited")
		return
	}

	e.daemon.logger.Info().Msg("Event loop stopping")
}

// HandleShutdown reports what the loop did before it stopped
func (e *EventLoop) HandleShutdown() {
	e.daemon.logger.Info().
		Uint64("processed", e.daemon.loop.Processed()).
		Msg("All requests completed")
}
