package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/harun/sessiond/internal/observability"
	"github.com/harun/sessiond/internal/tracing"
	"github.com/rs/zerolog"
)

// ErrLoopStopped is returned by Submit once the loop has exited
var ErrLoopStopped = errors.New("server loop stopped")

// Handler answers one raw request
type Handler interface {
	Handle(ctx context.Context, payload []byte) Response
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, payload []byte) Response

// Handle calls f(ctx, payload)
func (f HandlerFunc) Handle(ctx context.Context, payload []byte) Response {
	return f(ctx, payload)
}

// LoopState is the state of the server loop
type LoopState int32

const (
	StateIdle LoopState = iota
	StateProcessing
)

func (s LoopState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProcessing:
		return "processing"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type exchange struct {
	ctx     context.Context
	payload []byte
	reply   chan Response
}

// Loop is the single worker that processes requests one at a time. Every
// transport hands its requests to Submit, so at most one request is in
// flight no matter how many connections are open.
type Loop struct {
	handler   Handler
	inbox     chan exchange
	stopped   chan struct{}
	state     atomic.Int32
	processed atomic.Uint64
	running   atomic.Bool
	logger    zerolog.Logger
}

// NewLoop creates a new Loop
func NewLoop(handler Handler, logger zerolog.Logger) *Loop {
	return &Loop{
		handler: handler,
		inbox:   make(chan exchange),
		stopped: make(chan struct{}),
		logger:  logger,
	}
}

// Run processes requests until ctx is cancelled. It may only be called once.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return fmt.Errorf("server loop is already running")
	}
	defer close(l.stopped)

	l.logger.Info().Msg("Server loop started")

	for {
		select {
		case <-ctx.Done():
			l.logger.Info().Uint64("processed", l.processed.Load()).Msg("Server loop stopped")
			return ctx.Err()
		case ex := <-l.inbox:
			l.process(ex)
		}
	}
}

// Submit queues a request and waits for its response. Once the loop has
// accepted the request it is processed to completion even if ctx is
// cancelled while waiting.
func (l *Loop) Submit(ctx context.Context, payload []byte) (Response, error) {
	ex := exchange{
		ctx:     context.WithoutCancel(ctx),
		payload: payload,
		reply:   make(chan Response, 1),
	}

	select {
	case l.inbox <- ex:
	case <-ctx.Done():
		return Response{}, ctx.Err()
	case <-l.stopped:
		return Response{}, ErrLoopStopped
	}

	select {
	case resp := <-ex.reply:
		return resp, nil
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// State returns the current loop state
func (l *Loop) State() LoopState {
	return LoopState(l.state.Load())
}

// Processed returns the number of requests answered so far
func (l *Loop) Processed() uint64 {
	return l.processed.Load()
}

func (l *Loop) process(ex exchange) {
	l.setState(StateProcessing)
	defer l.setState(StateIdle)

	ex.reply <- l.handle(ex)
	l.processed.Add(1)
}

func (l *Loop) handle(ex exchange) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			logger := tracing.LoggerFromContext(ex.ctx, l.logger)
			logger.Error().Interface("panic", r).Msg("Request handler panicked")
			resp = internalError(fmt.Errorf("panic: %v", r)).Response()
		}
	}()

	return l.handler.Handle(ex.ctx, ex.payload)
}

func (l *Loop) setState(s LoopState) {
	l.state.Store(int32(s))
	observability.SetLoopBusy(s == StateProcessing)
}
