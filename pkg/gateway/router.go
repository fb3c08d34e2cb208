package gateway

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/harun/sessiond/internal/observability"
	"github.com/harun/sessiond/internal/tracing"
	"github.com/harun/sessiond/pkg/mutation"
	"github.com/harun/sessiond/pkg/record"
	"github.com/rs/zerolog"
)

// RecordStore is the persistence the router needs
type RecordStore interface {
	Update(path string, fn record.UpdateFunc) error
}

// RouterConfig holds router configuration
type RouterConfig struct {
	Store RecordStore
	// BaseDir is joined with relative session_file values. Empty means the
	// process working directory.
	BaseDir string
	// DefaultFile replaces a missing session_file. Empty means DefaultSessionFile.
	DefaultFile string
	Logger      zerolog.Logger
}

// Router validates requests, applies them to the named session file and
// builds the response envelope
type Router struct {
	store       RecordStore
	decoder     *Decoder
	baseDir     string
	defaultFile string
	logger      zerolog.Logger
}

// NewRouter creates a new Router
func NewRouter(cfg RouterConfig) (*Router, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("record store is required")
	}

	decoder, err := NewDecoder()
	if err != nil {
		return nil, err
	}

	defaultFile := cfg.DefaultFile
	if defaultFile == "" {
		defaultFile = DefaultSessionFile
	}

	return &Router{
		store:       cfg.Store,
		decoder:     decoder,
		baseDir:     cfg.BaseDir,
		defaultFile: defaultFile,
		logger:      cfg.Logger,
	}, nil
}

// Handle decodes and routes one raw request. It never fails: every problem
// becomes an error response.
func (r *Router) Handle(ctx context.Context, payload []byte) Response {
	start := time.Now()
	logger := tracing.LoggerFromContext(ctx, r.logger)

	req, err := r.decoder.Decode(payload)
	if err != nil {
		reqErr := asRequestError(err)
		logger.Warn().
			Str("kind", string(reqErr.Kind)).
			Err(reqErr.Err).
			Msg(reqErr.Message)
		observability.RecordRequest("invalid", time.Since(start), string(reqErr.Kind))
		return reqErr.Response()
	}

	resp, reqErr := r.Route(ctx, req)
	op := metricOperation(req.Operation)
	if reqErr != nil {
		observability.RecordRequest(op, time.Since(start), string(reqErr.Kind))
		return reqErr.Response()
	}
	observability.RecordRequest(op, time.Since(start), "")
	return resp
}

// Route applies a decoded request. The returned error, when non-nil, already
// carries the response message.
func (r *Router) Route(ctx context.Context, req *Request) (Response, *RequestError) {
	op := strings.ToLower(req.Operation)
	path := r.ResolvePath(req.SessionFile)

	logger := tracing.LoggerFromContext(ctx, r.logger).With().
		Str("operation", op).
		Str("session_number", req.label()).
		Str("session_file", path).
		Logger()

	var outcome mutation.Outcome
	err := r.store.Update(path, func(c *record.Collection) (bool, error) {
		switch {
		case op != OperationEdit && op != OperationDelete:
			return false, unknownOperation(op)
		case req.NoMatch:
			outcome = mutation.NotFound(req.SessionNumber)
		case op == OperationEdit:
			outcome = mutation.Edit(*c, req.SessionNumber, req.NewSubjectTag, req.NewSessionNote)
		default:
			outcome = mutation.Delete(c, req.SessionNumber)
		}
		return outcome.Changed(), nil
	})

	if err != nil {
		reqErr := classifyStoreError(err)
		event := logger.Warn()
		if reqErr.Kind == KindPersistence || reqErr.Kind == KindInternal {
			event = logger.Error()
		}
		event.Err(err).Str("kind", string(reqErr.Kind)).Msg(reqErr.Message)
		if reqErr.Kind == KindPersistence {
			observability.RecordMutationAudit(ctx, op, "failure", auditMetadata(path, outcome))
		}
		return Response{}, reqErr
	}

	resp, reqErr := respond(op, req.label(), outcome)
	if reqErr != nil {
		logger.Info().
			Str("kind", string(reqErr.Kind)).
			Str("outcome", outcome.Kind.String()).
			Msg(reqErr.Message)
		return Response{}, reqErr
	}

	observability.RecordMutationAudit(ctx, op, "success", auditMetadata(path, outcome))
	logger.Info().
		Str("outcome", outcome.Kind.String()).
		Strs("fields", outcome.Fields).
		Msg(resp.Message)

	return resp, nil
}

// ResolvePath returns the file a request's session_file refers to
func (r *Router) ResolvePath(file string) string {
	if file == "" {
		file = r.defaultFile
	}
	if r.baseDir == "" || filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(r.baseDir, file)
}

// respond maps an operation outcome to its response
func respond(op, label string, outcome mutation.Outcome) (Response, *RequestError) {
	switch op {
	case OperationEdit:
		switch outcome.Kind {
		case mutation.KindUpdated:
			return Success(MsgSessionUpdated), nil
		case mutation.KindNotFound:
			return Response{}, editNotFound(label)
		case mutation.KindNoOp:
			return Response{}, noChanges()
		}
	case OperationDelete:
		switch outcome.Kind {
		case mutation.KindDeleted:
			return Success(MsgSessionDeleted), nil
		case mutation.KindNotFound:
			return Response{}, deleteNotFound()
		}
	}
	return Response{}, internalError(fmt.Errorf("unexpected outcome %s for %s", outcome.Kind, op))
}

func classifyStoreError(err error) *RequestError {
	var reqErr *RequestError
	switch {
	case errors.As(err, &reqErr):
		return reqErr
	case errors.Is(err, record.ErrNotFound),
		errors.Is(err, record.ErrCorrupt),
		errors.Is(err, record.ErrUnreadable):
		return loadFailed(err)
	case errors.Is(err, record.ErrWrite):
		return saveFailed(err)
	default:
		return internalError(err)
	}
}

func asRequestError(err error) *RequestError {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr
	}
	return internalError(err)
}

func auditMetadata(path string, outcome mutation.Outcome) map[string]interface{} {
	metadata := map[string]interface{}{
		"session_file":   path,
		"session_number": outcome.Key,
	}
	if len(outcome.Fields) > 0 {
		metadata["fields"] = outcome.Fields
	}
	return metadata
}

// metricOperation keeps the operation label set bounded
func metricOperation(op string) string {
	switch op := strings.ToLower(op); op {
	case OperationEdit, OperationDelete:
		return op
	default:
		return "other"
	}
}
