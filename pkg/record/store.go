package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/harun/sessiond/internal/observability"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
)

var (
	// ErrNotFound is returned by Load when the collection file does not exist
	ErrNotFound = errors.New("session file not found")
	// ErrCorrupt is returned by Load when the file is not a JSON array of session records
	ErrCorrupt = errors.New("session file is not a valid session collection")
	// ErrUnreadable is returned by Load when the file exists but cannot be read
	ErrUnreadable = errors.New("session file could not be read")
	// ErrWrite is returned by Save when the collection could not be persisted
	ErrWrite = errors.New("session file could not be written")
)

const defaultFileMode os.FileMode = 0644

// collectionSchema describes what Load accepts as a collection file. Record
// contents are not checked; odd records are kept and never match a lookup.
var collectionSchema = map[string]interface{}{
	"type":  "array",
	"items": map[string]interface{}{"type": "object"},
}

// UpdateFunc mutates a loaded collection and reports whether it should be saved
type UpdateFunc func(c *Collection) (commit bool, err error)

// Store loads and saves session collections. It holds no collection state of
// its own; every call goes to disk.
type Store struct {
	schema *gojsonschema.Schema
	logger zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a new Store
func NewStore(logger zerolog.Logger) *Store {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(collectionSchema))
	if err != nil {
		// collectionSchema is a constant; failing to compile it is a programming error
		panic(fmt.Sprintf("record: invalid collection schema: %v", err))
	}

	return &Store{
		schema: schema,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// Load reads the collection stored at path
func (s *Store) Load(path string) (Collection, error) {
	start := time.Now()
	defer func() {
		observability.RecordStoreLoad(time.Since(start))
	}()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}

	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if !result.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrCorrupt, result.Errors()[0].String())
	}

	var coll Collection
	if err := json.Unmarshal(data, &coll); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if coll == nil {
		coll = Collection{}
	}

	s.logger.Debug().
		Str("path", path).
		Int("records", len(coll)).
		Msg("Session collection loaded")

	return coll, nil
}

// Save writes the full collection to path, replacing any existing file
func (s *Store) Save(path string, coll Collection) error {
	start := time.Now()
	defer func() {
		observability.RecordStoreSave(time.Since(start))
	}()

	data, err := Encode(coll)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal collection: %w", ErrWrite, err)
	}

	mode := defaultFileMode
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: failed to create temporary file: %w", ErrWrite, err)
	}
	tempPath := tmp.Name()

	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tempPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("%w: failed to write temporary file: %w", ErrWrite, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("%w: failed to sync temporary file: %w", ErrWrite, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: failed to close temporary file: %w", ErrWrite, err)
	}
	if err := os.Chmod(tempPath, mode); err != nil {
		return fmt.Errorf("%w: failed to set file mode: %w", ErrWrite, err)
	}

	// Atomic rename
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("%w: failed to rename temporary file: %w", ErrWrite, err)
	}
	committed = true

	s.logger.Debug().
		Str("path", path).
		Int("records", len(coll)).
		Msg("Session collection saved")

	return nil
}

// Update runs fn against the collection at path while holding the path's
// lock, and saves the result when fn asks for it. Load and save errors are
// returned unchanged so callers can match them with errors.Is.
func (s *Store) Update(path string, fn UpdateFunc) error {
	unlock := s.lock(path)
	defer unlock()

	coll, err := s.Load(path)
	if err != nil {
		return err
	}

	commit, err := fn(&coll)
	if err != nil {
		return err
	}
	if !commit {
		return nil
	}

	return s.Save(path, coll)
}

func (s *Store) lock(path string) func() {
	key := path
	if abs, err := filepath.Abs(path); err == nil {
		key = abs
	}

	s.mu.Lock()
	m, ok := s.locks[key]
	if !ok {
		m = &sync.Mutex{}
		s.locks[key] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// Encode renders a collection the way it is stored on disk: a JSON array
// with two-space indentation and a trailing newline.
func Encode(coll Collection) ([]byte, error) {
	if coll == nil {
		coll = Collection{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(coll); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
