package gateway

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harun/sessiond/pkg/record"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedJSON = `[
  {
    "session_number": 1,
    "subject_tag": null,
    "session_note": null
  },
  {
    "session_number": 2,
    "subject_tag": "MATH 111",
    "session_note": "Worked on integration techniques."
  },
  {
    "session_number": 3,
    "subject_tag": "MENU TEST",
    "session_note": "If you don't delete me something very bad will happen."
  }
]
`

// newTestRouter returns a router whose base directory holds a seeded
// study_sessions.json
func newTestRouter(t *testing.T) (*Router, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultSessionFile), []byte(seedJSON), 0644))

	router, err := NewRouter(RouterConfig{
		Store:   record.NewStore(zerolog.Nop()),
		BaseDir: dir,
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	return router, dir
}

func readSessions(t *testing.T, path string) record.Collection {
	t.Helper()
	coll, err := record.NewStore(zerolog.Nop()).Load(path)
	require.NoError(t, err)
	return coll
}

func readRaw(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// writeFailingStore behaves like record.Store but never manages to persist
type writeFailingStore struct {
	store *record.Store
}

func (s writeFailingStore) Update(path string, fn record.UpdateFunc) error {
	coll, err := s.store.Load(path)
	if err != nil {
		return err
	}
	commit, err := fn(&coll)
	if err != nil || !commit {
		return err
	}
	return fmt.Errorf("%w: disk full", record.ErrWrite)
}

func TestNewRouter(t *testing.T) {
	t.Run("should require a store", func(t *testing.T) {
		_, err := NewRouter(RouterConfig{})
		assert.Error(t, err)
	})

	t.Run("should default the session file", func(t *testing.T) {
		router, err := NewRouter(RouterConfig{Store: record.NewStore(zerolog.Nop())})
		require.NoError(t, err)
		assert.Equal(t, DefaultSessionFile, router.ResolvePath(""))
	})
}

func TestRouter_ResolvePath(t *testing.T) {
	router, err := NewRouter(RouterConfig{
		Store:       record.NewStore(zerolog.Nop()),
		BaseDir:     "/var/lib/sessiond",
		DefaultFile: "sessions.json",
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("/var/lib/sessiond", "sessions.json"), router.ResolvePath(""))
	assert.Equal(t, filepath.Join("/var/lib/sessiond", "other.json"), router.ResolvePath("other.json"))
	assert.Equal(t, "/tmp/abs.json", router.ResolvePath("/tmp/abs.json"))
}

func TestRouter_Edit(t *testing.T) {
	t.Run("should update the subject tag", func(t *testing.T) {
		router, dir := newTestRouter(t)

		resp := router.Handle(context.Background(), []byte(`{"session_number": 2, "operation": "edit", "new_subject_tag": "CS 162"}`))
		assert.Equal(t, Success(MsgSessionUpdated), resp)

		coll := readSessions(t, filepath.Join(dir, DefaultSessionFile))
		require.Len(t, coll, 3)
		assert.Equal(t, "CS 162", *coll[1].SubjectTag)
		assert.Equal(t, "Worked on integration techniques.", *coll[1].SessionNote)
	})

	t.Run("should update both fields of an empty record", func(t *testing.T) {
		router, dir := newTestRouter(t)

		resp := router.Handle(context.Background(), []byte(`{"session_number": 1, "operation": "edit", "new_subject_tag": "PHYS 201", "new_session_note": "Kinematics review."}`))
		assert.True(t, resp.OK())

		coll := readSessions(t, filepath.Join(dir, DefaultSessionFile))
		assert.Equal(t, "PHYS 201", *coll[0].SubjectTag)
		assert.Equal(t, "Kinematics review.", *coll[0].SessionNote)
	})

	t.Run("should clear a field set to null", func(t *testing.T) {
		router, dir := newTestRouter(t)

		resp := router.Handle(context.Background(), []byte(`{"session_number": 2, "operation": "edit", "new_subject_tag": null}`))
		assert.Equal(t, Success(MsgSessionUpdated), resp)

		coll := readSessions(t, filepath.Join(dir, DefaultSessionFile))
		assert.Nil(t, coll[1].SubjectTag)
		assert.Contains(t, readRaw(t, filepath.Join(dir, DefaultSessionFile)), `"subject_tag": null`)
	})

	t.Run("should accept the operation in any case", func(t *testing.T) {
		router, _ := newTestRouter(t)

		resp := router.Handle(context.Background(), []byte(`{"session_number": 2, "operation": "EdIt", "new_session_note": "Series."}`))
		assert.Equal(t, Success(MsgSessionUpdated), resp)
	})

	t.Run("should report no changes and leave the file untouched", func(t *testing.T) {
		router, dir := newTestRouter(t)
		path := filepath.Join(dir, DefaultSessionFile)
		before, err := os.Stat(path)
		require.NoError(t, err)

		resp := router.Handle(context.Background(), []byte(`{"session_number": 2, "operation": "edit", "new_subject_tag": "MATH 111"}`))
		assert.Equal(t, Failure(MsgNoChanges), resp)

		after, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, before.ModTime(), after.ModTime())
		assert.Equal(t, seedJSON, readRaw(t, path))
	})

	t.Run("should report no changes when no new values are given", func(t *testing.T) {
		router, _ := newTestRouter(t)

		resp := router.Handle(context.Background(), []byte(`{"session_number": 3, "operation": "edit"}`))
		assert.Equal(t, Failure(MsgNoChanges), resp)
	})

	t.Run("should name the missing session", func(t *testing.T) {
		router, dir := newTestRouter(t)

		resp := router.Handle(context.Background(), []byte(`{"session_number": 99, "operation": "edit", "new_subject_tag": "X"}`))
		assert.Equal(t, Failure("Session 99 not found."), resp)
		assert.Equal(t, seedJSON, readRaw(t, filepath.Join(dir, DefaultSessionFile)))
	})
}

func TestRouter_Delete(t *testing.T) {
	t.Run("should delete the session", func(t *testing.T) {
		router, dir := newTestRouter(t)

		resp := router.Handle(context.Background(), []byte(`{"session_number": 3, "operation": "delete"}`))
		assert.Equal(t, Success(MsgSessionDeleted), resp)

		coll := readSessions(t, filepath.Join(dir, DefaultSessionFile))
		require.Len(t, coll, 2)
		assert.Equal(t, -1, coll.Index(3))
		assert.Equal(t, int64(1), coll[0].SessionNumber)
		assert.Equal(t, int64(2), coll[1].SessionNumber)
	})

	t.Run("should fail for a missing session", func(t *testing.T) {
		router, dir := newTestRouter(t)

		resp := router.Handle(context.Background(), []byte(`{"session_number": 42, "operation": "delete"}`))
		assert.Equal(t, Failure(MsgDeleteNotFound), resp)
		assert.Equal(t, seedJSON, readRaw(t, filepath.Join(dir, DefaultSessionFile)))
	})

	t.Run("should fail the second time", func(t *testing.T) {
		router, _ := newTestRouter(t)
		payload := []byte(`{"session_number": 1, "operation": "delete"}`)

		assert.True(t, router.Handle(context.Background(), payload).OK())
		assert.Equal(t, Failure(MsgDeleteNotFound), router.Handle(context.Background(), payload))
	})

	t.Run("should ignore edit fields", func(t *testing.T) {
		router, dir := newTestRouter(t)

		resp := router.Handle(context.Background(), []byte(`{"session_number": 2, "operation": "delete", "new_subject_tag": "X"}`))
		assert.True(t, resp.OK())
		assert.Len(t, readSessions(t, filepath.Join(dir, DefaultSessionFile)), 2)
	})
}

func TestRouter_SessionFile(t *testing.T) {
	t.Run("should use the named file relative to the base dir", func(t *testing.T) {
		router, dir := newTestRouter(t)
		other := filepath.Join(dir, "other.json")
		require.NoError(t, os.WriteFile(other, []byte(`[{"session_number": 7, "subject_tag": "BIO", "session_note": null}]`), 0644))

		resp := router.Handle(context.Background(), []byte(`{"session_number": 7, "operation": "delete", "session_file": "other.json"}`))
		assert.True(t, resp.OK())
		assert.Equal(t, "[]\n", readRaw(t, other))
		assert.Equal(t, seedJSON, readRaw(t, filepath.Join(dir, DefaultSessionFile)))
	})

	t.Run("should treat a null session file as absent", func(t *testing.T) {
		router, _ := newTestRouter(t)

		resp := router.Handle(context.Background(), []byte(`{"session_number": 3, "operation": "delete", "session_file": null}`))
		assert.Equal(t, Success(MsgSessionDeleted), resp)
	})

	t.Run("should fail to load a missing file", func(t *testing.T) {
		router, dir := newTestRouter(t)

		resp := router.Handle(context.Background(), []byte(`{"session_number": 1, "operation": "delete", "session_file": "missing.json"}`))
		assert.Equal(t, Failure(MsgLoadFailed), resp)
		assert.NoFileExists(t, filepath.Join(dir, "missing.json"))
	})

	t.Run("should fail to load a corrupt file", func(t *testing.T) {
		router, dir := newTestRouter(t)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte(`[{"session_number": `), 0644))

		resp := router.Handle(context.Background(), []byte(`{"session_number": 1, "operation": "edit", "new_subject_tag": "X", "session_file": "bad.json"}`))
		assert.Equal(t, Failure(MsgLoadFailed), resp)
	})
}

func TestRouter_UnknownOperation(t *testing.T) {
	t.Run("should echo the lower-cased operation", func(t *testing.T) {
		router, dir := newTestRouter(t)

		resp := router.Handle(context.Background(), []byte(`{"session_number": 1, "operation": "Archive"}`))
		assert.Equal(t, Failure("Unknown operation: archive"), resp)
		assert.Equal(t, seedJSON, readRaw(t, filepath.Join(dir, DefaultSessionFile)))
	})

	t.Run("should report the load failure first", func(t *testing.T) {
		router, _ := newTestRouter(t)

		resp := router.Handle(context.Background(), []byte(`{"session_number": 1, "operation": "archive", "session_file": "missing.json"}`))
		assert.Equal(t, Failure(MsgLoadFailed), resp)
	})
}

func TestRouter_Validation(t *testing.T) {
	router, dir := newTestRouter(t)

	missing := []string{
		`{"operation": "edit"}`,
		`{"session_number": 1}`,
		`{}`,
		`{"session_number": null, "operation": "delete"}`,
		`{"session_number": 1, "operation": null}`,
	}
	for _, payload := range missing {
		t.Run(payload, func(t *testing.T) {
			assert.Equal(t, Failure(MsgMissingParameters), router.Handle(context.Background(), []byte(payload)))
		})
	}

	malformed := []string{`not json`, `[1, 2]`, `"edit"`, `null`, ``}
	for _, payload := range malformed {
		t.Run("malformed "+payload, func(t *testing.T) {
			assert.Equal(t, Failure(MsgMalformedRequest), router.Handle(context.Background(), []byte(payload)))
		})
	}

	invalid := []string{
		`{"session_number": 2, "operation": 5}`,
		`{"session_number": 2, "operation": "edit", "new_subject_tag": 12}`,
		`{"session_number": 2, "operation": "edit", "session_file": true}`,
	}
	for _, payload := range invalid {
		t.Run("invalid "+payload, func(t *testing.T) {
			resp := router.Handle(context.Background(), []byte(payload))
			assert.Equal(t, StatusError, resp.Status)
			assert.True(t, strings.HasPrefix(resp.Message, "Invalid request: "), resp.Message)
		})
	}

	assert.Equal(t, seedJSON, readRaw(t, filepath.Join(dir, DefaultSessionFile)))
}

func TestRouter_NonIntegerKey(t *testing.T) {
	router, dir := newTestRouter(t)
	path := filepath.Join(dir, DefaultSessionFile)

	cases := []struct {
		payload string
		want    Response
	}{
		{`{"session_number": "2", "operation": "delete"}`, Failure(MsgDeleteNotFound)},
		{`{"session_number": "2", "operation": "edit", "new_subject_tag": "x"}`, Failure("Session 2 not found.")},
		{`{"session_number": 2.5, "operation": "EDIT", "new_subject_tag": "x"}`, Failure("Session 2.5 not found.")},
		{`{"session_number": "2", "operation": "archive"}`, Failure("Unknown operation: archive")},
		{`{"session_number": "2", "operation": "delete", "session_file": "missing.json"}`, Failure(MsgLoadFailed)},
	}
	for _, tc := range cases {
		t.Run(tc.payload, func(t *testing.T) {
			assert.Equal(t, tc.want, router.Handle(context.Background(), []byte(tc.payload)))
		})
	}

	assert.Equal(t, seedJSON, readRaw(t, path))
}

func TestRouter_OddRecords(t *testing.T) {
	router, dir := newTestRouter(t)
	path := filepath.Join(dir, "odd.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"session_number": 1, "subject_tag": "BIO"}, {"title": "header row"}, {"session_number": "7"}]`), 0644))

	resp := router.Handle(context.Background(), []byte(`{"session_number": 1, "operation": "edit", "new_subject_tag": "CS 162", "session_file": "odd.json"}`))
	assert.Equal(t, Success(MsgSessionUpdated), resp)

	resp = router.Handle(context.Background(), []byte(`{"session_number": 7, "operation": "delete", "session_file": "odd.json"}`))
	assert.Equal(t, Failure(MsgDeleteNotFound), resp)

	resp = router.Handle(context.Background(), []byte(`{"session_number": 1, "operation": "delete", "session_file": "odd.json"}`))
	assert.Equal(t, Success(MsgSessionDeleted), resp)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"title": "header row"}, {"session_number": "7"}]`, string(data))
}

func TestRouter_SaveFailure(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultSessionFile), []byte(seedJSON), 0644))

	router, err := NewRouter(RouterConfig{
		Store:   writeFailingStore{store: record.NewStore(zerolog.Nop())},
		BaseDir: dir,
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)

	t.Run("should report the failed edit", func(t *testing.T) {
		resp := router.Handle(context.Background(), []byte(`{"session_number": 2, "operation": "edit", "new_subject_tag": "CS 162"}`))
		assert.Equal(t, Failure(MsgSaveFailed), resp)
	})

	t.Run("should report the failed delete", func(t *testing.T) {
		resp := router.Handle(context.Background(), []byte(`{"session_number": 2, "operation": "delete"}`))
		assert.Equal(t, Failure(MsgSaveFailed), resp)
	})

	t.Run("should not need a save for no-ops", func(t *testing.T) {
		resp := router.Handle(context.Background(), []byte(`{"session_number": 2, "operation": "edit", "new_subject_tag": "MATH 111"}`))
		assert.Equal(t, Failure(MsgNoChanges), resp)
	})
}

func TestRouter_Route(t *testing.T) {
	router, _ := newTestRouter(t)

	_, reqErr := router.Route(context.Background(), &Request{SessionNumber: 99, Operation: "delete"})
	require.NotNil(t, reqErr)
	assert.Equal(t, KindNotFound, reqErr.Kind)

	_, reqErr = router.Route(context.Background(), &Request{SessionNumber: 1, Operation: "purge"})
	require.NotNil(t, reqErr)
	assert.Equal(t, KindUnknownOperation, reqErr.Kind)

	resp, reqErr := router.Route(context.Background(), &Request{SessionNumber: 1, Operation: "delete"})
	assert.Nil(t, reqErr)
	assert.Equal(t, Success(MsgSessionDeleted), resp)
}
