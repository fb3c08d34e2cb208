package gateway

import (
	"errors"
	"testing"

	"github.com/harun/sessiond/pkg/mutation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoder_Decode(t *testing.T) {
	decoder, err := NewDecoder()
	require.NoError(t, err)

	t.Run("should decode a full edit request", func(t *testing.T) {
		req, err := decoder.Decode([]byte(`{
			"session_number": 2,
			"operation": "Edit",
			"session_file": "log.json",
			"new_subject_tag": "CS 162",
			"new_session_note": null
		}`))
		require.NoError(t, err)

		assert.Equal(t, int64(2), req.SessionNumber)
		assert.Equal(t, "Edit", req.Operation)
		assert.Equal(t, "log.json", req.SessionFile)
		assert.Equal(t, mutation.SetTo("CS 162"), req.NewSubjectTag)
		assert.Equal(t, mutation.Clear(), req.NewSessionNote)
	})

	t.Run("should keep absent fields", func(t *testing.T) {
		req, err := decoder.Decode([]byte(`{"session_number": 5, "operation": "delete"}`))
		require.NoError(t, err)

		assert.Equal(t, "", req.SessionFile)
		assert.Equal(t, mutation.Keep(), req.NewSubjectTag)
		assert.Equal(t, mutation.Keep(), req.NewSessionNote)
	})

	t.Run("should accept an integral float", func(t *testing.T) {
		req, err := decoder.Decode([]byte(`{"session_number": 4.0, "operation": "delete"}`))
		require.NoError(t, err)
		assert.Equal(t, int64(4), req.SessionNumber)
	})

	t.Run("should mark a non-integer key as matching nothing", func(t *testing.T) {
		cases := map[string]string{
			`"1"`:    "1",
			`2.5`:    "2.5",
			`true`:   "true",
			`[1, 2]`: "[1,2]",
		}
		for raw, label := range cases {
			req, err := decoder.Decode([]byte(`{"session_number": ` + raw + `, "operation": "delete"}`))
			require.NoError(t, err, raw)
			assert.True(t, req.NoMatch, raw)
			assert.Equal(t, label, req.SessionLabel, raw)
		}
	})

	t.Run("should keep the key as written for replies", func(t *testing.T) {
		req, err := decoder.Decode([]byte(`{"session_number": 4.0, "operation": "delete"}`))
		require.NoError(t, err)
		assert.False(t, req.NoMatch)
		assert.Equal(t, "4.0", req.SessionLabel)
	})

	t.Run("should ignore unknown fields", func(t *testing.T) {
		req, err := decoder.Decode([]byte(`{"session_number": 1, "operation": "delete", "extra": {"a": 1}}`))
		require.NoError(t, err)
		assert.Equal(t, int64(1), req.SessionNumber)
	})

	t.Run("should return a validation error", func(t *testing.T) {
		_, err := decoder.Decode([]byte(`{"operation": "delete"}`))

		var reqErr *RequestError
		require.True(t, errors.As(err, &reqErr))
		assert.Equal(t, KindValidation, reqErr.Kind)
		assert.Equal(t, MsgMissingParameters, reqErr.Message)
	})

	t.Run("should check presence before types", func(t *testing.T) {
		_, err := decoder.Decode([]byte(`{"session_number": "x"}`))

		var reqErr *RequestError
		require.True(t, errors.As(err, &reqErr))
		assert.Equal(t, MsgMissingParameters, reqErr.Message)
	})
}

func TestRequestError(t *testing.T) {
	cause := errors.New("boom")
	err := saveFailed(cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "persistence")
	assert.Equal(t, Failure(MsgSaveFailed), err.Response())

	assert.Equal(t, "Session 12 not found.", editNotFound("12").Message)
	assert.Equal(t, "Unknown operation: rename", unknownOperation("rename").Message)
	assert.Equal(t, "not_found: Failed to delete session; session does not exist.", deleteNotFound().Error())
}
