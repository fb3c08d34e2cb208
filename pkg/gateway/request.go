package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/harun/sessiond/pkg/mutation"
	"github.com/harun/sessiond/pkg/record"
	"github.com/xeipuuv/gojsonschema"
)

const (
	fieldSessionNumber  = "session_number"
	fieldOperation      = "operation"
	fieldSessionFile    = "session_file"
	fieldNewSubjectTag  = "new_subject_tag"
	fieldNewSessionNote = "new_session_note"
)

// requestSchema only checks the types of the envelope fields. Presence of
// the required fields is checked separately so the reply can use the fixed
// missing-parameters message. session_number may have any type; a
// non-integer one simply matches no record.
var requestSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		fieldOperation:      map[string]interface{}{"type": "string"},
		fieldSessionFile:    map[string]interface{}{"type": []string{"string", "null"}},
		fieldNewSubjectTag:  map[string]interface{}{"type": []string{"string", "null"}},
		fieldNewSessionNote: map[string]interface{}{"type": []string{"string", "null"}},
	},
}

// Decoder turns raw request bytes into a Request
type Decoder struct {
	schema *gojsonschema.Schema
}

// NewDecoder creates a new request decoder
func NewDecoder() (*Decoder, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(requestSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile request schema: %w", err)
	}
	return &Decoder{schema: schema}, nil
}

// Decode parses and validates a request. Failures are returned as
// *RequestError with KindValidation.
func (d *Decoder) Decode(data []byte) (*Request, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, malformedRequest(err)
	}
	if raw == nil {
		return nil, malformedRequest(nil)
	}

	if absent(raw, fieldSessionNumber) || absent(raw, fieldOperation) {
		return nil, missingParameters()
	}

	result, err := d.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, malformedRequest(err)
	}
	if !result.Valid() {
		return nil, invalidRequest(result.Errors()[0].String())
	}

	req := &Request{SessionLabel: sessionLabel(raw[fieldSessionNumber])}
	if key, err := record.ParseSessionNumber(raw[fieldSessionNumber]); err == nil {
		req.SessionNumber = key
	} else {
		req.NoMatch = true
	}

	if err := json.Unmarshal(raw[fieldOperation], &req.Operation); err != nil {
		return nil, invalidRequest(err.Error())
	}

	if file, ok := raw[fieldSessionFile]; ok && !isNull(file) {
		if err := json.Unmarshal(file, &req.SessionFile); err != nil {
			return nil, invalidRequest(err.Error())
		}
	}

	if req.NewSubjectTag, err = decodeField(raw, fieldNewSubjectTag); err != nil {
		return nil, invalidRequest(err.Error())
	}
	if req.NewSessionNote, err = decodeField(raw, fieldNewSessionNote); err != nil {
		return nil, invalidRequest(err.Error())
	}

	return req, nil
}

// decodeField distinguishes an absent key from an explicit null
func decodeField(raw map[string]json.RawMessage, name string) (mutation.Field, error) {
	value, ok := raw[name]
	if !ok {
		return mutation.Keep(), nil
	}
	if isNull(value) {
		return mutation.Clear(), nil
	}

	var s string
	if err := json.Unmarshal(value, &s); err != nil {
		return mutation.Field{}, fmt.Errorf("%s: %w", name, err)
	}
	return mutation.SetTo(s), nil
}

// sessionLabel renders session_number for messages: strings without quotes,
// anything else as compact JSON
func sessionLabel(value json.RawMessage) string {
	var s string
	if err := json.Unmarshal(value, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, value); err != nil {
		return string(value)
	}
	return buf.String()
}

func absent(raw map[string]json.RawMessage, name string) bool {
	value, ok := raw[name]
	return !ok || isNull(value)
}

func isNull(value json.RawMessage) bool {
	return string(value) == "null"
}
