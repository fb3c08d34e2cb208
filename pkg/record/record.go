package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Keys of the fields sessiond understands
const (
	KeySessionNumber = "session_number"
	KeySubjectTag    = "subject_tag"
	KeySessionNote   = "session_note"
)

// Record is a single study session entry keyed by SessionNumber
type Record struct {
	SessionNumber int64
	// Unkeyed is set when the stored object has no integer session_number.
	// Such a record never matches a lookup and is written back unchanged.
	Unkeyed bool

	SubjectTag  *string
	SessionNote *string

	// Extra holds every other stored key, written back unchanged. A known
	// key whose stored value has an unexpected type is kept here too.
	Extra map[string]json.RawMessage

	// keys is the stored key order; nil for records built in code
	keys []string
	// keyText is the stored session_number, so 4.0 stays 4.0
	keyText json.RawMessage
}

// Collection is the ordered list of records persisted in one file
type Collection []Record

// Index returns the position of the first keyed record with the given key,
// or -1
func (c Collection) Index(key int64) int {
	for i := range c {
		if !c[i].Unkeyed && c[i].SessionNumber == key {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of the collection
func (c Collection) Clone() Collection {
	if c == nil {
		return nil
	}
	out := make(Collection, len(c))
	for i, r := range c {
		out[i] = r.Clone()
	}
	return out
}

// Clone returns a deep copy of the record
func (r Record) Clone() Record {
	out := Record{
		SessionNumber: r.SessionNumber,
		Unkeyed:       r.Unkeyed,
		SubjectTag:    cloneString(r.SubjectTag),
		SessionNote:   cloneString(r.SessionNote),
		keyText:       cloneRaw(r.keyText),
	}
	if r.keys != nil {
		out.keys = append([]string(nil), r.keys...)
	}
	if r.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(r.Extra))
		for k, v := range r.Extra {
			out.Extra[k] = cloneRaw(v)
		}
	}
	return out
}

// Opaque reports whether the stored value under key was kept raw because it
// is not a string or null. Opaque values never compare equal to a string.
func (r Record) Opaque(key string) bool {
	_, ok := r.Extra[key]
	return ok && (key == KeySubjectTag || key == KeySessionNote)
}

// SetSubjectTag replaces the subject tag, dropping any opaque stored value
func (r *Record) SetSubjectTag(v *string) {
	r.SubjectTag = v
	r.touch(KeySubjectTag)
}

// SetSessionNote replaces the session note, dropping any opaque stored value
func (r *Record) SetSessionNote(v *string) {
	r.SessionNote = v
	r.touch(KeySessionNote)
}

// touch makes key a typed field that is always written
func (r *Record) touch(key string) {
	delete(r.Extra, key)
	if r.keys != nil && !containsKey(r.keys, key) {
		r.keys = append(r.keys, key)
	}
}

// UnmarshalJSON decodes a stored session object, keeping its key order and
// any value it does not understand
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("session record must be an object")
	}

	fields := make(map[string]json.RawMessage)
	keys := []string{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v in session record", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return err
		}
		if _, seen := fields[key]; !seen {
			keys = append(keys, key)
		}
		fields[key] = value
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*r = Record{keys: keys}

	if raw, ok := fields[KeySessionNumber]; ok {
		if key, err := ParseSessionNumber(raw); err == nil {
			r.SessionNumber = key
			r.keyText = raw
			delete(fields, KeySessionNumber)
		} else {
			r.Unkeyed = true
		}
	} else {
		r.Unkeyed = true
	}

	if raw, ok := fields[KeySubjectTag]; ok {
		if s, err := decodeOptionalString(raw); err == nil {
			r.SubjectTag = s
			delete(fields, KeySubjectTag)
		}
	}
	if raw, ok := fields[KeySessionNote]; ok {
		if s, err := decodeOptionalString(raw); err == nil {
			r.SessionNote = s
			delete(fields, KeySessionNote)
		}
	}

	if len(fields) > 0 {
		r.Extra = fields
	}
	return nil
}

// MarshalJSON writes the record's keys in their stored order. Records built
// in code write the three known keys first, then extra keys sorted.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	first := true
	for _, key := range r.keyOrder() {
		value, ok, err := r.value(key)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		buf.WriteString(strconv.Quote(key))
		buf.WriteByte(':')
		buf.Write(value)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (r Record) keyOrder() []string {
	var order []string
	if r.keys != nil {
		order = append(order, r.keys...)
		if !r.Unkeyed && !containsKey(order, KeySessionNumber) {
			order = append([]string{KeySessionNumber}, order...)
		}
		if r.SubjectTag != nil && !containsKey(order, KeySubjectTag) {
			order = append(order, KeySubjectTag)
		}
		if r.SessionNote != nil && !containsKey(order, KeySessionNote) {
			order = append(order, KeySessionNote)
		}
	} else {
		order = []string{KeySessionNumber, KeySubjectTag, KeySessionNote}
	}

	var extra []string
	for k := range r.Extra {
		if !containsKey(order, k) {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(order, extra...)
}

// value returns the encoded value for key, or false when the key is not
// written at all
func (r Record) value(key string) ([]byte, bool, error) {
	if raw, ok := r.Extra[key]; ok {
		return raw, true, nil
	}

	switch key {
	case KeySessionNumber:
		if r.Unkeyed {
			return nil, false, nil
		}
		if r.keyText != nil {
			if n, err := ParseSessionNumber(r.keyText); err == nil && n == r.SessionNumber {
				return r.keyText, true, nil
			}
		}
		return []byte(strconv.FormatInt(r.SessionNumber, 10)), true, nil
	case KeySubjectTag:
		v, err := encodeValue(r.SubjectTag)
		return v, err == nil, err
	case KeySessionNote:
		v, err := encodeValue(r.SessionNote)
		return v, err == nil, err
	}
	return nil, false, nil
}

// ParseSessionNumber decodes a JSON number into a session key. Integral
// floats such as 3.0 are accepted; fractions are not.
func ParseSessionNumber(raw json.RawMessage) (int64, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] == '"' {
		return 0, fmt.Errorf("%s must be an integer, got %s", KeySessionNumber, string(trimmed))
	}

	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", KeySessionNumber, err)
	}
	if v, err := n.Int64(); err == nil {
		return v, nil
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) >= math.MaxInt64 {
		return 0, fmt.Errorf("%s must be an integer, got %s", KeySessionNumber, n.String())
	}
	return int64(f), nil
}

func decodeOptionalString(raw json.RawMessage) (*string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// encodeValue marshals without HTML escaping so notes stay readable on disk
func encodeValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}

// StringPtr returns a pointer to s
func StringPtr(s string) *string {
	return &s
}
