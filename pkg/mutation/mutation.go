package mutation

import (
	"fmt"

	"github.com/harun/sessiond/pkg/record"
)

// Kind classifies the result of an operation
type Kind int

const (
	KindUpdated Kind = iota + 1
	KindDeleted
	KindNotFound
	KindNoOp
)

// String returns the lower-case name of the kind
func (k Kind) String() string {
	switch k {
	case KindUpdated:
		return "updated"
	case KindDeleted:
		return "deleted"
	case KindNotFound:
		return "not_found"
	case KindNoOp:
		return "no_op"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Outcome is the result of Edit or Delete. Key is set for every kind.
type Outcome struct {
	Kind Kind
	Key  int64

	// Fields lists the record keys an edit changed
	Fields []string
}

// Updated builds an Updated outcome
func Updated(key int64, fields ...string) Outcome {
	return Outcome{Kind: KindUpdated, Key: key, Fields: fields}
}

// Deleted builds a Deleted outcome
func Deleted(key int64) Outcome {
	return Outcome{Kind: KindDeleted, Key: key}
}

// NotFound builds a NotFound outcome
func NotFound(key int64) Outcome {
	return Outcome{Kind: KindNotFound, Key: key}
}

// NoOp builds a NoOp outcome
func NoOp(key int64) Outcome {
	return Outcome{Kind: KindNoOp, Key: key}
}

// Changed reports whether the collection was modified and must be persisted
func (o Outcome) Changed() bool {
	return o.Kind == KindUpdated || o.Kind == KindDeleted
}

// Field is an optional replacement value for a nullable record field.
// The zero value means "not supplied".
type Field struct {
	Set   bool
	Value *string
}

// Keep returns a Field that leaves the stored value alone
func Keep() Field {
	return Field{}
}

// SetTo returns a Field that replaces the stored value with v
func SetTo(v string) Field {
	return Field{Set: true, Value: &v}
}

// Clear returns a Field that replaces the stored value with null
func Clear() Field {
	return Field{Set: true}
}

// differs reports whether applying f to current would change it. An opaque
// stored value differs from every supplied value.
func (f Field) differs(current *string, opaque bool) bool {
	if !f.Set {
		return false
	}
	if opaque {
		return true
	}
	if f.Value == nil || current == nil {
		return f.Value != current
	}
	return *f.Value != *current
}

func (f Field) value() *string {
	if f.Value == nil {
		return nil
	}
	v := *f.Value
	return &v
}

// Edit replaces the subject tag and/or session note of the record with the
// given key
func Edit(coll record.Collection, key int64, subjectTag, sessionNote Field) Outcome {
	i := coll.Index(key)
	if i < 0 {
		return NotFound(key)
	}
	rec := &coll[i]

	var changed []string
	updateTag := subjectTag.differs(rec.SubjectTag, rec.Opaque(record.KeySubjectTag))
	if updateTag {
		changed = append(changed, record.KeySubjectTag)
	}
	updateNote := sessionNote.differs(rec.SessionNote, rec.Opaque(record.KeySessionNote))
	if updateNote {
		changed = append(changed, record.KeySessionNote)
	}

	if len(changed) == 0 {
		return NoOp(key)
	}

	if updateTag {
		rec.SetSubjectTag(subjectTag.value())
	}
	if updateNote {
		rec.SetSessionNote(sessionNote.value())
	}

	return Updated(key, changed...)
}

// Delete removes the record with the given key
func Delete(coll *record.Collection, key int64) Outcome {
	i := coll.Index(key)
	if i < 0 {
		return NotFound(key)
	}

	c := *coll
	*coll = append(c[:i:i], c[i+1:]...)
	return Deleted(key)
}
