package gateway

import "fmt"

// Response messages. Clients match on these strings, so they must not change.
const (
	MsgMissingParameters   = "Request is missing session_number and operation parameters"
	MsgLoadFailed          = "Could not load study session JSON file."
	MsgNoChanges           = "No changes detected; session not updated."
	MsgSessionUpdated      = "Session updated successfully."
	MsgDeleteNotFound      = "Failed to delete session; session does not exist."
	MsgSessionDeleted      = "Session deleted successfully."
	MsgSaveFailed          = "Failed to save changes."
	MsgMalformedRequest    = "Malformed request: expected a JSON object."
	MsgInternalError       = "Internal server error."
	msgEditNotFound        = "Session %s not found."
	msgUnknownOperation    = "Unknown operation: %s"
	msgInvalidRequestField = "Invalid request: %s"
)

// ErrorKind classifies a failed request
type ErrorKind string

const (
	KindValidation       ErrorKind = "validation"
	KindLoad             ErrorKind = "load"
	KindNotFound         ErrorKind = "not_found"
	KindNoChange         ErrorKind = "no_change"
	KindUnknownOperation ErrorKind = "unknown_operation"
	KindPersistence      ErrorKind = "persistence"
	KindInternal         ErrorKind = "internal"
)

// RequestError is a request failure that maps onto an error response
type RequestError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error implements the error interface
func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause, if any
func (e *RequestError) Unwrap() error {
	return e.Err
}

// Response converts the error into the wire envelope
func (e *RequestError) Response() Response {
	return Failure(e.Message)
}

func missingParameters() *RequestError {
	return &RequestError{Kind: KindValidation, Message: MsgMissingParameters}
}

func malformedRequest(err error) *RequestError {
	return &RequestError{Kind: KindValidation, Message: MsgMalformedRequest, Err: err}
}

func invalidRequest(detail string) *RequestError {
	return &RequestError{Kind: KindValidation, Message: fmt.Sprintf(msgInvalidRequestField, detail)}
}

func loadFailed(err error) *RequestError {
	return &RequestError{Kind: KindLoad, Message: MsgLoadFailed, Err: err}
}

func editNotFound(label string) *RequestError {
	return &RequestError{Kind: KindNotFound, Message: fmt.Sprintf(msgEditNotFound, label)}
}

func deleteNotFound() *RequestError {
	return &RequestError{Kind: KindNotFound, Message: MsgDeleteNotFound}
}

func noChanges() *RequestError {
	return &RequestError{Kind: KindNoChange, Message: MsgNoChanges}
}

func unknownOperation(op string) *RequestError {
	return &RequestError{Kind: KindUnknownOperation, Message: fmt.Sprintf(msgUnknownOperation, op)}
}

func saveFailed(err error) *RequestError {
	return &RequestError{Kind: KindPersistence, Message: MsgSaveFailed, Err: err}
}

func internalError(err error) *RequestError {
	return &RequestError{Kind: KindInternal, Message: MsgInternalError, Err: err}
}
