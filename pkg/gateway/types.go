package gateway

import (
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/sessiond/pkg/mutation"
)

const (
	// DefaultSessionFile is used when a request does not name a session file
	DefaultSessionFile = "study_sessions.json"

	OperationEdit   = "edit"
	OperationDelete = "delete"

	StatusSuccess = "success"
	StatusError   = "error"
)

// Request is a decoded edit or delete request
type Request struct {
	SessionNumber int64
	// NoMatch is set when session_number is not an integer. Such a request
	// matches no record.
	NoMatch bool
	// SessionLabel is session_number as it appears in replies
	SessionLabel string
	// Operation is kept exactly as received; the router lower-cases it
	Operation      string
	SessionFile    string
	NewSubjectTag  mutation.Field
	NewSessionNote mutation.Field
}

// label returns session_number as it appears in replies
func (r *Request) label() string {
	if r.SessionLabel != "" {
		return r.SessionLabel
	}
	return strconv.FormatInt(r.SessionNumber, 10)
}

// Response is the envelope returned for every request
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Success builds a success response
func Success(message string) Response {
	return Response{Status: StatusSuccess, Message: message}
}

// Failure builds an error response
func Failure(message string) Response {
	return Response{Status: StatusError, Message: message}
}

// OK reports whether the response carries a success status
func (r Response) OK() bool {
	return r.Status == StatusSuccess
}

// ClientInfo represents information about a connected client
type ClientInfo struct {
	ID           string    `json:"id"`
	ConnectedAt  time.Time `json:"connectedAt"`
	LastActivity time.Time `json:"lastActivity"`
	IPAddress    string    `json:"ipAddress"`
	Requests     int       `json:"requests"`
	Pending      bool      `json:"pending"`
	Idle         bool      `json:"idle"`
}

// Client represents a connected WebSocket client
type Client struct {
	ID           string
	Conn         *websocket.Conn
	ConnectedAt  time.Time
	LastActivity time.Time
	IPAddress    string
	Requests     int
	// Pending is true while a request from this connection is in the loop
	Pending bool
}
