// Package client talks to a running sessiond gateway.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/sessiond/pkg/mutation"
)

// Request is an edit or delete request as sent on the wire
type Request struct {
	SessionNumber int64
	Operation     string
	// SessionFile is omitted when empty
	SessionFile    string
	NewSubjectTag  mutation.Field
	NewSessionNote mutation.Field
}

// MarshalJSON omits fields that are not set and writes null for cleared ones
func (r Request) MarshalJSON() ([]byte, error) {
	body := map[string]interface{}{
		"session_number": r.SessionNumber,
		"operation":      r.Operation,
	}
	if r.SessionFile != "" {
		body["session_file"] = r.SessionFile
	}
	if r.NewSubjectTag.Set {
		body["new_subject_tag"] = r.NewSubjectTag.Value
	}
	if r.NewSessionNote.Set {
		body["new_session_note"] = r.NewSessionNote.Value
	}
	return json.Marshal(body)
}

// Response is the server's reply
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// OK reports whether the server accepted the request
func (r Response) OK() bool {
	return r.Status == "success"
}

// Client keeps one WebSocket connection open and sends requests over it one
// at a time
type Client struct {
	conn    *websocket.Conn
	mu      sync.Mutex
	timeout time.Duration
}

// Dial connects to the gateway at addr (host:port)
func Dial(ctx context.Context, addr string) (*Client, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws"}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return &Client{conn: conn, timeout: 30 * time.Second}, nil
}

// Send marshals req, sends it and waits for the reply
func (c *Client) Send(ctx context.Context, req Request) (Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("failed to encode request: %w", err)
	}
	return c.SendRaw(ctx, payload)
}

// SendRaw sends payload unchanged and waits for the reply
func (c *Client) SendRaw(ctx context.Context, payload []byte) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline)
	_ = c.conn.SetReadDeadline(deadline)

	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return Response{}, fmt.Errorf("failed to send request: %w", err)
	}

	var resp Response
	if err := c.conn.ReadJSON(&resp); err != nil {
		return Response{}, fmt.Errorf("failed to read response: %w", err)
	}
	return resp, nil
}

// Close sends a close frame and closes the connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return c.conn.Close()
}

// Post sends a single request to the gateway's HTTP endpoint
func Post(ctx context.Context, addr string, req Request) (Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("failed to encode request: %w", err)
	}

	u := url.URL{Scheme: "http", Host: addr, Path: "/rpc"}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return Response{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("failed to post request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return Response{}, fmt.Errorf("gateway returned %s: %s", httpResp.Status, bytes.TrimSpace(body))
	}

	var resp Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp, nil
}
