package gateway

import (
	"sort"
	"sync"
	"time"

	"github.com/harun/sessiond/internal/observability"
)

// clientIdleAfter is how long a connection may go without a request before
// it is reported as idle
const clientIdleAfter = 5 * time.Minute

// ClientRegistry tracks open WebSocket connections and whether each one is
// waiting on a reply
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewClientRegistry creates a new client registry
func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{
		clients: make(map[string]*Client),
	}
}

// Add registers a connection
func (r *ClientRegistry) Add(client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clients[client.ID] = client
	observability.SetConnectedClients(len(r.clients))
}

// Remove forgets a connection. It reports whether the connection was known.
func (r *ClientRegistry) Remove(clientID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[clientID]; !ok {
		return false
	}
	delete(r.clients, clientID)
	observability.SetConnectedClients(len(r.clients))
	return true
}

// Begin marks a request as outstanding on the connection
func (r *ClientRegistry) Begin(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[clientID]; ok {
		client.LastActivity = time.Now()
		client.Requests++
		client.Pending = true
	}
}

// Finish marks the connection's request as answered
func (r *ClientRegistry) Finish(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[clientID]; ok {
		client.Pending = false
	}
}

// Conns returns the open connections
func (r *ClientRegistry) Conns() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.clients))
	for _, client := range r.clients {
		clients = append(clients, client)
	}
	return clients
}

// Count returns the number of open connections
func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.clients)
}

// Snapshot describes every open connection, oldest first
func (r *ClientRegistry) Snapshot() []ClientInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now()
	infos := make([]ClientInfo, 0, len(r.clients))
	for _, client := range r.clients {
		infos = append(infos, ClientInfo{
			ID:           client.ID,
			ConnectedAt:  client.ConnectedAt,
			LastActivity: client.LastActivity,
			IPAddress:    client.IPAddress,
			Requests:     client.Requests,
			Pending:      client.Pending,
			Idle:         !client.Pending && now.Sub(client.LastActivity) > clientIdleAfter,
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ConnectedAt.Before(infos[j].ConnectedAt)
	})
	return infos
}
