package wschat

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// Registry tracks open chat connections per client so they can be closed
// on shutdown.
type Registry struct {
	mu     sync.RWMutex
	active map[string]map[string]*websocket.Conn
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{active: make(map[string]map[string]*websocket.Conn)}
}

// Register adds a connection for a client.
func (m *Registry) Register(clientIP, connID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.active[clientIP]; !ok {
		m.active[clientIP] = make(map[string]*websocket.Conn)
	}
	m.active[clientIP][connID] = conn
	slog.Debug("Chat connection registered", "client_ip", clientIP, "conn_id", connID)
}

// Unregister removes a connection if it is still the registered one.
func (m *Registry) Unregister(clientIP, connID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conns, ok := m.active[clientIP]
	if !ok {
		return
	}
	if current, exists := conns[connID]; exists && current == conn {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(m.active, clientIP)
		}
	}
}

// Count returns the number of open connections.
func (m *Registry) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, conns := range m.active {
		n += len(conns)
	}
	return n
}

// CloseAll closes every registered connection with a going-away status.
func (m *Registry) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for ip, conns := range m.active {
		for id, conn := range conns {
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			slog.Info("Chat connection closed", "client_ip", ip, "conn_id", id)
		}
	}
	m.active = make(map[string]map[string]*websocket.Conn)
}
