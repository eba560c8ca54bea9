package realtime

import (
	"sort"
	"sync"
)

// ConnectionID identifies one live websocket connection within the registry.
type ConnectionID int64

// Conn is the narrow slice of a websocket connection the hub needs. Satisfied
// by *websocket.Conn from gorilla and by fakes in tests.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// registeredConn pairs a connection with its write lock. Gorilla permits at
// most one concurrent writer per connection, so every socket write goes
// through writeMu.
type registeredConn struct {
	conn    Conn
	writeMu sync.Mutex
}

// Registry tracks live connections. Register, Unregister and ListActive are
// safe for concurrent use; the registry lock only guards map mutation, socket
// writes serialize on the per-connection lock.
type Registry struct {
	mu          sync.RWMutex
	connections map[ConnectionID]*registeredConn
	nextID      ConnectionID
}

// NewRegistry constructs an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{connections: make(map[ConnectionID]*registeredConn)}
}

// Register adds a newly-accepted connection and returns its id.
func (r *Registry) Register(conn Conn) ConnectionID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.connections[id] = &registeredConn{conn: conn}
	return id
}

// Unregister removes a connection. Safe to call for ids already removed.
func (r *Registry) Unregister(id ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.connections, id)
}

// ListActive returns a snapshot of the currently registered connection ids.
func (r *Registry) ListActive() []ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]ConnectionID, 0, len(r.connections))
	for id := range r.connections {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Count reports how many connections are currently registered.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

func (r *Registry) lookup(id ConnectionID) (*registeredConn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.connections[id]
	return entry, ok
}
