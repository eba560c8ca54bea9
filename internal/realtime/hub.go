package realtime

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Event types carried over the websocket channel.
const (
	EventDataSyncComplete = "data_sync_complete"
	EventSyncError        = "sync_error"
	EventFullSyncComplete = "full_sync_complete"
	EventFullSyncError    = "full_sync_error"
	EventContestCreated   = "contest_created"
	EventContestJoined    = "contest_joined"
)

const defaultWriteTimeout = 5 * time.Second

var errConnectionGone = errors.New("realtime: connection not registered")

// HubConfig configures the broadcast hub.
type HubConfig struct {
	Registry     *Registry
	Logger       *zap.Logger
	Clock        func() time.Time
	WriteTimeout time.Duration
}

// Hub fans structured events out to every live connection. Delivery is best
// effort: a failed write drops that connection and the broadcast continues.
type Hub struct {
	registry     *Registry
	logger       *zap.Logger
	clock        func() time.Time
	writeTimeout time.Duration
}

// NewHub constructs a Hub bound to the provided registry.
func NewHub(cfg HubConfig) (*Hub, error) {
	if cfg.Registry == nil {
		return nil, errors.New("realtime: registry is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	return &Hub{registry: cfg.Registry, logger: logger, clock: clock, writeTimeout: timeout}, nil
}

// Broadcast serializes the event once and delivers it to every active
// connection. A delivery failure unregisters the offending connection and
// never aborts the rest of the fan-out.
func (h *Hub) Broadcast(eventType string, fields map[string]any) {
	payload := make(map[string]any, len(fields)+2)
	for key, value := range fields {
		payload[key] = value
	}
	payload["type"] = eventType
	payload["timestamp"] = h.clock().UTC().Format(time.RFC3339)

	encoded, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to encode broadcast event", zap.String("event", eventType), zap.Error(err))
		return
	}

	for _, id := range h.registry.ListActive() {
		if err := h.deliver(id, encoded); err != nil {
			h.dropConnection(id, eventType, err)
		}
	}
}

// SendDirect writes a single text message to one connection, dropping the
// connection on failure without surfacing the error to the caller.
func (h *Hub) SendDirect(id ConnectionID, message string) {
	if err := h.deliver(id, []byte(message)); err != nil {
		h.dropConnection(id, "direct", err)
	}
}

func (h *Hub) deliver(id ConnectionID, data []byte) error {
	entry, ok := h.registry.lookup(id)
	if !ok {
		return errConnectionGone
	}
	entry.writeMu.Lock()
	defer entry.writeMu.Unlock()
	if deadlined, ok := entry.conn.(interface{ SetWriteDeadline(time.Time) error }); ok {
		_ = deadlined.SetWriteDeadline(h.clock().Add(h.writeTimeout))
	}
	return entry.conn.WriteMessage(websocket.TextMessage, data)
}

func (h *Hub) dropConnection(id ConnectionID, eventType string, cause error) {
	if errors.Is(cause, errConnectionGone) {
		return
	}
	h.logger.Warn("dropping unreachable websocket connection",
		zap.Int64("connection_id", int64(id)),
		zap.String("event", eventType),
		zap.Error(cause))
	if entry, ok := h.registry.lookup(id); ok {
		_ = entry.conn.Close()
	}
	h.registry.Unregister(id)
}
