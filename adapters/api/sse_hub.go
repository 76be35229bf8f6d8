package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"bootfit/internal"
)

// Run event types.
const (
	EventProgress = "progress"
	EventFinished = "finished"
	EventFailed   = "failed"
)

// RunEvent is one progress notification for a stream.
type RunEvent struct {
	StreamID  string    `json:"stream_id"`
	EventType string    `json:"event_type"`
	RunID     string    `json:"run_id,omitempty"`
	Completed int       `json:"completed"`
	Total     int       `json:"total"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SSEHub fans run events out to Server-Sent Events subscribers keyed by stream id
type SSEHub struct {
	mu           sync.RWMutex
	clients      map[string]map[chan RunEvent]struct{}
	pingInterval time.Duration
	logger       *internal.Logger
}

// NewSSEHub creates a new SSE hub
func NewSSEHub(logger *internal.Logger) *SSEHub {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &SSEHub{
		clients:      make(map[string]map[chan RunEvent]struct{}),
		pingInterval: 30 * time.Second,
		logger:       logger.With("SSE"),
	}
}

// Subscribe registers a listener for streamID. The returned func unregisters it.
func (h *SSEHub) Subscribe(streamID string) (<-chan RunEvent, func()) {
	ch := make(chan RunEvent, 16)
	h.mu.Lock()
	if h.clients[streamID] == nil {
		h.clients[streamID] = make(map[chan RunEvent]struct{})
	}
	h.clients[streamID][ch] = struct{}{}
	h.logger.Debug("client registered for stream %s (total clients: %d)", streamID, len(h.clients[streamID]))
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if clients, ok := h.clients[streamID]; ok {
				delete(clients, ch)
				if len(clients) == 0 {
					delete(h.clients, streamID)
				}
			}
			close(ch)
		})
	}
}

// Broadcast sends an event to every subscriber of its stream. Full client
// buffers drop the event rather than block the run.
func (h *SSEHub) Broadcast(event RunEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.clients[event.StreamID] {
		select {
		case ch <- event:
		default:
			h.logger.Debug("client channel full for stream %s, skipping %s event", event.StreamID, event.EventType)
		}
	}
}

// ClientCount returns the number of subscribers of streamID
func (h *SSEHub) ClientCount(streamID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[streamID])
}

// HandleSSE streams the events of the stream named by the stream_id query parameter
func (h *SSEHub) HandleSSE(w http.ResponseWriter, r *http.Request) {
	streamID := r.URL.Query().Get("stream_id")
	if streamID == "" {
		http.Error(w, "stream_id parameter required", http.StatusBadRequest)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events, unsubscribe := h.Subscribe(streamID)
	defer unsubscribe()

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case event := <-events:
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Warn("failed to marshal event: %v", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.EventType, data)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprintf(w, "event: ping\ndata: {}\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
