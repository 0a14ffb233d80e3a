package api

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"goprofile/internal"
	apperrors "goprofile/internal/errors"
	"goprofile/ports"
)

// progressClient is one SSE subscriber of a source
type progressClient struct {
	Source  string
	Channel chan ports.ProgressEvent
}

// ProgressHub fans analysis progress events out to Server-Sent Events clients
// subscribed to a source name
type ProgressHub struct {
	clients    map[string]map[chan ports.ProgressEvent]bool
	clientsMu  sync.RWMutex
	register   chan progressClient
	unregister chan progressClient
	broadcast  chan ports.ProgressEvent
	done       chan struct{}
	keepAlive  time.Duration
	logger     *internal.Logger
}

var _ ports.ProgressObserver = (*ProgressHub)(nil)

// NewProgressHub creates a hub and starts its dispatch loop
func NewProgressHub(logger *internal.Logger) *ProgressHub {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	hub := &ProgressHub{
		clients:    make(map[string]map[chan ports.ProgressEvent]bool),
		register:   make(chan progressClient, 10),
		unregister: make(chan progressClient, 10),
		broadcast:  make(chan ports.ProgressEvent, 100),
		done:       make(chan struct{}),
		keepAlive:  30 * time.Second,
		logger:     logger.With("ProgressHub"),
	}

	go hub.run()
	return hub
}

func (h *ProgressHub) run() {
	for {
		select {
		case client := <-h.register:
			h.clientsMu.Lock()
			if h.clients[client.Source] == nil {
				h.clients[client.Source] = make(map[chan ports.ProgressEvent]bool)
			}
			h.clients[client.Source][client.Channel] = true
			h.logger.Debug("Client registered for %s (total clients: %d)", client.Source, len(h.clients[client.Source]))
			h.clientsMu.Unlock()

		case client := <-h.unregister:
			h.clientsMu.Lock()
			if clients, exists := h.clients[client.Source]; exists {
				delete(clients, client.Channel)
				close(client.Channel)
				if len(clients) == 0 {
					delete(h.clients, client.Source)
				}
			}
			h.clientsMu.Unlock()

		case event := <-h.broadcast:
			h.clientsMu.RLock()
			for clientChan := range h.clients[event.Source] {
				select {
				case clientChan <- event:
				default:
					h.logger.Debug("Client channel full for %s, skipping %s event", event.Source, event.Stage)
				}
			}
			h.clientsMu.RUnlock()

		case <-h.done:
			return
		}
	}
}

// OnProgress queues an event for the subscribers of its source. A full queue
// drops the event rather than stall the analysis.
func (h *ProgressHub) OnProgress(event ports.ProgressEvent) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Debug("Broadcast channel full, dropping %s event for %s", event.Stage, event.Source)
	}
}

// Close stops the dispatch loop
func (h *ProgressHub) Close() {
	close(h.done)
}

// ClientCount returns the number of subscribers of a source
func (h *ProgressHub) ClientCount(source string) int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients[source])
}

// HandleEvents streams the progress of one source until the client leaves or
// the run completes
func (h *ProgressHub) HandleEvents(c *gin.Context) {
	source := c.Query("source")
	if source == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "source parameter required", "code": apperrors.CodeInvalidInput})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	clientChan := make(chan ports.ProgressEvent, 10)
	h.register <- progressClient{Source: source, Channel: clientChan}
	defer func() {
		h.unregister <- progressClient{Source: source, Channel: clientChan}
	}()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-clientChan:
			if !ok {
				return false
			}
			payload, err := json.Marshal(event)
			if err != nil {
				h.logger.Warn("Failed to marshal progress event: %v", err)
				return true
			}
			c.SSEvent("progress", string(payload))
			return event.Stage != "complete" && event.Stage != "error"

		case <-time.After(h.keepAlive):
			c.SSEvent("ping", `{"status": "alive"}`)
			return true

		case <-ctx.Done():
			return false
		}
	})
}
