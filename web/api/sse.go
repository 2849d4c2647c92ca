package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// Event is pushed to SSE and websocket clients
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

const (
	broadcastBuffer = 64
	clientBuffer    = 16
)

// Hub fans events out to subscribed clients. Slow clients are dropped
// rather than allowed to block the broadcaster.
type Hub struct {
	clients    map[chan Event]struct{}
	broadcast  chan Event
	register   chan chan Event
	unregister chan chan Event
	stopped    chan struct{}
	mu         sync.RWMutex
}

// NewHub creates a new hub; call Run to start delivering events
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[chan Event]struct{}),
		broadcast:  make(chan Event, broadcastBuffer),
		register:   make(chan chan Event),
		unregister: make(chan chan Event),
		stopped:    make(chan struct{}),
	}
}

// Run delivers events until ctx is cancelled, then closes every client
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client)
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client <- event:
				default:
					close(client)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues an event. It never blocks; events are dropped while
// the queue is full.
func (h *Hub) Broadcast(event Event) {
	select {
	case h.broadcast <- event:
	default:
	}
}

// Subscribe registers a client. The channel is closed when the client is
// dropped or the hub stops. The returned func unsubscribes.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	client := make(chan Event, clientBuffer)
	select {
	case h.register <- client:
	case <-h.stopped:
		close(client)
		return client, func() {}
	}
	return client, func() {
		select {
		case h.unregister <- client:
		case <-h.stopped:
		}
	}
}

// Clients returns the number of subscribed clients
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (s *Server) sseHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming not supported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		events, unsubscribe := s.hub.Subscribe()
		defer unsubscribe()

		for {
			select {
			case <-r.Context().Done():
				return
			case event, ok := <-events:
				if !ok {
					return
				}
				data, err := json.Marshal(event)
				if err != nil {
					s.logger.Warn("encoding event", "type", event.Type, "error", err)
					continue
				}
				fmt.Fprintf(w, "event: %s\n", event.Type)
				fmt.Fprintf(w, "data: %s\n\n", data)
				flusher.Flush()
			}
		}
	}
}
