package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocketMessage is the envelope exchanged with stream clients
type WebSocketMessage struct {
	Type      string      `json:"type"` // "snapshot", "auth", "ping", "pong", "error"
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Token     string      `json:"token,omitempty"` // auth messages from the client
}

// ClientConnection is one connected stream client.
// Send is closed by the hub when the client is unregistered.
type ClientConnection struct {
	ID   string
	Conn *websocket.Conn
	Send chan WebSocketMessage
}

type directMessage struct {
	clientID string
	msg      WebSocketMessage
}

// WebSocketHub fans published snapshots out to stream clients. All client
// bookkeeping and every send to a client's channel happen on the Run goroutine.
type WebSocketHub struct {
	logger    *zap.Logger
	publisher *Publisher

	mu      sync.RWMutex
	clients map[string]*ClientConnection

	register   chan *ClientConnection
	unregister chan string
	direct     chan directMessage
	done       chan struct{}
	seq        atomic.Uint64
}

// NewWebSocketHub creates a hub streaming from publisher
func NewWebSocketHub(publisher *Publisher, logger *zap.Logger) *WebSocketHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketHub{
		logger:     logger,
		publisher:  publisher,
		clients:    make(map[string]*ClientConnection),
		register:   make(chan *ClientConnection),
		unregister: make(chan string),
		direct:     make(chan directMessage, 64),
		done:       make(chan struct{}),
	}
}

// Run drives the hub until ctx is cancelled, then disconnects every client
func (h *WebSocketHub) Run(ctx context.Context) error {
	updates, cancel := h.publisher.Subscribe()
	defer cancel()
	defer close(h.done)
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return nil

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client connected", zap.String("client", client.ID), zap.Int("total", total))

			if snap := h.publisher.Current(); snap != nil {
				h.deliver(client, WebSocketMessage{Type: "snapshot", Timestamp: snap.Timestamp, Data: snap})
			}

		case clientID := <-h.unregister:
			// A client's last reply may still be queued behind its unregister.
			h.flushDirect()
			h.mu.Lock()
			if client, ok := h.clients[clientID]; ok {
				delete(h.clients, clientID)
				close(client.Send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", zap.String("client", clientID), zap.Int("total", total))

		case d := <-h.direct:
			h.sendDirect(d)

		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			msg := WebSocketMessage{Type: "snapshot", Timestamp: snap.Timestamp, Data: snap}
			h.mu.RLock()
			for _, client := range h.clients {
				h.deliver(client, msg)
			}
			h.mu.RUnlock()
		}
	}
}

func (h *WebSocketHub) sendDirect(d directMessage) {
	h.mu.RLock()
	client, ok := h.clients[d.clientID]
	h.mu.RUnlock()
	if ok {
		h.deliver(client, d.msg)
	}
}

func (h *WebSocketHub) flushDirect() {
	for {
		select {
		case d := <-h.direct:
			h.sendDirect(d)
		default:
			return
		}
	}
}

// deliver queues msg for client, dropping it if the client is backed up
func (h *WebSocketHub) deliver(client *ClientConnection, msg WebSocketMessage) {
	select {
	case client.Send <- msg:
	default:
		h.logger.Debug("client send buffer full, dropping message", zap.String("client", client.ID))
	}
}

func (h *WebSocketHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		delete(h.clients, id)
		close(client.Send)
	}
}

// NewClientID returns a hub-unique id with the given prefix
func (h *WebSocketHub) NewClientID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, h.seq.Add(1))
}

// Register adds a client. It reports false if the hub has stopped.
func (h *WebSocketHub) Register(client *ClientConnection) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client and closes its Send channel
func (h *WebSocketHub) Unregister(clientID string) {
	select {
	case h.unregister <- clientID:
	case <-h.done:
	}
}

// SendTo queues msg for a single client
func (h *WebSocketHub) SendTo(clientID string, msg WebSocketMessage) {
	select {
	case h.direct <- directMessage{clientID: clientID, msg: msg}:
	case <-h.done:
	default:
		h.logger.Debug("hub direct queue full, dropping message", zap.String("client", clientID))
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
