// Package websocket streams scope announcements to connected clients.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/spotbot/internal/metrics"
)

// Message types
const (
	MessageTypeAnnouncement = "announcement"
	MessageTypeSubscribe    = "subscribe"
	MessageTypeUnsubscribe  = "unsubscribe"
	MessageTypeSubscribed   = "subscribed"
	MessageTypeUnsubscribed = "unsubscribed"
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"
	MessageTypeError        = "error"
)

// ErrHubBusy is returned when the broadcast queue is full.
var ErrHubBusy = errors.New("announcement queue full")

// Message represents a WebSocket message
type Message struct {
	Type      string    `json:"type"`
	ScopeID   string    `json:"scope_id,omitempty"`
	Text      string    `json:"text,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Hub tracks connected clients and the scopes they follow
type Hub struct {
	// Subscribed clients by scope ID
	scopes map[string]map[*Client]bool

	// All connected clients
	allClients map[*Client]bool

	register    chan *Client
	unregister  chan *Client
	broadcast   chan *Message
	subscribe   chan *subscriptionRequest
	unsubscribe chan *subscriptionRequest

	mu      sync.RWMutex
	logger  *slog.Logger
	metrics *metrics.Recorder

	ctx    context.Context
	cancel context.CancelFunc
}

type subscriptionRequest struct {
	client  *Client
	scopeID string
}

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		scopes:      make(map[string]map[*Client]bool),
		allClients:  make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Message, 256),
		subscribe:   make(chan *subscriptionRequest, 64),
		unsubscribe: make(chan *subscriptionRequest, 64),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// SetMetrics attaches a recorder for the connection gauge
func (h *Hub) SetMetrics(rec *metrics.Recorder) {
	h.metrics = rec
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("websocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("websocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client] = true
			n := len(h.allClients)
			h.mu.Unlock()
			h.metrics.SetWebsocketClients(n)
			h.logger.Debug("client registered", "client_id", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.allClients[client]; ok {
				delete(h.allClients, client)
				for scopeID, clients := range h.scopes {
					delete(clients, client)
					if len(clients) == 0 {
						delete(h.scopes, scopeID)
					}
				}
				close(client.send)
			}
			n := len(h.allClients)
			h.mu.Unlock()
			h.metrics.SetWebsocketClients(n)
			h.logger.Debug("client unregistered", "client_id", client.id)

		case req := <-h.subscribe:
			h.mu.Lock()
			if _, ok := h.allClients[req.client]; ok {
				if _, ok := h.scopes[req.scopeID]; !ok {
					h.scopes[req.scopeID] = make(map[*Client]bool)
				}
				h.scopes[req.scopeID][req.client] = true
			}
			h.mu.Unlock()
			h.logger.Debug("client subscribed", "client_id", req.client.id, "scope_id", req.scopeID)

		case req := <-h.unsubscribe:
			h.mu.Lock()
			if clients, ok := h.scopes[req.scopeID]; ok {
				delete(clients, req.client)
				if len(clients) == 0 {
					delete(h.scopes, req.scopeID)
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client unsubscribed", "client_id", req.client.id, "scope_id", req.scopeID)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

// broadcastMessage sends a message to the scope's subscribers
func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	for client := range h.scopes[message.ScopeID] {
		select {
		case client.send <- data:
		default:
			h.logger.Warn("client buffer full, skipping", "client_id", client.id)
		}
	}
}

// Announce queues text for every subscriber of the scope. It implements
// the engine's notifier contract.
func (h *Hub) Announce(ctx context.Context, scopeID, text string) error {
	message := &Message{
		Type:      MessageTypeAnnouncement,
		ScopeID:   scopeID,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}

	select {
	case h.broadcast <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		h.logger.Warn("broadcast channel full, dropping announcement", "scope_id", scopeID)
		return ErrHubBusy
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Subscribe adds a client to a scope's announcements
func (h *Hub) Subscribe(client *Client, scopeID string) {
	h.subscribe <- &subscriptionRequest{client: client, scopeID: scopeID}
}

// Unsubscribe removes a client from a scope's announcements
func (h *Hub) Unsubscribe(client *Client, scopeID string) {
	h.unsubscribe <- &subscriptionRequest{client: client, scopeID: scopeID}
}

// SubscriberCount returns the number of subscribers for a scope
func (h *Hub) SubscriberCount(scopeID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.scopes[scopeID])
}

// TotalConnections returns the total number of connected clients
func (h *Hub) TotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}
