package ws

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/dgnsrekt/segstream/internal/frame"
)

// Hub fans processing results out to WebSocket subscribers.
type Hub struct {
	clients    map[*Client]bool
	groups     map[string]map[*Client]bool // group -> clients
	register   chan *Client
	unregister chan *Client
	broadcast  chan *GroupMessage
	done       chan struct{} // closed when Run returns
	mu         sync.RWMutex
	logger     *zap.Logger
}

// GroupMessage represents a message to broadcast to a group.
type GroupMessage struct {
	Group   string
	Payload []byte
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		groups:     make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *GroupMessage, 256),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run processes hub events until ctx is cancelled. Call this in a goroutine.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("outcome feed shutting down")
			h.shutdown()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.JoinGroup(client, GroupOutcomes)
			// Subscribed before the client learns it is connected.
			client.send <- buildConnectedMessage(client.connID)
			h.logger.Debug("client registered", zap.String("connID", client.connID))

		case client := <-h.unregister:
			h.remove(client)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for client := range h.groups[msg.Group] {
				select {
				case client.send <- msg.Payload:
				default:
					// Buffer full, schedule disconnect
					go h.leave(client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// leave asks Run to drop client. Once Run has returned it is a no-op, since
// shutdown already closed every client.
func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	for group := range client.groups {
		if clients, ok := h.groups[group]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.groups, group)
			}
		}
	}
	close(client.send)
	h.logger.Debug("client unregistered", zap.String("connID", client.connID))
}

// shutdown closes all client connections.
func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.groups = make(map[string]map[*Client]bool)
}

// JoinGroup adds a client to a group.
func (h *Hub) JoinGroup(client *Client, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.groups[group] == nil {
		h.groups[group] = make(map[*Client]bool)
	}
	h.groups[group][client] = true
	client.groups[group] = true
}

// LeaveGroup removes a client from a group.
func (h *Hub) LeaveGroup(client *Client, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.groups[group]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.groups, group)
		}
	}
	delete(client.groups, group)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues payload for every client in group. The feed is best
// effort: when the queue is full the message is dropped.
func (h *Hub) Broadcast(group string, payload []byte) {
	select {
	case h.broadcast <- &GroupMessage{Group: group, Payload: payload}:
	default:
		h.logger.Debug("outcome feed queue full, dropping message", zap.String("group", group))
	}
}

// Record publishes each outcome and a batch summary.
func (h *Hub) Record(outcomes []frame.Outcome) error {
	for _, o := range outcomes {
		msg := buildDataMessage(GroupOutcomes, o)
		h.Broadcast(GroupOutcomes, msg)
		if !o.OK() {
			h.Broadcast(GroupFailures, buildDataMessage(GroupFailures, o))
		}
	}
	if len(outcomes) > 0 {
		h.Broadcast(GroupBatches, buildDataMessage(GroupBatches, summarize(outcomes)))
	}
	return nil
}
