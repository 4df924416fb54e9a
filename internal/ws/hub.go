package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"barter-service/internal/events"
	"barter-service/internal/gset"
	"barter-service/internal/observability"
)

const lifecycleRoutingKey = "ws_events.barter"

// Publisher receives websocket lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

type client struct {
	conn *websocket.Conn
	info ConnInfo
	// gorilla connections allow one concurrent writer
	writeMu sync.Mutex
}

// Hub maintains the active websocket connections of each user.
type Hub struct {
	clients   map[string]map[*websocket.Conn]*client
	publisher Publisher
	mu        sync.RWMutex
}

// NewHub creates an empty hub. publisher may be nil.
func NewHub(publisher Publisher) *Hub {
	return &Hub{
		clients:   make(map[string]map[*websocket.Conn]*client),
		publisher: publisher,
	}
}

// AddClient registers a websocket connection for a user.
func (h *Hub) AddClient(userID string, conn *websocket.Conn, info ConnInfo) {
	userID = gset.NormalizeID(userID)
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[userID]; !ok {
		h.clients[userID] = make(map[*websocket.Conn]*client)
	}
	h.clients[userID][conn] = &client{conn: conn, info: info}
}

// RemoveClient removes a websocket connection.
func (h *Hub) RemoveClient(userID string, conn *websocket.Conn) {
	userID = gset.NormalizeID(userID)
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.clients[userID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.clients, userID)
		}
	}
}

// ClientCount returns the number of open connections of a user.
func (h *Hub) ClientCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[gset.NormalizeID(userID)])
}

// Notify pushes evt to every connection of the users it names. It is meant
// to be subscribed to the event bus.
func (h *Hub) Notify(ctx context.Context, evt events.Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		log.Printf("websocket encode error: %v", err)
		return
	}
	for _, userID := range evt.UserIDs {
		userID = gset.NormalizeID(userID)
		for _, cl := range h.snapshot(userID) {
			if err := cl.write(payload); err != nil {
				log.Printf("websocket write error: %v", err)
				cl.conn.Close()
				h.RemoveClient(userID, cl.conn)
				observability.IncWSEvent("ws_error")
				h.publishLifecycle(ctx, "ws_error", cl.info, err.Error())
				continue
			}
			observability.IncWSEvent(evt.Type)
		}
	}
}

func (h *Hub) snapshot(userID string) []*client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*client, 0, len(h.clients[userID]))
	for _, cl := range h.clients[userID] {
		out = append(out, cl)
	}
	return out
}

func (cl *client) write(payload []byte) error {
	cl.writeMu.Lock()
	defer cl.writeMu.Unlock()
	return cl.conn.WriteMessage(websocket.TextMessage, payload)
}

func (h *Hub) publishLifecycle(ctx context.Context, event string, info ConnInfo, reason string) {
	if h.publisher == nil {
		return
	}

	err := h.publisher.Publish(ctx, lifecycleRoutingKey, observability.EventEnvelope{
		EventType: observability.EnvelopeWSEvents,
		EventName: event,
		TraceID:   info.TraceID,
		Payload:   info.lifecyclePayload(event, reason),
	})
	if err != nil {
		observability.IncAMQPPublishError()
	}
}
