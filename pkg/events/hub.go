package events

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// envelope is the wire format sent to websocket clients
type envelope struct {
	Room      string `json:"room"`
	Event     string `json:"event"`
	Payload   any    `json:"payload"`
	Timestamp int64  `json:"timestamp"`
	Seq       int64  `json:"seq"`
}

type hubClient struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *hubClient) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub is a websocket room fan-out implementing Emitter. Clients subscribe to
// rooms at connect time via the `rooms` query parameter.
type Hub struct {
	rooms  map[string]map[*hubClient]bool
	mu     sync.RWMutex
	logger zerolog.Logger
	seq    uint64

	upgrader websocket.Upgrader
}

// NewHub creates a new event hub
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*hubClient]bool),
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Origin checks belong to the routing/auth layer in front of us
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleWebSocket upgrades the connection and subscribes it to the requested rooms
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	rooms := strings.Split(r.URL.Query().Get("rooms"), ",")
	var subscribed []string
	for _, room := range rooms {
		if room = strings.TrimSpace(room); room != "" {
			subscribed = append(subscribed, room)
		}
	}
	if len(subscribed) == 0 {
		http.Error(w, "at least one room is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	clientID, _ := gonanoid.New()
	client := &hubClient{id: clientID, conn: conn}

	h.mu.Lock()
	for _, room := range subscribed {
		if h.rooms[room] == nil {
			h.rooms[room] = make(map[*hubClient]bool)
		}
		h.rooms[room][client] = true
	}
	h.mu.Unlock()

	h.logger.Info().
		Str("clientId", clientID).
		Strs("rooms", subscribed).
		Str("ip", r.RemoteAddr).
		Msg("Client connected")

	go h.readLoop(client, subscribed)
}

// readLoop drains inbound frames until the client disconnects
func (h *Hub) readLoop(client *hubClient, rooms []string) {
	defer h.remove(client, rooms)

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) remove(client *hubClient, rooms []string) {
	h.mu.Lock()
	for _, room := range rooms {
		if members, ok := h.rooms[room]; ok {
			delete(members, client)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	h.mu.Unlock()

	client.conn.Close()
	h.logger.Debug().Str("clientId", client.id).Msg("Client disconnected")
}

// Emit sends an event to every client in the room. Write failures are logged
// and dropped; delivery is at-most-once by design.
func (h *Hub) Emit(room, event string, payload any) {
	msg := envelope{
		Room:      room,
		Event:     event,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
		Seq:       int64(atomic.AddUint64(&h.seq, 1)),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("event", event).Msg("Failed to marshal event")
		return
	}

	h.mu.RLock()
	members := make([]*hubClient, 0, len(h.rooms[room]))
	for client := range h.rooms[room] {
		members = append(members, client)
	}
	h.mu.RUnlock()

	for _, client := range members {
		if err := client.write(data); err != nil {
			h.logger.Warn().
				Err(err).
				Str("clientId", client.id).
				Str("event", event).
				Str("room", room).
				Msg("Failed to deliver event")
		}
	}

	h.logger.Debug().
		Str("event", event).
		Str("room", room).
		Int("clients", len(members)).
		Msg("Event emitted")
}
