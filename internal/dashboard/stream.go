package dashboard

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"compliancedash/internal/feed/memorystore"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 8
)

// Hub pushes every store replacement to connected WebSocket views.
// A view receives the current snapshot as soon as it connects.
type Hub struct {
	store    *memorystore.SnapshotStore
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool

	unsubscribe func()
}

type wsClient struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// NewHub subscribes to store. Call Close to detach and drop all clients.
func NewHub(store *memorystore.SnapshotStore, logger *zap.Logger) *Hub {
	h := &Hub{
		store:   store,
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
	h.unsubscribe = store.Subscribe(h.broadcast)
	return h
}

// broadcast runs inside SnapshotStore.Replace and must not block: clients
// whose buffer is full are disconnected.
func (h *Hub) broadcast(snap memorystore.Snapshot) {
	msg, err := encodeSnapshot(snap)
	if err != nil {
		h.logger.Error("failed to encode snapshot", zap.Uint64("version", snap.Version), zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("slow view client dropped", zap.String("client", c.id.String()))
			h.dropLocked(c)
		}
	}
}

// ServeHTTP upgrades the request and streams snapshots until the peer leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &wsClient{
		id:   uuid.New(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	if !h.register(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	h.logger.Info("view client connected", zap.String("client", c.id.String()), zap.String("remote", r.RemoteAddr))

	go h.writePump(c)
	h.readPump(c)
}

// register queues the current snapshot and adds c to the broadcast set in
// one step, so c never sees an older snapshot after a newer one.
func (h *Hub) register(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}

	msg, err := encodeSnapshot(h.store.Current())
	if err != nil {
		h.logger.Error("failed to encode snapshot", zap.Error(err))
		return false
	}
	c.send <- msg
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

func (h *Hub) dropLocked(c *wsClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	c.once.Do(func() { close(c.send) })
}

// readPump discards inbound frames; it exists to process control frames
// and notice when the peer goes away.
func (h *Hub) readPump(c *wsClient) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
		h.logger.Info("view client disconnected", zap.String("client", c.id.String()))
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.logger.Debug("websocket write failed", zap.String("client", c.id.String()), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Clients returns the number of connected views.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close unsubscribes from the store and disconnects every client.
func (h *Hub) Close() {
	h.unsubscribe()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.dropLocked(c)
	}
}

func encodeSnapshot(snap memorystore.Snapshot) ([]byte, error) {
	return json.Marshal(StreamMessage{
		Topic: TopicTransactions,
		Type:  TypeSnapshot,
		Ts:    time.Now().UnixMilli(),
		Data:  snap,
	})
}
