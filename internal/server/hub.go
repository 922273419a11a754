package server

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/cortexlipsync/internal/avatar3d"
	"github.com/normanking/cortexlipsync/internal/bus"
	"github.com/normanking/cortexlipsync/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

// Message types sent on /frames.
const (
	MessageHello = "hello"
	MessageFrame = "frame"
	MessageEvent = "event"
)

type helloMessage struct {
	Type    string   `json:"type"`
	Targets []string `json:"targets"`
	FPS     int      `json:"fps"`
}

type frameMessage struct {
	Type    string    `json:"type"`
	Seq     uint64    `json:"seq"`
	Weights []float32 `json:"weights"`
}

type eventMessage struct {
	Type  string         `json:"type"`
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
}

// Hub streams morph frames and bus events to WebSocket clients. Frames are
// dropped for clients that fall behind; events are dropped the same way.
type Hub struct {
	layout   avatar3d.Layout
	fps      int
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	seq     atomic.Uint64
	scratch []float32 // tick goroutine only

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// NewHub creates a hub that encodes frames in layout order.
func NewHub(layout avatar3d.Layout, fps int, logger zerolog.Logger) *Hub {
	if layout == nil {
		layout = avatar3d.ChannelLayout{}
	}
	return &Hub{
		layout: layout,
		fps:    fps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:  logger.With().Str("component", "frame-hub").Logger(),
		clients: make(map[*client]struct{}),
	}
}

// Subscribe forwards every bus event to clients.
func (h *Hub) Subscribe(eventBus *bus.EventBus) {
	eventBus.SubscribeAll(h.BroadcastEvent)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastFrame encodes a frame and queues it for every client. It is a
// playback.FrameSink and runs on the tick goroutine.
func (h *Hub) BroadcastFrame(frame avatar3d.MorphFrame) {
	if h.ClientCount() == 0 {
		return
	}
	h.scratch = h.layout.Weights(&frame, h.scratch)
	data, err := sonic.Marshal(frameMessage{
		Type:    MessageFrame,
		Seq:     h.seq.Add(1),
		Weights: h.scratch,
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode frame")
		return
	}
	h.broadcast(data)
}

// BroadcastEvent queues a bus event for every client.
func (h *Hub) BroadcastEvent(e bus.Event) {
	data, err := sonic.Marshal(eventMessage{Type: MessageEvent, Event: string(e.Type), Data: e.Data})
	if err != nil {
		h.logger.Error().Err(err).Str("event", string(e.Type)).Msg("Failed to encode event")
		return
	}
	h.broadcast(data)
}

func (h *Hub) broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
		}
	}
}

// ServeHTTP upgrades the connection, sends the hello message and starts the
// client's pumps.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	hello, err := sonic.Marshal(helloMessage{Type: MessageHello, Targets: h.layout.Names(), FPS: h.fps})
	if err != nil {
		conn.Close()
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	c.send <- hello

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	metrics.FrameClients.Set(float64(count))
	h.logger.Info().Int("clients", count).Msg("Client connected")

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()

	if ok {
		c.close()
		metrics.FrameClients.Set(float64(count))
		h.logger.Info().Int("clients", count).Msg("Client disconnected")
	}
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.close()
	}
	metrics.FrameClients.Set(0)
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.unregister(c)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.unregister(c)
				return
			}
		}
	}
}

// readPump only services control frames; clients do not send data.
func (h *Hub) readPump(c *client) {
	defer h.unregister(c)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug().Err(err).Msg("WebSocket read error")
			}
			return
		}
	}
}
