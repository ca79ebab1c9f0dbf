// Package transport exposes a presence session over WebSocket. Every bus
// event is broadcast to connected clients as JSON, and clients drive the
// session with input frames.
package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/normanking/cortexpresence/internal/bus"
	"github.com/normanking/cortexpresence/internal/classify"
	"github.com/normanking/cortexpresence/internal/config"
	"github.com/normanking/cortexpresence/internal/emotion"
	"github.com/normanking/cortexpresence/internal/signals"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	// WebSocketEndpoint is the path for WebSocket connections.
	WebSocketEndpoint = "/ws"

	// HealthEndpoint is the path for health checks.
	HealthEndpoint = "/health"

	// WriteWait is the timeout for writing to a WebSocket.
	WriteWait = 10 * time.Second

	// PongWait is the timeout for pong responses.
	PongWait = 60 * time.Second

	// PingPeriod is how often to send ping frames.
	PingPeriod = (PongWait * 9) / 10

	// MaxMessageSize bounds a single inbound frame.
	MaxMessageSize = 64 * 1024

	sendBuffer = 256
)

// ErrUnknownFrame is reported to a client that sends an unrecognized frame type.
var ErrUnknownFrame = errors.New("unknown frame type")

// InputHandler receives the inputs clients send. *engine.Engine implements it.
type InputHandler interface {
	HandleKeystroke(deletion bool)
	HandlePointer(x, y float64)
	SetAnchor(x, y float64)
	ClearAnchor()
	SetMode(mode string)
	SetActiveResponse(active bool)
	HandleTyping(text string)
	HandleAction(action signals.Action) error
	AppendMessage(msg classify.Message) error
	HandleResponse(text string) (emotion.AgentEmotion, error)
	Reset() error
	ApplyPreferences(p config.PreferencesConfig)
}

// Frame is an inbound client message. Type selects which other fields apply.
type Frame struct {
	Type        string                    `json:"type"`
	Deletion    bool                      `json:"deletion,omitempty"`
	X           float64                   `json:"x,omitempty"`
	Y           float64                   `json:"y,omitempty"`
	Clear       bool                      `json:"clear,omitempty"`
	Text        string                    `json:"text,omitempty"`
	Action      signals.Action            `json:"action,omitempty"`
	Mode        string                    `json:"mode,omitempty"`
	Active      bool                      `json:"active,omitempty"`
	Message     *classify.Message         `json:"message,omitempty"`
	Preferences *config.PreferencesConfig `json:"preferences,omitempty"`
}

// Frame types.
const (
	FrameKeystroke   = "keystroke"
	FramePointer     = "pointer"
	FrameAnchor      = "anchor"
	FrameAction      = "action"
	FrameMode        = "mode"
	FrameStreaming   = "streaming"
	FrameTyping      = "typing"
	FrameMessage     = "message"
	FrameResponse    = "response"
	FrameReset       = "reset"
	FramePreferences = "preferences"
)

// Config configures the hub.
type Config struct {
	// AllowedOrigins lists the Origin headers accepted on upgrade. "*"
	// accepts any origin. When empty only same-host origins are accepted.
	AllowedOrigins []string
	// FrameRate is the sustained per-client inbound frame rate.
	FrameRate float64
	// FrameBurst is the per-client inbound burst size.
	FrameBurst int
}

// DefaultConfig returns the default hub configuration.
func DefaultConfig() Config {
	return Config{FrameRate: 120, FrameBurst: 240}
}

// Hub is a WebSocket fan-out for the event bus.
type Hub struct {
	bus      *bus.EventBus
	input    InputHandler
	cfg      Config
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	mu          sync.RWMutex
	clients     map[*Client]struct{}
	unsubscribe func()
	closed      bool

	wg sync.WaitGroup
}

// Client represents a single WebSocket connection.
type Client struct {
	ID      string
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
	once    sync.Once
}

// NewHub creates a hub bound to eventBus. Call Start to begin broadcasting.
func NewHub(eventBus *bus.EventBus, input InputHandler, cfg Config, logger zerolog.Logger) *Hub {
	def := DefaultConfig()
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = def.FrameRate
	}
	if cfg.FrameBurst <= 0 {
		cfg.FrameBurst = def.FrameBurst
	}

	h := &Hub{
		bus:     eventBus,
		input:   input,
		cfg:     cfg,
		logger:  logger.With().Str("component", "hub").Logger(),
		clients: make(map[*Client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Register adds the hub's endpoints to mux.
func (h *Hub) Register(mux *http.ServeMux) {
	mux.HandleFunc(WebSocketEndpoint, h.handleWebSocket)
	mux.HandleFunc(HealthEndpoint, h.handleHealth)
}

// Start subscribes the hub to every bus event.
func (h *Hub) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.unsubscribe != nil || h.closed {
		return
	}
	h.unsubscribe = h.bus.SubscribeAll(h.broadcast)
	h.logger.Info().Msg("Hub started")
}

// Close disconnects every client and waits for their goroutines to exit.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	if h.unsubscribe != nil {
		h.unsubscribe()
		h.unsubscribe = nil
	}
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
		delete(h.clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	h.wg.Wait()
	h.logger.Info().Int("disconnected", len(clients)).Msg("Hub stopped")
}

// ClientCount returns the number of connected WebSocket clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(h.cfg.AllowedOrigins) == 0 {
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	client := &Client{
		ID:      uuid.NewString(),
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		limiter: rate.NewLimiter(rate.Limit(h.cfg.FrameRate), h.cfg.FrameBurst),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[client] = struct{}{}
	// Replay the latest state so a new client renders the current emotion.
	for _, ev := range h.bus.Snapshot() {
		if data, err := json.Marshal(ev); err == nil {
			select {
			case client.send <- data:
			default:
			}
		}
	}
	total := len(h.clients)
	h.wg.Add(2)
	h.mu.Unlock()

	h.logger.Info().Str("client", client.ID).Int("total", total).Msg("Client connected")

	go h.writePump(client)
	go h.readPump(client)
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	remaining := len(h.clients)
	h.mu.Unlock()

	if ok {
		c.close()
		h.logger.Info().Str("client", c.ID).Int("remaining", remaining).Msg("Client disconnected")
	}
}

func (c *Client) close() {
	c.once.Do(func() { close(c.send) })
}

// broadcast is called for every event published to the bus.
func (h *Hub) broadcast(event bus.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("type", string(event.Type)).Msg("Failed to marshal event")
		return
	}

	var slow []*Client
	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn().Str("client", c.ID).Msg("Client too slow, disconnecting")
		h.remove(c)
	}
}

func (h *Hub) writePump(c *Client) {
	defer h.wg.Done()
	ticker := time.NewTicker(PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(c *Client) {
	defer h.wg.Done()
	defer h.remove(c)

	c.conn.SetReadLimit(MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Str("client", c.ID).Msg("WebSocket read error")
			}
			return
		}
		if !c.limiter.Allow() {
			h.logger.Debug().Str("client", c.ID).Msg("Frame dropped, rate limited")
			continue
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.reply(c, fmt.Errorf("decode frame: %w", err))
			continue
		}
		if err := h.dispatch(frame); err != nil {
			h.reply(c, err)
		}
	}
}

// dispatch routes one frame to the input handler.
func (h *Hub) dispatch(f Frame) error {
	switch f.Type {
	case FrameKeystroke:
		h.input.HandleKeystroke(f.Deletion)
	case FramePointer:
		h.input.HandlePointer(f.X, f.Y)
	case FrameAnchor:
		if f.Clear {
			h.input.ClearAnchor()
		} else {
			h.input.SetAnchor(f.X, f.Y)
		}
	case FrameAction:
		return h.input.HandleAction(f.Action)
	case FrameMode:
		h.input.SetMode(f.Mode)
	case FrameStreaming:
		h.input.SetActiveResponse(f.Active)
	case FrameTyping:
		h.input.HandleTyping(f.Text)
	case FrameMessage:
		if f.Message == nil {
			return fmt.Errorf("%s frame without message", FrameMessage)
		}
		return h.input.AppendMessage(*f.Message)
	case FrameResponse:
		_, err := h.input.HandleResponse(f.Text)
		return err
	case FrameReset:
		return h.input.Reset()
	case FramePreferences:
		if f.Preferences == nil {
			return fmt.Errorf("%s frame without preferences", FramePreferences)
		}
		h.input.ApplyPreferences(*f.Preferences)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFrame, f.Type)
	}
	return nil
}

// reply sends an error frame to one client.
func (h *Hub) reply(c *Client, err error) {
	data, _ := json.Marshal(map[string]string{"type": "error", "error": err.Error()})

	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (h *Hub) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := struct {
		Status  string `json:"status"`
		Service string `json:"service"`
		Clients int    `json:"clients"`
		Events  int    `json:"retained_events"`
	}{
		Status:  "healthy",
		Service: "cortexpresence",
		Clients: h.ClientCount(),
		Events:  len(h.bus.Snapshot()),
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(health)
}
