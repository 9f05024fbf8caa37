// Package ws relays settlement, dealing and fairness bus events to
// websocket clients. Clients may narrow the stream to a channel set and to
// one game, table or bettor.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/housefun/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // must be less than pongWait
	maxMessageSize = 4096
	sendBufferSize = 256
	replayLimit    = 100
	replayTimeout  = 3 * time.Second
)

// defaultChannels are the bus channels relayed to clients.
var defaultChannels = []string{
	domain.ChannelSettlement,
	domain.ChannelDealing,
	domain.ChannelFairness,
}

// Subscriber is the slice of the signal bus the hub reads from.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// Replayer is implemented by buses that keep the settlement stream. With
// one, a client can resume from the last stream id it saw.
type Replayer interface {
	Replay(ctx context.Context, stream, afterID string, count int) ([]domain.StreamMessage, error)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS middleware in front of /ws.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Config is the runtime metadata reported to clients on connect.
type Config struct {
	Mode      string
	Protocol  string
	StartedAt time.Time
}

// Hub fans bus events out to connected clients.
type Hub struct {
	bus    Subscriber
	replay Replayer
	logger *slog.Logger
	cfg    Config

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates a hub reading from bus.
func NewHub(bus Subscriber, logger *slog.Logger, cfg Config) *Hub {
	cfg.Mode = normalize(cfg.Mode)
	cfg.Protocol = normalize(cfg.Protocol)
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now().UTC()
	}
	h := &Hub{
		bus:     bus,
		logger:  logger.With(slog.String("component", "ws_hub")),
		cfg:     cfg,
		clients: make(map[*client]struct{}),
	}
	h.replay, _ = bus.(Replayer)
	return h
}

func normalize(s string) string {
	if s = strings.ToLower(strings.TrimSpace(s)); s == "" {
		return "unknown"
	}
	return s
}

// Run subscribes to every relayed channel and blocks until ctx is done,
// then disconnects all clients.
func (h *Hub) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, ch := range defaultChannels {
		msgs, err := h.bus.Subscribe(ctx, ch)
		if err != nil {
			h.logger.ErrorContext(ctx, "ws: subscribe failed", slog.String("channel", ch), slog.String("error", err.Error()))
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.relay(ctx, ch, msgs)
		}()
	}

	<-ctx.Done()
	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	h.mu.Unlock()
	wg.Wait()
	return ctx.Err()
}

func (h *Hub) relay(ctx context.Context, channel string, msgs <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgs:
			if !ok {
				h.logger.WarnContext(ctx, "ws: bus subscription closed", slog.String("channel", channel))
				return
			}
			h.broadcast(channel, data)
		}
	}
}

// broadcast delivers data to every matching client. Slow clients lose the
// message rather than stall the relay.
func (h *Hub) broadcast(channel string, data []byte) {
	ref := refOf(data)

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.wants(channel, ref) {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Warn("ws: dropping event for slow client", slog.String("channel", channel))
		}
	}
}

// HandleWS upgrades the connection and starts the client pumps.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(r.Context(), "ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, sendBufferSize)}
	c.filter.channels = slices.Clone(defaultChannels)
	c.send <- h.statusFrame()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("ws: client connected", slog.Int("clients", n))

	go c.writePump()
	go c.readPump()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("ws: client disconnected", slog.Int("clients", n))
}

// replayFor collects settlement events after since that c would have
// received.
func (h *Hub) replayFor(c *client, since string) [][]byte {
	if h.replay == nil || !c.listens(domain.ChannelSettlement) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), replayTimeout)
	defer cancel()
	msgs, err := h.replay.Replay(ctx, domain.StreamSettlement, since, replayLimit)
	if err != nil {
		h.logger.Warn("ws: replay failed", slog.String("since", since), slog.String("error", err.Error()))
		return nil
	}
	var frames [][]byte
	for _, m := range msgs {
		if c.wants(domain.ChannelSettlement, refOf(m.Payload)) {
			frames = append(frames, m.Payload)
		}
	}
	return frames
}

// deliver queues frames for c if it is still registered, dropping what does
// not fit.
func (h *Hub) deliver(c *client, frames ...[]byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	for _, f := range frames {
		select {
		case c.send <- f:
		default:
			return
		}
	}
}

func (h *Hub) statusFrame() []byte {
	frame, _ := json.Marshal(map[string]any{
		"type": "engine_status",
		"data": map[string]any{
			"mode":           h.cfg.Mode,
			"protocol":       h.cfg.Protocol,
			"ws_connected":   true,
			"uptime_seconds": max(0, int64(time.Since(h.cfg.StartedAt).Seconds())),
			"channels":       defaultChannels,
		},
	})
	return frame
}

// eventRef holds the ids an event can be filtered on.
type eventRef struct {
	GameID  string `json:"game_id"`
	TableID string `json:"table_id"`
	Bettor  string `json:"bettor"`
}

func refOf(data []byte) eventRef {
	var env struct {
		Data eventRef `json:"data"`
	}
	_ = json.Unmarshal(data, &env)
	return env.Data
}

// subscribeMsg changes a client's filter. Channels replace the current set
// when non-empty; "ch:*" selects every channel. Empty ids clear that filter.
// Since, when set on a subscribe, replays settlement events after that
// stream id ("0" for the retained history) ahead of live traffic.
//
//	{"action":"subscribe","channels":["ch:dealing"],"table_id":"t1"}
type subscribeMsg struct {
	Action   string   `json:"action"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
	GameID   string   `json:"game_id"`
	TableID  string   `json:"table_id"`
	Bettor   string   `json:"bettor"`
	Since    string   `json:"since"`
}

type filter struct {
	channels []string
	ref      eventRef
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	filter filter
}

func (c *client) listens(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.ContainsFunc(c.filter.channels, func(s string) bool { return channelMatch(s, channel) })
}

func (c *client) wants(channel string, ref eventRef) bool {
	if !c.listens(channel) {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	f := c.filter.ref
	return idMatch(f.GameID, ref.GameID) && idMatch(f.TableID, ref.TableID) && idMatch(f.Bettor, ref.Bettor)
}

func channelMatch(pattern, channel string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(channel, prefix)
	}
	return pattern == channel
}

func idMatch(want, got string) bool { return want == "" || want == got }

// apply updates the filter and returns the acknowledgement frame.
func (c *client) apply(msg subscribeMsg) []byte {
	c.mu.Lock()
	switch msg.Action {
	case "subscribe":
		if len(msg.Channels) > 0 {
			c.filter.channels = slices.Clone(msg.Channels)
		}
		c.filter.ref = eventRef{GameID: msg.GameID, TableID: msg.TableID, Bettor: msg.Bettor}
	case "unsubscribe":
		c.filter.channels = slices.DeleteFunc(c.filter.channels, func(s string) bool {
			return slices.Contains(msg.Channels, s)
		})
	}
	f := c.filter
	c.mu.Unlock()

	ack, _ := json.Marshal(map[string]any{
		"type": "subscribed",
		"data": map[string]any{
			"channels": f.channels,
			"game_id":  f.ref.GameID,
			"table_id": f.ref.TableID,
			"bettor":   f.ref.Bettor,
		},
	})
	return ack
}

func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		var msg subscribeMsg
		if json.Unmarshal(raw, &msg) != nil || msg.Action == "" {
			continue
		}
		frames := [][]byte{c.apply(msg)}
		if msg.Action == "subscribe" && msg.Since != "" {
			frames = append(frames, c.hub.replayFor(c, msg.Since)...)
		}
		c.hub.deliver(c, frames...)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
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
