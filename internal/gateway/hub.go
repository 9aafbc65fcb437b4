// Package gateway is the WebSocket surface: each connected client gets
// its own chart session, receives rendered frames, and sends pointer
// and control events back.
package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"chartengine/internal/candlestore"
	"chartengine/internal/metrics"
	"chartengine/internal/model"
	"chartengine/internal/persistence"
	"chartengine/internal/session"
	"chartengine/internal/tickfeed"

	"github.com/gorilla/websocket"
)

// Hub owns the shared collaborators and the set of connected clients.
type Hub struct {
	cfg     session.Config
	source  candlestore.Source
	remote  persistence.Remote
	fanout  *tickfeed.FanOut
	metrics *metrics.Metrics
	log     *slog.Logger

	// DefaultSymbol and DefaultTimeframe are applied to fresh connections.
	DefaultSymbol    string
	DefaultTimeframe model.Timeframe

	// OnTradeIntent is installed on every client session.
	OnTradeIntent func(model.TradeIntent)

	// OnAlert is installed on every client session; it fires when a
	// client's price alert triggers.
	OnAlert func(model.PriceAlert)

	mu      sync.RWMutex
	clients map[*Client]bool

	upgrader websocket.Upgrader
}

// NewHub creates a Hub. remote may be nil (sessions persist locally only);
// fanout may be nil (no live ticks, e.g. snapshot-only deployments).
func NewHub(cfg session.Config, source candlestore.Source, remote persistence.Remote, fanout *tickfeed.FanOut, m *metrics.Metrics, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		cfg:     cfg,
		source:  source,
		remote:  remote,
		fanout:  fanout,
		metrics: m,
		log:     log,

		DefaultSymbol:    "BTCUSD",
		DefaultTimeframe: model.Timeframe(time.Minute),

		clients: make(map[*Client]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// HandleWS upgrades the HTTP connection and runs a chart session for it
// until disconnect.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "err", err)
		return
	}
	conn.EnableWriteCompression(true)

	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		symbol = h.DefaultSymbol
	}
	tf := h.DefaultTimeframe
	if s := r.URL.Query().Get("tf"); s != "" {
		if parsed, err := model.ParseTimeframe(s); err == nil {
			tf = parsed
		}
	}

	var gw *persistence.Gateway
	if h.remote != nil {
		gw = persistence.NewGateway(h.remote, h.log)
	}
	sess := session.New(h.cfg, h.source, gw, h.metrics, h.log)
	sess.OnTradeIntent = h.OnTradeIntent
	sess.OnAlert = h.OnAlert

	client := newClient(conn, sess, h)

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.WSClients.Inc()
	}
	h.log.Info("ws client connected", "total", count, "symbol", symbol)

	client.start(symbol, tf)
}

// removeClient drops a client from the set and tears its session down.
func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.WSClients.Dec()
	}
	// Stop the session's frame loop before retiring the outbound queue;
	// enqueue guards the race with any frame already in flight.
	c.session.Close()
	c.closeSend()
	h.log.Info("ws client disconnected")
}

// BroadcastTradeEvent delivers a trade lifecycle event to every client
// session; each session filters by its own active symbol when rendering.
func (h *Hub) BroadcastTradeEvent(ev model.TradeEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.session.HandleTradeEvent(ev)
	}
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown closes every client connection and waits for sessions to
// flush, bounded by ctx.
func (h *Hub) Shutdown(ctx context.Context) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		for _, c := range clients {
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"),
				time.Now().Add(time.Second))
			h.removeClient(c)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}
