package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"chartengine/internal/compare"
	"chartengine/internal/interaction"
	"chartengine/internal/model"
	"chartengine/internal/render"
	"chartengine/internal/session"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	readLimit  = 4096
)

// Client is one WebSocket peer and its chart session.
type Client struct {
	conn    *websocket.Conn
	hub     *Hub
	session *session.Session
	send    chan []byte

	seq     atomic.Int64
	backlog *Backlog

	// sendMu orders enqueues against closeSend so a frame callback
	// racing the teardown can never hit a closed channel.
	sendMu     sync.Mutex
	sendClosed bool

	cancel context.CancelFunc
}

func newClient(conn *websocket.Conn, sess *session.Session, hub *Hub) *Client {
	return &Client{
		conn:    conn,
		hub:     hub,
		session: sess,
		send:    make(chan []byte, 256),
		backlog: NewBacklog(120),
	}
}

// frameEnvelope wraps a frame with a per-client sequence number so the
// frontend can detect gaps and ask for backfill.
type frameEnvelope struct {
	Type  string        `json:"type"`
	Seq   int64         `json:"seq"`
	Frame *render.Frame `json:"frame"`
}

// start wires the session to the connection and runs the pumps. Blocks
// until the client disconnects.
func (c *Client) start(symbol string, tf model.Timeframe) {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.session.OnFrame = func(f *render.Frame) {
		seq := c.seq.Add(1)
		payload, err := json.Marshal(frameEnvelope{Type: "frame", Seq: seq, Frame: f})
		if err != nil {
			return
		}
		c.backlog.Push(seq, payload)
		// A dropped frame is fine, the next one supersedes it.
		c.enqueue(payload)
	}

	go c.session.Run(ctx)
	if c.hub.fanout != nil {
		ticks := c.hub.fanout.Subscribe()
		go func() {
			for t := range ticks {
				c.session.ApplyTick(t)
			}
		}()
		defer c.hub.fanout.Unsubscribe(ticks)
	}

	if err := c.session.SetSymbol(ctx, symbol, tf); err != nil {
		c.hub.log.Warn("initial symbol load failed", "symbol", symbol, "err", err)
	}

	go c.writePump()
	c.readPump(ctx) // blocks
	cancel()
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			// Batch queued messages into a single WebSocket frame with
			// newline separators.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// controlMsg is the tagged union of everything the frontend sends.
type controlMsg struct {
	Type string `json:"type"`

	// type=input
	Event      string  `json:"event,omitempty"` // down/move/up/leave/wheel
	X          float64 `json:"x,omitempty"`
	Y          float64 `json:"y,omitempty"`
	WheelDelta float64 `json:"wheel_delta,omitempty"`

	// type=set_symbol
	Symbol    string `json:"symbol,omitempty"`
	Timeframe string `json:"tf,omitempty"`

	// type=arm_tool / chart_type / toggle
	Tool      string `json:"tool,omitempty"`
	ChartType string `json:"chart_type,omitempty"`
	Indicator string `json:"indicator,omitempty"`
	Enabled   bool   `json:"enabled,omitempty"`

	// type=replay
	Action string  `json:"action,omitempty"` // start/pause/stop/seek
	Speed  float64 `json:"speed,omitempty"`
	Index  int     `json:"index,omitempty"`

	// type=compare
	Mode string `json:"mode,omitempty"` // off/overlay/split

	// type=trade
	Direction string  `json:"direction,omitempty"`
	Amount    float64 `json:"amount,omitempty"`
	Duration  string  `json:"duration,omitempty"`

	// type=backfill
	FromSeq int64 `json:"from_seq,omitempty"`
	ToSeq   int64 `json:"to_seq,omitempty"`

	// legacy ping
	Ping int64 `json:"ping,omitempty"`
}

func (c *Client) readPump(ctx context.Context) {
	defer c.hub.removeClient(c)

	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg controlMsg
		if json.Unmarshal(raw, &msg) != nil {
			continue
		}
		c.dispatch(ctx, msg)
	}
}

func (c *Client) dispatch(ctx context.Context, msg controlMsg) {
	switch msg.Type {
	case "input":
		ev, ok := parseInputEvent(msg)
		if ok {
			c.session.HandleInput(ev)
		}

	case "set_symbol":
		tf, err := model.ParseTimeframe(msg.Timeframe)
		if err != nil || msg.Symbol == "" {
			c.sendError("symbol and tf are required")
			return
		}
		go func() {
			if err := c.session.SetSymbol(ctx, msg.Symbol, tf); err != nil {
				c.sendError("symbol switch failed: " + err.Error())
			}
		}()

	case "arm_tool":
		if state, ok := parseTool(msg.Tool); ok {
			c.session.ArmTool(state)
		} else {
			c.sendError("unknown tool: " + msg.Tool)
		}

	case "chart_type":
		switch model.ChartType(msg.ChartType) {
		case model.ChartCandles, model.ChartLine:
			c.session.SetChartType(model.ChartType(msg.ChartType))
		default:
			c.sendError("unknown chart type: " + msg.ChartType)
		}

	case "toggle":
		c.session.ToggleIndicator(msg.Indicator, msg.Enabled)

	case "replay":
		switch msg.Action {
		case "start":
			speed := msg.Speed
			if speed <= 0 {
				speed = 1
			}
			c.session.StartReplay(speed)
		case "pause":
			c.session.PauseReplay()
		case "seek":
			c.session.SeekReplay(msg.Index)
		case "stop":
			c.session.StopReplay()
		default:
			c.sendError("unknown replay action: " + msg.Action)
		}

	case "compare":
		mode, ok := parseCompareMode(msg.Mode)
		if !ok {
			c.sendError("unknown compare mode: " + msg.Mode)
			return
		}
		go func() {
			if err := c.session.SetCompare(ctx, mode, msg.Symbol); err != nil {
				c.sendError("compare failed: " + err.Error())
			}
		}()

	case "trade":
		dir := model.TradeDirection(msg.Direction)
		if dir != model.TradeUp && dir != model.TradeDown {
			c.sendError("unknown trade direction: " + msg.Direction)
			return
		}
		dur, err := time.ParseDuration(msg.Duration)
		if err != nil {
			dur = time.Minute
		}
		c.session.PlaceTrade(dir, msg.Amount, dur)

	case "backfill":
		for _, payload := range c.backlog.Range(msg.FromSeq, msg.ToSeq) {
			c.enqueue(payload)
		}

	default:
		if msg.Ping > 0 {
			pong, _ := json.Marshal(map[string]any{
				"type":      "pong",
				"ping":      msg.Ping,
				"server_ts": time.Now().UnixMilli(),
			})
			c.enqueue(pong)
		}
	}
}

// enqueue hands a payload to the write pump. Payloads are dropped when
// the outbound queue is full or the client is already torn down.
func (c *Client) enqueue(payload []byte) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

// closeSend closes the outbound queue exactly once.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
}

func (c *Client) sendError(text string) {
	payload, _ := json.Marshal(map[string]string{"type": "error", "error": text})
	c.enqueue(payload)
}

func parseInputEvent(msg controlMsg) (interaction.Event, bool) {
	ev := interaction.Event{X: msg.X, Y: msg.Y, WheelDelta: msg.WheelDelta}
	switch msg.Event {
	case "down":
		ev.Kind = interaction.PointerDown
	case "move":
		ev.Kind = interaction.PointerMove
	case "up":
		ev.Kind = interaction.PointerUp
	case "leave":
		ev.Kind = interaction.PointerLeave
	case "wheel":
		ev.Kind = interaction.Wheel
	default:
		return ev, false
	}
	return ev, true
}

func parseTool(name string) (interaction.State, bool) {
	switch name {
	case "none":
		return interaction.Idle, true
	case "horizontal":
		return interaction.DrawHorizontal, true
	case "trend":
		return interaction.DrawTrend, true
	case "alert":
		return interaction.PlaceAlert, true
	}
	return interaction.Idle, false
}

func parseCompareMode(mode string) (compare.Mode, bool) {
	switch mode {
	case "off":
		return compare.ModeOff, true
	case "overlay":
		return compare.ModeOverlay, true
	case "split":
		return compare.ModeSplit, true
	}
	return compare.ModeOff, false
}
