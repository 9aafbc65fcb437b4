// Package tickfeed connects to the upstream price WebSocket and streams
// live ticks into the chart sessions.
//
// The wire format is plain JSON, one model.Tick per message:
//
//	{"symbol":"BTCUSD","price":67421.5,"qty":0.01,"ts":"..."}
//
// Disconnects reconnect automatically with exponential backoff; ticks
// land in a lock-free ring so a slow consumer never stalls the read loop.
package tickfeed

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"time"

	"chartengine/internal/model"
	"chartengine/internal/ringbuf"

	"github.com/gorilla/websocket"
)

// Config holds configuration for the tick feed.
type Config struct {
	// URL of the tick WebSocket server, e.g. "ws://localhost:9001/ws"
	URL string

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration

	// RingSize is the tick ring capacity. Defaults to 1024.
	RingSize int
}

func (c *Config) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
	if c.RingSize == 0 {
		c.RingSize = 1024
	}
}

// Feed reads ticks from the upstream WebSocket into a ring buffer and
// drains them to a handler on its own goroutine.
type Feed struct {
	cfg  Config
	log  *slog.Logger
	ring *ringbuf.Ring

	// OnReconnect is called each time a reconnection happens.
	OnReconnect func()

	// OnOverflow is called when a tick is dropped because the ring is full.
	OnOverflow func()
}

// New creates a Feed. Returns an error if the URL is unparseable.
func New(cfg Config, log *slog.Logger) (*Feed, error) {
	cfg.defaults()
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Feed{cfg: cfg, log: log, ring: ringbuf.New(cfg.RingSize)}, nil
}

// Ring exposes the tick ring for saturation reporting.
func (f *Feed) Ring() *ringbuf.Ring { return f.ring }

// Start connects and streams ticks until ctx is cancelled, handing each
// tick to handle on a dedicated drain goroutine. Blocks until shutdown.
func (f *Feed) Start(ctx context.Context, handle func(model.Tick)) error {
	drainDone := make(chan struct{})
	go f.drain(ctx, handle, drainDone)
	defer func() { <-drainDone }()

	delay := f.cfg.ReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := f.runOnce(ctx)
		if err == nil {
			// Context cancelled cleanly.
			return nil
		}

		f.log.Warn("feed disconnected", "err", err, "retry_in", delay)
		if f.OnReconnect != nil {
			f.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > f.cfg.MaxReconnectDelay {
			delay = f.cfg.MaxReconnectDelay
		}
	}
}

// drain pops ticks from the ring and invokes the handler. A short sleep
// on empty keeps the loop from spinning.
func (f *Feed) drain(ctx context.Context, handle func(model.Tick), done chan<- struct{}) {
	defer close(done)
	for {
		t, ok := f.ring.Pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Millisecond):
			}
			continue
		}
		handle(t)
	}
}

// runOnce makes a single connection attempt and reads until disconnect
// or ctx cancel.
func (f *Feed) runOnce(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	f.log.Info("feed connected", "url", f.cfg.URL)

	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		var tick model.Tick
		if err := json.Unmarshal(raw, &tick); err != nil {
			f.log.Warn("tick parse error", "err", err)
			continue
		}
		if tick.Symbol == "" {
			continue
		}
		if tick.TS.IsZero() {
			tick.TS = time.Now().UTC()
		}

		if !f.ring.Push(tick) {
			if f.OnOverflow != nil {
				f.OnOverflow()
			}
		}
	}
}
