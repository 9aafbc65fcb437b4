// cmd/tickserver — Demo WebSocket tick server.
// Broadcasts simulated tick data for running chartd without a real
// market data subscription.
//
// Tick JSON shape is identical to model.Tick:
//
//	{"symbol":"BTCUSD","price":67421.5,"qty":0.03,"ts":"..."}
//
// Config (env vars):
//
//	TICK_SERVER_ADDR   — listen address  (default: ":9001")
//	TICK_SYMBOLS       — comma-separated symbols (default: "BTCUSD,ETHUSD")
//	TICK_INTERVAL_MS   — broadcast interval milliseconds (default: "100")
//	TRADE_REDIS_ADDR   — enable the trade settlement sim on this Redis (default: off)
//	TRADE_INTERVAL_MS  — sim trade placement interval (default: "5000")
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"chartengine/internal/model"
	"chartengine/internal/trades"

	goredis "github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
)

// instrument holds per-symbol simulation state.
type instrument struct {
	Symbol string
	Price  float64
}

// priceBook shares last simulated prices between the tick generator and
// the trade settlement sim.
type priceBook struct {
	mu sync.RWMutex
	m  map[string]float64
}

func newPriceBook() *priceBook {
	return &priceBook{m: make(map[string]float64)}
}

func (b *priceBook) set(symbol string, price float64) {
	b.mu.Lock()
	b.m[symbol] = price
	b.mu.Unlock()
}

func (b *priceBook) get(symbol string) (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.m[symbol]
	return p, ok
}

// ─── Hub ──────────────────────────────────────────────────────────────────────

type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]chan []byte)}
}

func (h *hub) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 256)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default: // slow client — drop tick
		}
	}
}

// ─── WebSocket handler ────────────────────────────────────────────────────────

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func wsHandler(h *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[tickserver] upgrade error: %v", err)
			return
		}
		log.Printf("[tickserver] client connected: %s", r.RemoteAddr)

		ch := h.register(conn)
		defer func() {
			h.unregister(conn)
			conn.Close()
			log.Printf("[tickserver] client disconnected: %s", r.RemoteAddr)
		}()

		// Write pump: sends tick JSON to this client.
		for msg := range ch {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// ─── Tick generator ──────────────────────────────────────────────────────────

// walkPrice applies a tiny random walk (±0.1%) to simulate price movement.
func walkPrice(price float64) float64 {
	pct := (rand.Float64()*0.2 - 0.1) / 100.0
	newPrice := price * (1 + pct)
	if newPrice < 0.01 {
		newPrice = 0.01
	}
	return newPrice
}

func runGenerator(h *hub, instruments []instrument, book *priceBook, intervalMs int) {
	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		for i := range instruments {
			instruments[i].Price = walkPrice(instruments[i].Price)
			book.set(instruments[i].Symbol, instruments[i].Price)
			msg := model.Tick{
				Symbol: instruments[i].Symbol,
				Price:  instruments[i].Price,
				Qty:    rand.Float64() * 2,
				TS:     time.Now().UTC(),
			}
			b, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			h.broadcast(b)
		}
	}
}

// ─── Trade settlement sim ─────────────────────────────────────────────────────

const settleAfter = 10 * time.Second

// runTradeSim periodically places a simulated trade against the current
// price and settles it after settleAfter: wins pay 80% of the stake,
// losses forfeit it.
func runTradeSim(pub *trades.Publisher, book *priceBook, symbols []string, intervalMs int) {
	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		symbol := symbols[rand.Intn(len(symbols))]
		entry, ok := book.get(symbol)
		if !ok {
			continue
		}

		dir := model.TradeUp
		if rand.Intn(2) == 0 {
			dir = model.TradeDown
		}
		amount := float64(10 * (1 + rand.Intn(10)))
		id := model.NewID("trd")

		err := pub.Publish(context.Background(), model.TradeEvent{
			Kind: model.TradePlaced, ID: id, Symbol: symbol,
			TS: time.Now().UTC(), Price: entry, Direction: dir, Amount: amount,
		})
		if err != nil {
			log.Printf("[tickserver] trade publish error: %v", err)
			continue
		}

		go func() {
			time.Sleep(settleAfter)
			exit, _ := book.get(symbol)
			profit := -amount
			if (dir == model.TradeUp && exit > entry) || (dir == model.TradeDown && exit < entry) {
				profit = amount * 0.8
			}
			err := pub.Publish(context.Background(), model.TradeEvent{
				Kind: model.TradeSettled, ID: id, Symbol: symbol,
				TS: time.Now().UTC(), Price: exit, Direction: dir,
				Amount: amount, Profit: profit,
			})
			if err != nil {
				log.Printf("[tickserver] settle publish error: %v", err)
			}
		}()
	}
}

// ─── main ─────────────────────────────────────────────────────────────────────

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[tickserver] starting demo tick server...")

	addr := envOrDefault("TICK_SERVER_ADDR", ":9001")
	symbolsEnv := envOrDefault("TICK_SYMBOLS", "BTCUSD,ETHUSD")
	intervalMs := envIntOrDefault("TICK_INTERVAL_MS", 100)

	instruments := parseInstruments(symbolsEnv)
	if len(instruments) == 0 {
		log.Fatalf("[tickserver] no symbols configured via TICK_SYMBOLS")
	}
	log.Printf("[tickserver] instruments: %+v", instruments)
	log.Printf("[tickserver] broadcast interval: %dms", intervalMs)

	h := newHub()
	book := newPriceBook()

	go runGenerator(h, instruments, book, intervalMs)

	if tradeRedis := os.Getenv("TRADE_REDIS_ADDR"); tradeRedis != "" {
		rdb := goredis.NewClient(&goredis.Options{Addr: tradeRedis})
		symbols := make([]string, len(instruments))
		for i, ins := range instruments {
			symbols[i] = ins.Symbol
		}
		tradeIntervalMs := envIntOrDefault("TRADE_INTERVAL_MS", 5000)
		log.Printf("[tickserver] trade settlement sim enabled: redis=%s interval=%dms", tradeRedis, tradeIntervalMs)
		go runTradeSim(trades.NewPublisher(rdb), book, symbols, tradeIntervalMs)
	}

	http.HandleFunc("/ws", wsHandler(h))
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"tickserver"}`)
	})

	log.Printf("[tickserver] listening on %s  (WebSocket: ws://localhost%s/ws)", addr, addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("[tickserver] server error: %v", err)
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func parseInstruments(s string) []instrument {
	// Plausible starting prices per symbol.
	defaultPrices := map[string]float64{
		"BTCUSD": 67000,
		"ETHUSD": 3500,
		"SOLUSD": 150,
		"EURUSD": 1.08,
	}

	var result []instrument
	for _, part := range strings.Split(s, ",") {
		symbol := strings.TrimSpace(part)
		if symbol == "" {
			continue
		}
		price := defaultPrices[symbol]
		if price == 0 {
			price = 100
		}
		result = append(result, instrument{Symbol: symbol, Price: price})
	}
	return result
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
