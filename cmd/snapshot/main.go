// cmd/snapshot renders a chart PNG from stored candle history without
// starting the server.
//
// Usage:
//
//	go run ./cmd/snapshot --db=data/candles.db --symbol=BTCUSD --tf=1m --out=chart.png
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"strings"
	"time"

	"chartengine/internal/history"
	"chartengine/internal/logger"
	"chartengine/internal/metrics"
	"chartengine/internal/model"
	"chartengine/internal/session"
	"chartengine/internal/snapshot"
)

func main() {
	log := logger.Init("snapshot", slog.LevelWarn)

	dbPath := flag.String("db", "data/candles.db", "Path to SQLite candle database")
	symbol := flag.String("symbol", "BTCUSD", "Symbol to render")
	tfStr := flag.String("tf", "1m", "Timeframe (1m, 5m, 15m, 1h, 4h, 1d)")
	out := flag.String("out", "chart.png", "Output PNG path")
	width := flag.Int("width", 1280, "Chart width in pixels")
	height := flag.Int("height", 640, "Chart height in pixels")
	chartType := flag.String("type", "candles", "Chart type: candles or line")
	indicators := flag.String("indicators", "", "Comma-separated overlays to enable (sma7,sma25,ema7,ema25,bollinger,rsi)")
	flag.Parse()

	tf, err := model.ParseTimeframe(*tfStr)
	if err != nil {
		log.Error("bad timeframe", "tf", *tfStr, "err", err)
		os.Exit(1)
	}

	db, err := history.Open(*dbPath, log)
	if err != nil {
		log.Error("sqlite open failed", "path", *dbPath, "err", err)
		os.Exit(1)
	}
	defer db.Close()

	cfg := session.DefaultConfig()
	cfg.Width = float64(*width)
	cfg.Height = float64(*height)

	m := metrics.New()
	sess := session.New(cfg, db, nil, m, log)
	defer sess.Close()

	if err := sess.SetSymbol(context.Background(), *symbol, tf); err != nil {
		log.Error("load failed", "symbol", *symbol, "err", err)
		os.Exit(1)
	}
	if *chartType == "line" {
		sess.SetChartType(model.ChartLine)
	}
	for _, name := range strings.Split(*indicators, ",") {
		if name = strings.TrimSpace(name); name != "" {
			sess.ToggleIndicator(name, true)
		}
	}

	f, err := os.Create(*out)
	if err != nil {
		log.Error("create output", "path", *out, "err", err)
		os.Exit(1)
	}
	defer f.Close()

	started := time.Now()
	if err := snapshot.WritePNG(sess.BuildFrame(), f); err != nil {
		log.Error("render failed", "err", err)
		os.Exit(1)
	}
	m.SnapshotDur.Observe(time.Since(started).Seconds())
}
