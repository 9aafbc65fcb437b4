package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"chartengine/config"
	"chartengine/internal/api"
	"chartengine/internal/broker"
	"chartengine/internal/gateway"
	"chartengine/internal/history"
	"chartengine/internal/logger"
	"chartengine/internal/metrics"
	"chartengine/internal/model"
	"chartengine/internal/notification"
	"chartengine/internal/persistence"
	"chartengine/internal/session"
	"chartengine/internal/tickfeed"
	"chartengine/internal/trades"
)

func main() {
	log := logger.Init("chartd", slog.LevelInfo)

	cfgPath := os.Getenv("CHARTD_CONFIG")
	if cfgPath == "" {
		cfgPath = "chartd.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Error("config load failed", "err", err)
		os.Exit(1)
	}
	defaultTF, _ := cfg.ParseDefaultTimeframe()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	go metrics.Serve(ctx, cfg.MetricsAddr, log)

	// ---- Candle history (sqlite) ----
	db, err := history.Open(cfg.SQLitePath, log)
	if err != nil {
		log.Error("sqlite open failed", "path", cfg.SQLitePath, "err", err)
		os.Exit(1)
	}
	defer db.Close()

	// ---- Redis: annotation mirror + trade event bus ----
	var remote persistence.Remote
	var tradeSub *trades.Subscriber
	if cfg.RedisAddr != "" {
		rr, err := persistence.NewRedisRemote(cfg.RedisAddr, cfg.RedisPassword, 0)
		if err != nil {
			log.Warn("redis unavailable, annotations stay local-only", "addr", cfg.RedisAddr, "err", err)
		} else {
			remote = rr
			defer rr.Close()

			rdb := goredis.NewClient(&goredis.Options{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
			})
			defer rdb.Close()
			tradeSub = trades.NewSubscriber(rdb, log)
		}
	}

	// ---- Tick feed: WS source -> ring -> fanout ----
	feed, err := tickfeed.New(tickfeed.Config{URL: cfg.FeedURL}, log)
	if err != nil {
		log.Error("tick feed init failed", "err", err)
		os.Exit(1)
	}
	feed.OnOverflow = func() { m.TickOverflow.Inc() }
	feed.OnReconnect = func() { log.Info("tick feed reconnected", "url", cfg.FeedURL) }

	fanout := tickfeed.NewFanOut(1024, log)
	tickCh := make(chan model.Tick, 4096)
	go fanout.Run(ctx, tickCh)
	go func() {
		if err := feed.Start(ctx, func(t model.Tick) {
			select {
			case tickCh <- t:
			default:
				m.TickOverflow.Inc()
			}
		}); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("tick feed stopped", "err", err)
		}
	}()

	// ---- Persist live ticks as base-timeframe candles ----
	recorder := history.NewRecorder(db, defaultTF, log)
	recorderSub := fanout.Subscribe()
	go recorder.Run(ctx, recorderSub)

	// ---- Broker (optional) ----
	var brokerClient *broker.Client
	if cfg.BrokerEnabled() {
		brokerClient = broker.New(broker.Config{
			BaseURL:    cfg.BrokerURL,
			ClientCode: cfg.BrokerClientCode,
			Password:   cfg.BrokerPassword,
			TOTPSecret: cfg.BrokerTOTPSecret,
		}, log)
		log.Info("broker order routing enabled", "url", cfg.BrokerURL)
	}

	// ---- WS hub + sessions ----
	sessCfg := session.DefaultConfig()
	hub := gateway.NewHub(sessCfg, db, remote, fanout, m, log)
	hub.DefaultSymbol = cfg.DefaultSymbol
	hub.DefaultTimeframe = defaultTF
	if brokerClient != nil {
		hub.OnTradeIntent = func(intent model.TradeIntent) {
			go func() {
				octx, cancel := context.WithTimeout(ctx, 15*time.Second)
				defer cancel()
				id, err := brokerClient.PlaceOrder(octx, intent)
				if err != nil {
					log.Error("order placement failed", "symbol", intent.Symbol, "err", err)
					return
				}
				log.Info("order placed", "symbol", intent.Symbol, "direction", intent.Direction, "order_id", id)
			}()
		}
	}

	// ---- Alert delivery ----
	backends := []notification.Notifier{notification.NewLogNotifier(log)}
	if cfg.AlertWebhookURL != "" {
		backends = append(backends, notification.NewWebhookNotifier(cfg.AlertWebhookURL))
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		backends = append(backends, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	dispatcher := notification.NewDispatcher(log, backends...)
	hub.OnAlert = dispatcher.Notify

	if tradeSub != nil {
		tradeSub.OnEvent = hub.BroadcastTradeEvent
		go tradeSub.Run(ctx)
	}

	// ---- Preview session for REST replay and snapshots ----
	var previewRemote *persistence.Gateway
	if remote != nil {
		previewRemote = persistence.NewGateway(remote, log)
	}
	preview := session.New(sessCfg, db, previewRemote, m, log)
	if err := preview.SetSymbol(ctx, cfg.DefaultSymbol, defaultTF); err != nil {
		log.Warn("preview session load failed", "symbol", cfg.DefaultSymbol, "err", err)
	}
	go preview.Run(ctx)
	defer preview.Close()
	previewSub := fanout.Subscribe()
	go func() {
		for t := range previewSub {
			preview.ApplyTick(t)
		}
	}()

	// ---- HTTP API ----
	srv := &api.Server{
		Source:        db,
		Persist:       preview.Gateway(),
		Hub:           hub,
		Preview:       preview,
		Broker:        brokerClient,
		SessionConfig: sessCfg,
		Metrics:       m,
		Log:           log,
	}
	httpSrv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: srv.Router(),
	}
	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	hub.Shutdown(shutdownCtx)
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "err", err)
	}
	fanout.Unsubscribe(recorderSub)
	fanout.Unsubscribe(previewSub)
	log.Info("bye")
}
