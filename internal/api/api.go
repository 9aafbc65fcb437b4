// Package api is the REST surface: candle history, drawings, toggles,
// layouts, replay control, trade submission and PNG snapshot export.
package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"chartengine/internal/broker"
	"chartengine/internal/candlestore"
	"chartengine/internal/gateway"
	"chartengine/internal/metrics"
	"chartengine/internal/model"
	"chartengine/internal/persistence"
	"chartengine/internal/session"
	"chartengine/internal/snapshot"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Server bundles the REST handlers' collaborators. Broker and Preview
// are optional; their endpoints return 503 when absent.
type Server struct {
	Source  candlestore.Source
	Persist *persistence.Gateway
	Hub     *gateway.Hub

	// Preview is the server-owned session REST replay control and
	// default snapshots act on. WS clients drive their own sessions
	// in-band instead.
	Preview *session.Session

	Broker *broker.Client

	SessionConfig session.Config
	Metrics       *metrics.Metrics
	Log           *slog.Logger
}

// Router builds the gin engine with all routes mounted.
func (s *Server) Router() *gin.Engine {
	if s.Log == nil {
		s.Log = slog.Default()
	}
	r := gin.Default()
	r.Use(cors.Default())

	r.GET("/healthz", s.health)
	if s.Hub != nil {
		r.GET("/ws", func(c *gin.Context) { s.Hub.HandleWS(c.Writer, c.Request) })
	}

	api := r.Group("/api")
	{
		api.GET("/candles/:symbol", s.getCandles)

		api.GET("/drawings/:symbol", s.listDrawings)
		api.POST("/drawings/:symbol", s.createDrawing)
		api.DELETE("/drawings/:symbol", s.clearDrawings)
		api.DELETE("/drawings/:symbol/:id", s.deleteDrawing)

		api.GET("/toggles/:symbol", s.getToggles)
		api.PUT("/toggles/:symbol", s.putToggle)

		api.GET("/layouts", s.listLayouts)
		api.POST("/layouts", s.saveLayout)
		api.DELETE("/layouts/:id", s.deleteLayout)

		api.POST("/replay", s.replayControl)
		api.GET("/snapshot/:symbol", s.getSnapshot)
		api.POST("/trades", s.placeTrade)
	}
	return r
}

func (s *Server) health(c *gin.Context) {
	resp := gin.H{"status": "ok"}
	if s.Hub != nil {
		resp["ws_clients"] = s.Hub.ClientCount()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getCandles(c *gin.Context) {
	symbol := c.Param("symbol")
	tf, err := model.ParseTimeframe(c.DefaultQuery("tf", "1m"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit <= 0 || limit > candlestore.DefaultBackingLimit {
		limit = candlestore.DefaultVisibleLimit
	}

	candles, err := s.Source.GetCandles(c.Request.Context(), symbol, tf, limit)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "tf": tf.String(), "candles": candles})
}

// ── Drawings ────────────────────────────────────────────────

func (s *Server) listDrawings(c *gin.Context) {
	symbol := c.Param("symbol")
	s.Persist.LoadSymbol(c.Request.Context(), symbol)
	c.JSON(http.StatusOK, s.Persist.ListDrawings(symbol))
}

func (s *Server) createDrawing(c *gin.Context) {
	var a model.DrawingAnnotation
	if err := c.ShouldBindJSON(&a); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a.Symbol = c.Param("symbol")
	switch a.Kind {
	case model.AnnotationHorizontal, model.AnnotationTrend, model.AnnotationAlert:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown kind"})
		return
	}
	if a.ID == "" {
		a.ID = model.NewID("drw")
	}
	s.Persist.CreateDrawing(a)
	c.JSON(http.StatusCreated, a)
}

func (s *Server) clearDrawings(c *gin.Context) {
	s.Persist.ClearDrawings(c.Param("symbol"))
	c.Status(http.StatusNoContent)
}

func (s *Server) deleteDrawing(c *gin.Context) {
	s.Persist.DeleteDrawing(c.Param("symbol"), c.Param("id"))
	c.Status(http.StatusNoContent)
}

// ── Toggles ─────────────────────────────────────────────────

func (s *Server) getToggles(c *gin.Context) {
	symbol := c.Param("symbol")
	s.Persist.LoadSymbol(c.Request.Context(), symbol)
	c.JSON(http.StatusOK, s.Persist.Toggles(symbol))
}

type toggleRequest struct {
	Name    string `json:"name" binding:"required"`
	Enabled bool   `json:"enabled"`
}

func (s *Server) putToggle(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.Persist.SaveToggle(c.Param("symbol"), req.Name, req.Enabled)
	c.JSON(http.StatusOK, gin.H{"name": req.Name, "enabled": req.Enabled})
}

// ── Layouts ─────────────────────────────────────────────────

func (s *Server) listLayouts(c *gin.Context) {
	c.JSON(http.StatusOK, s.Persist.ListLayouts(c.Request.Context()))
}

func (s *Server) saveLayout(c *gin.Context) {
	var l model.ChartLayout
	if err := c.ShouldBindJSON(&l); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if l.ID == "" {
		l.ID = model.NewID("lay")
	}
	s.Persist.SaveLayout(l)
	c.JSON(http.StatusCreated, l)
}

func (s *Server) deleteLayout(c *gin.Context) {
	s.Persist.DeleteLayout(c.Param("id"))
	c.Status(http.StatusNoContent)
}

// ── Replay ──────────────────────────────────────────────────

type replayRequest struct {
	Action string  `json:"action" binding:"required"`
	Speed  float64 `json:"speed"`
	Index  int     `json:"index"`
}

func (s *Server) replayControl(c *gin.Context) {
	if s.Preview == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no preview session"})
		return
	}
	var req replayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	switch req.Action {
	case "start":
		if req.Speed <= 0 {
			req.Speed = 1
		}
		s.Preview.StartReplay(req.Speed)
	case "pause":
		s.Preview.PauseReplay()
	case "seek":
		s.Preview.SeekReplay(req.Index)
	case "stop":
		s.Preview.StopReplay()
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown action: " + req.Action})
		return
	}
	c.JSON(http.StatusOK, gin.H{"action": req.Action, "active": s.Preview.ReplayActive()})
}

// ── Snapshot ────────────────────────────────────────────────

// getSnapshot renders the pair's current history to PNG through a
// transient session, so exports never disturb live client state.
func (s *Server) getSnapshot(c *gin.Context) {
	symbol := c.Param("symbol")
	tf, err := model.ParseTimeframe(c.DefaultQuery("tf", "1m"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess := session.New(s.SessionConfig, s.Source, nil, nil, s.Log)
	defer sess.Close()
	if err := sess.SetSymbol(c.Request.Context(), symbol, tf); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	frame := sess.BuildFrame()
	c.Header("Content-Type", "image/png")
	c.Header("Content-Disposition", "attachment; filename="+symbol+"-"+tf.String()+".png")
	c.Status(http.StatusOK)
	started := time.Now()
	if err := snapshot.WritePNG(frame, c.Writer); err != nil {
		s.Log.Error("snapshot encode failed", "symbol", symbol, "err", err)
		return
	}
	if s.Metrics != nil {
		s.Metrics.SnapshotDur.Observe(time.Since(started).Seconds())
	}
}

// ── Trades ──────────────────────────────────────────────────

type tradeRequest struct {
	Symbol    string  `json:"symbol" binding:"required"`
	Direction string  `json:"direction" binding:"required"`
	Amount    float64 `json:"amount" binding:"required"`
	Duration  string  `json:"duration"`
}

func (s *Server) placeTrade(c *gin.Context) {
	if s.Broker == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "trading disabled"})
		return
	}
	var req tradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	dir := model.TradeDirection(req.Direction)
	if dir != model.TradeUp && dir != model.TradeDown {
		c.JSON(http.StatusBadRequest, gin.H{"error": "direction must be up or down"})
		return
	}
	dur, err := time.ParseDuration(req.Duration)
	if err != nil || dur <= 0 {
		dur = time.Minute
	}

	orderID, err := s.Broker.PlaceOrder(c.Request.Context(), model.TradeIntent{
		Symbol:    req.Symbol,
		Direction: dir,
		Amount:    req.Amount,
		Duration:  dur,
	})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"order_id": orderID})
}
