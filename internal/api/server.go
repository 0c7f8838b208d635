// Package api exposes the read-only risk dashboard and the collaborator
// ingestion endpoints over HTTP.
package api

import (
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/unifex/riskcore/internal/circuit"
	"github.com/unifex/riskcore/internal/execution"
	"github.com/unifex/riskcore/internal/market"
	"github.com/unifex/riskcore/internal/risk"
	"github.com/unifex/riskcore/pkg/models"
)

// Server wires the risk core behind a gin router.
type Server struct {
	log      *zap.Logger
	breaker  *circuit.Breaker
	engine   *risk.Engine
	router   *execution.Router
	guard    *execution.SlippageGuard
	detector *market.Detector
	pairs    []market.Pair
	ingest   TickSink

	http *gin.Engine
}

// TickSink accepts pushed collaborator data.
type TickSink interface {
	SetTick(t models.Tick)
	SetAccount(snap models.AccountSnapshot)
	SetQuotes(symbol string, quotes []models.VenueQuote)
}

// NewServer builds the HTTP surface.
func NewServer(log *zap.Logger, breaker *circuit.Breaker, engine *risk.Engine, router *execution.Router, guard *execution.SlippageGuard, detector *market.Detector, pairs []market.Pair, ingest TickSink) *Server {
	s := &Server{
		log:      log,
		breaker:  breaker,
		engine:   engine,
		router:   router,
		guard:    guard,
		detector: detector,
		pairs:    pairs,
		ingest:   ingest,
	}

	r := gin.New()
	r.Use(ginzap.Ginzap(log, time.RFC3339, true))
	r.Use(ginzap.RecoveryWithZap(log, true))
	r.Use(requestID())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	{
		v1.GET("/circuit", s.circuitStatus)
		v1.GET("/circuit/:symbol", s.circuitSymbol)
		v1.GET("/risk/:userID", s.riskDashboard)
		v1.GET("/correlations", s.correlations)
		v1.POST("/route", s.routePreview)
		v1.POST("/execution/validate", s.validateSlippage)

		v1.POST("/ticks", s.pushTick)
		v1.PUT("/accounts/:userID", s.pushAccount)
		v1.PUT("/venues/:symbol", s.pushQuotes)
	}

	s.http = r
	return s
}

// Handler returns the underlying HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.http }

// Run serves until the listener fails.
func (s *Server) Run(addr string) error {
	s.log.Info("api listening", zap.String("addr", addr))
	return s.http.Run(addr)
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Writer.Header().Set("X-Request-ID", id)
		c.Next()
	}
}

func (s *Server) circuitStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"circuits": s.breaker.Status()})
}

func (s *Server) circuitSymbol(c *gin.Context) {
	symbol := c.Param("symbol")
	state, ok := s.breaker.StateFor(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no circuit state for symbol"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"state":            state,
		"affected_symbols": s.breaker.CorrelatedSymbols(symbol),
	})
}

func (s *Server) riskDashboard(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Dashboard(c.Request.Context(), c.Param("userID")))
}

func (s *Server) correlations(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"correlation_matrix": s.detector.CorrelationMatrix(s.pairs)})
}

type routeRequest struct {
	Symbol   string      `json:"symbol" binding:"required"`
	Quantity float64     `json:"quantity" binding:"required,gt=0"`
	Side     models.Side `json:"side" binding:"required,oneof=BUY SELL"`
}

func (s *Server) routePreview(c *gin.Context) {
	var req routeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	plans, err := s.router.FindBestExecution(req.Symbol, req.Quantity, req.Side)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"plans": plans})
}

type slippageRequest struct {
	Symbol             string             `json:"symbol" binding:"required"`
	Side               models.Side        `json:"side" binding:"required,oneof=BUY SELL"`
	Quantity           float64            `json:"quantity" binding:"required,gt=0"`
	ExpectedPrice      float64            `json:"expected_price" binding:"required,gt=0"`
	MaxSlippagePercent float64            `json:"max_slippage_percent"`
	MaxSlippageDollars float64            `json:"max_slippage_dollars"`
	Strategy           execution.Strategy `json:"execution_strategy" binding:"required"`
	TimeLimitMs        int64              `json:"time_limit_ms"`
}

func (s *Server) validateSlippage(c *gin.Context) {
	var req slippageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.guard.Validate(c.Request.Context(), req.Symbol, req.Side, req.Quantity, req.ExpectedPrice, execution.SlippageConfig{
		MaxSlippagePercent: req.MaxSlippagePercent,
		MaxSlippageDollars: req.MaxSlippageDollars,
		Strategy:           req.Strategy,
		TimeLimit:          time.Duration(req.TimeLimitMs) * time.Millisecond,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) pushTick(c *gin.Context) {
	var tick models.Tick
	if err := c.ShouldBindJSON(&tick); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if tick.Symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}
	if tick.Timestamp.IsZero() {
		tick.Timestamp = time.Now()
	}
	s.ingest.SetTick(tick)
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (s *Server) pushAccount(c *gin.Context) {
	var snap models.AccountSnapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	snap.UserID = c.Param("userID")
	s.ingest.SetAccount(snap)
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (s *Server) pushQuotes(c *gin.Context) {
	var quotes []models.VenueQuote
	if err := c.ShouldBindJSON(&quotes); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.ingest.SetQuotes(c.Param("symbol"), quotes)
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}
