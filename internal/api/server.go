package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"futures-controller/internal/executor"
	"futures-controller/internal/governor"
	"futures-controller/internal/journal"
	"futures-controller/internal/state"
)

// Server exposes a read-only status surface over HTTP. It never mutates
// trading state; the controller is the only writer.
type Server struct {
	engine   *gin.Engine
	store    *state.Store
	journal  *journal.Journal
	ledger   *executor.SignalLedger
	governor *governor.Governor
	mode     executor.Mode
	httpSrv  *http.Server
	logger   zerolog.Logger
}

type Options struct {
	Host           string
	Port           int
	AllowedOrigins string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	Store          *state.Store
	Journal        *journal.Journal
	Ledger         *executor.SignalLedger
	Governor       *governor.Governor
	Mode           executor.Mode
	Logger         zerolog.Logger
}

func NewServer(opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	corsCfg := cors.DefaultConfig()
	if opts.AllowedOrigins == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = strings.Split(opts.AllowedOrigins, ",")
	}
	corsCfg.AllowMethods = []string{"GET", "OPTIONS"}
	engine.Use(cors.New(corsCfg))

	s := &Server{
		engine:   engine,
		store:    opts.Store,
		journal:  opts.Journal,
		ledger:   opts.Ledger,
		governor: opts.Governor,
		mode:     opts.Mode,
		logger:   opts.Logger.With().Str("component", "status_api").Logger(),
	}
	s.routes()

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		Handler:      engine,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}
	return s
}

func (s *Server) routes() {
	s.engine.GET("/health", s.handleHealth)
	api := s.engine.Group("/api/v1")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/position", s.handlePosition)
		api.GET("/trades", s.handleTrades)
		api.GET("/signal-quality", s.handleSignalQuality)
	}
}

func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpSrv.Addr).Msg("status api listening")
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"mode":            string(s.mode),
		"redis_available": s.store.Available(),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	snap, err := s.store.ReadSnapshot(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read state"})
		return
	}
	governorInFlight := 0
	if s.governor != nil {
		governorInFlight = s.governor.InFlight()
	}
	c.JSON(http.StatusOK, gin.H{
		"governor_in_flight": governorInFlight,
		"automation_enabled": snap.AutomationEnabled,
		"balance":            snap.Balance,
		"rolling_24h_pnl":    snap.Rolling24hPnl,
		"daily_trade_count":  snap.DailyTradeCount,
		"daily_trade_date":   snap.DailyTradeDate,
		"consecutive_losses": snap.ConsecutiveLosses,
		"cooldown_until":     snap.CooldownUntil,
		"leverage":           snap.Leverage,
		"leverage_state":     snap.LeverageState,
		"risk":               snap.Risk,
		"has_position":       snap.Position != nil,
	})
}

func (s *Server) handlePosition(c *gin.Context) {
	snap, err := s.store.ReadSnapshot(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read state"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"position": snap.Position})
}

func (s *Server) handleTrades(c *gin.Context) {
	if s.journal == nil {
		c.JSON(http.StatusOK, gin.H{"trades": []journal.TradeRecord{}})
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 500 {
			limit = v
		}
	}
	trades, err := s.journal.RecentTrades(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query trades"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) handleSignalQuality(c *gin.Context) {
	if s.ledger == nil {
		c.JSON(http.StatusOK, gin.H{"trades": 0})
		return
	}
	pnl, trades, winRate := s.ledger.Stats()
	c.JSON(http.StatusOK, gin.H{
		"total_pnl": pnl,
		"trades":    trades,
		"win_rate":  winRate,
	})
}
