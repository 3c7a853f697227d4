// Package api exposes the cycle triggers and read-only views over HTTP.
package api

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"StageSentinel/internal/cycle"
	"StageSentinel/internal/model"
)

// Runner is the subset of cycle.Runner served over HTTP.
type Runner interface {
	Check(ctx context.Context, force bool) model.CycleResult
	Dispatch(ctx context.Context) model.CycleResult
	Rebalance(ctx context.Context, force bool) model.CycleResult
	Indicators(ctx context.Context, tail int) (*cycle.Snapshot, error)
	RecentAlerts(ctx context.Context, since time.Duration, unsentOnly bool) ([]model.Alert, error)
}

// ApprovalSource issues the streaming approval key.
type ApprovalSource interface {
	Acquire(ctx context.Context) (string, error)
	ExpiresAt() time.Time
}

// Controller handles cycle trigger requests.
type Controller struct {
	runner   Runner
	approval ApprovalSource
}

// NewController creates a controller; approval may be nil.
func NewController(runner Runner, approval ApprovalSource) *Controller {
	return &Controller{runner: runner, approval: approval}
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(ctl *Controller) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "time": time.Now().Format(time.RFC3339)})
	})

	api := router.Group("/api/v1")
	{
		api.POST("/check", ctl.Check)
		api.POST("/dispatch", ctl.Dispatch)
		api.POST("/rebalance", ctl.Rebalance)
		api.GET("/alerts", ctl.Alerts)
		api.GET("/indicators", ctl.Indicators)
		api.POST("/stream/approval", ctl.Approval)
	}
	return router
}

// NewServer wraps the router in an http.Server with sane timeouts.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}

func statusFor(res model.CycleResult) int {
	if res.Status != model.StatusError {
		return http.StatusOK
	}
	switch res.Reason {
	case model.ReasonInvalidSettings:
		return http.StatusUnprocessableEntity
	case model.ReasonPriceFetch, model.ReasonSend:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Check runs a decision cycle
// POST /api/v1/check?force=true
func (ctl *Controller) Check(c *gin.Context) {
	force, _ := strconv.ParseBool(c.Query("force"))
	res := ctl.runner.Check(c.Request.Context(), force)
	c.JSON(statusFor(res), res)
}

// Dispatch delivers the oldest pending batch
// POST /api/v1/dispatch
func (ctl *Controller) Dispatch(c *gin.Context) {
	res := ctl.runner.Dispatch(c.Request.Context())
	c.JSON(statusFor(res), res)
}

// Rebalance records the annual rebalance
// POST /api/v1/rebalance?force=true
func (ctl *Controller) Rebalance(c *gin.Context) {
	force, _ := strconv.ParseBool(c.Query("force"))
	res := ctl.runner.Rebalance(c.Request.Context(), force)
	c.JSON(statusFor(res), res)
}

// Alerts lists recent alerts
// GET /api/v1/alerts?minutes=60&unsent=true
func (ctl *Controller) Alerts(c *gin.Context) {
	minutes, err := strconv.Atoi(c.DefaultQuery("minutes", "1440"))
	if err != nil || minutes <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "minutes must be a positive integer"})
		return
	}
	unsent, _ := strconv.ParseBool(c.Query("unsent"))

	alerts, err := ctl.runner.RecentAlerts(c.Request.Context(), time.Duration(minutes)*time.Minute, unsent)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if alerts == nil {
		alerts = []model.Alert{}
	}
	c.JSON(http.StatusOK, gin.H{"data": alerts, "total": len(alerts)})
}

// Indicators returns the RSI/SMA tail of the main symbol
// GET /api/v1/indicators?tail=30
func (ctl *Controller) Indicators(c *gin.Context) {
	tail, err := strconv.Atoi(c.DefaultQuery("tail", "30"))
	if err != nil || tail < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tail must be a non-negative integer"})
		return
	}
	snap, err := ctl.runner.Indicators(c.Request.Context(), tail)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": snap})
}

// Approval issues the streaming approval key
// POST /api/v1/stream/approval
func (ctl *Controller) Approval(c *gin.Context) {
	if ctl.approval == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "streaming approval is not configured"})
		return
	}
	key, err := ctl.approval.Acquire(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"approval_key": key, "expires_at": ctl.approval.ExpiresAt().Format(time.RFC3339)})
}

// requestLogger logs failed or slow requests
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/health" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		if c.Writer.Status() >= 400 || duration > time.Second {
			log.Printf("[WARN] %s %s %d %v", c.Request.Method, path, c.Writer.Status(), duration)
		}
	}
}
