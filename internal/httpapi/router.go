// Package httpapi exposes the intake tracker as a small JSON API for an
// external presentation layer.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"waterlog/internal/intake"
)

// Service is the subset of the tracker the API needs. Both *intake.Tracker
// and *app.WaterApp satisfy it.
type Service interface {
	AddWater(amount int) (intake.Entry, error)
	ResetToday() (int, error)
	SetDailyGoal(goal int) error
	DailyGoal() int
	Progress() intake.Progress
	History(days int) []intake.DayTotal
	Subscribe(fn func(intake.Event)) (cancel func())
}

// Options configures NewRouter.
type Options struct {
	// AllowedOrigins lists the CORS origins; empty allows all.
	AllowedOrigins []string
	Logger         *slog.Logger
}

// Router is the API's http.Handler. Close detaches it from the service.
type Router struct {
	*gin.Engine
	cancel func()
}

// NewRouter builds the gin engine with middleware, /health, /metrics and the
// /api/v1 routes.
func NewRouter(svc Service, opts Options) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true

	m := newMetrics(svc)
	cancel := svc.Subscribe(m.observe)

	r.Use(requestID())
	r.Use(requestLogger(logger))
	r.Use(recovery(logger))
	r.Use(m.middleware())
	r.Use(corsMiddleware(opts.AllowedOrigins))

	r.NoRoute(func(c *gin.Context) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		fail(c, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})))

	h := &handlers{svc: svc}
	api := r.Group("/api/v1")
	{
		api.GET("/today", h.today)
		api.POST("/entries", h.addEntry)
		api.DELETE("/entries/today", h.resetToday)
		api.GET("/goal", h.getGoal)
		api.PUT("/goal", h.putGoal)
		api.GET("/history", h.history)
	}

	return &Router{Engine: r, cancel: cancel}
}

// Close stops feeding tracker events into the router's metrics.
func (r *Router) Close() {
	r.cancel()
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", requestIDHeader},
		ExposeHeaders: []string{requestIDHeader, "Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

// Serve runs h on addr until ctx is cancelled, then drains in-flight
// requests for up to shutdownTimeout.
func Serve(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("http server listening", "addr", addr)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	logger.Info("http server stopped")
	return nil
}

const shutdownTimeout = 15 * time.Second
