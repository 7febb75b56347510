// Package server exposes the todo and research operations over a JSON
// HTTP API, plus an SSE stream for live research progress.
package server

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/zulandar/researchdesk/internal/notify"
	"github.com/zulandar/researchdesk/internal/research"
	"gorm.io/gorm"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// StartOpts holds configuration for the API server.
type StartOpts struct {
	DB   *gorm.DB
	Port int
	Out  io.Writer

	// SweepSchedule is a 5-field cron expression for the stale-progress
	// sweep. Empty disables the sweep.
	SweepSchedule string
	// StaleMinutes is the age after which an untouched progress row is
	// finalized as a timeout.
	StaleMinutes int

	// Notifier receives completion events. Nil disables notifications.
	Notifier notify.Notifier
}

// Start launches the API server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.DB == nil {
		return fmt.Errorf("server: db is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	router := newRouter(opts.DB, opts.Notifier)

	if opts.SweepSchedule != "" && opts.StaleMinutes > 0 {
		go runSweep(ctx, opts.DB, opts.SweepSchedule, opts.StaleMinutes)
	}

	addr := fmt.Sprintf(":%d", opts.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "API listening at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// newRouter builds the Gin engine with all routes registered.
func newRouter(db *gorm.DB, notifier notify.Notifier) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	registerRoutes(router, db, notifier)
	return router
}

// runSweep finalizes stale progress rows on the configured schedule.
func runSweep(ctx context.Context, db *gorm.DB, schedule string, staleMinutes int) {
	for {
		d := nextCronDuration(schedule)
		if d == 0 {
			log.Printf("server: invalid sweep schedule %q, sweep disabled", schedule)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(d):
			cutoff := time.Now().UTC().Add(-time.Duration(staleMinutes) * time.Minute)
			swept, err := research.SweepStale(db, cutoff)
			if err != nil {
				log.Printf("server: sweep: %v", err)
			} else if swept > 0 {
				log.Printf("server: swept %d stale research attempts", swept)
			}
		}
	}
}

// nextCronDuration parses a 5-field cron expression and returns the
// duration until the next fire time. Returns 0 on parse error.
func nextCronDuration(expr string) time.Duration {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return 0
	}
	next := sched.Next(time.Now())
	d := time.Until(next)
	if d < 0 {
		return 0
	}
	return d
}
