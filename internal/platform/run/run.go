// Package run owns process lifecycle: signal handling, component groups and
// graceful shutdown.
package run

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ShutdownTimeout bounds each component's graceful stop.
const ShutdownTimeout = 10 * time.Second

type Runner struct {
	Logger *zap.Logger
}

func New(log *zap.Logger) *Runner {
	return &Runner{Logger: log}
}

// Component is a long-running part of a binary (a server, a consumer).
// Stop may be nil when Run returns on its own once ctx is cancelled.
type Component struct {
	Name string
	Run  func(ctx context.Context) error
	Stop func(ctx context.Context) error
}

// WithSignals runs start until it returns or SIGINT/SIGTERM arrives, and
// converts the outcome into a process exit code.
func (r *Runner) WithSignals(start func(ctx context.Context) error) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- start(ctx)
	}()

	var err error
	select {
	case <-ctx.Done():
		r.Logger.Info("shutdown signal received")
		select {
		case err = <-errCh:
		case <-time.After(ShutdownTimeout + 5*time.Second):
			r.Logger.Warn("components did not stop in time")
			return 1
		}
	case err = <-errCh:
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) || errors.Is(err, context.Canceled) {
		return 0
	}
	r.Logger.Error("service exited with error", zap.Error(err))
	return 1
}

// Group returns a start func running every component until ctx is cancelled
// or one of them fails, then stops all of them.
func (r *Runner) Group(components ...Component) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		g, gctx := errgroup.WithContext(ctx)
		for _, c := range components {
			c := c
			g.Go(func() error {
				err := c.Run(gctx)
				if err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, context.Canceled) {
					r.Logger.Error("component failed", zap.String("component", c.Name), zap.Error(err))
					return err
				}
				return nil
			})
			if c.Stop != nil {
				g.Go(func() error {
					<-gctx.Done()
					r.Graceful(c.Name, c.Stop)
					return nil
				})
			}
		}
		return g.Wait()
	}
}

// Graceful calls shutdown with a fresh ShutdownTimeout context.
func (r *Runner) Graceful(name string, shutdown func(context.Context) error) {
	c, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := shutdown(c); err != nil {
		r.Logger.Warn("graceful shutdown failed", zap.String("component", name), zap.Error(err))
	}
}

func Exit(code int) {
	os.Exit(code)
}
