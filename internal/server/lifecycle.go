// Package server provides process lifecycle management: running a set of
// context-driven services until they finish, one fails, or a termination
// signal arrives.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Service is a component that runs until its context is cancelled or its
// work is done.
type Service interface {
	Run(ctx context.Context) error
}

// FuncService adapts a function into the Service interface.
type FuncService func(ctx context.Context) error

// Run calls f.
func (f FuncService) Run(ctx context.Context) error { return f(ctx) }

// Lifecycle runs named services concurrently. The first failure cancels the
// others.
type Lifecycle struct {
	logger   *zap.Logger
	services []namedService
	mu       sync.Mutex
}

type namedService struct {
	name    string
	service Service
}

// NewLifecycle creates a new Lifecycle manager.
//
// Precondition: logger must be non-nil.
func NewLifecycle(logger *zap.Logger) *Lifecycle {
	return &Lifecycle{logger: logger}
}

// Add registers a named service.
//
// Precondition: name must be non-empty; svc must be non-nil.
func (l *Lifecycle) Add(name string, svc Service) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.services = append(l.services, namedService{name: name, service: svc})
}

// Run starts every service and blocks until all have returned. SIGINT and
// SIGTERM cancel the services' context.
//
// Postcondition: Returns the first service error; a service returning
// context.Canceled after shutdown began is not an error.
func (l *Lifecycle) Run(ctx context.Context) error {
	start := time.Now()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	l.mu.Lock()
	services := append([]namedService(nil), l.services...)
	l.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, ns := range services {
		g.Go(func() error {
			l.logger.Info("starting service", zap.String("service", ns.name))
			svcStart := time.Now()
			err := ns.service.Run(gctx)
			if err != nil && !(errors.Is(err, context.Canceled) && gctx.Err() != nil) {
				l.logger.Error("service failed",
					zap.String("service", ns.name),
					zap.Error(err),
					zap.Duration("uptime", time.Since(svcStart)),
				)
				return fmt.Errorf("service %s: %w", ns.name, err)
			}
			l.logger.Info("service stopped",
				zap.String("service", ns.name),
				zap.Duration("uptime", time.Since(svcStart)),
			)
			return nil
		})
	}

	err := g.Wait()
	l.logger.Info("shutdown complete",
		zap.Int("services", len(services)),
		zap.Duration("total_uptime", time.Since(start)),
	)
	return err
}

// Every returns a Service that calls fn immediately and then once per
// interval until the context is cancelled. Errors from fn are logged, not
// returned.
//
// Precondition: interval must be positive.
func Every(interval time.Duration, logger *zap.Logger, fn func(ctx context.Context) error) Service {
	return FuncService(func(ctx context.Context) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("periodic run failed", zap.Error(err))
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	})
}
