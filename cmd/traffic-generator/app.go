package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"userbus/internal/config"
	"userbus/internal/constants"
	"userbus/internal/logger"
	"userbus/internal/trafficgen"
	"userbus/pkg/bootstrap"
	"userbus/pkg/metrics"
)

const serviceName = "traffic-generator"

type App struct {
	*bootstrap.Base
	generator *trafficgen.Generator
	server    *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(serviceName)
	}
	return &App{
		Base: bootstrap.NewBase(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if !a.Config.TrafficGenerator.Enabled {
		return errors.New("traffic generator is disabled (traffic_generator.enabled)")
	}

	if err := a.InitTracing(serviceName); err != nil {
		return err
	}

	metrics.RegisterTrafficGeneratorMetrics()
	a.generator = trafficgen.New(a.Config.TrafficGenerator, a.Logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler: mux,
	}
	return nil
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.generator.Run(gCtx)
	})

	g.Go(func() error {
		<-gCtx.Done()
		return a.Shutdown(context.Background())
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	return a.Base.Shutdown(ctx, func(ctx context.Context) []error {
		if a.server == nil {
			return nil
		}
		shutdownCtx, cancel := context.WithTimeout(ctx, constants.ShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return []error{fmt.Errorf("metrics server shutdown error: %w", err)}
		}
		return nil
	})
}
