package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"userbus/internal/broker"
	"userbus/internal/config"
	"userbus/internal/constants"
	"userbus/internal/delivery"
	"userbus/internal/idempotency"
	"userbus/internal/logger"
	"userbus/internal/observability"
	"userbus/internal/settlement"
	"userbus/internal/subscriber"
	"userbus/pkg/bootstrap"
	"userbus/pkg/cel"
	"userbus/pkg/health"
	"userbus/pkg/logging"
	"userbus/pkg/metrics"
)

const serviceName = "subscriber-service"

type App struct {
	*bootstrap.Base
	dbConnector *bootstrap.DatabaseConnector
	redis       *redis.Client
	dedup       *idempotency.Service
	service     *subscriber.Service
	health      *health.CheckerRegistry
	server      *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(serviceName)
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
		health:      health.NewCheckerRegistry(),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.InitTracing(serviceName); err != nil {
		return err
	}

	if err := a.initIdempotency(ctx); err != nil {
		return fmt.Errorf("failed to initialize idempotency store: %w", err)
	}

	if err := a.initService(); err != nil {
		return fmt.Errorf("failed to initialize service: %w", err)
	}

	if err := a.InitConsumer(serviceName); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	switch a.Config.Broker.Type {
	case constants.BrokerKafka:
		a.health.Register(health.NewKafkaChecker(a.Config.Broker.Kafka.Brokers))
	case constants.BrokerRabbitMQ:
		a.health.Register(health.NewRabbitMQChecker(broker.RabbitURL(a.Config.Broker.RabbitMQ)))
	}

	metrics.RegisterSubscriberMetrics()
	metrics.RegisterBrokerMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.GET("/health", health.Handler(a.health))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler: router,
	}
	return nil
}

func (a *App) initIdempotency(ctx context.Context) error {
	if !a.Config.Idempotency.Enabled {
		return nil
	}

	rdb, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		return err
	}
	a.redis = rdb
	a.health.Register(health.NewRedisChecker(rdb))

	var repo idempotency.Repository = idempotency.NewRepository(rdb)
	if a.Config.CircuitBreaker.Enabled {
		cbRepo := idempotency.NewCircuitBreakerRepository(repo, a.Config.CircuitBreaker)
		a.health.Register(health.NewBreakerChecker("redis-idempotency-breaker", cbRepo.IsOpen))
		repo = cbRepo
		a.Logger.InfowCtx(logging.WithServiceName(ctx, serviceName), "Circuit breaker enabled for idempotency repository")
	}

	a.dedup = idempotency.NewService(repo, a.Config.Idempotency, a.Logger)
	return nil
}

func (a *App) initService() error {
	eval, err := cel.NewEvaluator()
	if err != nil {
		return fmt.Errorf("failed to create CEL evaluator: %w", err)
	}

	rules, err := delivery.CompileRules(eval, ruleExpressions(a.Config.Subscriber.Rules), nil)
	if err != nil {
		return fmt.Errorf("failed to compile delivery rules: %w", err)
	}

	classifier := delivery.NewClassifier(rules, delivery.WithStalenessWindow(a.Config.Subscriber.StalenessWindow))

	recorder := observability.Multi{
		observability.NewLogRecorder(a.Logger),
		observability.MetricsRecorder{},
	}
	opts := []subscriber.Option{
		subscriber.WithRecorder(recorder),
		subscriber.WithLogger(a.Logger),
		subscriber.WithResolver(settlement.NewResolver(settlement.WithImmediateRelease(a.Config.Subscriber.ReleaseOnRetry))),
		subscriber.WithProcessingTimeout(a.Config.Subscriber.ProcessingTimeout),
	}
	if a.dedup != nil {
		opts = append(opts, subscriber.WithDeduplicator(a.dedup))
	}

	a.service = subscriber.NewService(classifier, a.Config.Subscriber.MaxDeliveryCount, opts...)
	return nil
}

// ruleExpressions overlays configured rules on the default discriminator set.
func ruleExpressions(configured []config.RuleConfig) map[delivery.Condition]string {
	expressions := delivery.DefaultExpressions()
	for _, r := range configured {
		cond := delivery.Condition(r.Condition)
		if r.Expression == "" {
			delete(expressions, cond)
			continue
		}
		expressions[cond] = r.Expression
	}
	return expressions
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		consumeCtx := logging.WithServiceName(gCtx, serviceName)
		a.Logger.InfowCtx(consumeCtx, "Starting consumer",
			"broker", a.Config.Broker.Type,
			"max_delivery_count", a.Config.Subscriber.MaxDeliveryCount,
		)
		if err := a.Consumer.Consume(consumeCtx, a.service.Handler()); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("consumer error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		return a.Shutdown(context.Background())
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.InfowCtx(logging.WithServiceName(ctx, serviceName), "Shutting down subscriber service")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.server != nil {
			shutdownCtx, cancel := context.WithTimeout(ctx, constants.ShutdownTimeout)
			defer cancel()
			if err := a.server.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, a.redis, nil, nil)...)
		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
