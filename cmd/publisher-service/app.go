package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"userbus/internal/archive"
	"userbus/internal/broker"
	"userbus/internal/config"
	"userbus/internal/constants"
	"userbus/internal/logger"
	"userbus/internal/observability"
	"userbus/internal/publisher"
	"userbus/pkg/bootstrap"
	"userbus/pkg/health"
	"userbus/pkg/logging"
	"userbus/pkg/metrics"
	"userbus/pkg/middleware"
	"userbus/pkg/migrations"
	"userbus/pkg/ratelimit"
	"userbus/pkg/tracing"
)

const serviceName = "publisher-service"

type App struct {
	*bootstrap.Base
	dbConnector *bootstrap.DatabaseConnector
	db          *sql.DB
	mongoClient *mongo.Client
	archiver    archive.Archiver
	health      *health.CheckerRegistry
	router      *gin.Engine
	server      *http.Server
	stopLimiter context.CancelFunc
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(serviceName)
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
		archiver:    archive.Nop(),
		health:      health.NewCheckerRegistry(),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.InitTracing(serviceName); err != nil {
		return err
	}

	if err := a.initArchive(ctx); err != nil {
		return fmt.Errorf("failed to initialize archive: %w", err)
	}

	if err := a.InitProducer(serviceName); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}
	a.registerBrokerCheck()

	metrics.RegisterPublisherMetrics()
	metrics.RegisterBrokerMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	a.initRouter(ctx)
	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}
	return nil
}

func (a *App) initArchive(ctx context.Context) error {
	cfg := a.Config.Publisher.Archive
	if !cfg.Enabled {
		return nil
	}

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var backend archive.Archiver
	switch cfg.Backend {
	case constants.ArchiveBackendMongoDB:
		client, err := a.dbConnector.InitMongoDB(initCtx)
		if err != nil {
			return err
		}
		if client == nil {
			return errors.New("mongodb archive requires database.mongodb.uri")
		}
		a.mongoClient = client
		db := a.dbConnector.MongoDatabase(client)
		if err := migrations.EnsureArchiveCollection(initCtx, db, cfg.Collection); err != nil {
			return err
		}
		a.health.Register(health.NewMongoDBChecker(client))
		backend = archive.NewMongoArchiver(db, cfg.Collection)
	case constants.ArchiveBackendPostgres:
		db, err := a.dbConnector.InitPostgreSQL(initCtx)
		if err != nil {
			return err
		}
		if db == nil {
			return errors.New("postgres archive requires database.postgres.host")
		}
		a.db = db
		a.health.Register(health.NewPostgreSQLChecker(db))
		backend = archive.NewPostgresArchiver(db, cfg.Table)
	default:
		return fmt.Errorf("unknown archive backend: %s", cfg.Backend)
	}

	backend = archive.WithCircuitBreaker(backend, "archive-"+cfg.Backend, a.Config.CircuitBreaker)
	a.archiver = archive.WithMetrics(backend, cfg.Backend)
	a.Logger.InfowCtx(logging.WithServiceName(ctx, serviceName), "Request archive enabled", "backend", cfg.Backend)
	return nil
}

func (a *App) registerBrokerCheck() {
	switch a.Config.Broker.Type {
	case constants.BrokerKafka:
		a.health.Register(health.NewKafkaChecker(a.Config.Broker.Kafka.Brokers))
	case constants.BrokerRabbitMQ:
		a.health.Register(health.NewRabbitMQChecker(broker.RabbitURL(a.Config.Broker.RabbitMQ)))
	}
}

func (a *App) initRouter(ctx context.Context) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(serviceName))
	}

	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.Use(middleware.LoggerMiddleware(a.Logger))

	router.GET("/health", health.Handler(a.health))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := router.Group("/")
	if a.Config.Publisher.RateLimit.Enabled {
		limiterCtx, stop := context.WithCancel(context.Background())
		a.stopLimiter = stop
		rateLimitConfig := ratelimit.FromConfig(a.Config.Publisher.RateLimit)
		api.Use(ratelimit.RateLimitMiddleware(limiterCtx, rateLimitConfig))
		a.Logger.InfowCtx(ctx, "Rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
	}

	recorder := observability.Multi{
		observability.NewLogRecorder(a.Logger),
		observability.MetricsRecorder{},
	}
	svc := publisher.NewService(a.Producer,
		publisher.WithArchiver(a.archiver),
		publisher.WithRecorder(recorder),
		publisher.WithLogger(a.Logger),
	)
	handler := publisher.NewHandler(svc, a.Logger, a.Config.Publisher.Route, a.Config.Publisher.MaxBodyBytes)
	handler.RegisterRoutes(api)

	a.router = router
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "Server listening", "port", a.Config.Server.Port, "route", a.Config.Publisher.Route)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
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
	a.Logger.InfowCtx(logging.WithServiceName(ctx, serviceName), "Shutting down publisher service")

	var serverErr error
	if a.server != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, constants.ShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			serverErr = fmt.Errorf("server shutdown error: %w", err)
		}
	}

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error
		if serverErr != nil {
			errs = append(errs, serverErr)
		}
		if a.stopLimiter != nil {
			a.stopLimiter()
		}
		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, nil, a.db, a.mongoClient)...)
		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
