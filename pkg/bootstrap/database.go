package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"userbus/internal/config"
	"userbus/internal/constants"
	"userbus/internal/logger"
	"userbus/pkg/migrations"
	"userbus/pkg/retry"
)

// DatabaseConnector opens the stores a service depends on. Stores start
// alongside the services in local and compose setups, so the first ping is
// retried with the broker retry policy before giving up.
type DatabaseConnector struct {
	Config *config.Config
	Logger logger.Logger
}

func NewDatabaseConnector(cfg *config.Config, log logger.Logger) *DatabaseConnector {
	return &DatabaseConnector{
		Config: cfg,
		Logger: log,
	}
}

func (dc *DatabaseConnector) connect(ctx context.Context, store string, ping func(context.Context) error) error {
	err := retry.RetryWithCallback(ctx, retry.PolicyFromConfig(dc.Config.Broker.Retry), func() error {
		return ping(ctx)
	}, func(attempt int, err error, next time.Duration) {
		dc.Logger.Warnw("Store not reachable yet", "store", store, "attempt", attempt, "next_delay", next, "error", err)
	})
	if err != nil {
		return fmt.Errorf("failed to ping %s: %w", store, err)
	}
	dc.Logger.Infow("Store connected", "store", store)
	return nil
}

func (dc *DatabaseConnector) InitRedis(ctx context.Context) (*redis.Client, error) {
	rc := dc.Config.Database.Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(rc.Host, strconv.Itoa(rc.Port)),
		Password: rc.Password,
		DB:       rc.DB,
	})

	if err := dc.connect(ctx, "redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// PostgresDSN builds a lib/pq URL; credentials are escaped.
func PostgresDSN(pc config.PostgresConfig) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(pc.User, pc.Password),
		Host:   net.JoinHostPort(pc.Host, strconv.Itoa(pc.Port)),
		Path:   "/" + pc.DBName,
	}
	if pc.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {pc.SSLMode}}.Encode()
	}
	return u.String()
}

// InitPostgreSQL returns nil when no host is configured.
func (dc *DatabaseConnector) InitPostgreSQL(ctx context.Context) (*sql.DB, error) {
	pc := dc.Config.Database.Postgres
	if pc.Host == "" {
		return nil, nil
	}

	db, err := sql.Open("postgres", PostgresDSN(pc))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := dc.connect(ctx, "postgres", db.PingContext); err != nil {
		db.Close()
		return nil, err
	}

	if dc.Config.Database.RunMigrations {
		if err := migrations.RunPostgres(db); err != nil {
			db.Close()
			return nil, err
		}
		dc.Logger.Info("PostgreSQL migrations applied")
	}
	return db, nil
}

// InitMongoDB returns nil when no URI is configured.
func (dc *DatabaseConnector) InitMongoDB(ctx context.Context) (*mongo.Client, error) {
	uri := dc.Config.Database.MongoDB.URI
	if uri == "" {
		return nil, nil
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := dc.connect(ctx, "mongodb", func(ctx context.Context) error {
		return client.Ping(ctx, nil)
	}); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return client, nil
}

// MongoDatabase returns the configured database, falling back to the default name.
func (dc *DatabaseConnector) MongoDatabase(client *mongo.Client) *mongo.Database {
	name := dc.Config.Database.MongoDB.Database
	if name == "" {
		name = constants.DefaultMongoDBName
	}
	return client.Database(name)
}

// ShutdownDatabases closes whichever of the handles are non-nil.
func (dc *DatabaseConnector) ShutdownDatabases(ctx context.Context, rdb *redis.Client, db *sql.DB, client *mongo.Client) []error {
	var errs []error
	closeStore := func(store string, fn func() error) {
		if err := fn(); err != nil {
			errs = append(errs, fmt.Errorf("%s close error: %w", store, err))
		}
	}

	if rdb != nil {
		closeStore("redis", rdb.Close)
	}
	if db != nil {
		closeStore("postgres", db.Close)
	}
	if client != nil {
		closeStore("mongodb", func() error { return client.Disconnect(ctx) })
	}
	return errs
}
