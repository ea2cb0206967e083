package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/miska12345/OpenMarket-Transaction-Lambda/backoff"
	"github.com/miska12345/OpenMarket-Transaction-Lambda/log"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultMaxPoolSize    = 100
	connectAttempts       = 3
	connectBackoffBase    = 250 * time.Millisecond

	defaultWalletsCollection      = "wallets"
	defaultTransactionsCollection = "transactions"
)

var (
	// ErrEmptyURI is returned when the Mongo URI is empty.
	ErrEmptyURI = errors.New("mongo uri cannot be empty")
	// ErrEmptyDatabaseName is returned when the database name is empty.
	ErrEmptyDatabaseName = errors.New("database name cannot be empty")
	// ErrConnect wraps connection establishment failures.
	ErrConnect = errors.New("mongo connect failed")
)

// Config defines connection behavior for the Mongo-backed store.
type Config struct {
	URI                    string
	Database               string
	WalletsCollection      string
	TransactionsCollection string
	ConnectTimeout         time.Duration
	MaxPoolSize            uint64
}

func (c *Config) applyDefaults() {
	if c.WalletsCollection == "" {
		c.WalletsCollection = defaultWalletsCollection
	}

	if c.TransactionsCollection == "" {
		c.TransactionsCollection = defaultTransactionsCollection
	}

	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}

	if c.MaxPoolSize == 0 {
		c.MaxPoolSize = defaultMaxPoolSize
	}
}

func (c *Config) validate() error {
	if c.URI == "" {
		return ErrEmptyURI
	}

	if c.Database == "" {
		return ErrEmptyDatabaseName
	}

	return nil
}

// Store is the Mongo-backed record store.
type Store struct {
	client       *mongo.Client
	wallets      *mongo.Collection
	transactions *mongo.Collection
	logger       log.Logger
}

// Connect establishes the client, verifies connectivity with a bounded
// number of ping attempts, and returns the store. A nil logger is replaced
// with a no-op logger.
func Connect(ctx context.Context, cfg Config, logger log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.NewNop()
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetReadConcern(readconcern.Majority()).
		SetWriteConcern(writeconcern.Majority())

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	if err := pingWithBackoff(ctx, client, logger); err != nil {
		_ = client.Disconnect(ctx)

		return nil, err
	}

	database := client.Database(cfg.Database)

	logger.Log(ctx, log.LevelInfo, "connected to mongodb", log.String("database", cfg.Database))

	return &Store{
		client:       client,
		wallets:      database.Collection(cfg.WalletsCollection),
		transactions: database.Collection(cfg.TransactionsCollection),
		logger:       logger,
	}, nil
}

func pingWithBackoff(ctx context.Context, client *mongo.Client, logger log.Logger) error {
	var lastErr error

	for attempt := 0; attempt < connectAttempts; attempt++ {
		if lastErr = client.Ping(ctx, nil); lastErr == nil {
			return nil
		}

		logger.Log(ctx, log.LevelWarn, "mongodb ping failed",
			log.Int("attempt", attempt), log.Err(lastErr))

		if err := backoff.SleepWithContext(ctx, backoff.ExponentialWithJitter(connectBackoffBase, attempt)); err != nil {
			return fmt.Errorf("%w: %w", ErrConnect, err)
		}
	}

	return fmt.Errorf("%w: %w", ErrConnect, lastErr)
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("mongo disconnect: %w", err)
	}

	return nil
}
