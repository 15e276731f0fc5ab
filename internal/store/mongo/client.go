package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	connectAttempts = 5
	initialBackoff  = time.Second
	maxBackoff      = 30 * time.Second
)

type Config struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration // per attempt, default 5s
}

type MongoClient struct {
	Client *mongo.Client
	DB     *mongo.Database
}

// NewClient connects and pings, backing off between failed attempts until
// ctx is done or the attempts run out.
func NewClient(ctx context.Context, cfg Config, log *slog.Logger) (*MongoClient, error) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	opts := options.Client().ApplyURI(cfg.URI)

	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		client, err := connect(ctx, opts, cfg.ConnectTimeout)
		if err == nil {
			return &MongoClient{Client: client, DB: client.Database(cfg.Database)}, nil
		}
		if attempt == connectAttempts {
			return nil, fmt.Errorf("mongo unreachable after %d attempts: %w", attempt, err)
		}

		log.Warn("mongo not ready", "attempt", attempt, "backoff", backoff, "err", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func connect(ctx context.Context, opts *options.ClientOptions, timeout time.Duration) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return client, nil
}

// Ping backs /readyz.
func (c *MongoClient) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx, nil)
}

func (c *MongoClient) Close(ctx context.Context) error {
	return c.Client.Disconnect(ctx)
}
