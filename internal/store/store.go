// Package store selects and prepares the persistence backend named by DB_TYPE.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrKriegler/go-parametric/internal/core"
	"github.com/MrKriegler/go-parametric/internal/platform/config"
	"github.com/MrKriegler/go-parametric/internal/store/dynamo"
	"github.com/MrKriegler/go-parametric/internal/store/memory"
	"github.com/MrKriegler/go-parametric/internal/store/mongo"
	"github.com/MrKriegler/go-parametric/internal/store/postgres"
)

// Backend is an opened store with its schema in place.
type Backend struct {
	Name     string
	Policies core.PolicyRepo
	Claims   core.ClaimRepo
	Ping     func(ctx context.Context) error
	Close    func(ctx context.Context) error
}

// Open connects to the configured database and ensures tables, indexes or
// schema exist before returning.
func Open(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Backend, error) {
	switch cfg.DBType {
	case "dynamodb":
		return openDynamo(ctx, cfg, log)
	case "mongo":
		return openMongo(ctx, cfg, log)
	case "postgres":
		return openPostgres(ctx, cfg, log)
	case "memory":
		log.Warn("using in-memory store; data is lost on restart")
		return &Backend{
			Name:     "memory",
			Policies: memory.NewPolicyRepo(),
			Claims:   memory.NewClaimRepo(),
			Ping:     func(context.Context) error { return nil },
			Close:    func(context.Context) error { return nil },
		}, nil
	}
	return nil, fmt.Errorf("%w: unknown DB_TYPE %q", core.ErrConfiguration, cfg.DBType)
}

func openDynamo(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Backend, error) {
	log.Info("connecting to DynamoDB", "region", cfg.AWSRegion, "endpoint", cfg.DynamoDBEndpoint)
	client, err := dynamo.NewClient(ctx, dynamo.Config{
		Region:          cfg.AWSRegion,
		Endpoint:        cfg.DynamoDBEndpoint,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
	}, log)
	if err != nil {
		return nil, err
	}
	if err := dynamo.EnsureTables(ctx, client.DB, log); err != nil {
		return nil, err
	}
	return &Backend{
		Name:     "dynamodb",
		Policies: dynamo.NewPolicyRepo(client.DB),
		Claims:   dynamo.NewClaimRepo(client.DB),
		Ping:     client.Ping,
		Close:    func(context.Context) error { return nil },
	}, nil
}

func openMongo(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Backend, error) {
	log.Info("connecting to MongoDB", "db", cfg.MongoDB)
	client, err := mongo.NewClient(ctx, mongo.Config{
		URI:            cfg.MongoURI,
		Database:       cfg.MongoDB,
		ConnectTimeout: time.Duration(cfg.MongoConnectTimeoutSec) * time.Second,
	}, log)
	if err != nil {
		return nil, err
	}
	if err := mongo.EnsureIndexes(ctx, client.DB); err != nil {
		_ = client.Close(ctx)
		return nil, err
	}
	opTimeout := time.Duration(cfg.MongoOpTimeoutMs) * time.Millisecond
	return &Backend{
		Name:     "mongo",
		Policies: mongo.NewPolicyRepo(client.DB, opTimeout),
		Claims:   mongo.NewClaimRepo(client.DB, opTimeout),
		Ping:     client.Ping,
		Close:    client.Close,
	}, nil
}

func openPostgres(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Backend, error) {
	log.Info("connecting to Postgres")
	db, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Backend{
		Name:     "postgres",
		Policies: postgres.NewPolicyRepo(db),
		Claims:   postgres.NewClaimRepo(db),
		Ping:     db.PingContext,
		Close:    func(context.Context) error { return db.Close() },
	}, nil
}
