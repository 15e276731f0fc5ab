package dynamo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

const (
	connectAttempts = 5
	initialBackoff  = time.Second
	maxBackoff      = 30 * time.Second
	pingTimeout     = 5 * time.Second
)

type Client struct {
	DB *dynamodb.Client
}

type Config struct {
	Region string
	// Endpoint points at DynamoDB Local; empty means AWS.
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// NewClient loads AWS config and waits until DynamoDB answers. Against a
// local endpoint static credentials are always used so the SDK never
// reaches for instance metadata.
func NewClient(ctx context.Context, cfg Config, log *slog.Logger) (*Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.Endpoint != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			orDefault(cfg.AccessKeyID, "local"),
			orDefault(cfg.SecretAccessKey, "local"),
			"",
		)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	db := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	c := &Client{DB: db}
	if err := c.waitReady(ctx, log); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) waitReady(ctx context.Context, log *slog.Logger) error {
	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := c.Ping(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		if attempt == connectAttempts {
			return fmt.Errorf("dynamodb unreachable after %d attempts: %w", attempt, err)
		}

		log.Warn("dynamodb not ready", "attempt", attempt, "backoff", backoff, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// Ping lists at most one table.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.DB.ListTables(ctx, &dynamodb.ListTablesInput{Limit: aws.Int32(1)})
	return err
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
