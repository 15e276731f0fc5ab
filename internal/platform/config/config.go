package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/MrKriegler/go-parametric/internal/core"
)

type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Database selection: "dynamodb", "mongo", "postgres" or "memory"
	DBType string

	// MongoDB settings (when DBType = "mongo")
	MongoURI string
	MongoDB  string

	// DynamoDB settings (when DBType = "dynamodb")
	AWSRegion          string
	DynamoDBEndpoint   string // Optional: for local development
	AWSAccessKeyID     string // Optional: for local development
	AWSSecretAccessKey string // Optional: for local development

	// Postgres settings (when DBType = "postgres")
	PostgresDSN string

	// Timeouts
	HTTPReadTimeoutSec     int
	HTTPWriteTimeoutSec    int
	HTTPIdleTimeoutSec     int
	HTTPRequestTimeoutSec  int
	MongoConnectTimeoutSec int
	MongoOpTimeoutMs       int

	// Pricing
	RiskTablesPath string    // Optional: overrides the embedded tables
	CoverageTiers  []float64 // Allowed coverage amounts; empty allows any

	// Attestation and settlement. The key is never logged.
	SignerPrivateKey          string
	SettlementContractAddress string
	ChainID                   int64
	EthRPCURL                 string // Optional: enables on-chain payment checks

	// Expiration sweep
	SweepCron        string
	SweepMaxAgeHours int
	SweepBatchSize   int

	// Redis (optional): shared sweep lock across replicas
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// MinIO (optional): policy document uploads
	MinioEndpoint     string
	MinioAccessKey    string
	MinioSecretKey    string
	MinioBucket       string
	MinioRegion       string
	MinioSecure       bool
	MinioURLExpiryMin int

	// Security settings
	APIKey         string   // Simple API key auth
	AllowedOrigins []string // CORS allowed origins
	RateLimitRPM   int      // Rate limit requests per minute
}

func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	cfg := &Config{}

	cfg.Port = getEnv("PORT", "8080")
	cfg.Env = getEnv("ENV", "dev")
	cfg.LogLevel = getEnv("LOG_LEVEL", "")
	cfg.DBType = getEnv("DB_TYPE", "dynamodb") // Default to DynamoDB

	// MongoDB settings (check both MONGODB_URI and MONGO_URI for compatibility)
	cfg.MongoURI = getEnv("MONGODB_URI", getEnv("MONGO_URI", ""))
	cfg.MongoDB = getEnv("MONGO_DB", "go_parametric")

	// DynamoDB settings
	cfg.AWSRegion = getEnv("AWS_REGION", "us-east-1")
	cfg.DynamoDBEndpoint = getEnv("DYNAMODB_ENDPOINT", "") // Empty means use AWS
	cfg.AWSAccessKeyID = getEnv("AWS_ACCESS_KEY_ID", "")
	cfg.AWSSecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", "")

	cfg.PostgresDSN = getEnv("POSTGRES_DSN", "")

	cfg.HTTPReadTimeoutSec = getEnvAsInt("HTTP_READ_TIMEOUT_SEC", 10)
	cfg.HTTPWriteTimeoutSec = getEnvAsInt("HTTP_WRITE_TIMEOUT_SEC", 10)
	cfg.HTTPIdleTimeoutSec = getEnvAsInt("HTTP_IDLE_TIMEOUT_SEC", 120)
	cfg.HTTPRequestTimeoutSec = getEnvAsInt("HTTP_REQUEST_TIMEOUT_SEC", 30)
	cfg.MongoConnectTimeoutSec = getEnvAsInt("MONGO_CONNECT_TIMEOUT_SEC", 5)
	cfg.MongoOpTimeoutMs = getEnvAsInt("MONGO_OP_TIMEOUT_MS", 500)

	cfg.RiskTablesPath = getEnv("RISK_TABLES_PATH", "")
	tiers, err := getEnvAsFloatSlice("COVERAGE_TIERS", []float64{0.25, 0.5, 1})
	if err != nil {
		return nil, err
	}
	cfg.CoverageTiers = tiers

	cfg.SignerPrivateKey = getEnv("SIGNER_PRIVATE_KEY", "")
	cfg.SettlementContractAddress = getEnv("SETTLEMENT_CONTRACT_ADDRESS", "")
	cfg.ChainID = int64(getEnvAsInt("CHAIN_ID", 0))
	cfg.EthRPCURL = getEnv("ETH_RPC_URL", "")

	cfg.SweepCron = getEnv("SWEEP_CRON", "0 0 3 * * *") // daily at 03:00
	cfg.SweepMaxAgeHours = getEnvAsInt("SWEEP_MAX_AGE_HOURS", 120)
	cfg.SweepBatchSize = getEnvAsInt("SWEEP_BATCH_SIZE", 100)

	cfg.RedisAddr = getEnv("REDIS_ADDR", "")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.RedisDB = getEnvAsInt("REDIS_DB", 0)

	cfg.MinioEndpoint = getEnv("MINIO_ENDPOINT", "")
	cfg.MinioAccessKey = getEnv("MINIO_ACCESS_KEY", "")
	cfg.MinioSecretKey = getEnv("MINIO_SECRET_KEY", "")
	cfg.MinioBucket = getEnv("MINIO_BUCKET", "policy-documents")
	cfg.MinioRegion = getEnv("MINIO_REGION", "us-east-1")
	cfg.MinioSecure = getEnvAsBool("MINIO_SECURE", false)
	cfg.MinioURLExpiryMin = getEnvAsInt("MINIO_URL_EXPIRY_MIN", 0)

	// Security settings
	cfg.APIKey = getEnv("API_KEY", "")
	cfg.AllowedOrigins = getEnvAsSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:8080"})
	cfg.RateLimitRPM = getEnvAsInt("RATE_LIMIT_RPM", 100) // 100 requests per minute

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Default API key for development only
	if cfg.APIKey == "" {
		cfg.APIKey = "demo-api-key-12345"
	}

	return cfg, nil
}

func (cfg *Config) validate() error {
	switch cfg.DBType {
	case "dynamodb", "memory":
	case "mongo":
		if cfg.MongoURI == "" {
			return fmt.Errorf("%w: MONGO_URI is required when DB_TYPE=mongo", core.ErrConfiguration)
		}
	case "postgres":
		if cfg.PostgresDSN == "" {
			return fmt.Errorf("%w: POSTGRES_DSN is required when DB_TYPE=postgres", core.ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown DB_TYPE %q", core.ErrConfiguration, cfg.DBType)
	}

	// The service cannot attest premiums without these
	if cfg.SignerPrivateKey == "" {
		return fmt.Errorf("%w: SIGNER_PRIVATE_KEY is required", core.ErrConfiguration)
	}
	if !strings.HasPrefix(cfg.SettlementContractAddress, "0x") || len(cfg.SettlementContractAddress) != 42 {
		return fmt.Errorf("%w: SETTLEMENT_CONTRACT_ADDRESS must be a 0x-prefixed address", core.ErrConfiguration)
	}

	if cfg.SweepMaxAgeHours <= 0 {
		return fmt.Errorf("%w: SWEEP_MAX_AGE_HOURS must be > 0", core.ErrConfiguration)
	}

	// In production, API_KEY must be explicitly set
	if cfg.Env == "prod" && cfg.APIKey == "" {
		return fmt.Errorf("%w: API_KEY is required in production environment", core.ErrConfiguration)
	}
	return nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsInt(key string, defaultVal int) int {
	valStr := os.Getenv(key)
	if val, err := strconv.Atoi(valStr); err == nil {
		return val
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if val, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return val
	}
	return defaultVal
}

func getEnvAsSlice(key string, defaultVal []string) []string {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	// Split by comma and trim whitespace
	var result []string
	for _, s := range strings.Split(valStr, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			result = append(result, s)
		}
	}
	if len(result) == 0 {
		return defaultVal
	}
	return result
}

// getEnvAsFloatSlice is strict: a malformed tier list is a startup error,
// not a silent fallback.
func getEnvAsFloatSlice(key string, defaultVal []float64) ([]float64, error) {
	parts := getEnvAsSlice(key, nil)
	if parts == nil {
		return defaultVal, nil
	}
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("%w: %s entry %q is not a positive number", core.ErrConfiguration, key, p)
		}
		out = append(out, v)
	}
	return out, nil
}
