package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrKriegler/go-parametric/internal/core"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ENV", "dev")
	t.Setenv("DB_TYPE", "memory")
	t.Setenv("SIGNER_PRIVATE_KEY", "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	t.Setenv("SETTLEMENT_CONTRACT_ADDRESS", "0x5FbDB2315678afecb367f032d93F642f64180aa3")
	t.Setenv("COVERAGE_TIERS", "")
	t.Setenv("API_KEY", "")
	t.Setenv("SWEEP_MAX_AGE_HOURS", "")
}

func TestLoad_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, []float64{0.25, 0.5, 1}, cfg.CoverageTiers)
	assert.Equal(t, "0 0 3 * * *", cfg.SweepCron)
	assert.Equal(t, 120, cfg.SweepMaxAgeHours)
	assert.Equal(t, 100, cfg.SweepBatchSize)
	assert.Equal(t, "demo-api-key-12345", cfg.APIKey)
	assert.False(t, cfg.MinioSecure)
}

func TestLoad_Overrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("COVERAGE_TIERS", "0.1, 0.2 ,0.3")
	t.Setenv("SWEEP_MAX_AGE_HOURS", "48")
	t.Setenv("MINIO_SECURE", "true")
	t.Setenv("ALLOWED_ORIGINS", "https://app.example, ,https://admin.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, cfg.CoverageTiers)
	assert.Equal(t, 48, cfg.SweepMaxAgeHours)
	assert.True(t, cfg.MinioSecure)
	assert.Equal(t, []string{"https://app.example", "https://admin.example"}, cfg.AllowedOrigins)
}

func TestLoad_Rejects(t *testing.T) {
	cases := map[string]map[string]string{
		"missing signer key":   {"SIGNER_PRIVATE_KEY": ""},
		"bad settlement":       {"SETTLEMENT_CONTRACT_ADDRESS": "0x1234"},
		"unknown db":           {"DB_TYPE": "sqlite"},
		"mongo without uri":    {"DB_TYPE": "mongo", "MONGO_URI": "", "MONGODB_URI": ""},
		"postgres without dsn": {"DB_TYPE": "postgres", "POSTGRES_DSN": ""},
		"bad tiers":            {"COVERAGE_TIERS": "0.25,abc"},
		"negative tier":        {"COVERAGE_TIERS": "-1"},
		"prod without key":     {"ENV": "prod"},
		"zero max age":         {"SWEEP_MAX_AGE_HOURS": "0"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			setBaseEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.ErrorIs(t, err, core.ErrConfiguration)
		})
	}
}

func TestLoad_ErrorDoesNotEchoKey(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("SETTLEMENT_CONTRACT_ADDRESS", "nope")

	_, err := Load()
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
}
