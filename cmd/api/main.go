package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrKriegler/go-parametric/internal/attestation"
	"github.com/MrKriegler/go-parametric/internal/chain"
	"github.com/MrKriegler/go-parametric/internal/core"
	transporthttp "github.com/MrKriegler/go-parametric/internal/http"
	"github.com/MrKriegler/go-parametric/internal/http/handlers"
	"github.com/MrKriegler/go-parametric/internal/http/health"
	"github.com/MrKriegler/go-parametric/internal/jobs"
	"github.com/MrKriegler/go-parametric/internal/middleware"
	"github.com/MrKriegler/go-parametric/internal/platform/config"
	"github.com/MrKriegler/go-parametric/internal/platform/lock"
	"github.com/MrKriegler/go-parametric/internal/platform/logging"
	"github.com/MrKriegler/go-parametric/internal/store"
	"github.com/MrKriegler/go-parametric/internal/store/objects"

	_ "github.com/MrKriegler/go-parametric/docs"
)

func main() {
	cfg := config.MustLoad()
	log := logging.New(cfg.Env, cfg.LogLevel)
	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Info("starting go-parametric API", "addr", addr, "env", cfg.Env, "db", cfg.DBType)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	// 1) Storage
	backend, err := store.Open(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer backend.Close(context.Background())

	deps := map[string]health.Pinger{backend.Name: health.PingFunc(backend.Ping)}

	// 2) Pricing
	tables := core.DefaultRiskTables()
	if cfg.RiskTablesPath != "" {
		if tables, err = core.LoadRiskTables(cfg.RiskTablesPath); err != nil {
			return err
		}
	}
	log.Info("risk tables loaded", "version", tables.Version())

	// 3) Attestation signer; only the derived address is ever logged
	signer, err := attestation.NewSigner(cfg.SignerPrivateKey)
	if err != nil {
		return err
	}
	log.Info("attestation signer ready", "address", signer.Address())

	// 4) Optional on-chain payment verification
	var payments core.PaymentVerifier
	if cfg.EthRPCURL != "" {
		verifier, client, err := chain.Dial(ctx, cfg.EthRPCURL, cfg.SettlementContractAddress, cfg.ChainID)
		if err != nil {
			return err
		}
		defer client.Close()
		payments = verifier
		log.Info("payment verification enabled", "settlement", cfg.SettlementContractAddress)
	} else {
		log.Warn("ETH_RPC_URL not set; payment confirmations only check the hash format")
	}

	// 5) Optional shared sweep lock
	var locker lock.Locker = lock.NewLocal()
	if cfg.RedisAddr != "" {
		rdb, err := lock.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer rdb.Close()
		locker = lock.NewRedis(rdb, "go-parametric:")
		deps["redis"] = health.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}

	// 6) Optional document storage
	var documents core.DocumentStore
	if cfg.MinioEndpoint != "" {
		ds, err := objects.NewDocumentStore(ctx, objects.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			Region:    cfg.MinioRegion,
			Secure:    cfg.MinioSecure,
			URLExpiry: time.Duration(cfg.MinioURLExpiryMin) * time.Minute,
		}, log)
		if err != nil {
			return err
		}
		documents = ds
		deps["minio"] = ds
	}

	// 7) Services
	quoteSvc := core.NewQuoteService(tables, cfg.CoverageTiers)
	policySvc := core.NewPolicyService(backend.Policies, payments)
	claimSvc := core.NewClaimService(backend.Claims, policySvc)
	attestSvc := core.NewAttestationService(signer)

	// 8) Background sweep
	sweeper, err := jobs.NewExpirationWorker(backend.Policies, policySvc, locker, jobs.SweepConfig{
		Schedule:  cfg.SweepCron,
		MaxAge:    time.Duration(cfg.SweepMaxAgeHours) * time.Hour,
		BatchSize: cfg.SweepBatchSize,
	}, log)
	if err != nil {
		return err
	}
	for _, w := range []jobs.Worker{sweeper} {
		log.Info("starting worker", "worker", w.Name())
		go w.Start(ctx)
	}

	// 9) HTTP
	limiter := middleware.NewRateLimiter(cfg.RateLimitRPM)
	limiter.StartWithContext(ctx)
	defer limiter.Stop()

	router := transporthttp.NewRouter(transporthttp.Deps{
		Mounts: []handlers.Mountable{
			handlers.NewQuoteHandler(quoteSvc, log),
			handlers.NewPolicyHandler(policySvc, claimSvc, log),
			handlers.NewClaimHandler(claimSvc, log),
			handlers.NewAttestationHandler(attestSvc, log),
		},
		Uploads: []handlers.Mountable{
			handlers.NewDocumentHandler(documents, log),
		},
		Health:         health.New(log, deps, 2*time.Second),
		APIKey:         cfg.APIKey,
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimiter:    limiter,
		RequestTimeout: time.Duration(cfg.HTTPRequestTimeoutSec) * time.Second,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTPReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTPWriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(cfg.HTTPIdleTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
