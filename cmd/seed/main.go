package main

import (
	"context"
	"os"
	"time"

	"github.com/MrKriegler/go-parametric/internal/core"
	"github.com/MrKriegler/go-parametric/internal/platform/config"
	"github.com/MrKriegler/go-parametric/internal/platform/ids"
	"github.com/MrKriegler/go-parametric/internal/platform/logging"
	"github.com/MrKriegler/go-parametric/internal/store"
)

const (
	demoOwner  = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	demoTxHash = "0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060"
)

func main() {
	cfg := config.MustLoad()
	log := logging.New(cfg.Env, cfg.LogLevel)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	backend, err := store.Open(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open store", "db", cfg.DBType, "err", err)
		os.Exit(1)
	}
	defer backend.Close(ctx)

	log.Info("seeding policies", "db", backend.Name)

	now := time.Now().UTC()
	for _, p := range demoPolicies(now) {
		if err := backend.Policies.Create(ctx, p); err != nil {
			log.Error("failed to seed policy", "identifier", p.Identifier, "err", err)
			continue
		}
		log.Info("seeded policy", "id", p.ID, "identifier", p.Identifier, "status", p.Status)
	}

	log.Info("done seeding")
}

// demoPolicies covers each sweep case: an active policy, a fresh pending
// one and a pending one old enough to be expired on the next sweep.
func demoPolicies(now time.Time) []core.Policy {
	day := 24 * time.Hour
	paid := now.Add(-2 * day)

	return []core.Policy{
		demoPolicy("6E-2134", core.PolicyStatusActive, now.Add(-3*day), now.Add(4*day), func(p *core.Policy) {
			p.PaidAt = &paid
			p.SettlementTxHash = demoTxHash
		}),
		demoPolicy("AI-101", core.PolicyStatusPendingPayment, now.Add(-1*day), now.Add(10*day), nil),
		demoPolicy("UK-955", core.PolicyStatusPendingPayment, now.Add(-6*day), now.Add(8*day), nil),
	}
}

func demoPolicy(identifier string, status core.PolicyStatus, submitted, event time.Time, mutate func(*core.Policy)) core.Policy {
	p := core.Policy{
		ID:                ids.New(),
		OwnerAddress:      demoOwner,
		PlanType:          core.PlanFlightDelay,
		Identifier:        identifier,
		CoverageAmount:    0.25,
		UnitCount:         2,
		Premium:           0.07,
		TotalPremium:      0.15,
		Status:            status,
		CoverageStartDate: event,
		CoverageEndDate:   event.Add(24 * time.Hour),
		SubmittedAt:       submitted,
		UpdatedAt:         submitted,
	}
	if mutate != nil {
		mutate(&p)
	}
	return p
}
