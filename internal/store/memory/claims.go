package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MrKriegler/go-parametric/internal/core"
)

type ClaimRepo struct {
	mu    sync.RWMutex
	items map[string]core.Claim
}

var _ core.ClaimRepo = (*ClaimRepo)(nil)

func NewClaimRepo() *ClaimRepo {
	return &ClaimRepo{items: map[string]core.Claim{}}
}

func (r *ClaimRepo) Create(_ context.Context, claim core.Claim) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[claim.ID]; ok {
		return core.ErrConflict
	}
	r.items[claim.ID] = claim
	return nil
}

func (r *ClaimRepo) Get(_ context.Context, id string) (core.Claim, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.items[id]
	if !ok {
		return core.Claim{}, core.ErrClaimNotFound
	}
	return c, nil
}

func (r *ClaimRepo) ListByPolicy(_ context.Context, policyID string) ([]core.Claim, error) {
	r.mu.RLock()
	out := []core.Claim{}
	for _, c := range r.items {
		if c.PolicyID == policyID {
			out = append(out, c)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *ClaimRepo) Resolve(_ context.Context, id string, to core.ClaimStatus, at time.Time) (core.Claim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.items[id]
	if !ok {
		return core.Claim{}, core.ErrClaimNotFound
	}
	if c.Status != core.ClaimStatusPending {
		return core.Claim{}, core.ErrStatusConflict
	}
	c.Status = to
	c.ResolvedAt = &at
	r.items[id] = c
	return c, nil
}

func (r *ClaimRepo) Reopen(_ context.Context, id string, from core.ClaimStatus) (core.Claim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.items[id]
	if !ok {
		return core.Claim{}, core.ErrClaimNotFound
	}
	if c.Status != from {
		return core.Claim{}, core.ErrStatusConflict
	}
	c.Status = core.ClaimStatusPending
	c.ResolvedAt = nil
	r.items[id] = c
	return c, nil
}
