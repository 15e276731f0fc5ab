// Package memory is a process-local store for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MrKriegler/go-parametric/internal/core"
)

type PolicyRepo struct {
	mu    sync.RWMutex
	items map[string]core.Policy
	paid  map[string]string // settlement tx hash -> policy id
}

var _ core.PolicyRepo = (*PolicyRepo)(nil)

func NewPolicyRepo() *PolicyRepo {
	return &PolicyRepo{items: map[string]core.Policy{}, paid: map[string]string{}}
}

func (r *PolicyRepo) Create(_ context.Context, policy core.Policy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[policy.ID]; ok {
		return core.ErrPolicyExists
	}
	if !r.txFree(policy.SettlementTxHash, policy.ID) {
		return core.ErrSettlementTxUsed
	}
	r.items[policy.ID] = policy
	r.recordTx(policy)
	return nil
}

func (r *PolicyRepo) Get(_ context.Context, id string) (core.Policy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.items[id]
	if !ok {
		return core.Policy{}, core.ErrPolicyNotFound
	}
	return p, nil
}

func (r *PolicyRepo) List(_ context.Context, filter core.PolicyFilter, limit, offset int) ([]core.Policy, int64, error) {
	r.mu.RLock()
	var matched []core.Policy
	for _, p := range r.items {
		if filter.OwnerAddress != "" && p.OwnerAddress != filter.OwnerAddress {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		matched = append(matched, p)
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].SubmittedAt.After(matched[j].SubmittedAt)
	})

	total := int64(len(matched))
	if offset >= len(matched) {
		return []core.Policy{}, total, nil
	}
	end := len(matched)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return matched[offset:end], total, nil
}

func (r *PolicyRepo) TransitionStatus(_ context.Context, id string, change core.StatusChange) (core.Policy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.items[id]
	if !ok {
		return core.Policy{}, core.ErrPolicyNotFound
	}
	if p.Status != change.From {
		return core.Policy{}, core.ErrStatusConflict
	}
	if !r.txFree(change.SettlementTxHash, id) {
		return core.Policy{}, core.ErrSettlementTxUsed
	}
	p = p.Apply(change)
	r.items[id] = p
	r.recordTx(p)
	return p, nil
}

func (r *PolicyRepo) txFree(hash, id string) bool {
	owner, used := r.paid[hash]
	return hash == "" || !used || owner == id
}

func (r *PolicyRepo) recordTx(p core.Policy) {
	if p.SettlementTxHash != "" {
		r.paid[p.SettlementTxHash] = p.ID
	}
}

func (r *PolicyRepo) FindExpirable(_ context.Context, submittedBefore, eventBefore time.Time, limit int) ([]core.Policy, error) {
	r.mu.RLock()
	var out []core.Policy
	for _, p := range r.items {
		if p.Status != core.PolicyStatusPendingPayment {
			continue
		}
		if p.SubmittedAt.Before(submittedBefore) || p.CoverageStartDate.Before(eventBefore) {
			out = append(out, p)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
