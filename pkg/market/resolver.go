// Package market resolves markets by their canonical hex identifier or
// order-book address against a process-lifetime in-memory cache backed by
// pkg/store. Grounded on the teacher's account manager cache (pkg/app/core/account/manager.go),
// which keeps a similar never-evicted in-process map over a store lookup.
package market

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/uhyunpark/liqhook/pkg/store"
)

// Resolved is the cached shape: a market's id plus both of its lookup keys.
type Resolved struct {
	ID      uuid.UUID
	Hex     string
	Address string
}

// Resolver caches market resolution for the life of the process. Entries
// are never evicted — per spec.md §4.C, markets are not expected to churn
// during a process's lifetime. Negative lookups (not found) are never
// cached: a market created after process start must still resolve.
type Resolver struct {
	st store.Store

	mu       sync.RWMutex
	byHex    map[string]*Resolved
	byAddr   map[string]*Resolved
}

// New constructs a Resolver over the given store.
func New(st store.Store) *Resolver {
	return &Resolver{
		st:     st,
		byHex:  make(map[string]*Resolved),
		byAddr: make(map[string]*Resolved),
	}
}

// ResolveByHex resolves a canonical market hex, consulting the cache first.
// Returns (nil, nil) when the market does not exist.
func (r *Resolver) ResolveByHex(ctx context.Context, hex string) (*Resolved, error) {
	key := strings.ToLower(hex)

	r.mu.RLock()
	if cached, ok := r.byHex[key]; ok {
		r.mu.RUnlock()
		return cached, nil
	}
	r.mu.RUnlock()

	rec, err := r.st.LookupMarketByHex(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("resolve_by_hex: %w", err)
	}
	if rec == nil {
		return nil, nil
	}

	resolved := &Resolved{ID: rec.ID, Hex: strings.ToLower(rec.Hex), Address: strings.ToLower(rec.OrderBookAddress)}
	r.store(resolved)
	return resolved, nil
}

// ResolveByAddress resolves an order-book contract address, consulting the
// cache first. Returns (nil, nil) when the market does not exist.
func (r *Resolver) ResolveByAddress(ctx context.Context, address string) (*Resolved, error) {
	key := strings.ToLower(address)

	r.mu.RLock()
	if cached, ok := r.byAddr[key]; ok {
		r.mu.RUnlock()
		return cached, nil
	}
	r.mu.RUnlock()

	rec, err := r.st.LookupMarketByAddress(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("resolve_by_address: %w", err)
	}
	if rec == nil {
		return nil, nil
	}

	resolved := &Resolved{ID: rec.ID, Hex: strings.ToLower(rec.Hex), Address: strings.ToLower(rec.OrderBookAddress)}
	r.store(resolved)
	return resolved, nil
}

func (r *Resolver) store(resolved *Resolved) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byHex[resolved.Hex] = resolved
	if resolved.Address != "" {
		r.byAddr[resolved.Address] = resolved
	}
}
