package market

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/uhyunpark/liqhook/pkg/store"
)

type stubStore struct {
	store.Store
	byHex     map[string]*store.MarketRecord
	byAddr    map[string]*store.MarketRecord
	hexCalls  int
	addrCalls int
}

func (s *stubStore) LookupMarketByHex(ctx context.Context, hex string) (*store.MarketRecord, error) {
	s.hexCalls++
	return s.byHex[hex], nil
}

func (s *stubStore) LookupMarketByAddress(ctx context.Context, address string) (*store.MarketRecord, error) {
	s.addrCalls++
	return s.byAddr[address], nil
}

func TestResolveByHexCachesAfterFirstHit(t *testing.T) {
	id := uuid.New()
	st := &stubStore{
		byHex: map[string]*store.MarketRecord{
			"0xabc": {ID: id, Hex: "0xabc", OrderBookAddress: "0xdef"},
		},
	}
	r := New(st)

	got, err := r.ResolveByHex(context.Background(), "0xABC")
	if err != nil || got == nil || got.ID != id {
		t.Fatalf("first resolve failed: %v %v", got, err)
	}
	if _, err := r.ResolveByHex(context.Background(), "0xabc"); err != nil {
		t.Fatal(err)
	}
	if st.hexCalls != 1 {
		t.Errorf("expected 1 store call due to caching, got %d", st.hexCalls)
	}
}

func TestResolveByHexNotFoundIsNotCached(t *testing.T) {
	st := &stubStore{byHex: map[string]*store.MarketRecord{}}
	r := New(st)

	got, err := r.ResolveByHex(context.Background(), "0xmissing")
	if err != nil || got != nil {
		t.Fatalf("expected nil,nil got %v %v", got, err)
	}
	if _, _ = r.ResolveByHex(context.Background(), "0xmissing"); st.hexCalls != 2 {
		t.Errorf("expected negative lookups to not be cached, got %d calls", st.hexCalls)
	}
}

func TestResolveByAddressPopulatesHexCacheToo(t *testing.T) {
	id := uuid.New()
	st := &stubStore{
		byAddr: map[string]*store.MarketRecord{
			"0xdef": {ID: id, Hex: "0xabc", OrderBookAddress: "0xdef"},
		},
	}
	r := New(st)
	if _, err := r.ResolveByAddress(context.Background(), "0xDEF"); err != nil {
		t.Fatal(err)
	}
	got, err := r.ResolveByHex(context.Background(), "0xabc")
	if err != nil || got == nil || got.ID != id {
		t.Fatalf("expected cross-populated hex cache hit, got %v %v", got, err)
	}
	if st.hexCalls != 0 {
		t.Errorf("expected resolve_by_hex to be served from cache, got %d store calls", st.hexCalls)
	}
}
