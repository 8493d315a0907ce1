package reconcile

import (
	"context"
	"math/big"
	"testing"

	"github.com/google/uuid"

	"github.com/uhyunpark/liqhook/pkg/store"
)

type stubReconcileStore struct {
	store.Store
	rows        []store.TradeRow
	netCalls    []store.NetUserTradeRequest
}

func (s *stubReconcileStore) FetchUserTrades(ctx context.Context, marketID uuid.UUID, offset, limit int) ([]store.TradeRow, error) {
	if offset >= len(s.rows) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.rows) {
		end = len(s.rows)
	}
	return s.rows[offset:end], nil
}

func (s *stubReconcileStore) NetUserTrade(ctx context.Context, req store.NetUserTradeRequest) error {
	s.netCalls = append(s.netCalls, req)
	return nil
}

func TestDBNetPositionSumsSignedAmounts(t *testing.T) {
	st := &stubReconcileStore{rows: []store.TradeRow{
		{UserWallet: "0xabc", Amount: "5.000000000000000000"},
		{UserWallet: "0xabc", Amount: "-2.000000000000000000"},
		{UserWallet: "0xdef", Amount: "100.000000000000000000"},
	}}
	r := New(st)
	net, err := r.DBNetPosition(context.Background(), uuid.New(), "0xABC")
	if err != nil {
		t.Fatal(err)
	}
	want := big.NewInt(3_000000000000000000)
	if net.Cmp(want) != 0 {
		t.Errorf("got %s want %s", net, want)
	}
}

func TestReconcileNoOpWhenEqual(t *testing.T) {
	st := &stubReconcileStore{}
	r := New(st)
	size := big.NewInt(10)
	res, err := r.Reconcile(context.Background(), uuid.New(), "0xhex", "0xwallet", size, big.NewInt(10))
	if err != nil {
		t.Fatal(err)
	}
	if res.Reconciled {
		t.Error("expected no reconciliation when equal")
	}
	if len(st.netCalls) != 0 {
		t.Error("expected no net_user_trade call")
	}
}

func TestReconcileNoOpWhenOnChainNil(t *testing.T) {
	st := &stubReconcileStore{}
	r := New(st)
	res, err := r.Reconcile(context.Background(), uuid.New(), "0xhex", "0xwallet", nil, big.NewInt(10))
	if err != nil {
		t.Fatal(err)
	}
	if res.Reconciled {
		t.Error("expected no reconciliation when on-chain size is absent")
	}
}

func TestReconcileAppliesDelta(t *testing.T) {
	st := &stubReconcileStore{}
	r := New(st)
	onChain := big.NewInt(15)
	dbNet := big.NewInt(10)
	res, err := r.Reconcile(context.Background(), uuid.New(), "0xhex", "0xWallet", onChain, dbNet)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Reconciled {
		t.Fatal("expected reconciliation")
	}
	if len(st.netCalls) != 1 {
		t.Fatalf("expected 1 net_user_trade call, got %d", len(st.netCalls))
	}
	if st.netCalls[0].Price != "0" || st.netCalls[0].OrderBook != "" {
		t.Errorf("expected synthetic trade shape, got %+v", st.netCalls[0])
	}
	if st.netCalls[0].Wallet != "0xwallet" {
		t.Errorf("expected lowercased wallet, got %s", st.netCalls[0].Wallet)
	}
}
