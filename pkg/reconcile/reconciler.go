// Package reconcile keeps a wallet's database-tracked net position in sync
// with its authoritative on-chain position. Grounded on the teacher's
// account manager reconciliation-style reads (pkg/app/core/account/manager.go)
// and the meme-perp-dex liquidation keeper's reconcile-before-liquidate step.
package reconcile

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/uhyunpark/liqhook/pkg/fixedpoint"
	"github.com/uhyunpark/liqhook/pkg/store"
)

const (
	pageSize = 1_000
	scanCap  = 5_000
)

// Reconciler computes and applies position corrections.
type Reconciler struct {
	st store.Store
}

// New constructs a Reconciler over the given store.
func New(st store.Store) *Reconciler {
	return &Reconciler{st: st}
}

// DBNetPosition sums the signed `amount` column across all matching trade
// rows for a wallet in a market, paginated at pageSize rows per page, up to
// scanCap total rows.
func (r *Reconciler) DBNetPosition(ctx context.Context, marketID uuid.UUID, wallet string) (*big.Int, error) {
	wallet = strings.ToLower(wallet)
	net := big.NewInt(0)

	for offset := 0; offset < scanCap; offset += pageSize {
		rows, err := r.st.FetchUserTrades(ctx, marketID, offset, pageSize)
		if err != nil {
			return nil, fmt.Errorf("db_net_position: %w", err)
		}
		for _, row := range rows {
			if !strings.EqualFold(row.UserWallet, wallet) {
				continue
			}
			amt := fixedpoint.ParseDecimal(row.Amount, fixedpoint.AmountDecimals)
			if amt == nil {
				continue
			}
			net.Add(net, amt)
		}
		if len(rows) < pageSize {
			break
		}
	}
	return net, nil
}

// Result is the outcome of a single reconcile call.
type Result struct {
	OnChainSize *big.Int // nil if the chain reports no position
	Reconciled  bool     // true iff a correcting trade was applied
}

// Reconcile reads the wallet's on-chain size and, if it differs from the
// supplied DB net (or is present while the DB net is considered authoritative
// some other way), applies a synthetic correcting trade via net_user_trade so
// the DB comes to match the chain. See spec.md §4.F.
func (r *Reconciler) Reconcile(ctx context.Context, marketID uuid.UUID, marketHex, wallet string, onChainSize *big.Int, dbNet *big.Int) (Result, error) {
	if onChainSize == nil {
		return Result{Reconciled: false}, nil
	}
	if onChainSize.Cmp(dbNet) == 0 {
		return Result{OnChainSize: onChainSize, Reconciled: false}, nil
	}

	delta := new(big.Int).Sub(onChainSize, dbNet)
	err := r.st.NetUserTrade(ctx, store.NetUserTradeRequest{
		MarketID:         marketID,
		Wallet:           strings.ToLower(wallet),
		Delta:            fixedpoint.FormatUnits(delta, fixedpoint.AmountDecimals),
		Price:            "0",
		LiquidationPrice: nil,
		TradeTimestamp:   time.Now().UTC().Unix(),
		OrderBook:        "",
	})
	if err != nil {
		return Result{}, fmt.Errorf("reconcile: net_user_trade: %w", err)
	}
	return Result{OnChainSize: onChainSize, Reconciled: true}, nil
}
