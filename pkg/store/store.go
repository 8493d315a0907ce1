// Package store defines the abstract persistence contract the liquidation
// engine's core depends on. Per the specification this is an external
// collaborator: the core only ever calls these seven operations, never a
// concrete SQL statement. See postgres.go for the Postgres-backed
// implementation.
package store

import (
	"context"

	"github.com/google/uuid"
)

// MarketRecord is a resolved market identity.
type MarketRecord struct {
	ID               uuid.UUID
	Hex              string // canonical 32-byte lowercase 0x-prefixed hex
	OrderBookAddress string // lowercase 0x-prefixed 20-byte hex
}

// TradeRow is one row as consumed from the trade table. Amount and
// LiquidationPrice are decimal strings at AMOUNT_DECIMALS / PRICE_DECIMALS
// respectively, parsed by the caller via pkg/fixedpoint.
type TradeRow struct {
	UserWallet       string
	LiquidationPrice *string
	Amount           string
}

// Store is the abstract contract named in spec.md §1/§6: market lookups,
// paginated trade scans, the net-position mutation RPC, nonce allocation,
// broadcast marking, and the failure-queue enqueue.
type Store interface {
	// LookupMarketByHex resolves a canonical market hex to its database
	// record. Returns (nil, nil) when not found (not an error).
	LookupMarketByHex(ctx context.Context, hex string) (*MarketRecord, error)

	// LookupMarketByAddress resolves an order-book address to its market
	// record. Returns (nil, nil) when not found.
	LookupMarketByAddress(ctx context.Context, address string) (*MarketRecord, error)

	// FetchUserTrades pages through trade rows for a market, offset/limit
	// paginated by the caller (1000/page, 5000 cap enforced by pkg/liquidation
	// and pkg/reconcile, not by the store itself).
	FetchUserTrades(ctx context.Context, marketID uuid.UUID, offset, limit int) ([]TradeRow, error)

	// NetUserTrade applies a signed delta to a wallet's net position for a
	// market, recording a trade row (synthetic or real).
	NetUserTrade(ctx context.Context, req NetUserTradeRequest) error

	// AllocateRelayerNonce asks the remote allocator for the next nonce for
	// a relayer on a given chain. observedPending is the locally-read
	// pending transaction count, passed through so the allocator can
	// cross-check.
	AllocateRelayerNonce(ctx context.Context, relayer string, chainID int64, observedPending uint64, label string) (uint64, error)

	// MarkRelayerTxBroadcasted is a best-effort post-send notification.
	MarkRelayerTxBroadcasted(ctx context.Context, relayer string, chainID int64, nonce uint64, txHash string) error

	// EnqueueLiqJob records an unrecoverable send failure for an external
	// retry worker. Returns the job id.
	EnqueueLiqJob(ctx context.Context, req EnqueueLiqJobRequest) (string, error)
}

// NetUserTradeRequest is the payload for the net_user_trade RPC.
type NetUserTradeRequest struct {
	MarketID         uuid.UUID
	Wallet           string // lowercase
	Delta            string // signed decimal string, 18-dec
	Price            string // decimal string, 6-dec ("0" for synthetic corrections)
	LiquidationPrice *string
	TradeTimestamp   int64
	OrderBook        string // empty for synthetic corrections
}

// Priority levels for EnqueueLiqJobRequest, per spec.md §4.G.
const (
	PrioritySendFail    = 5
	PriorityBigSendFail = 8
	PriorityNoRelayer   = 10
)

// EnqueueLiqJobRequest is the payload for the enqueue_liq_job RPC.
type EnqueueLiqJobRequest struct {
	Wallet     string // lowercase
	MarketHex  string // lowercase
	ChainID    int64
	Error      string // truncated to 500 chars by the caller
	Priority   int
}
