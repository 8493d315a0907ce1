// Package chain defines the contract-call surface the liquidation engine
// needs from the EVM chain it watches, plus the tagged send-error variants
// the scanner branches on. See ethclient.go for the go-ethereum-backed
// implementation, grounded on the DanDo385 geth-05-tx-nonces/geth-06-eip1559
// dial→nonce→gas→sign→send exercises and go-ethereum's accounts/abi/bind
// CallContract/EstimateGas conventions.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PositionSummary mirrors CoreVault.getPositionSummary's return tuple.
type PositionSummary struct {
	Size         *big.Int // signed, 18-dec; zero-value sentinel when !HasPosition
	EntryPrice   *big.Int
	MarginLocked *big.Int
	HasPosition  bool
}

// Client is the chain surface named in spec.md §6: CoreVault liquidation
// price/position reads, the liquidateDirect write, OrderBook mark price,
// and the RPC primitives (estimate/simulate/nonce/receipt) the scanner and
// nonce allocator depend on.
type Client interface {
	// GetLiquidationPrice reads CoreVault.getLiquidationPrice(user, marketId).
	// Returns (nil, false, nil) when the contract reports no liquidation price set.
	GetLiquidationPrice(ctx context.Context, marketID [32]byte, user common.Address) (price *big.Int, ok bool, err error)

	// GetPositionSummary reads CoreVault.getPositionSummary(user, marketId).
	GetPositionSummary(ctx context.Context, marketID [32]byte, user common.Address) (PositionSummary, error)

	// CalculateMarkPrice reads OrderBook.calculateMarkPrice() on the given
	// order-book contract address.
	CalculateMarkPrice(ctx context.Context, orderBook common.Address) (*big.Int, error)

	// EstimateGas estimates gas for liquidateDirect(marketId, trader).
	EstimateGas(ctx context.Context, from common.Address, marketID [32]byte, trader common.Address) (uint64, error)

	// SimulateLiquidateDirect performs a state-free call simulation of
	// liquidateDirect(marketId, trader) from the given account. A revert
	// surfaces as a non-nil error.
	SimulateLiquidateDirect(ctx context.Context, from common.Address, marketID [32]byte, trader common.Address) error

	// PendingNonceAt reads the pending transaction count for an address.
	PendingNonceAt(ctx context.Context, address string) (uint64, error)

	// SendLiquidateDirect signs and broadcasts liquidateDirect(marketId,
	// trader) from the relayer key, using the given nonce and an optional
	// gas limit override (0 means let the node estimate at broadcast time).
	SendLiquidateDirect(ctx context.Context, key *ecdsa.PrivateKey, marketID [32]byte, trader common.Address, nonce uint64, gasLimit uint64) (txHash string, err error)

	// WaitForReceipt blocks (bounded by the caller's context) until the
	// transaction is mined, returning whether it reverted.
	WaitForReceipt(ctx context.Context, txHash string) (reverted bool, err error)

	// ChainID returns the configured chain id.
	ChainID() int64
}

// SendErrorKind tags the variants of SendError, replacing brittle
// string-matching against error messages (see spec.md REDESIGN FLAGS).
type SendErrorKind int

const (
	SendErrorOther SendErrorKind = iota
	SendErrorBlockGasLimit
	SendErrorReverted
	SendErrorReceiptTimeout
)

// SendError is the tagged error type send_liquidation_tx and the scanner's
// failure-handling step (§4.G.i) branch on.
type SendError struct {
	Kind   SendErrorKind
	TxHash string // empty if the send itself never produced a hash
	Cause  error
}

func (e *SendError) Error() string {
	switch e.Kind {
	case SendErrorBlockGasLimit:
		return fmt.Sprintf("block_gas_limit: %v", e.Cause)
	case SendErrorReverted:
		return fmt.Sprintf("tx_reverted:%s", e.TxHash)
	case SendErrorReceiptTimeout:
		return fmt.Sprintf("receipt_check_failed:%s:%v", e.TxHash, e.Cause)
	default:
		return fmt.Sprintf("send_failed: %v", e.Cause)
	}
}

func (e *SendError) Unwrap() error { return e.Cause }

// IsBlockGasLimit reports whether err is (or wraps) a block-gas-limit SendError.
func IsBlockGasLimit(err error) bool {
	se, ok := asSendError(err)
	return ok && se.Kind == SendErrorBlockGasLimit
}

// IsRetryableOnBigPool reports whether a send failure should trigger the
// scanner's one-shot retry-on-big-pool fallback: a block-gas-limit failure,
// a reverted receipt, or a receipt-wait timeout, per spec.md §4.G.i.
func IsRetryableOnBigPool(err error) bool {
	se, ok := asSendError(err)
	if !ok {
		return false
	}
	switch se.Kind {
	case SendErrorBlockGasLimit, SendErrorReverted, SendErrorReceiptTimeout:
		return true
	default:
		return false
	}
}

func asSendError(err error) (*SendError, bool) {
	var se *SendError
	ok := errors.As(err, &se)
	return se, ok
}
