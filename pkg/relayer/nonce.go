package relayer

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/uhyunpark/liqhook/pkg/store"
)

// PendingCounter reads the locally observed pending transaction count for
// an address, typically backed by go-ethereum's PendingNonceAt.
type PendingCounter interface {
	PendingNonceAt(ctx context.Context, address string) (uint64, error)
}

// NonceAllocator allocates monotonic per-relayer nonces. It always reads
// the pending transaction count first; if the allocator is disabled or its
// backing RPC fails, the observed pending count is returned instead. See
// spec.md §4.E.
type NonceAllocator struct {
	pending  PendingCounter
	st       store.Store
	disabled bool
	log      *zap.Logger
}

// NewNonceAllocator constructs an allocator. mode is the raw configuration
// string; "disabled" or "off" (case-insensitive) skips the allocator RPC
// entirely and always returns the observed pending count.
func NewNonceAllocator(pending PendingCounter, st store.Store, mode string, log *zap.Logger) *NonceAllocator {
	m := strings.ToLower(strings.TrimSpace(mode))
	return &NonceAllocator{
		pending:  pending,
		st:       st,
		disabled: m == "disabled" || m == "off",
		log:      log,
	}
}

// Allocate returns the next nonce to use for relayer on chainID.
func (a *NonceAllocator) Allocate(ctx context.Context, relayerAddr string, chainID int64, label string) (uint64, error) {
	observed, err := a.pending.PendingNonceAt(ctx, relayerAddr)
	if err != nil {
		return 0, err
	}

	if a.disabled {
		return observed, nil
	}

	allocated, err := a.st.AllocateRelayerNonce(ctx, relayerAddr, chainID, observed, label)
	if err != nil {
		if a.log != nil {
			a.log.Warn("nonce_allocator_failed_falling_back_to_pending",
				zap.String("relayer", relayerAddr), zap.Int64("chain_id", chainID), zap.Error(err))
		}
		return observed, nil
	}
	return allocated, nil
}

// MarkBroadcast is a best-effort post-send notification. It never returns
// an error to the caller; failures are logged and swallowed.
func (a *NonceAllocator) MarkBroadcast(ctx context.Context, relayerAddr string, chainID int64, nonce uint64, txHash string) {
	if err := a.st.MarkRelayerTxBroadcasted(ctx, relayerAddr, chainID, nonce, txHash); err != nil && a.log != nil {
		a.log.Warn("mark_broadcast_failed",
			zap.String("relayer", relayerAddr), zap.Uint64("nonce", nonce), zap.String("tx_hash", txHash), zap.Error(err))
	}
}
