// Package liquidation implements the per-market liquidation sweep: for
// every wallet with an open position, check whether the current mark price
// crosses its liquidation price, and if so simulate, route, and send a
// liquidateDirect transaction through the relayer pools. Grounded on the
// meme-perp-dex LiquidationKeeper's check→simulate→send→record structure
// (internal/keeper/liquidation.go), adapted from its polling loop into a
// single webhook-triggered scan.
package liquidation

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uhyunpark/liqhook/pkg/chain"
	"github.com/uhyunpark/liqhook/pkg/fixedpoint"
	"github.com/uhyunpark/liqhook/pkg/queue"
	"github.com/uhyunpark/liqhook/pkg/reconcile"
	"github.com/uhyunpark/liqhook/pkg/relayer"
	"github.com/uhyunpark/liqhook/pkg/store"
)

// liqQueueChainID is the fixed chain id the failure queue keys jobs under
// (spec §4.I/§6), independent of the chain the relayer actually signs
// against.
const liqQueueChainID = 999

const (
	pageSize       = 1_000
	scanCap        = 5_000
	gasHeadroom    = 50_000
	receiptBudget  = 60 * time.Second
)

// State is a candidate's terminal or in-flight position in the per-wallet
// state machine described in spec.md §4.G.
type State string

const (
	StateLoaded            State = "LOADED"
	StateChecked            State = "CHECKED"
	StateReconciled          State = "RECONCILED"
	StateEligible            State = "ELIGIBLE"
	StateEstimated           State = "ESTIMATED"
	StateSimulated           State = "SIMULATED"
	StateSent                State = "SENT"
	StateConfirmed           State = "CONFIRMED"
	StateRerouted            State = "REROUTED_TO_BIG"
	StateSkippedNoPos        State = "SKIPPED_NO_POS"
	StateSkippedZero         State = "SKIPPED_ZERO"
	StateSkippedNoLiq        State = "SKIPPED_NO_LIQ"
	StateSkippedNotEligible  State = "SKIPPED_NOT_ELIGIBLE"
	StateRejected            State = "REJECTED"
	StateFailed              State = "FAILED"
	StateEnqueued            State = "ENQUEUED"
)

// Outcome is the per-wallet record returned from a scan.
type Outcome struct {
	Wallet    string
	State     State
	Pool      relayer.Name
	Rerouted  bool
	TxHash    string
	Reason    string
}

// Result is scan_and_liquidate's return shape.
type Result struct {
	Liquidations []Outcome
	Checked      int
}

// Scanner ties together the reconciler, chain client, relayer pools, nonce
// allocator, and failure queue to run one liquidation sweep.
type Scanner struct {
	st       store.Store
	recon    *reconcile.Reconciler
	chainCli chain.Client
	pools    *relayer.Pools
	nonces   *relayer.NonceAllocator
	failq    *queue.Client
	log      *zap.Logger
}

// New constructs a Scanner.
func New(st store.Store, recon *reconcile.Reconciler, chainCli chain.Client, pools *relayer.Pools, nonces *relayer.NonceAllocator, failq *queue.Client, log *zap.Logger) *Scanner {
	return &Scanner{st: st, recon: recon, chainCli: chainCli, pools: pools, nonces: nonces, failq: failq, log: log}
}

type candidate struct {
	wallet  string
	netRaw  *big.Int
	liqHint *big.Int
}

// ScanAndLiquidate runs one sweep of a market's candidates against the given
// mark price (6-dec).
func (s *Scanner) ScanAndLiquidate(ctx context.Context, marketID uuid.UUID, marketHex string, markPrice *big.Int) (Result, error) {
	candidates, err := s.loadCandidates(ctx, marketID)
	if err != nil {
		return Result{}, fmt.Errorf("scan_and_liquidate: %w", err)
	}

	marketIDBytes, err := hexToBytes32(marketHex)
	if err != nil {
		return Result{}, fmt.Errorf("scan_and_liquidate: %w", err)
	}

	result := Result{Checked: len(candidates)}
	for _, c := range candidates {
		outcome := s.evaluate(ctx, marketID, marketHex, marketIDBytes, c, markPrice)
		result.Liquidations = append(result.Liquidations, outcome)
	}
	return result, nil
}

func (s *Scanner) loadCandidates(ctx context.Context, marketID uuid.UUID) ([]candidate, error) {
	byWallet := make(map[string]*candidate)
	order := make([]string, 0)

	for offset := 0; offset < scanCap; offset += pageSize {
		rows, err := s.st.FetchUserTrades(ctx, marketID, offset, pageSize)
		if err != nil {
			return nil, fmt.Errorf("loading candidates: %w", err)
		}
		for _, row := range rows {
			wallet := strings.ToLower(row.UserWallet)
			amt := fixedpoint.ParseDecimal(row.Amount, fixedpoint.AmountDecimals)
			if amt == nil {
				continue
			}
			c, ok := byWallet[wallet]
			if !ok {
				c = &candidate{wallet: wallet, netRaw: big.NewInt(0)}
				byWallet[wallet] = c
				order = append(order, wallet)
			}
			c.netRaw.Add(c.netRaw, amt)
			if row.LiquidationPrice != nil {
				if parsed := fixedpoint.ParseDecimal(*row.LiquidationPrice, fixedpoint.PriceDecimals); parsed != nil {
					c.liqHint = parsed
				}
			}
		}
		if len(rows) < pageSize {
			break
		}
	}

	out := make([]candidate, 0, len(order))
	for _, wallet := range order {
		c := byWallet[wallet]
		if c.netRaw.Sign() == 0 {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

func (s *Scanner) evaluate(ctx context.Context, marketID uuid.UUID, marketHex string, marketIDBytes [32]byte, c candidate, markPrice *big.Int) Outcome {
	out := Outcome{Wallet: c.wallet, State: StateLoaded}
	trader := common.HexToAddress(c.wallet)

	summary, err := s.chainCli.GetPositionSummary(ctx, marketIDBytes, trader)
	if err != nil {
		out.State = StateSkippedNoPos
		out.Reason = fmt.Sprintf("position_read_failed: %v", err)
		return out
	}
	if !summary.HasPosition {
		out.State = StateSkippedNoPos
		return out
	}
	out.State = StateChecked

	reconResult, err := s.recon.Reconcile(ctx, marketID, marketHex, c.wallet, summary.Size, c.netRaw)
	if err != nil && s.log != nil {
		s.log.Warn("reconcile_failed", zap.String("wallet", c.wallet), zap.Error(err))
	}
	effective := summary.Size
	if reconResult.OnChainSize != nil {
		effective = reconResult.OnChainSize
	}
	out.State = StateReconciled
	if effective == nil || effective.Sign() == 0 {
		out.State = StateSkippedZero
		return out
	}

	liqOnChain, hasLiqOnChain, err := s.chainCli.GetLiquidationPrice(ctx, marketIDBytes, trader)
	if err != nil && s.log != nil {
		s.log.Warn("liquidation_price_read_failed", zap.String("wallet", c.wallet), zap.Error(err))
	}
	var liqPrice *big.Int
	if hasLiqOnChain {
		liqPrice = liqOnChain
	} else if c.liqHint != nil {
		liqPrice = c.liqHint
	}
	if liqPrice == nil {
		out.State = StateSkippedNoLiq
		return out
	}

	long := effective.Sign() > 0
	eligible := (long && markPrice.Cmp(liqPrice) <= 0) || (!long && markPrice.Cmp(liqPrice) >= 0)
	if !eligible {
		out.State = StateSkippedNotEligible
		return out
	}
	out.State = StateEligible

	pool, bufferedGas, estimateErr := s.routePool(ctx, trader, marketIDBytes)
	out.State = StateEstimated
	out.Pool = pool

	relayerAcct := s.pools.Get(pool).PickRoundRobin()
	if relayerAcct == nil {
		out.State = StateFailed
		out.Reason = "no_relayer_available"
		s.failq.Enqueue(ctx, c.wallet, marketHex, liqQueueChainID, fmt.Errorf(out.Reason), store.PriorityNoRelayer)
		out.State = StateEnqueued
		return out
	}

	if err := s.chainCli.SimulateLiquidateDirect(ctx, relayerAcct.Address, marketIDBytes, trader); err != nil {
		out.State = StateRejected
		out.Reason = fmt.Sprintf("simulation_reverted: %v", err)
		return out
	}
	out.State = StateSimulated

	gasLimit := bufferedGas + gasHeadroom
	if cap := s.pools.CapFor(pool); gasLimit > cap {
		gasLimit = cap
	}
	if estimateErr != nil {
		gasLimit = 0 // let EstimateGas happen inside SendLiquidateDirect
	}

	label := fmt.Sprintf("liq:%s:%s", marketHex, c.wallet)
	txHash, sendErr := s.sendLiquidationTx(ctx, relayerAcct, pool, marketIDBytes, trader, gasLimit, label)
	if sendErr == nil {
		out.State = StateConfirmed
		out.TxHash = txHash
		return out
	}

	if chain.IsRetryableOnBigPool(sendErr) && pool != relayer.Big && s.pools.Big.Len() > 0 {
		bigRelayer := s.pools.Big.PickRoundRobin()
		if bigRelayer != nil {
			bigGas := s.pools.CapFor(relayer.Big)
			retryTxHash, retryErr := s.sendLiquidationTx(ctx, bigRelayer, relayer.Big, marketIDBytes, trader, bigGas, label)
			if retryErr == nil {
				out.State = StateRerouted
				out.Pool = relayer.Big
				out.Rerouted = true
				out.TxHash = retryTxHash
				return out
			}
			out.State = StateFailed
			out.Reason = retryErr.Error()
			s.failq.Enqueue(ctx, c.wallet, marketHex, liqQueueChainID, retryErr, store.PriorityBigSendFail)
			out.State = StateEnqueued
			return out
		}
	}

	out.State = StateFailed
	out.Reason = sendErr.Error()
	s.failq.Enqueue(ctx, c.wallet, marketHex, liqQueueChainID, sendErr, store.PrioritySendFail)
	out.State = StateEnqueued
	return out
}

// routePool attempts a gas estimate from the preferred pool's current
// relayer and decides whether the candidate belongs in the small or big
// pool. If estimation fails, it defaults to the preferred pool (small
// unless empty) per spec.md §4.G.e.
func (s *Scanner) routePool(ctx context.Context, trader common.Address, marketIDBytes [32]byte) (relayer.Name, int64, error) {
	preferred := relayer.Small
	if s.pools.Small.Len() == 0 {
		preferred = relayer.Big
	}

	from := trader
	if acct := s.pools.Get(preferred).PeekAddress(); acct != (common.Address{}) {
		from = acct
	}

	estimated, err := s.chainCli.EstimateGas(ctx, from, marketIDBytes, trader)
	if err != nil {
		return preferred, 0, err
	}

	buffered := s.pools.BufferedGas(int64(estimated))
	if buffered > s.pools.SmallBlockGas && s.pools.BigBlockGas > 0 {
		return relayer.Big, buffered, nil
	}
	if s.pools.Small.Len() > 0 {
		return relayer.Small, buffered, nil
	}
	return relayer.Big, buffered, nil
}

func (s *Scanner) sendLiquidationTx(ctx context.Context, acct *relayer.Relayer, pool relayer.Name, marketIDBytes [32]byte, trader common.Address, gasLimit int64, label string) (string, error) {
	nonce, err := s.nonces.Allocate(ctx, acct.Address.Hex(), s.chainCli.ChainID(), label)
	if err != nil {
		return "", fmt.Errorf("nonce_allocation_failed: %w", err)
	}

	gl := uint64(0)
	if gasLimit > 0 {
		gl = uint64(gasLimit)
	}

	txHash, err := s.chainCli.SendLiquidateDirect(ctx, acct.PrivateKey(), marketIDBytes, trader, nonce, gl)
	if err != nil {
		return "", err
	}

	s.nonces.MarkBroadcast(ctx, acct.Address.Hex(), s.chainCli.ChainID(), nonce, txHash)

	receiptCtx, cancel := context.WithTimeout(ctx, receiptBudget)
	defer cancel()
	reverted, err := s.chainCli.WaitForReceipt(receiptCtx, txHash)
	if err != nil {
		return txHash, err
	}
	if reverted {
		return txHash, &chain.SendError{Kind: chain.SendErrorReverted, TxHash: txHash}
	}
	return txHash, nil
}

func hexToBytes32(s string) ([32]byte, error) {
	var out [32]byte
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	if len(s) != 64 {
		return out, fmt.Errorf("market hex must be 32 bytes, got %d hex chars", len(s))
	}
	b := common.FromHex("0x" + s)
	if len(b) != 32 {
		return out, fmt.Errorf("market hex decode produced %d bytes", len(b))
	}
	copy(out[:], b)
	return out, nil
}
