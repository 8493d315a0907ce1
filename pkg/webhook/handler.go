// Package webhook implements the HTTP webhook ingestion path: signature
// verification, tolerant JSON parsing across five provider body shapes, log
// decoding, and per-event dispatch into the market resolver, reconciler,
// and liquidation scanner. Grounded on the teacher's pkg/api/server.go
// request-handling style and the meme-perp-dex indexer's event-dispatch
// loop (internal/indexer/indexer.go).
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/liqhook/pkg/chain"
	"github.com/uhyunpark/liqhook/pkg/events"
	"github.com/uhyunpark/liqhook/pkg/fixedpoint"
	"github.com/uhyunpark/liqhook/pkg/idempotency"
	"github.com/uhyunpark/liqhook/pkg/liquidation"
	"github.com/uhyunpark/liqhook/pkg/market"
	"github.com/uhyunpark/liqhook/pkg/reconcile"
	"github.com/uhyunpark/liqhook/pkg/store"
	"github.com/uhyunpark/liqhook/pkg/util"
)

// SignatureHeader is the header name the provider signs requests with.
const SignatureHeader = "x-alchemy-signature"

// LogResult is one entry in the response envelope's results[] list.
type LogResult struct {
	Status string `json:"status"` // "ok" or "skipped"
	Reason string `json:"reason,omitempty"`
	Kind   string `json:"kind,omitempty"`
}

// Response is the webhook POST response envelope.
type Response struct {
	OK        bool        `json:"ok"`
	Processed int         `json:"processed"`
	Results   []LogResult `json:"results"`
	TraceID   string      `json:"traceId"`
}

// Handler processes webhook deliveries.
type Handler struct {
	secret   string
	resolver *market.Resolver
	recon    *reconcile.Reconciler
	scanner  *liquidation.Scanner
	chainCli chain.Client
	dedupe   *idempotency.Cache
	st       store.Store
	log      *zap.Logger
}

// New constructs a Handler.
func New(secret string, resolver *market.Resolver, recon *reconcile.Reconciler, scanner *liquidation.Scanner, chainCli chain.Client, dedupe *idempotency.Cache, st store.Store, log *zap.Logger) *Handler {
	return &Handler{secret: secret, resolver: resolver, recon: recon, scanner: scanner, chainCli: chainCli, dedupe: dedupe, st: st, log: log}
}

// VerifySignature checks an HMAC-SHA256 hex signature over the raw body
// using a constant-time comparison. Per REDESIGN FLAGS, crypto/subtle is
// the sanctioned stdlib primitive for this comparison.
func (h *Handler) VerifySignature(body []byte, sigHeader string) bool {
	if h.secret == "" || sigHeader == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	given, err := hex.DecodeString(strings.TrimSpace(sigHeader))
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(expected, given) == 1
}

// rawLogEnvelope is the tolerant parse target across all five body shapes
// named in spec.md §6, tried in precedence order.
type rawLogEnvelope struct {
	Logs  []json.RawMessage `json:"logs"`
	Event *struct {
		Logs []json.RawMessage `json:"logs"`
		Data *struct {
			Logs  []json.RawMessage `json:"logs"`
			Block *struct {
				Logs []json.RawMessage `json:"logs"`
			} `json:"block"`
		} `json:"data"`
		Activity []struct {
			Hash     string `json:"hash"`
			BlockNum string `json:"blockNum"`
			Log      struct {
				Address string   `json:"address"`
				Topics  []string `json:"topics"`
				Data    string   `json:"data"`
			} `json:"log"`
		} `json:"activity"`
	} `json:"event"`
}

type logFields struct {
	Address         string `json:"address"`
	ContractAddress string `json:"contractAddress"`
	ToAddress       string `json:"toAddress"`
	FromAddress     string `json:"fromAddress"`
	Raw             *struct {
		Address string `json:"address"`
	} `json:"raw"`
	EventAddress string `json:"event_address"`
	Account      any    `json:"account"`
	Transaction  *struct {
		To   any `json:"to"`
		From any `json:"from"`
	} `json:"transaction"`
	Topics           []string `json:"topics"`
	Data             string   `json:"data"`
	TransactionHash  string   `json:"transactionHash"`
	LogIndex         string   `json:"logIndex"`
}

// extractLogs pulls the raw per-log JSON objects out of whichever of the
// five body shapes is present, in precedence order.
func extractLogs(body []byte) []json.RawMessage {
	var env rawLogEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil
	}
	if len(env.Logs) > 0 {
		return env.Logs
	}
	if env.Event == nil {
		return nil
	}
	if len(env.Event.Logs) > 0 {
		return env.Event.Logs
	}
	if env.Event.Data != nil {
		if len(env.Event.Data.Logs) > 0 {
			return env.Event.Data.Logs
		}
		if env.Event.Data.Block != nil && len(env.Event.Data.Block.Logs) > 0 {
			return env.Event.Data.Block.Logs
		}
	}
	if len(env.Event.Activity) > 0 {
		out := make([]json.RawMessage, 0, len(env.Event.Activity))
		for _, a := range env.Event.Activity {
			shaped, err := json.Marshal(map[string]any{
				"address": a.Log.Address,
				"topics":  a.Log.Topics,
				"data":    a.Log.Data,
			})
			if err != nil {
				continue
			}
			out = append(out, shaped)
		}
		return out
	}
	return nil
}

// parseLogIndex accepts either a decimal ("3") or 0x-prefixed hex ("0x1a")
// log index string, as providers vary in which they send. Malformed or
// empty input parses to 0, matching the dedupe cache's tolerant posture.
func parseLogIndex(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		n, err := strconv.ParseInt(s[2:], 16, 64)
		if err != nil {
			return 0
		}
		return int(n)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func addressOf(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		if a, ok := t["address"].(string); ok {
			return a
		}
	}
	return ""
}

// parseOneLog extracts an events.RawLog, the candidate source addresses,
// and the (txHash, logIndex) dedupe key from a single raw JSON log entry.
func parseOneLog(raw json.RawMessage) (events.RawLog, []string, string, string) {
	var f logFields
	if err := json.Unmarshal(raw, &f); err != nil {
		return events.RawLog{}, nil, "", ""
	}

	topics := make([]common.Hash, 0, len(f.Topics))
	for _, t := range f.Topics {
		topics = append(topics, common.HexToHash(t))
	}

	candidates := make([]string, 0, 8)
	candidates = append(candidates, f.Address, f.ContractAddress, f.ToAddress, f.FromAddress, f.EventAddress)
	if f.Raw != nil {
		candidates = append(candidates, f.Raw.Address)
	}
	candidates = append(candidates, addressOf(f.Account))
	if f.Transaction != nil {
		candidates = append(candidates, addressOf(f.Transaction.To), addressOf(f.Transaction.From))
	}

	return events.RawLog{Topics: topics, Data: common.FromHex(f.Data)}, events.CandidateAddresses(candidates...), f.TransactionHash, f.LogIndex
}

// Process handles one webhook POST: verifies the signature, parses the
// body tolerantly, decodes and dispatches each log, and returns the
// response envelope. The bool return reports whether the signature check
// passed (the caller maps false to 401; the envelope is still populated
// with a trace id in that case).
func (h *Handler) Process(ctx context.Context, body []byte, sigHeader string) (Response, bool) {
	traceID := util.NewTraceID()

	if !h.VerifySignature(body, sigHeader) {
		return Response{OK: false, TraceID: traceID}, false
	}

	rawLogs := extractLogs(body)
	results := make([]LogResult, 0, len(rawLogs))

	for _, raw := range rawLogs {
		rawLog, candidates, txHash, logIndex := parseOneLog(raw)

		logIdx := parseLogIndex(logIndex)
		if h.dedupe != nil && h.dedupe.Seen(txHash, logIdx) {
			results = append(results, LogResult{Status: "skipped", Reason: "duplicate_delivery"})
			continue
		}

		result := h.dispatch(ctx, rawLog, candidates)
		if h.dedupe != nil && result.Status == "ok" {
			if err := h.dedupe.MarkApplied(txHash, logIdx); err != nil && h.log != nil {
				h.log.Warn("dedupe_mark_failed", zap.Error(err))
			}
		}
		results = append(results, result)
	}

	return Response{OK: true, Processed: len(results), Results: results, TraceID: traceID}, true
}

func (h *Handler) dispatch(ctx context.Context, rawLog events.RawLog, candidates []string) LogResult {
	decoded := events.Decode(rawLog)

	switch decoded.Kind {
	case events.KindTradeRecorded:
		return h.handleTradeRecorded(ctx, decoded, candidates)
	case events.KindPriceUpdated:
		return h.handlePriceUpdated(ctx, decoded, candidates)
	case events.KindOrderLifecycle:
		return h.handleOrderLifecycle(ctx, candidates)
	case events.KindLiquidationCompleted:
		return h.handleLiquidationCompleted(ctx, decoded, candidates)
	default:
		return LogResult{Status: "skipped", Reason: "unrecognized_topic"}
	}
}

func (h *Handler) resolveFromCandidates(ctx context.Context, candidates []string) (*market.Resolved, string) {
	for _, addr := range candidates {
		resolved, err := h.resolver.ResolveByAddress(ctx, addr)
		if err != nil {
			if h.log != nil {
				h.log.Warn("market_resolve_failed", zap.String("address", util.RedactAddress(addr)), zap.Error(err))
			}
			continue
		}
		if resolved != nil {
			return resolved, ""
		}
	}
	return nil, "market_not_found"
}

func (h *Handler) handleTradeRecorded(ctx context.Context, decoded events.Decoded, candidates []string) LogResult {
	tr := decoded.TradeRecorded
	resolved, reason := h.resolveFromCandidates(ctx, candidates)
	if resolved == nil {
		return LogResult{Status: "skipped", Reason: reason, Kind: "TradeRecorded"}
	}

	amount := fixedpoint.FormatUnits(tr.Amount, fixedpoint.AmountDecimals)
	price := fixedpoint.FormatUnits(tr.Price, fixedpoint.PriceDecimals)
	var liqPriceStr *string
	if tr.LiquidationPrice != nil && tr.LiquidationPrice.Sign() != 0 {
		s := fixedpoint.FormatUnits(tr.LiquidationPrice, fixedpoint.PriceDecimals)
		liqPriceStr = &s
	}

	buyerReq := store.NetUserTradeRequest{
		MarketID: resolved.ID, Wallet: strings.ToLower(tr.Buyer.Hex()),
		Delta: "+" + amount, Price: price, LiquidationPrice: liqPriceStr,
		TradeTimestamp: tr.Timestamp, OrderBook: resolved.Address,
	}
	sellerReq := store.NetUserTradeRequest{
		MarketID: resolved.ID, Wallet: strings.ToLower(tr.Seller.Hex()),
		Delta: "-" + amount, Price: price, LiquidationPrice: liqPriceStr,
		TradeTimestamp: tr.Timestamp, OrderBook: resolved.Address,
	}

	var errs []string
	if err := h.st.NetUserTrade(ctx, buyerReq); err != nil {
		errs = append(errs, fmt.Sprintf("buyer: %v", err))
	}
	if err := h.st.NetUserTrade(ctx, sellerReq); err != nil {
		errs = append(errs, fmt.Sprintf("seller: %v", err))
	}

	marketIDBytes, hexErr := hexToBytes32(resolved.Hex)
	for _, wallet := range []string{buyerReq.Wallet, sellerReq.Wallet} {
		dbNet, err := h.recon.DBNetPosition(ctx, resolved.ID, wallet)
		if err != nil {
			continue
		}
		if hexErr != nil {
			if h.log != nil {
				h.log.Warn("post_trade_reconcile_failed", zap.String("wallet", util.RedactAddress(wallet)), zap.Error(hexErr))
			}
			continue
		}
		summary, err := h.chainCli.GetPositionSummary(ctx, marketIDBytes, common.HexToAddress(wallet))
		if err != nil {
			if h.log != nil {
				h.log.Warn("post_trade_position_read_failed", zap.String("wallet", util.RedactAddress(wallet)), zap.Error(err))
			}
			continue
		}
		if _, err := h.recon.Reconcile(ctx, resolved.ID, resolved.Hex, wallet, summary.Size, dbNet); err != nil && h.log != nil {
			h.log.Warn("post_trade_reconcile_failed", zap.String("wallet", util.RedactAddress(wallet)), zap.Error(err))
		}
	}

	if len(errs) > 0 {
		return LogResult{Status: "skipped", Reason: strings.Join(errs, "; "), Kind: "TradeRecorded"}
	}
	return LogResult{Status: "ok", Kind: "TradeRecorded"}
}

// hexToBytes32 parses a canonical 32-byte market hex string, mirroring
// pkg/liquidation's own conversion at the chain-client boundary.
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

func (h *Handler) handlePriceUpdated(ctx context.Context, decoded events.Decoded, candidates []string) LogResult {
	resolved, reason := h.resolveFromCandidates(ctx, candidates)
	if resolved == nil {
		return LogResult{Status: "skipped", Reason: reason, Kind: "PriceUpdated"}
	}
	_, err := h.scanner.ScanAndLiquidate(ctx, resolved.ID, resolved.Hex, decoded.PriceUpdated.CurrentMarkPrice)
	if err != nil {
		return LogResult{Status: "skipped", Reason: err.Error(), Kind: "PriceUpdated"}
	}
	return LogResult{Status: "ok", Kind: "PriceUpdated"}
}

func (h *Handler) handleOrderLifecycle(ctx context.Context, candidates []string) LogResult {
	resolved, reason := h.resolveFromCandidates(ctx, candidates)
	if resolved == nil {
		return LogResult{Status: "skipped", Reason: reason, Kind: "OrderLifecycle"}
	}
	mark, err := h.chainCli.CalculateMarkPrice(ctx, common.HexToAddress(resolved.Address))
	if err != nil {
		return LogResult{Status: "skipped", Reason: err.Error(), Kind: "OrderLifecycle"}
	}
	if _, err := h.scanner.ScanAndLiquidate(ctx, resolved.ID, resolved.Hex, mark); err != nil {
		return LogResult{Status: "skipped", Reason: err.Error(), Kind: "OrderLifecycle"}
	}
	return LogResult{Status: "ok", Kind: "OrderLifecycle"}
}

func (h *Handler) handleLiquidationCompleted(ctx context.Context, decoded events.Decoded, candidates []string) LogResult {
	lc := decoded.LiquidationCompleted
	resolved, reason := h.resolveFromCandidates(ctx, candidates)
	if resolved == nil {
		return LogResult{Status: "skipped", Reason: reason, Kind: "LiquidationCompleted"}
	}

	wallet := strings.ToLower(lc.Trader.Hex())
	dbNet, err := h.recon.DBNetPosition(ctx, resolved.ID, wallet)
	if err != nil {
		return LogResult{Status: "skipped", Reason: err.Error(), Kind: "LiquidationCompleted"}
	}
	if _, err := h.recon.Reconcile(ctx, resolved.ID, resolved.Hex, wallet, lc.RemainingSize, dbNet); err != nil {
		return LogResult{Status: "skipped", Reason: err.Error(), Kind: "LiquidationCompleted"}
	}
	return LogResult{Status: "ok", Kind: "LiquidationCompleted"}
}
