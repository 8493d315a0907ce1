// Package events decodes raw log tuples delivered by the webhook provider
// into the four event kinds the liquidation engine understands, and
// recovers the emitting contract address from whichever field shape the
// provider happened to use. Grounded on the teacher's ABI event handling
// style (pkg/crypto/eip712.go) and the meme-perp-dex indexer reference
// file's manual uint256/int256 slicing of log.Data.
package events

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Kind identifies one of the four recognized event types.
type Kind int

const (
	KindUnknown Kind = iota
	KindTradeRecorded
	KindPriceUpdated
	KindOrderLifecycle // OrderPlaced / OrderCancelled / OrderModified — only triggers a re-scan
	KindLiquidationCompleted
)

// Topic hashes (keccak256 of the event signature). These identify which
// variant a RawLog decodes to.
var (
	topicTradeRecorded = crypto.Keccak256Hash([]byte(
		"TradeRecorded(bytes32,address,address,uint256,uint256,uint256,uint256,uint256,uint256)"))
	topicPriceUpdated = crypto.Keccak256Hash([]byte(
		"PriceUpdated(uint256,uint256)"))
	topicOrderPlaced = crypto.Keccak256Hash([]byte(
		"OrderPlaced(uint256,address,uint256,uint256,bool,bool)"))
	topicOrderCancelled = crypto.Keccak256Hash([]byte(
		"OrderCancelled(uint256,address)"))
	topicOrderModified = crypto.Keccak256Hash([]byte(
		"OrderModified(uint256,uint256,address,uint256,uint256)"))
	topicLiquidationCompleted = crypto.Keccak256Hash([]byte(
		"LiquidationCompleted(address,uint256,string,int256,int256)"))
)

// RawLog is the provider-agnostic input shape: a decoded topic list plus
// the ABI-encoded non-indexed data, and whatever address field the
// provider attached (looked up separately via CandidateAddresses).
type RawLog struct {
	Topics []common.Hash
	Data   []byte
}

// TradeRecorded carries the fields the scanner and reconciler need from a
// TradeRecorded event.
type TradeRecorded struct {
	MarketID          [32]byte
	Buyer             common.Address
	Seller            common.Address
	Price             *big.Int // 6-dec
	Amount            *big.Int // 18-dec, unsigned magnitude
	Timestamp         int64
	LiquidationPrice  *big.Int // 6-dec
}

// PriceUpdated carries the new mark price.
type PriceUpdated struct {
	CurrentMarkPrice *big.Int // 6-dec
}

// LiquidationCompleted carries the trader's authoritative remaining size.
type LiquidationCompleted struct {
	Trader        common.Address
	RemainingSize *big.Int // 18-dec signed
}

// Decoded is the tagged result of decoding one RawLog.
type Decoded struct {
	Kind                  Kind
	TradeRecorded         *TradeRecorded
	PriceUpdated          *PriceUpdated
	LiquidationCompleted  *LiquidationCompleted
}

// Decode classifies a raw log by its first topic and extracts the payload
// fields used downstream. A log whose topic does not match one of the four
// recognized events is not an error: Decode returns KindUnknown and the
// caller skips it silently.
func Decode(log RawLog) Decoded {
	if len(log.Topics) == 0 {
		return Decoded{Kind: KindUnknown}
	}

	switch log.Topics[0] {
	case topicTradeRecorded:
		return decodeTradeRecorded(log)
	case topicPriceUpdated:
		return decodePriceUpdated(log)
	case topicOrderPlaced, topicOrderCancelled, topicOrderModified:
		return Decoded{Kind: KindOrderLifecycle}
	case topicLiquidationCompleted:
		return decodeLiquidationCompleted(log)
	default:
		return Decoded{Kind: KindUnknown}
	}
}

// word reads the 32-byte word at the given index from data, or a zero word
// if data is too short (tolerant of malformed upstream payloads).
func word(data []byte, idx int) []byte {
	start := idx * 32
	if start+32 > len(data) {
		return make([]byte, 32)
	}
	return data[start : start+32]
}

func uint256At(data []byte, idx int) *big.Int {
	return new(big.Int).SetBytes(word(data, idx))
}

func int256At(data []byte, idx int) *big.Int {
	w := word(data, idx)
	v := new(big.Int).SetBytes(w)
	if len(w) > 0 && w[0]&0x80 != 0 {
		v.Sub(v, new(big.Int).Lsh(big.NewInt(1), 256))
	}
	return v
}

func decodeTradeRecorded(log RawLog) Decoded {
	if len(log.Topics) < 4 {
		return Decoded{Kind: KindUnknown}
	}
	var marketID [32]byte
	copy(marketID[:], log.Topics[1].Bytes())
	buyer := common.BytesToAddress(log.Topics[2].Bytes())
	seller := common.BytesToAddress(log.Topics[3].Bytes())

	// Non-indexed: price, amount, buyerFee, sellerFee, timestamp, liquidationPrice.
	price := uint256At(log.Data, 0)
	amount := uint256At(log.Data, 1)
	timestamp := uint256At(log.Data, 4)
	liqPrice := uint256At(log.Data, 5)

	return Decoded{
		Kind: KindTradeRecorded,
		TradeRecorded: &TradeRecorded{
			MarketID:         marketID,
			Buyer:            buyer,
			Seller:           seller,
			Price:            price,
			Amount:           amount,
			Timestamp:        timestamp.Int64(),
			LiquidationPrice: liqPrice,
		},
	}
}

func decodePriceUpdated(log RawLog) Decoded {
	// Non-indexed: lastTradePrice, currentMarkPrice.
	mark := uint256At(log.Data, 1)
	return Decoded{
		Kind:         KindPriceUpdated,
		PriceUpdated: &PriceUpdated{CurrentMarkPrice: mark},
	}
}

func decodeLiquidationCompleted(log RawLog) Decoded {
	if len(log.Topics) < 2 {
		return Decoded{Kind: KindUnknown}
	}
	trader := common.BytesToAddress(log.Topics[1].Bytes())
	// Non-indexed head words: liquidationsTriggered, offset-to-method(string),
	// startSize, remainingSize — the dynamic `method` tail is appended after
	// the head and never shifts these fixed-size head slots.
	remaining := int256At(log.Data, 3)
	return Decoded{
		Kind: KindLiquidationCompleted,
		LiquidationCompleted: &LiquidationCompleted{
			Trader:        trader,
			RemainingSize: remaining,
		},
	}
}

// CandidateAddresses recovers the emitting contract address from any of the
// field shapes the webhook provider might use, returning an ordered,
// de-duplicated, lowercase list. The log's own decoded address (when known)
// should be prepended by the caller before any provider-supplied hints.
func CandidateAddresses(fields ...string) []string {
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		norm := normalizeAddress(f)
		if norm == "" {
			continue
		}
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	}
	return out
}

func normalizeAddress(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	if !common.IsHexAddress(s) {
		return ""
	}
	return strings.ToLower(common.HexToAddress(s).Hex())
}
