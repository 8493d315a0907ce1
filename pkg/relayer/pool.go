// Package relayer manages the signer pools the liquidation engine sends
// transactions through: a "small" pool for ordinary liquidations and a
// "big" pool reserved for gas-heavy candidates, each round-robin routed.
// Grounded on the teacher's key-loading style in pkg/crypto/signer.go and
// pkg/app/core/account/keys.go, generalized from single-key signing to a
// pair of named key pools.
package relayer

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	liqcrypto "github.com/uhyunpark/liqhook/pkg/crypto"
)

// Name identifies one of the two pools.
type Name string

const (
	Small Name = "small"
	Big   Name = "big"
)

// Default gas caps and buffer, per spec.md §6.
const (
	DefaultSmallBlockGas = 2_000_000
	DefaultBigBlockGas   = 30_000_000
	DefaultGasBufferBps  = 13_000
	MinGasBufferBps      = 10_000
	MaxGasBufferBps      = 30_000

	SmallSafetyReserve = 120_000
	BigSafetyReserve   = 300_000
)

// Relayer is one loaded signing key, wrapping the teacher's key-management
// Signer type (pkg/crypto/signer.go) rather than a bare *ecdsa.PrivateKey.
type Relayer struct {
	Address common.Address
	Signer  *liqcrypto.Signer
}

// PrivateKey returns the relayer's raw ECDSA key, for chain.Client.SendLiquidateDirect.
func (r *Relayer) PrivateKey() *ecdsa.PrivateKey {
	return r.Signer.PrivateKey()
}

// Pool is a fixed, load-time-constructed set of relayers with round-robin
// selection. Pools are never mutated after Load returns.
type Pool struct {
	mu        sync.Mutex
	relayers  []*Relayer
	nextIndex int
}

// PickRoundRobin returns the next relayer in insertion order, wrapping
// around. Returns nil if the pool is empty.
func (p *Pool) PickRoundRobin() *Relayer {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.relayers) == 0 {
		return nil
	}
	r := p.relayers[p.nextIndex%len(p.relayers)]
	p.nextIndex++
	return r
}

// PeekAddress returns the address of the relayer that the next
// PickRoundRobin call would return, without advancing the cursor. Returns
// the zero address if the pool is empty. Used for gas estimation, where a
// call needs a plausible `from` account but must not consume a pool slot.
func (p *Pool) PeekAddress() common.Address {
	if p == nil {
		return common.Address{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.relayers) == 0 {
		return common.Address{}
	}
	return p.relayers[p.nextIndex%len(p.relayers)].Address
}

// Len reports how many relayers are loaded in the pool.
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.relayers)
}

// Pools holds both named pools plus the immutable gas parameters computed
// at load time.
type Pools struct {
	Small *Pool
	Big   *Pool

	SmallBlockGas int64
	BigBlockGas   int64
	GasBufferBps  int64
}

// Get returns the requested named pool.
func (p *Pools) Get(name Name) *Pool {
	if name == Big {
		return p.Big
	}
	return p.Small
}

// CapFor returns the block gas cap minus its safety reserve for a pool.
func (p *Pools) CapFor(name Name) int64 {
	if name == Big {
		return p.BigBlockGas - BigSafetyReserve
	}
	return p.SmallBlockGas - SmallSafetyReserve
}

// LoadConfig is the raw configuration needed to construct Pools.
type LoadConfig struct {
	SmallKeysJSON   string // JSON array of hex private keys
	BigKeysJSON     string // JSON array of hex private keys
	LegacyKey       string // single legacy key, small pool only
	SmallBlockGas   int64  // 0 => DefaultSmallBlockGas
	BigBlockGas     int64  // 0 => DefaultBigBlockGas
	GasBufferBps    int64  // 0 => DefaultGasBufferBps
}

// Load parses the configured key sets into two pools. Malformed keys (not
// 32-byte hex) are silently dropped. A key appearing in both the small and
// big sets is removed from the small pool only (the exclusion is
// one-directional, per spec.md §4.D).
func Load(cfg LoadConfig) (*Pools, error) {
	smallKeys, err := parseKeySet(cfg.SmallKeysJSON)
	if err != nil {
		return nil, fmt.Errorf("parsing small relayer keys: %w", err)
	}
	bigKeys, err := parseKeySet(cfg.BigKeysJSON)
	if err != nil {
		return nil, fmt.Errorf("parsing big relayer keys: %w", err)
	}
	if cfg.LegacyKey != "" {
		if r := parseOneKey(cfg.LegacyKey); r != nil {
			smallKeys = append(smallKeys, r)
		}
	}

	bigAddrs := make(map[common.Address]struct{}, len(bigKeys))
	for _, r := range bigKeys {
		bigAddrs[r.Address] = struct{}{}
	}
	filteredSmall := smallKeys[:0:0]
	for _, r := range smallKeys {
		if _, inBig := bigAddrs[r.Address]; inBig {
			continue
		}
		filteredSmall = append(filteredSmall, r)
	}

	smallGas := cfg.SmallBlockGas
	if smallGas == 0 {
		smallGas = DefaultSmallBlockGas
	}
	bigGas := cfg.BigBlockGas
	if bigGas == 0 {
		bigGas = DefaultBigBlockGas
	}
	bufferBps := cfg.GasBufferBps
	if bufferBps == 0 {
		bufferBps = DefaultGasBufferBps
	}
	if bufferBps < MinGasBufferBps {
		bufferBps = MinGasBufferBps
	}
	if bufferBps > MaxGasBufferBps {
		bufferBps = MaxGasBufferBps
	}

	return &Pools{
		Small:         &Pool{relayers: filteredSmall},
		Big:           &Pool{relayers: bigKeys},
		SmallBlockGas: smallGas,
		BigBlockGas:   bigGas,
		GasBufferBps:  bufferBps,
	}, nil
}

func parseKeySet(raw string) ([]*Relayer, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var hexKeys []string
	if err := json.Unmarshal([]byte(raw), &hexKeys); err != nil {
		return nil, fmt.Errorf("invalid key set JSON: %w", err)
	}
	out := make([]*Relayer, 0, len(hexKeys))
	for _, k := range hexKeys {
		if r := parseOneKey(k); r != nil {
			out = append(out, r)
		}
	}
	return out, nil
}

func parseOneKey(hexKey string) *Relayer {
	hexKey = strings.TrimSpace(strings.TrimPrefix(hexKey, "0x"))
	if len(hexKey) != 64 {
		return nil
	}
	signer, err := liqcrypto.FromPrivateKeyHex(hexKey)
	if err != nil {
		return nil
	}
	return &Relayer{
		Address: signer.Address(),
		Signer:  signer,
	}
}

// BufferedGas applies GasBufferBps to an estimated gas amount.
func (p *Pools) BufferedGas(estimated int64) int64 {
	return estimated * p.GasBufferBps / 10_000
}
