package relayer

import (
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

func genKeyHex(t *testing.T) string {
	t.Helper()
	pk, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	return hex.EncodeToString(crypto.FromECDSA(pk))
}

func TestLoadDropsMalformedKeysAndDedupesAcrossPools(t *testing.T) {
	shared := genKeyHex(t)
	smallOnly := genKeyHex(t)

	cfg := LoadConfig{
		SmallKeysJSON: fmt.Sprintf(`["%s", "%s", "not-a-hex-key"]`, shared, smallOnly),
		BigKeysJSON:   fmt.Sprintf(`["%s"]`, shared),
	}
	pools, err := Load(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if pools.Small.Len() != 1 {
		t.Errorf("expected shared key removed from small pool, small pool len=%d", pools.Small.Len())
	}
	if pools.Big.Len() != 1 {
		t.Errorf("expected 1 big relayer, got %d", pools.Big.Len())
	}
}

func TestLoadAppliesDefaultsAndClampsBufferBps(t *testing.T) {
	pools, err := Load(LoadConfig{GasBufferBps: 999999})
	if err != nil {
		t.Fatal(err)
	}
	if pools.GasBufferBps != MaxGasBufferBps {
		t.Errorf("expected clamp to %d, got %d", MaxGasBufferBps, pools.GasBufferBps)
	}
	if pools.SmallBlockGas != DefaultSmallBlockGas || pools.BigBlockGas != DefaultBigBlockGas {
		t.Errorf("expected defaults applied")
	}
}

func TestPickRoundRobinWrapsAround(t *testing.T) {
	k1, k2 := genKeyHex(t), genKeyHex(t)
	pools, err := Load(LoadConfig{SmallKeysJSON: fmt.Sprintf(`["%s", "%s"]`, k1, k2)})
	if err != nil {
		t.Fatal(err)
	}
	first := pools.Small.PickRoundRobin()
	second := pools.Small.PickRoundRobin()
	third := pools.Small.PickRoundRobin()
	if first == nil || second == nil || third == nil {
		t.Fatal("expected non-nil relayers")
	}
	if first.Address != third.Address {
		t.Errorf("expected round-robin wrap to return to first relayer")
	}
	if first.Address == second.Address {
		t.Errorf("expected distinct relayers on first two picks")
	}
}

func TestPickRoundRobinEmptyPoolReturnsNil(t *testing.T) {
	pools, err := Load(LoadConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if r := pools.Small.PickRoundRobin(); r != nil {
		t.Errorf("expected nil from empty pool, got %v", r)
	}
}

func TestCapForSubtractsSafetyReserve(t *testing.T) {
	pools, err := Load(LoadConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if got := pools.CapFor(Small); got != DefaultSmallBlockGas-SmallSafetyReserve {
		t.Errorf("got %d", got)
	}
	if got := pools.CapFor(Big); got != DefaultBigBlockGas-BigSafetyReserve {
		t.Errorf("got %d", got)
	}
}

func TestBufferedGas(t *testing.T) {
	pools, err := Load(LoadConfig{GasBufferBps: 13_000})
	if err != nil {
		t.Fatal(err)
	}
	if got := pools.BufferedGas(1_000_000); got != 1_300_000 {
		t.Errorf("got %d", got)
	}
}
