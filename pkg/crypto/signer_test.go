package crypto

import (
	"encoding/hex"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	eth_crypto "github.com/ethereum/go-ethereum/crypto"
)

func genKeyHex(t *testing.T) string {
	t.Helper()
	pk, err := eth_crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	return hex.EncodeToString(eth_crypto.FromECDSA(pk))
}

func TestFromPrivateKeyHexDerivesAddress(t *testing.T) {
	hexKey := genKeyHex(t)
	signer, err := FromPrivateKeyHex(hexKey)
	if err != nil {
		t.Fatalf("failed to load key: %v", err)
	}
	if signer.Address() == (common.Address{}) {
		t.Error("expected a non-zero derived address")
	}
}

func TestFromPrivateKeyHexRoundTripsSameAddress(t *testing.T) {
	hexKey := genKeyHex(t)
	signer1, err := FromPrivateKeyHex(hexKey)
	if err != nil {
		t.Fatalf("failed to load key: %v", err)
	}
	signer2, err := FromPrivateKeyHex(hexKey)
	if err != nil {
		t.Fatalf("failed to reload key: %v", err)
	}
	if signer1.Address() != signer2.Address() {
		t.Errorf("address = %s, want %s", signer2.Address().Hex(), signer1.Address().Hex())
	}
}

func TestFromPrivateKeyHexRejectsMalformedKey(t *testing.T) {
	if _, err := FromPrivateKeyHex("not-a-hex-key"); err == nil {
		t.Error("expected an error for a malformed private key")
	}
}

func TestPrivateKeyMatchesDerivedAddress(t *testing.T) {
	hexKey := genKeyHex(t)
	signer, err := FromPrivateKeyHex(hexKey)
	if err != nil {
		t.Fatalf("failed to load key: %v", err)
	}
	derived := eth_crypto.PubkeyToAddress(signer.PrivateKey().PublicKey)
	if derived != signer.Address() {
		t.Errorf("PrivateKey() derives address %s, want %s", derived.Hex(), signer.Address().Hex())
	}
}
