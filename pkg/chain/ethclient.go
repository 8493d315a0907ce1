package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/uhyunpark/liqhook/pkg/util"
)

// Function selectors, computed as the first 4 bytes of
// keccak256("<signature>"). Manually sliced rather than built through
// accounts/abi/bind's generated bindings, matching the rest of this module's
// hand-rolled ABI word encoding (pkg/events/codec.go).
var (
	selGetLiquidationPrice = selector("getLiquidationPrice(address,bytes32)")
	selGetPositionSummary  = selector("getPositionSummary(address,bytes32)")
	selLiquidateDirect     = selector("liquidateDirect(bytes32,address)")
	selCalculateMarkPrice  = selector("calculateMarkPrice()")
)

func selector(sig string) []byte {
	return crypto.Keccak256([]byte(sig))[:4]
}

func leftPad32(b []byte) []byte {
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

func encodeAddress(a common.Address) []byte { return leftPad32(a.Bytes()) }

func encodeUint256(v *big.Int) []byte { return leftPad32(v.Bytes()) }

// EthClient implements Client over go-ethereum's ethclient, grounded on the
// DanDo385 geth-05-tx-nonces/geth-06-eip1559 dial→nonce→gas→sign→send flow.
type EthClient struct {
	rpc         *ethclient.Client
	coreVault   common.Address
	chainID     int64
	receiptPoll time.Duration
	clock       util.Clock
}

// NewEthClient dials the configured RPC endpoint.
func NewEthClient(ctx context.Context, rpcURL string, coreVault common.Address, chainID int64) (*EthClient, error) {
	c, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dialing chain rpc: %w", err)
	}
	return &EthClient{
		rpc:         c,
		coreVault:   coreVault,
		chainID:     chainID,
		receiptPoll: 500 * time.Millisecond,
		clock:       util.RealClock{},
	}, nil
}

func (c *EthClient) ChainID() int64 { return c.chainID }

func (c *EthClient) Close() { c.rpc.Close() }

func (c *EthClient) callContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	msg := ethereum.CallMsg{To: &to, Data: data}
	return c.rpc.CallContract(ctx, msg, nil)
}

func (c *EthClient) GetLiquidationPrice(ctx context.Context, marketID [32]byte, user common.Address) (*big.Int, bool, error) {
	data := append(append([]byte{}, selGetLiquidationPrice...), encodeAddress(user)...)
	data = append(data, marketID[:]...)
	out, err := c.callContract(ctx, c.coreVault, data)
	if err != nil {
		return nil, false, fmt.Errorf("getLiquidationPrice: %w", err)
	}
	if len(out) < 64 {
		return nil, false, fmt.Errorf("getLiquidationPrice: short return data (%d bytes)", len(out))
	}
	if new(big.Int).SetBytes(out[32:64]).Sign() == 0 {
		return nil, false, nil
	}
	return new(big.Int).SetBytes(out[0:32]), true, nil
}

func (c *EthClient) GetPositionSummary(ctx context.Context, marketID [32]byte, user common.Address) (PositionSummary, error) {
	data := append(append([]byte{}, selGetPositionSummary...), encodeAddress(user)...)
	data = append(data, marketID[:]...)
	out, err := c.callContract(ctx, c.coreVault, data)
	if err != nil {
		return PositionSummary{}, fmt.Errorf("getPositionSummary: %w", err)
	}
	if len(out) < 96 {
		return PositionSummary{}, fmt.Errorf("getPositionSummary: short return data (%d bytes)", len(out))
	}
	size := signedFromWord(out[0:32])
	entryPrice := new(big.Int).SetBytes(out[32:64])
	marginLocked := new(big.Int).SetBytes(out[64:96])
	return PositionSummary{
		Size:         size,
		EntryPrice:   entryPrice,
		MarginLocked: marginLocked,
		HasPosition:  size.Sign() != 0,
	}, nil
}

func signedFromWord(w []byte) *big.Int {
	v := new(big.Int).SetBytes(w)
	if len(w) > 0 && w[0]&0x80 != 0 {
		v.Sub(v, new(big.Int).Lsh(big.NewInt(1), 256))
	}
	return v
}

func (c *EthClient) CalculateMarkPrice(ctx context.Context, orderBook common.Address) (*big.Int, error) {
	out, err := c.callContract(ctx, orderBook, selCalculateMarkPrice)
	if err != nil {
		return nil, fmt.Errorf("calculateMarkPrice: %w", err)
	}
	if len(out) < 32 {
		return nil, fmt.Errorf("calculateMarkPrice: short return data (%d bytes)", len(out))
	}
	return new(big.Int).SetBytes(out[0:32]), nil
}

func (c *EthClient) liquidateDirectCalldata(marketID [32]byte, trader common.Address) []byte {
	data := append(append([]byte{}, selLiquidateDirect...), marketID[:]...)
	return append(data, encodeAddress(trader)...)
}

func (c *EthClient) EstimateGas(ctx context.Context, from common.Address, marketID [32]byte, trader common.Address) (uint64, error) {
	data := c.liquidateDirectCalldata(marketID, trader)
	msg := ethereum.CallMsg{From: from, To: &c.coreVault, Data: data}
	return c.rpc.EstimateGas(ctx, msg)
}

func (c *EthClient) SimulateLiquidateDirect(ctx context.Context, from common.Address, marketID [32]byte, trader common.Address) error {
	data := c.liquidateDirectCalldata(marketID, trader)
	msg := ethereum.CallMsg{From: from, To: &c.coreVault, Data: data}
	_, err := c.rpc.CallContract(ctx, msg, nil)
	return err
}

func (c *EthClient) PendingNonceAt(ctx context.Context, address string) (uint64, error) {
	return c.rpc.PendingNonceAt(ctx, common.HexToAddress(address))
}

func (c *EthClient) SendLiquidateDirect(ctx context.Context, key *ecdsa.PrivateKey, marketID [32]byte, trader common.Address, nonce uint64, gasLimit uint64) (string, error) {
	data := c.liquidateDirectCalldata(marketID, trader)

	gasPrice, err := c.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return "", &SendError{Kind: SendErrorOther, Cause: fmt.Errorf("suggest gas price: %w", err)}
	}
	if gasLimit == 0 {
		estimated, err := c.rpc.EstimateGas(ctx, ethereum.CallMsg{
			From: crypto.PubkeyToAddress(key.PublicKey), To: &c.coreVault, Data: data,
		})
		if err != nil {
			return "", classifySendFailure("", err)
		}
		gasLimit = estimated
	}

	tx := types.NewTransaction(nonce, c.coreVault, big.NewInt(0), gasLimit, gasPrice, data)
	signer := types.NewEIP155Signer(big.NewInt(c.chainID))
	signed, err := types.SignTx(tx, signer, key)
	if err != nil {
		return "", &SendError{Kind: SendErrorOther, Cause: fmt.Errorf("sign tx: %w", err)}
	}

	if err := c.rpc.SendTransaction(ctx, signed); err != nil {
		return "", classifySendFailure(signed.Hash().Hex(), err)
	}
	return signed.Hash().Hex(), nil
}

func classifySendFailure(txHash string, err error) error {
	if isBlockGasLimitErr(err) {
		return &SendError{Kind: SendErrorBlockGasLimit, TxHash: txHash, Cause: err}
	}
	return &SendError{Kind: SendErrorOther, TxHash: txHash, Cause: err}
}

// isBlockGasLimitErr recognizes the handful of JSON-RPC error strings
// chains use for "transaction exceeds block gas limit". This is the one
// place the module still matches on error text, because no EVM JSON-RPC
// node returns a structured error code for this condition.
func isBlockGasLimitErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, pattern := range []string{"exceeds block gas limit", "gas limit reached", "intrinsic gas too low", "exceeds the configured cap"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// WaitForReceipt polls for a transaction receipt via the injected clock
// rather than a bare time.Ticker, so tests can swap in a fake clock
// without sleeping in wall-clock time.
func (c *EthClient) WaitForReceipt(ctx context.Context, txHash string) (bool, error) {
	hash := common.HexToHash(txHash)

	for {
		receipt, err := c.rpc.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt.Status == types.ReceiptStatusFailed, nil
		}
		if err != ethereum.NotFound {
			return false, &SendError{Kind: SendErrorReceiptTimeout, TxHash: txHash, Cause: err}
		}
		select {
		case <-ctx.Done():
			return false, &SendError{Kind: SendErrorReceiptTimeout, TxHash: txHash, Cause: ctx.Err()}
		case <-c.clock.After(c.receiptPoll):
		}
	}
}
