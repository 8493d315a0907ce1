package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uhyunpark/liqhook/pkg/chain"
	"github.com/uhyunpark/liqhook/pkg/idempotency"
	"github.com/uhyunpark/liqhook/pkg/liquidation"
	"github.com/uhyunpark/liqhook/pkg/market"
	"github.com/uhyunpark/liqhook/pkg/queue"
	"github.com/uhyunpark/liqhook/pkg/reconcile"
	"github.com/uhyunpark/liqhook/pkg/relayer"
	"github.com/uhyunpark/liqhook/pkg/store"
)

type nopStore struct{ store.Store }

func (nopStore) LookupMarketByAddress(ctx context.Context, address string) (*store.MarketRecord, error) {
	return nil, nil
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func newTestHandler(t *testing.T, secret string) *Handler {
	t.Helper()
	st := nopStore{}
	resolver := market.New(st)
	recon := reconcile.New(st)
	log := zap.NewNop()
	pools, err := relayer.Load(relayer.LoadConfig{})
	if err != nil {
		t.Fatal(err)
	}
	var chainCli chain.Client // nil is fine: these tests never reach chain calls
	nonces := relayer.NewNonceAllocator(nilPending{}, st, "disabled", log)
	failq := queue.New(st, log)
	scanner := liquidation.New(st, recon, chainCli, pools, nonces, failq, log)
	return New(secret, resolver, recon, scanner, chainCli, (*idempotency.Cache)(nil), st, log)
}

type nilPending struct{}

func (nilPending) PendingNonceAt(ctx context.Context, address string) (uint64, error) { return 0, nil }

func TestVerifySignatureRejectsMismatch(t *testing.T) {
	h := newTestHandler(t, "topsecret")
	body := []byte(`{"logs":[]}`)
	if h.VerifySignature(body, "deadbeef") {
		t.Error("expected signature mismatch to fail")
	}
}

func TestVerifySignatureAcceptsValid(t *testing.T) {
	h := newTestHandler(t, "topsecret")
	body := []byte(`{"logs":[]}`)
	sig := sign("topsecret", body)
	if !h.VerifySignature(body, sig) {
		t.Error("expected valid signature to pass")
	}
}

func TestVerifySignatureRejectsMissingSecretOrSig(t *testing.T) {
	h := newTestHandler(t, "")
	if h.VerifySignature([]byte("x"), "abcd") {
		t.Error("expected missing secret to fail")
	}
	h2 := newTestHandler(t, "topsecret")
	if h2.VerifySignature([]byte("x"), "") {
		t.Error("expected missing signature header to fail")
	}
}

func TestProcessReturns401OnBadSignature(t *testing.T) {
	h := newTestHandler(t, "topsecret")
	_, ok := h.Process(context.Background(), []byte(`{"logs":[]}`), "bad")
	if ok {
		t.Error("expected signature failure")
	}
}

func TestProcessToleratesUnparsableBody(t *testing.T) {
	h := newTestHandler(t, "topsecret")
	body := []byte(`not json`)
	sig := sign("topsecret", body)
	resp, ok := h.Process(context.Background(), body, sig)
	if !ok {
		t.Fatal("expected signature to pass even with unparsable body")
	}
	if resp.Processed != 0 {
		t.Errorf("expected 0 processed for unparsable body, got %d", resp.Processed)
	}
	if resp.TraceID == "" {
		t.Error("expected a trace id")
	}
}

func TestExtractLogsPrecedenceShapes(t *testing.T) {
	cases := []struct {
		name string
		body string
		want int
	}{
		{"top_level_logs", `{"logs":[{"address":"0x1"}]}`, 1},
		{"event_logs", `{"event":{"logs":[{"address":"0x1"},{"address":"0x2"}]}}`, 2},
		{"event_data_logs", `{"event":{"data":{"logs":[{"address":"0x1"}]}}}`, 1},
		{"event_data_block_logs", `{"event":{"data":{"block":{"logs":[{"address":"0x1"}]}}}}`, 1},
		{"event_activity", `{"event":{"activity":[{"log":{"address":"0x1","topics":[],"data":"0x"}}]}}`, 1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := extractLogs([]byte(c.body))
			if len(got) != c.want {
				t.Errorf("got %d logs, want %d", len(got), c.want)
			}
		})
	}
}

func TestProcessSkipsUnknownTopicLogs(t *testing.T) {
	h := newTestHandler(t, "topsecret")
	body := []byte(`{"logs":[{"address":"0x1111111111111111111111111111111111111111","topics":["0xdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"],"data":"0x"}]}`)
	sig := sign("topsecret", body)
	resp, ok := h.Process(context.Background(), body, sig)
	if !ok {
		t.Fatal("expected signature to pass")
	}
	if resp.Processed != 1 || resp.Results[0].Status != "skipped" {
		t.Errorf("expected 1 skipped result, got %+v", resp.Results)
	}
}

var _ = uuid.Nil
