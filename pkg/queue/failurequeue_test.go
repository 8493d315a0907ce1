package queue

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/uhyunpark/liqhook/pkg/store"
)

type stubQueueStore struct {
	store.Store
	req store.EnqueueLiqJobRequest
	err error
}

func (s *stubQueueStore) EnqueueLiqJob(ctx context.Context, req store.EnqueueLiqJobRequest) (string, error) {
	s.req = req
	return "job-1", s.err
}

func TestEnqueueLowercasesAndTruncates(t *testing.T) {
	st := &stubQueueStore{}
	c := New(st, nil)
	longErr := errors.New(strings.Repeat("x", 600))
	c.Enqueue(context.Background(), "0xWALLET", "0xHEX", 999, longErr, store.PrioritySendFail)

	if st.req.Wallet != "0xwallet" || st.req.MarketHex != "0xhex" {
		t.Errorf("expected lowercased fields, got %+v", st.req)
	}
	if len(st.req.Error) != 500 {
		t.Errorf("expected truncation to 500 chars, got %d", len(st.req.Error))
	}
	if st.req.Priority != store.PrioritySendFail {
		t.Errorf("got priority %d", st.req.Priority)
	}
}

func TestEnqueueNeverPanicsOnStoreError(t *testing.T) {
	st := &stubQueueStore{err: errors.New("db down")}
	c := New(st, nil)
	c.Enqueue(context.Background(), "0xwallet", "0xhex", 999, errors.New("send failed"), store.PriorityNoRelayer)
}

func TestEnqueueHandlesNilError(t *testing.T) {
	st := &stubQueueStore{}
	c := New(st, nil)
	c.Enqueue(context.Background(), "0xwallet", "0xhex", 999, nil, store.PrioritySendFail)
	if st.req.Error != "" {
		t.Errorf("expected empty error string, got %q", st.req.Error)
	}
}
