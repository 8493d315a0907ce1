// Package queue is a thin client for the durable failure queue that an
// independent retry worker drains. Grounded on the teacher's
// fire-and-forget notification callbacks (engine.OnBlockCommit/app.OnTrade
// in its cmd/node/main.go).
package queue

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/uhyunpark/liqhook/pkg/store"
)

const errorTruncateLen = 500

// Client enqueues failed liquidation attempts for later retry.
type Client struct {
	st  store.Store
	log *zap.Logger
}

// New constructs a failure queue Client.
func New(st store.Store, log *zap.Logger) *Client {
	return &Client{st: st, log: log}
}

// Enqueue stores a retry job. It never raises: a failure to enqueue is
// logged and swallowed, matching spec.md §4.I ("must not raise") — an
// enqueue failure here would otherwise mask the original liquidation
// failure it was trying to record.
func (c *Client) Enqueue(ctx context.Context, wallet, marketHex string, chainID int64, sendErr error, priority int) {
	msg := ""
	if sendErr != nil {
		msg = sendErr.Error()
	}
	if len(msg) > errorTruncateLen {
		msg = msg[:errorTruncateLen]
	}

	_, err := c.st.EnqueueLiqJob(ctx, store.EnqueueLiqJobRequest{
		Wallet:    strings.ToLower(wallet),
		MarketHex: strings.ToLower(marketHex),
		ChainID:   chainID,
		Error:     msg,
		Priority:  priority,
	})
	if err != nil && c.log != nil {
		c.log.Error("failure_queue_enqueue_failed",
			zap.String("wallet", wallet), zap.String("market_hex", marketHex), zap.Error(err))
	}
}
