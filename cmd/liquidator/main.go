// Command liquidator runs the webhook HTTP server that ingests on-chain
// log deliveries and drives market-price/trade reconciliation and
// liquidation scanning. Assembly order is adapted from the teacher's
// cmd/node/main.go (config -> logger -> app wiring -> signal-driven
// shutdown), generalized from the teacher's consensus/app/api stack to
// the store/chain/relayer/webhook stack this engine actually runs.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/liqhook/params"
	"github.com/uhyunpark/liqhook/pkg/api"
	"github.com/uhyunpark/liqhook/pkg/chain"
	"github.com/uhyunpark/liqhook/pkg/idempotency"
	"github.com/uhyunpark/liqhook/pkg/liquidation"
	"github.com/uhyunpark/liqhook/pkg/market"
	"github.com/uhyunpark/liqhook/pkg/queue"
	"github.com/uhyunpark/liqhook/pkg/reconcile"
	"github.com/uhyunpark/liqhook/pkg/relayer"
	"github.com/uhyunpark/liqhook/pkg/store"
	"github.com/uhyunpark/liqhook/pkg/util"
	"github.com/uhyunpark/liqhook/pkg/webhook"
)

func main() {
	cfg := params.LoadFromEnv("")

	logFile := cfg.LogFile
	if logFile == "" {
		logFile = "data/liquidator.log"
	}
	logger, err := util.NewLoggerWithFile(logFile, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	logger.Info("logger_initialized", zap.String("log_file", logFile))

	if cfg.DatabaseURL == "" {
		logger.Fatal("missing_database_url")
	}
	st, err := store.NewPostgresStore(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("store_init_failed", zap.Error(err))
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainCli, err := chain.NewEthClient(ctx, cfg.HubRPCURL, common.HexToAddress(cfg.CoreVaultAddress), cfg.ChainID)
	if err != nil {
		logger.Fatal("chain_client_init_failed", zap.Error(err))
	}

	pools, err := relayer.Load(relayer.LoadConfig{
		SmallKeysJSON: cfg.SmallKeysJSON,
		BigKeysJSON:   cfg.BigKeysJSON,
		LegacyKey:     cfg.LegacyKey,
		SmallBlockGas: cfg.SmallBlockGas,
		BigBlockGas:   cfg.BigBlockGas,
		GasBufferBps:  cfg.GasBufferBps,
	})
	if err != nil {
		logger.Fatal("relayer_pool_init_failed", zap.Error(err))
	}
	logger.Info("relayer_pools_loaded",
		zap.Int("small_count", pools.Small.Len()),
		zap.Int("big_count", pools.Big.Len()))

	dedupe, err := idempotency.Open(cfg.DedupeDBPath)
	if err != nil {
		logger.Fatal("dedupe_cache_init_failed", zap.Error(err))
	}
	defer dedupe.Close()

	nonces := relayer.NewNonceAllocator(chainCli, st, cfg.NonceAllocatorMode, logger)
	resolver := market.New(st)
	recon := reconcile.New(st)
	failq := queue.New(st, logger)
	scanner := liquidation.New(st, recon, chainCli, pools, nonces, failq, logger)
	handler := webhook.New(cfg.HMACSecret, resolver, recon, scanner, chainCli, dedupe, st, logger)

	srv := api.NewServer(handler, logger, "liqhook")
	httpServer := &http.Server{
		Addr:         cfg.APIAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("api_server_starting", zap.String("addr", cfg.APIAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("api_server_failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown_signal_received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := api.Shutdown(shutdownCtx, httpServer); err != nil {
		logger.Error("shutdown_failed", zap.Error(err))
	}
}
