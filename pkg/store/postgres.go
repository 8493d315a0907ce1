package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// marketModel is the GORM row for the markets table.
type marketModel struct {
	ID               uuid.UUID `gorm:"column:id;primaryKey"`
	Hex              string    `gorm:"column:market_hex"`
	OrderBookAddress string    `gorm:"column:order_book_address"`
}

func (marketModel) TableName() string { return "markets" }

// tradeModel is the GORM row for the trades table.
type tradeModel struct {
	UserWallet       string  `gorm:"column:user_wallet"`
	MarketID         uuid.UUID `gorm:"column:market_id"`
	LiquidationPrice *string `gorm:"column:liquidation_price"`
	Amount           string  `gorm:"column:amount"`
	Price            string  `gorm:"column:price"`
	TradeTimestamp   int64   `gorm:"column:trade_ts"`
	OrderBook        string  `gorm:"column:order_book"`
}

func (tradeModel) TableName() string { return "trades" }

// relayerNonceModel backs allocate_relayer_nonce.
type relayerNonceModel struct {
	Relayer  string `gorm:"column:relayer;primaryKey"`
	ChainID  int64  `gorm:"column:chain_id;primaryKey"`
	NextNonce uint64 `gorm:"column:next_nonce"`
}

func (relayerNonceModel) TableName() string { return "relayer_nonces" }

// liqJobModel backs enqueue_liq_job.
type liqJobModel struct {
	ID        string `gorm:"column:id;primaryKey"`
	Wallet    string `gorm:"column:wallet"`
	MarketHex string `gorm:"column:market_hex"`
	ChainID   int64  `gorm:"column:chain_id"`
	Error     string `gorm:"column:error"`
	Priority  int    `gorm:"column:priority"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (liqJobModel) TableName() string { return "liq_jobs" }

// PostgresStore implements Store over gorm.io/driver/postgres. Grounded on
// the meme-perp-dex liquidation keeper's gorm.DB + zap.Logger collaborator
// pairing and the blackholedex GORM/driver wiring style; the spec's
// Postgres target replaces those repos' MySQL/SQLite drivers.
type PostgresStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewPostgresStore opens a Postgres connection. No migrations are run here
// (schema migrations are out of scope for this core); the caller is
// responsible for the schema pre-existing.
func NewPostgresStore(dsn string, log *zap.Logger) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return &PostgresStore{db: db, logger: log}, nil
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying db: %w", err)
	}
	return sqlDB.Close()
}

func (s *PostgresStore) LookupMarketByHex(ctx context.Context, hex string) (*MarketRecord, error) {
	var m marketModel
	err := s.db.WithContext(ctx).Where("market_hex = ?", strings.ToLower(hex)).First(&m).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup_market_by_hex: %w", err)
	}
	return &MarketRecord{ID: m.ID, Hex: m.Hex, OrderBookAddress: m.OrderBookAddress}, nil
}

func (s *PostgresStore) LookupMarketByAddress(ctx context.Context, address string) (*MarketRecord, error) {
	var m marketModel
	err := s.db.WithContext(ctx).Where("order_book_address = ?", strings.ToLower(address)).First(&m).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup_market_by_address: %w", err)
	}
	return &MarketRecord{ID: m.ID, Hex: m.Hex, OrderBookAddress: m.OrderBookAddress}, nil
}

func (s *PostgresStore) FetchUserTrades(ctx context.Context, marketID uuid.UUID, offset, limit int) ([]TradeRow, error) {
	var rows []tradeModel
	err := s.db.WithContext(ctx).
		Where("market_id = ?", marketID).
		Offset(offset).Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("fetch_user_trades: %w", err)
	}
	out := make([]TradeRow, len(rows))
	for i, r := range rows {
		out[i] = TradeRow{
			UserWallet:       r.UserWallet,
			LiquidationPrice: r.LiquidationPrice,
			Amount:           r.Amount,
		}
	}
	return out, nil
}

func (s *PostgresStore) NetUserTrade(ctx context.Context, req NetUserTradeRequest) error {
	row := tradeModel{
		UserWallet:       strings.ToLower(req.Wallet),
		MarketID:         req.MarketID,
		LiquidationPrice: req.LiquidationPrice,
		Amount:           req.Delta,
		Price:            req.Price,
		TradeTimestamp:   req.TradeTimestamp,
		OrderBook:        strings.ToLower(req.OrderBook),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("net_user_trade: %w", err)
	}
	return nil
}

func (s *PostgresStore) AllocateRelayerNonce(ctx context.Context, relayer string, chainID int64, observedPending uint64, label string) (uint64, error) {
	var rec relayerNonceModel
	err := s.db.WithContext(ctx).
		Where("relayer = ? AND chain_id = ?", strings.ToLower(relayer), chainID).
		First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		rec = relayerNonceModel{Relayer: strings.ToLower(relayer), ChainID: chainID, NextNonce: observedPending}
	} else if err != nil {
		return 0, fmt.Errorf("allocate_relayer_nonce: %w", err)
	}

	allocated := rec.NextNonce
	if allocated < observedPending {
		allocated = observedPending
	}
	rec.NextNonce = allocated + 1

	if err := s.db.WithContext(ctx).Save(&rec).Error; err != nil {
		return 0, fmt.Errorf("allocate_relayer_nonce: %w", err)
	}
	if s.logger != nil {
		s.logger.Debug("nonce_allocated", zap.String("relayer", relayer), zap.Uint64("nonce", allocated), zap.String("label", label))
	}
	return allocated, nil
}

func (s *PostgresStore) MarkRelayerTxBroadcasted(ctx context.Context, relayer string, chainID int64, nonce uint64, txHash string) error {
	err := s.db.WithContext(ctx).Exec(
		"UPDATE relayer_nonces SET last_broadcast_nonce = ?, last_broadcast_tx = ? WHERE relayer = ? AND chain_id = ?",
		nonce, txHash, strings.ToLower(relayer), chainID,
	).Error
	if err != nil {
		return fmt.Errorf("mark_relayer_tx_broadcasted: %w", err)
	}
	return nil
}

func (s *PostgresStore) EnqueueLiqJob(ctx context.Context, req EnqueueLiqJobRequest) (string, error) {
	errStr := req.Error
	if len(errStr) > 500 {
		errStr = errStr[:500]
	}
	job := liqJobModel{
		ID:        uuid.NewString(),
		Wallet:    strings.ToLower(req.Wallet),
		MarketHex: strings.ToLower(req.MarketHex),
		ChainID:   req.ChainID,
		Error:     errStr,
		Priority:  req.Priority,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&job).Error; err != nil {
		return "", fmt.Errorf("enqueue_liq_job: %w", err)
	}
	return job.ID, nil
}
