package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nyambika/marketplace/internal/db"
	"github.com/nyambika/marketplace/internal/metrics"
	"github.com/nyambika/marketplace/internal/models"
)

// WalletService reads user wallets
type WalletService struct {
	db      *db.DB
	metrics *metrics.AppMetrics
}

// NewWalletService creates a new wallet service
func NewWalletService(db *db.DB, metrics *metrics.AppMetrics) *WalletService {
	return &WalletService{db: db, metrics: metrics}
}

// GetWallet returns the user's wallet, creating an empty active one on first read
func (s *WalletService) GetWallet(ctx context.Context, userID string) (*models.Wallet, error) {
	w, err := s.find(ctx, userID)
	if err != sql.ErrNoRows {
		return w, err
	}

	start := time.Now()
	query := "INSERT INTO user_wallets (id, user_id, balance, status) VALUES (?, ?, 0, 'active')"
	_, err = s.db.ExecContext(ctx, query, uuid.NewString(), userID)
	s.metrics.RecordDBQuery(ctx, "INSERT", "user_wallets", query, start, err == nil)
	// A concurrent first read may have created it already
	if err != nil && !db.IsDuplicate(err) {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}

	w, err = s.find(ctx, userID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("wallet missing after create for user %s", userID)
	}
	return w, err
}

func (s *WalletService) find(ctx context.Context, userID string) (*models.Wallet, error) {
	start := time.Now()
	query := "SELECT id, user_id, balance, status, created_at, updated_at FROM user_wallets WHERE user_id = ?"
	var w models.Wallet
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&w.ID, &w.UserID, &w.Balance, &w.Status, &w.CreatedAt, &w.UpdatedAt)
	s.metrics.RecordDBQuery(ctx, "SELECT", "user_wallets", query, start, err == nil || err == sql.ErrNoRows)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &w, nil
}
