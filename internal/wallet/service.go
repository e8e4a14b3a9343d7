package wallet

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type WalletService interface {
	Get(ctx context.Context, userID string) (*Wallet, error)
	Recent(ctx context.Context, userID string, limit int) ([]Transaction, error)
	Deposit(ctx context.Context, userID string, amount decimal.Decimal, description string) (*Transaction, error)
	Withdraw(ctx context.Context, userID string, amount decimal.Decimal, description string) (*Transaction, error)
}

type Service struct {
	db   *gorm.DB
	repo WalletRepository
	log  zerolog.Logger
}

func NewService(db *gorm.DB, repo WalletRepository, log zerolog.Logger) *Service {
	return &Service{db: db, repo: repo, log: log.With().Str("component", "wallet").Logger()}
}

// Get returns the user's wallet, creating it on first access.
func (s *Service) Get(ctx context.Context, userID string) (*Wallet, error) {
	return s.repo.GetOrCreate(ctx, userID)
}

func (s *Service) Recent(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	return s.repo.Recent(ctx, userID, limit)
}

// Deposit credits an already-cleared amount. Payment-gateway settlement
// happens upstream; by the time this is called the money is real.
func (s *Service) Deposit(ctx context.Context, userID string, amount decimal.Decimal, description string) (*Transaction, error) {
	if description == "" {
		description = "Wallet deposit"
	}
	var ledger *Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		ledger, txErr = s.repo.CreditTx(ctx, tx, userID, Entry{
			Type:        TxDeposit,
			Amount:      amount,
			Description: description,
		})
		return txErr
	})
	if err != nil {
		return nil, fmt.Errorf("deposit failed: %w", err)
	}

	s.log.Info().
		Str("user_id", userID).
		Str("amount", amount.String()).
		Str("transaction_id", ledger.TransactionID).
		Msg("deposit credited")
	return ledger, nil
}

func (s *Service) Withdraw(ctx context.Context, userID string, amount decimal.Decimal, description string) (*Transaction, error) {
	if description == "" {
		description = "Wallet withdrawal"
	}
	var ledger *Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		ledger, txErr = s.repo.DebitTx(ctx, tx, userID, Entry{
			Type:        TxWithdrawal,
			Amount:      amount,
			Description: description,
		})
		return txErr
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("user_id", userID).
		Str("amount", amount.String()).
		Str("transaction_id", ledger.TransactionID).
		Msg("withdrawal debited")
	return ledger, nil
}
