package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

type WalletRepository interface {
	GetOrCreate(ctx context.Context, userID string) (*Wallet, error)
	Get(ctx context.Context, userID string) (*Wallet, error)
	Recent(ctx context.Context, userID string, limit int) ([]Transaction, error)
	LockTx(ctx context.Context, tx *gorm.DB, userID string) (*Wallet, error)
	CreditTx(ctx context.Context, tx *gorm.DB, userID string, entry Entry) (*Transaction, error)
	DebitTx(ctx context.Context, tx *gorm.DB, userID string, entry Entry) (*Transaction, error)
	UpdateStatsTx(ctx context.Context, tx *gorm.DB, userID string, mut StatsMutation) error
}

// StatsMutation adjusts the non-monetary counters (streaks, completion
// rate, rank) without touching the balance. Balance changes go through
// CreditTx/DebitTx only.
type StatsMutation struct {
	CurrentStreak  *int
	LongestStreak  *int
	CompletionRate *decimal.Decimal
	Rank           *string
}

type WalletRepositoryImpl struct {
	db *gorm.DB
}

func NewWalletRepositoryImpl(db *gorm.DB) *WalletRepositoryImpl {
	return &WalletRepositoryImpl{db: db}
}

func (r *WalletRepositoryImpl) GetOrCreate(ctx context.Context, userID string) (*Wallet, error) {
	var w Wallet
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&w).Error
	if err == nil {
		return &w, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	w = Wallet{
		WalletID: uuid.New().String(),
		UserID:   userID,
		Rank:     RankBronze,
	}
	if err := r.db.WithContext(ctx).Create(&w).Error; err != nil {
		// Lost a create race with a concurrent request for the same user.
		var again Wallet
		if ferr := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&again).Error; ferr == nil {
			return &again, nil
		}
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}
	return &w, nil
}

func (r *WalletRepositoryImpl) Get(ctx context.Context, userID string) (*Wallet, error) {
	var w Wallet
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&w).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &w, nil
}

func (r *WalletRepositoryImpl) Recent(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var txs []Transaction
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, nil
}

// lockForUpdate loads the wallet row under FOR UPDATE inside the caller's
// transaction, creating it first if the user has never had one.
func (r *WalletRepositoryImpl) lockForUpdate(ctx context.Context, tx *gorm.DB, userID string) (*Wallet, error) {
	var w Wallet
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&w).Error
	if err == nil {
		return &w, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to lock wallet: %w", err)
	}

	w = Wallet{
		WalletID: uuid.New().String(),
		UserID:   userID,
		Rank:     RankBronze,
	}
	if err := tx.WithContext(ctx).Create(&w).Error; err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}
	return &w, nil
}

// LockTx exposes the locked in-transaction read for callers that need the
// wallet's current counters before deciding what to move.
func (r *WalletRepositoryImpl) LockTx(ctx context.Context, tx *gorm.DB, userID string) (*Wallet, error) {
	return r.lockForUpdate(ctx, tx, userID)
}

// CreditTx applies a balance credit and writes its ledger row in one call.
// It must be called inside an open gorm transaction; a delta can never be
// persisted without its transaction record.
func (r *WalletRepositoryImpl) CreditTx(ctx context.Context, tx *gorm.DB, userID string, entry Entry) (*Transaction, error) {
	if !entry.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	w, err := r.lockForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	newBalance := w.Balance.Add(entry.Amount)
	return r.apply(ctx, tx, w, entry, newBalance)
}

// DebitTx is the debit counterpart of CreditTx. Fails with
// ErrInsufficientFunds when the wallet cannot cover the amount.
func (r *WalletRepositoryImpl) DebitTx(ctx context.Context, tx *gorm.DB, userID string, entry Entry) (*Transaction, error) {
	if !entry.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	w, err := r.lockForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if w.Balance.LessThan(entry.Amount) {
		return nil, ErrInsufficientFunds
	}
	newBalance := w.Balance.Sub(entry.Amount)
	return r.apply(ctx, tx, w, entry, newBalance)
}

func (r *WalletRepositoryImpl) apply(ctx context.Context, tx *gorm.DB, w *Wallet, entry Entry, newBalance decimal.Decimal) (*Transaction, error) {
	updates := map[string]interface{}{
		"balance":    newBalance,
		"version":    gorm.Expr("version + 1"),
		"updated_at": time.Now(),
	}
	if !entry.EarnedDelta.IsZero() {
		updates["total_earned"] = w.TotalEarned.Add(entry.EarnedDelta)
	}
	if !entry.LostDelta.IsZero() {
		updates["total_lost"] = w.TotalLost.Add(entry.LostDelta)
	}
	if !entry.StakedDelta.IsZero() {
		updates["total_staked"] = w.TotalStaked.Add(entry.StakedDelta)
	}

	result := tx.WithContext(ctx).Model(&Wallet{}).
		Where("wallet_id = ?", w.WalletID).
		Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update wallet: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrWalletNotFound
	}

	ledger := &Transaction{
		TransactionID: uuid.New().String(),
		WalletID:      w.WalletID,
		UserID:        w.UserID,
		Type:          entry.Type,
		Amount:        entry.Amount,
		BalanceBefore: w.Balance,
		BalanceAfter:  newBalance,
		Description:   entry.Description,
		CreatedAt:     time.Now(),
	}
	if entry.ReferenceID != "" {
		ref := entry.ReferenceID
		ledger.ReferenceID = &ref
	}
	if err := tx.WithContext(ctx).Create(ledger).Error; err != nil {
		return nil, fmt.Errorf("failed to record transaction: %w", err)
	}
	return ledger, nil
}

func (r *WalletRepositoryImpl) UpdateStatsTx(ctx context.Context, tx *gorm.DB, userID string, mut StatsMutation) error {
	updates := map[string]interface{}{
		"updated_at": time.Now(),
	}
	if mut.CurrentStreak != nil {
		updates["current_streak"] = *mut.CurrentStreak
	}
	if mut.LongestStreak != nil {
		updates["longest_streak"] = *mut.LongestStreak
	}
	if mut.CompletionRate != nil {
		updates["completion_rate"] = *mut.CompletionRate
	}
	if mut.Rank != nil {
		updates["rank"] = *mut.Rank
	}
	if len(updates) == 1 {
		return nil
	}

	result := tx.WithContext(ctx).Model(&Wallet{}).
		Where("user_id = ?", userID).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update wallet stats: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrWalletNotFound
	}
	return nil
}
