package extension

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"stake_service/internal/stake"
	"stake_service/internal/wallet"
)

var (
	ErrNotOwner             = errors.New("only the stake owner can extend the deadline")
	ErrNotExtendable        = errors.New("stake cannot be extended in its current state")
	ErrMaxExtensionsReached = errors.New("maximum extensions reached")
	ErrDeadlineNotForward   = errors.New("new deadline must be after the current deadline")
	ErrDeadlineInPast       = errors.New("new deadline must be in the future")
	ErrDeadlineTooFar       = errors.New("new deadline exceeds the maximum extension window")
)

type ExtensionService interface {
	RequestExtension(ctx context.Context, stakeID, userID string, newDeadline time.Time, reason string) (*Extension, error)
	Eligibility(ctx context.Context, stakeID, userID string) (*Eligibility, error)
	History(ctx context.Context, stakeID string) ([]Extension, error)
}

type Service struct {
	db         *gorm.DB
	extensions ExtensionRepository
	stakes     stake.StakeRepository
	wallets    wallet.WalletRepository
	cfg        Config
	log        zerolog.Logger
}

func NewService(db *gorm.DB, extensions ExtensionRepository, stakes stake.StakeRepository, wallets wallet.WalletRepository, cfg Config, log zerolog.Logger) *Service {
	return &Service{
		db:         db,
		extensions: extensions,
		stakes:     stakes,
		wallets:    wallets,
		cfg:        cfg,
		log:        log.With().Str("component", "extension").Logger(),
	}
}

// FeeFor is the escalating fee schedule: base * multiplier^priorExtensions.
func FeeFor(cfg Config, priorExtensions int) decimal.Decimal {
	if priorExtensions <= 0 {
		return cfg.BaseFee.Round(2)
	}
	return cfg.BaseFee.
		Mul(cfg.FeeMultiplier.Pow(decimal.NewFromInt(int64(priorExtensions)))).
		Round(2)
}

// RequestExtension sells one deadline push. Fee debit, extension row, stake
// deadline/counter updates and the grace reset are one transaction.
func (s *Service) RequestExtension(ctx context.Context, stakeID, userID string, newDeadline time.Time, reason string) (*Extension, error) {
	now := time.Now()
	var ext *Extension

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stk, err := s.stakes.GetForUpdate(ctx, tx, stakeID)
		if err != nil {
			return err
		}
		if stk.UserID != userID {
			return ErrNotOwner
		}
		if stk.Status != stake.StatusActive && stk.Status != stake.StatusGracePeriod {
			return ErrNotExtendable
		}
		if stk.ExtensionCount >= s.cfg.MaxExtensions {
			return ErrMaxExtensionsReached
		}
		if !newDeadline.After(now) {
			return ErrDeadlineInPast
		}
		if !newDeadline.After(stk.Deadline) {
			return ErrDeadlineNotForward
		}
		if newDeadline.Sub(now) > time.Duration(s.cfg.MaxExtensionDays)*24*time.Hour {
			return ErrDeadlineTooFar
		}

		fee := FeeFor(s.cfg, stk.ExtensionCount)
		if _, err := s.wallets.DebitTx(ctx, tx, userID, wallet.Entry{
			Type:        wallet.TxStakeExtension,
			Amount:      fee,
			Description: fmt.Sprintf("Deadline extension #%d: %s", stk.ExtensionCount+1, stk.Goal),
			ReferenceID: stakeID,
		}); err != nil {
			return err
		}

		ext = &Extension{
			ExtensionID:  uuid.New().String(),
			StakeID:      stakeID,
			UserID:       userID,
			OldDeadline:  stk.Deadline,
			NewDeadline:  newDeadline,
			ExtensionFee: fee,
			Reason:       reason,
			CreatedAt:    now,
		}
		if err := s.extensions.Create(ctx, tx, ext); err != nil {
			return err
		}

		// An extension always lands the stake back in ACTIVE, clearing any
		// grace-period marker.
		return s.stakes.UpdateFields(ctx, tx, stakeID, map[string]interface{}{
			"deadline":        newDeadline,
			"status":          stake.StatusActive,
			"grace_ends_at":   nil,
			"is_extended":     true,
			"extension_count": stk.ExtensionCount + 1,
			"extension_fee":   stk.ExtensionFee.Add(fee),
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("stake_id", stakeID).
		Str("user_id", userID).
		Str("fee", ext.ExtensionFee.String()).
		Time("new_deadline", newDeadline).
		Msg("deadline extended")
	return ext, nil
}

// Eligibility quotes the next extension without mutating anything.
func (s *Service) Eligibility(ctx context.Context, stakeID, userID string) (*Eligibility, error) {
	stk, err := s.stakes.Get(ctx, stakeID)
	if err != nil {
		return nil, err
	}
	now := time.Now()

	e := &Eligibility{
		NextFee:             FeeFor(s.cfg, stk.ExtensionCount),
		RemainingExtensions: s.cfg.MaxExtensions - stk.ExtensionCount,
		LatestDeadline:      now.Add(time.Duration(s.cfg.MaxExtensionDays) * 24 * time.Hour),
	}
	if e.RemainingExtensions < 0 {
		e.RemainingExtensions = 0
	}

	if stk.UserID != userID {
		e.Reasons = append(e.Reasons, ErrNotOwner.Error())
	}
	if stk.Status != stake.StatusActive && stk.Status != stake.StatusGracePeriod {
		e.Reasons = append(e.Reasons, ErrNotExtendable.Error())
	}
	if stk.ExtensionCount >= s.cfg.MaxExtensions {
		e.Reasons = append(e.Reasons, ErrMaxExtensionsReached.Error())
	}
	if w, werr := s.wallets.Get(ctx, userID); werr == nil {
		if w.Balance.LessThan(e.NextFee) {
			e.Reasons = append(e.Reasons, wallet.ErrInsufficientFunds.Error())
		}
	}

	e.Eligible = len(e.Reasons) == 0
	return e, nil
}

func (s *Service) History(ctx context.Context, stakeID string) ([]Extension, error) {
	return s.extensions.ByStake(ctx, stakeID)
}
