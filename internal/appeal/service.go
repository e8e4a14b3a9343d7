package appeal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"stake_service/internal/stake"
	"stake_service/internal/wallet"
)

var (
	ErrNotOwner         = errors.New("only the stake owner can appeal")
	ErrStakeNotFailed   = errors.New("only failed stakes can be appealed")
	ErrOpenAppealExists = errors.New("an open appeal already exists for this stake")
	ErrAppealResolved   = errors.New("appeal has already been resolved")
	ErrInvalidDecision  = errors.New("decision must be APPROVED or REJECTED")
	ErrReasonTooShort   = errors.New("appeal reason is too short")
)

type AppealService interface {
	Submit(ctx context.Context, stakeID, userID, reason, evidence string) (*Appeal, error)
	StartReview(ctx context.Context, appealID, adminID string) (*Appeal, error)
	Review(ctx context.Context, appealID, adminID, decision, notes string) (*Appeal, error)
	ByStake(ctx context.Context, stakeID string) ([]Appeal, error)
}

type Service struct {
	db      *gorm.DB
	appeals AppealRepository
	stakes  stake.StakeRepository
	wallets wallet.WalletRepository
	log     zerolog.Logger
}

func NewService(db *gorm.DB, appeals AppealRepository, stakes stake.StakeRepository, wallets wallet.WalletRepository, log zerolog.Logger) *Service {
	return &Service{
		db:      db,
		appeals: appeals,
		stakes:  stakes,
		wallets: wallets,
		log:     log.With().Str("component", "appeal").Logger(),
	}
}

// Submit opens a dispute on a failed stake. The stake flips to DISPUTED in
// the same transaction that creates the PENDING appeal.
func (s *Service) Submit(ctx context.Context, stakeID, userID, reason, evidence string) (*Appeal, error) {
	if len(strings.TrimSpace(reason)) < MinReasonLength {
		return nil, ErrReasonTooShort
	}

	var a *Appeal
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stk, err := s.stakes.GetForUpdate(ctx, tx, stakeID)
		if err != nil {
			return err
		}
		if stk.UserID != userID {
			return ErrNotOwner
		}
		if stk.Status != stake.StatusFailed {
			return ErrStakeNotFailed
		}

		open, err := s.appeals.OpenAppealExists(ctx, tx, stakeID, userID)
		if err != nil {
			return err
		}
		if open {
			return ErrOpenAppealExists
		}

		a = &Appeal{
			AppealID:  uuid.New().String(),
			StakeID:   stakeID,
			UserID:    userID,
			Reason:    reason,
			Evidence:  evidence,
			Status:    StatusPending,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		if err := s.appeals.Create(ctx, tx, a); err != nil {
			return err
		}

		return s.stakes.UpdateFields(ctx, tx, stakeID, map[string]interface{}{
			"status": stake.StatusDisputed,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("appeal_id", a.AppealID).
		Str("stake_id", stakeID).
		Str("user_id", userID).
		Msg("appeal submitted")
	return a, nil
}

// StartReview claims a pending appeal for an admin.
func (s *Service) StartReview(ctx context.Context, appealID, adminID string) (*Appeal, error) {
	var a *Appeal
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		a, err = s.appeals.GetForUpdate(ctx, tx, appealID)
		if err != nil {
			return err
		}
		if a.Status != StatusPending {
			return ErrAppealResolved
		}
		if err := s.appeals.UpdateFields(ctx, tx, appealID, map[string]interface{}{
			"status":      StatusUnderReview,
			"reviewed_by": adminID,
		}); err != nil {
			return err
		}
		a.Status = StatusUnderReview
		a.ReviewedBy = &adminID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Review resolves an appeal. APPROVED reverses the penalty: the owner is
// refunded exactly the penalty amount, the penalty row is deleted, and the
// stake returns to COMPLETED. REJECTED puts the stake back to FAILED.
// Either way the appeal is terminal.
func (s *Service) Review(ctx context.Context, appealID, adminID, decision, notes string) (*Appeal, error) {
	if decision != DecisionApproved && decision != DecisionRejected {
		return nil, ErrInvalidDecision
	}
	now := time.Now()

	var a *Appeal
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		a, err = s.appeals.GetForUpdate(ctx, tx, appealID)
		if err != nil {
			return err
		}
		if a.Status != StatusPending && a.Status != StatusUnderReview {
			return ErrAppealResolved
		}

		stk, err := s.stakes.GetForUpdate(ctx, tx, a.StakeID)
		if err != nil {
			return err
		}

		if decision == DecisionApproved {
			if err := s.approve(ctx, tx, a, stk, now); err != nil {
				return err
			}
		} else {
			if err := s.stakes.UpdateFields(ctx, tx, a.StakeID, map[string]interface{}{
				"status": stake.StatusFailed,
			}); err != nil {
				return err
			}
		}

		if err := s.appeals.UpdateFields(ctx, tx, appealID, map[string]interface{}{
			"status":      decision,
			"admin_notes": notes,
			"reviewed_at": now,
			"reviewed_by": adminID,
		}); err != nil {
			return err
		}
		a.Status = decision
		a.AdminNotes = notes
		a.ReviewedAt = &now
		a.ReviewedBy = &adminID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("appeal_id", appealID).
		Str("admin_id", adminID).
		Str("decision", decision).
		Msg("appeal reviewed")
	return a, nil
}

func (s *Service) approve(ctx context.Context, tx *gorm.DB, a *Appeal, stk *stake.Stake, now time.Time) error {
	penalty, err := s.stakes.PenaltyByStake(ctx, a.StakeID)
	if err != nil {
		return err
	}

	if penalty.Amount.IsPositive() {
		if _, err := s.wallets.CreditTx(ctx, tx, stk.UserID, wallet.Entry{
			Type:        wallet.TxAppealRefund,
			Amount:      penalty.Amount,
			Description: fmt.Sprintf("Appeal approved: %s", stk.Goal),
			ReferenceID: a.AppealID,
			LostDelta:   penalty.Amount.Neg(),
		}); err != nil {
			return err
		}
	}
	if err := s.stakes.DeletePenalty(ctx, tx, penalty.PenaltyID); err != nil {
		return err
	}

	if err := s.stakes.UpdateFields(ctx, tx, a.StakeID, map[string]interface{}{
		"status":       stake.StatusCompleted,
		"completed_at": now,
	}); err != nil {
		return err
	}

	// The failure no longer counts against the owner's record.
	return s.recomputeRate(ctx, tx, stk.UserID)
}

func (s *Service) recomputeRate(ctx context.Context, tx *gorm.DB, userID string) error {
	completed, err := s.stakes.CountByOwnerAndStatus(ctx, tx, userID, stake.StatusCompleted)
	if err != nil {
		return err
	}
	failed, err := s.stakes.CountByOwnerAndStatus(ctx, tx, userID, stake.StatusFailed)
	if err != nil {
		return err
	}
	rate := decimal.Zero
	if completed+failed > 0 {
		rate = decimal.NewFromInt(completed).
			Div(decimal.NewFromInt(completed + failed)).
			Mul(decimal.NewFromInt(100)).
			Round(2)
	}
	return s.wallets.UpdateStatsTx(ctx, tx, userID, wallet.StatsMutation{
		CompletionRate: &rate,
	})
}

func (s *Service) ByStake(ctx context.Context, stakeID string) ([]Appeal, error) {
	return s.appeals.ByStake(ctx, stakeID)
}
