package stake

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"stake_service/internal/wallet"
)

var (
	ErrInvalidStakeType    = errors.New("invalid stake type")
	ErrInvalidStakeAmount  = errors.New("stake amount must be positive")
	ErrInvalidDeadline     = errors.New("deadline must be in the future")
	ErrNotSocialStake      = errors.New("only social stakes accept participants")
	ErrStakeNotActive      = errors.New("stake is not active")
	ErrNotOwner            = errors.New("only the stake owner can cancel the stake")
	ErrOwnerCannotJoin     = errors.New("owner cannot join their own stake")
	ErrAlreadyParticipant  = errors.New("user already joined this stake")
	ErrInvalidSecurityCode = errors.New("invalid security code")
	ErrInvitationExpired   = errors.New("invitation has expired")
	ErrDeadlineNotPassed   = errors.New("deadline has not passed")
	ErrGraceNotElapsed     = errors.New("grace period has not elapsed")
	ErrNotFailable         = errors.New("stake cannot be failed in its current state")
)

type StakeService interface {
	Create(ctx context.Context, userID string, in CreateInput) (*CreateResult, error)
	Get(ctx context.Context, stakeID string) (*Stake, error)
	Participants(ctx context.Context, stakeID string) ([]Participant, error)
	Join(ctx context.Context, stakeID, userID string, amount decimal.Decimal, isSupporter bool, securityCode string) (*Participant, error)
	Complete(ctx context.Context, stakeID, proof string) (*CompletionResult, error)
	Fail(ctx context.Context, stakeID string) (*FailureResult, error)
	Cancel(ctx context.Context, stakeID, userID string) (*Stake, error)
	MarkGracePeriod(ctx context.Context, stakeID string) (*Stake, error)
}

type CreateInput struct {
	StakeType string
	Amount    decimal.Decimal
	Deadline  time.Time
	Goal      string
}

type CreateResult struct {
	Stake *Stake
	// Invitation is set for social stakes only; its code is what the owner
	// shares with supporters.
	Invitation *Invitation
}

type CompletionResult struct {
	Stake   *Stake
	Rewards []Reward
	// Total credited across all wallets for this completion.
	TotalPaid decimal.Decimal
}

type FailureResult struct {
	Stake   *Stake
	Penalty *Penalty
	// Refunded is what the owner got back after the penalty was taken.
	Refunded decimal.Decimal
}

type Service struct {
	db          *gorm.DB
	stakes      StakeRepository
	wallets     wallet.WalletRepository
	graceWindow time.Duration
	log         zerolog.Logger
}

func NewService(db *gorm.DB, stakes StakeRepository, wallets wallet.WalletRepository, graceWindow time.Duration, log zerolog.Logger) *Service {
	if graceWindow <= 0 {
		graceWindow = 24 * time.Hour
	}
	return &Service{
		db:          db,
		stakes:      stakes,
		wallets:     wallets,
		graceWindow: graceWindow,
		log:         log.With().Str("component", "stake").Logger(),
	}
}

func (s *Service) Get(ctx context.Context, stakeID string) (*Stake, error) {
	return s.stakes.Get(ctx, stakeID)
}

func (s *Service) Participants(ctx context.Context, stakeID string) ([]Participant, error) {
	return s.stakes.ListParticipants(ctx, s.db, stakeID)
}

// Create escrows the owner's pledge and opens the stake. Social stakes get
// a pending invitation whose code supporters must present on join.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*CreateResult, error) {
	if !ValidType(in.StakeType) {
		return nil, ErrInvalidStakeType
	}
	if !in.Amount.IsPositive() {
		return nil, ErrInvalidStakeAmount
	}
	if !in.Deadline.After(time.Now()) {
		return nil, ErrInvalidDeadline
	}

	stk := &Stake{
		StakeID:      uuid.New().String(),
		UserID:       userID,
		StakeType:    in.StakeType,
		Status:       StatusActive,
		Goal:         in.Goal,
		UserStake:    in.Amount,
		FriendStakes: decimal.Zero,
		TotalAmount:  in.Amount,
		Deadline:     in.Deadline,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	var inv *Invitation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.wallets.DebitTx(ctx, tx, userID, wallet.Entry{
			Type:        wallet.TxStakeCreated,
			Amount:      in.Amount,
			Description: fmt.Sprintf("Stake created: %s", in.Goal),
			ReferenceID: stk.StakeID,
			StakedDelta: in.Amount,
		}); err != nil {
			return err
		}
		if err := s.stakes.Create(ctx, tx, stk); err != nil {
			return err
		}
		if in.StakeType == TypeSocialStake {
			code, err := newSecurityCode()
			if err != nil {
				return err
			}
			inv = &Invitation{
				InvitationID: uuid.New().String(),
				StakeID:      stk.StakeID,
				SecurityCode: code,
				Status:       InvitationPending,
				ExpiresAt:    in.Deadline,
				CreatedAt:    time.Now(),
			}
			if err := s.stakes.CreateInvitation(ctx, tx, inv); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("stake_id", stk.StakeID).
		Str("user_id", userID).
		Str("stake_type", in.StakeType).
		Str("amount", in.Amount.String()).
		Msg("stake created")
	return &CreateResult{Stake: stk, Invitation: inv}, nil
}

// Join adds a supporter to a social stake. Every mutation (wallet debit,
// participant row, stake totals, invitation flip) commits or rolls back as
// one unit; the stake row lock serializes concurrent joins.
func (s *Service) Join(ctx context.Context, stakeID, userID string, amount decimal.Decimal, isSupporter bool, securityCode string) (*Participant, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidStakeAmount
	}

	var p *Participant
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stk, err := s.stakes.GetForUpdate(ctx, tx, stakeID)
		if err != nil {
			return err
		}
		if stk.StakeType != TypeSocialStake {
			return ErrNotSocialStake
		}
		if stk.Status != StatusActive {
			return ErrStakeNotActive
		}
		if stk.UserID == userID {
			return ErrOwnerCannotJoin
		}

		exists, err := s.stakes.ParticipantExists(ctx, tx, stakeID, userID)
		if err != nil {
			return err
		}
		if exists {
			return ErrAlreadyParticipant
		}

		inv, err := s.stakes.GetOpenInvitation(ctx, tx, stakeID)
		if err != nil {
			return err
		}
		if time.Now().After(inv.ExpiresAt) {
			return ErrInvitationExpired
		}
		if subtle.ConstantTimeCompare([]byte(inv.SecurityCode), []byte(securityCode)) != 1 {
			return ErrInvalidSecurityCode
		}

		if _, err := s.wallets.DebitTx(ctx, tx, userID, wallet.Entry{
			Type:        wallet.TxStakeParticipation,
			Amount:      amount,
			Description: fmt.Sprintf("Joined stake: %s", stk.Goal),
			ReferenceID: stakeID,
			StakedDelta: amount,
		}); err != nil {
			return err
		}

		p = &Participant{
			ParticipantRowID: uuid.New().String(),
			StakeID:          stakeID,
			ParticipantID:    userID,
			Amount:           amount,
			IsSupporter:      isSupporter,
			JoinedAt:         time.Now(),
		}
		if err := s.stakes.CreateParticipant(ctx, tx, p); err != nil {
			return err
		}

		newFriendStakes := stk.FriendStakes.Add(amount)
		if err := s.stakes.UpdateFields(ctx, tx, stakeID, map[string]interface{}{
			"friend_stakes": newFriendStakes,
			"total_amount":  stk.UserStake.Add(newFriendStakes),
		}); err != nil {
			return err
		}

		// The invitation code stays valid for further supporters; the first
		// join just marks it as taken up.
		if inv.Status == InvitationPending {
			return s.stakes.UpdateInvitationStatus(ctx, tx, inv.InvitationID, InvitationAccepted)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("stake_id", stakeID).
		Str("participant_id", userID).
		Str("amount", amount.String()).
		Bool("supporter", isSupporter).
		Msg("participant joined stake")
	return p, nil
}

// Complete settles a stake in the owner's favor. All wallet credits, reward
// rows, streak/stat updates and the status flip are one transaction.
func (s *Service) Complete(ctx context.Context, stakeID, proof string) (*CompletionResult, error) {
	now := time.Now()
	var result *CompletionResult

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stk, err := s.stakes.GetForUpdate(ctx, tx, stakeID)
		if err != nil {
			return err
		}
		if err := ValidateCompletion(stk, proof, now); err != nil {
			return err
		}

		w, err := s.wallets.LockTx(ctx, tx, stk.UserID)
		if err != nil {
			return err
		}

		var rewards []Reward
		total := decimal.Zero
		ownerEarned := decimal.Zero

		credit := func(recipientID string, amount decimal.Decimal, reason, description string) error {
			if !amount.IsPositive() {
				return nil
			}
			if _, err := s.wallets.CreditTx(ctx, tx, recipientID, wallet.Entry{
				Type:        wallet.TxStakeReward,
				Amount:      amount,
				Description: description,
				ReferenceID: stakeID,
				EarnedDelta: amount,
			}); err != nil {
				return err
			}
			rw := Reward{
				RewardID:    uuid.New().String(),
				StakeID:     stakeID,
				RecipientID: recipientID,
				Amount:      amount,
				Reason:      reason,
				CreatedAt:   now,
			}
			if err := s.stakes.CreateReward(ctx, tx, &rw); err != nil {
				return err
			}
			rewards = append(rewards, rw)
			total = total.Add(amount)
			if recipientID == stk.UserID {
				ownerEarned = ownerEarned.Add(amount)
			}
			return nil
		}

		switch stk.StakeType {
		case TypeSelfStake:
			b := SelfStakeReward(stk.UserStake, w.CurrentStreak)
			if err := credit(stk.UserID, b.Total, RewardReasonCompletion,
				fmt.Sprintf("Stake completed: %s", stk.Goal)); err != nil {
				return err
			}

		case TypeSocialStake:
			pool := SocialStakeReward(stk.TotalAmount).Total
			participants, err := s.stakes.ListParticipants(ctx, tx, stakeID)
			if err != nil {
				return err
			}
			var supporters []Participant
			for _, p := range participants {
				if p.IsSupporter {
					supporters = append(supporters, p)
				}
			}

			ownerShare := pool
			if n := len(supporters); n > 0 {
				// 10% of the pool split evenly; the owner absorbs the
				// rounding remainder so the payouts sum to the pool exactly.
				share := pool.Mul(supporterPoolShare).
					Div(decimal.NewFromInt(int64(n))).
					RoundDown(2)
				ownerShare = pool.Sub(share.Mul(decimal.NewFromInt(int64(n))))
				for _, sp := range supporters {
					if err := credit(sp.ParticipantID, share, RewardReasonSupporterShare,
						fmt.Sprintf("Supporter share: %s", stk.Goal)); err != nil {
						return err
					}
				}
			}
			if err := credit(stk.UserID, ownerShare, RewardReasonCompletion,
				fmt.Sprintf("Stake completed: %s", stk.Goal)); err != nil {
				return err
			}

		default:
			// Challenge/team/charity completions return the escrowed pledge.
			if err := credit(stk.UserID, stk.UserStake, RewardReasonCompletion,
				fmt.Sprintf("Stake completed: %s", stk.Goal)); err != nil {
				return err
			}
		}

		if err := s.stakes.UpdateFields(ctx, tx, stakeID, map[string]interface{}{
			"status":        StatusCompleted,
			"completed_at":  now,
			"grace_ends_at": nil,
		}); err != nil {
			return err
		}

		newStreak := w.CurrentStreak + 1
		longest := w.LongestStreak
		if newStreak > longest {
			longest = newStreak
		}
		if err := s.applyOwnerStats(ctx, tx, stk.UserID, w, newStreak, longest, ownerEarned); err != nil {
			return err
		}

		stk.Status = StatusCompleted
		stk.CompletedAt = &now
		result = &CompletionResult{Stake: stk, Rewards: rewards, TotalPaid: total}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("stake_id", stakeID).
		Str("total_paid", result.TotalPaid.String()).
		Int("reward_count", len(result.Rewards)).
		Msg("stake completed")
	return result, nil
}

// Fail settles a stake against the owner. The escrow is released and the
// penalty taken in the same transaction, so the ledger stays additive:
// STAKE_REFUND(+pledge) then STAKE_PENALTY(-penalty). Supporters are never
// penalized; each gets a full refund.
func (s *Service) Fail(ctx context.Context, stakeID string) (*FailureResult, error) {
	now := time.Now()
	var result *FailureResult

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stk, err := s.stakes.GetForUpdate(ctx, tx, stakeID)
		if err != nil {
			return err
		}
		switch stk.Status {
		case StatusActive:
			if !now.After(stk.Deadline) {
				return ErrDeadlineNotPassed
			}
		case StatusGracePeriod:
			if stk.GraceEndsAt != nil && now.Before(*stk.GraceEndsAt) {
				return ErrGraceNotElapsed
			}
		default:
			return ErrNotFailable
		}

		penaltyAmt := PenaltyAmount(stk.UserStake, stk.StakeType)

		if _, err := s.wallets.CreditTx(ctx, tx, stk.UserID, wallet.Entry{
			Type:        wallet.TxStakeRefund,
			Amount:      stk.UserStake,
			Description: fmt.Sprintf("Stake escrow released: %s", stk.Goal),
			ReferenceID: stakeID,
		}); err != nil {
			return err
		}
		if penaltyAmt.IsPositive() {
			if _, err := s.wallets.DebitTx(ctx, tx, stk.UserID, wallet.Entry{
				Type:        wallet.TxStakePenalty,
				Amount:      penaltyAmt,
				Description: fmt.Sprintf("Stake failed: %s", stk.Goal),
				ReferenceID: stakeID,
				LostDelta:   penaltyAmt,
			}); err != nil {
				return err
			}
		}

		penalty := &Penalty{
			PenaltyID: uuid.New().String(),
			StakeID:   stakeID,
			UserID:    stk.UserID,
			Amount:    penaltyAmt,
			Reason:    "Deadline missed",
			CreatedAt: now,
		}
		if err := s.stakes.CreatePenalty(ctx, tx, penalty); err != nil {
			return err
		}

		participants, err := s.stakes.ListParticipants(ctx, tx, stakeID)
		if err != nil {
			return err
		}
		for _, p := range participants {
			if _, err := s.wallets.CreditTx(ctx, tx, p.ParticipantID, wallet.Entry{
				Type:        wallet.TxStakeRefund,
				Amount:      p.Amount,
				Description: fmt.Sprintf("Stake refund: %s", stk.Goal),
				ReferenceID: stakeID,
			}); err != nil {
				return err
			}
		}

		if err := s.stakes.UpdateFields(ctx, tx, stakeID, map[string]interface{}{
			"status":        StatusFailed,
			"grace_ends_at": nil,
		}); err != nil {
			return err
		}

		w, err := s.wallets.LockTx(ctx, tx, stk.UserID)
		if err != nil {
			return err
		}
		if err := s.applyOwnerStats(ctx, tx, stk.UserID, w, 0, w.LongestStreak, decimal.Zero); err != nil {
			return err
		}

		stk.Status = StatusFailed
		stk.GraceEndsAt = nil
		result = &FailureResult{
			Stake:    stk,
			Penalty:  penalty,
			Refunded: stk.UserStake.Sub(penaltyAmt),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("stake_id", stakeID).
		Str("penalty", result.Penalty.Amount.String()).
		Str("refunded", result.Refunded.String()).
		Msg("stake failed")
	return result, nil
}

// Cancel voids an active stake at the owner's request. The escrowed pledge
// and every participant contribution come back as STAKE_REFUND credits; no
// penalty is taken and the owner's record is untouched.
func (s *Service) Cancel(ctx context.Context, stakeID, userID string) (*Stake, error) {
	var stk *Stake
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		stk, err = s.stakes.GetForUpdate(ctx, tx, stakeID)
		if err != nil {
			return err
		}
		if stk.UserID != userID {
			return ErrNotOwner
		}
		if stk.Status != StatusActive {
			return ErrStakeNotActive
		}

		if _, err := s.wallets.CreditTx(ctx, tx, userID, wallet.Entry{
			Type:        wallet.TxStakeRefund,
			Amount:      stk.UserStake,
			Description: fmt.Sprintf("Stake cancelled: %s", stk.Goal),
			ReferenceID: stakeID,
		}); err != nil {
			return err
		}

		participants, err := s.stakes.ListParticipants(ctx, tx, stakeID)
		if err != nil {
			return err
		}
		for _, p := range participants {
			if _, err := s.wallets.CreditTx(ctx, tx, p.ParticipantID, wallet.Entry{
				Type:        wallet.TxStakeRefund,
				Amount:      p.Amount,
				Description: fmt.Sprintf("Stake cancelled: %s", stk.Goal),
				ReferenceID: stakeID,
			}); err != nil {
				return err
			}
		}

		if stk.StakeType == TypeSocialStake {
			inv, err := s.stakes.GetOpenInvitation(ctx, tx, stakeID)
			switch {
			case err == nil:
				if err := s.stakes.UpdateInvitationStatus(ctx, tx, inv.InvitationID, InvitationExpired); err != nil {
					return err
				}
			case !errors.Is(err, ErrInvitationNotFound):
				return err
			}
		}

		if err := s.stakes.UpdateFields(ctx, tx, stakeID, map[string]interface{}{
			"status": StatusCancelled,
		}); err != nil {
			return err
		}
		stk.Status = StatusCancelled
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("stake_id", stakeID).
		Str("user_id", userID).
		Str("refunded", stk.UserStake.String()).
		Msg("stake cancelled")
	return stk, nil
}

// MarkGracePeriod moves an overdue active stake into its grace window. The
// deadline sweeper calls this; Fail takes over once the window lapses.
func (s *Service) MarkGracePeriod(ctx context.Context, stakeID string) (*Stake, error) {
	now := time.Now()
	var stk *Stake
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		stk, err = s.stakes.GetForUpdate(ctx, tx, stakeID)
		if err != nil {
			return err
		}
		if stk.Status != StatusActive {
			return ErrStakeNotActive
		}
		if !now.After(stk.Deadline) {
			return ErrDeadlineNotPassed
		}
		graceEnd := now.Add(s.graceWindow)
		if err := s.stakes.UpdateFields(ctx, tx, stakeID, map[string]interface{}{
			"status":        StatusGracePeriod,
			"grace_ends_at": graceEnd,
		}); err != nil {
			return err
		}
		stk.Status = StatusGracePeriod
		stk.GraceEndsAt = &graceEnd
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("stake_id", stakeID).Time("grace_ends_at", *stk.GraceEndsAt).Msg("stake entered grace period")
	return stk, nil
}

// applyOwnerStats recomputes streaks, completion rate and rank inside the
// settlement transaction. w is the wallet as read before this settlement's
// credits/debits.
func (s *Service) applyOwnerStats(ctx context.Context, tx *gorm.DB, userID string, w *wallet.Wallet, newStreak, longest int, earnedDelta decimal.Decimal) error {
	completed, err := s.stakes.CountByOwnerAndStatus(ctx, tx, userID, StatusCompleted)
	if err != nil {
		return err
	}
	failed, err := s.stakes.CountByOwnerAndStatus(ctx, tx, userID, StatusFailed)
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
	rank := wallet.RankFor(w.TotalEarned.Add(earnedDelta))

	return s.wallets.UpdateStatsTx(ctx, tx, userID, wallet.StatsMutation{
		CurrentStreak:  &newStreak,
		LongestStreak:  &longest,
		CompletionRate: &rate,
		Rank:           &rank,
	})
}

func newSecurityCode() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate security code: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
