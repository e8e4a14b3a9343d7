package stake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrStakeNotFound      = errors.New("stake not found")
	ErrInvitationNotFound = errors.New("invitation not found")
	ErrPenaltyNotFound    = errors.New("penalty not found")
)

type StakeRepository interface {
	Get(ctx context.Context, stakeID string) (*Stake, error)
	GetForUpdate(ctx context.Context, tx *gorm.DB, stakeID string) (*Stake, error)
	Create(ctx context.Context, tx *gorm.DB, stk *Stake) error
	UpdateFields(ctx context.Context, tx *gorm.DB, stakeID string, updates map[string]interface{}) error
	CountByOwnerAndStatus(ctx context.Context, tx *gorm.DB, userID string, status string) (int64, error)

	ListParticipants(ctx context.Context, tx *gorm.DB, stakeID string) ([]Participant, error)
	ParticipantExists(ctx context.Context, tx *gorm.DB, stakeID, userID string) (bool, error)
	CreateParticipant(ctx context.Context, tx *gorm.DB, p *Participant) error

	CreateInvitation(ctx context.Context, tx *gorm.DB, inv *Invitation) error
	GetOpenInvitation(ctx context.Context, tx *gorm.DB, stakeID string) (*Invitation, error)
	UpdateInvitationStatus(ctx context.Context, tx *gorm.DB, invitationID, status string) error

	CreateReward(ctx context.Context, tx *gorm.DB, rw *Reward) error
	RewardsByStake(ctx context.Context, stakeID string) ([]Reward, error)
	CreatePenalty(ctx context.Context, tx *gorm.DB, p *Penalty) error
	PenaltyByStake(ctx context.Context, stakeID string) (*Penalty, error)
	DeletePenalty(ctx context.Context, tx *gorm.DB, penaltyID string) error
}

type StakeRepositoryImpl struct {
	db *gorm.DB
}

func NewStakeRepository(db *gorm.DB) *StakeRepositoryImpl {
	return &StakeRepositoryImpl{db: db}
}

func (r *StakeRepositoryImpl) Get(ctx context.Context, stakeID string) (*Stake, error) {
	var stk Stake
	err := r.db.WithContext(ctx).Where("stake_id = ?", stakeID).First(&stk).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStakeNotFound
		}
		return nil, fmt.Errorf("failed to get stake: %w", err)
	}
	return &stk, nil
}

// GetForUpdate locks the stake row for the rest of the transaction so two
// concurrent joins (or a join racing a completion) serialize on it.
func (r *StakeRepositoryImpl) GetForUpdate(ctx context.Context, tx *gorm.DB, stakeID string) (*Stake, error) {
	var stk Stake
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("stake_id = ?", stakeID).
		First(&stk).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStakeNotFound
		}
		return nil, fmt.Errorf("failed to lock stake: %w", err)
	}
	return &stk, nil
}

func (r *StakeRepositoryImpl) Create(ctx context.Context, tx *gorm.DB, stk *Stake) error {
	if err := tx.WithContext(ctx).Create(stk).Error; err != nil {
		return fmt.Errorf("failed to create stake: %w", err)
	}
	return nil
}

func (r *StakeRepositoryImpl) UpdateFields(ctx context.Context, tx *gorm.DB, stakeID string, updates map[string]interface{}) error {
	updates["version"] = gorm.Expr("version + 1")
	updates["updated_at"] = time.Now()

	result := tx.WithContext(ctx).Model(&Stake{}).
		Where("stake_id = ?", stakeID).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update stake: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStakeNotFound
	}
	return nil
}

func (r *StakeRepositoryImpl) CountByOwnerAndStatus(ctx context.Context, tx *gorm.DB, userID string, status string) (int64, error) {
	var n int64
	err := tx.WithContext(ctx).Model(&Stake{}).
		Where("user_id = ? AND status = ?", userID, status).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count stakes: %w", err)
	}
	return n, nil
}

func (r *StakeRepositoryImpl) ListParticipants(ctx context.Context, tx *gorm.DB, stakeID string) ([]Participant, error) {
	var ps []Participant
	err := tx.WithContext(ctx).
		Where("stake_id = ?", stakeID).
		Order("joined_at ASC").
		Find(&ps).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	return ps, nil
}

func (r *StakeRepositoryImpl) ParticipantExists(ctx context.Context, tx *gorm.DB, stakeID, userID string) (bool, error) {
	var n int64
	err := tx.WithContext(ctx).Model(&Participant{}).
		Where("stake_id = ? AND participant_id = ?", stakeID, userID).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("failed to check participant: %w", err)
	}
	return n > 0, nil
}

func (r *StakeRepositoryImpl) CreateParticipant(ctx context.Context, tx *gorm.DB, p *Participant) error {
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("failed to create participant: %w", err)
	}
	return nil
}

func (r *StakeRepositoryImpl) CreateInvitation(ctx context.Context, tx *gorm.DB, inv *Invitation) error {
	if err := tx.WithContext(ctx).Create(inv).Error; err != nil {
		return fmt.Errorf("failed to create invitation: %w", err)
	}
	return nil
}

// GetOpenInvitation returns the stake's joinable invitation. The code stays
// live across joins (PENDING flips to ACCEPTED on the first one); only
// expiry or stake settlement closes it.
func (r *StakeRepositoryImpl) GetOpenInvitation(ctx context.Context, tx *gorm.DB, stakeID string) (*Invitation, error) {
	var inv Invitation
	err := tx.WithContext(ctx).
		Where("stake_id = ? AND status IN ?", stakeID,
			[]string{InvitationPending, InvitationAccepted}).
		First(&inv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvitationNotFound
		}
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	return &inv, nil
}

func (r *StakeRepositoryImpl) UpdateInvitationStatus(ctx context.Context, tx *gorm.DB, invitationID, status string) error {
	result := tx.WithContext(ctx).Model(&Invitation{}).
		Where("invitation_id = ?", invitationID).
		Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("failed to update invitation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrInvitationNotFound
	}
	return nil
}

func (r *StakeRepositoryImpl) CreateReward(ctx context.Context, tx *gorm.DB, rw *Reward) error {
	if err := tx.WithContext(ctx).Create(rw).Error; err != nil {
		return fmt.Errorf("failed to create reward: %w", err)
	}
	return nil
}

func (r *StakeRepositoryImpl) RewardsByStake(ctx context.Context, stakeID string) ([]Reward, error) {
	var rws []Reward
	err := r.db.WithContext(ctx).
		Where("stake_id = ?", stakeID).
		Order("created_at ASC").
		Find(&rws).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list rewards: %w", err)
	}
	return rws, nil
}

func (r *StakeRepositoryImpl) CreatePenalty(ctx context.Context, tx *gorm.DB, p *Penalty) error {
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("failed to create penalty: %w", err)
	}
	return nil
}

func (r *StakeRepositoryImpl) PenaltyByStake(ctx context.Context, stakeID string) (*Penalty, error) {
	var p Penalty
	err := r.db.WithContext(ctx).Where("stake_id = ?", stakeID).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPenaltyNotFound
		}
		return nil, fmt.Errorf("failed to get penalty: %w", err)
	}
	return &p, nil
}

func (r *StakeRepositoryImpl) DeletePenalty(ctx context.Context, tx *gorm.DB, penaltyID string) error {
	result := tx.WithContext(ctx).
		Where("penalty_id = ?", penaltyID).
		Delete(&Penalty{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete penalty: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrPenaltyNotFound
	}
	return nil
}
