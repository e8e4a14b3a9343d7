package appeal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrAppealNotFound = errors.New("appeal not found")

type AppealRepository interface {
	Create(ctx context.Context, tx *gorm.DB, a *Appeal) error
	Get(ctx context.Context, appealID string) (*Appeal, error)
	GetForUpdate(ctx context.Context, tx *gorm.DB, appealID string) (*Appeal, error)
	OpenAppealExists(ctx context.Context, tx *gorm.DB, stakeID, userID string) (bool, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, appealID string, updates map[string]interface{}) error
	ByStake(ctx context.Context, stakeID string) ([]Appeal, error)
}

type AppealRepositoryImpl struct {
	db *gorm.DB
}

func NewAppealRepository(db *gorm.DB) *AppealRepositoryImpl {
	return &AppealRepositoryImpl{db: db}
}

func (r *AppealRepositoryImpl) Create(ctx context.Context, tx *gorm.DB, a *Appeal) error {
	if err := tx.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("failed to create appeal: %w", err)
	}
	return nil
}

func (r *AppealRepositoryImpl) Get(ctx context.Context, appealID string) (*Appeal, error) {
	var a Appeal
	err := r.db.WithContext(ctx).Where("appeal_id = ?", appealID).First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAppealNotFound
		}
		return nil, fmt.Errorf("failed to get appeal: %w", err)
	}
	return &a, nil
}

func (r *AppealRepositoryImpl) GetForUpdate(ctx context.Context, tx *gorm.DB, appealID string) (*Appeal, error) {
	var a Appeal
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("appeal_id = ?", appealID).
		First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAppealNotFound
		}
		return nil, fmt.Errorf("failed to lock appeal: %w", err)
	}
	return &a, nil
}

func (r *AppealRepositoryImpl) OpenAppealExists(ctx context.Context, tx *gorm.DB, stakeID, userID string) (bool, error) {
	var n int64
	err := tx.WithContext(ctx).Model(&Appeal{}).
		Where("stake_id = ? AND user_id = ? AND status IN ?", stakeID, userID,
			[]string{StatusPending, StatusUnderReview}).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("failed to check open appeals: %w", err)
	}
	return n > 0, nil
}

func (r *AppealRepositoryImpl) UpdateFields(ctx context.Context, tx *gorm.DB, appealID string, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()

	result := tx.WithContext(ctx).Model(&Appeal{}).
		Where("appeal_id = ?", appealID).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update appeal: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAppealNotFound
	}
	return nil
}

func (r *AppealRepositoryImpl) ByStake(ctx context.Context, stakeID string) ([]Appeal, error) {
	var as []Appeal
	err := r.db.WithContext(ctx).
		Where("stake_id = ?", stakeID).
		Order("created_at DESC").
		Find(&as).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list appeals: %w", err)
	}
	return as, nil
}
