package extension

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

type ExtensionRepository interface {
	Create(ctx context.Context, tx *gorm.DB, ext *Extension) error
	ByStake(ctx context.Context, stakeID string) ([]Extension, error)
}

type ExtensionRepositoryImpl struct {
	db *gorm.DB
}

func NewExtensionRepository(db *gorm.DB) *ExtensionRepositoryImpl {
	return &ExtensionRepositoryImpl{db: db}
}

func (r *ExtensionRepositoryImpl) Create(ctx context.Context, tx *gorm.DB, ext *Extension) error {
	if err := tx.WithContext(ctx).Create(ext).Error; err != nil {
		return fmt.Errorf("failed to create extension: %w", err)
	}
	return nil
}

func (r *ExtensionRepositoryImpl) ByStake(ctx context.Context, stakeID string) ([]Extension, error) {
	var exts []Extension
	err := r.db.WithContext(ctx).
		Where("stake_id = ?", stakeID).
		Order("created_at ASC").
		Find(&exts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list extensions: %w", err)
	}
	return exts, nil
}
