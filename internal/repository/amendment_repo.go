package repository

import (
	"context"
	"fmt"

	"ContractSync/internal/model"

	"gorm.io/gorm"
)

// AmendmentRepository 补充协议仓储，只增不改
type AmendmentRepository interface {
	CreateBatch(ctx context.Context, rows []*model.Amendment) error
	CountByContract(ctx context.Context, contractID uint64) (int64, error)
}

type amendmentRepository struct {
	db *gorm.DB
}

func NewAmendmentRepository(db *gorm.DB) AmendmentRepository {
	return &amendmentRepository{db: db}
}

func (r *amendmentRepository) CreateBatch(ctx context.Context, rows []*model.Amendment) error {
	if len(rows) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Omit("Contract").Create(rows).Error; err != nil {
		return fmt.Errorf("保存补充协议失败: %w, contract_id: %d", err, rows[0].ContractID)
	}
	return nil
}

func (r *amendmentRepository) CountByContract(ctx context.Context, contractID uint64) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.Amendment{}).Where("contract_id = ?", contractID).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
