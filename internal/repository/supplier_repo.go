package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ContractSync/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SupplierRepository 供应商仓储
type SupplierRepository interface {
	FindByName(ctx context.Context, name string) (*model.Supplier, error)
	FindByICO(ctx context.Context, ico string) (*model.Supplier, error)
	// RefreshMetadata 更新最近出现时间，税号缺失时补上
	RefreshMetadata(ctx context.Context, s *model.Supplier, ico *string, seenAt time.Time) error
	// InsertIgnore 名称或税号冲突时什么也不做，返回是否真正插入
	InsertIgnore(ctx context.Context, s *model.Supplier) (bool, error)
}

type supplierRepository struct {
	db *gorm.DB
}

func NewSupplierRepository(db *gorm.DB) SupplierRepository {
	return &supplierRepository{db: db}
}

func (r *supplierRepository) FindByName(ctx context.Context, name string) (*model.Supplier, error) {
	return r.findOne(ctx, "name = ?", name)
}

func (r *supplierRepository) FindByICO(ctx context.Context, ico string) (*model.Supplier, error) {
	return r.findOne(ctx, "ico = ?", ico)
}

func (r *supplierRepository) findOne(ctx context.Context, query string, arg interface{}) (*model.Supplier, error) {
	var s model.Supplier
	err := r.db.WithContext(ctx).Where(query, arg).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询供应商失败: %w", err)
	}
	return &s, nil
}

func (r *supplierRepository) RefreshMetadata(ctx context.Context, s *model.Supplier, ico *string, seenAt time.Time) error {
	updates := map[string]interface{}{
		"last_seen_at": seenAt.UTC(),
		"updated_at":   time.Now().UTC(),
	}
	if s.ICO == nil && ico != nil {
		updates["ico"] = *ico
	}
	if err := r.db.WithContext(ctx).Model(&model.Supplier{}).Where("id = ?", s.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("更新供应商信息失败: %w, id: %d", err, s.ID)
	}
	return nil
}

func (r *supplierRepository) InsertIgnore(ctx context.Context, s *model.Supplier) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(s)
	if res.Error != nil {
		return false, fmt.Errorf("保存供应商失败: %w, name: %s", res.Error, s.Name)
	}
	return res.RowsAffected > 0, nil
}
