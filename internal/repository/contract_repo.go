package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ContractSync/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// idChunkSize 每条 IN 查询最多携带的ID数
const idChunkSize = 500

// matchWindow 组合匹配时签订日期允许的误差
const matchWindow = 24 * time.Hour

// ReconcileResult 入库结果
type ReconcileResult struct {
	ID    uint64
	IsNew bool
}

// SupplierRef 合同中引用的供应商
type SupplierRef struct {
	Name string  `gorm:"column:supplier"`
	ICO  *string `gorm:"column:supplier_ico"`
}

// ContractRepository 合同仓储
type ContractRepository interface {
	// Lookup 先按登记册ID，再按 标题+机关+供应商+日期±1天 查找，不存在返回 nil
	Lookup(ctx context.Context, c *model.Contract) (*model.Contract, error)
	// Reconcile 存在则原地更新，否则插入；重复执行结果相同
	Reconcile(ctx context.Context, c *model.Contract) (ReconcileResult, error)
	ListByIDs(ctx context.Context, ids []uint64) ([]*model.Contract, error)
	// ListSupplierRefs ids 为 nil 时返回全部合同引用的供应商
	ListSupplierRefs(ctx context.Context, ids []uint64) ([]SupplierRef, error)
	// ListIDsWithoutAmendments ids 为 nil 时在全部合同中查找
	ListIDsWithoutAmendments(ctx context.Context, ids []uint64) ([]uint64, error)
}

type contractRepository struct {
	store Store
	db    *gorm.DB
}

func NewContractRepository(store Store) ContractRepository {
	return &contractRepository{store: store, db: store.DB()}
}

func (r *contractRepository) Lookup(ctx context.Context, c *model.Contract) (*model.Contract, error) {
	db := r.db.WithContext(ctx)
	var existing model.Contract
	if c.ExternalID != nil {
		err := db.Where("external_id = ?", *c.ExternalID).First(&existing).Error
		if err == nil {
			return &existing, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("按登记册ID查询合同失败: %w", err)
		}
	}

	q := db.Where("title = ? AND authority = ? AND supplier = ? AND effective_date BETWEEN ? AND ?",
		c.Title, c.Authority, c.Supplier,
		c.EffectiveDate.Add(-matchWindow).UTC(), c.EffectiveDate.Add(matchWindow).UTC())
	if c.ExternalID != nil {
		// 已带登记册ID的行属于另一份合同
		q = q.Where("external_id IS NULL")
	}
	err := q.Order("id ASC").First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("按组合条件查询合同失败: %w", err)
	}
	return &existing, nil
}

func (r *contractRepository) Reconcile(ctx context.Context, c *model.Contract) (ReconcileResult, error) {
	c.EffectiveDate = c.EffectiveDate.UTC()
	existing, err := r.Lookup(ctx, c)
	if err != nil {
		return ReconcileResult{}, err
	}

	if existing == nil {
		if c.ContractUUID == "" {
			c.ContractUUID = uuid.NewString() // 生成全局唯一ID
		}
		if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
			return ReconcileResult{}, fmt.Errorf("保存合同失败: %w, title: %s", err, c.Title)
		}
		return ReconcileResult{ID: c.ID, IsNew: true}, nil
	}

	updates := map[string]interface{}{
		"title":             c.Title,
		"amount":            c.Amount,
		"category":          c.Category,
		"effective_date":    c.EffectiveDate,
		"supplier":          c.Supplier,
		"supplier_ico":      c.SupplierICO,
		"authority":         c.Authority,
		"authority_address": c.AuthorityAddress,
		"procedure_type":    c.ProcedureType,
		"parties":           c.Parties,
		"updated_at":        time.Now().UTC(),
	}
	if c.ExternalID != nil {
		updates["external_id"] = *c.ExternalID
	}
	// 坐标只在原记录缺失时写入
	if !existing.HasCoordinates() && c.HasCoordinates() {
		updates["lat"] = *c.Lat
		updates["lng"] = *c.Lng
	}
	if err := r.db.WithContext(ctx).Model(&model.Contract{}).
		Where("id = ?", existing.ID).
		Updates(updates).Error; err != nil {
		return ReconcileResult{}, fmt.Errorf("更新合同失败: %w, id: %d", err, existing.ID)
	}
	c.ID = existing.ID
	c.ContractUUID = existing.ContractUUID
	c.CreatedAt = existing.CreatedAt
	return ReconcileResult{ID: existing.ID, IsNew: false}, nil
}

func (r *contractRepository) ListByIDs(ctx context.Context, ids []uint64) ([]*model.Contract, error) {
	var out []*model.Contract
	for _, part := range chunk(ids, idChunkSize) {
		var list []*model.Contract
		if err := r.db.WithContext(ctx).Where("id IN ?", part).Order("id ASC").Find(&list).Error; err != nil {
			return nil, fmt.Errorf("查询合同失败: %w", err)
		}
		out = append(out, list...)
	}
	return out, nil
}

func (r *contractRepository) ListSupplierRefs(ctx context.Context, ids []uint64) ([]SupplierRef, error) {
	table, err := r.store.ResolveTable(ctx, model.Contract{}.TableName())
	if err != nil {
		return nil, err
	}
	base := fmt.Sprintf("SELECT DISTINCT supplier, supplier_ico FROM %s WHERE supplier <> ?", quoteIdent(table))

	seen := make(map[string]bool)
	var out []SupplierRef
	collect := func(refs []SupplierRef) {
		for _, ref := range refs {
			key := ref.Name + "\x00"
			if ref.ICO != nil {
				key += *ref.ICO
			}
			if ref.Name == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, ref)
		}
	}

	if ids == nil {
		var refs []SupplierRef
		if err := r.store.Raw(ctx, &refs, base+" ORDER BY supplier", model.Unspecified); err != nil {
			return nil, fmt.Errorf("查询供应商引用失败: %w", err)
		}
		collect(refs)
		return out, nil
	}
	for _, part := range chunk(ids, idChunkSize) {
		var refs []SupplierRef
		if err := r.store.Raw(ctx, &refs, base+" AND id IN ? ORDER BY supplier", model.Unspecified, part); err != nil {
			return nil, fmt.Errorf("查询供应商引用失败: %w", err)
		}
		collect(refs)
	}
	return out, nil
}

func (r *contractRepository) ListIDsWithoutAmendments(ctx context.Context, ids []uint64) ([]uint64, error) {
	contracts, err := r.store.ResolveTable(ctx, model.Contract{}.TableName())
	if err != nil {
		return nil, err
	}
	amendments, err := r.store.ResolveTable(ctx, model.Amendment{}.TableName())
	if err != nil {
		return nil, err
	}
	base := fmt.Sprintf(
		"SELECT c.id FROM %s c WHERE NOT EXISTS (SELECT 1 FROM %s a WHERE a.contract_id = c.id)",
		quoteIdent(contracts), quoteIdent(amendments))

	var out []uint64
	if ids == nil {
		if err := r.store.Raw(ctx, &out, base+" ORDER BY c.id"); err != nil {
			return nil, fmt.Errorf("查询无补充协议的合同失败: %w", err)
		}
		return out, nil
	}
	for _, part := range chunk(ids, idChunkSize) {
		var found []uint64
		if err := r.store.Raw(ctx, &found, base+" AND c.id IN ? ORDER BY c.id", part); err != nil {
			return nil, fmt.Errorf("查询无补充协议的合同失败: %w", err)
		}
		out = append(out, found...)
	}
	return out, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
