package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ContractSync/internal/model"
	"ContractSync/internal/repository"

	"github.com/sirupsen/logrus"
)

// SupplierService 从合同中提取供应商登记
type SupplierService struct {
	contracts repository.ContractRepository
	suppliers repository.SupplierRepository
	logger    *logrus.Logger
	now       func() time.Time
}

func NewSupplierService(contracts repository.ContractRepository, suppliers repository.SupplierRepository, logger *logrus.Logger) *SupplierService {
	return &SupplierService{
		contracts: contracts,
		suppliers: suppliers,
		logger:    logger,
		now:       time.Now,
	}
}

// ExtractForContracts 处理给定合同引用的供应商，返回新建数量
func (s *SupplierService) ExtractForContracts(ctx context.Context, ids []uint64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	refs, err := s.contracts.ListSupplierRefs(ctx, ids)
	if err != nil {
		return 0, err
	}
	return s.register(ctx, refs)
}

// ExtractAll 全表扫描，独立命令使用
func (s *SupplierService) ExtractAll(ctx context.Context) (int, error) {
	refs, err := s.contracts.ListSupplierRefs(ctx, nil)
	if err != nil {
		return 0, err
	}
	return s.register(ctx, refs)
}

func (s *SupplierService) register(ctx context.Context, refs []repository.SupplierRef) (int, error) {
	created := 0
	seenAt := s.now()
	var failed int
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		ok, err := s.registerOne(ctx, ref, seenAt)
		if err != nil {
			failed++
			s.logger.WithError(err).WithField("supplier", ref.Name).Warn("供应商登记失败，跳过")
			continue
		}
		if ok {
			created++
		}
	}
	s.logger.WithFields(logrus.Fields{
		"refs":    len(refs),
		"created": created,
		"failed":  failed,
	}).Info("供应商提取完成")
	if failed > 0 && failed == len(refs) {
		return created, fmt.Errorf("全部%d个供应商登记失败", failed)
	}
	return created, nil
}

// registerOne 先按名称，再按税号（换了名称的同一主体），都没有时插入
func (s *SupplierService) registerOne(ctx context.Context, ref repository.SupplierRef, seenAt time.Time) (bool, error) {
	existing, err := s.suppliers.FindByName(ctx, ref.Name)
	if err == nil {
		return false, s.suppliers.RefreshMetadata(ctx, existing, ref.ICO, seenAt)
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return false, err
	}

	if ref.ICO != nil && *ref.ICO != "" {
		existing, err = s.suppliers.FindByICO(ctx, *ref.ICO)
		if err == nil {
			s.logger.WithFields(logrus.Fields{
				"ico":      *ref.ICO,
				"name":     ref.Name,
				"existing": existing.Name,
			}).Debug("税号已登记在其他名称下")
			return false, s.suppliers.RefreshMetadata(ctx, existing, nil, seenAt)
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return false, err
		}
	}

	at := seenAt.UTC()
	return s.suppliers.InsertIgnore(ctx, &model.Supplier{
		Name:       ref.Name,
		ICO:        ref.ICO,
		LastSeenAt: &at,
	})
}
