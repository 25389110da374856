package service

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"ContractSync/internal/model"
	"ContractSync/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	maxAmendments      = 3
	minDeltaPercent    = 1
	maxDeltaPercent    = 15
	minMonthsAfter     = 2
	maxMonthsAfter     = 12
	amendmentLoadChunk = 500
)

// AmendmentService 为尚无补充协议的合同生成合成数据，仅用于演示，所有行都标记 synthetic
type AmendmentService struct {
	contracts  repository.ContractRepository
	amendments repository.AmendmentRepository
	logger     *logrus.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func NewAmendmentService(contracts repository.ContractRepository, amendments repository.AmendmentRepository, logger *logrus.Logger) *AmendmentService {
	seed := uint64(time.Now().UnixNano())
	return NewAmendmentServiceWithRand(contracts, amendments, rand.New(rand.NewPCG(seed, seed>>1|1)), logger)
}

// NewAmendmentServiceWithRand 注入随机源（测试用）
func NewAmendmentServiceWithRand(contracts repository.ContractRepository, amendments repository.AmendmentRepository, rng *rand.Rand, logger *logrus.Logger) *AmendmentService {
	return &AmendmentService{
		contracts:  contracts,
		amendments: amendments,
		logger:     logger,
		rng:        rng,
	}
}

// CreateForContracts 只处理给定合同中还没有补充协议的，返回生成行数
func (s *AmendmentService) CreateForContracts(ctx context.Context, ids []uint64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	pending, err := s.contracts.ListIDsWithoutAmendments(ctx, ids)
	if err != nil {
		return 0, err
	}
	return s.create(ctx, pending)
}

// CreateAll 全表扫描
func (s *AmendmentService) CreateAll(ctx context.Context) (int, error) {
	pending, err := s.contracts.ListIDsWithoutAmendments(ctx, nil)
	if err != nil {
		return 0, err
	}
	return s.create(ctx, pending)
}

func (s *AmendmentService) create(ctx context.Context, ids []uint64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	s.logger.WithField("contracts", len(ids)).Warn("生成合成补充协议（非真实数据，已标记 synthetic）")

	created := 0
	for start := 0; start < len(ids); start += amendmentLoadChunk {
		end := min(start+amendmentLoadChunk, len(ids))
		contracts, err := s.contracts.ListByIDs(ctx, ids[start:end])
		if err != nil {
			return created, err
		}
		for _, c := range contracts {
			if err := ctx.Err(); err != nil {
				return created, err
			}
			rows := s.synthesize(c)
			if len(rows) == 0 {
				continue
			}
			if err := s.amendments.CreateBatch(ctx, rows); err != nil {
				s.logger.WithError(err).WithField("contract_id", c.ID).Warn("补充协议写入失败，跳过")
				continue
			}
			created += len(rows)
		}
	}
	s.logger.WithField("created", created).Info("合成补充协议完成")
	return created, nil
}

// synthesize 1~3 条，金额为原值的 ±1%~15%，日期在签订后 2~12 个月；金额为零的合同不生成
func (s *AmendmentService) synthesize(c *model.Contract) []*model.Amendment {
	if c.Amount.IsZero() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 1 + s.rng.IntN(maxAmendments)
	rows := make([]*model.Amendment, 0, n)
	for i := 0; i < n; i++ {
		pct := minDeltaPercent + s.rng.IntN(maxDeltaPercent-minDeltaPercent+1)
		if s.rng.IntN(2) == 0 {
			pct = -pct
		}
		months := minMonthsAfter + s.rng.IntN(maxMonthsAfter-minMonthsAfter+1)
		rows = append(rows, &model.Amendment{
			ContractID:    c.ID,
			Amount:        c.Amount.Mul(decimal.NewFromInt(int64(pct))).Div(decimal.NewFromInt(100)).Round(2),
			EffectiveDate: c.EffectiveDate.AddDate(0, months, 0).UTC(),
			Synthetic:     true,
		})
	}
	return rows
}
