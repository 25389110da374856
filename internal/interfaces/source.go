package interfaces

import (
	"context"
	"errors"

	"ContractSync/internal/config"
	"ContractSync/internal/extract"
	"ContractSync/internal/model"

	"github.com/sirupsen/logrus"
)

// ErrDiscarded 记录缺少标题且双方都无法识别，不入库
var ErrDiscarded = errors.New("record discarded")

// RecordSource 合同数据源必须实现的核心接口
type RecordSource interface {
	GetName() string                                                                        // 数据源名称
	FetchRecords(ctx context.Context, p model.Period) ([]extract.Record, error)             // 拉取并拆分一个月的数据包
	ConvertToDBModel(rec extract.Record, p model.Period) (*model.Contract, *Parties, error) // 转换为数据库模型，p 为记录所属数据包
}

// Parties 转换时识别出的合同方，供地理编码使用
type Parties struct {
	Authority        string
	AuthorityAddress string
	Supplier         string
	Degraded         bool
}

// Factory 数据源工厂函数签名
type Factory func(cfg *config.Config, logger *logrus.Logger) (RecordSource, error)
