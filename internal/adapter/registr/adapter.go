package registr

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ContractSync/internal/adapter"
	"ContractSync/internal/config"
	"ContractSync/internal/dump"
	"ContractSync/internal/extract"
	"ContractSync/internal/interfaces"
	"ContractSync/internal/model"
	"ContractSync/internal/party"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// Name 注册表中的数据源名称
const Name = "smlouvy"

func init() {
	adapter.Register(Name, func(cfg *config.Config, logger *logrus.Logger) (interfaces.RecordSource, error) {
		return NewRegistrAdapter(dump.NewFetcher(&cfg.Dump, logger), party.NewResolver(logger), logger), nil
	})
}

// Fetcher 月度数据包下载
type Fetcher interface {
	Fetch(ctx context.Context, p model.Period) ([]byte, error)
}

// Adapter 合同登记册（registr smluv）的月度XML数据包
type Adapter struct {
	fetcher    Fetcher
	resolver   *party.Resolver
	strategies []extract.Strategy
	logger     *logrus.Logger
}

func NewRegistrAdapter(fetcher Fetcher, resolver *party.Resolver, logger *logrus.Logger) *Adapter {
	return &Adapter{
		fetcher:    fetcher,
		resolver:   resolver,
		strategies: extract.DefaultStrategies(),
		logger:     logger,
	}
}

// GetName ========== 实现RecordSource接口 ==========
func (a *Adapter) GetName() string {
	return "Registr smluv"
}

func (a *Adapter) FetchRecords(ctx context.Context, p model.Period) ([]extract.Record, error) {
	data, err := a.fetcher.Fetch(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("获取%s数据包失败: %w", p, err)
	}
	tree, err := extract.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("解析%s数据包失败: %w", p, err)
	}
	recs, strategy := extract.Records(tree, a.strategies...)
	if len(recs) == 0 {
		a.logger.WithField("period", p.String()).Warn("数据包中未找到合同记录，结构可能已变化")
		return nil, nil
	}
	a.logger.WithFields(logrus.Fields{
		"period":   p.String(),
		"records":  len(recs),
		"strategy": strategy,
	}).Info("数据包解析完成")
	return recs, nil
}

// ConvertToDBModel 缺少或无法解析日期时取数据包月份第一天
func (a *Adapter) ConvertToDBModel(rec extract.Record, p model.Period) (*model.Contract, *interfaces.Parties, error) {
	res := a.resolver.Resolve(rec)

	title, ok := rec.Field("predmet")
	if !ok {
		if !res.Resolved() {
			return nil, nil, interfaces.ErrDiscarded
		}
		title = model.Unspecified
	}

	c := &model.Contract{
		ContractUUID:     uuid.NewString(),
		ExternalID:       optional(a.firstField(rec, 64, "external_id", []string{"identifikator", "idSmlouvy"}, []string{"idSmlouvy"})),
		Title:            a.truncateString(title, 512, "title"),
		Amount:           a.parseAmount(rec),
		Category:         a.firstField(rec, 128, "category", []string{"kategorie"}, []string{"typSmlouvy"}),
		EffectiveDate:    a.effectiveDate(rec, p),
		Supplier:         a.truncateString(res.Supplier, 256, "supplier"),
		SupplierICO:      optional(a.truncateString(strings.ReplaceAll(res.SupplierICO, " ", ""), 16, "supplier_ico")),
		Authority:        a.truncateString(res.Authority, 256, "authority"),
		AuthorityAddress: optional(a.truncateString(res.AuthorityAddress, 512, "authority_address")),
		ProcedureType:    a.firstField(rec, 128, "procedure_type", []string{"druhRizeni"}, []string{"typRizeni"}),
		Parties:          a.buildParties(res),
	}
	if res.Degraded {
		a.logger.WithFields(logrus.Fields{
			"external_id": derefOr(c.ExternalID, ""),
			"supplier":    c.Supplier,
			"authority":   c.Authority,
		}).Warn("合同方角色按字典序兜底分配")
	}
	return c, &interfaces.Parties{
		Authority:        res.Authority,
		AuthorityAddress: res.AuthorityAddress,
		Supplier:         res.Supplier,
		Degraded:         res.Degraded,
	}, nil
}

// parseAmount 依次取不含税金额、含税金额、外币金额；无法解析时记 0
func (a *Adapter) parseAmount(rec extract.Record) decimal.Decimal {
	raw, ok := rec.FirstField(
		[]string{"hodnotaBezDph"},
		[]string{"hodnotaVcetneDph"},
		[]string{"ciziMena", "hodnota"},
	)
	if !ok {
		return decimal.Zero
	}
	norm := strings.NewReplacer(" ", "", "\u00a0", "", ",", ".").Replace(raw)
	d, err := decimal.NewFromString(norm)
	if err != nil {
		a.logger.Warnf("解析金额失败（值：%s），按0处理", raw)
		return decimal.Zero
	}
	return d.Round(2)
}

func (a *Adapter) effectiveDate(rec extract.Record, p model.Period) time.Time {
	raw, _ := rec.FirstField([]string{"datumUzavreni"}, []string{"casZverejneni"})
	return a.parseTimeStr(raw, "datumUzavreni", p.Start())
}

func (a *Adapter) firstField(rec extract.Record, maxLen int, fieldName string, paths ...[]string) string {
	v, _ := rec.FirstField(paths...)
	return a.truncateString(v, maxLen, fieldName)
}

// buildParties 候选方评分明细，写入 parties 列用于审计
func (a *Adapter) buildParties(res party.Resolution) datatypes.JSON {
	audit := map[string]interface{}{
		"supplier":   res.Supplier,
		"authority":  res.Authority,
		"degraded":   res.Degraded,
		"candidates": res.Candidates,
	}
	jsonBytes, err := json.Marshal(audit)
	if err != nil {
		a.logger.WithError(err).Warn("序列化合同方明细失败")
		return datatypes.JSON("{}")
	}
	return jsonBytes
}

// 工具函数：截断超长字符串（按字符）
func (a *Adapter) truncateString(s string, maxLen int, fieldName string) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	a.logger.Warnf("字段[%s]超长（长度%d），截断为%d字符", fieldName, len(r), maxLen)
	return string(r[:maxLen])
}

// 仅日期的格式
var dateFormats = []string{
	"2006-01-02",
	"2006-01-02Z07:00",
	"02.01.2006",
}

// 带时间的格式
var timeFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// 工具函数：解析日期，统一为UTC；仅日期的值取当天零点，空值或无法解析时返回 fallback
func (a *Adapter) parseTimeStr(timeStr string, fieldName string, fallback time.Time) time.Time {
	timeStr = strings.TrimSpace(timeStr)
	if timeStr == "" {
		a.logger.Warnf("字段[%s]为空，使用数据包月份兜底", fieldName)
		return fallback
	}
	for _, format := range dateFormats {
		if t, err := time.Parse(format, timeStr); err == nil {
			return dayOf(t)
		}
	}
	for _, format := range timeFormats {
		if t, err := time.Parse(format, timeStr); err == nil {
			return t.UTC()
		}
	}
	a.logger.Warnf("解析[%s]失败（值：%s），使用数据包月份兜底", fieldName, timeStr)
	return fallback
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}
