package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ContractSync/internal/checkpoint"
	"ContractSync/internal/config"
	"ContractSync/internal/extract"
	"ContractSync/internal/geocode"
	"ContractSync/internal/interfaces"
	"ContractSync/internal/metrics"
	"ContractSync/internal/model"
	"ContractSync/internal/notify"
	"ContractSync/internal/repository"

	"github.com/sirupsen/logrus"
)

// Phase 编排器所处阶段
type Phase string

const (
	PhaseIdle                      Phase = "idle"
	PhaseFetchingMonth             Phase = "fetching_month"
	PhaseExtractingRecords         Phase = "extracting_records"
	PhaseProcessingBatch           Phase = "processing_batch"
	PhaseExtractingDerivedEntities Phase = "extracting_derived_entities"
	PhaseMonthComplete             Phase = "month_complete"
	PhaseRunComplete               Phase = "run_complete"
)

// ErrRunInProgress 已有一次运行未结束
var ErrRunInProgress = errors.New("sync run already in progress")

// ErrCheckpointSave 断点写盘失败，是唯一会中止运行的错误
var ErrCheckpointSave = errors.New("checkpoint save failed")

// RunSummary 一次运行的结果
type RunSummary = notify.Summary

// RunOptions Months 为 0 时使用配置值
type RunOptions struct {
	Reset  bool
	Months int
}

// CheckpointStore 断点读写
type CheckpointStore interface {
	Load(reset bool) *checkpoint.State
	Save(st *checkpoint.State) error
}

// Locator 坐标解析
type Locator interface {
	Lookup(ctx context.Context, address, authority string) geocode.Result
}

// Status 供状态接口展示
type Status struct {
	Phase   Phase         `json:"phase"`
	Running bool          `json:"running"`
	Period  *model.Period `json:"period,omitempty"`
	Batch   int           `json:"batch"`
	Last    *RunSummary   `json:"last,omitempty"`
}

// SyncDeps 编排器依赖
type SyncDeps struct {
	Source      interfaces.RecordSource
	Checkpoints CheckpointStore
	Contracts   repository.ContractRepository
	Locator     Locator
	Suppliers   *SupplierService
	Amendments  *AmendmentService
	Publisher   notify.Publisher
	Metrics     *metrics.Registry
}

// SyncService 按月、按批次顺序执行同步，每批之后写断点
type SyncService struct {
	cfg         *config.SyncConfig
	source      interfaces.RecordSource
	checkpoints CheckpointStore
	contracts   repository.ContractRepository
	locator     Locator
	suppliers   *SupplierService
	amendments  *AmendmentService
	publisher   notify.Publisher
	metrics     *metrics.Registry
	logger      *logrus.Logger
	now         func() time.Time

	runMu sync.Mutex
	runs  sync.WaitGroup

	mu     sync.RWMutex
	status Status
}

func NewSyncService(cfg *config.SyncConfig, deps SyncDeps, logger *logrus.Logger) *SyncService {
	if deps.Publisher == nil {
		deps.Publisher = notify.NopPublisher{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewRegistry()
	}
	return &SyncService{
		cfg:         cfg,
		source:      deps.Source,
		checkpoints: deps.Checkpoints,
		contracts:   deps.Contracts,
		locator:     deps.Locator,
		suppliers:   deps.Suppliers,
		amendments:  deps.Amendments,
		publisher:   deps.Publisher,
		metrics:     deps.Metrics,
		logger:      logger,
		now:         time.Now,
		status:      Status{Phase: PhaseIdle},
	}
}

// Run 同步执行一次完整运行；已有运行时返回 ErrRunInProgress
func (s *SyncService) Run(ctx context.Context, opts RunOptions) (*RunSummary, error) {
	if !s.runMu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer s.runMu.Unlock()
	return s.run(ctx, opts)
}

// Start 后台执行，立即返回
func (s *SyncService) Start(ctx context.Context, opts RunOptions) error {
	if !s.runMu.TryLock() {
		return ErrRunInProgress
	}
	s.runs.Go(func() {
		defer s.runMu.Unlock()
		if _, err := s.run(ctx, opts); err != nil {
			s.logger.WithError(err).Error("后台同步失败")
		}
	})
	return nil
}

// Wait 等待 Start 启动的后台运行结束
func (s *SyncService) Wait() {
	s.runs.Wait()
}

// Status 当前阶段与最近一次结果
func (s *SyncService) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.status
	if st.Period != nil {
		p := *st.Period
		st.Period = &p
	}
	return st
}

func (s *SyncService) run(ctx context.Context, opts RunOptions) (*RunSummary, error) {
	months := opts.Months
	if months <= 0 {
		months = s.cfg.Months
	}
	started := s.now()
	window := model.TrailingWindow(started, months)
	st := s.checkpoints.Load(opts.Reset)

	s.setRunning(true)
	s.metrics.RunInProgress.Set(1)
	defer func() {
		s.setRunning(false)
		s.metrics.RunInProgress.Set(0)
	}()

	s.logger.WithFields(logrus.Fields{
		"run_id": st.RunID,
		"window": fmt.Sprintf("%s..%s", window[0], window[len(window)-1]),
		"reset":  opts.Reset,
	}).Info("开始同步")

	var runErr error
	for _, p := range window {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		if st.IsMonthDone(p) {
			s.logger.WithField("month", p.String()).Info("月份已完成，跳过")
			continue
		}
		err := s.runMonth(ctx, st, p)
		if errors.Is(err, ErrCheckpointSave) {
			return nil, err
		}
		if err != nil {
			if ctx.Err() != nil {
				runErr = ctx.Err()
				break
			}
			s.metrics.MonthsFailed.Inc()
			st.AddError(fmt.Sprintf("%s: %v", p, err))
			s.logger.WithError(err).WithField("month", p.String()).Error("月份处理失败，继续下一个月")
			if err := s.save(st); err != nil {
				return nil, err
			}
			continue
		}
		s.metrics.MonthsCompleted.Inc()
	}

	if runErr == nil {
		s.extractDerived(ctx, st)
		if st.AllDone(window) {
			st.MarkComplete()
			s.setPhase(PhaseRunComplete, nil, 0)
		}
	}
	if err := s.save(st); err != nil {
		return nil, err
	}

	summary := s.summarize(st, window, started)
	s.metrics.RunDurationSec.Observe(summary.FinishedAt.Sub(started).Seconds())
	s.metrics.LastRunUnix.Set(float64(summary.FinishedAt.Unix()))
	if err := s.publisher.Publish(ctx, *summary); err != nil {
		s.logger.WithError(err).Warn("发布运行摘要失败")
	}
	s.mu.Lock()
	s.status.Last = summary
	if !st.Completed {
		s.status.Phase = PhaseIdle
	}
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"run_id":    summary.RunID,
		"completed": summary.Completed,
		"seen":      summary.Seen,
		"new":       summary.New,
		"updated":   summary.Updated,
		"skipped":   summary.Skipped,
		"errored":   summary.Errored,
	}).Info("同步结束")
	return summary, runErr
}

// runMonth 处理一个月，从断点中的批次继续
func (s *SyncService) runMonth(ctx context.Context, st *checkpoint.State, p model.Period) error {
	log := s.logger.WithField("month", p.String())
	s.setPhase(PhaseFetchingMonth, &p, 0)
	records, err := s.source.FetchRecords(ctx, p)
	if err != nil {
		return fmt.Errorf("获取%s数据失败: %w", p, err)
	}

	s.setPhase(PhaseExtractingRecords, &p, 0)
	size := s.cfg.BatchSize
	if size <= 0 {
		size = 50
	}
	batches := (len(records) + size - 1) / size
	start := st.BeginMonth(p)
	log.WithFields(logrus.Fields{"records": len(records), "batches": batches, "resume_batch": start}).Info("开始处理月份")

	for b := start; b < batches; b++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.setPhase(PhaseProcessingBatch, &p, b)
		lo, hi := b*size, min((b+1)*size, len(records))
		if err := s.processBatch(ctx, st, p, records[lo:hi]); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.metrics.BatchesFailed.Inc()
			st.AddError(fmt.Sprintf("%s batch %d: %v", p, b, err))
			log.WithError(err).WithField("batch", b).Error("批次处理失败，跳过")
		}
		st.AdvanceBatch(b + 1)
		if err := s.save(st); err != nil {
			return err
		}
		if threshold := s.cfg.SupplierFlushThreshold; threshold > 0 && len(st.TouchedIDs) >= threshold {
			s.extractDerived(ctx, st)
		}
	}

	s.extractDerived(ctx, st)
	st.MarkMonthDone(p)
	s.setPhase(PhaseMonthComplete, &p, batches)
	if err := s.save(st); err != nil {
		return err
	}
	log.WithField("stats", st.Stats).Info("月份处理完成")
	return nil
}

// processBatch 批次内的 panic 转为错误，不影响后续批次
func (s *SyncService) processBatch(ctx context.Context, st *checkpoint.State, p model.Period, records []extract.Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.processRecord(ctx, st, p, rec)
	}
	return nil
}

func (s *SyncService) processRecord(ctx context.Context, st *checkpoint.State, p model.Period, rec extract.Record) {
	st.Stats.Seen++
	c, parties, err := s.source.ConvertToDBModel(rec, p)
	if errors.Is(err, interfaces.ErrDiscarded) {
		st.Stats.Skipped++
		s.metrics.Records.WithLabelValues("skipped").Inc()
		return
	}
	if err != nil {
		s.recordError(st, "转换记录失败", err)
		return
	}

	existing, err := s.contracts.Lookup(ctx, c)
	if err != nil {
		s.recordError(st, "查询合同失败", err)
		return
	}
	if (existing == nil || !existing.HasCoordinates()) && parties != nil {
		s.locate(ctx, c, parties)
	}

	res, err := s.contracts.Reconcile(ctx, c)
	if err != nil {
		s.recordError(st, "合同入库失败", err)
		return
	}
	if res.IsNew {
		st.Stats.New++
		s.metrics.Records.WithLabelValues("new").Inc()
	} else {
		st.Stats.Updated++
		s.metrics.Records.WithLabelValues("updated").Inc()
	}
	st.TouchContract(res.ID)
}

func (s *SyncService) locate(ctx context.Context, c *model.Contract, parties *interfaces.Parties) {
	authority := parties.Authority
	if authority == model.Unspecified {
		authority = ""
	}
	res := s.locator.Lookup(ctx, parties.AuthorityAddress, authority)
	s.metrics.GeocodeLookups.WithLabelValues(string(res.Source)).Inc()
	s.metrics.GeocodeCalls.Add(float64(res.Calls))
	if res.Point == nil {
		return
	}
	lat, lng := res.Point.Lat, res.Point.Lng
	c.Lat, c.Lng = &lat, &lng
}

func (s *SyncService) recordError(st *checkpoint.State, msg string, err error) {
	st.Stats.Errored++
	st.AddError(fmt.Sprintf("%s: %v", msg, err))
	s.metrics.Records.WithLabelValues("errored").Inc()
	s.logger.WithError(err).Warn(msg)
}

// extractDerived 提取供应商（以及可选的合成补充协议）；成功后清空待处理ID，失败则保留到下次
func (s *SyncService) extractDerived(ctx context.Context, st *checkpoint.State) {
	ids := st.Touched()
	if len(ids) == 0 || s.suppliers == nil {
		return
	}
	var period *model.Period
	if st.Current != nil {
		period = &st.Current.Period
	}
	s.mu.RLock()
	batch := s.status.Batch
	s.mu.RUnlock()
	s.setPhase(PhaseExtractingDerivedEntities, period, batch)

	created, err := s.suppliers.ExtractForContracts(ctx, ids)
	st.Stats.SuppliersCreated += created
	s.metrics.SuppliersCreated.Add(float64(created))
	if err != nil {
		st.AddError(fmt.Sprintf("供应商提取失败: %v", err))
		s.logger.WithError(err).WithField("contracts", len(ids)).Error("供应商提取失败，稍后重试")
		return
	}

	if s.cfg.SynthesizeAmendments && s.amendments != nil {
		n, err := s.amendments.CreateForContracts(ctx, ids)
		st.Stats.AmendmentsCreated += n
		s.metrics.AmendmentsCreated.Add(float64(n))
		if err != nil {
			st.AddError(fmt.Sprintf("补充协议生成失败: %v", err))
			s.logger.WithError(err).Error("补充协议生成失败，稍后重试")
			return
		}
	}
	st.ClearTouched()
}

func (s *SyncService) save(st *checkpoint.State) error {
	if err := s.checkpoints.Save(st); err != nil {
		s.logger.WithError(err).Error("断点写入失败，中止运行")
		return fmt.Errorf("%w: %v", ErrCheckpointSave, err)
	}
	return nil
}

func (s *SyncService) summarize(st *checkpoint.State, window []model.Period, started time.Time) *RunSummary {
	return &RunSummary{
		RunID:             st.RunID,
		StartedAt:         started.UTC(),
		FinishedAt:        s.now().UTC(),
		Completed:         st.Completed,
		Months:            window,
		Seen:              st.Stats.Seen,
		New:               st.Stats.New,
		Updated:           st.Stats.Updated,
		Skipped:           st.Stats.Skipped,
		Errored:           st.Stats.Errored,
		SuppliersCreated:  st.Stats.SuppliersCreated,
		AmendmentsCreated: st.Stats.AmendmentsCreated,
		Errors:            append([]string(nil), st.Errors...),
	}
}

func (s *SyncService) setPhase(phase Phase, p *model.Period, batch int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Phase = phase
	s.status.Batch = batch
	if p != nil {
		cp := *p
		s.status.Period = &cp
	} else {
		s.status.Period = nil
	}
}

func (s *SyncService) setRunning(running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Running = running
}
