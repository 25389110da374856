package checkpoint

import (
	"time"

	"ContractSync/internal/model"

	"github.com/google/uuid"
)

// StateVersion 断点文件格式版本，不一致时按无断点处理
const StateVersion = 2

// maxErrors 错误列表只保留最近的若干条
const maxErrors = 500

// Stats 本次运行的累计统计
type Stats struct {
	Seen              int `json:"seen"`
	New               int `json:"new"`
	Updated           int `json:"updated"`
	Skipped           int `json:"skipped"`
	Errored           int `json:"errored"`
	SuppliersCreated  int `json:"suppliersCreated"`
	AmendmentsCreated int `json:"amendmentsCreated"`
}

// Cursor 正在处理的月份及下一个待处理批次
type Cursor struct {
	Period model.Period `json:"period"`
	Batch  int          `json:"batch"`
}

// State 可序列化的运行进度，只由 Store 负责读写落盘
type State struct {
	Version         int            `json:"version"`
	RunID           string         `json:"runId"`
	StartedAt       time.Time      `json:"startedAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
	Completed       bool           `json:"completed"`
	CompletedMonths []model.Period `json:"completedMonths"`
	Current         *Cursor        `json:"current,omitempty"`
	Suspended       []Cursor       `json:"suspended,omitempty"`
	Stats           Stats          `json:"stats"`
	TouchedIDs      []uint64       `json:"touchedIds"`
	Errors          []string       `json:"errors"`

	touched map[uint64]struct{}
}

// NewState 新的空进度
func NewState(now time.Time) *State {
	return &State{
		Version:         StateVersion,
		RunID:           uuid.NewString(),
		StartedAt:       now.UTC(),
		UpdatedAt:       now.UTC(),
		CompletedMonths: []model.Period{},
		TouchedIDs:      []uint64{},
		Errors:          []string{},
	}
}

// IsMonthDone 月份是否已完成
func (s *State) IsMonthDone(p model.Period) bool {
	for _, done := range s.CompletedMonths {
		if done == p {
			return true
		}
	}
	return false
}

// BeginMonth 进入月份，返回应从第几个批次继续。
// 另一个未完成月份的游标转入 Suspended，等该月重新进入时恢复
func (s *State) BeginMonth(p model.Period) int {
	if s.Current != nil && s.Current.Period == p {
		return s.Current.Batch
	}
	if s.Current != nil && s.Current.Batch > 0 && !s.IsMonthDone(s.Current.Period) {
		s.Suspended = append(s.Suspended, *s.Current)
	}
	s.Current = &Cursor{Period: p}
	for i, c := range s.Suspended {
		if c.Period == p {
			s.Current.Batch = c.Batch
			s.Suspended = append(s.Suspended[:i:i], s.Suspended[i+1:]...)
			break
		}
	}
	return s.Current.Batch
}

// AdvanceBatch 记录下一个待处理批次
func (s *State) AdvanceBatch(next int) {
	if s.Current == nil {
		return
	}
	s.Current.Batch = next
}

// MarkMonthDone 月份完成，清空当前游标
func (s *State) MarkMonthDone(p model.Period) {
	if !s.IsMonthDone(p) {
		s.CompletedMonths = append(s.CompletedMonths, p)
	}
	if s.Current != nil && s.Current.Period == p {
		s.Current = nil
	}
	for i, c := range s.Suspended {
		if c.Period == p {
			s.Suspended = append(s.Suspended[:i:i], s.Suspended[i+1:]...)
			break
		}
	}
}

// AllDone 窗口内的月份是否全部完成
func (s *State) AllDone(window []model.Period) bool {
	for _, p := range window {
		if !s.IsMonthDone(p) {
			return false
		}
	}
	return true
}

// MarkComplete 整次运行完成
func (s *State) MarkComplete() {
	s.Completed = true
	s.Current = nil
	s.Suspended = nil
}

// AddError 记录非致命错误
func (s *State) AddError(msg string) {
	s.Errors = append(s.Errors, msg)
	if over := len(s.Errors) - maxErrors; over > 0 {
		s.Errors = append([]string(nil), s.Errors[over:]...)
	}
}

// TouchContract 记录本次运行触达的合同，用于延迟提取派生实体
func (s *State) TouchContract(id uint64) {
	if s.touched == nil {
		s.touched = make(map[uint64]struct{}, len(s.TouchedIDs))
		for _, t := range s.TouchedIDs {
			s.touched[t] = struct{}{}
		}
	}
	if _, ok := s.touched[id]; ok {
		return
	}
	s.touched[id] = struct{}{}
	s.TouchedIDs = append(s.TouchedIDs, id)
}

// Touched 当前待提取的合同ID副本
func (s *State) Touched() []uint64 {
	return append([]uint64(nil), s.TouchedIDs...)
}

// ClearTouched 派生实体提取成功后清空
func (s *State) ClearTouched() {
	s.TouchedIDs = []uint64{}
	s.touched = nil
}
