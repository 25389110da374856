package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ContractSync/internal/model"

	"github.com/sirupsen/logrus"
)

// DefaultPath 临时目录下的断点文件
func DefaultPath() string {
	return filepath.Join(os.TempDir(), "contractsync-checkpoint.json")
}

// Store 单写者的JSON断点文件，每次保存整体覆盖
type Store struct {
	path   string
	logger *logrus.Logger
	now    func() time.Time
}

func NewStore(path string, logger *logrus.Logger) *Store {
	if path == "" {
		path = DefaultPath()
	}
	return &Store{path: path, logger: logger, now: time.Now}
}

// Load 读取断点。文件不存在、损坏、版本不符、上次已完成或要求重置时返回全新进度，从不报错
func (s *Store) Load(reset bool) *State {
	if reset {
		s.logger.WithField("path", s.path).Info("按要求重置断点")
		return NewState(s.now())
	}
	st, err := s.read()
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.WithError(err).WithField("path", s.path).Warn("断点文件不可用，从头开始")
		}
		return NewState(s.now())
	}
	if st.Version != StateVersion {
		s.logger.WithFields(logrus.Fields{"path": s.path, "version": st.Version}).Warn("断点版本不一致，从头开始")
		return NewState(s.now())
	}
	if st.Completed {
		s.logger.WithField("run_id", st.RunID).Info("上次运行已完成，开始新的运行")
		return NewState(s.now())
	}
	s.logger.WithFields(logrus.Fields{
		"run_id":           st.RunID,
		"completed_months": len(st.CompletedMonths),
		"touched":          len(st.TouchedIDs),
	}).Info("从断点恢复")
	return st
}

// Peek 只读查看当前断点，不做重置判断（status 命令用）
func (s *Store) Peek() (*State, error) {
	return s.read()
}

func (s *Store) read() (*State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	if st.CompletedMonths == nil {
		st.CompletedMonths = []model.Period{}
	}
	return &st, nil
}

// Save 先写临时文件再 rename，保证覆盖是原子的
func (s *Store) Save(st *State) error {
	st.UpdatedAt = s.now().UTC()
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".checkpoint-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}
