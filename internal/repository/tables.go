package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"ContractSync/internal/model"

	"gorm.io/gorm"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("not found")

// ErrTableNotFound 任何大小写形式的表都不存在
var ErrTableNotFound = errors.New("table not found")

// Store 持久层协作方：表名解析、原始SQL、按需补列；不负责表结构的归属与迁移
type Store interface {
	ResolveTable(ctx context.Context, name string) (string, error)
	EnsureColumn(ctx context.Context, value interface{}, field string) error
	Exec(ctx context.Context, sql string, args ...interface{}) (int64, error)
	Raw(ctx context.Context, dest interface{}, sql string, args ...interface{}) error
	DB() *gorm.DB
}

type store struct {
	db *gorm.DB

	mu     sync.Mutex
	tables map[string]string
}

func NewStore(db *gorm.DB) Store {
	return &store{db: db, tables: make(map[string]string)}
}

func (s *store) DB() *gorm.DB { return s.db }

// ResolveTable 表可能以不同大小写创建，依次尝试原名、小写、大写、首字母大写
func (s *store) ResolveTable(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tables[name]; ok {
		return t, nil
	}
	m := s.db.WithContext(ctx).Migrator()
	for _, candidate := range tableVariants(name) {
		if m.HasTable(candidate) {
			s.tables[name] = candidate
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrTableNotFound, name)
}

func tableVariants(name string) []string {
	variants := []string{name, strings.ToLower(name), strings.ToUpper(name)}
	if name != "" {
		variants = append(variants, strings.ToUpper(name[:1])+strings.ToLower(name[1:]))
	}
	seen := make(map[string]bool, len(variants))
	out := variants[:0]
	for _, v := range variants {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// EnsureColumn 列不存在时按模型字段定义补上
func (s *store) EnsureColumn(ctx context.Context, value interface{}, field string) error {
	m := s.db.WithContext(ctx).Migrator()
	if m.HasColumn(value, field) {
		return nil
	}
	if err := m.AddColumn(value, field); err != nil {
		return fmt.Errorf("补充列%s失败: %w", field, err)
	}
	return nil
}

func (s *store) Exec(ctx context.Context, sql string, args ...interface{}) (int64, error) {
	res := s.db.WithContext(ctx).Exec(sql, args...)
	return res.RowsAffected, res.Error
}

func (s *store) Raw(ctx context.Context, dest interface{}, sql string, args ...interface{}) error {
	return s.db.WithContext(ctx).Raw(sql, args...).Scan(dest).Error
}

// EnsureSchema 建表（按依赖顺序），并补上后加的列
func EnsureSchema(ctx context.Context, s Store) error {
	if err := s.DB().WithContext(ctx).AutoMigrate(
		&model.Contract{},
		&model.Supplier{},
		&model.Amendment{},
	); err != nil {
		return fmt.Errorf("数据库表结构迁移失败: %w", err)
	}
	for _, f := range []string{"Parties", "Lat", "Lng"} {
		if err := s.EnsureColumn(ctx, &model.Contract{}, f); err != nil {
			return err
		}
	}
	if err := s.EnsureColumn(ctx, &model.Amendment{}, "Synthetic"); err != nil {
		return err
	}
	return s.EnsureColumn(ctx, &model.Supplier{}, "LastSeenAt")
}

// chunk 按固定大小切分ID，避免 IN 子句过长
func chunk(ids []uint64, size int) [][]uint64 {
	var out [][]uint64
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}
