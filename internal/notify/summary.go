// Package notify 在每次运行结束后发布运行摘要，读侧缓存据此失效。本服务从不直接写缓存。
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ContractSync/internal/model"

	"github.com/segmentio/kafka-go"
)

// LatestFile 文件发布器写入的文件名
const LatestFile = "run-summary.latest.json"

// Summary 一次运行的结果摘要
type Summary struct {
	RunID             string         `json:"runId"`
	StartedAt         time.Time      `json:"startedAt"`
	FinishedAt        time.Time      `json:"finishedAt"`
	Completed         bool           `json:"completed"`
	Months            []model.Period `json:"months"`
	Seen              int            `json:"seen"`
	New               int            `json:"new"`
	Updated           int            `json:"updated"`
	Skipped           int            `json:"skipped"`
	Errored           int            `json:"errored"`
	SuppliersCreated  int            `json:"suppliersCreated"`
	AmendmentsCreated int            `json:"amendmentsCreated"`
	Errors            []string       `json:"errors,omitempty"`
}

// Changed 是否有数据写入，没有时读侧缓存无需失效
func (s Summary) Changed() bool {
	return s.New+s.Updated+s.SuppliersCreated+s.AmendmentsCreated > 0
}

type Publisher interface {
	Publish(ctx context.Context, s Summary) error
}

// MultiPublisher 依次发布，遇错即停
type MultiPublisher struct {
	pubs []Publisher
}

func NewMultiPublisher(pubs ...Publisher) *MultiPublisher {
	return &MultiPublisher{pubs: pubs}
}

func (m *MultiPublisher) Publish(ctx context.Context, s Summary) error {
	for _, p := range m.pubs {
		if err := p.Publish(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// FilesystemPublisher 覆盖写 run-summary.latest.json
type FilesystemPublisher struct {
	baseDir string
}

func NewFilesystemPublisher(baseDir string) *FilesystemPublisher {
	return &FilesystemPublisher{baseDir: baseDir}
}

func (f *FilesystemPublisher) Publish(_ context.Context, s Summary) error {
	if err := os.MkdirAll(f.baseDir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	out, err := os.Create(filepath.Join(f.baseDir, LatestFile))
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	defer out.Close()
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&s); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

// ReadLatest 读取最近一次的摘要
func (f *FilesystemPublisher) ReadLatest() (Summary, error) {
	data, err := os.ReadFile(filepath.Join(f.baseDir, LatestFile))
	if err != nil {
		return Summary{}, fmt.Errorf("read summary: %w", err)
	}
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return Summary{}, fmt.Errorf("unmarshal summary: %w", err)
	}
	return s, nil
}

// kafkaMessageWriter 抽象 kafka.Writer，便于测试
type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher 以固定 key 写入压缩主题，消费方只关心最新一条
type KafkaPublisher struct {
	writer kafkaMessageWriter
	key    []byte
}

// NewKafkaPublisher brokers 以逗号分隔
func NewKafkaPublisher(brokers, topic, key string) *KafkaPublisher {
	var addrs []string
	for _, a := range strings.Split(brokers, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(addrs...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}, key: []byte(key)}
}

// NewKafkaPublisherWith 注入自定义 writer（测试用）
func NewKafkaPublisherWith(w kafkaMessageWriter, key string) *KafkaPublisher {
	return &KafkaPublisher{writer: w, key: []byte(key)}
}

func (k *KafkaPublisher) Publish(ctx context.Context, s Summary) error {
	b, err := json.Marshal(&s)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := k.writer.WriteMessages(ctx, kafka.Message{Key: k.key, Value: b}); err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}
	return nil
}

// Close 释放底层 writer
func (k *KafkaPublisher) Close() error {
	if w, ok := k.writer.(*kafka.Writer); ok {
		return w.Close()
	}
	return nil
}

// NopPublisher 未配置任何发布目标时使用
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Summary) error { return nil }
