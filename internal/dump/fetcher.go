package dump

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"ContractSync/internal/config"
	"ContractSync/internal/model"
	"ContractSync/internal/utils/httpclient"

	"github.com/sirupsen/logrus"
)

// ErrNotPublished 数据包尚未发布（404）
var ErrNotPublished = errors.New("dump not published")

// Fetcher 下载月度XML数据包，并按文件名缓存到本地磁盘
type Fetcher struct {
	cfg        *config.DumpConfig
	httpClient *http.Client
	logger     *logrus.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewFetcher(cfg *config.DumpConfig, logger *logrus.Logger) *Fetcher {
	return &Fetcher{
		cfg:        cfg,
		httpClient: httpclient.NewHTTPClient(&cfg.HTTPConfig, logger),
		logger:     logger,
		sleep:      sleepCtx,
	}
}

// URL 月份对应的下载地址
func (f *Fetcher) URL(p model.Period) string {
	return fmt.Sprintf(f.cfg.URLPattern, p.Year, p.Month)
}

// FileName 本地缓存文件名
func FileName(p model.Period) string {
	return fmt.Sprintf("dump_%04d_%02d.xml", p.Year, p.Month)
}

// Fetch 返回月份数据包内容，命中本地缓存时不再下载
func (f *Fetcher) Fetch(ctx context.Context, p model.Period) ([]byte, error) {
	cachePath := ""
	if f.cfg.CacheDir != "" {
		cachePath = filepath.Join(f.cfg.CacheDir, FileName(p))
		if data, err := os.ReadFile(cachePath); err == nil && len(data) > 0 {
			f.logger.WithFields(logrus.Fields{"period": p.String(), "path": cachePath}).Info("使用本地缓存的数据包")
			return data, nil
		}
	}

	url := f.URL(p)
	attempts := f.cfg.RetryCount + 1
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			wait := time.Duration(i) * 2 * time.Second
			f.logger.WithError(lastErr).WithFields(logrus.Fields{"url": url, "attempt": i + 1}).Warn("下载数据包失败，稍后重试")
			if err := f.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}
		data, err := f.download(ctx, url)
		if err == nil {
			f.logger.WithFields(logrus.Fields{"period": p.String(), "bytes": len(data)}).Info("数据包下载完成")
			if cachePath != "" {
				if err := writeAtomic(cachePath, data); err != nil {
					f.logger.WithError(err).WithField("path", cachePath).Warn("写入本地缓存失败")
				}
			}
			return data, nil
		}
		lastErr = err
		if errors.Is(err, ErrNotPublished) || ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("下载%s失败: %w", url, lastErr)
}

func (f *Fetcher) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			f.logger.Errorf("关闭响应体失败: %v", err)
		}
	}()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotPublished
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("empty body")
	}
	return data, nil
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
