// Package httpclient 数据包下载与地理编码共用的HTTP客户端。
package httpclient

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/url"
	"time"

	"ContractSync/internal/config"

	"github.com/sirupsen/logrus"
)

// DefaultUserAgent 调用方未指定时使用
const DefaultUserAgent = "ContractSync/1.0"

const defaultTimeout = 30 * time.Second

type options struct {
	userAgent    string
	maxIdleConns int
}

// Option 客户端可选项
type Option func(*options)

// WithUserAgent 请求未自带 User-Agent 时补上
func WithUserAgent(ua string) Option {
	return func(o *options) {
		if ua != "" {
			o.userAgent = ua
		}
	}
}

// WithMaxIdleConns 空闲连接上限
func WithMaxIdleConns(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxIdleConns = n
		}
	}
}

// NewHTTPClient 按配置构建客户端：代理、超时、统一 User-Agent、gzip 解压
func NewHTTPClient(cfg *config.HTTPConfig, logger *logrus.Logger, opts ...Option) *http.Client {
	o := options{userAgent: DefaultUserAgent, maxIdleConns: 4}
	for _, opt := range opts {
		opt(&o)
	}

	base := &http.Transport{
		MaxIdleConns:        o.maxIdleConns,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			logger.WithError(err).WithField("proxy", cfg.Proxy).Warn("代理地址解析失败，将不使用代理")
		} else {
			base.Proxy = http.ProxyURL(proxyURL)
			logger.WithField("proxy", cfg.Proxy).Info("HTTP客户端已配置代理")
		}
	}

	timeout := defaultTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &transport{
			next:      base,
			userAgent: o.userAgent,
			logger:    logger,
		},
	}
}

type transport struct {
	next      http.RoundTripper
	userAgent string
	logger    *logrus.Logger
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrip 不能修改调用方的请求
	req = req.Clone(req.Context())
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	// 显式声明 gzip 后 Transport 不再自动解压
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.Header.Get("Content-Encoding") != "gzip" {
		return resp, nil
	}
	zr, err := gzip.NewReader(resp.Body)
	if err != nil {
		t.logger.WithError(err).WithField("url", req.URL.Redacted()).Warn("gzip解压失败，返回原始响应")
		return resp, nil
	}
	resp.Body = &gzipBody{Reader: zr, raw: resp.Body}
	resp.Header.Del("Content-Encoding")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return resp, nil
}

// gzipBody 关闭时连同原始响应体一起关闭
type gzipBody struct {
	*gzip.Reader
	raw io.ReadCloser
}

func (g *gzipBody) Close() error {
	zerr := g.Reader.Close()
	if err := g.raw.Close(); err != nil {
		return err
	}
	return zerr
}
