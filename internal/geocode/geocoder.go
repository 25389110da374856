// Package geocode 把地址或机关名称解析为坐标，严格限速，失败时退化为国家中心附近的随机点。
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"ContractSync/internal/config"
	"ContractSync/internal/model"
	"ContractSync/internal/utils/httpclient"

	"github.com/sirupsen/logrus"
)

// maxVariants 每次解析最多尝试的查询变体数
const maxVariants = 3

// MinDelay 每次外部调用前间隔的下限，配置更小的值会被提高到这里
const MinDelay = time.Second

// ErrRateLimited 服务返回 429
var ErrRateLimited = errors.New("geocode rate limited")

// Source 坐标来源
type Source string

const (
	SourceNone     Source = "none"
	SourceCache    Source = "cache"
	SourceService  Source = "service"
	SourceFallback Source = "fallback"
)

// Result 一次解析的结果
type Result struct {
	Point  *model.Point
	Source Source
	Query  string
	// Calls 实际发出的外部请求数
	Calls int
}

type Geocoder struct {
	cfg        *config.GeocodeConfig
	httpClient *http.Client
	cache      Cache
	logger     *logrus.Logger
	delay      time.Duration
	sleep      func(ctx context.Context, d time.Duration) error

	// 串行化外部调用，保证每次调用前的间隔
	mu  sync.Mutex
	rng *rand.Rand
}

func NewGeocoder(cfg *config.GeocodeConfig, cache Cache, logger *logrus.Logger) *Geocoder {
	if cache == nil {
		cache = NewMemoryCache()
	}
	delay := cfg.Delay
	if delay < MinDelay {
		logger.WithField("configured", cfg.Delay.String()).Warnf("地理编码间隔过小，提高到 %s", MinDelay)
		delay = MinDelay
	}
	now := uint64(time.Now().UnixNano())
	return &Geocoder{
		cfg:        cfg,
		httpClient: httpclient.NewHTTPClient(&cfg.HTTPConfig, logger, httpclient.WithUserAgent(cfg.UserAgent), httpclient.WithMaxIdleConns(1)),
		cache:      cache,
		logger:     logger,
		delay:      delay,
		sleep:      sleepCtx,
		rng:        rand.New(rand.NewPCG(now, now>>1|1)),
	}
}

// Geocode 返回坐标；地址和机关名称都为空时返回 nil
func (g *Geocoder) Geocode(ctx context.Context, address, authority string) *model.Point {
	return g.Lookup(ctx, address, authority).Point
}

// Lookup 依次尝试各查询变体，全部无结果时返回兜底坐标
func (g *Geocoder) Lookup(ctx context.Context, address, authority string) Result {
	variants := g.variants(address, authority)
	if len(variants) == 0 {
		return Result{Source: SourceNone}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	res := Result{}
	for _, q := range variants {
		if p, ok := g.cache.Get(q); ok {
			return Result{Point: &p, Source: SourceCache, Query: q, Calls: res.Calls}
		}

		p, err := g.attempt(ctx, q, &res.Calls)
		if errors.Is(err, ErrRateLimited) {
			// 被限流：长时间等待后用最简查询重试一次
			g.logger.WithField("query", q).Warn("地理编码服务限流，等待后重试")
			if serr := g.sleep(ctx, g.cfg.RateLimitBackoff); serr == nil {
				q = simplify(q, g.cfg.CountryName)
				p, err = g.attempt(ctx, q, &res.Calls)
			} else {
				err = serr
			}
		}
		if err == nil && p != nil {
			if cerr := g.cache.Put(q, *p); cerr != nil {
				g.logger.WithError(cerr).Warn("写入地理编码缓存失败")
			}
			return Result{Point: p, Source: SourceService, Query: q, Calls: res.Calls}
		}
		if err != nil {
			g.logger.WithError(err).WithField("query", q).Debug("地理编码失败，尝试下一个查询")
		}
		if ctx.Err() != nil {
			break
		}
	}

	p := g.fallback()
	g.logger.WithFields(logrus.Fields{
		"address":   address,
		"authority": authority,
		"lat":       p.Lat,
		"lng":       p.Lng,
	}).Info("地理编码无结果，使用国家中心附近的随机坐标")
	return Result{Point: &p, Source: SourceFallback, Calls: res.Calls}
}

// variants 主查询、机关名称查询、主查询第一个分隔符前的部分，去重后最多三个
func (g *Geocoder) variants(address, authority string) []string {
	country := g.cfg.CountryName
	var out []string
	add := func(q string) {
		if q == "" || len(out) >= maxVariants {
			return
		}
		for _, v := range out {
			if v == q {
				return
			}
		}
		out = append(out, q)
	}

	primary := BuildQuery(address, country)
	if primary != "" {
		add(primary)
		add(authorityQuery(authority, country))
	} else {
		primary = authorityQuery(authority, country)
		add(primary)
	}
	if primary != "" {
		add(simplify(primary, country))
	}
	return out
}

type searchResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	Type        string `json:"type"`
	DisplayName string `json:"display_name"`
}

// attempt 单次外部调用，调用前必定等待固定间隔；无结果返回 (nil, nil)
func (g *Geocoder) attempt(ctx context.Context, q string, calls *int) (*model.Point, error) {
	if err := g.sleep(ctx, g.delay); err != nil {
		return nil, err
	}
	*calls++

	params := url.Values{}
	params.Set("q", q)
	params.Set("format", "json")
	params.Set("limit", "1")
	if g.cfg.CountryCode != "" {
		params.Set("countrycodes", g.cfg.CountryCode)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			g.logger.Errorf("关闭响应体失败: %v", err)
		}
	}()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var results []searchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("解析地理编码响应失败: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(results[0].Lat), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid lat %q: %w", results[0].Lat, err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(results[0].Lon), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid lon %q: %w", results[0].Lon, err)
	}
	g.logger.WithFields(logrus.Fields{
		"query": q,
		"type":  results[0].Type,
	}).Debug("地理编码成功")
	return &model.Point{Lat: lat, Lng: lng}, nil
}

// fallback 国家中心点加均匀随机偏移，并限制在国家范围内
func (g *Geocoder) fallback() model.Point {
	b := g.cfg.Bounds
	lat := b.CenterLat + (g.rng.Float64()*2-1)*b.JitterLat
	lng := b.CenterLng + (g.rng.Float64()*2-1)*b.JitterLng
	return model.Point{
		Lat: clamp(lat, b.MinLat, b.MaxLat),
		Lng: clamp(lng, b.MinLng, b.MaxLng),
	}
}

func clamp(v, lo, hi float64) float64 {
	if lo >= hi {
		return v
	}
	return min(max(v, lo), hi)
}

// Close 关闭缓存
func (g *Geocoder) Close() error {
	return g.cache.Close()
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
