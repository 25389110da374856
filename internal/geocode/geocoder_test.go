package geocode

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"ContractSync/internal/config"
	"ContractSync/internal/model"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(baseURL string) *config.GeocodeConfig {
	return &config.GeocodeConfig{
		HTTPConfig:       config.HTTPConfig{Timeout: 5},
		BaseURL:          baseURL,
		UserAgent:        "ContractSync-test/1.0",
		CountryCode:      "cz",
		CountryName:      "Česká republika",
		Delay:            1100 * time.Millisecond,
		RateLimitBackoff: 30 * time.Second,
		Bounds: config.BoundsConfig{
			CenterLat: 49.8175, CenterLng: 15.4730,
			JitterLat: 0.5, JitterLng: 1.0,
			MinLat: 48.55, MaxLat: 51.06,
			MinLng: 12.09, MaxLng: 18.87,
		},
	}
}

type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleeps = append(s.sleeps, d)
	return ctx.Err()
}

func (s *sleepRecorder) count(d time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, x := range s.sleeps {
		if x == d {
			n++
		}
	}
	return n
}

// fakeService 按查询返回固定响应，记录收到的查询
type fakeService struct {
	mu      sync.Mutex
	queries []string
	agents  []string
	handle  func(q string, n int) (int, string)
}

func (f *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	q := r.URL.Query().Get("q")
	f.queries = append(f.queries, q)
	f.agents = append(f.agents, r.Header.Get("User-Agent"))
	n := len(f.queries)
	f.mu.Unlock()

	status, body := f.handle(q, n)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func (f *fakeService) hits() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

func newTestGeocoder(t *testing.T, svc http.Handler) (*Geocoder, *sleepRecorder) {
	t.Helper()
	srv := httptest.NewServer(svc)
	t.Cleanup(srv.Close)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	g := NewGeocoder(testConfig(srv.URL), NewMemoryCache(), logger)
	rec := &sleepRecorder{}
	g.sleep = rec.sleep
	return g, rec
}

const kolin = `[{"lat":"50.0281","lon":"15.2006","type":"town","display_name":"Kolín"}]`

func TestGeocode_NoInputReturnsNil(t *testing.T) {
	svc := &fakeService{handle: func(string, int) (int, string) { return 200, kolin }}
	g, _ := newTestGeocoder(t, svc)

	assert.Nil(t, g.Geocode(context.Background(), "", ""))
	assert.Nil(t, g.Geocode(context.Background(), "   ", " "))
	assert.Empty(t, svc.hits())
}

func TestGeocode_ServiceErrorFallsBackInsideBounds(t *testing.T) {
	svc := &fakeService{handle: func(string, int) (int, string) { return 500, "boom" }}
	g, _ := newTestGeocoder(t, svc)
	b := g.cfg.Bounds

	for i := 0; i < 20; i++ {
		res := g.Lookup(context.Background(), "", "Město Kolín")
		require.NotNil(t, res.Point)
		assert.Equal(t, SourceFallback, res.Source)
		assert.True(t, b.Contains(res.Point.Lat, res.Point.Lng), "%+v", res.Point)
	}
}

func TestGeocode_UnreachableServiceFallsBack(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	g := NewGeocoder(testConfig("http://127.0.0.1:1/search"), nil, logger)
	g.sleep = (&sleepRecorder{}).sleep

	p := g.Geocode(context.Background(), "Karlovo náměstí 78, Kolín", "")
	require.NotNil(t, p)
	assert.True(t, g.cfg.Bounds.Contains(p.Lat, p.Lng))
}

func TestGeocode_SuccessSendsRequiredParameters(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		_, _ = io.WriteString(w, kolin)
	}))
	defer srv.Close()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	g := NewGeocoder(testConfig(srv.URL), nil, logger)
	rec := &sleepRecorder{}
	g.sleep = rec.sleep

	res := g.Lookup(context.Background(), "Karlovo náměstí 78, 280 12 Kolín", "Město Kolín")
	require.NotNil(t, res.Point)
	assert.Equal(t, SourceService, res.Source)
	assert.InDelta(t, 50.0281, res.Point.Lat, 1e-9)
	assert.InDelta(t, 15.2006, res.Point.Lng, 1e-9)

	require.NotNil(t, got)
	q := got.URL.Query()
	assert.Equal(t, "Karlovo náměstí 78, 280 12 Kolín, Česká republika", q.Get("q"))
	assert.Equal(t, "cz", q.Get("countrycodes"))
	assert.Equal(t, "1", q.Get("limit"))
	assert.Equal(t, "json", q.Get("format"))
	assert.Equal(t, "ContractSync-test/1.0", got.Header.Get("User-Agent"))
	assert.Equal(t, 1, rec.count(1100*time.Millisecond))
}

func TestGeocode_DelayPrecedesEveryCall(t *testing.T) {
	svc := &fakeService{handle: func(string, int) (int, string) { return 200, "[]" }}
	g, rec := newTestGeocoder(t, svc)

	res := g.Lookup(context.Background(), "Dlouhá 1, Nové Město", "Obecní úřad Lhota")
	assert.Equal(t, SourceFallback, res.Source)
	assert.Len(t, svc.hits(), 3)
	assert.Equal(t, 3, res.Calls)
	assert.Equal(t, 3, rec.count(1100*time.Millisecond))
}

func TestGeocode_DelayClampedToMinimum(t *testing.T) {
	svc := &fakeService{handle: func(string, int) (int, string) { return 200, kolin }}
	srv := httptest.NewServer(svc)
	t.Cleanup(srv.Close)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := testConfig(srv.URL)
	cfg.Delay = 0
	g := NewGeocoder(cfg, NewMemoryCache(), logger)
	rec := &sleepRecorder{}
	g.sleep = rec.sleep

	res := g.Lookup(context.Background(), "Karlovo náměstí 78, Kolín", "")
	require.Equal(t, SourceService, res.Source)
	assert.Equal(t, 1, rec.count(MinDelay))
	assert.Zero(t, rec.count(0))
	assert.Equal(t, time.Duration(0), cfg.Delay)
}

func TestGeocode_VariantOrder(t *testing.T) {
	svc := &fakeService{handle: func(q string, _ int) (int, string) {
		if q == "Lhota, Česká republika" {
			return 200, kolin
		}
		return 200, "[]"
	}}
	g, _ := newTestGeocoder(t, svc)

	res := g.Lookup(context.Background(), "Neznámá ulice 5, Horní Dolní", "Obecní úřad Lhota")
	require.Equal(t, SourceService, res.Source)
	assert.Equal(t, []string{
		"Neznámá ulice 5, Horní Dolní, Česká republika",
		"Lhota, Česká republika",
	}, svc.hits())
}

func TestGeocode_PrefixVariantAfterAuthority(t *testing.T) {
	svc := &fakeService{handle: func(string, int) (int, string) { return 200, "[]" }}
	g, _ := newTestGeocoder(t, svc)

	g.Lookup(context.Background(), "Neznámá ulice 5, Horní Dolní", "")
	assert.Equal(t, []string{
		"Neznámá ulice 5, Horní Dolní, Česká republika",
		"Neznámá ulice 5, Česká republika",
	}, svc.hits())
}

func TestGeocode_RateLimitBacksOffAndSimplifies(t *testing.T) {
	svc := &fakeService{handle: func(q string, n int) (int, string) {
		if n == 1 {
			return http.StatusTooManyRequests, ""
		}
		return 200, kolin
	}}
	g, rec := newTestGeocoder(t, svc)

	res := g.Lookup(context.Background(), "Karlovo náměstí 78, Kolín", "")
	require.Equal(t, SourceService, res.Source)
	assert.Equal(t, []string{
		"Karlovo náměstí 78, Kolín, Česká republika",
		"Karlovo náměstí 78, Česká republika",
	}, svc.hits())
	assert.Equal(t, 1, rec.count(30*time.Second))
	assert.Equal(t, 2, rec.count(1100*time.Millisecond))
}

func TestGeocode_CacheAvoidsExternalCall(t *testing.T) {
	svc := &fakeService{handle: func(string, int) (int, string) { return 200, kolin }}
	g, _ := newTestGeocoder(t, svc)

	first := g.Lookup(context.Background(), "", "Město Kolín")
	second := g.Lookup(context.Background(), "", "Město Kolín")
	assert.Equal(t, SourceService, first.Source)
	assert.Equal(t, SourceCache, second.Source)
	assert.Equal(t, 0, second.Calls)
	assert.Len(t, svc.hits(), 1)
	assert.Equal(t, *first.Point, *second.Point)
}

func TestGeocode_CancelledContextStillReturnsPoint(t *testing.T) {
	svc := &fakeService{handle: func(string, int) (int, string) { return 200, kolin }}
	g, _ := newTestGeocoder(t, svc)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := g.Geocode(ctx, "", "Město Kolín")
	require.NotNil(t, p)
	assert.Empty(t, svc.hits())
}

func TestPebbleCache_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	c, err := OpenPebbleCache(dir)
	require.NoError(t, err)

	require.NoError(t, c.Put("Kolín, Česká republika", model.Point{Lat: 50.02, Lng: 15.2}))
	p, ok := c.Get("Kolín, Česká republika")
	assert.True(t, ok)
	assert.Equal(t, model.Point{Lat: 50.02, Lng: 15.2}, p)
	require.NoError(t, c.Close())

	c, err = OpenPebbleCache(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	_, ok = c.Get("Kolín, Česká republika")
	assert.True(t, ok)
	_, ok = c.Get("Brno")
	assert.False(t, ok)
}
