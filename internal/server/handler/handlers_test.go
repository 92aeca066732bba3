package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alanyoungcy/marketfuse/internal/cache"
	"github.com/alanyoungcy/marketfuse/internal/domain"
	"github.com/alanyoungcy/marketfuse/internal/health"
	"github.com/alanyoungcy/marketfuse/internal/pipeline"
	"github.com/alanyoungcy/marketfuse/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type fakeSnapshotStore struct {
	snapshots map[string][]domain.UnifiedMarket
	savedAt   time.Time
}

func (f *fakeSnapshotStore) SaveSnapshot(ctx context.Context, category string, markets []domain.UnifiedMarket) error {
	return nil
}

func (f *fakeSnapshotStore) LoadSnapshot(ctx context.Context, category string) ([]domain.UnifiedMarket, time.Time, error) {
	markets, ok := f.snapshots[category]
	if !ok {
		return nil, time.Time{}, domain.ErrNoSnapshot
	}
	return markets, f.savedAt, nil
}

func (f *fakeSnapshotStore) Categories(ctx context.Context) ([]string, error) {
	out := make([]string, 0, len(f.snapshots))
	for c := range f.snapshots {
		out = append(out, c)
	}
	return out, nil
}

// newTestService builds a service whose pipeline has never produced a view,
// backed by the given snapshots.
func newTestService(snapshots domain.SnapshotStore) (*service.MarketService, *health.Monitor) {
	logger := testLogger()
	orch := pipeline.New(pipeline.Config{}, nil, nil, nil, nil, nil, nil, nil, nil, pipeline.Options{}, logger)
	mon := health.New(health.Config{}, []domain.Platform{domain.PlatformPolymarket, domain.PlatformKalshi}, logger)
	svc := service.New(
		service.Config{},
		cache.New(cache.Config{}, nil, logger),
		orch,
		snapshots,
		mon,
		logger,
	)
	return svc, mon
}

func testMux(svc *service.MarketService, mon *health.Monitor) *http.ServeMux {
	logger := testLogger()
	markets := NewMarketHandler(svc, logger)
	arb := NewArbHandler(svc, logger)
	stats := NewStatsHandler(svc, logger)
	healthH := NewHealthHandler(mon, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", healthH.HealthCheck)
	mux.HandleFunc("GET /api/categories", markets.ListCategories)
	mux.HandleFunc("GET /api/markets/{category}", markets.GetCategory)
	mux.HandleFunc("GET /api/market/{id}/live", markets.GetLive)
	mux.HandleFunc("GET /api/arbitrage", arb.ListOpportunities)
	mux.HandleFunc("GET /api/cache/stats", stats.CacheStats)
	mux.HandleFunc("GET /api/staleness", stats.Staleness)
	return mux
}

func doGet(t *testing.T, mux *http.ServeMux, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, into any) {
	t.Helper()
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("content type = %q", ct)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), into); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestGetCategoryServesSnapshot(t *testing.T) {
	store := &fakeSnapshotStore{
		snapshots: map[string][]domain.UnifiedMarket{
			"politics": {{UnifiedID: "m1", Category: "politics", CanonicalQuestion: "Will X win?"}},
		},
		savedAt: time.Now().Add(-time.Hour),
	}
	svc, mon := newTestService(store)
	mux := testMux(svc, mon)

	rec := doGet(t, mux, "/api/markets/politics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var view domain.CategoryView
	decode(t, rec, &view)
	if !view.Stale || view.Source != domain.SourceSnapshot {
		t.Errorf("stale=%v source=%s, want stale snapshot", view.Stale, view.Source)
	}
	if len(view.Markets) != 1 || view.Markets[0].UnifiedID != "m1" {
		t.Errorf("markets = %+v", view.Markets)
	}
}

func TestGetCategoryNoDataYet(t *testing.T) {
	svc, mon := newTestService(nil)
	mux := testMux(svc, mon)

	rec := doGet(t, mux, "/api/markets/politics")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 before any snapshot exists", rec.Code)
	}
	var body map[string]string
	decode(t, rec, &body)
	if body["error"] == "" {
		t.Error("error body missing")
	}
}

func TestGetCategoryTrendingReserved(t *testing.T) {
	store := &fakeSnapshotStore{
		snapshots: map[string][]domain.UnifiedMarket{
			"politics": {{UnifiedID: "m1", Category: "politics", CombinedVolume: 100}},
		},
		savedAt: time.Now().Add(-time.Minute),
	}
	svc, mon := newTestService(store)
	mux := testMux(svc, mon)

	rec := doGet(t, mux, "/api/markets/trending")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var view domain.CategoryView
	decode(t, rec, &view)
	if view.Category != "trending" {
		t.Errorf("category = %q, want trending", view.Category)
	}
}

func TestGetLiveNotFound(t *testing.T) {
	store := &fakeSnapshotStore{
		snapshots: map[string][]domain.UnifiedMarket{"politics": {{UnifiedID: "m1"}}},
	}
	svc, mon := newTestService(store)
	mux := testMux(svc, mon)

	rec := doGet(t, mux, "/api/market/unknown/live")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGetLiveFromSnapshot(t *testing.T) {
	store := &fakeSnapshotStore{
		snapshots: map[string][]domain.UnifiedMarket{"politics": {{UnifiedID: "m1"}}},
	}
	svc, mon := newTestService(store)
	mux := testMux(svc, mon)

	rec := doGet(t, mux, "/api/market/m1/live")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Market domain.UnifiedMarket `json:"market"`
		Stale  bool                 `json:"stale"`
	}
	decode(t, rec, &body)
	if body.Market.UnifiedID != "m1" || !body.Stale {
		t.Errorf("got market %s stale=%v, want m1 stale=true", body.Market.UnifiedID, body.Stale)
	}
}

func TestListOpportunitiesUnavailableBeforeFirstCycle(t *testing.T) {
	svc, mon := newTestService(nil)
	mux := testMux(svc, mon)

	rec := doGet(t, mux, "/api/arbitrage")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestListCategories(t *testing.T) {
	store := &fakeSnapshotStore{
		snapshots: map[string][]domain.UnifiedMarket{"sports": nil, "politics": nil},
	}
	svc, mon := newTestService(store)
	mux := testMux(svc, mon)

	rec := doGet(t, mux, "/api/categories")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Categories []string `json:"categories"`
	}
	decode(t, rec, &body)
	if len(body.Categories) != 2 || body.Categories[0] != "politics" {
		t.Errorf("categories = %v, want sorted [politics sports]", body.Categories)
	}
}

func TestHealthCheckOverallStatus(t *testing.T) {
	svc, mon := newTestService(nil)
	mux := testMux(svc, mon)

	// Before any fetch both platforms are degraded; overall is degraded but
	// the endpoint itself still answers 200.
	rec := doGet(t, mux, "/api/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 always", rec.Code)
	}
	var body struct {
		Status    string                        `json:"status"`
		Platforms []domain.PlatformHealthRecord `json:"platforms"`
	}
	decode(t, rec, &body)
	if body.Status != "degraded" {
		t.Errorf("overall = %s, want degraded before first fetch", body.Status)
	}
	if len(body.Platforms) != 2 {
		t.Errorf("got %d platform records, want 2", len(body.Platforms))
	}

	mon.RecordSuccess(domain.PlatformPolymarket)
	mon.RecordSuccess(domain.PlatformKalshi)
	rec = doGet(t, mux, "/api/health")
	decode(t, rec, &body)
	if body.Status != "healthy" {
		t.Errorf("overall = %s, want healthy after both succeed", body.Status)
	}
}

func TestStalenessNullViewAge(t *testing.T) {
	svc, mon := newTestService(nil)
	mux := testMux(svc, mon)

	rec := doGet(t, mux, "/api/staleness")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]json.RawMessage
	decode(t, rec, &body)
	if string(body["view_age_ms"]) != "null" {
		t.Errorf("view_age_ms = %s, want null before the first cycle", body["view_age_ms"])
	}
}

func TestCacheStatsShape(t *testing.T) {
	svc, mon := newTestService(nil)
	mux := testMux(svc, mon)

	rec := doGet(t, mux, "/api/cache/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body cache.Stats
	decode(t, rec, &body)
	if body.Hits != 0 || body.Misses != 0 {
		t.Errorf("counters = %d/%d, want zeroed on a fresh cache", body.Hits, body.Misses)
	}
}
