package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mevshield/mevwatch/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubIngester struct {
	got domain.ExternalAlert
	opp domain.Opportunity
	err error
}

func (s *stubIngester) IngestExternal(_ context.Context, alert domain.ExternalAlert) (domain.Opportunity, error) {
	s.got = alert
	return s.opp, s.err
}

type stubStats struct {
	report domain.StatsReport
}

func (s *stubStats) StatsReport() domain.StatsReport { return s.report }

type stubLedger struct {
	opps []domain.Opportunity
}

func (s *stubLedger) Recent(limit int) []domain.Opportunity {
	if limit > len(s.opps) {
		limit = len(s.opps)
	}
	return s.opps[:limit]
}

type stubStore struct {
	opps    []domain.Opportunity
	gotOpts domain.ListOpts
	err     error
}

func (s *stubStore) Insert(context.Context, domain.Opportunity) error { return nil }

func (s *stubStore) ListRecent(_ context.Context, opts domain.ListOpts) ([]domain.Opportunity, error) {
	s.gotOpts = opts
	return s.opps, s.err
}

func (s *stubStore) ListBefore(context.Context, time.Time) ([]domain.Opportunity, error) {
	return nil, nil
}

func (s *stubStore) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

func sampleOpportunity(id string) domain.Opportunity {
	return domain.Opportunity{
		ID:             id,
		PoolID:         "0xpool",
		Kind:           domain.KindArbitrage,
		EstimatedValue: 1.5,
		RiskScore:      0.8,
		Confidence:     0.85,
		DetectedAt:     time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		BlockNumber:    19000000,
	}
}

func TestIngestAlert_Accepted(t *testing.T) {
	ing := &stubIngester{opp: sampleOpportunity("ext-1")}
	h := NewAlertsHandler(ing, testLogger())

	body := `{"pool_id":"0xpool","kind":"sandwich","estimated_value":2.1,"risk_score":0.9,"block_number":42}`
	req := httptest.NewRequest(http.MethodPost, "/api/alerts", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.IngestAlert(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "0xpool", ing.got.PoolID)
	assert.Equal(t, domain.KindSandwich, ing.got.Kind)
	assert.Equal(t, uint64(42), ing.got.BlockNumber)

	var opp domain.Opportunity
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &opp))
	assert.Equal(t, "ext-1", opp.ID)
}

func TestIngestAlert_BadPayload(t *testing.T) {
	h := NewAlertsHandler(&stubIngester{}, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/alerts", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.IngestAlert(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestAlert_MissingPool(t *testing.T) {
	ing := &stubIngester{}
	h := NewAlertsHandler(ing, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/alerts", strings.NewReader(`{"kind":"arbitrage"}`))
	rec := httptest.NewRecorder()
	h.IngestAlert(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, ing.got.PoolID)
}

func TestIngestAlert_InvalidOpportunity(t *testing.T) {
	ing := &stubIngester{err: fmt.Errorf("%w ext: risk score 1.5 out of [0,1]", domain.ErrInvalidOpportunity)}
	h := NewAlertsHandler(ing, testLogger())

	body := `{"pool_id":"0xpool","kind":"arbitrage","risk_score":1.5}`
	req := httptest.NewRequest(http.MethodPost, "/api/alerts", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.IngestAlert(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "risk score")
}

func TestIngestAlert_IngestionFailure(t *testing.T) {
	ing := &stubIngester{err: fmt.Errorf("engine: dispatch: connection refused")}
	h := NewAlertsHandler(ing, testLogger())

	body := `{"pool_id":"0xpool","kind":"arbitrage","risk_score":0.5}`
	req := httptest.NewRequest(http.MethodPost, "/api/alerts", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.IngestAlert(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetStats(t *testing.T) {
	h := NewStatsHandler(&stubStats{report: domain.StatsReport{
		OpportunitiesDetected: 12,
		AlertsSent:            4,
		ActiveOpportunities:   7,
		AnalysisIntervalSec:   1.0,
	}}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	h.GetStats(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	var report domain.StatsReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, int64(12), report.OpportunitiesDetected)
	assert.Equal(t, int64(4), report.AlertsSent)
	assert.Equal(t, 7, report.ActiveOpportunities)
}

func TestListRecent_FromLedger(t *testing.T) {
	ledger := &stubLedger{opps: []domain.Opportunity{
		sampleOpportunity("a"), sampleOpportunity("b"), sampleOpportunity("c"),
	}}
	h := NewOpportunitiesHandler(ledger, nil, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/opportunities/recent?limit=2", nil)
	rec := httptest.NewRecorder()
	h.ListRecent(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp listOpportunitiesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ledger", resp.Source)
	assert.Len(t, resp.Opportunities, 2)
	assert.Equal(t, 2, resp.Limit)
}

func TestListRecent_FromStoreOnSourceParam(t *testing.T) {
	store := &stubStore{opps: []domain.Opportunity{sampleOpportunity("db-1")}}
	h := NewOpportunitiesHandler(&stubLedger{}, store, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/opportunities/recent?source=db&limit=10&offset=20", nil)
	rec := httptest.NewRecorder()
	h.ListRecent(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.ListOpts{Limit: 10, Offset: 20}, store.gotOpts)

	var resp listOpportunitiesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "db", resp.Source)
	assert.Equal(t, 20, resp.Offset)
	require.Len(t, resp.Opportunities, 1)
	assert.Equal(t, "db-1", resp.Opportunities[0].ID)
}

func TestListRecent_OffsetFallsBackToLedgerWithoutStore(t *testing.T) {
	ledger := &stubLedger{opps: []domain.Opportunity{sampleOpportunity("a")}}
	h := NewOpportunitiesHandler(ledger, nil, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/opportunities/recent?offset=5", nil)
	rec := httptest.NewRecorder()
	h.ListRecent(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp listOpportunitiesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ledger", resp.Source)
}

func TestListRecent_StoreFailure(t *testing.T) {
	store := &stubStore{err: fmt.Errorf("postgres: connection reset")}
	h := NewOpportunitiesHandler(&stubLedger{}, store, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/opportunities/recent?source=db", nil)
	rec := httptest.NewRecorder()
	h.ListRecent(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type stubBlobs struct {
	infos   []domain.BlobInfo
	content map[string]string
	gotPath string
	err     error
}

func (s *stubBlobs) Get(_ context.Context, path string) (io.ReadCloser, error) {
	s.gotPath = path
	if s.err != nil {
		return nil, s.err
	}
	body, ok := s.content[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (s *stubBlobs) List(_ context.Context, _ string) ([]domain.BlobInfo, error) {
	return s.infos, s.err
}

func TestListArchives(t *testing.T) {
	blobs := &stubBlobs{infos: []domain.BlobInfo{
		{Path: "archive/opportunities/2026-07.jsonl", Size: 1024},
		{Path: "archive/opportunities/2026-08.jsonl", Size: 2048},
	}}
	h := NewArchivesHandler(blobs, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/archives", nil)
	rec := httptest.NewRecorder()
	h.ListArchives(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Archives []archiveEntry `json:"archives"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Archives, 2)
	assert.Equal(t, "archive/opportunities/2026-07.jsonl", resp.Archives[0].Path)
	assert.Equal(t, int64(2048), resp.Archives[1].Size)
}

func TestGetArchive_StreamsObject(t *testing.T) {
	blobs := &stubBlobs{content: map[string]string{
		"archive/opportunities/2026-08.jsonl": `{"id":"a"}` + "\n",
	}}
	h := NewArchivesHandler(blobs, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/archives/opportunities/2026-08.jsonl", nil)
	req.SetPathValue("path", "opportunities/2026-08.jsonl")
	rec := httptest.NewRecorder()
	h.GetArchive(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))
	assert.Equal(t, `{"id":"a"}`+"\n", rec.Body.String())
	assert.Equal(t, "archive/opportunities/2026-08.jsonl", blobs.gotPath)
}

func TestGetArchive_NotFound(t *testing.T) {
	h := NewArchivesHandler(&stubBlobs{content: map[string]string{}}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/archives/opportunities/2020-01.jsonl", nil)
	req.SetPathValue("path", "opportunities/2020-01.jsonl")
	rec := httptest.NewRecorder()
	h.GetArchive(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetArchive_RejectsTraversal(t *testing.T) {
	blobs := &stubBlobs{content: map[string]string{}}
	h := NewArchivesHandler(blobs, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/archives/x", nil)
	req.SetPathValue("path", "../secrets")
	rec := httptest.NewRecorder()
	h.GetArchive(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, blobs.gotPath)
}

func TestHealthCheck_AllDependenciesHealthy(t *testing.T) {
	checks := map[string]func(context.Context) error{
		"redis":    func(context.Context) error { return nil },
		"postgres": func(context.Context) error { return nil },
	}
	h := NewHealthHandler("full", checks, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	h.HealthCheck(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status       string            `json:"status"`
		Mode         string            `json:"mode"`
		Dependencies map[string]string `json:"dependencies"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "full", resp.Mode)
	assert.Equal(t, "ok", resp.Dependencies["redis"])
	assert.Equal(t, "ok", resp.Dependencies["postgres"])
}

func TestHealthCheck_DegradedOnFailingDependency(t *testing.T) {
	checks := map[string]func(context.Context) error{
		"redis":    func(context.Context) error { return nil },
		"postgres": func(context.Context) error { return fmt.Errorf("connection refused") },
	}
	h := NewHealthHandler("server", checks, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	h.HealthCheck(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp struct {
		Status       string            `json:"status"`
		Dependencies map[string]string `json:"dependencies"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "ok", resp.Dependencies["redis"])
	assert.Contains(t, resp.Dependencies["postgres"], "connection refused")
}

func TestParseListOpts_Bounds(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=9999&offset=-3", nil)
	opts := parseListOpts(req)
	assert.Equal(t, 500, opts.Limit)
	assert.Equal(t, 0, opts.Offset)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	opts = parseListOpts(req)
	assert.Equal(t, 50, opts.Limit)
	assert.Equal(t, 0, opts.Offset)
}
