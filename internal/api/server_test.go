package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madddiyarn/regulus/internal/conjunction"
	"github.com/madddiyarn/regulus/internal/errors"
	"github.com/madddiyarn/regulus/internal/health"
	"github.com/madddiyarn/regulus/internal/httputil"
	"github.com/madddiyarn/regulus/internal/store"
	"github.com/madddiyarn/regulus/internal/tle"
)

var testNow = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// fakeDetector answers 25544 and fails the way the real detector does for
// everything else.
type fakeDetector struct {
	got conjunction.Request
}

func (f *fakeDetector) Detect(ctx context.Context, req conjunction.Request) (*conjunction.Result, error) {
	f.got = req
	switch {
	case req.PrimaryID <= 0:
		return nil, errors.WithHint(errors.InvalidArgumentf("primaryId must be positive, got %d", req.PrimaryID),
			"pass the NORAD catalog number of the primary")
	case req.PrimaryID == 999:
		return nil, errors.Wrap(context.Canceled, "detection cancelled")
	case req.PrimaryID == 500:
		return nil, errors.New("sqlite: database is locked")
	case req.PrimaryID != 25544:
		return nil, errors.NotFoundf("object %d has no element set", req.PrimaryID)
	}
	v := 14210.5
	return &conjunction.Result{
		PrimaryID:          25544,
		PrimaryName:        "ISS (ZARYA)",
		RunKey:             uuid.MustParse("0b7c7f54-8f1e-5c43-9d6c-2f0e5a8b1c3d"),
		WindowStart:        testNow,
		WindowEnd:          testNow.Add(24 * time.Hour),
		HorizonHours:       24,
		ThresholdKm:        5,
		CollisionsDetected: 1,
		Collisions: []conjunction.Collision{{
			SecondaryID:            44713,
			TCA:                    testNow.Add(6 * time.Hour),
			MissDistanceKm:         0.72,
			RelativeVelocityMps:    &v,
			RiskTier:               conjunction.TierCritical,
			RequiresManeuverReview: true,
		}},
		CheckedAgainst: 12,
		Warnings:       []string{},
	}, nil
}

func testCatalog() *tle.Catalog {
	c := tle.NewCatalog()
	c.Set(tle.NewDataset("test", testNow, []tle.ElementSet{
		{ObjectID: 25544, Name: "ISS (ZARYA)", Epoch: testNow.Add(-36 * time.Hour),
			Line1: "1 25544U 98067A   26058.50000000  .00016717  00000-0  10270-3 0  9003",
			Line2: "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    01"},
		{ObjectID: 11, Name: "VANGUARD 2", Epoch: testNow.Add(-30 * 24 * time.Hour)},
	}))
	return c
}

func newTestServer(t *testing.T, det Detector) (http.Handler, *store.Store) {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "api.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	rd := health.NewReadiness(time.Second)
	rd.Add("store", st.Ping)

	srv := NewServer(Config{Addr: ":0", DetectTimeout: time.Minute}, testLogger(), Deps{
		Detector:   det,
		Events:     st,
		Catalog:    testCatalog(),
		Readiness:  rd,
		StaleAfter: func() time.Duration { return 7 * 24 * time.Hour },
		Now:        func() time.Time { return testNow },
	})
	return srv.Handler(), st
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, rdr))
	return rec
}

func TestDetectEndpoint(t *testing.T) {
	det := &fakeDetector{}
	h, _ := newTestServer(t, det)

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"ok", `{"primaryId": 25544, "mode": "SUBSET", "secondaryIds": [44713], "horizonHours": 24}`, http.StatusOK},
		{"invalid primary", `{"primaryId": -1}`, http.StatusBadRequest},
		{"unknown field", `{"primaryId": 25544, "targets": [1]}`, http.StatusBadRequest},
		{"malformed", `{"primaryId": `, http.StatusBadRequest},
		{"missing primary data", `{"primaryId": 12345}`, http.StatusNotFound},
		{"cancelled", `{"primaryId": 999}`, http.StatusServiceUnavailable},
		{"internal", `{"primaryId": 500}`, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, http.MethodPost, "/api/v1/conjunctions/detect", tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			if tt.wantStatus != http.StatusOK {
				var body httputil.ErrorBody
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
				assert.NotEmpty(t, body.Error)
				assert.NotNil(t, body.Hints)
				return
			}

			var resp map[string]any
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.EqualValues(t, 1, resp["collisionsDetected"])
			assert.EqualValues(t, 12, resp["checkedAgainst"])
			assert.Equal(t, []any{}, resp["warnings"])

			collisions := resp["collisions"].([]any)
			require.Len(t, collisions, 1)
			c := collisions[0].(map[string]any)
			assert.Equal(t, "CRITICAL", c["riskTier"])
			assert.Equal(t, true, c["requiresManeuverReview"])
			assert.EqualValues(t, 44713, c["secondaryId"])

			assert.Equal(t, conjunction.ModeSubset, det.got.Mode)
			assert.Equal(t, []int{44713}, det.got.SecondaryIDs)
		})
	}

	t.Run("hints reach the caller", func(t *testing.T) {
		rec := do(h, http.MethodPost, "/api/v1/conjunctions/detect", `{"primaryId": 0}`)
		assert.Contains(t, rec.Body.String(), "NORAD catalog number")
	})

	t.Run("wrong method", func(t *testing.T) {
		rec := do(h, http.MethodGet, "/api/v1/conjunctions/detect", "")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestListAndStatsEndpoints(t *testing.T) {
	h, st := newTestServer(t, &fakeDetector{})
	ctx := context.Background()
	run := uuid.New()

	for i, miss := range []float64{2.4, 0.6, 4.1} {
		tier := map[float64]conjunction.RiskTier{2.4: conjunction.TierMedium, 0.6: conjunction.TierCritical, 4.1: conjunction.TierLow}[miss]
		_, err := st.Upsert(ctx, conjunction.Event{
			RunKey:                 run,
			PrimaryID:              25544,
			SecondaryID:            40000 + i,
			TCA:                    testNow.Add(time.Duration(i) * time.Hour),
			MissDistanceKm:         miss,
			RiskTier:               tier,
			RequiresManeuverReview: tier.RequiresManeuverReview(),
			SourceTag:              "test",
		})
		require.NoError(t, err)
	}

	t.Run("ordered by miss distance", func(t *testing.T) {
		rec := do(h, http.MethodGet, "/api/v1/conjunctions", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Events []conjunction.Event `json:"events"`
			Count  int                 `json:"count"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		require.Equal(t, 3, resp.Count)
		assert.Equal(t, 40001, resp.Events[0].SecondaryID)
		assert.Equal(t, 40000, resp.Events[1].SecondaryID)
		assert.Equal(t, 40002, resp.Events[2].SecondaryID)
		assert.Nil(t, resp.Events[0].RelativeVelocityMps)
	})

	t.Run("filters", func(t *testing.T) {
		rec := do(h, http.MethodGet, "/api/v1/conjunctions?min_tier=medium&limit=5&primary_id=25544", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"count":2`)
	})

	for _, q := range []string{"?status=PENDING", "?limit=zero", "?primary_id=-4", "?min_tier=SEVERE"} {
		t.Run("bad query "+q, func(t *testing.T) {
			rec := do(h, http.MethodGet, "/api/v1/conjunctions"+q, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}

	t.Run("stats", func(t *testing.T) {
		rec := do(h, http.MethodGet, "/api/v1/conjunctions/stats", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var s StatsResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&s))
		assert.Equal(t, 3, s.Total)
		assert.Equal(t, 1, s.ActiveByTier["CRITICAL"])
		assert.Equal(t, 1, s.RequiringReview)
		require.NotNil(t, s.ClosestKm)
		assert.InDelta(t, 0.6, *s.ClosestKm, 1e-12)

		assert.Equal(t, 2, s.Catalog.Objects)
		assert.Equal(t, 1, s.Catalog.Stale, "VANGUARD 2 is 30 days old")
		assert.InDelta(t, (1.5+30)/2, s.Catalog.MeanAgeDays, 1e-9)
		assert.InDelta(t, 30, s.Catalog.OldestAgeDays, 1e-9)
		assert.Equal(t, 7.0, s.Catalog.StaleAfterDays)
	})
}

func TestCatalogEndpoint(t *testing.T) {
	h, _ := newTestServer(t, &fakeDetector{})

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantStale  bool
		wantAge    float64
	}{
		{"fresh", "/api/v1/catalog/25544", http.StatusOK, false, 1.5},
		{"stale", "/api/v1/catalog/11", http.StatusOK, true, 30},
		{"unknown", "/api/v1/catalog/77777", http.StatusNotFound, false, 0},
		{"not a number", "/api/v1/catalog/iss", http.StatusBadRequest, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, http.MethodGet, tt.path, "")
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus != http.StatusOK {
				return
			}
			var entry catalogEntry
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&entry))
			assert.Equal(t, tt.wantStale, entry.Stale)
			assert.InDelta(t, tt.wantAge, entry.AgeDays, 1e-9)
		})
	}
}

func TestProbes(t *testing.T) {
	h, st := newTestServer(t, &fakeDetector{})

	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/readyz", "").Code)

	metrics := do(h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, metrics.Code)
	assert.Contains(t, metrics.Body.String(), "regulus_http_requests_total")

	require.NoError(t, st.Close())
	rec := do(h, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "store: ")
}
