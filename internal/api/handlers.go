package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/madddiyarn/regulus/internal/conjunction"
	"github.com/madddiyarn/regulus/internal/errors"
	"github.com/madddiyarn/regulus/internal/httputil"
	"github.com/madddiyarn/regulus/internal/store"
	"github.com/madddiyarn/regulus/internal/tle"
)

type handlers struct {
	deps          Deps
	logger        *slog.Logger
	detectTimeout time.Duration
}

func (h *handlers) detect(w http.ResponseWriter, r *http.Request) {
	var req conjunction.Request
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, r, h.logger, err)
		return
	}

	ctx := r.Context()
	if h.detectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.detectTimeout)
		defer cancel()
	}

	res, err := h.deps.Detector.Detect(ctx, req)
	if err != nil {
		httputil.WriteError(w, r, h.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

type eventsResponse struct {
	Events []conjunction.Event `json:"events"`
	Count  int                 `json:"count"`
}

func (h *handlers) listEvents(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		httputil.WriteError(w, r, h.logger, err)
		return
	}
	events, err := h.deps.Events.Query(r.Context(), f)
	if err != nil {
		httputil.WriteError(w, r, h.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, eventsResponse{Events: events, Count: len(events)})
}

func parseFilter(r *http.Request) (store.Filter, error) {
	q := r.URL.Query()
	f := store.Filter{Status: conjunction.Status(q.Get("status"))}

	if v := q.Get("primary_id"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return f, errors.InvalidArgumentf("primary_id must be a positive integer, got %q", v)
		}
		f.PrimaryID = n
	}
	if v := q.Get("min_tier"); v != "" {
		tier, err := conjunction.ParseRiskTier(v)
		if err != nil {
			return f, err
		}
		f.MinTier = tier
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return f, errors.WithHintf(
				errors.InvalidArgumentf("limit must be a positive integer, got %q", v),
				"at most %d rows are returned", store.MaxLimit)
		}
		f.Limit = n
	}
	return f, nil
}

// StatsResponse is the body of GET /api/v1/conjunctions/stats: event counts
// plus the age of the element sets they were computed from.
type StatsResponse struct {
	store.Stats
	Catalog tle.Freshness `json:"catalog"`
}

func (h *handlers) stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.deps.Events.Stats(r.Context())
	if err != nil {
		httputil.WriteError(w, r, h.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, StatsResponse{
		Stats:   *st,
		Catalog: h.deps.Catalog.Freshness(h.deps.Now(), h.deps.StaleAfter()),
	})
}

type catalogEntry struct {
	ObjectID int       `json:"objectId"`
	Name     string    `json:"name"`
	Epoch    time.Time `json:"epoch"`
	AgeDays  float64   `json:"ageDays"`
	Stale    bool      `json:"stale"`
	Line1    string    `json:"line1"`
	Line2    string    `json:"line2"`
}

func (h *handlers) catalogEntry(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("object_id")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		httputil.WriteError(w, r, h.logger,
			errors.InvalidArgumentf("object_id must be a positive integer, got %q", raw))
		return
	}

	es, err := h.deps.Catalog.LatestElementSet(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, h.logger, err)
		return
	}

	age := es.Age(h.deps.Now())
	entry := catalogEntry{
		ObjectID: es.ObjectID,
		Name:     es.Name,
		Epoch:    es.Epoch,
		AgeDays:  age.Hours() / 24,
		Line1:    es.Line1,
		Line2:    es.Line2,
	}
	if h.deps.StaleAfter != nil {
		entry.Stale = age > h.deps.StaleAfter()
	}
	httputil.WriteJSON(w, http.StatusOK, entry)
}
