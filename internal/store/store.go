// Package store persists conjunction events in SQLite.
package store

import (
	"context"
	"database/sql"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/madddiyarn/regulus/internal/conjunction"
	"github.com/madddiyarn/regulus/internal/errors"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Store is the SQLite-backed conjunction event store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ conjunction.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and migrates it to
// the latest schema.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite %s", path)
	}
	// One writer keeps SQLITE_BUSY out of concurrent upserts.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "ping sqlite %s", path)
	}
	if err := migrateUp(db, logger); err != nil {
		db.Close()
		return nil, err
	}

	version, _, err := schemaVersion(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("conjunction store opened", "path", path, "schema_version", version)

	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errors.Mark(errors.Wrap(err, "ping conjunction store"), errors.ErrUnavailable)
	}
	return nil
}

const insertEvent = `
INSERT INTO conjunction_events (
    id, run_key, primary_id, secondary_id, pair_lo, pair_hi,
    tca_unix_ns, miss_distance_km, relative_velocity_mps,
    risk_tier, risk_rank, requires_maneuver_review, status,
    created_unix_ns, source_tag,
    primary_x_km, primary_y_km, primary_z_km,
    secondary_x_km, secondary_y_km, secondary_z_km,
    lat_deg, lon_deg, alt_km
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT DO NOTHING`

// Upsert inserts ev unless an ACTIVE event already exists for the same
// unordered pair and run key, in which case it reports false and leaves the
// stored row untouched. Empty ID, CreatedAt and Status are filled in.
func (s *Store) Upsert(ctx context.Context, ev conjunction.Event) (bool, error) {
	if err := validateEvent(&ev); err != nil {
		return false, err
	}

	lo, hi := ev.PrimaryID, ev.SecondaryID
	if lo > hi {
		lo, hi = hi, lo
	}

	var lat, lon, alt sql.NullFloat64
	if ev.Location != nil {
		lat = sql.NullFloat64{Float64: ev.Location.LatDeg, Valid: true}
		lon = sql.NullFloat64{Float64: ev.Location.LonDeg, Valid: true}
		alt = sql.NullFloat64{Float64: ev.Location.AltKm, Valid: true}
	}
	var relVel sql.NullFloat64
	if ev.RelativeVelocityMps != nil {
		relVel = sql.NullFloat64{Float64: *ev.RelativeVelocityMps, Valid: true}
	}
	pp, sp := nullVec(ev.PrimaryPositionKm), nullVec(ev.SecondaryPositionKm)

	res, err := s.db.ExecContext(ctx, insertEvent,
		ev.ID.String(), ev.RunKey.String(), ev.PrimaryID, ev.SecondaryID, lo, hi,
		ev.TCA.UnixNano(), ev.MissDistanceKm, relVel,
		ev.RiskTier.String(), int(ev.RiskTier), ev.RequiresManeuverReview, string(ev.Status),
		ev.CreatedAt.UnixNano(), ev.SourceTag,
		pp[0], pp[1], pp[2],
		sp[0], sp[1], sp[2],
		lat, lon, alt,
	)
	if err != nil {
		return false, errors.Wrapf(err, "insert conjunction %d/%d", ev.PrimaryID, ev.SecondaryID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		s.logger.Debug("duplicate conjunction suppressed",
			"run_key", ev.RunKey, "primary_id", ev.PrimaryID, "secondary_id", ev.SecondaryID)
		return false, nil
	}
	return true, nil
}

// nullVec maps an absent position to three NULL columns.
func nullVec(v *[3]float64) [3]sql.NullFloat64 {
	var out [3]sql.NullFloat64
	if v != nil {
		for i, c := range v {
			out[i] = sql.NullFloat64{Float64: c, Valid: true}
		}
	}
	return out
}

// vecOf is the inverse of nullVec. A partially NULL position is absent.
func vecOf(cols []sql.NullFloat64) *[3]float64 {
	var v [3]float64
	for i, c := range cols {
		if !c.Valid {
			return nil
		}
		v[i] = c.Float64
	}
	return &v
}

func validateEvent(ev *conjunction.Event) error {
	switch {
	case ev.PrimaryID == ev.SecondaryID:
		return errors.InvalidArgumentf("event pairs object %d with itself", ev.PrimaryID)
	case math.IsNaN(ev.MissDistanceKm) || ev.MissDistanceKm < 0:
		return errors.InvalidArgumentf("miss distance must be non-negative, got %g", ev.MissDistanceKm)
	case !ev.RiskTier.Valid():
		return errors.InvalidArgumentf("invalid risk tier %d", int(ev.RiskTier))
	case ev.TCA.IsZero():
		return errors.InvalidArgumentf("event has no TCA")
	}
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	if ev.Status == "" {
		ev.Status = conjunction.StatusActive
	}
	if !ev.Status.Valid() {
		return errors.InvalidArgumentf("unknown status %q", ev.Status)
	}
	return nil
}

// Filter selects events for Query. Zero values mean ACTIVE events of any
// primary and tier, DefaultLimit rows.
type Filter struct {
	Status    conjunction.Status
	PrimaryID int
	MinTier   conjunction.RiskTier
	Limit     int
}

func (f Filter) normalize() (Filter, error) {
	if f.Status == "" {
		f.Status = conjunction.StatusActive
	}
	f.Status = conjunction.Status(strings.ToUpper(string(f.Status)))
	if !f.Status.Valid() {
		return f, errors.WithHint(errors.InvalidArgumentf("unknown status %q", f.Status),
			"valid statuses are ACTIVE, SUPERSEDED, EXPIRED")
	}
	if f.PrimaryID < 0 {
		return f, errors.InvalidArgumentf("primary id must be positive, got %d", f.PrimaryID)
	}
	if f.MinTier != 0 && !f.MinTier.Valid() {
		return f, errors.InvalidArgumentf("invalid minimum tier %d", int(f.MinTier))
	}
	switch {
	case f.Limit < 0:
		return f, errors.InvalidArgumentf("limit must be non-negative, got %d", f.Limit)
	case f.Limit == 0:
		f.Limit = DefaultLimit
	case f.Limit > MaxLimit:
		f.Limit = MaxLimit
	}
	return f, nil
}

const selectEvents = `
SELECT id, run_key, primary_id, secondary_id, tca_unix_ns, miss_distance_km,
       relative_velocity_mps, risk_rank, requires_maneuver_review, status,
       created_unix_ns, source_tag,
       primary_x_km, primary_y_km, primary_z_km,
       secondary_x_km, secondary_y_km, secondary_z_km,
       lat_deg, lon_deg, alt_km
FROM conjunction_events`

// Query returns events matching f, closest approach first and ties broken
// by the earlier TCA.
func (s *Store) Query(ctx context.Context, f Filter) ([]conjunction.Event, error) {
	f, err := f.normalize()
	if err != nil {
		return nil, err
	}

	where := []string{"status = ?"}
	args := []any{string(f.Status)}
	if f.PrimaryID != 0 {
		where = append(where, "primary_id = ?")
		args = append(args, f.PrimaryID)
	}
	if f.MinTier != 0 {
		where = append(where, "risk_rank >= ?")
		args = append(args, int(f.MinTier))
	}
	args = append(args, f.Limit)

	query := selectEvents +
		"\nWHERE " + strings.Join(where, " AND ") +
		"\nORDER BY miss_distance_km ASC, tca_unix_ns ASC, id ASC\nLIMIT ?"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query conjunctions")
	}
	defer rows.Close()

	events := []conjunction.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate conjunctions")
	}
	return events, nil
}

func scanEvent(rows *sql.Rows) (conjunction.Event, error) {
	var (
		ev              conjunction.Event
		id, runKey      string
		tcaNs, createNs int64
		relVel          sql.NullFloat64
		rank            int
		status          string
		pos             [6]sql.NullFloat64
		lat, lon, alt   sql.NullFloat64
	)
	err := rows.Scan(&id, &runKey, &ev.PrimaryID, &ev.SecondaryID, &tcaNs, &ev.MissDistanceKm,
		&relVel, &rank, &ev.RequiresManeuverReview, &status,
		&createNs, &ev.SourceTag,
		&pos[0], &pos[1], &pos[2], &pos[3], &pos[4], &pos[5],
		&lat, &lon, &alt)
	if err != nil {
		return ev, errors.Wrap(err, "scan conjunction")
	}

	if ev.ID, err = uuid.Parse(id); err != nil {
		return ev, errors.Wrapf(err, "stored event id %q", id)
	}
	if ev.RunKey, err = uuid.Parse(runKey); err != nil {
		return ev, errors.Wrapf(err, "stored run key %q", runKey)
	}
	ev.TCA = time.Unix(0, tcaNs).UTC()
	ev.CreatedAt = time.Unix(0, createNs).UTC()
	ev.RiskTier = conjunction.RiskTier(rank)
	ev.Status = conjunction.Status(status)
	if relVel.Valid {
		v := relVel.Float64
		ev.RelativeVelocityMps = &v
	}
	ev.PrimaryPositionKm = vecOf(pos[:3])
	ev.SecondaryPositionKm = vecOf(pos[3:])
	if lat.Valid && lon.Valid && alt.Valid {
		ev.Location = &conjunction.Geodetic{LatDeg: lat.Float64, LonDeg: lon.Float64, AltKm: alt.Float64}
	}
	return ev, nil
}

// Stats summarizes the stored events.
type Stats struct {
	Total           int            `json:"total"`
	ByStatus        map[string]int `json:"byStatus"`
	ActiveByTier    map[string]int `json:"activeByTier"`
	RequiringReview int            `json:"requiringReview"`
	ClosestKm       *float64       `json:"closestKm"`
}

// Stats counts events per status, and ACTIVE events per tier.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{
		ByStatus:     map[string]int{},
		ActiveByTier: map[string]int{},
	}
	for _, status := range []conjunction.Status{
		conjunction.StatusActive, conjunction.StatusSuperseded, conjunction.StatusExpired,
	} {
		st.ByStatus[string(status)] = 0
	}
	for t := conjunction.TierLow; t <= conjunction.TierCritical; t++ {
		st.ActiveByTier[t.String()] = 0
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM conjunction_events GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "count by status")
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan status count")
		}
		st.ByStatus[status] = n
		st.Total += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate status counts")
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT risk_rank, COUNT(*) FROM conjunction_events WHERE status = 'ACTIVE' GROUP BY risk_rank`)
	if err != nil {
		return nil, errors.Wrap(err, "count by tier")
	}
	for rows.Next() {
		var rank, n int
		if err := rows.Scan(&rank, &n); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan tier count")
		}
		tier := conjunction.RiskTier(rank)
		st.ActiveByTier[tier.String()] = n
		if tier.RequiresManeuverReview() {
			st.RequiringReview += n
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate tier counts")
	}

	var closest sql.NullFloat64
	err = s.db.QueryRowContext(ctx,
		`SELECT MIN(miss_distance_km) FROM conjunction_events WHERE status = 'ACTIVE'`).Scan(&closest)
	if err != nil {
		return nil, errors.Wrap(err, "closest approach")
	}
	if closest.Valid {
		st.ClosestKm = &closest.Float64
	}
	return st, nil
}

// SetStatus moves an event to a new lifecycle state. Detection never calls
// it; retention sweeps and tests do.
func (s *Store) SetStatus(ctx context.Context, id uuid.UUID, status conjunction.Status) error {
	if !status.Valid() {
		return errors.InvalidArgumentf("unknown status %q", status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE conjunction_events SET status = ? WHERE id = ?`, string(status), id.String())
	if err != nil {
		return errors.Wrapf(err, "set status of %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return errors.NotFoundf("conjunction %s not found", id)
	}
	return nil
}

// ExpireBefore marks ACTIVE events whose TCA is before cutoff as EXPIRED and
// returns how many changed.
func (s *Store) ExpireBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conjunction_events SET status = 'EXPIRED' WHERE status = 'ACTIVE' AND tca_unix_ns < ?`,
		cutoff.UnixNano())
	if err != nil {
		return 0, errors.Wrap(err, "expire conjunctions")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "rows affected")
	}
	if n > 0 {
		s.logger.Info("expired past conjunctions", "count", n, "cutoff", cutoff)
	}
	return n, nil
}
