// Package health serves liveness and readiness probes.
package health

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Healthz returns 200 "ok\n" unconditionally.
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// Check reports whether one dependency is ready.
type Check func(ctx context.Context) error

// Readiness runs named checks. The service is ready when all pass.
type Readiness struct {
	checks  map[string]Check
	timeout time.Duration
}

// NewReadiness returns a Readiness with no checks; each probe gets timeout.
func NewReadiness(timeout time.Duration) *Readiness {
	return &Readiness{checks: map[string]Check{}, timeout: timeout}
}

// Add registers a check. Not safe to call once serving.
func (rd *Readiness) Add(name string, c Check) {
	rd.checks[name] = c
}

// Run returns the failures by check name; empty when ready.
func (rd *Readiness) Run(ctx context.Context) map[string]error {
	ctx, cancel := context.WithTimeout(ctx, rd.timeout)
	defer cancel()

	failed := map[string]error{}
	for name, c := range rd.checks {
		if err := c(ctx); err != nil {
			failed[name] = err
		}
	}
	return failed
}

// Readyz returns 200 "ready\n" when every check passes, otherwise 503 with
// one "name: error" line per failure.
func (rd *Readiness) Readyz(w http.ResponseWriter, r *http.Request) {
	failed := rd.Run(r.Context())

	w.Header().Set("Content-Type", "text/plain")
	if len(failed) == 0 {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready\n"))
		return
	}

	lines := make([]string, 0, len(failed))
	for name, err := range failed {
		lines = append(lines, name+": "+err.Error())
	}
	sort.Strings(lines)
	w.WriteHeader(http.StatusServiceUnavailable)
	w.Write([]byte("not ready\n" + strings.Join(lines, "\n") + "\n"))
}
