package api

import (
	"net/http"
	"sync"

	"github.com/madddiyarn/regulus/internal/errors"
	"github.com/madddiyarn/regulus/internal/httputil"
)

// detectLimiter caps concurrent detection requests per client and in total.
type detectLimiter struct {
	mu       sync.Mutex
	inFlight map[string]int
	total    int
	maxPerIP int
	maxTotal int
}

func newDetectLimiter(maxPerIP, maxTotal int) *detectLimiter {
	return &detectLimiter{
		inFlight: make(map[string]int),
		maxPerIP: maxPerIP,
		maxTotal: maxTotal,
	}
}

// acquire registers a detection for ip. It returns false if the client or
// global limit has been reached. A limit of 0 is unlimited.
func (l *detectLimiter) acquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.maxTotal > 0 && l.total >= l.maxTotal {
		return false
	}
	if l.maxPerIP > 0 && l.inFlight[ip] >= l.maxPerIP {
		return false
	}

	l.inFlight[ip]++
	l.total++
	return true
}

func (l *detectLimiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.inFlight[ip]--
	l.total--
	if l.inFlight[ip] <= 0 {
		delete(l.inFlight, ip)
	}
}

func (l *detectLimiter) count(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight[ip]
}

// limit wraps next so that over-limit callers get 503 without any work.
func (l *detectLimiter) limit(h *handlers, trustProxy bool, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := httputil.ClientIP(r, trustProxy)
		if !l.acquire(ip) {
			httputil.WriteError(w, r, h.logger, errors.WithHint(
				errors.Unavailablef("too many detections in progress"),
				"retry once a running detection has finished"))
			return
		}
		defer l.release(ip)
		next(w, r)
	}
}
