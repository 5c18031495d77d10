// Package health provides health check endpoints for the API.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds a readiness probe.
const DefaultTimeout = 5 * time.Second

// Checker defines the interface for health checkers.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// Handler manages health check endpoints.
type Handler struct {
	mu       sync.RWMutex
	checkers []Checker
	version  string
	started  time.Time
	timeout  time.Duration
}

// NewHandler creates a new health handler reporting version.
func NewHandler(version string) *Handler {
	return &Handler{
		version: version,
		started: time.Now(),
		timeout: DefaultTimeout,
	}
}

// RegisterChecker adds a dependency checker.
func (h *Handler) RegisterChecker(c Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers = append(h.checkers, c)
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Uptime  string            `json:"uptime,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
}

func writeHealth(w http.ResponseWriter, status int, resp HealthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// Health returns basic process status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: h.version,
		Uptime:  time.Since(h.started).Truncate(time.Second).String(),
	})
}

// Live returns liveness probe status.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, HealthResponse{Status: "live"})
}

// Ready runs every registered checker concurrently and returns 200 only if
// all of them pass.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	h.mu.RLock()
	checkers := make([]Checker, len(h.checkers))
	copy(checkers, h.checkers)
	h.mu.RUnlock()

	var (
		mu      sync.Mutex
		results = make(map[string]string, len(checkers))
		healthy = true
		g       errgroup.Group
	)
	for _, c := range checkers {
		g.Go(func() error {
			res := "ok"
			if err := c.Check(ctx); err != nil {
				res = err.Error()
			}
			mu.Lock()
			results[c.Name()] = res
			if res != "ok" {
				healthy = false
			}
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	if !healthy {
		writeHealth(w, http.StatusServiceUnavailable, HealthResponse{Status: "not_ready", Checks: results})
		return
	}
	writeHealth(w, http.StatusOK, HealthResponse{Status: "ready", Checks: results})
}
