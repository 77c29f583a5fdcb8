package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"irrigation/pkg/logger"
)

// CheckFunc reports whether a dependency responds
type CheckFunc func(ctx context.Context) error

type check struct {
	name     string
	fn       CheckFunc
	critical bool
}

// DetailsFunc contributes extra fields to /health, e.g. worker or model state
type DetailsFunc func() interface{}

// Handler provides health check endpoints
type Handler struct {
	log         *logger.Logger
	startTime   time.Time
	serviceName string
	version     string

	mu      sync.RWMutex
	checks  []check
	details map[string]DetailsFunc
}

// New creates a new health check handler
func New(log *logger.Logger, serviceName string, version string) *Handler {
	return &Handler{
		log:         log.Component("health"),
		startTime:   time.Now(),
		serviceName: serviceName,
		version:     version,
		details:     make(map[string]DetailsFunc),
	}
}

// AddCheck registers a dependency check. A failing critical check makes the
// service not ready; a failing optional one only degrades /health.
func (h *Handler) AddCheck(name string, fn CheckFunc, critical bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check{name: name, fn: fn, critical: critical})
}

// AddDetails registers a section of the /health body
func (h *Handler) AddDetails(name string, fn DetailsFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.details[name] = fn
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status    string                     `json:"status"` // "healthy", "degraded", "unhealthy"
	Service   string                     `json:"service"`
	Version   string                     `json:"version"`
	Uptime    string                     `json:"uptime"`
	StartedAt string                     `json:"started_at"`
	Timestamp string                     `json:"timestamp"`
	Checks    map[string]ComponentHealth `json:"checks"`
	Details   map[string]interface{}     `json:"details,omitempty"`
}

// ComponentHealth represents health of a single component
type ComponentHealth struct {
	Status       string `json:"status"`
	Critical     bool   `json:"critical"`
	ResponseTime string `json:"response_time,omitempty"`
	Error        string `json:"error,omitempty"`
}

// HandleLiveness returns 200 OK while the process is running
func (h *Handler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// HandleReadiness returns 503 until every critical check passes
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, _, criticalOK := h.evaluate(ctx, false)

	statusCode := http.StatusOK
	if !criticalOK {
		status.Status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
		h.log.Warnw("Readiness check failed", "checks", status.Checks)
	}

	writeJSON(w, statusCode, status)
}

// HandleHealth returns every check plus registered details
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	status, allOK, criticalOK := h.evaluate(ctx, true)

	statusCode := http.StatusOK
	switch {
	case !criticalOK:
		status.Status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	case !allOK:
		status.Status = "degraded"
	}

	writeJSON(w, statusCode, status)
}

func (h *Handler) evaluate(ctx context.Context, withDetails bool) (HealthStatus, bool, bool) {
	h.mu.RLock()
	checks := append([]check(nil), h.checks...)
	details := make(map[string]DetailsFunc, len(h.details))
	for k, v := range h.details {
		details[k] = v
	}
	h.mu.RUnlock()

	results := make([]ComponentHealth, len(checks))
	var wg sync.WaitGroup
	for i, c := range checks {
		wg.Add(1)
		go func(i int, c check) {
			defer wg.Done()
			results[i] = h.run(ctx, c)
		}(i, c)
	}
	wg.Wait()

	status := HealthStatus{
		Status:    "healthy",
		Service:   h.serviceName,
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		StartedAt: humanize.Time(h.startTime),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    make(map[string]ComponentHealth, len(checks)),
	}

	allOK, criticalOK := true, true
	for i, c := range checks {
		status.Checks[c.name] = results[i]
		if results[i].Status != "healthy" {
			allOK = false
			if c.critical {
				criticalOK = false
			}
		}
	}

	if withDetails && len(details) > 0 {
		names := make([]string, 0, len(details))
		for name := range details {
			names = append(names, name)
		}
		sort.Strings(names)

		status.Details = make(map[string]interface{}, len(names))
		for _, name := range names {
			status.Details[name] = details[name]()
		}
	}

	return status, allOK, criticalOK
}

func (h *Handler) run(ctx context.Context, c check) ComponentHealth {
	start := time.Now()
	err := c.fn(ctx)
	elapsed := time.Since(start)

	if err != nil {
		h.log.Warnw("Health check failed", "check", c.name, "error", err, "elapsed", elapsed)
		return ComponentHealth{
			Status:       "unhealthy",
			Critical:     c.critical,
			ResponseTime: elapsed.String(),
			Error:        err.Error(),
		}
	}

	return ComponentHealth{
		Status:       "healthy",
		Critical:     c.critical,
		ResponseTime: elapsed.String(),
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
