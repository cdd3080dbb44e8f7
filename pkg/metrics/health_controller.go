package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"
)

type HealthStatus string

const (
	HealthStatusHealthy  HealthStatus = "healthy"
	HealthStatusDegraded HealthStatus = "degraded"
	HealthStatusDown     HealthStatus = "down"
)

// Check probes one dependency. A nil error is healthy.
type Check struct {
	Name string
	// Critical failures mark the whole service down, others degrade it.
	Critical bool
	Probe    func(ctx context.Context) error
}

type HealthResponse struct {
	Status    HealthStatus               `json:"status"`
	Timestamp string                     `json:"timestamp"`
	Checks    map[string]ComponentHealth `json:"checks"`
}

type ComponentHealth struct {
	Status       HealthStatus `json:"status"`
	ResponseTime string       `json:"responseTime,omitempty"`
	Error        string       `json:"error,omitempty"`
}

type HealthController struct {
	checks  []Check
	timeout time.Duration
	now     func() time.Time
}

func NewHealthController(checks ...Check) *HealthController {
	sorted := append([]Check(nil), checks...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	return &HealthController{checks: sorted, timeout: 2 * time.Second, now: time.Now}
}

func (c *HealthController) Key() string {
	return "/health"
}

func (c *HealthController) Register(r *mux.Router) {
	r.HandleFunc(c.Key(), c.Get).Methods(http.MethodGet)
}

func (c *HealthController) Get(w http.ResponseWriter, r *http.Request) {
	resp := c.Evaluate(r.Context())
	status := http.StatusOK
	if resp.Status == HealthStatusDown {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func (c *HealthController) Evaluate(ctx context.Context) HealthResponse {
	resp := HealthResponse{
		Status:    HealthStatusHealthy,
		Timestamp: c.now().UTC().Format(time.RFC3339),
		Checks:    make(map[string]ComponentHealth, len(c.checks)),
	}
	for _, check := range c.checks {
		probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
		start := time.Now()
		err := check.Probe(probeCtx)
		cancel()

		h := ComponentHealth{Status: HealthStatusHealthy, ResponseTime: time.Since(start).String()}
		if err != nil {
			h.Error = err.Error()
			h.Status = HealthStatusDegraded
			if check.Critical {
				h.Status = HealthStatusDown
			}
		}
		resp.Checks[check.Name] = h
		resp.Status = worst(resp.Status, h.Status)
	}
	return resp
}

func worst(a, b HealthStatus) HealthStatus {
	rank := map[HealthStatus]int{HealthStatusHealthy: 0, HealthStatusDegraded: 1, HealthStatusDown: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
