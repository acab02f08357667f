package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Service statuses reported by the health endpoint. A failing critical
// check makes the service unavailable; a failing non-critical check
// only degrades it.
const (
	statusOK          = "ok"
	statusDegraded    = "degraded"
	statusUnavailable = "unavailable"
)

// serviceName identifies the service in health reports.
const serviceName = "parley"

// HealthCheck probes one dependency of the service.
type HealthCheck struct {
	Name  string
	Probe func(context.Context) error
	// Timeout bounds one probe run. Defaults to 5s.
	Timeout time.Duration
	// Critical checks gate readiness; the store is critical, a
	// reachable summarization queue is not.
	Critical bool
}

// HealthChecker runs the registered checks on demand. Probes execute
// fresh per request; nothing is cached between calls.
type HealthChecker struct {
	mu     sync.RWMutex
	checks []*HealthCheck
}

// CheckResult is one probe outcome in the health report.
type CheckResult struct {
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}

// HealthReport is the health endpoint's response body.
type HealthReport struct {
	Service string                 `json:"service"`
	Version string                 `json:"version"`
	Status  string                 `json:"status"`
	Uptime  string                 `json:"uptime"`
	Checks  map[string]CheckResult `json:"checks"`
}

var (
	globalChecker  *HealthChecker
	initHealthOnce sync.Once

	startTime = time.Now()

	versionMu sync.RWMutex
	version   = "dev"
)

// SetVersion records the build version surfaced by the health report.
func SetVersion(v string) {
	versionMu.Lock()
	defer versionMu.Unlock()
	if v != "" {
		version = v
	}
}

// InitHealthChecker returns the process-wide health checker.
func InitHealthChecker() *HealthChecker {
	initHealthOnce.Do(func() {
		globalChecker = &HealthChecker{}
	})
	return globalChecker
}

// RegisterCheck adds a check to the checker.
func (hc *HealthChecker) RegisterCheck(check *HealthCheck) {
	if check.Timeout == 0 {
		check.Timeout = 5 * time.Second
	}
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks = append(hc.checks, check)
}

// Check runs every registered check and aggregates the report.
func (hc *HealthChecker) Check(ctx context.Context) HealthReport {
	hc.mu.RLock()
	checks := make([]*HealthCheck, len(hc.checks))
	copy(checks, hc.checks)
	hc.mu.RUnlock()

	versionMu.RLock()
	v := version
	versionMu.RUnlock()

	report := HealthReport{
		Service: serviceName,
		Version: v,
		Status:  statusOK,
		Uptime:  time.Since(startTime).Round(time.Second).String(),
		Checks:  make(map[string]CheckResult, len(checks)),
	}

	for _, check := range checks {
		result := runCheck(ctx, check)
		report.Checks[check.Name] = result
		if result.OK {
			continue
		}
		if check.Critical {
			report.Status = statusUnavailable
		} else if report.Status == statusOK {
			report.Status = statusDegraded
		}
	}
	return report
}

func runCheck(ctx context.Context, check *HealthCheck) CheckResult {
	start := time.Now()
	cctx, cancel := context.WithTimeout(ctx, check.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- check.Probe(cctx) }()

	var err error
	select {
	case err = <-done:
	case <-cctx.Done():
		err = cctx.Err()
	}

	result := CheckResult{
		OK:       err == nil,
		Duration: time.Since(start).Round(time.Millisecond).String(),
	}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

// HealthHandler serves the full health report. Degraded still answers
// 200; only a failing critical check returns 503.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := InitHealthChecker().Check(r.Context())

		code := http.StatusOK
		if report.Status == statusUnavailable {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(report)
	}
}

// LivenessHandler answers as long as the process serves requests.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
	}
}

// ReadinessHandler gates on the critical checks only: a degraded
// service still takes traffic, one without its store does not.
func ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := InitHealthChecker().Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if report.Status == statusUnavailable {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "not ready"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	}
}

// PingCheck is a trivial non-critical check proving the checker runs.
func PingCheck() *HealthCheck {
	return &HealthCheck{
		Name:    "ping",
		Probe:   func(context.Context) error { return nil },
		Timeout: time.Second,
	}
}

// DatabaseCheck probes the persistence gateway. Critical: the service
// cannot take turns without its store.
func DatabaseCheck(probe func(context.Context) error) *HealthCheck {
	return &HealthCheck{
		Name:     "store",
		Probe:    probe,
		Critical: true,
	}
}
