package observability

import (
	"context"
	"sort"
	"sync"
	"time"
)

// HealthStatus represents the health state of a dependency.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// Probe checks one dependency. A nil error means it is reachable.
type Probe func(ctx context.Context) error

// ProbeResult is the outcome of one probe.
type ProbeResult struct {
	Name     string        `json:"name"`
	Status   HealthStatus  `json:"status"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// HealthReport aggregates probe results.
type HealthReport struct {
	Status    HealthStatus  `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Checks    []ProbeResult `json:"checks"`
}

type registeredProbe struct {
	probe    Probe
	critical bool
}

// HealthRegistry runs dependency probes. A failing critical probe makes
// the report unhealthy; any other failure degrades it.
type HealthRegistry struct {
	mu     sync.RWMutex
	probes map[string]registeredProbe
}

// NewHealthRegistry creates an empty registry.
func NewHealthRegistry() *HealthRegistry {
	return &HealthRegistry{probes: make(map[string]registeredProbe)}
}

// Register adds or replaces a probe.
func (r *HealthRegistry) Register(name string, critical bool, probe Probe) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probes[name] = registeredProbe{probe: probe, critical: critical}
}

// Check runs every probe concurrently. Results are sorted by name.
func (r *HealthRegistry) Check(ctx context.Context) HealthReport {
	r.mu.RLock()
	probes := make(map[string]registeredProbe, len(r.probes))
	for k, v := range r.probes {
		probes[k] = v
	}
	r.mu.RUnlock()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make([]ProbeResult, 0, len(probes))
	)
	for name, p := range probes {
		wg.Add(1)
		go func(name string, p registeredProbe) {
			defer wg.Done()
			start := time.Now()
			err := p.probe(ctx)
			result := ProbeResult{Name: name, Status: HealthStatusHealthy, Duration: time.Since(start)}
			if err != nil {
				result.Message = err.Error()
				result.Status = HealthStatusDegraded
				if p.critical {
					result.Status = HealthStatusUnhealthy
				}
			}
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
		}(name, p)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })

	status := HealthStatusHealthy
	for _, result := range results {
		switch result.Status {
		case HealthStatusUnhealthy:
			status = HealthStatusUnhealthy
		case HealthStatusDegraded:
			if status == HealthStatusHealthy {
				status = HealthStatusDegraded
			}
		}
	}

	return HealthReport{
		Status:    status,
		Timestamp: time.Now(),
		Checks:    results,
	}
}
