package bridge

import (
	"sync"
	"time"
)

// Hook names used as metric keys.
const (
	HookOnStartUp         = "on_start_up"
	HookOnConnectToServer = "on_connect_to_server"
	HookIterate           = "iterate"
	HookOnNewMail         = "on_new_mail"
)

// MetricsCollector collects dispatch metrics per hook.
type MetricsCollector struct {
	mu    sync.RWMutex
	hooks map[string]*HookMetrics
	mail  MailMetrics
}

// HookMetrics contains metrics for a single hook.
type HookMetrics struct {
	Hook string `json:"hook"`

	// Calls counts every dispatch of the hook.
	Calls int64 `json:"calls"`

	// Succeeded counts dispatches that returned true.
	Succeeded int64 `json:"succeeded"`

	// Failed counts dispatches that returned false, including unhandled ones.
	Failed int64 `json:"failed"`

	// Unhandled counts dispatches with no callback registered.
	Unhandled int64 `json:"unhandled"`

	TotalDuration   time.Duration `json:"total_duration"`
	AverageDuration time.Duration `json:"average_duration"`
	MinDuration     time.Duration `json:"min_duration"`
	MaxDuration     time.Duration `json:"max_duration"`
	LastCallAt      time.Time     `json:"last_call_at"`
}

// MailMetrics counts what the mail translator did.
type MailMetrics struct {
	Batches    int64 `json:"batches"`
	Translated int64 `json:"translated"`
	Retained   int64 `json:"retained"`
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		hooks: make(map[string]*HookMetrics),
	}
}

// RecordHook records one dispatch of a hook.
func (m *MetricsCollector) RecordHook(hook string, duration time.Duration, result, handled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics, exists := m.hooks[hook]
	if !exists {
		metrics = &HookMetrics{Hook: hook}
		m.hooks[hook] = metrics
	}

	metrics.Calls++
	metrics.TotalDuration += duration
	metrics.LastCallAt = time.Now()

	if result {
		metrics.Succeeded++
	} else {
		metrics.Failed++
	}
	if !handled {
		metrics.Unhandled++
	}

	if metrics.Calls == 1 {
		metrics.MinDuration = duration
		metrics.MaxDuration = duration
	} else {
		if duration < metrics.MinDuration {
			metrics.MinDuration = duration
		}
		if duration > metrics.MaxDuration {
			metrics.MaxDuration = duration
		}
	}
	metrics.AverageDuration = metrics.TotalDuration / time.Duration(metrics.Calls)
}

// RecordMail records one translation pass.
func (m *MetricsCollector) RecordMail(translated, retained int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.mail.Batches++
	m.mail.Translated += int64(translated)
	m.mail.Retained += int64(retained)
}

// Hook returns a copy of the metrics for one hook, or nil if it never ran.
func (m *MetricsCollector) Hook(hook string) *HookMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if metrics, exists := m.hooks[hook]; exists {
		copied := *metrics
		return &copied
	}
	return nil
}

// Mail returns the mail translation counters.
func (m *MetricsCollector) Mail() MailMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.mail
}

// Snapshot contains a point-in-time copy of all metrics.
type Snapshot struct {
	Timestamp time.Time              `json:"timestamp"`
	Hooks     map[string]HookMetrics `json:"hooks"`
	Mail      MailMetrics            `json:"mail"`
}

// TakeSnapshot creates a snapshot of current metrics.
func (m *MetricsCollector) TakeSnapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := Snapshot{
		Timestamp: time.Now(),
		Hooks:     make(map[string]HookMetrics, len(m.hooks)),
		Mail:      m.mail,
	}
	for name, metrics := range m.hooks {
		snapshot.Hooks[name] = *metrics
	}
	return snapshot
}

// Reset clears all metrics.
func (m *MetricsCollector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.hooks = make(map[string]*HookMetrics)
	m.mail = MailMetrics{}
}
