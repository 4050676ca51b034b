// Package bridge turns the framework's lifecycle hooks into calls on a table
// of caller-registered callbacks.
//
// The framework's loop calls the Bridge's hooks; each hook runs the base
// behavior and the caller's callback in a fixed order and falls back to a
// documented default when no callback is registered. A Bridge is driven from
// a single goroutine and takes no locks.
package bridge

import (
	"log/slog"
	"time"

	"github.com/felixgeelhaar/moosbridge/internal/bridge/handle"
	"github.com/felixgeelhaar/moosbridge/pkg/moos"
)

// Callback is a startup, connect or iterate slot. It receives the context
// capability registered with SetTarget.
type Callback func(target handle.Handle) bool

// MailCallback is the mail-received slot. The batch belongs to the callback
// once it is called.
type MailCallback func(target handle.Handle, mail []Envelope) bool

// Ensure Bridge can be driven by the framework loop.
var _ moos.Hooks = (*Bridge)(nil)

// Bridge dispatches framework hooks to registered callbacks.
type Bridge struct {
	base   moos.Base
	target handle.Handle

	onStartUp         Callback
	onConnectToServer Callback
	iterate           Callback
	onNewMail         MailCallback

	logger  *slog.Logger
	metrics *MetricsCollector
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger used for dispatch diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics sets the collector that records hook dispatches.
func WithMetrics(metrics *MetricsCollector) Option {
	return func(b *Bridge) {
		if metrics != nil {
			b.metrics = metrics
		}
	}
}

// New creates a Bridge over the given base application. No slots are set.
func New(base moos.Base, opts ...Option) *Bridge {
	b := &Bridge{
		base:    base,
		logger:  slog.Default(),
		metrics: NewMetricsCollector(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Base returns the underlying framework application.
func (b *Bridge) Base() moos.Base {
	return b.base
}

// Metrics returns the hook metrics collector.
func (b *Bridge) Metrics() *MetricsCollector {
	return b.metrics
}

// Target returns the context capability passed to every callback.
func (b *Bridge) Target() handle.Handle {
	return b.target
}

// SetTarget sets the context capability. The bridge only passes it along; the
// referent's lifetime stays with the caller.
func (b *Bridge) SetTarget(target handle.Handle) {
	b.target = target
}

// SetOnStartUpCallback sets or clears (nil) the startup slot.
func (b *Bridge) SetOnStartUpCallback(cb Callback) {
	b.onStartUp = cb
}

// SetOnConnectToServerCallback sets or clears (nil) the connect slot.
func (b *Bridge) SetOnConnectToServerCallback(cb Callback) {
	b.onConnectToServer = cb
}

// SetIterateCallback sets or clears (nil) the iterate slot.
func (b *Bridge) SetIterateCallback(cb Callback) {
	b.iterate = cb
}

// SetOnNewMailCallback sets or clears (nil) the mail-received slot.
func (b *Bridge) SetOnNewMailCallback(cb MailCallback) {
	b.onNewMail = cb
}

// OnNewMailCallback returns the mail-received slot, nil when unset.
func (b *Bridge) OnNewMailCallback() MailCallback {
	return b.onNewMail
}

// Run hands the bridge to the framework loop and blocks until the
// application terminates.
func (b *Bridge) Run(name, missionFile string) bool {
	b.logger.Info("bridge run starting",
		"app", name,
		"mission", missionFile,
	)

	ok := b.base.Run(name, missionFile, b)

	b.logger.Info("bridge run finished",
		"app", name,
		"success", ok,
	)
	return ok
}

// OnStartUp runs the base startup, then the startup slot. The base result is
// advisory and ignored. Returns false when no slot is set.
func (b *Bridge) OnStartUp() bool {
	start := time.Now()

	b.base.OnStartUp()

	if b.onStartUp == nil {
		b.metrics.RecordHook(HookOnStartUp, time.Since(start), false, false)
		return false
	}

	result := b.onStartUp(b.target)
	b.metrics.RecordHook(HookOnStartUp, time.Since(start), result, true)
	return result
}

// OnConnectToServer re-registers variables and then runs the connect slot.
// Without a slot nothing is re-registered and the result is false.
func (b *Bridge) OnConnectToServer() bool {
	start := time.Now()

	if b.onConnectToServer == nil {
		b.metrics.RecordHook(HookOnConnectToServer, time.Since(start), false, false)
		return false
	}

	// Subscriptions must be live before caller code runs.
	b.base.RegisterVariables()

	result := b.onConnectToServer(b.target)
	b.metrics.RecordHook(HookOnConnectToServer, time.Since(start), result, true)
	return result
}

// Iterate runs the base iterate, then the iterate slot, then posts the report.
// The report is posted exactly once per call whatever the slot does.
func (b *Bridge) Iterate() bool {
	start := time.Now()

	b.base.Iterate()

	result := false
	handled := b.iterate != nil
	if handled {
		result = b.iterate(b.target)
	}

	b.base.PostReport()

	b.metrics.RecordHook(HookIterate, time.Since(start), result, handled)
	return result
}

// OnNewMail runs the base mail handling, translates the remaining mail and
// hands the batch to the mail slot. Translation happens even when no slot is
// set; the batch is then discarded and the result is false.
func (b *Bridge) OnNewMail(mail *moos.MailList) bool {
	start := time.Now()

	b.base.OnNewMail(mail)

	batch := TranslateMail(mail)
	retained := mail.Len()
	b.metrics.RecordMail(len(batch), retained)

	b.logger.Debug("mail translated",
		"translated", len(batch),
		"retained", retained,
	)

	if b.onNewMail == nil {
		b.metrics.RecordHook(HookOnNewMail, time.Since(start), false, false)
		return false
	}

	result := b.onNewMail(b.target, batch)
	b.metrics.RecordHook(HookOnNewMail, time.Since(start), result, true)
	return result
}
