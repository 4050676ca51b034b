// Package moosbridge is the flat, handle-based surface through which caller
// code drives a framework application without implementing any framework
// type.
//
// A caller creates a bridge instance with New, registers up to four
// callbacks and a context Target, and blocks in Run. Every entry point takes
// the instance Handle; operations on an unknown or deleted handle report
// false and do nothing.
package moosbridge

import (
	"errors"
	"log/slog"

	"github.com/felixgeelhaar/moosbridge/internal/bridge"
	"github.com/felixgeelhaar/moosbridge/internal/bridge/handle"
	"github.com/felixgeelhaar/moosbridge/pkg/moos"
)

// Handle identifies one bridge instance.
type Handle = handle.Handle

// Target is the caller's context capability. It is passed unchanged to
// every callback. Use RegisterTarget to obtain one for arbitrary state.
type Target = handle.Handle

// Envelope is one translated mail message.
type Envelope = bridge.Envelope

// Kind tags the meaningful value field of an Envelope.
type Kind = bridge.Kind

const (
	KindNumeric = bridge.KindNumeric
	KindText    = bridge.KindText
)

// Callback is a startup, connect or iterate callback.
type Callback func(target Target) bool

// MailCallback receives the translated mail batch. The batch belongs to the
// callback.
type MailCallback func(target Target, mail []Envelope) bool

// ErrUnknownHandle is returned by operations that report errors when the
// handle does not name a live bridge instance.
var ErrUnknownHandle = errors.New("unknown bridge handle")

type instance struct {
	bridge *bridge.Bridge
	logger *slog.Logger

	// legacyStringParams leaves string lookup outputs untouched on success.
	legacyStringParams bool
}

var (
	instances = handle.NewRegistry[*instance]()
	targets   = handle.NewRegistry[any]()
)

type options struct {
	logger             *slog.Logger
	metrics            *bridge.MetricsCollector
	legacyStringParams bool
}

// Option configures a bridge instance.
type Option func(*options)

// WithLogger sets the instance logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics shares a hook metrics collector with the instance.
func WithMetrics(metrics *bridge.MetricsCollector) Option {
	return func(o *options) {
		o.metrics = metrics
	}
}

// WithLegacyStringParams restores the historical behavior of the string
// configuration lookups: they report success but never write the value.
func WithLegacyStringParams() Option {
	return func(o *options) {
		o.legacyStringParams = true
	}
}

// New creates a bridge instance over base with no callbacks and a zero
// target.
func New(base moos.Base, opts ...Option) Handle {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	b := bridge.New(base, bridge.WithLogger(logger), bridge.WithMetrics(o.metrics))
	h := instances.New(&instance{
		bridge:             b,
		logger:             logger,
		legacyStringParams: o.legacyStringParams,
	})

	logger.Debug("bridge instance created", "handle", uint64(h))
	return h
}

// Delete releases a bridge instance. It must not be called while Run is
// executing on the same handle.
func Delete(h Handle) {
	if inst, ok := instances.Value(h); ok {
		inst.logger.Debug("bridge instance deleted", "handle", uint64(h))
	}
	instances.Delete(h)
}

// Metrics returns a snapshot of the instance's hook metrics.
func Metrics(h Handle) (bridge.Snapshot, bool) {
	inst, ok := instances.Value(h)
	if !ok {
		return bridge.Snapshot{}, false
	}
	return inst.bridge.Metrics().TakeSnapshot(), true
}

// SetTarget sets the context passed to every callback.
func SetTarget(h Handle, target Target) {
	if inst, ok := instances.Value(h); ok {
		inst.bridge.SetTarget(target)
	}
}

// SetOnStartUpCallback sets or clears (nil) the startup callback.
func SetOnStartUpCallback(h Handle, cb Callback) {
	if inst, ok := instances.Value(h); ok {
		inst.bridge.SetOnStartUpCallback(toBridgeCallback(cb))
	}
}

// SetOnConnectToServerCallback sets or clears (nil) the connect callback.
func SetOnConnectToServerCallback(h Handle, cb Callback) {
	if inst, ok := instances.Value(h); ok {
		inst.bridge.SetOnConnectToServerCallback(toBridgeCallback(cb))
	}
}

// SetIterateCallback sets or clears (nil) the iterate callback.
func SetIterateCallback(h Handle, cb Callback) {
	if inst, ok := instances.Value(h); ok {
		inst.bridge.SetIterateCallback(toBridgeCallback(cb))
	}
}

// SetOnNewMailCallback sets or clears (nil) the mail callback.
func SetOnNewMailCallback(h Handle, cb MailCallback) {
	inst, ok := instances.Value(h)
	if !ok {
		return
	}
	if cb == nil {
		inst.bridge.SetOnNewMailCallback(nil)
		return
	}
	inst.bridge.SetOnNewMailCallback(func(target handle.Handle, mail []bridge.Envelope) bool {
		return cb(target, mail)
	})
}

// WrapOnNewMailCallback replaces the mail callback with wrap applied to the
// current one, which is nil when unset. It reports false for an unknown
// handle.
func WrapOnNewMailCallback(h Handle, wrap func(MailCallback) MailCallback) bool {
	inst, ok := instances.Value(h)
	if !ok {
		return false
	}
	var current MailCallback
	if cb := inst.bridge.OnNewMailCallback(); cb != nil {
		current = MailCallback(cb)
	}
	next := wrap(current)
	if next == nil {
		inst.bridge.SetOnNewMailCallback(nil)
		return true
	}
	inst.bridge.SetOnNewMailCallback(bridge.MailCallback(next))
	return true
}

func toBridgeCallback(cb Callback) bridge.Callback {
	if cb == nil {
		return nil
	}
	return func(target handle.Handle) bool {
		return cb(target)
	}
}

// NotifyDouble publishes a numeric value.
func NotifyDouble(h Handle, name string, value float64) bool {
	inst, ok := instances.Value(h)
	if !ok {
		return false
	}
	return inst.bridge.Base().NotifyDouble(name, value)
}

// NotifyString publishes a textual value.
func NotifyString(h Handle, name, value string) bool {
	inst, ok := instances.Value(h)
	if !ok {
		return false
	}
	return inst.bridge.Base().NotifyString(name, value)
}

// Register subscribes to a variable. interval is the minimum delivery
// interval in seconds; 0 delivers every update.
func Register(h Handle, name string, interval float64) bool {
	inst, ok := instances.Value(h)
	if !ok {
		return false
	}
	return inst.bridge.Base().Register(name, interval)
}

// Run blocks in the framework loop until the application terminates.
func Run(h Handle, name, missionFile string) bool {
	inst, ok := instances.Value(h)
	if !ok {
		return false
	}
	return inst.bridge.Run(name, missionFile)
}

func missionReader(h Handle) (moos.MissionReader, *instance, bool) {
	inst, ok := instances.Value(h)
	if !ok {
		return nil, nil, false
	}
	reader := inst.bridge.Base().MissionReader()
	if reader == nil {
		return nil, nil, false
	}
	return reader, inst, true
}

// GetDoubleGlobalConfigParam looks up a global numeric parameter and writes
// it to out on success.
func GetDoubleGlobalConfigParam(h Handle, name string, out *float64) bool {
	reader, _, ok := missionReader(h)
	if !ok {
		return false
	}
	v, found := reader.GetDouble(name)
	if found && out != nil {
		*out = v
	}
	return found
}

// GetStringGlobalConfigParam looks up a global text parameter and writes it
// to out on success.
func GetStringGlobalConfigParam(h Handle, name string, out *string) bool {
	reader, inst, ok := missionReader(h)
	if !ok {
		return false
	}
	v, found := reader.GetValue(name)
	if found && out != nil && !inst.legacyStringParams {
		*out = v
	}
	return found
}

// GetDoubleAppConfigParam looks up an application-scoped numeric parameter
// and writes it to out on success.
func GetDoubleAppConfigParam(h Handle, name string, out *float64) bool {
	reader, _, ok := missionReader(h)
	if !ok {
		return false
	}
	v, found := reader.GetConfigurationDouble(name)
	if found && out != nil {
		*out = v
	}
	return found
}

// GetStringAppConfigParam looks up an application-scoped text parameter and
// writes it to out on success.
func GetStringAppConfigParam(h Handle, name string, out *string) bool {
	reader, inst, ok := missionReader(h)
	if !ok {
		return false
	}
	v, found := reader.GetConfigurationParam(name)
	if found && out != nil && !inst.legacyStringParams {
		*out = v
	}
	return found
}

// RegisterTarget stores v and returns a Target that resolves to it.
func RegisterTarget(v any) Target {
	return targets.New(v)
}

// ResolveTarget returns the value a Target was registered with.
func ResolveTarget(t Target) (any, bool) {
	return targets.Value(t)
}

// ReleaseTarget forgets a Target. Callbacks that still receive it will fail
// to resolve it.
func ReleaseTarget(t Target) {
	targets.Delete(t)
}
