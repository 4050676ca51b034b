package plugin

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/moosbridge/internal/bridge"
	"github.com/felixgeelhaar/moosbridge/internal/bridge/handle"
	"github.com/sony/gobreaker/v2"
)

// Caller is the host-side view of a plugin's hooks. HooksClient implements
// it.
type Caller interface {
	Bind(ctx context.Context, host Host) error
	OnStartUp(ctx context.Context) (bool, error)
	OnConnectToServer(ctx context.Context) (bool, error)
	Iterate(ctx context.Context) (bool, error)
	OnNewMail(ctx context.Context, mail []bridge.Envelope) (bool, error)
}

var _ Caller = (*HooksClient)(nil)

// RemoteConfig configures how hook calls reach a plugin.
type RemoteConfig struct {
	// CallTimeout bounds every hook call.
	CallTimeout time.Duration

	// FailureThreshold is the number of consecutive failed calls that
	// opens the breaker.
	FailureThreshold uint32

	// MaxRequests is the maximum number of requests allowed in half-open state.
	MaxRequests uint32

	// Interval is the cyclic period of the closed state.
	Interval time.Duration

	// OpenTimeout is the period of the open state.
	OpenTimeout time.Duration
}

// DefaultRemoteConfig returns a sensible default configuration.
func DefaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		CallTimeout:      5 * time.Second,
		FailureThreshold: 5,
		MaxRequests:      1,
		Interval:         30 * time.Second,
		OpenTimeout:      10 * time.Second,
	}
}

// Slots are bridge callbacks that forward to a plugin.
type Slots struct {
	OnStartUp         bridge.Callback
	OnConnectToServer bridge.Callback
	Iterate           bridge.Callback
	OnNewMail         bridge.MailCallback
}

// RemoteHooks forwards bridge hooks to a plugin through a circuit breaker.
// A failed, timed-out or rejected call makes the hook return false.
type RemoteHooks struct {
	id      string
	caller  Caller
	breaker *gobreaker.CircuitBreaker[bool]
	config  RemoteConfig
	logger  *slog.Logger
}

// NewRemoteHooks wraps caller for the plugin identified by id.
func NewRemoteHooks(id string, caller Caller, config RemoteConfig, logger *slog.Logger) *RemoteHooks {
	if logger == nil {
		logger = slog.Default()
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = DefaultRemoteConfig().CallTimeout
	}
	if config.FailureThreshold == 0 {
		config.FailureThreshold = DefaultRemoteConfig().FailureThreshold
	}

	r := &RemoteHooks{
		id:     id,
		caller: caller,
		config: config,
		logger: logger.With("plugin", id),
	}

	r.breaker = gobreaker.NewCircuitBreaker[bool](gobreaker.Settings{
		Name:        id,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.logger.Info("circuit breaker state changed",
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return r
}

// ID returns the plugin identifier.
func (r *RemoteHooks) ID() string {
	return r.id
}

// Bind exposes host to the plugin.
func (r *RemoteHooks) Bind(ctx context.Context, host Host) error {
	ctx, cancel := context.WithTimeout(ctx, r.config.CallTimeout)
	defer cancel()

	if err := r.caller.Bind(ctx, host); err != nil {
		return &HookError{Plugin: r.id, Hook: "bind", Err: err}
	}
	return nil
}

// Slots returns bridge callbacks for all four hooks. The target is not
// forwarded; plugin state lives in the plugin process.
func (r *RemoteHooks) Slots() Slots {
	return Slots{
		OnStartUp: func(handle.Handle) bool {
			return r.call(bridge.HookOnStartUp, r.caller.OnStartUp)
		},
		OnConnectToServer: func(handle.Handle) bool {
			return r.call(bridge.HookOnConnectToServer, r.caller.OnConnectToServer)
		},
		Iterate: func(handle.Handle) bool {
			return r.call(bridge.HookIterate, r.caller.Iterate)
		},
		OnNewMail: func(_ handle.Handle, mail []bridge.Envelope) bool {
			return r.call(bridge.HookOnNewMail, func(ctx context.Context) (bool, error) {
				return r.caller.OnNewMail(ctx, mail)
			})
		},
	}
}

// State returns the breaker state.
func (r *RemoteHooks) State() gobreaker.State {
	return r.breaker.State()
}

func (r *RemoteHooks) call(hook string, fn func(context.Context) (bool, error)) bool {
	result, err := r.breaker.Execute(func() (bool, error) {
		ctx, cancel := context.WithTimeout(context.Background(), r.config.CallTimeout)
		defer cancel()
		return fn(ctx)
	})
	if err == nil {
		return result
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = ErrCircuitOpen
	}
	hookErr := &HookError{Plugin: r.id, Hook: hook, Err: err}
	if IsCircuitOpen(hookErr) {
		// The failure that opened the breaker was already logged.
		r.logger.Debug("plugin hook skipped", "hook", hook, "error", hookErr)
		return false
	}
	r.logger.Warn("plugin hook failed", "hook", hook, "error", hookErr)
	return false
}
