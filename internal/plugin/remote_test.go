package plugin

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/felixgeelhaar/moosbridge/internal/bridge"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCaller scripts hook results.
type fakeCaller struct {
	result  bool
	err     error
	delay   time.Duration
	calls   int
	mail    []bridge.Envelope
	bound   Host
	bindErr error
}

func (f *fakeCaller) Bind(_ context.Context, host Host) error {
	f.bound = host
	return f.bindErr
}

func (f *fakeCaller) hook(ctx context.Context) (bool, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	return f.result, f.err
}

func (f *fakeCaller) OnStartUp(ctx context.Context) (bool, error)         { return f.hook(ctx) }
func (f *fakeCaller) OnConnectToServer(ctx context.Context) (bool, error) { return f.hook(ctx) }
func (f *fakeCaller) Iterate(ctx context.Context) (bool, error)           { return f.hook(ctx) }

func (f *fakeCaller) OnNewMail(ctx context.Context, mail []bridge.Envelope) (bool, error) {
	f.mail = mail
	return f.hook(ctx)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestRemoteHooks_Slots(t *testing.T) {
	t.Run("forwards results", func(t *testing.T) {
		caller := &fakeCaller{result: true}
		slots := NewRemoteHooks("demo", caller, DefaultRemoteConfig(), testLogger()).Slots()

		assert.True(t, slots.OnStartUp(0))
		assert.True(t, slots.OnConnectToServer(0))
		assert.True(t, slots.Iterate(0))

		mail := []bridge.Envelope{bridge.NumericEnvelope("depth", 1)}
		assert.True(t, slots.OnNewMail(0, mail))
		assert.Equal(t, mail, caller.mail)
		assert.Equal(t, 4, caller.calls)
	})

	t.Run("false result is not a failure", func(t *testing.T) {
		caller := &fakeCaller{result: false}
		config := DefaultRemoteConfig()
		config.FailureThreshold = 1
		remote := NewRemoteHooks("demo", caller, config, testLogger())

		assert.False(t, remote.Slots().Iterate(0))
		assert.False(t, remote.Slots().Iterate(0))
		assert.Equal(t, gobreaker.StateClosed, remote.State())
		assert.Equal(t, 2, caller.calls)
	})

	t.Run("error yields false", func(t *testing.T) {
		caller := &fakeCaller{result: true, err: errors.New("boom")}
		remote := NewRemoteHooks("demo", caller, DefaultRemoteConfig(), testLogger())

		assert.False(t, remote.Slots().Iterate(0))
	})

	t.Run("timeout yields false", func(t *testing.T) {
		caller := &fakeCaller{result: true, delay: time.Second}
		config := DefaultRemoteConfig()
		config.CallTimeout = 10 * time.Millisecond
		remote := NewRemoteHooks("demo", caller, config, testLogger())

		assert.False(t, remote.Slots().Iterate(0))
	})

	t.Run("breaker opens after consecutive failures", func(t *testing.T) {
		caller := &fakeCaller{err: errors.New("down")}
		config := DefaultRemoteConfig()
		config.FailureThreshold = 2
		config.OpenTimeout = time.Minute
		remote := NewRemoteHooks("demo", caller, config, testLogger())
		slots := remote.Slots()

		slots.Iterate(0)
		slots.Iterate(0)
		require.Equal(t, gobreaker.StateOpen, remote.State())

		assert.False(t, slots.Iterate(0))
		assert.Equal(t, 2, caller.calls)
	})

	t.Run("open circuit is logged at debug", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

		config := DefaultRemoteConfig()
		config.FailureThreshold = 1
		config.OpenTimeout = time.Minute
		remote := NewRemoteHooks("demo", &fakeCaller{err: errors.New("down")}, config, logger)
		slots := remote.Slots()

		slots.Iterate(0)
		assert.Contains(t, buf.String(), "level=WARN msg=\"plugin hook failed\"")

		buf.Reset()
		assert.False(t, slots.Iterate(0))
		assert.Contains(t, buf.String(), "level=DEBUG msg=\"plugin hook skipped\"")
		assert.NotContains(t, buf.String(), "WARN")
	})
}

func TestIsCircuitOpen(t *testing.T) {
	assert.True(t, IsCircuitOpen(&HookError{Plugin: "demo", Hook: "iterate", Err: ErrCircuitOpen}))
	assert.False(t, IsCircuitOpen(&HookError{Plugin: "demo", Hook: "iterate", Err: context.DeadlineExceeded}))
	assert.False(t, IsCircuitOpen(nil))
}

func TestRemoteHooks_Bind(t *testing.T) {
	host := newRecordingHost()

	caller := &fakeCaller{}
	remote := NewRemoteHooks("demo", caller, DefaultRemoteConfig(), nil)
	require.NoError(t, remote.Bind(context.Background(), host))
	assert.Same(t, host, caller.bound)

	caller.bindErr = errors.New("refused")
	err := remote.Bind(context.Background(), host)
	var hookErr *HookError
	require.ErrorAs(t, err, &hookErr)
	assert.Equal(t, "bind", hookErr.Hook)
	assert.Equal(t, "demo", remote.ID())
}
