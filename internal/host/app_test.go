package host

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/moosbridge/internal/bridge"
	"github.com/felixgeelhaar/moosbridge/internal/bridge/handle"
	"github.com/felixgeelhaar/moosbridge/pkg/moos"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMission = `
Community = "alpha"

[ProcessConfig.pTest]
AppTick = 200
max_depth = 40
`

func writeMission(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "alpha.toml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))
	return path
}

// scriptedHooks records hook calls and runs optional per-hook actions.
type scriptedHooks struct {
	mu      sync.Mutex
	calls   []string
	mail    []moos.Message
	startUp bool

	onConnect func(n int)
	onIterate func(n int)
}

func newScriptedHooks() *scriptedHooks {
	return &scriptedHooks{startUp: true}
}

func (h *scriptedHooks) record(call string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, call)
	n := 0
	for _, c := range h.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (h *scriptedHooks) count(call string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range h.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (h *scriptedHooks) OnStartUp() bool {
	h.record("startup")
	return h.startUp
}

func (h *scriptedHooks) OnConnectToServer() bool {
	n := h.record("connect")
	if h.onConnect != nil {
		h.onConnect(n)
	}
	return true
}

func (h *scriptedHooks) Iterate() bool {
	n := h.record("iterate")
	if h.onIterate != nil {
		h.onIterate(n)
	}
	return true
}

func (h *scriptedHooks) OnNewMail(mail *moos.MailList) bool {
	h.record("mail")
	h.mu.Lock()
	h.mail = append(h.mail, *mail...)
	h.mu.Unlock()
	return true
}

// recordingPublisher keeps published reports.
type recordingPublisher struct {
	mu      sync.Mutex
	reports []Report
}

func (p *recordingPublisher) PublishReport(_ context.Context, r Report) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reports = append(p.reports, r)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) all() []Report {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Report(nil), p.reports...)
}

func testConfig(iterations int64) Config {
	cfg := DefaultConfig()
	cfg.MaxIterations = iterations
	return cfg
}

func TestApp_Run(t *testing.T) {
	community := NewCommunity("alpha", nil)
	app := NewApp(community.Join(), WithConfig(testConfig(3)))
	hooks := newScriptedHooks()

	require.True(t, app.Run("pTest", writeMission(t, testMission), hooks))

	assert.Equal(t, 1, hooks.count("startup"))
	assert.Equal(t, 1, hooks.count("connect"))
	assert.Equal(t, 3, hooks.count("iterate"))
	assert.Equal(t, 0, hooks.count("mail"))
	assert.Equal(t, []string{"startup", "connect"}, hooks.calls[:2])

	reader := app.MissionReader()
	require.NotNil(t, reader)
	v, ok := reader.GetConfigurationDouble("max_depth")
	assert.True(t, ok)
	assert.Equal(t, 40.0, v)
}

func TestApp_Run_Failures(t *testing.T) {
	t.Run("missing mission", func(t *testing.T) {
		app := NewApp(NewCommunity("alpha", nil).Join())
		hooks := newScriptedHooks()
		assert.False(t, app.Run("pTest", filepath.Join(t.TempDir(), "none.toml"), hooks))
		assert.Equal(t, 0, hooks.count("startup"))
		assert.Nil(t, app.MissionReader())
	})

	t.Run("connect cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		app := NewApp(NewCommunity("alpha", nil).Join(), WithContext(ctx))
		assert.False(t, app.Run("pTest", writeMission(t, testMission), newScriptedHooks()))
	})
}

func TestApp_Run_StartupFailureKeepsRunning(t *testing.T) {
	comms := NewCommunity("alpha", nil).Join()
	app := NewApp(comms, WithConfig(testConfig(3)))
	hooks := newScriptedHooks()
	hooks.startUp = false

	assert.True(t, app.Run("pTest", writeMission(t, testMission), hooks))
	assert.Equal(t, 1, hooks.count("connect"))
	assert.Equal(t, 3, hooks.count("iterate"))
	assert.Equal(t, int64(3), app.Iteration())
}

func TestApp_Run_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	app := NewApp(NewCommunity("alpha", nil).Join(), WithContext(ctx))
	hooks := newScriptedHooks()
	hooks.onIterate = func(n int) {
		if n == 2 {
			cancel()
		}
	}

	assert.True(t, app.Run("pTest", writeMission(t, testMission), hooks))
	assert.GreaterOrEqual(t, hooks.count("iterate"), 2)
}

func TestApp_Run_DeliversRegisteredMail(t *testing.T) {
	community := NewCommunity("alpha", nil)
	peer := community.Join()
	require.NoError(t, peer.Connect(context.Background(), "pPeer"))

	app := NewApp(community.Join(), WithConfig(testConfig(5)))
	hooks := newScriptedHooks()
	hooks.onConnect = func(int) {
		app.Register("DEPTH", 0)
		app.Register("SONAR", 0)
	}
	hooks.onIterate = func(n int) {
		if n == 1 {
			ctx := context.Background()
			require.NoError(t, peer.Publish(ctx, moos.NewDoubleMessage("DEPTH", 12.5)))
			require.NoError(t, peer.Publish(ctx, moos.NewStringMessage("SPEED", "ignored")))
			require.NoError(t, peer.Publish(ctx, moos.NewBinaryMessage("SONAR", []byte{1})))
		}
	}

	require.True(t, app.Run("pTest", writeMission(t, testMission), hooks))

	require.Equal(t, 1, hooks.count("mail"))
	require.Len(t, hooks.mail, 2)
	assert.Equal(t, "DEPTH", hooks.mail[0].Key)
	assert.Equal(t, 12.5, hooks.mail[0].Double)
	assert.Equal(t, "pPeer", hooks.mail[0].Source)
	assert.Equal(t, "SONAR", hooks.mail[1].Key)
}

func TestApp_Run_Reconnect(t *testing.T) {
	comms := NewCommunity("alpha", nil).Join()
	app := NewApp(comms, WithConfig(testConfig(50)))
	hooks := newScriptedHooks()
	hooks.onIterate = func(n int) {
		if n == 1 {
			comms.SimulateReconnect()
		}
	}

	require.True(t, app.Run("pTest", writeMission(t, testMission), hooks))
	assert.Equal(t, 2, hooks.count("connect"))
}

func TestApp_Notify(t *testing.T) {
	community := NewCommunity("alpha", nil)
	peer := community.Join()
	require.NoError(t, peer.Connect(context.Background(), "pPeer"))
	require.NoError(t, peer.Subscribe(context.Background(), "X", "Y"))

	app := NewApp(community.Join(), WithConfig(testConfig(1)))
	assert.False(t, app.NotifyDouble("X", 1), "not connected yet")

	hooks := newScriptedHooks()
	hooks.onConnect = func(int) {
		assert.True(t, app.NotifyDouble("X", 2))
		assert.True(t, app.NotifyString("Y", "two"))
	}
	require.True(t, app.Run("pTest", writeMission(t, testMission), hooks))

	x := <-peer.Inbox()
	assert.Equal(t, "X", x.Key)
	assert.Equal(t, 2.0, x.Double)
	assert.Equal(t, "pTest", x.Source)

	y := <-peer.Inbox()
	assert.Equal(t, "two", y.String)
}

func TestApp_Register(t *testing.T) {
	comms := NewCommunity("alpha", nil).Join()
	app := NewApp(comms)

	assert.True(t, app.Register("DEPTH", 0), "stored before connecting")
	assert.False(t, app.Register("", 0))
	assert.False(t, app.Register("SPEED", -1))
	assert.Equal(t, []string{"DEPTH"}, app.Registered())

	require.NoError(t, comms.Connect(context.Background(), "pTest"))
	assert.False(t, comms.Subscribed("DEPTH"))

	assert.True(t, app.RegisterVariables())
	assert.True(t, comms.Subscribed("DEPTH"))
	assert.True(t, comms.Subscribed(AppcastRequestKey))
}

func TestApp_CollectMail_Throttles(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	comms := NewCommunity("alpha", nil).Join()
	app := NewApp(comms, WithClock(func() time.Time { return now }))
	app.Register("DEPTH", 1)
	app.Register("SPEED", 0)

	push := func(msgs ...moos.Message) {
		for _, m := range msgs {
			comms.inbox <- m
		}
	}

	push(moos.NewDoubleMessage("DEPTH", 1), moos.NewDoubleMessage("DEPTH", 2), moos.NewDoubleMessage("SPEED", 3))
	mail := app.collectMail()
	assert.Equal(t, []string{"DEPTH", "SPEED"}, mail.Keys())

	now = now.Add(500 * time.Millisecond)
	push(moos.NewDoubleMessage("DEPTH", 4), moos.NewDoubleMessage("SPEED", 5))
	mail = app.collectMail()
	assert.Equal(t, []string{"SPEED"}, mail.Keys())

	now = now.Add(600 * time.Millisecond)
	push(moos.NewDoubleMessage("DEPTH", 6), moos.NewStringMessage(AppcastRequestKey, "pTest"))
	mail = app.collectMail()
	assert.Equal(t, []string{"DEPTH", AppcastRequestKey}, mail.Keys())
	assert.Equal(t, 6.0, mail[0].Double)

	push(moos.NewDoubleMessage("UNREGISTERED", 7))
	mail = app.collectMail()
	assert.Zero(t, mail.Len())
}

func TestApp_PostReport(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	publisher := &recordingPublisher{}
	cfg := DefaultConfig()
	cfg.Community = "alpha"
	app := NewApp(NewCommunity("alpha", nil).Join(),
		WithConfig(cfg),
		WithReportPublisher(publisher),
		WithClock(func() time.Time { return now }),
	)
	app.Register("DEPTH", 0)
	require.True(t, app.OnStartUp())

	assert.True(t, app.PostReport())
	assert.Empty(t, publisher.all(), "interval not elapsed")

	t.Run("request consumed from mail", func(t *testing.T) {
		mail := moos.MailList{
			moos.NewDoubleMessage("DEPTH", 1),
			moos.NewStringMessage(AppcastRequestKey, "pTest"),
		}
		assert.True(t, app.OnNewMail(&mail))
		assert.Equal(t, []string{"DEPTH"}, mail.Keys())

		now = now.Add(time.Second)
		assert.True(t, app.Iterate())
		assert.True(t, app.PostReport())

		reports := publisher.all()
		require.Len(t, reports, 1)
		assert.True(t, reports[0].Requested)
		assert.Equal(t, int64(1), reports[0].Iteration)
		assert.Equal(t, 1.0, reports[0].Uptime)
		assert.Equal(t, "alpha", reports[0].Community)
		assert.Equal(t, app.ID(), reports[0].InstanceID)
		assert.Equal(t, []string{"DEPTH"}, reports[0].Registered)
	})

	t.Run("interval elapsed", func(t *testing.T) {
		now = now.Add(DefaultReportInterval)
		assert.True(t, app.PostReport())
		reports := publisher.all()
		require.Len(t, reports, 2)
		assert.False(t, reports[1].Requested)
		assert.NotEqual(t, reports[0].ID, reports[1].ID)

		assert.True(t, app.PostReport())
		assert.Len(t, publisher.all(), 2)
	})
}

func TestApp_WithBridge(t *testing.T) {
	community := NewCommunity("alpha", nil)
	peer := community.Join()
	require.NoError(t, peer.Connect(context.Background(), "pPeer"))

	publisher := &recordingPublisher{}
	cfg := testConfig(6)
	cfg.ReportInterval = 0
	app := NewApp(community.Join(), WithConfig(cfg), WithReportPublisher(publisher))
	b := bridge.New(app)

	var (
		iterations int
		batches    [][]bridge.Envelope
	)
	b.SetOnStartUpCallback(func(handle.Handle) bool {
		app.Register("DEPTH", 0)
		return true
	})
	b.SetOnConnectToServerCallback(func(handle.Handle) bool { return true })
	b.SetIterateCallback(func(handle.Handle) bool {
		iterations++
		if iterations == 1 {
			require.NoError(t, peer.Publish(context.Background(), moos.NewDoubleMessage("DEPTH", 9)))
			require.NoError(t, peer.Publish(context.Background(), moos.NewStringMessage(AppcastRequestKey, "pTest")))
		}
		return true
	})
	b.SetOnNewMailCallback(func(_ handle.Handle, mail []bridge.Envelope) bool {
		batches = append(batches, mail)
		return true
	})

	require.True(t, b.Run("pTest", writeMission(t, testMission)))

	assert.Equal(t, 6, iterations)
	assert.Equal(t, int64(6), app.Iteration())
	require.Len(t, batches, 1)
	assert.Equal(t, []bridge.Envelope{bridge.NumericEnvelope("DEPTH", 9)}, batches[0])
	assert.Len(t, publisher.all(), 6)
}

func TestApp_WithBridge_IterateSlotOnly(t *testing.T) {
	community := NewCommunity("alpha", nil)
	peer := community.Join()
	require.NoError(t, peer.Connect(context.Background(), "pPeer"))

	app := NewApp(community.Join(), WithConfig(testConfig(3)))
	b := bridge.New(app)

	iterations := 0
	b.SetIterateCallback(func(handle.Handle) bool {
		iterations++
		if iterations == 1 {
			require.NoError(t, peer.Publish(context.Background(), moos.NewStringMessage(AppcastRequestKey, "pTest")))
		}
		return true
	})

	require.True(t, b.Run("pTest", writeMission(t, testMission)))

	assert.Equal(t, 3, iterations)
	assert.Equal(t, int64(3), app.Iteration())

	snapshot := b.Metrics().TakeSnapshot()
	assert.Equal(t, int64(1), snapshot.Hooks[bridge.HookOnStartUp].Calls)
	assert.Equal(t, int64(1), snapshot.Hooks[bridge.HookOnNewMail].Calls)
}

func TestMultiPublisher(t *testing.T) {
	a, b := &recordingPublisher{}, &recordingPublisher{}
	multi := MultiPublisher{a, NoopPublisher{}, NewLogPublisher(nil), b}

	require.NoError(t, multi.PublishReport(context.Background(), Report{App: "pTest"}))
	assert.Len(t, a.all(), 1)
	assert.Len(t, b.all(), 1)
	assert.NoError(t, multi.Close())
}
