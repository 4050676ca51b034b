// Package testing provides test utilities for moosbridge applications.
//
// Example usage:
//
//	func TestDepthWatch(t *testing.T) {
//		h := mbtesting.NewHarness(&DepthWatch{}).
//			WithAppParam("max_depth", "40")
//		defer h.Close()
//
//		require.True(t, h.Start())
//		ok, _ := h.Deliver(moos.NewDoubleMessage("NAV_DEPTH", 45))
//		assert.True(t, ok)
//		alarm, _ := h.Base.Double("DEPTH_ALARM")
//		assert.Equal(t, 1.0, alarm)
//	}
package testing

import (
	"strconv"
	"strings"
	"sync"

	"github.com/felixgeelhaar/moosbridge/pkg/moos"
	"github.com/felixgeelhaar/moosbridge/pkg/moosbridge"
)

// FakeBase is an in-memory moos.Base that records every call.
type FakeBase struct {
	mu sync.Mutex

	calls      []string
	doubles    map[string]float64
	strings    map[string]string
	registered map[string]float64
	reports    int

	mission *FakeMission
	hooks   moos.Hooks

	// Script drives the hooks when Run is called. The default runs startup
	// and connect, leaving the hooks available to the harness. A failed
	// startup does not stop connect.
	Script func(hooks moos.Hooks) bool
}

var _ moos.Base = (*FakeBase)(nil)

// NewFakeBase creates an empty fake base.
func NewFakeBase() *FakeBase {
	return &FakeBase{
		doubles:    make(map[string]float64),
		strings:    make(map[string]string),
		registered: make(map[string]float64),
		mission:    NewFakeMission(),
		Script: func(hooks moos.Hooks) bool {
			hooks.OnStartUp()
			hooks.OnConnectToServer()
			return true
		},
	}
}

func (f *FakeBase) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *FakeBase) OnStartUp() bool {
	f.record("OnStartUp")
	return true
}

func (f *FakeBase) Iterate() bool {
	f.record("Iterate")
	return true
}

func (f *FakeBase) OnNewMail(mail *moos.MailList) bool {
	f.record("OnNewMail")
	return true
}

func (f *FakeBase) RegisterVariables() bool {
	f.record("RegisterVariables")
	return true
}

func (f *FakeBase) PostReport() bool {
	f.record("PostReport")
	f.mu.Lock()
	f.reports++
	f.mu.Unlock()
	return true
}

func (f *FakeBase) NotifyDouble(name string, value float64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.doubles[name] = value
	return true
}

func (f *FakeBase) NotifyString(name, value string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.strings[name] = value
	return true
}

func (f *FakeBase) Register(name string, interval float64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered[name] = interval
	return true
}

// Run records the hooks and hands them to Script.
func (f *FakeBase) Run(name, missionFile string, hooks moos.Hooks) bool {
	f.record("Run")
	f.mu.Lock()
	f.hooks = hooks
	script := f.Script
	f.mu.Unlock()
	f.mission.setAppName(name)

	if script == nil {
		return true
	}
	return script(hooks)
}

func (f *FakeBase) MissionReader() moos.MissionReader {
	return f.mission
}

// Hooks returns the hooks passed to the last Run.
func (f *FakeBase) Hooks() moos.Hooks {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hooks
}

// Mission returns the fake mission used for parameter lookups.
func (f *FakeBase) Mission() *FakeMission {
	return f.mission
}

// Calls returns the recorded base calls in order.
func (f *FakeBase) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Double returns the last published numeric value of name.
func (f *FakeBase) Double(name string) (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.doubles[name]
	return v, ok
}

// Text returns the last published text value of name.
func (f *FakeBase) Text(name string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.strings[name]
	return v, ok
}

// Registered returns the registration interval of name.
func (f *FakeBase) Registered(name string) (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.registered[name]
	return v, ok
}

// Reports returns how many reports were posted.
func (f *FakeBase) Reports() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reports
}

// FakeMission is a map-backed moos.MissionReader. Values are stored as text
// and parsed on numeric lookups; names are case-insensitive.
type FakeMission struct {
	mu      sync.RWMutex
	global  map[string]string
	app     map[string]map[string]string
	appName string
}

// NewFakeMission creates an empty mission.
func NewFakeMission() *FakeMission {
	return &FakeMission{
		global: make(map[string]string),
		app:    make(map[string]map[string]string),
	}
}

// SetGlobal sets a global parameter.
func (m *FakeMission) SetGlobal(name, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.global[strings.ToLower(name)] = value
}

// SetApp sets a parameter in the block of the named application.
func (m *FakeMission) SetApp(app, name, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(app)
	if m.app[key] == nil {
		m.app[key] = make(map[string]string)
	}
	m.app[key][strings.ToLower(name)] = value
}

func (m *FakeMission) setAppName(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appName = name
}

func (m *FakeMission) GetValue(name string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.global[strings.ToLower(name)]
	return v, ok
}

func (m *FakeMission) GetDouble(name string) (float64, bool) {
	v, ok := m.GetValue(name)
	return parseDouble(v, ok)
}

func (m *FakeMission) GetConfigurationParam(name string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.app[strings.ToLower(m.appName)][strings.ToLower(name)]
	return v, ok
}

func (m *FakeMission) GetConfigurationDouble(name string) (float64, bool) {
	v, ok := m.GetConfigurationParam(name)
	return parseDouble(v, ok)
}

func parseDouble(v string, ok bool) (float64, bool) {
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Harness drives an App through a FakeBase.
type Harness struct {
	Base    *FakeBase
	Handle  moosbridge.Handle
	AppName string

	detach func()
}

// NewHarness attaches app to a fresh bridge instance over a FakeBase.
func NewHarness(app moosbridge.App, opts ...moosbridge.Option) *Harness {
	base := NewFakeBase()
	h := moosbridge.New(base, opts...)
	return &Harness{
		Base:    base,
		Handle:  h,
		AppName: "pTest",
		detach:  moosbridge.Attach(h, app),
	}
}

// WithAppName sets the application name passed to Run.
func (h *Harness) WithAppName(name string) *Harness {
	h.AppName = name
	return h
}

// WithGlobalParam sets a global mission parameter.
func (h *Harness) WithGlobalParam(name, value string) *Harness {
	h.Base.mission.SetGlobal(name, value)
	return h
}

// WithAppParam sets a parameter for the harness application.
func (h *Harness) WithAppParam(name, value string) *Harness {
	h.Base.mission.SetApp(h.AppName, name, value)
	return h
}

// Start runs the bridge, which performs startup and connect.
func (h *Harness) Start() bool {
	return moosbridge.Run(h.Handle, h.AppName, "harness.toml")
}

// Tick performs one Iterate.
func (h *Harness) Tick() bool {
	hooks := h.Base.Hooks()
	if hooks == nil {
		return false
	}
	return hooks.Iterate()
}

// Deliver hands msgs to the mail hook and returns its result together with
// the messages left in the queue.
func (h *Harness) Deliver(msgs ...moos.Message) (bool, moos.MailList) {
	hooks := h.Base.Hooks()
	if hooks == nil {
		return false, msgs
	}
	mail := moos.MailList(msgs)
	ok := hooks.OnNewMail(&mail)
	return ok, mail
}

// Close detaches the app and deletes the bridge instance.
func (h *Harness) Close() {
	h.detach()
	moosbridge.Delete(h.Handle)
}
