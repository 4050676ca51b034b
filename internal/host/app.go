// Package host is a reference implementation of the framework's base
// application. It loads a TOML mission, connects to a community through a
// Comms transport and drives the lifecycle hooks at the configured tick
// rate. It is not wire-compatible with MOOSDB.
package host

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/felixgeelhaar/moosbridge/internal/mission"
	"github.com/felixgeelhaar/moosbridge/pkg/moos"
	"github.com/google/uuid"
)

// AppcastRequestKey is the variable other processes post to request an
// immediate report. The base consumes it.
const AppcastRequestKey = "APPCAST_REQ"

const (
	// DefaultAppTick is the tick rate in Hz when the mission sets none.
	DefaultAppTick = 4.0

	// MaxAppTick bounds the tick rate.
	MaxAppTick = 200.0

	// DefaultReportInterval is the period between unrequested reports.
	DefaultReportInterval = 5 * time.Second
)

// Config holds the tunables of an App.
type Config struct {
	// AppTick is the tick rate in Hz. The mission's AppTick overrides it.
	AppTick float64

	// ReportInterval is the minimum period between unrequested reports.
	ReportInterval time.Duration

	// MaxIterations stops Run after that many ticks. Zero runs until the
	// context is cancelled.
	MaxIterations int64

	// Community names the community in reports.
	Community string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		AppTick:        DefaultAppTick,
		ReportInterval: DefaultReportInterval,
	}
}

var _ moos.Base = (*App)(nil)

// App is the host's base application.
type App struct {
	id      uuid.UUID
	comms   Comms
	reports ReportPublisher
	config  Config
	logger  *slog.Logger
	clock   func() time.Time
	ctx     context.Context

	mu              sync.Mutex
	name            string
	mission         *mission.Mission
	connected       bool
	registered      map[string]float64
	lastDelivered   map[string]time.Time
	published       map[string]string
	iteration       int64
	startedAt       time.Time
	lastReport      time.Time
	reportRequested bool
}

// Option configures an App.
type Option func(*App)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithReportPublisher sets where reports go. The default logs them.
func WithReportPublisher(p ReportPublisher) Option {
	return func(a *App) {
		if p != nil {
			a.reports = p
		}
	}
}

// WithConfig replaces the configuration.
func WithConfig(config Config) Option {
	return func(a *App) {
		a.config = config
	}
}

// WithContext sets the context whose cancellation ends Run.
func WithContext(ctx context.Context) Option {
	return func(a *App) {
		if ctx != nil {
			a.ctx = ctx
		}
	}
}

// WithClock replaces the time source.
func WithClock(clock func() time.Time) Option {
	return func(a *App) {
		if clock != nil {
			a.clock = clock
		}
	}
}

// NewApp creates a host application talking through comms.
func NewApp(comms Comms, opts ...Option) *App {
	a := &App{
		id:            uuid.New(),
		comms:         comms,
		config:        DefaultConfig(),
		logger:        slog.Default(),
		clock:         time.Now,
		ctx:           context.Background(),
		registered:    make(map[string]float64),
		lastDelivered: make(map[string]time.Time),
		published:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.reports == nil {
		a.reports = NewLogPublisher(a.logger)
	}
	return a
}

// ID returns the instance id carried in reports.
func (a *App) ID() uuid.UUID {
	return a.id
}

// Iteration returns the number of completed ticks.
func (a *App) Iteration() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.iteration
}

// Registered returns the registered variables in sorted order.
func (a *App) Registered() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.registeredLocked()
}

func (a *App) registeredLocked() []string {
	names := make([]string, 0, len(a.registered))
	for name := range a.registered {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run loads the mission, connects and drives hooks until the context is
// cancelled or MaxIterations ticks have run.
func (a *App) Run(name, missionFile string, hooks moos.Hooks) bool {
	logger := a.logger.With("app", name, "instance_id", a.id)

	m, err := a.LoadMission(name, missionFile)
	if err != nil {
		logger.Error("failed to load mission", "error", err)
		return false
	}
	if !m.HasApp(name) {
		logger.Warn("mission has no block for app", "mission", missionFile)
	}

	period := a.tickPeriod(m)

	logger.Info("app starting", "mission", missionFile, "tick", period)

	// A failed startup is advisory; the app still connects and iterates.
	if !hooks.OnStartUp() {
		logger.Warn("startup reported failure")
	}

	if err := a.comms.Connect(a.ctx, name); err != nil {
		logger.Error("failed to connect", "error", err)
		return false
	}
	defer func() {
		if err := a.comms.Close(); err != nil {
			logger.Warn("error closing comms", "error", err)
		}
	}()

	a.mu.Lock()
	a.connected = true
	a.mu.Unlock()

	if err := a.comms.Subscribe(a.ctx, AppcastRequestKey); err != nil {
		logger.Warn("failed to subscribe to report requests", "error", err)
	}
	hooks.OnConnectToServer()

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var ticks int64
	for {
		select {
		case <-a.ctx.Done():
			logger.Info("app stopping", "ticks", ticks)
			return true
		case <-a.comms.Reconnects():
			logger.Info("reconnected to community")
			hooks.OnConnectToServer()
			continue
		case <-ticker.C:
		}

		mail := a.collectMail()
		if mail.Len() > 0 {
			hooks.OnNewMail(&mail)
		}
		hooks.Iterate()
		ticks++

		if limit := a.config.MaxIterations; limit > 0 && ticks >= limit {
			logger.Info("app finished", "iterations", limit)
			return true
		}
	}
}

// LoadMission reads the mission file and selects the block of app name.
// Run calls it; it is exported for tools that only need parameter lookups.
func (a *App) LoadMission(name, missionFile string) (*mission.Mission, error) {
	m, err := mission.Load(missionFile)
	if err != nil {
		return nil, err
	}
	m.SetAppName(name)

	a.mu.Lock()
	a.name = name
	a.mission = m
	a.mu.Unlock()
	return m, nil
}

func (a *App) tickPeriod(m *mission.Mission) time.Duration {
	tick := a.config.AppTick
	if v, ok := m.GetConfigurationDouble("AppTick"); ok {
		tick = v
	}
	if tick <= 0 {
		tick = DefaultAppTick
	}
	if tick > MaxAppTick {
		tick = MaxAppTick
	}
	return time.Duration(float64(time.Second) / tick)
}

// collectMail drains the inbox, dropping messages of variables no longer
// registered and updates arriving faster than their registration interval.
func (a *App) collectMail() moos.MailList {
	var mail moos.MailList
	now := a.clock()

	a.mu.Lock()
	defer a.mu.Unlock()

	for {
		select {
		case msg := <-a.comms.Inbox():
			if msg.Key != AppcastRequestKey {
				interval, ok := a.registered[msg.Key]
				if !ok {
					continue
				}
				if last, seen := a.lastDelivered[msg.Key]; seen && interval > 0 &&
					now.Sub(last) < time.Duration(interval*float64(time.Second)) {
					continue
				}
				a.lastDelivered[msg.Key] = now
			}
			mail.Push(msg)
		default:
			return mail
		}
	}
}

// OnStartUp records the start time.
func (a *App) OnStartUp() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.startedAt = a.clock()
	a.lastReport = a.startedAt
	return true
}

// Iterate advances the iteration counter.
func (a *App) Iterate() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.iteration++
	return true
}

// OnNewMail consumes report requests.
func (a *App) OnNewMail(mail *moos.MailList) bool {
	requests := mail.RemoveFunc(func(msg moos.Message) bool {
		return msg.Key == AppcastRequestKey
	})
	if len(requests) > 0 {
		a.mu.Lock()
		a.reportRequested = true
		a.mu.Unlock()
	}
	return true
}

// RegisterVariables re-subscribes every registered variable and the report
// request variable.
func (a *App) RegisterVariables() bool {
	a.mu.Lock()
	names := append(a.registeredLocked(), AppcastRequestKey)
	a.mu.Unlock()

	if err := a.comms.Subscribe(a.ctx, names...); err != nil {
		a.logger.Warn("failed to register variables", "error", err)
		return false
	}
	return true
}

// PostReport publishes a report when one was requested or the report
// interval elapsed.
func (a *App) PostReport() bool {
	now := a.clock()

	a.mu.Lock()
	if !a.reportRequested && now.Sub(a.lastReport) < a.config.ReportInterval {
		a.mu.Unlock()
		return true
	}
	published := make(map[string]string, len(a.published))
	for k, v := range a.published {
		published[k] = v
	}
	report := Report{
		ID:         uuid.New(),
		InstanceID: a.id,
		App:        a.name,
		Community:  a.config.Community,
		Iteration:  a.iteration,
		Uptime:     now.Sub(a.startedAt).Seconds(),
		Requested:  a.reportRequested,
		Registered: a.registeredLocked(),
		Published:  published,
		Time:       now,
	}
	a.reportRequested = false
	a.lastReport = now
	a.mu.Unlock()

	if err := a.reports.PublishReport(a.ctx, report); err != nil {
		a.logger.Warn("failed to publish report", "app", report.App, "error", err)
		return false
	}
	return true
}

// NotifyDouble publishes a numeric value.
func (a *App) NotifyDouble(name string, value float64) bool {
	msg := moos.NewDoubleMessage(name, value)
	return a.notify(msg, strconv.FormatFloat(value, 'g', -1, 64))
}

// NotifyString publishes a textual value.
func (a *App) NotifyString(name, value string) bool {
	return a.notify(moos.NewStringMessage(name, value), value)
}

func (a *App) notify(msg moos.Message, display string) bool {
	a.mu.Lock()
	connected := a.connected
	msg.Source = a.name
	msg.Time = a.clock()
	a.mu.Unlock()

	if !connected {
		return false
	}
	if err := a.comms.Publish(a.ctx, msg); err != nil {
		a.logger.Warn("failed to publish", "key", msg.Key, "error", err)
		return false
	}

	a.mu.Lock()
	a.published[msg.Key] = display
	a.mu.Unlock()
	return true
}

// Register records the variable and subscribes to it when connected. The
// interval in seconds throttles delivery; zero delivers every update.
func (a *App) Register(name string, interval float64) bool {
	if name == "" || interval < 0 {
		return false
	}

	a.mu.Lock()
	a.registered[name] = interval
	connected := a.connected
	a.mu.Unlock()

	if !connected {
		return true
	}
	if err := a.comms.Subscribe(a.ctx, name); err != nil {
		a.logger.Warn("failed to subscribe", "key", name, "error", err)
		return false
	}
	return true
}

// MissionReader returns the loaded mission, or nil before Run.
func (a *App) MissionReader() moos.MissionReader {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mission == nil {
		return nil
	}
	return a.mission
}
