package moos

// Hooks are the four lifecycle points the framework's loop calls into.
// All hooks run on the goroutine blocked in Base.Run, one at a time.
type Hooks interface {
	// OnStartUp is called once, before the first Iterate.
	OnStartUp() bool

	// OnConnectToServer is called whenever the connection to the
	// community is (re)established.
	OnConnectToServer() bool

	// Iterate is called once per scheduler tick.
	Iterate() bool

	// OnNewMail is called when inbound messages are queued. The hook may
	// remove the messages it consumes.
	OnNewMail(mail *MailList) bool
}

// MissionReader resolves mission configuration parameters.
type MissionReader interface {
	// GetValue looks up a global parameter as text.
	GetValue(name string) (string, bool)

	// GetDouble looks up a global parameter as a number.
	GetDouble(name string) (float64, bool)

	// GetConfigurationParam looks up an application-scoped parameter as text.
	GetConfigurationParam(name string) (string, bool)

	// GetConfigurationDouble looks up an application-scoped parameter as a number.
	GetConfigurationDouble(name string) (float64, bool)
}

// Base is the framework's own application behavior. The bridge delegates to
// it before or after running caller code, and forwards the pass-through
// operations of the boundary to it.
type Base interface {
	// OnStartUp performs the framework's startup work.
	OnStartUp() bool

	// Iterate performs the framework's per-tick bookkeeping.
	Iterate() bool

	// OnNewMail performs the framework's own mail handling. It may consume
	// messages addressed to the framework itself.
	OnNewMail(mail *MailList) bool

	// RegisterVariables re-subscribes every previously registered variable.
	RegisterVariables() bool

	// PostReport publishes the application's status report.
	PostReport() bool

	// NotifyDouble publishes a numeric value to the community.
	NotifyDouble(name string, value float64) bool

	// NotifyString publishes a textual value to the community.
	NotifyString(name, value string) bool

	// Register subscribes to a variable with a minimum delivery interval
	// in seconds (0 delivers every update).
	Register(name string, interval float64) bool

	// Run blocks for the lifetime of the application, driving hooks.
	Run(name, missionFile string, hooks Hooks) bool

	// MissionReader gives access to mission parameters. It is only
	// meaningful once Run has loaded the mission.
	MissionReader() MissionReader
}
