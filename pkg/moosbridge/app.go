package moosbridge

import (
	"sort"
)

// Value is one mail value keyed by variable name in Mail.
type Value struct {
	Kind    Kind
	Numeric float64
	Text    string
}

// Mail is a mail batch keyed by variable name. When a batch carries the
// same name more than once the last value wins.
type Mail map[string]Value

// NewMail builds a Mail from a translated batch.
func NewMail(batch []Envelope) Mail {
	mail := make(Mail, len(batch))
	for _, env := range batch {
		mail[env.Name] = Value{Kind: env.Kind, Numeric: env.Numeric, Text: env.Text}
	}
	return mail
}

// Double returns a numeric value.
func (m Mail) Double(name string) (float64, bool) {
	v, ok := m[name]
	if !ok || v.Kind != KindNumeric {
		return 0, false
	}
	return v.Numeric, true
}

// Text returns a textual value.
func (m Mail) Text(name string) (string, bool) {
	v, ok := m[name]
	if !ok || v.Kind != KindText {
		return "", false
	}
	return v.Text, true
}

// Names returns the variable names in sorted order.
func (m Mail) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Client is what an App can do while one of its hooks runs.
type Client interface {
	NotifyDouble(name string, value float64) bool
	NotifyString(name, value string) bool
	Register(name string, interval float64) bool

	AppParamDouble(name string) (float64, bool)
	AppParamString(name string) (string, bool)
	GlobalParamDouble(name string) (float64, bool)
	GlobalParamString(name string) (string, bool)
}

// App is caller code expressed as a Go type. It can run in process through
// Attach or in a plugin binary through ServePlugin.
type App interface {
	OnStartUp(c Client) bool
	OnConnectToServer(c Client) bool
	Iterate(c Client) bool
	OnNewMail(c Client, mail Mail) bool
}

// BaseApp provides successful no-op hooks. Embed it to implement only the
// hooks an application needs.
type BaseApp struct{}

func (BaseApp) OnStartUp(Client) bool         { return true }
func (BaseApp) OnConnectToServer(Client) bool { return true }
func (BaseApp) Iterate(Client) bool           { return true }
func (BaseApp) OnNewMail(Client, Mail) bool   { return true }

// handleClient implements Client through the boundary entry points.
type handleClient struct {
	h Handle
}

// ClientFor returns a Client that acts on the bridge instance h.
func ClientFor(h Handle) Client {
	return handleClient{h: h}
}

func (c handleClient) NotifyDouble(name string, value float64) bool {
	return NotifyDouble(c.h, name, value)
}

func (c handleClient) NotifyString(name, value string) bool {
	return NotifyString(c.h, name, value)
}

func (c handleClient) Register(name string, interval float64) bool {
	return Register(c.h, name, interval)
}

func (c handleClient) AppParamDouble(name string) (float64, bool) {
	var v float64
	ok := GetDoubleAppConfigParam(c.h, name, &v)
	return v, ok
}

func (c handleClient) AppParamString(name string) (string, bool) {
	var v string
	ok := GetStringAppConfigParam(c.h, name, &v)
	return v, ok
}

func (c handleClient) GlobalParamDouble(name string) (float64, bool) {
	var v float64
	ok := GetDoubleGlobalConfigParam(c.h, name, &v)
	return v, ok
}

func (c handleClient) GlobalParamString(name string) (string, bool) {
	var v string
	ok := GetStringGlobalConfigParam(c.h, name, &v)
	return v, ok
}

// Attach registers app as the target of h and wires all four callbacks to
// it. The returned function clears the callbacks and releases the target.
func Attach(h Handle, app App) (detach func()) {
	target := RegisterTarget(app)
	client := ClientFor(h)

	resolve := func(t Target) (App, bool) {
		v, ok := ResolveTarget(t)
		if !ok {
			return nil, false
		}
		a, ok := v.(App)
		return a, ok
	}

	SetTarget(h, target)
	SetOnStartUpCallback(h, func(t Target) bool {
		a, ok := resolve(t)
		return ok && a.OnStartUp(client)
	})
	SetOnConnectToServerCallback(h, func(t Target) bool {
		a, ok := resolve(t)
		return ok && a.OnConnectToServer(client)
	})
	SetIterateCallback(h, func(t Target) bool {
		a, ok := resolve(t)
		return ok && a.Iterate(client)
	})
	SetOnNewMailCallback(h, func(t Target, batch []Envelope) bool {
		a, ok := resolve(t)
		return ok && a.OnNewMail(client, NewMail(batch))
	})

	return func() {
		SetOnStartUpCallback(h, nil)
		SetOnConnectToServerCallback(h, nil)
		SetIterateCallback(h, nil)
		SetOnNewMailCallback(h, nil)
		SetTarget(h, 0)
		ReleaseTarget(target)
	}
}
