package cli

import (
	"log/slog"
	"strings"

	"github.com/felixgeelhaar/moosbridge/pkg/moosbridge"
)

// EchoSuffix is appended to a variable name when its value is echoed.
const EchoSuffix = "_ECHO"

// echoApp is the built-in application run when no plugin is given. It
// subscribes to the variables listed in its "subscribe" parameter and
// republishes every value it receives under <NAME>_ECHO.
type echoApp struct {
	moosbridge.BaseApp

	logger     *slog.Logger
	subscribe  []string
	interval   float64
	iterations int
}

func newEchoApp(logger *slog.Logger) *echoApp {
	return &echoApp{logger: logger}
}

func (a *echoApp) OnStartUp(c moosbridge.Client) bool {
	if list, ok := c.AppParamString("subscribe"); ok {
		for _, name := range strings.Split(list, ",") {
			if name = strings.TrimSpace(name); name != "" {
				a.subscribe = append(a.subscribe, name)
			}
		}
	}
	if v, ok := c.AppParamDouble("interval"); ok && v >= 0 {
		a.interval = v
	}
	a.logger.Info("echo app started", "subscribe", a.subscribe, "interval", a.interval)
	return true
}

func (a *echoApp) OnConnectToServer(c moosbridge.Client) bool {
	ok := true
	for _, name := range a.subscribe {
		ok = c.Register(name, a.interval) && ok
	}
	return ok
}

func (a *echoApp) Iterate(c moosbridge.Client) bool {
	a.iterations++
	return c.NotifyDouble("ECHO_ITERATIONS", float64(a.iterations))
}

func (a *echoApp) OnNewMail(c moosbridge.Client, mail moosbridge.Mail) bool {
	for _, name := range mail.Names() {
		value := mail[name]
		switch value.Kind {
		case moosbridge.KindNumeric:
			c.NotifyDouble(name+EchoSuffix, value.Numeric)
		case moosbridge.KindText:
			c.NotifyString(name+EchoSuffix, value.Text)
		}
	}
	return true
}
