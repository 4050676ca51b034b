package moosbridge

import (
	"context"
	"os"

	bridgeplugin "github.com/felixgeelhaar/moosbridge/internal/plugin"
	"github.com/hashicorp/go-hclog"
	goplugin "github.com/hashicorp/go-plugin"
)

// ServePlugin serves app as a plugin. It should be called from the main
// function of a plugin binary and blocks until the host disconnects.
//
// Example:
//
//	func main() {
//		moosbridge.ServePlugin(&DepthWatch{})
//	}
func ServePlugin(app App) {
	logger := hclog.New(&hclog.LoggerOptions{
		Name:       "moosbridge-plugin",
		Level:      hclog.LevelFromString(os.Getenv("MOOSBRIDGE_LOG_LEVEL")),
		Output:     os.Stderr,
		JSONFormat: true,
	})

	goplugin.Serve(&goplugin.ServeConfig{
		HandshakeConfig: bridgeplugin.HandshakeConfig,
		Plugins: map[string]goplugin.Plugin{
			bridgeplugin.PluginName: &bridgeplugin.HooksPlugin{Impl: NewPluginHooks(app, logger)},
		},
		GRPCServer: goplugin.DefaultGRPCServer,
		Logger:     logger,
	})
}

// NewPluginHooks adapts app to the plugin-side hook interface.
func NewPluginHooks(app App, logger hclog.Logger) bridgeplugin.Hooks {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &appHooks{app: app, logger: logger}
}

type appHooks struct {
	app    App
	logger hclog.Logger
}

func (a *appHooks) client(ctx context.Context, host bridgeplugin.Host) Client {
	return &remoteClient{ctx: ctx, host: host, logger: a.logger}
}

func (a *appHooks) OnStartUp(ctx context.Context, host bridgeplugin.Host) (bool, error) {
	return a.app.OnStartUp(a.client(ctx, host)), nil
}

func (a *appHooks) OnConnectToServer(ctx context.Context, host bridgeplugin.Host) (bool, error) {
	return a.app.OnConnectToServer(a.client(ctx, host)), nil
}

func (a *appHooks) Iterate(ctx context.Context, host bridgeplugin.Host) (bool, error) {
	return a.app.Iterate(a.client(ctx, host)), nil
}

func (a *appHooks) OnNewMail(ctx context.Context, host bridgeplugin.Host, mail []Envelope) (bool, error) {
	return a.app.OnNewMail(a.client(ctx, host), NewMail(mail)), nil
}

// remoteClient implements Client over the brokered host service. Transport
// errors are logged and reported as false.
type remoteClient struct {
	ctx    context.Context
	host   bridgeplugin.Host
	logger hclog.Logger
}

func (c *remoteClient) check(op, name string, err error) bool {
	if err != nil {
		c.logger.Error("host call failed", "op", op, "name", name, "error", err)
		return false
	}
	return true
}

func (c *remoteClient) NotifyDouble(name string, value float64) bool {
	ok, err := c.host.NotifyDouble(c.ctx, name, value)
	return c.check("notify", name, err) && ok
}

func (c *remoteClient) NotifyString(name, value string) bool {
	ok, err := c.host.NotifyString(c.ctx, name, value)
	return c.check("notify", name, err) && ok
}

func (c *remoteClient) Register(name string, interval float64) bool {
	ok, err := c.host.Register(c.ctx, name, interval)
	return c.check("register", name, err) && ok
}

func (c *remoteClient) param(name string, scope bridgeplugin.Scope, kind Kind) (bridgeplugin.ParamValue, bool) {
	v, err := c.host.GetParam(c.ctx, bridgeplugin.ParamQuery{Name: name, Scope: scope, Kind: kind})
	if !c.check("param", name, err) || !v.OK {
		return bridgeplugin.ParamValue{}, false
	}
	return v, true
}

func (c *remoteClient) AppParamDouble(name string) (float64, bool) {
	v, ok := c.param(name, bridgeplugin.ScopeApp, KindNumeric)
	return v.Numeric, ok
}

func (c *remoteClient) AppParamString(name string) (string, bool) {
	v, ok := c.param(name, bridgeplugin.ScopeApp, KindText)
	return v.Text, ok
}

func (c *remoteClient) GlobalParamDouble(name string) (float64, bool) {
	v, ok := c.param(name, bridgeplugin.ScopeGlobal, KindNumeric)
	return v.Numeric, ok
}

func (c *remoteClient) GlobalParamString(name string) (string, bool) {
	v, ok := c.param(name, bridgeplugin.ScopeGlobal, KindText)
	return v.Text, ok
}

// clientHost serves host calls from a plugin through a Client.
type clientHost struct {
	client Client
}

// HostFor exposes the bridge instance h as a plugin host.
func HostFor(h Handle) bridgeplugin.Host {
	return &clientHost{client: ClientFor(h)}
}

func (c *clientHost) NotifyDouble(_ context.Context, name string, value float64) (bool, error) {
	return c.client.NotifyDouble(name, value), nil
}

func (c *clientHost) NotifyString(_ context.Context, name, value string) (bool, error) {
	return c.client.NotifyString(name, value), nil
}

func (c *clientHost) Register(_ context.Context, name string, interval float64) (bool, error) {
	return c.client.Register(name, interval), nil
}

func (c *clientHost) GetParam(_ context.Context, q bridgeplugin.ParamQuery) (bridgeplugin.ParamValue, error) {
	var v bridgeplugin.ParamValue
	switch {
	case q.Scope == bridgeplugin.ScopeApp && q.Kind == KindNumeric:
		v.Numeric, v.OK = c.client.AppParamDouble(q.Name)
	case q.Scope == bridgeplugin.ScopeApp && q.Kind == KindText:
		v.Text, v.OK = c.client.AppParamString(q.Name)
	case q.Scope == bridgeplugin.ScopeGlobal && q.Kind == KindNumeric:
		v.Numeric, v.OK = c.client.GlobalParamDouble(q.Name)
	case q.Scope == bridgeplugin.ScopeGlobal && q.Kind == KindText:
		v.Text, v.OK = c.client.GlobalParamString(q.Name)
	default:
		return v, bridgeplugin.ErrInvalidParamQuery
	}
	return v, nil
}

// AttachPlugin binds a loaded plugin to the bridge instance h and wires its
// hooks into all four callbacks.
func AttachPlugin(ctx context.Context, h Handle, remote *bridgeplugin.RemoteHooks) error {
	inst, ok := instances.Value(h)
	if !ok {
		return ErrUnknownHandle
	}
	if err := remote.Bind(ctx, HostFor(h)); err != nil {
		return err
	}

	slots := remote.Slots()
	inst.bridge.SetOnStartUpCallback(slots.OnStartUp)
	inst.bridge.SetOnConnectToServerCallback(slots.OnConnectToServer)
	inst.bridge.SetIterateCallback(slots.Iterate)
	inst.bridge.SetOnNewMailCallback(slots.OnNewMail)

	inst.logger.Info("plugin attached", "plugin_id", remote.ID())
	return nil
}
