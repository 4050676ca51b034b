// Package plugin carries the bridge's lifecycle hooks across a process
// boundary. Caller code runs in a plugin binary served through HashiCorp's
// go-plugin; the host dispatches hooks to it over gRPC and the plugin calls
// back into the host through a brokered connection.
package plugin

import (
	"context"

	"github.com/felixgeelhaar/moosbridge/internal/bridge"
	"github.com/hashicorp/go-plugin"
	"google.golang.org/grpc"
)

// PluginName is the key under which the hooks plugin is dispensed.
const PluginName = "hooks"

// HandshakeConfig is used to verify that the plugin is compatible.
// Both the host and plugins must use the same handshake configuration.
var HandshakeConfig = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "MOOSBRIDGE_PLUGIN",
	MagicCookieValue: "moosbridge-hooks-v1",
}

// PluginMap returns the map of plugins a host can dispense.
func PluginMap() map[string]plugin.Plugin {
	return map[string]plugin.Plugin{
		PluginName: &HooksPlugin{},
	}
}

// Scope selects where a configuration parameter is looked up.
type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeApp    Scope = "app"
)

// IsValid checks if the scope is known.
func (s Scope) IsValid() bool {
	return s == ScopeGlobal || s == ScopeApp
}

// ParamQuery is a configuration parameter lookup.
type ParamQuery struct {
	Name  string
	Scope Scope
	Kind  bridge.Kind
}

// ParamValue is the result of a lookup. Only the field matching the query
// kind is meaningful, and only when OK is true.
type ParamValue struct {
	OK      bool
	Numeric float64
	Text    string
}

// Host is what plugin code can call back into while a hook runs.
type Host interface {
	NotifyDouble(ctx context.Context, name string, value float64) (bool, error)
	NotifyString(ctx context.Context, name, value string) (bool, error)
	Register(ctx context.Context, name string, interval float64) (bool, error)
	GetParam(ctx context.Context, query ParamQuery) (ParamValue, error)
}

// Hooks is implemented by plugin-side code. Each hook receives the host it
// was bound to.
type Hooks interface {
	OnStartUp(ctx context.Context, host Host) (bool, error)
	OnConnectToServer(ctx context.Context, host Host) (bool, error)
	Iterate(ctx context.Context, host Host) (bool, error)
	OnNewMail(ctx context.Context, host Host, mail []bridge.Envelope) (bool, error)
}

// Ensure HooksPlugin implements the GRPCPlugin interface.
var _ plugin.GRPCPlugin = (*HooksPlugin)(nil)

// HooksPlugin is the plugin.Plugin implementation for bridge hooks.
type HooksPlugin struct {
	plugin.Plugin
	// Impl is the concrete implementation (plugin-side).
	Impl Hooks
}

// GRPCServer registers the hooks service in the plugin process.
func (p *HooksPlugin) GRPCServer(broker *plugin.GRPCBroker, s *grpc.Server) error {
	RegisterHooksServer(s, NewHooksServer(p.Impl, broker.Dial))
	return nil
}

// GRPCClient returns the host-side client for the hooks service. The host
// service is exposed to the plugin through the broker when Bind is called.
func (p *HooksPlugin) GRPCClient(ctx context.Context, broker *plugin.GRPCBroker, c *grpc.ClientConn) (interface{}, error) {
	return NewHooksClient(c, func(host Host) uint32 {
		id := broker.NextId()
		go broker.AcceptAndServe(id, func(opts []grpc.ServerOption) *grpc.Server {
			s := grpc.NewServer(opts...)
			RegisterHostServer(s, host)
			return s
		})
		return id
	}), nil
}
