package plugin

import (
	"context"
	"errors"
	"sync"

	"github.com/felixgeelhaar/moosbridge/internal/bridge"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// The services are registered by hand and exchange only protobuf
// well-known types, so both sides share these descriptors instead of
// generated stubs.
const (
	HooksServiceName = "moosbridge.v1.Hooks"
	HostServiceName  = "moosbridge.v1.Host"
)

type hooksService interface {
	Bind(context.Context, *wrapperspb.UInt32Value) (*emptypb.Empty, error)
	OnStartUp(context.Context, *emptypb.Empty) (*wrapperspb.BoolValue, error)
	OnConnectToServer(context.Context, *emptypb.Empty) (*wrapperspb.BoolValue, error)
	Iterate(context.Context, *emptypb.Empty) (*wrapperspb.BoolValue, error)
	OnNewMail(context.Context, *structpb.ListValue) (*wrapperspb.BoolValue, error)
}

type hostService interface {
	NotifyDouble(context.Context, *structpb.Struct) (*wrapperspb.BoolValue, error)
	NotifyString(context.Context, *structpb.Struct) (*wrapperspb.BoolValue, error)
	Register(context.Context, *structpb.Struct) (*wrapperspb.BoolValue, error)
	GetParam(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var hooksServiceDesc = grpc.ServiceDesc{
	ServiceName: HooksServiceName,
	HandlerType: (*hooksService)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(HooksServiceName, "Bind", hooksService.Bind),
		unaryMethod(HooksServiceName, "OnStartUp", hooksService.OnStartUp),
		unaryMethod(HooksServiceName, "OnConnectToServer", hooksService.OnConnectToServer),
		unaryMethod(HooksServiceName, "Iterate", hooksService.Iterate),
		unaryMethod(HooksServiceName, "OnNewMail", hooksService.OnNewMail),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "moosbridge/v1/hooks.proto",
}

var hostServiceDesc = grpc.ServiceDesc{
	ServiceName: HostServiceName,
	HandlerType: (*hostService)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(HostServiceName, "NotifyDouble", hostService.NotifyDouble),
		unaryMethod(HostServiceName, "NotifyString", hostService.NotifyString),
		unaryMethod(HostServiceName, "Register", hostService.Register),
		unaryMethod(HostServiceName, "GetParam", hostService.GetParam),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "moosbridge/v1/host.proto",
}

// unaryMethod builds the method descriptor for one unary RPC of service S.
func unaryMethod[S any, R any, Req interface {
	*R
	proto.Message
}, Resp proto.Message](service, method string, call func(S, context.Context, Req) (Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + service + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := Req(new(R))
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(S), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(S), ctx, req.(Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// invoke performs one unary call and returns the decoded response.
func invoke[R any, Resp interface {
	*R
	proto.Message
}](ctx context.Context, conn grpc.ClientConnInterface, service, method string, in proto.Message) (Resp, error) {
	out := Resp(new(R))
	if err := conn.Invoke(ctx, "/"+service+"/"+method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// RegisterHooksServer registers the hooks service on s.
func RegisterHooksServer(s grpc.ServiceRegistrar, srv *HooksServer) {
	s.RegisterService(&hooksServiceDesc, srv)
}

// RegisterHostServer registers host as the host service on s.
func RegisterHostServer(s grpc.ServiceRegistrar, host Host) {
	s.RegisterService(&hostServiceDesc, &hostServer{impl: host})
}

// HooksServer serves the hooks service in the plugin process.
type HooksServer struct {
	impl Hooks
	dial func(id uint32) (*grpc.ClientConn, error)

	mu   sync.Mutex
	host Host
	conn *grpc.ClientConn
}

// NewHooksServer creates a hooks server. dial opens the brokered connection
// to the host service announced by Bind.
func NewHooksServer(impl Hooks, dial func(id uint32) (*grpc.ClientConn, error)) *HooksServer {
	return &HooksServer{impl: impl, dial: dial}
}

// Bind connects to the host service. A repeated Bind replaces the previous
// connection.
func (s *HooksServer) Bind(ctx context.Context, in *wrapperspb.UInt32Value) (*emptypb.Empty, error) {
	conn, err := s.dial(in.GetValue())
	if err != nil {
		return nil, status.Errorf(codes.Unavailable, "dial host service %d: %v", in.GetValue(), err)
	}

	s.mu.Lock()
	prev := s.conn
	s.conn = conn
	s.host = &hostClient{conn: conn}
	s.mu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}
	return &emptypb.Empty{}, nil
}

// Close releases the host connection.
func (s *HooksServer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.host = nil
	return err
}

func (s *HooksServer) boundHost() (Host, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.host == nil {
		return nil, status.Error(codes.FailedPrecondition, ErrNotBound.Error())
	}
	return s.host, nil
}

func (s *HooksServer) OnStartUp(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.BoolValue, error) {
	return s.dispatch(ctx, s.impl.OnStartUp)
}

func (s *HooksServer) OnConnectToServer(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.BoolValue, error) {
	return s.dispatch(ctx, s.impl.OnConnectToServer)
}

func (s *HooksServer) Iterate(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.BoolValue, error) {
	return s.dispatch(ctx, s.impl.Iterate)
}

func (s *HooksServer) OnNewMail(ctx context.Context, in *structpb.ListValue) (*wrapperspb.BoolValue, error) {
	mail, err := DecodeMail(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return s.dispatch(ctx, func(ctx context.Context, host Host) (bool, error) {
		return s.impl.OnNewMail(ctx, host, mail)
	})
}

func (s *HooksServer) dispatch(ctx context.Context, fn func(context.Context, Host) (bool, error)) (*wrapperspb.BoolValue, error) {
	host, err := s.boundHost()
	if err != nil {
		return nil, err
	}
	ok, err := fn(ctx, host)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return wrapperspb.Bool(ok), nil
}

// HooksClient calls the hooks service from the host process.
type HooksClient struct {
	conn  grpc.ClientConnInterface
	serve func(host Host) uint32
}

// NewHooksClient creates a hooks client. serve exposes a host service and
// returns the id the plugin dials to reach it.
func NewHooksClient(conn grpc.ClientConnInterface, serve func(host Host) uint32) *HooksClient {
	return &HooksClient{conn: conn, serve: serve}
}

// Bind exposes host to the plugin. It must be called before any hook.
func (c *HooksClient) Bind(ctx context.Context, host Host) error {
	if host == nil {
		return errors.New("host is required")
	}
	id := c.serve(host)
	_, err := invoke[emptypb.Empty](ctx, c.conn, HooksServiceName, "Bind", wrapperspb.UInt32(id))
	return err
}

func (c *HooksClient) OnStartUp(ctx context.Context) (bool, error) {
	return c.call(ctx, "OnStartUp", &emptypb.Empty{})
}

func (c *HooksClient) OnConnectToServer(ctx context.Context) (bool, error) {
	return c.call(ctx, "OnConnectToServer", &emptypb.Empty{})
}

func (c *HooksClient) Iterate(ctx context.Context) (bool, error) {
	return c.call(ctx, "Iterate", &emptypb.Empty{})
}

func (c *HooksClient) OnNewMail(ctx context.Context, mail []bridge.Envelope) (bool, error) {
	list, err := EncodeMail(mail)
	if err != nil {
		return false, err
	}
	return c.call(ctx, "OnNewMail", list)
}

func (c *HooksClient) call(ctx context.Context, method string, in proto.Message) (bool, error) {
	out, err := invoke[wrapperspb.BoolValue](ctx, c.conn, HooksServiceName, method, in)
	if err != nil {
		return false, err
	}
	return out.GetValue(), nil
}

// hostServer exposes a Host over gRPC in the host process.
type hostServer struct {
	impl Host
}

func (s *hostServer) NotifyDouble(ctx context.Context, in *structpb.Struct) (*wrapperspb.BoolValue, error) {
	fields := in.GetFields()
	ok, err := s.impl.NotifyDouble(ctx, fields[fieldName].GetStringValue(), fields[fieldNumeric].GetNumberValue())
	return boolReply(ok, err)
}

func (s *hostServer) NotifyString(ctx context.Context, in *structpb.Struct) (*wrapperspb.BoolValue, error) {
	fields := in.GetFields()
	ok, err := s.impl.NotifyString(ctx, fields[fieldName].GetStringValue(), fields[fieldText].GetStringValue())
	return boolReply(ok, err)
}

func (s *hostServer) Register(ctx context.Context, in *structpb.Struct) (*wrapperspb.BoolValue, error) {
	fields := in.GetFields()
	ok, err := s.impl.Register(ctx, fields[fieldName].GetStringValue(), fields[fieldInterval].GetNumberValue())
	return boolReply(ok, err)
}

func (s *hostServer) GetParam(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	query, err := decodeParamQuery(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	value, err := s.impl.GetParam(ctx, query)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return encodeParamValue(value), nil
}

func boolReply(ok bool, err error) (*wrapperspb.BoolValue, error) {
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return wrapperspb.Bool(ok), nil
}

// hostClient is the plugin-side view of the host service.
type hostClient struct {
	conn grpc.ClientConnInterface
}

var _ Host = (*hostClient)(nil)

func (c *hostClient) NotifyDouble(ctx context.Context, name string, value float64) (bool, error) {
	return c.call(ctx, "NotifyDouble", encodeNotify(name, value, ""))
}

func (c *hostClient) NotifyString(ctx context.Context, name, value string) (bool, error) {
	return c.call(ctx, "NotifyString", encodeNotify(name, 0, value))
}

func (c *hostClient) Register(ctx context.Context, name string, interval float64) (bool, error) {
	return c.call(ctx, "Register", encodeRegister(name, interval))
}

func (c *hostClient) GetParam(ctx context.Context, query ParamQuery) (ParamValue, error) {
	out, err := invoke[structpb.Struct](ctx, c.conn, HostServiceName, "GetParam", encodeParamQuery(query))
	if err != nil {
		return ParamValue{}, err
	}
	return decodeParamValue(out), nil
}

func (c *hostClient) call(ctx context.Context, method string, in proto.Message) (bool, error) {
	out, err := invoke[wrapperspb.BoolValue](ctx, c.conn, HostServiceName, method, in)
	if err != nil {
		return false, err
	}
	return out.GetValue(), nil
}
