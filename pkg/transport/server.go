package transport

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// SpokeServer is the service a spoke implements. The hub only consumes it;
// the interface exists so spokes and test doubles share one registration.
type SpokeServer interface {
	NodeStatus(ctx context.Context, payload []byte) ([]byte, error)
	ModelTransfer(ctx context.Context, payload []byte) ([]byte, error)
	MessageTransfer(ctx context.Context, payload []byte) ([]byte, error)
	TrainedModel(ctx context.Context, payload []byte) ([]byte, error)
	ReportTransfer(ctx context.Context, payload []byte) ([]byte, error)
	StopMessage(ctx context.Context, payload []byte) ([]byte, error)
}

type spokeHandler func(srv SpokeServer, ctx context.Context, payload []byte) ([]byte, error)

var spokeServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SpokeServer)(nil),
	Methods: []grpc.MethodDesc{
		methodDesc(NodeStatus, SpokeServer.NodeStatus),
		methodDesc(ModelTransfer, SpokeServer.ModelTransfer),
		methodDesc(MessageTransfer, SpokeServer.MessageTransfer),
		methodDesc(TrainedModel, SpokeServer.TrainedModel),
		methodDesc(ReportTransfer, SpokeServer.ReportTransfer),
		methodDesc(StopMessage, SpokeServer.StopMessage),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "monaifl.proto",
}

func RegisterSpokeServer(s grpc.ServiceRegistrar, srv SpokeServer) {
	s.RegisterService(&spokeServiceDesc, srv)
}

func methodDesc(method Method, call spokeHandler) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: string(method),
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(wrapperspb.BytesValue)
			if err := dec(in); err != nil {
				return nil, err
			}

			handler := func(ctx context.Context, req any) (any, error) {
				out, err := call(srv.(SpokeServer), ctx, req.(*wrapperspb.BytesValue).GetValue())
				if err != nil {
					return nil, err
				}

				return wrapperspb.Bytes(out), nil
			}
			if interceptor == nil {
				return handler(ctx, in)
			}

			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: method.FullName(),
			}

			return interceptor(ctx, in, info, handler)
		},
	}
}
