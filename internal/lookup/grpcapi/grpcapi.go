// Package grpcapi serves and consumes selection service lookups over gRPC.
//
// The service has a single unary method whose request and response are
// google.protobuf.Struct values:
//
//	service Lookup {
//	  rpc Lookup(google.protobuf.Struct) returns (google.protobuf.Struct);
//	}
//
// The request carries input_text, sequence and correlation_id; the response
// is the {"results": {"items": [...]}} envelope.
package grpcapi

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/runger/singleselect/internal/lookup"
)

const (
	// ServiceName is the fully-qualified gRPC service name.
	ServiceName = "singleselect.lookup.v1.Lookup"

	lookupMethod = "/" + ServiceName + "/Lookup"
)

// LookupServer is the server API for the Lookup service.
type LookupServer interface {
	Lookup(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes the Lookup service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LookupServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Lookup",
			Handler:    lookupHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "singleselect/lookup/v1/lookup.proto",
}

func lookupHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LookupServer).Lookup(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: lookupMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LookupServer).Lookup(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Register adds a Server answering with svc to s.
func Register(s *grpc.Server, svc lookup.Service, logger *slog.Logger) {
	s.RegisterService(&ServiceDesc, NewServer(svc, logger))
}

// Server adapts a lookup.Service to LookupServer.
type Server struct {
	svc    lookup.Service
	logger *slog.Logger
}

// NewServer creates a Server.
func NewServer(svc lookup.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{svc: svc, logger: logger}
}

// Lookup implements LookupServer.
func (s *Server) Lookup(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := requestFromStruct(in)
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.NewString()
	}
	req.Trigger = "grpc"

	env, err := s.svc.Lookup(ctx, req)
	if err != nil {
		s.logger.Error("lookup failed",
			"correlation_id", req.CorrelationID,
			"error", err,
		)
		return nil, status.Error(codes.Unavailable, "lookup failed")
	}

	out, err := structpb.NewStruct(env.Map())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

func requestFromStruct(in *structpb.Struct) lookup.Request {
	fields := in.GetFields()
	req := lookup.Request{
		InputText:     fields["input_text"].GetStringValue(),
		CorrelationID: fields["correlation_id"].GetStringValue(),
	}
	if n := fields["sequence"].GetNumberValue(); n > 0 {
		req.Sequence = uint64(n)
	}
	return req
}

func requestToStruct(req lookup.Request) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"input_text":     structpb.NewStringValue(req.InputText),
		"sequence":       structpb.NewNumberValue(float64(req.Sequence)),
		"correlation_id": structpb.NewStringValue(req.CorrelationID),
	}}
}

// Client is a lookup.Service backed by a remote gRPC server.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps an existing connection.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Dial connects to target without transport security. The returned close
// function releases the connection.
func Dial(target string, opts ...grpc.DialOption) (*Client, func() error, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("grpcapi: dial: %w", err)
	}
	return NewClient(conn), conn.Close, nil
}

// Lookup implements lookup.Service.
func (c *Client) Lookup(ctx context.Context, req lookup.Request) (lookup.Envelope, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, lookupMethod, requestToStruct(req), out); err != nil {
		return lookup.Envelope{}, fmt.Errorf("grpcapi: lookup: %w", err)
	}
	return lookup.EnvelopeFromMap(out.AsMap()), nil
}
