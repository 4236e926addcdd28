// Package authpb declares the wire types for the Authentication service's
// ValidateUser RPC, hand-written in place of protoc-generated stubs: there
// is no protobuf compiler available in this build environment. It
// declares a small JSON-backed grpc encoding.Codec (registered by
// internal/authclient, not by this package) so the real
// google.golang.org/grpc transport can carry these messages on the wire
// without protobuf encoding, and declares the method's fully-qualified
// path the way protoc-gen-go-grpc would.
package authpb

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
)

// ValidateUserRequest is the request for the ValidateUser RPC.
type ValidateUserRequest struct {
	Email string `json:"email"`
}

// ValidateUserResponse is the response for the ValidateUser RPC. It
// declares only IsValid — the Authentication service never returns a
// display name over this RPC.
type ValidateUserResponse struct {
	IsValid bool `json:"is_valid"`
}

// CodecName is the name under which jsonCodec registers with
// google.golang.org/grpc/encoding, selected per-call via
// grpc.CallContentSubtype(CodecName).
const CodecName = "json"

// ValidateUserMethod is the fully-qualified gRPC method path, the same
// shape protoc-gen-go-grpc would emit for service auth.v1.AuthService.
const ValidateUserMethod = "/auth.v1.AuthService/ValidateUser"

// jsonCodec implements encoding.Codec over encoding/json so a hand-rolled
// client stub can ride the real grpc.ClientConn machinery without a
// protobuf code generator.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return CodecName }

// Codec is exported so callers (and tests) can register it explicitly
// with encoding.RegisterCodec; this package has no init-time side effect
// and never registers it itself.
var Codec = jsonCodec{}

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "auth.v1.AuthService"

// AuthServiceServer is implemented by whatever process hosts the
// Authentication service. It is declared here only so tests in this module
// can stand up an in-process fake over the real grpc.Server machinery —
// the Authentication service itself lives outside this module.
type AuthServiceServer interface {
	ValidateUser(ctx context.Context, req *ValidateUserRequest) (*ValidateUserResponse, error)
}

// ServiceDesc is the hand-declared grpc.ServiceDesc for AuthService — the
// shape protoc-gen-go-grpc would generate from a one-RPC .proto file.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AuthServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ValidateUser",
			Handler:    validateUserHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "authpb/authpb.proto",
}

func validateUserHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ValidateUserRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AuthServiceServer).ValidateUser(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: ValidateUserMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AuthServiceServer).ValidateUser(ctx, req.(*ValidateUserRequest))
	}
	return interceptor(ctx, in, info, handler)
}
