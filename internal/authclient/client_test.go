package authclient

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/eventcollab/videochat/internal/rpc/authpb"
)

type fakeAuthServer struct {
	validEmails map[string]bool
}

func (f *fakeAuthServer) ValidateUser(ctx context.Context, req *authpb.ValidateUserRequest) (*authpb.ValidateUserResponse, error) {
	return &authpb.ValidateUserResponse{IsValid: f.validEmails[req.Email]}, nil
}

func startFakeAuthServer(t *testing.T, valid map[string]bool) (addr string, stop func()) {
	t.Helper()

	registerCodecOnce.Do(func() {
		encoding.RegisterCodec(authpb.Codec)
	})

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := grpc.NewServer()
	srv.RegisterService(&authpb.ServiceDesc, &fakeAuthServer{validEmails: valid})

	go func() { _ = srv.Serve(lis) }()

	return lis.Addr().String(), srv.Stop
}

func TestValidateUser_PositiveReply(t *testing.T) {
	addr, stop := startFakeAuthServer(t, map[string]bool{"alice@example.com": true})
	defer stop()

	client, err := New(addr, 2*time.Second)
	require.NoError(t, err)
	defer client.Close()

	err = client.ValidateUser(context.Background(), "alice@example.com")
	assert.NoError(t, err)
}

func TestValidateUser_NegativeReply(t *testing.T) {
	addr, stop := startFakeAuthServer(t, map[string]bool{})
	defer stop()

	client, err := New(addr, 2*time.Second)
	require.NoError(t, err)
	defer client.Close()

	err = client.ValidateUser(context.Background(), "ghost@example.com")
	require.Error(t, err)
	var notFound *UserNotFound
	assert.True(t, errors.As(err, &notFound))
}

func TestValidateUser_TransportFailure(t *testing.T) {
	client, err := New("127.0.0.1:1", 200*time.Millisecond)
	require.NoError(t, err)
	defer client.Close()

	err = client.ValidateUser(context.Background(), "alice@example.com")
	require.Error(t, err)
	var unavailable *AuthUnavailable
	assert.True(t, errors.As(err, &unavailable))
}

func TestHealthy(t *testing.T) {
	addr, stop := startFakeAuthServer(t, map[string]bool{})
	defer stop()

	client, err := New(addr, 2*time.Second)
	require.NoError(t, err)
	defer client.Close()

	// Reachable but returns UserNotFound for the probe address -- still healthy.
	assert.True(t, client.Healthy(context.Background()))
}
