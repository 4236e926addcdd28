package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventcollab/videochat/internal/crypto"
)

func newTestService(t *testing.T) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	svc, err := NewService(mr.Addr(), "")
	require.NoError(t, err)

	return svc, mr
}

func TestInsertAndGetMessages_OrderedByTimestamp(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	defer func() { _ = svc.Close() }()

	ctx := context.Background()

	require.NoError(t, svc.InsertMessage(ctx, "R1", "bob", "cipher-1"))
	require.NoError(t, svc.InsertMessage(ctx, "R1", "alice", "cipher-2"))

	msgs, err := svc.GetMessages(ctx, "R1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "bob", msgs[0].UserID)
	assert.Equal(t, "alice", msgs[1].UserID)
	assert.True(t, msgs[0].Timestamp.Before(msgs[1].Timestamp) || msgs[0].Timestamp.Equal(msgs[1].Timestamp))
}

func TestGetMessages_EmptyRoomReturnsEmpty(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	defer func() { _ = svc.Close() }()

	msgs, err := svc.GetMessages(context.Background(), "no-such-room")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestInsertMessage_NilServiceFailsClosed(t *testing.T) {
	var svc *Service
	err := svc.InsertMessage(context.Background(), "R1", "u", "c")
	require.Error(t, err)
	var se *StoreError
	assert.ErrorAs(t, err, &se)
}

func TestGetMessages_NilServiceReturnsEmpty(t *testing.T) {
	var svc *Service
	msgs, err := svc.GetMessages(context.Background(), "R1")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestPing(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	defer func() { _ = svc.Close() }()

	assert.NoError(t, svc.Ping(context.Background()))
}

func TestCleartextNeverStored(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	defer func() { _ = svc.Close() }()

	ctx := context.Background()
	codec, err := crypto.NewCodec(make([]byte, 32))
	require.NoError(t, err)
	token, err := codec.Encrypt("secret")
	require.NoError(t, err)
	require.NoError(t, svc.InsertMessage(ctx, "R3", "alice", token))

	raw, err := mr.List("room:R3:messages")
	require.NoError(t, err)
	require.Len(t, raw, 1)
	assert.NotContains(t, raw[0], "secret")
}

func TestInsertMessage_TimestampIsUTC(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	defer func() { _ = svc.Close() }()

	ctx := context.Background()
	require.NoError(t, svc.InsertMessage(ctx, "R1", "bob", "c"))

	msgs, err := svc.GetMessages(ctx, "R1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, time.UTC, msgs[0].Timestamp.Location())
}
