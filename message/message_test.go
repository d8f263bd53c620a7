package message

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/StratifyLabs/son-go/son"
)

func buildMessage(t *testing.T, capacity int) *son.Handle {
	t.Helper()
	buf := make([]byte, capacity)
	h, err := son.CreateMessage(buf, 4)
	require.NoError(t, err)
	require.NoError(t, h.OpenObj(""))
	require.NoError(t, h.WriteStr("name", "stratify"))
	require.NoError(t, h.WriteUnum("count", 7))
	require.NoError(t, h.CloseObj())
	require.NoError(t, h.Close())
	return h
}

func TestSendRecvRoundTrip(t *testing.T) {
	sender := buildMessage(t, 512)

	recvBuf := make([]byte, 512)
	receiver, err := son.OpenMessage(recvBuf)
	require.NoError(t, err)

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- Send(ctx, client, sender, 500) }()

	n, err := Recv(ctx, server, receiver, 500)
	require.NoError(t, err)
	require.NoError(t, <-errc)

	senderBuf, ok := sender.Buffer()
	require.True(t, ok)

	size, err := sender.MessageSize()
	require.NoError(t, err)
	require.Equal(t, size, n)
	require.Equal(t, senderBuf[:n], recvBuf[:n])
}

func TestRecvTruncatesToBufferCapacity(t *testing.T) {
	sender := buildMessage(t, 512)

	smallBuf := make([]byte, 16)
	receiver, err := son.OpenMessage(smallBuf)
	require.NoError(t, err)

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- Send(ctx, client, sender, 500) }()

	n, err := Recv(ctx, server, receiver, 500)
	require.NoError(t, err)
	require.Equal(t, 16, n)

	// net.Pipe is unbuffered: the sender's payload write only completes
	// once the bytes the 16-byte receiver left unread are consumed.
	go func() { _, _ = io.Copy(io.Discard, server) }()
	require.NoError(t, <-errc)
}
