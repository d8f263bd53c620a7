// Package message implements SON's framed send/receive protocol: a
// complete, sealed container held in a fixed-size buffer, transferred
// over a byte stream as magic + size + checksum followed by the payload.
package message

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/StratifyLabs/son-go/son"
)

// Magic is the little-endian start-of-message sentinel a receiver scans
// the stream for, one byte at a time.
const Magic uint32 = 0x01234567

const headerSize = 12 // magic(4) + size(4) + checksum(4)

// retryInterval is how long the transfer loop sleeps between attempts
// after a transient "would block" signal from the transport.
const retryInterval = time.Millisecond

var defaultLogger = zap.NewNop()

// SetLogger installs the *zap.Logger used for transfer timeout
// diagnostics; retries are not logged. Passing nil restores the no-op
// logger.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	defaultLogger = l
}

// Transport is the byte-stream a message is sent over or received from —
// typically a non-blocking file descriptor or socket.
type Transport interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
}

func isWouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

// transferLoop drives fn until buf is fully transferred, retrying after
// transient "would block" errors and resetting its timeout budget after
// every successful transfer, per the inter-chunk timeout semantics.
func transferLoop(ctx context.Context, fn func([]byte) (int, error), buf []byte, timeoutMs int) error {
	var elapsed time.Duration
	budget := time.Duration(timeoutMs) * time.Millisecond

	total := 0
	for total < len(buf) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := fn(buf[total:])
		switch {
		case err != nil && errors.Is(err, io.EOF):
			return son.ErrMessageIO
		case err != nil && isWouldBlock(err):
			// transient, fall through to the retry/timeout bookkeeping below
		case err != nil:
			return son.ErrMessageIO
		case n == 0:
			// no bytes, no error: treat like a transient stall
		default:
			total += n
			elapsed = 0
			continue
		}

		time.Sleep(retryInterval)
		elapsed += retryInterval
		if elapsed >= budget {
			defaultLogger.Warn("message: transfer timed out waiting on transport")
			return son.ErrMessageTimeout
		}
	}
	return nil
}

// Send transfers h's sealed container over t: the header (magic, size,
// checksum) followed by the payload, clamped to the handle's buffer
// capacity. h must be a message handle (CreateMessage/OpenMessage) whose
// outermost container has been closed.
func Send(ctx context.Context, t Transport, h *son.Handle, timeoutMs int) error {
	size, err := h.MessageSize()
	if err != nil {
		return err
	}

	buf, ok := h.Buffer()
	if !ok {
		return son.ErrMessageIO
	}
	if size > len(buf) {
		size = len(buf)
	}

	var hdr [headerSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], Magic)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(size))
	binary.LittleEndian.PutUint32(hdr[8:12], -(Magic + uint32(size)))

	if err := transferLoop(ctx, t.Write, hdr[:], timeoutMs); err != nil {
		return err
	}
	return transferLoop(ctx, t.Write, buf[:size], timeoutMs)
}

// Recv scans t for the next message, reads its header, and fills h's
// buffer with up to len(buffer) payload bytes, returning the number of
// bytes actually received. A payload larger than h's buffer is truncated
// without error — the caller observes this from the returned count.
func Recv(ctx context.Context, t Transport, h *son.Handle, timeoutMs int) (int, error) {
	buf, ok := h.Buffer()
	if !ok {
		return 0, son.ErrMessageIO
	}

	var magicBytes [4]byte
	binary.LittleEndian.PutUint32(magicBytes[:], Magic)

	matched := 0
	for matched < 4 {
		var b [1]byte
		if err := transferLoop(ctx, t.Read, b[:], timeoutMs); err != nil {
			return 0, err
		}
		if b[0] == magicBytes[matched] {
			matched++
			continue
		}
		if b[0] == magicBytes[0] {
			matched = 1
		} else {
			matched = 0
		}
	}

	var rest [8]byte
	if err := transferLoop(ctx, t.Read, rest[:], timeoutMs); err != nil {
		return 0, err
	}
	size := binary.LittleEndian.Uint32(rest[0:4])
	checksum := binary.LittleEndian.Uint32(rest[4:8])
	if Magic+size+checksum != 0 {
		return 0, son.ErrNoMessage
	}

	for i := range buf {
		buf[i] = 0
	}
	n := int(size)
	if n > len(buf) {
		n = len(buf)
	}
	if n > 0 {
		if err := transferLoop(ctx, t.Read, buf[:n], timeoutMs); err != nil {
			return 0, err
		}
	}
	return n, nil
}
