// Package sink provides the seekable byte-sink abstraction SON reads and
// writes through: a file, a fixed-capacity in-memory buffer, or a
// caller-supplied driver function table. Components above this package
// never touch an *os.File or a []byte directly.
package sink

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
)

// Whence mirrors io.Seeker's origin values under SON's own names, matching
// the SON_SEEK_SET/CUR/END convention from the original phy layer.
type Whence int

const (
	SeekSet Whence = iota
	SeekCur
	SeekEnd
)

func (w Whence) toIO() int {
	switch w {
	case SeekCur:
		return io.SeekCurrent
	case SeekEnd:
		return io.SeekEnd
	default:
		return io.SeekStart
	}
}

// Sink is the uniform read/write/seek/close surface every SON handle is
// built on. Seek returns the resulting absolute position.
type Sink interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	Seek(offset int64, whence Whence) (int64, error)
	Tell() (int64, error)
	Close() error
}

// fileSink wraps an afero file handle (real OS file in production, an
// in-memory afero.MemMapFs entry in tests) for the lifetime of one handle.
type fileSink struct {
	f afero.File
}

// NewFile opens name on fs with the given afero flags/permissions and
// returns a Sink backed by the resulting file. fs may be afero.NewOsFs()
// for real files or afero.NewMemMapFs() for tests.
func NewFile(fs afero.Fs, name string, flag int, perm os.FileMode) (Sink, error) {
	f, err := fs.OpenFile(name, flag, perm)
	if err != nil {
		return nil, fmt.Errorf("sink: open %s: %w", name, err)
	}
	return &fileSink{f: f}, nil
}

func (s *fileSink) Read(p []byte) (int, error)  { return s.f.Read(p) }
func (s *fileSink) Write(p []byte) (int, error) { return s.f.Write(p) }

func (s *fileSink) Seek(offset int64, whence Whence) (int64, error) {
	return s.f.Seek(offset, whence.toIO())
}

func (s *fileSink) Tell() (int64, error) {
	return s.f.Seek(0, io.SeekCurrent)
}

func (s *fileSink) Close() error {
	return s.f.Close()
}

// bufferSink wraps a caller-supplied, fixed-capacity byte slice. Reads and
// writes saturate at the buffer's capacity instead of growing it or
// erroring, so a caller can detect "message too large" from a short count.
type bufferSink struct {
	buf []byte
	pos int64
}

// NewBuffer wraps buf (capacity fixed at len(buf)) as a Sink. The buffer is
// not cleared; callers that need a clean slate zero it themselves.
func NewBuffer(buf []byte) Sink {
	return &bufferSink{buf: buf}
}

func (s *bufferSink) Read(p []byte) (int, error) {
	if s.pos >= int64(len(s.buf)) {
		return 0, io.EOF
	}
	n := copy(p, s.buf[s.pos:])
	s.pos += int64(n)
	return n, nil
}

func (s *bufferSink) Write(p []byte) (int, error) {
	if s.pos >= int64(len(s.buf)) {
		return 0, nil
	}
	n := copy(s.buf[s.pos:], p)
	s.pos += int64(n)
	return n, nil
}

func (s *bufferSink) Seek(offset int64, whence Whence) (int64, error) {
	var base int64
	switch whence {
	case SeekCur:
		base = s.pos
	case SeekEnd:
		base = int64(len(s.buf))
	default:
		base = 0
	}
	pos := base + offset
	if pos < 0 {
		pos = 0
	}
	if pos > int64(len(s.buf)) {
		pos = int64(len(s.buf))
	}
	s.pos = pos
	return s.pos, nil
}

func (s *bufferSink) Tell() (int64, error) { return s.pos, nil }
func (s *bufferSink) Close() error         { return nil }

// Bytes returns the full backing buffer (capacity, not just the written
// prefix) so message framing can hand it to a transport.
func (s *bufferSink) Bytes() []byte { return s.buf }

// AsBuffer exposes the backing buffer of a Sink created with NewBuffer, for
// callers (message framing) that need direct access to the backing array.
// It returns ok=false for any other Sink kind.
func AsBuffer(s Sink) (buf []byte, ok bool) {
	b, ok := s.(*bufferSink)
	if !ok {
		return nil, false
	}
	return b.buf, true
}

// Driver is a caller-supplied function table routing I/O somewhere other
// than a filesystem (a serial port, a test double) — the Go analogue of
// son_phy_set_driver's indirection hook.
type Driver struct {
	Read  func(p []byte) (int, error)
	Write func(p []byte) (int, error)
	Seek  func(offset int64, whence Whence) (int64, error)
	Close func() error
}

type driverSink struct {
	d   Driver
	pos int64
}

// NewDriver wraps a Driver function table as a Sink.
func NewDriver(d Driver) Sink {
	return &driverSink{d: d}
}

func (s *driverSink) Read(p []byte) (int, error)  { return s.d.Read(p) }
func (s *driverSink) Write(p []byte) (int, error) { return s.d.Write(p) }

func (s *driverSink) Seek(offset int64, whence Whence) (int64, error) {
	pos, err := s.d.Seek(offset, whence)
	if err == nil {
		s.pos = pos
	}
	return pos, err
}

func (s *driverSink) Tell() (int64, error) { return s.Seek(0, SeekCur) }

func (s *driverSink) Close() error {
	if s.d.Close == nil {
		return nil
	}
	return s.d.Close()
}

