// Package son implements the SON binary container engine: the write
// engine (back-patching writer), the path resolver, the read engine, and
// the in-place edit engine, all built on top of package record and
// package sink.
package son

import (
	"encoding/binary"
	"errors"
	"io"
	"os"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/StratifyLabs/son-go/record"
	"github.com/StratifyLabs/son-go/sink"
)

// HeaderSize is the fixed 4-byte header (version u16, reserved u16) that
// precedes the root record in every container.
const HeaderSize = 4

// Version is the on-wire format version SON writes into new containers.
const Version uint16 = 3

var defaultLogger = zap.NewNop()

// SetLogger installs the *zap.Logger new Handles use for diagnostic
// events (handle corruption, append rejection). Message transfer logging
// goes through message.SetLogger instead. It never affects error returns.
// Passing nil restores the no-op logger.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	defaultLogger = l
}

// Writer, Reader, and Editor name the three roles a Handle plays —
// write-only (stack capacity > 0), read-only, and in-place edit — but all
// three are the same underlying type, exactly as the original C API gates
// write/read behavior off one handle's stack_size rather than splitting
// into distinct structs.
type (
	Writer = Handle
	Reader = Handle
	Editor = Handle
)

// Handle is a single open SON container: one sink, one bounded back-patch
// stack (empty for read-only handles), and the sticky last-error and
// integrity state every public operation checks on entry and restores on
// exit. A Handle is not safe for concurrent use by multiple goroutines.
type Handle struct {
	sink      sink.Sink
	stack     []uint32
	stackLoc  int
	lastErr   ErrKind
	checksum  uint32
	corrupted bool
	isMessage bool
	logger    *zap.Logger
}

// stackSize is the handle's back-patch stack capacity; zero means the
// handle cannot open containers or write values (a reader or editor).
func (h *Handle) stackSize() int { return len(h.stack) }

// stateWords returns the mutable state words the handle's tamper-detection
// checksum is computed over.
func (h *Handle) stateWords() [3]uint32 {
	return [3]uint32{uint32(h.stackLoc), uint32(len(h.stack)), uint32(h.lastErr)}
}

func (h *Handle) verifyChecksum() error {
	if h.corrupted {
		return newErr("verify", ErrHandleChecksum, nil)
	}
	sum := h.checksum
	for _, w := range h.stateWords() {
		sum += w
	}
	if sum != 0 {
		h.corrupted = true
		h.logger.Error("son: handle checksum mismatch, handle corrupted")
		return newErr("verify", ErrHandleChecksum, nil)
	}
	return nil
}

func (h *Handle) assignChecksum() {
	if h.corrupted {
		return
	}
	var sum uint32
	for _, w := range h.stateWords() {
		sum += w
	}
	h.checksum = -sum
}

// enter verifies the handle's integrity and reports whether op may
// proceed. Callers must still invoke exit before returning.
func (h *Handle) enter(op string) error {
	if err := h.verifyChecksum(); err != nil {
		return newErr(op, ErrHandleChecksum, nil)
	}
	return nil
}

func (h *Handle) exit() {
	h.assignChecksum()
}

func (h *Handle) fail(op string, kind ErrKind, err error) error {
	h.lastErr = kind
	return newErr(op, kind, err)
}

// LastError returns the most recently set error kind and clears it to
// ErrNone, mirroring son_get_error — except ErrHandleChecksum, which is
// sticky and survives the read: once a handle is corrupted it must be
// treated as lost.
func (h *Handle) LastError() ErrKind {
	if h.corrupted {
		return ErrHandleChecksum
	}
	if err := h.verifyChecksum(); err != nil {
		return ErrHandleChecksum
	}
	e := h.lastErr
	h.lastErr = ErrNone
	h.assignChecksum()
	return e
}

// Sink exposes the handle's underlying byte-sink, for callers (the
// message package) that need to hand it to a different component.
func (h *Handle) Sink() sink.Sink { return h.sink }

// IsMessage reports whether the handle is backed by a fixed-capacity
// in-memory buffer sink (created via CreateMessage/OpenMessage/EditMessage)
// rather than a file.
func (h *Handle) IsMessage() bool { return h.isMessage }

// Buffer returns the handle's backing buffer and true, for handles
// created over an in-memory buffer sink; false for file-backed handles.
func (h *Handle) Buffer() ([]byte, bool) {
	return sink.AsBuffer(h.sink)
}

// MessageSize returns the sealed payload size of a message-backed
// handle — the root container's next_offset — failing with
// ErrIncompleteMessage if the container was never closed.
func (h *Handle) MessageSize() (int, error) {
	const op = "message_size"
	if err := h.enter(op); err != nil {
		return 0, err
	}
	defer h.exit()

	root, err := h.readRecordAt(int64(HeaderSize))
	if err != nil {
		if errors.Is(err, record.ErrChecksum) {
			return 0, h.fail(op, ErrReadChecksum, err)
		}
		return 0, h.fail(op, ErrReadIO, err)
	}
	if root.Next == 0 {
		return 0, h.fail(op, ErrIncompleteMessage, nil)
	}
	return int(root.Next), nil
}

func writeHeader(s sink.Sink) error {
	var buf [HeaderSize]byte
	binary.LittleEndian.PutUint16(buf[0:2], Version)
	binary.LittleEndian.PutUint16(buf[2:4], 0)
	if _, err := s.Write(buf[:]); err != nil {
		return err
	}
	return nil
}

// readRecordAt seeks to pos and decodes the record there, leaving the
// sink positioned at the first byte past the record (its value bytes).
func (h *Handle) readRecordAt(pos int64) (record.Record, error) {
	if _, err := h.sink.Seek(pos, sink.SeekSet); err != nil {
		return record.Record{}, err
	}
	return h.readRecord()
}

// readRecord decodes the record at the sink's current position.
func (h *Handle) readRecord() (record.Record, error) {
	var buf [record.Size]byte
	if _, err := io.ReadFull(h.sink, buf[:]); err != nil {
		return record.Record{}, err
	}
	return record.Decode(buf)
}

// writeRecord encodes r and writes it at the sink's current position.
func (h *Handle) writeRecord(r record.Record) error {
	buf := record.Encode(r)
	_, err := h.sink.Write(buf[:])
	return err
}

func (h *Handle) tell() (int64, error) { return h.sink.Tell() }

func (h *Handle) seekSet(pos int64) error {
	_, err := h.sink.Seek(pos, sink.SeekSet)
	return err
}

// Create creates a new container at name on fs, truncating any existing
// file, and returns a write handle with the given back-patch stack
// capacity.
func Create(fs afero.Fs, name string, stackSize int) (*Handle, error) {
	s, err := sink.NewFile(fs, name, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, newErr("create", ErrOpenIO, err)
	}
	if err := writeHeader(s); err != nil {
		_ = s.Close()
		return nil, newErr("create", ErrOpenIO, err)
	}
	h := &Handle{sink: s, stack: make([]uint32, stackSize), logger: defaultLogger}
	h.assignChecksum()
	return h, nil
}

// CreateMessage creates a new in-memory container in buf (its capacity is
// the message's maximum size) and returns a write handle.
func CreateMessage(buf []byte, stackSize int) (*Handle, error) {
	s := sink.NewBuffer(buf)
	if err := writeHeader(s); err != nil {
		return nil, newErr("create_message", ErrWriteIO, err)
	}
	h := &Handle{sink: s, stack: make([]uint32, stackSize), isMessage: true, logger: defaultLogger}
	h.assignChecksum()
	return h, nil
}

// Open opens an existing container at name for reading only.
func Open(fs afero.Fs, name string) (*Handle, error) {
	s, err := sink.NewFile(fs, name, os.O_RDONLY, 0)
	if err != nil {
		return nil, newErr("open", ErrOpenIO, err)
	}
	h := &Handle{sink: s, logger: defaultLogger}
	h.assignChecksum()
	return h, nil
}

// OpenMessage opens an in-memory container in buf for reading only.
func OpenMessage(buf []byte) (*Handle, error) {
	s := sink.NewBuffer(buf)
	h := &Handle{sink: s, isMessage: true, logger: defaultLogger}
	h.assignChecksum()
	return h, nil
}

// Edit opens an existing container at name for in-place value editing.
func Edit(fs afero.Fs, name string) (*Handle, error) {
	s, err := sink.NewFile(fs, name, os.O_RDWR, 0)
	if err != nil {
		return nil, newErr("edit", ErrOpenIO, err)
	}
	h := &Handle{sink: s, logger: defaultLogger}
	h.assignChecksum()
	return h, nil
}

// EditMessage opens an in-memory container in buf for in-place editing.
func EditMessage(buf []byte) (*Handle, error) {
	s := sink.NewBuffer(buf)
	h := &Handle{sink: s, isMessage: true, logger: defaultLogger}
	h.assignChecksum()
	return h, nil
}

// CreateDriver creates a new container over a caller-supplied sink.Driver
// (a serial port, a test double) instead of a filesystem, and returns a
// write handle with the given back-patch stack capacity.
func CreateDriver(d sink.Driver, stackSize int) (*Handle, error) {
	s := sink.NewDriver(d)
	if err := writeHeader(s); err != nil {
		return nil, newErr("create_driver", ErrOpenIO, err)
	}
	h := &Handle{sink: s, stack: make([]uint32, stackSize), logger: defaultLogger}
	h.assignChecksum()
	return h, nil
}

// OpenDriver opens an existing container over a caller-supplied
// sink.Driver for reading only.
func OpenDriver(d sink.Driver) (*Handle, error) {
	h := &Handle{sink: sink.NewDriver(d), logger: defaultLogger}
	h.assignChecksum()
	return h, nil
}

// EditDriver opens an existing container over a caller-supplied
// sink.Driver for in-place value editing.
func EditDriver(d sink.Driver) (*Handle, error) {
	h := &Handle{sink: sink.NewDriver(d), logger: defaultLogger}
	h.assignChecksum()
	return h, nil
}

// Append opens an existing, sealed container at name for appending
// additional siblings to the root container.
func Append(fs afero.Fs, name string, stackSize int) (*Handle, error) {
	s, err := sink.NewFile(fs, name, os.O_RDWR, 0)
	if err != nil {
		return nil, newErr("append", ErrOpenIO, err)
	}

	rootPos := int64(HeaderSize)
	root, err := (&Handle{sink: s}).readRecordAt(rootPos)
	if err != nil {
		_ = s.Close()
		if errors.Is(err, record.ErrChecksum) {
			return nil, newErr("append", ErrReadChecksum, err)
		}
		return nil, newErr("append", ErrReadIO, err)
	}

	if root.Next == 0 {
		_ = s.Close()
		defaultLogger.Warn("son: append rejected, root container was never sealed")
		return nil, newErr("append", ErrCannotAppend, nil)
	}

	h := &Handle{sink: s, stack: make([]uint32, stackSize), logger: defaultLogger}
	h.stack[0] = uint32(rootPos)
	h.stackLoc = 1
	if err := h.seekSet(int64(root.Next)); err != nil {
		_ = s.Close()
		return nil, newErr("append", ErrSeekIO, err)
	}
	h.assignChecksum()
	h.logger.Info("son: reopened sealed container for append")
	return h, nil
}

// Close releases the handle's sink. For a write handle, every still-open
// container is first closed (back-patched), as CloseAll does explicitly.
func (h *Handle) Close() error {
	if err := h.enter("close"); err != nil {
		return err
	}
	defer h.exit()

	if h.stackSize() > 0 {
		if err := h.closeAllLocked(); err != nil {
			return h.fail("close", ErrCloseIO, err)
		}
	}

	if err := h.sink.Close(); err != nil {
		return h.fail("close", ErrCloseIO, err)
	}
	return nil
}
