package son

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/StratifyLabs/son-go/record"
	"github.com/StratifyLabs/son-go/sink"
)

// Direction selects which relative record SeekNext advances to.
type Direction int

const (
	NextSibling Direction = iota
	NextChild
)

// resolveFor resolves access for operation op, translating a resolver
// ErrKind into the handle's normal fail() path.
func (h *Handle) resolveFor(op, access string) (match, error) {
	m, err := h.resolve(access)
	if err != nil {
		if k, ok := err.(ErrKind); ok {
			return match{}, h.fail(op, k, nil)
		}
		return match{}, h.fail(op, ErrReadIO, err)
	}
	return m, nil
}

// readValue reads the full value byte range of a resolved match.
func (h *Handle) readValue(m match) ([]byte, error) {
	n := int(m.valueEnd - m.valueStart)
	if n <= 0 {
		return nil, nil
	}
	if _, err := h.sink.Seek(m.valueStart, sink.SeekSet); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(h.sink, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadRaw resolves access and copies min(value_size, len(buf)) bytes into
// buf, zero-filling any trailing capacity, returning the copied length.
func (h *Handle) ReadRaw(access string, buf []byte) (int, error) {
	const op = "read_raw"
	if err := h.enter(op); err != nil {
		return 0, err
	}
	defer h.exit()

	if h.stackSize() != 0 {
		return 0, h.fail(op, ErrCannotRead, nil)
	}
	m, err := h.resolveFor(op, access)
	if err != nil {
		return 0, err
	}

	n := int(m.valueEnd - m.valueStart)
	if n < 0 {
		n = 0
	}
	if n > len(buf) {
		n = len(buf)
	}
	if n > 0 {
		if _, err := h.sink.Seek(m.valueStart, sink.SeekSet); err != nil {
			return 0, h.fail(op, ErrSeekIO, err)
		}
		if _, err := io.ReadFull(h.sink, buf[:n]); err != nil {
			return 0, h.fail(op, ErrReadIO, err)
		}
	}
	for i := n; i < len(buf); i++ {
		buf[i] = 0
	}
	return n, nil
}

// ReadData is ReadRaw under its own name, matching the public surface's
// read_data entry — the table in §4.E has no conversions of its own for
// DATA as the asked type, only as the stored type.
func (h *Handle) ReadData(access string, buf []byte) (int, error) {
	return h.ReadRaw(access, buf)
}

func le32(raw []byte) uint32 {
	var b [4]byte
	copy(b[:], raw)
	return binary.LittleEndian.Uint32(b[:])
}

func trimNUL(raw []byte) string {
	for i, b := range raw {
		if b == 0 {
			return string(raw[:i])
		}
	}
	return string(raw)
}

// toNum converts a stored value to num/unum/float's shared numeric
// domain, per §4.E's conversion table (num/unum/float are one column:
// "numeric cast" for FLOAT, "direct" for U32/S32).
func toNum(kind record.Kind, raw []byte) (value int64, isFloat bool, f float32, ok bool) {
	switch kind {
	case record.Float:
		fv := math.Float32frombits(le32(raw))
		return int64(fv), true, fv, true
	case record.U32:
		return int64(le32(raw)), false, 0, true
	case record.S32:
		return int64(int32(le32(raw))), false, 0, true
	case record.True:
		return 1, false, 0, true
	case record.False, record.Null:
		return 0, false, 0, true
	case record.String:
		return 0, false, 0, true // parsed by the caller, per type requested
	default: // DATA, OBJECT, ARRAY
		return 0, false, 0, false
	}
}

func toBool(kind record.Kind, raw []byte) (bool, bool) {
	switch kind {
	case record.True:
		return true, true
	case record.False, record.Null:
		return false, true
	default:
		return false, false
	}
}

// ReadNum reads access as a signed 32-bit integer, applying the stored
// kind's conversion.
func (h *Handle) ReadNum(access string) (int32, error) {
	const op = "read_num"
	if err := h.enter(op); err != nil {
		return 0, err
	}
	defer h.exit()

	if h.stackSize() != 0 {
		return 0, h.fail(op, ErrCannotRead, nil)
	}
	m, err := h.resolveFor(op, access)
	if err != nil {
		return 0, err
	}
	raw, rerr := h.readValue(m)
	if rerr != nil {
		return 0, h.fail(op, ErrReadIO, rerr)
	}

	if m.rec.Kind == record.String {
		n, perr := strconv.ParseInt(trimNUL(raw), 10, 32)
		if perr != nil {
			return 0, nil
		}
		return int32(n), nil
	}

	v, _, _, ok := toNum(m.rec.Kind, raw)
	if !ok {
		return 0, h.fail(op, ErrCannotConvert, nil)
	}
	return int32(v), nil
}

// ReadUnum reads access as an unsigned 32-bit integer.
func (h *Handle) ReadUnum(access string) (uint32, error) {
	const op = "read_unum"
	if err := h.enter(op); err != nil {
		return 0, err
	}
	defer h.exit()

	if h.stackSize() != 0 {
		return 0, h.fail(op, ErrCannotRead, nil)
	}
	m, err := h.resolveFor(op, access)
	if err != nil {
		return 0, err
	}
	raw, rerr := h.readValue(m)
	if rerr != nil {
		return 0, h.fail(op, ErrReadIO, rerr)
	}

	if m.rec.Kind == record.String {
		n, perr := strconv.ParseUint(trimNUL(raw), 10, 32)
		if perr != nil {
			return 0, nil
		}
		return uint32(n), nil
	}

	v, _, _, ok := toNum(m.rec.Kind, raw)
	if !ok {
		return 0, h.fail(op, ErrCannotConvert, nil)
	}
	return uint32(v), nil
}

// ReadFloat reads access as a 32-bit float.
func (h *Handle) ReadFloat(access string) (float32, error) {
	const op = "read_float"
	if err := h.enter(op); err != nil {
		return 0, err
	}
	defer h.exit()

	if h.stackSize() != 0 {
		return 0, h.fail(op, ErrCannotRead, nil)
	}
	m, err := h.resolveFor(op, access)
	if err != nil {
		return 0, err
	}
	raw, rerr := h.readValue(m)
	if rerr != nil {
		return 0, h.fail(op, ErrReadIO, rerr)
	}

	if m.rec.Kind == record.String {
		f, perr := strconv.ParseFloat(trimNUL(raw), 32)
		if perr != nil {
			return 0, nil
		}
		return float32(f), nil
	}

	_, isFloat, f, ok := toNum(m.rec.Kind, raw)
	if !ok {
		return 0, h.fail(op, ErrCannotConvert, nil)
	}
	if isFloat {
		return f, nil
	}
	v, _, _, _ := toNum(m.rec.Kind, raw)
	return float32(v), nil
}

// ReadStr reads access converted to its string representation into buf,
// zero-filling trailing capacity, returning the copied length.
func (h *Handle) ReadStr(access string, buf []byte) (int, error) {
	const op = "read_str"
	if err := h.enter(op); err != nil {
		return 0, err
	}
	defer h.exit()

	if h.stackSize() != 0 {
		return 0, h.fail(op, ErrCannotRead, nil)
	}
	m, err := h.resolveFor(op, access)
	if err != nil {
		return 0, err
	}
	raw, rerr := h.readValue(m)
	if rerr != nil {
		return 0, h.fail(op, ErrReadIO, rerr)
	}

	var s string
	switch m.rec.Kind {
	case record.String, record.Data:
		s = trimNUL(raw)
		if m.rec.Kind == record.Data {
			s = string(raw)
		}
	case record.Float:
		f := math.Float32frombits(le32(raw))
		s = fmt.Sprintf("%f", f)
	case record.U32:
		s = strconv.FormatUint(uint64(le32(raw)), 10)
	case record.S32:
		s = strconv.FormatInt(int64(int32(le32(raw))), 10)
	case record.True:
		s = "true"
	case record.False:
		s = "false"
	case record.Null:
		s = "null"
	default:
		for i := range buf {
			buf[i] = 0
		}
		return 0, h.fail(op, ErrCannotConvert, nil)
	}

	b := []byte(s)
	n := len(b)
	if n > len(buf) {
		n = len(buf)
	}
	copy(buf, b[:n])
	for i := n; i < len(buf); i++ {
		buf[i] = 0
	}
	return n, nil
}

// ReadBool reads access as a boolean; only TRUE/FALSE/NULL convert.
func (h *Handle) ReadBool(access string) (bool, error) {
	const op = "read_bool"
	if err := h.enter(op); err != nil {
		return false, err
	}
	defer h.exit()

	if h.stackSize() != 0 {
		return false, h.fail(op, ErrCannotRead, nil)
	}
	m, err := h.resolveFor(op, access)
	if err != nil {
		return false, err
	}
	raw, rerr := h.readValue(m)
	if rerr != nil {
		return false, h.fail(op, ErrReadIO, rerr)
	}

	v, ok := toBool(m.rec.Kind, raw)
	if !ok {
		return false, h.fail(op, ErrCannotConvert, nil)
	}
	return v, nil
}

// Seek resolves access and positions the sink at the matched record's own
// start, reporting its kind and key. A following SeekNext reads this same
// record and advances relative to it.
func (h *Handle) Seek(access string) (record.Kind, string, error) {
	const op = "seek"
	if err := h.enter(op); err != nil {
		return 0, "", err
	}
	defer h.exit()

	if h.stackSize() != 0 {
		return 0, "", h.fail(op, ErrCannotRead, nil)
	}
	m, err := h.resolveFor(op, access)
	if err != nil {
		return 0, "", err
	}
	if err := h.seekSet(m.pos); err != nil {
		return 0, "", h.fail(op, ErrSeekIO, err)
	}
	return m.rec.Kind, m.rec.Key, nil
}

// SeekNext reads the record at the current position and advances to its
// first child or its following sibling, reporting the record just read.
func (h *Handle) SeekNext(dir Direction) (record.Kind, string, error) {
	const op = "seek_next"
	if err := h.enter(op); err != nil {
		return 0, "", err
	}
	defer h.exit()

	if h.stackSize() != 0 {
		return 0, "", h.fail(op, ErrCannotRead, nil)
	}

	pos, terr := h.tell()
	if terr != nil {
		return 0, "", h.fail(op, ErrSeekIO, terr)
	}
	rec, rerr := h.readRecordAt(pos)
	if rerr != nil {
		kind := ErrReadIO
		if errors.Is(rerr, record.ErrChecksum) {
			kind = ErrReadChecksum
		}
		return 0, "", h.fail(op, kind, rerr)
	}

	var target int64
	switch dir {
	case NextChild:
		if !rec.Kind.IsContainer() {
			return 0, "", h.fail(op, ErrNoChildren, nil)
		}
		target = pos + int64(record.Size)
	default:
		if rec.Next == 0 {
			return 0, "", h.fail(op, ErrKeyNotFound, nil)
		}
		target = int64(rec.Next)
	}

	if err := h.seekSet(target); err != nil {
		return 0, "", h.fail(op, ErrSeekIO, err)
	}
	return rec.Kind, rec.Key, nil
}
