package son

import (
	"encoding/binary"
	"math"

	"github.com/StratifyLabs/son-go/record"
	"github.com/StratifyLabs/son-go/sink"
)

// editTyped resolves access, enforces that the stored kind matches
// expected, and writes min(len(value), V) bytes at the matched position,
// where V is the matched record's current value-byte length. Shorter
// writes never shrink a variable-length value; longer writes are
// silently truncated to V.
func (h *Handle) editTyped(op, access string, value []byte, expected record.Kind) error {
	if err := h.enter(op); err != nil {
		return err
	}
	defer h.exit()

	m, err := h.resolveFor(op, access)
	if err != nil {
		return err
	}
	if m.rec.Kind != expected {
		return h.fail(op, ErrEditTypeMismatch, nil)
	}

	v := int(m.valueEnd - m.valueStart)
	n := len(value)
	if n > v {
		n = v
	}
	if n <= 0 {
		return nil
	}

	if _, err := h.sink.Seek(m.valueStart, sink.SeekSet); err != nil {
		return h.fail(op, ErrSeekIO, err)
	}
	if _, err := h.sink.Write(value[:n]); err != nil {
		return h.fail(op, ErrWriteIO, err)
	}
	return nil
}

// EditFloat rewrites a FLOAT value in place.
func (h *Handle) EditFloat(access string, v float32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
	return h.editTyped("edit_float", access, buf[:], record.Float)
}

// EditNum rewrites an S32 value in place.
func (h *Handle) EditNum(access string, v int32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	return h.editTyped("edit_num", access, buf[:], record.S32)
}

// EditUnum rewrites a U32 value in place.
func (h *Handle) EditUnum(access string, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return h.editTyped("edit_unum", access, buf[:], record.U32)
}

// EditStr rewrites a STRING value in place, including its NUL terminator
// in the bytes considered for truncation.
func (h *Handle) EditStr(access, s string) error {
	buf := make([]byte, len(s)+1)
	copy(buf, s)
	return h.editTyped("edit_str", access, buf, record.String)
}

// EditData rewrites a DATA value in place.
func (h *Handle) EditData(access string, data []byte) error {
	return h.editTyped("edit_data", access, data, record.Data)
}

// EditBool rewrites the matched record's tag to TRUE or FALSE regardless
// of its prior kind. Since TRUE/FALSE are zero-length, next_offset is
// regenerated as position + record size rather than preserved.
func (h *Handle) EditBool(access string, v bool) error {
	const op = "edit_bool"
	if err := h.enter(op); err != nil {
		return err
	}
	defer h.exit()

	m, err := h.resolveFor(op, access)
	if err != nil {
		return err
	}

	kind := record.False
	if v {
		kind = record.True
	}
	rec := record.Record{Kind: kind, Next: uint32(m.pos + record.Size), Key: m.rec.Key}

	if err := h.seekSet(m.pos); err != nil {
		return h.fail(op, ErrSeekIO, err)
	}
	if err := h.writeRecord(rec); err != nil {
		return h.fail(op, ErrWriteIO, err)
	}
	return nil
}
