package son

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/StratifyLabs/son-go/record"
)

// OpenContainer pushes a back-patch entry for a new OBJECT, ARRAY, or DATA
// container and writes its record with next_offset left at zero. At
// stack depth zero this call defines the root and key must be empty; the
// literal key "$" is written in its place.
func (h *Handle) OpenContainer(kind record.Kind, key string) error {
	const op = "open_container"
	if err := h.enter(op); err != nil {
		return err
	}
	defer h.exit()

	if h.stackSize() == 0 {
		return h.fail(op, ErrCannotWrite, nil)
	}

	if h.stackLoc == 0 {
		if key != "" {
			return h.fail(op, ErrNoRoot, nil)
		}
		key = record.RootKey
	} else if key == "" {
		return h.fail(op, ErrInvalidKey, nil)
	}

	if h.stackLoc == h.stackSize() {
		return h.fail(op, ErrStackOverflow, nil)
	}

	pos, err := h.tell()
	if err != nil {
		return h.fail(op, ErrSeekIO, err)
	}

	if err := h.writeRecord(record.Record{Kind: kind, Next: 0, Key: key}); err != nil {
		return h.fail(op, ErrWriteIO, err)
	}

	h.stack[h.stackLoc] = uint32(pos)
	h.stackLoc++
	return nil
}

// closeOne pops the back-patch stack and rewrites the popped record's
// next_offset to the sink's current position, without the entry/exit
// checksum dance — used directly by CloseAll's loop and by Close.
func (h *Handle) closeOne() error {
	const op = "close_container"
	h.stackLoc--
	pos := int64(h.stack[h.stackLoc])

	cur, err := h.tell()
	if err != nil {
		h.lastErr = ErrSeekIO
		return newErr(op, ErrSeekIO, err)
	}

	rec, err := h.readRecordAt(pos)
	if err != nil {
		kind := ErrReadIO
		if errors.Is(err, record.ErrChecksum) {
			kind = ErrReadChecksum
		}
		h.lastErr = kind
		return newErr(op, kind, err)
	}
	rec.Next = uint32(cur)

	if err := h.seekSet(pos); err != nil {
		h.lastErr = ErrSeekIO
		return newErr(op, ErrSeekIO, err)
	}
	if err := h.writeRecord(rec); err != nil {
		h.lastErr = ErrWriteIO
		return newErr(op, ErrWriteIO, err)
	}
	if err := h.seekSet(cur); err != nil {
		h.lastErr = ErrSeekIO
		return newErr(op, ErrSeekIO, err)
	}
	return nil
}

// CloseContainer pops the innermost open container and back-patches its
// next_offset to the sink's current position.
func (h *Handle) CloseContainer() error {
	const op = "close_container"
	if err := h.enter(op); err != nil {
		return err
	}
	defer h.exit()

	if h.stackLoc == 0 {
		return h.fail(op, ErrStackOverflow, nil)
	}
	return h.closeOne()
}

func (h *Handle) closeAllLocked() error {
	for h.stackLoc > 0 {
		if err := h.closeOne(); err != nil {
			return err
		}
	}
	return nil
}

// CloseAll closes every still-open container, innermost first. Close
// calls this automatically for write handles.
func (h *Handle) CloseAll() error {
	const op = "close_all"
	if err := h.enter(op); err != nil {
		return err
	}
	defer h.exit()
	return h.closeAllLocked()
}

// OpenObj, OpenArray, and OpenData are OpenContainer specialized to each
// container kind; CloseObj/CloseArray/CloseData are all CloseContainer —
// the close side never needs to know which kind it is popping.
func (h *Handle) OpenObj(key string) error   { return h.OpenContainer(record.Object, key) }
func (h *Handle) OpenArray(key string) error { return h.OpenContainer(record.Array, key) }
func (h *Handle) OpenData(key string) error  { return h.OpenContainer(record.Data, key) }
func (h *Handle) CloseObj() error            { return h.CloseContainer() }
func (h *Handle) CloseArray() error          { return h.CloseContainer() }
func (h *Handle) CloseData() error           { return h.CloseContainer() }

// WriteValue writes one complete leaf record (kind, key, and its value
// bytes) at the current position. next_offset is computed directly from
// the value's length; zero-length kinds (TRUE/FALSE/NULL) still write a
// full record.
func (h *Handle) WriteValue(kind record.Kind, key string, value []byte) error {
	const op = "write_value"
	if err := h.enter(op); err != nil {
		return err
	}
	defer h.exit()

	if h.stackSize() == 0 {
		return h.fail(op, ErrCannotWrite, nil)
	}
	if h.stackLoc == 0 {
		return h.fail(op, ErrNoRoot, nil)
	}
	if key == "" {
		return h.fail(op, ErrInvalidKey, nil)
	}

	pos, err := h.tell()
	if err != nil {
		return h.fail(op, ErrSeekIO, err)
	}
	next := pos + int64(record.Size) + int64(len(value))

	if err := h.writeRecord(record.Record{Kind: kind, Next: uint32(next), Key: key}); err != nil {
		return h.fail(op, ErrWriteIO, err)
	}
	if len(value) > 0 {
		if _, err := h.sink.Write(value); err != nil {
			return h.fail(op, ErrWriteIO, err)
		}
	}
	return nil
}

// WriteOpenData appends raw bytes directly inside an already-open DATA
// container, without any record framing of its own. The matching
// CloseData back-patches the total size.
func (h *Handle) WriteOpenData(data []byte) error {
	const op = "write_open_data"
	if err := h.enter(op); err != nil {
		return err
	}
	defer h.exit()

	if h.stackSize() == 0 {
		return h.fail(op, ErrCannotWrite, nil)
	}
	if h.stackLoc == 0 {
		return h.fail(op, ErrNoRoot, nil)
	}
	if _, err := h.sink.Write(data); err != nil {
		return h.fail(op, ErrWriteIO, err)
	}
	return nil
}

// WriteStr writes key = s as a STRING value, including its NUL terminator
// in the stored byte range.
func (h *Handle) WriteStr(key, s string) error {
	buf := make([]byte, len(s)+1)
	copy(buf, s)
	return h.WriteValue(record.String, key, buf)
}

// WriteNum writes key = v as a signed 32-bit little-endian S32 value.
func (h *Handle) WriteNum(key string, v int32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	return h.WriteValue(record.S32, key, buf[:])
}

// WriteUnum writes key = v as an unsigned 32-bit little-endian U32 value.
func (h *Handle) WriteUnum(key string, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return h.WriteValue(record.U32, key, buf[:])
}

// WriteFloat writes key = v as a 32-bit IEEE-754 FLOAT value.
func (h *Handle) WriteFloat(key string, v float32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
	return h.WriteValue(record.Float, key, buf[:])
}

// WriteData writes key = data as an opaque DATA value with no terminator.
func (h *Handle) WriteData(key string, data []byte) error {
	return h.WriteValue(record.Data, key, data)
}

// WriteTrue, WriteFalse, and WriteNull write their respective zero-length
// boolean/null records.
func (h *Handle) WriteTrue(key string) error  { return h.WriteValue(record.True, key, nil) }
func (h *Handle) WriteFalse(key string) error { return h.WriteValue(record.False, key, nil) }
func (h *Handle) WriteNull(key string) error  { return h.WriteValue(record.Null, key, nil) }
