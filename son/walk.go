package son

import (
	"errors"

	"github.com/StratifyLabs/son-go/record"
)

// Child is one record's navigable identity — used for the raw,
// position-based tree walk JSON export performs, as distinct from the
// access-string resolver used by the typed read/edit operations.
type Child struct {
	Kind       record.Kind
	Key        string
	Pos        int64
	ValueStart int64
	ValueEnd   int64
}

func (h *Handle) childFromRecord(pos int64, rec record.Record) (Child, error) {
	end, err := h.containerEnd(rec)
	if err != nil {
		return Child{}, err
	}
	return Child{
		Kind:       rec.Kind,
		Key:        rec.Key,
		Pos:        pos,
		ValueStart: pos + record.Size,
		ValueEnd:   end,
	}, nil
}

// Root reads and returns the outermost container as a Child.
func (h *Handle) Root() (Child, error) {
	const op = "root"
	if err := h.enter(op); err != nil {
		return Child{}, err
	}
	defer h.exit()

	if h.stackSize() != 0 {
		return Child{}, h.fail(op, ErrCannotRead, nil)
	}

	rootPos := int64(HeaderSize)
	root, err := h.readRecordAt(rootPos)
	if err != nil {
		if errors.Is(err, record.ErrChecksum) {
			return Child{}, h.fail(op, ErrReadChecksum, err)
		}
		return Child{}, h.fail(op, ErrReadIO, err)
	}
	if !isRootKey(root.Key) {
		return Child{}, h.fail(op, ErrInvalidRoot, nil)
	}

	c, err := h.childFromRecord(rootPos, root)
	if err != nil {
		return Child{}, h.fail(op, ErrSeekIO, err)
	}
	return c, nil
}

// ChildrenOf returns the immediate children of a container Child, in
// physical (insertion) order. c must be an OBJECT or ARRAY.
func (h *Handle) ChildrenOf(c Child) ([]Child, error) {
	const op = "children_of"
	if err := h.enter(op); err != nil {
		return nil, err
	}
	defer h.exit()

	if h.stackSize() != 0 {
		return nil, h.fail(op, ErrCannotRead, nil)
	}
	if !c.Kind.IsContainer() {
		return nil, h.fail(op, ErrNoChildren, nil)
	}

	var out []Child
	pos := c.ValueStart
	for pos < c.ValueEnd {
		rec, err := h.readRecordAt(pos)
		if err != nil {
			kind := ErrReadIO
			if errors.Is(err, record.ErrChecksum) {
				kind = ErrReadChecksum
			}
			return nil, h.fail(op, kind, err)
		}
		child, err := h.childFromRecord(pos, rec)
		if err != nil {
			return nil, h.fail(op, ErrSeekIO, err)
		}
		out = append(out, child)
		if rec.Next == 0 {
			break
		}
		pos = int64(rec.Next)
	}
	return out, nil
}

// ValueBytes reads the raw, unconverted value bytes of a leaf Child.
func (h *Handle) ValueBytes(c Child) ([]byte, error) {
	const op = "value_bytes"
	if err := h.enter(op); err != nil {
		return nil, err
	}
	defer h.exit()

	if h.stackSize() != 0 {
		return nil, h.fail(op, ErrCannotRead, nil)
	}

	raw, err := h.readValue(match{rec: record.Record{Kind: c.Kind}, valueStart: c.ValueStart, valueEnd: c.ValueEnd})
	if err != nil {
		return nil, h.fail(op, ErrReadIO, err)
	}
	return raw, nil
}
