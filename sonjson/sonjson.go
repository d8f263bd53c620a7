// Package sonjson walks a SON container and renders it as JSON: a
// recursive descent via the record tree's next_offset ranges, with DATA
// values base64-encoded and numeric kinds rendered as JSON numbers.
package sonjson

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/StratifyLabs/son-go/record"
	"github.com/StratifyLabs/son-go/son"
)

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

// buildValue recurses into c, producing the Go value (map/slice/
// json.Number/string/bool/nil) goccy/go-json will render as the matching
// JSON shape.
func buildValue(h *son.Handle, c son.Child) (any, error) {
	switch c.Kind {
	case record.Object:
		children, err := h.ChildrenOf(c)
		if err != nil {
			return nil, err
		}
		m := make(map[string]any, len(children))
		for _, ch := range children {
			v, err := buildValue(h, ch)
			if err != nil {
				return nil, err
			}
			m[ch.Key] = v
		}
		return m, nil

	case record.Array:
		children, err := h.ChildrenOf(c)
		if err != nil {
			return nil, err
		}
		arr := make([]any, 0, len(children))
		for _, ch := range children {
			v, err := buildValue(h, ch)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		return arr, nil

	case record.String:
		raw, err := h.ValueBytes(c)
		if err != nil {
			return nil, err
		}
		return trimNUL(raw), nil

	case record.Float:
		raw, err := h.ValueBytes(c)
		if err != nil {
			return nil, err
		}
		f := math.Float32frombits(le32(raw))
		return json.Number(fmt.Sprintf("%f", f)), nil

	case record.U32:
		raw, err := h.ValueBytes(c)
		if err != nil {
			return nil, err
		}
		return json.Number(strconv.FormatUint(uint64(le32(raw)), 10)), nil

	case record.S32:
		raw, err := h.ValueBytes(c)
		if err != nil {
			return nil, err
		}
		return json.Number(strconv.FormatInt(int64(int32(le32(raw))), 10)), nil

	case record.Data:
		raw, err := h.ValueBytes(c)
		if err != nil {
			return nil, err
		}
		return base64.StdEncoding.EncodeToString(raw), nil

	case record.True:
		return true, nil
	case record.False:
		return false, nil
	case record.Null:
		return nil, nil
	default:
		return nil, fmt.Errorf("sonjson: unsupported record kind %v", c.Kind)
	}
}

// Export renders the whole container rooted at h as one JSON document.
func Export(h *son.Handle) ([]byte, error) {
	root, err := h.Root()
	if err != nil {
		return nil, err
	}
	v, err := buildValue(h, root)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// ExportTo renders the container and writes it to w.
func ExportTo(w io.Writer, h *son.Handle) error {
	root, err := h.Root()
	if err != nil {
		return err
	}
	v, err := buildValue(h, root)
	if err != nil {
		return err
	}
	return json.NewEncoder(w).Encode(v)
}

// ExportFunc renders each of the root OBJECT's top-level keys
// independently, invoking fn with the key and its serialized JSON chunk
// as soon as that subtree finishes, rather than buffering the whole
// document.
func ExportFunc(h *son.Handle, fn func(key string, chunk []byte) error) error {
	root, err := h.Root()
	if err != nil {
		return err
	}
	if root.Kind != record.Object {
		return fmt.Errorf("sonjson: ExportFunc requires an OBJECT root, got %v", root.Kind)
	}

	children, err := h.ChildrenOf(root)
	if err != nil {
		return err
	}
	for _, ch := range children {
		v, err := buildValue(h, ch)
		if err != nil {
			return err
		}
		chunk, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if err := fn(ch.Key, chunk); err != nil {
			return err
		}
	}
	return nil
}
