package son

import (
	"errors"
	"strconv"
	"strings"

	"github.com/StratifyLabs/son-go/record"
	"github.com/StratifyLabs/son-go/sink"
)

// MaxAccessLen is the longest access string a caller may supply, before
// the resolver's internal root anchoring.
const MaxAccessLen = 93

// match is one resolved record: its key/kind/next_offset, its absolute
// position, and the byte range its value (or, for a container, its
// children) occupies.
type match struct {
	rec        record.Record
	pos        int64
	valueStart int64
	valueEnd   int64
}

func isRootKey(key string) bool { return key == record.RootKey || key == "" }

// containerEnd returns the absolute offset one past rec's value/children.
// A record with Next == 0 is still open; the resolver only ever reads
// sealed containers, but falls back to the sink's current length rather
// than looping forever on a corrupt or unsealed layout.
func (h *Handle) containerEnd(rec record.Record) (int64, error) {
	if rec.Next != 0 {
		return int64(rec.Next), nil
	}
	return h.sink.Seek(0, sink.SeekEnd)
}

// resolve walks access from the root and returns the matched record and
// its value byte range. An empty access string resolves to the root
// itself.
func (h *Handle) resolve(access string) (match, error) {
	if len(access) > MaxAccessLen {
		return match{}, ErrAccessTooLong
	}

	rootPos := int64(HeaderSize)
	root, err := h.readRecordAt(rootPos)
	if err != nil {
		if errors.Is(err, record.ErrChecksum) {
			return match{}, ErrReadChecksum
		}
		return match{}, ErrReadIO
	}
	if !isRootKey(root.Key) {
		return match{}, ErrInvalidRoot
	}

	cur := match{rec: root, pos: rootPos, valueStart: rootPos + record.Size}
	cur.valueEnd, err = h.containerEnd(root)
	if err != nil {
		return match{}, ErrSeekIO
	}

	if access == "" {
		return cur, nil
	}

	for _, segment := range strings.Split(access, ".") {
		key, indices, err := parseSegment(segment)
		if err != nil {
			return match{}, err
		}

		found, err := h.seekKey(key, cur.valueStart, cur.valueEnd)
		if err != nil {
			return match{}, err
		}
		cur = found

		for _, idx := range indices {
			if cur.rec.Kind != record.Array {
				return match{}, ErrArrayIndexNotFound
			}
			found, err := h.seekIndex(idx, cur.valueStart, cur.valueEnd)
			if err != nil {
				return match{}, err
			}
			cur = found
		}
	}

	return cur, nil
}

// seekKey scans forward through [start, end) for a record whose key
// equals key, following each record's next_offset to reach the next
// sibling. It never looks past end or backtracks.
func (h *Handle) seekKey(key string, start, end int64) (match, error) {
	pos := start
	for pos < end {
		rec, err := h.readRecordAt(pos)
		if err != nil {
			if errors.Is(err, record.ErrChecksum) {
				return match{}, ErrReadChecksum
			}
			return match{}, ErrReadIO
		}
		if rec.Key == "" {
			return match{}, ErrInvalidKey
		}
		if rec.Key == key {
			valueEnd, err := h.containerEnd(rec)
			if err != nil {
				return match{}, ErrSeekIO
			}
			return match{rec: rec, pos: pos, valueStart: pos + record.Size, valueEnd: valueEnd}, nil
		}
		if rec.Next == 0 {
			break
		}
		pos = int64(rec.Next)
	}
	return match{}, ErrKeyNotFound
}

// seekIndex steps i+1 times over the child records in [start, end),
// returning the i'th (zero-based) child.
func (h *Handle) seekIndex(i int, start, end int64) (match, error) {
	pos := start
	for step := 0; ; step++ {
		if pos >= end {
			return match{}, ErrArrayIndexNotFound
		}
		rec, err := h.readRecordAt(pos)
		if err != nil {
			if errors.Is(err, record.ErrChecksum) {
				return match{}, ErrReadChecksum
			}
			return match{}, ErrReadIO
		}
		if step == i {
			valueEnd, err := h.containerEnd(rec)
			if err != nil {
				return match{}, ErrSeekIO
			}
			return match{rec: rec, pos: pos, valueStart: pos + record.Size, valueEnd: valueEnd}, nil
		}
		if rec.Next == 0 {
			return match{}, ErrArrayIndexNotFound
		}
		pos = int64(rec.Next)
	}
}

// parseSegment splits "key[0][1]" into its key and its left-to-right
// bracketed indices.
func parseSegment(segment string) (string, []int, error) {
	br := strings.IndexByte(segment, '[')
	if br < 0 {
		if segment == "" {
			return "", nil, ErrInvalidKey
		}
		return segment, nil, nil
	}

	key := segment[:br]
	if key == "" {
		return "", nil, ErrInvalidKey
	}

	rest := segment[br:]
	var indices []int
	for len(rest) > 0 {
		if rest[0] != '[' {
			return "", nil, ErrInvalidKey
		}
		end := strings.IndexByte(rest, ']')
		if end < 1 {
			return "", nil, ErrInvalidKey
		}
		n, err := strconv.Atoi(rest[1:end])
		if err != nil || n < 0 {
			return "", nil, ErrInvalidKey
		}
		indices = append(indices, n)
		rest = rest[end+1:]
	}
	return key, indices, nil
}
