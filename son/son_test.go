package son

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StratifyLabs/son-go/record"
	"github.com/StratifyLabs/son-go/sink"
)

func TestEmptyRootBoundary(t *testing.T) {
	fs := afero.NewMemMapFs()

	h, err := Create(fs, "empty.son", 4)
	require.NoError(t, err)
	require.NoError(t, h.OpenObj(""))
	require.NoError(t, h.CloseObj())
	require.NoError(t, h.Close())

	r, err := Open(fs, "empty.son")
	require.NoError(t, err)
	m, err := r.resolve("")
	require.NoError(t, err)
	assert.Equal(t, record.Object, m.rec.Kind)
	assert.EqualValues(t, HeaderSize+record.Size, m.rec.Next)
	require.NoError(t, r.Close())
}

func TestPrimitiveValues(t *testing.T) {
	fs := afero.NewMemMapFs()

	h, err := Create(fs, "prim.son", 4)
	require.NoError(t, err)
	require.NoError(t, h.OpenObj(""))
	require.NoError(t, h.WriteUnum("a", 42))
	require.NoError(t, h.WriteStr("b", "hi"))
	require.NoError(t, h.CloseObj())
	require.NoError(t, h.Close())

	r, err := Open(fs, "prim.son")
	require.NoError(t, err)

	u, err := r.ReadUnum("a")
	require.NoError(t, err)
	assert.EqualValues(t, 42, u)

	buf := make([]byte, 16)
	n, err := r.ReadStr("b", buf)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(buf[:n]))

	n2, err := r.ReadNum("b")
	require.NoError(t, err)
	assert.Zero(t, n2)

	f, err := r.ReadFloat("a")
	require.NoError(t, err)
	assert.Equal(t, float32(42), f)

	require.NoError(t, r.Close())
}

func TestNestedArray(t *testing.T) {
	fs := afero.NewMemMapFs()

	h, err := Create(fs, "arr.son", 4)
	require.NoError(t, err)
	require.NoError(t, h.OpenObj(""))
	require.NoError(t, h.OpenArray("arr"))
	require.NoError(t, h.WriteUnum("0", 10))
	require.NoError(t, h.WriteUnum("1", 20))
	require.NoError(t, h.WriteUnum("2", 30))
	require.NoError(t, h.CloseArray())
	require.NoError(t, h.CloseObj())
	require.NoError(t, h.Close())

	r, err := Open(fs, "arr.son")
	require.NoError(t, err)

	v0, err := r.ReadUnum("arr[0]")
	require.NoError(t, err)
	assert.EqualValues(t, 10, v0)

	v2, err := r.ReadUnum("arr[2]")
	require.NoError(t, err)
	assert.EqualValues(t, 30, v2)

	_, err = r.ReadUnum("arr[3]")
	assert.ErrorIs(t, err, ErrArrayIndexNotFound)

	require.NoError(t, r.Close())
}

func TestDeepPath(t *testing.T) {
	fs := afero.NewMemMapFs()

	h, err := Create(fs, "deep.son", 4)
	require.NoError(t, err)
	require.NoError(t, h.OpenObj(""))
	require.NoError(t, h.OpenObj("make"))
	require.NoError(t, h.OpenObj("model"))
	require.NoError(t, h.WriteStr("color", "red"))
	require.NoError(t, h.CloseObj())
	require.NoError(t, h.CloseObj())
	require.NoError(t, h.CloseObj())
	require.NoError(t, h.Close())

	r, err := Open(fs, "deep.son")
	require.NoError(t, err)

	buf := make([]byte, 16)
	n, err := r.ReadStr("make.model.color", buf)
	require.NoError(t, err)
	assert.Equal(t, "red", string(buf[:n]))

	require.NoError(t, r.Close())
}

func TestTypeMismatchedEdit(t *testing.T) {
	fs := afero.NewMemMapFs()

	h, err := Create(fs, "mismatch.son", 4)
	require.NoError(t, err)
	require.NoError(t, h.OpenObj(""))
	require.NoError(t, h.WriteFloat("x", 3.5))
	require.NoError(t, h.CloseObj())
	require.NoError(t, h.Close())

	e, err := Edit(fs, "mismatch.son")
	require.NoError(t, err)
	err = e.EditNum("x", 5)
	assert.ErrorIs(t, err, ErrEditTypeMismatch)
	require.NoError(t, e.Close())

	r, err := Open(fs, "mismatch.son")
	require.NoError(t, err)
	f, err := r.ReadFloat("x")
	require.NoError(t, err)
	assert.Equal(t, float32(3.5), f)
	require.NoError(t, r.Close())
}

func TestDepthBound(t *testing.T) {
	fs := afero.NewMemMapFs()

	h, err := Create(fs, "depth.son", 2)
	require.NoError(t, err)
	require.NoError(t, h.OpenObj(""))
	require.NoError(t, h.OpenObj("a"))

	before, err := h.tell()
	require.NoError(t, err)

	err = h.OpenObj("b")
	assert.ErrorIs(t, err, ErrStackOverflow)

	after, err := h.tell()
	require.NoError(t, err)
	assert.Equal(t, before, after)

	require.NoError(t, h.Close())
}

func TestAppendStability(t *testing.T) {
	fs := afero.NewMemMapFs()

	h, err := Create(fs, "append.son", 4)
	require.NoError(t, err)
	require.NoError(t, h.OpenObj(""))
	require.NoError(t, h.WriteUnum("n1", 1))
	require.NoError(t, h.WriteUnum("n2", 2))
	require.NoError(t, h.CloseObj())
	require.NoError(t, h.Close())

	a, err := Append(fs, "append.son", 4)
	require.NoError(t, err)
	require.NoError(t, a.WriteUnum("n3", 3))
	require.NoError(t, a.Close())

	r, err := Open(fs, "append.son")
	require.NoError(t, err)

	v1, err := r.ReadUnum("n1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, v1)

	v2, err := r.ReadUnum("n2")
	require.NoError(t, err)
	assert.EqualValues(t, 2, v2)

	v3, err := r.ReadUnum("n3")
	require.NoError(t, err)
	assert.EqualValues(t, 3, v3)

	require.NoError(t, r.Close())
}

func TestAppendRejectsUnsealedContainer(t *testing.T) {
	fs := afero.NewMemMapFs()

	h, err := Create(fs, "unsealed.son", 4)
	require.NoError(t, err)
	require.NoError(t, h.OpenObj(""))
	// deliberately never closed: the root record keeps next_offset == 0
	require.NoError(t, h.sink.Close())

	_, err = Append(fs, "unsealed.son", 4)
	assert.ErrorIs(t, err, ErrCannotAppend)
}

func TestEditIdempotence(t *testing.T) {
	fs := afero.NewMemMapFs()

	h, err := Create(fs, "idem.son", 4)
	require.NoError(t, err)
	require.NoError(t, h.OpenObj(""))
	require.NoError(t, h.WriteFloat("f", 1.5))
	require.NoError(t, h.WriteNum("n", -7))
	require.NoError(t, h.WriteUnum("u", 9))
	require.NoError(t, h.CloseObj())
	require.NoError(t, h.Close())

	before, err := afero.ReadFile(fs, "idem.son")
	require.NoError(t, err)

	e, err := Edit(fs, "idem.son")
	require.NoError(t, err)
	require.NoError(t, e.EditFloat("f", 1.5))
	require.NoError(t, e.EditNum("n", -7))
	require.NoError(t, e.EditUnum("u", 9))
	require.NoError(t, e.Close())

	after, err := afero.ReadFile(fs, "idem.son")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestEditTruncationAndNoExtend(t *testing.T) {
	fs := afero.NewMemMapFs()

	h, err := Create(fs, "trunc.son", 4)
	require.NoError(t, err)
	require.NoError(t, h.OpenObj(""))
	require.NoError(t, h.WriteStr("s", "hello")) // 6 stored bytes: "hello\0"
	require.NoError(t, h.CloseObj())
	require.NoError(t, h.Close())

	e, err := Edit(fs, "trunc.son")
	require.NoError(t, err)
	require.NoError(t, e.EditStr("s", "worldwide")) // longer, truncates to 6 bytes
	require.NoError(t, e.Close())

	r, err := Open(fs, "trunc.son")
	require.NoError(t, err)
	buf := make([]byte, 16)
	n, err := r.ReadStr("s", buf)
	require.NoError(t, err)
	assert.Equal(t, "worldw", string(buf[:n]))
	require.NoError(t, r.Close())

	e2, err := Edit(fs, "trunc.son")
	require.NoError(t, err)
	require.NoError(t, e2.EditStr("s", "hi")) // shorter; trailing bytes untouched
	require.NoError(t, e2.Close())

	r2, err := Open(fs, "trunc.son")
	require.NoError(t, err)
	buf2 := make([]byte, 16)
	n2, err := r2.ReadStr("s", buf2)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(buf2[:n2]))
	require.NoError(t, r2.Close())
}

func TestHandleChecksumIsSticky(t *testing.T) {
	fs := afero.NewMemMapFs()

	h, err := Create(fs, "corrupt.son", 4)
	require.NoError(t, err)
	require.NoError(t, h.OpenObj(""))

	h.checksum ^= 0xFF // simulate out-of-band corruption of handle state

	err = h.WriteUnum("x", 1)
	assert.ErrorIs(t, err, ErrHandleChecksum)
	assert.Equal(t, ErrHandleChecksum, h.LastError())
	assert.Equal(t, ErrHandleChecksum, h.LastError()) // sticky across repeated reads
}

func TestSeekNextTraversal(t *testing.T) {
	fs := afero.NewMemMapFs()

	h, err := Create(fs, "seek.son", 4)
	require.NoError(t, err)
	require.NoError(t, h.OpenObj(""))
	require.NoError(t, h.WriteUnum("a", 1))
	require.NoError(t, h.WriteUnum("b", 2))
	require.NoError(t, h.CloseObj())
	require.NoError(t, h.Close())

	r, err := Open(fs, "seek.son")
	require.NoError(t, err)

	kind, key, err := r.Seek("")
	require.NoError(t, err)
	assert.Equal(t, record.Object, kind)
	assert.Equal(t, record.RootKey, key)

	kind, key, err = r.SeekNext(NextChild)
	require.NoError(t, err)
	assert.Equal(t, record.Object, kind)

	kind, key, err = r.SeekNext(NextSibling)
	require.NoError(t, err)
	assert.Equal(t, record.U32, kind)
	assert.Equal(t, "a", key)

	kind, key, err = r.SeekNext(NextSibling)
	require.NoError(t, err)
	assert.Equal(t, "b", key)

	require.NoError(t, r.Close())
}

// memDriver backs a sink.Driver with a plain byte slice, exercising the
// handle's driver-backed constructors the way a non-filesystem transport
// (a serial port, a test double) would.
type memDriver struct {
	buf []byte
	pos int64
}

func (d *memDriver) Read(p []byte) (int, error) {
	if d.pos >= int64(len(d.buf)) {
		return 0, nil
	}
	n := copy(p, d.buf[d.pos:])
	d.pos += int64(n)
	return n, nil
}

func (d *memDriver) Write(p []byte) (int, error) {
	end := d.pos + int64(len(p))
	if end > int64(len(d.buf)) {
		grown := make([]byte, end)
		copy(grown, d.buf)
		d.buf = grown
	}
	n := copy(d.buf[d.pos:end], p)
	d.pos += int64(n)
	return n, nil
}

func (d *memDriver) Seek(offset int64, whence sink.Whence) (int64, error) {
	var base int64
	switch whence {
	case sink.SeekCur:
		base = d.pos
	case sink.SeekEnd:
		base = int64(len(d.buf))
	}
	d.pos = base + offset
	return d.pos, nil
}

func (d *memDriver) Close() error { return nil }

func TestDriverBackedHandle(t *testing.T) {
	md := &memDriver{}
	driver := sink.Driver{Read: md.Read, Write: md.Write, Seek: md.Seek, Close: md.Close}

	w, err := CreateDriver(driver, 4)
	require.NoError(t, err)
	require.NoError(t, w.OpenObj(""))
	require.NoError(t, w.WriteUnum("a", 99))
	require.NoError(t, w.CloseObj())
	require.NoError(t, w.Close())

	r, err := OpenDriver(driver)
	require.NoError(t, err)
	v, err := r.ReadUnum("a")
	require.NoError(t, err)
	assert.Equal(t, uint32(99), v)
	require.NoError(t, r.Close())
}
