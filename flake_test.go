package kroos_test

import (
	"testing"
	"unsafe"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/Pavez7274/kroos"
	"github.com/Pavez7274/kroos/balloc"
)

func newTestPool(t testing.TB) *balloc.Pool {
	t.Helper()
	pool, err := balloc.NewPool(nil)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, pool.Close()) })
	return pool
}

func TestFlakeString(t *testing.T) {
	pool := newTestPool(t)

	f := kroos.NewFlakeString(pool, "hello")
	require.Equal(t, "hello", f.String())
	require.Equal(t, []byte("hello"), f.Bytes())
	require.Equal(t, 5, f.Descriptor().Elems)

	f.Free()
	require.Equal(t, uint64(0), pool.GetUsed())
}

func TestFlakeMutateBytes(t *testing.T) {
	pool := newTestPool(t)

	f := kroos.NewFlakeSlice(pool, []byte{1, 2, 3})
	f.Slice()[0] = 42
	require.Equal(t, []byte{42, 2, 3}, f.Bytes())

	// The same write through the raw pointer view.
	*(*byte)(f.AsMutPtr()) = 7
	require.Equal(t, []byte{7, 2, 3}, f.Bytes())

	f.Free()
}

func TestFlakeCopyLeavesSourceUsable(t *testing.T) {
	pool := newTestPool(t)

	src := []uint32{10, 20, 30}
	f := kroos.NewFlakeSlice(pool, src)
	defer f.Free()

	f.Slice()[1] = 999
	require.Equal(t, []uint32{10, 20, 30}, src)
	require.Equal(t, []uint32{10, 999, 30}, f.Slice())
}

func TestFlakeValue(t *testing.T) {
	pool := newTestPool(t)

	type pod struct {
		A uint64
		B [4]byte
	}
	v := pod{A: 7, B: [4]byte{1, 2, 3, 4}}

	f := kroos.NewFlake(pool, &v)
	defer f.Free()

	require.Equal(t, v, *f.Value())

	v.A = 8
	require.Equal(t, uint64(7), f.Value().A)
}

func TestFlakeSteal(t *testing.T) {
	pool := newTestPool(t)

	addr := common.HexToAddress("0xdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef")
	f := kroos.StealFlake(pool, addr)
	defer f.Free()

	require.Equal(t, addr, *f.Value())
	require.Equal(t, uintptr(common.AddressLength), f.Descriptor().Size)
}

func TestFlakeFromRaw(t *testing.T) {
	pool := newTestPool(t)

	// Allocate and fill the block by hand, then adopt it with no further
	// allocation or copy.
	desc := kroos.DescribeString("hola")
	data := kroos.RawAlloc(pool, desc)
	copy(unsafe.Slice((*byte)(data), desc.Size), "hola")

	f := kroos.FlakeFromRaw[byte](pool, data, desc)
	require.Equal(t, "hola", f.String())
	require.Equal(t, data, f.AsPtr())

	f.Free()
	require.Equal(t, uint64(0), pool.GetUsed())
}

func TestFlakeEmptyString(t *testing.T) {
	pool := newTestPool(t)

	f := kroos.NewFlakeString(pool, "")
	require.Equal(t, "", f.String())
	require.NotEqual(t, uint64(0), pool.GetUsed())

	f.Free()
	require.Equal(t, uint64(0), pool.GetUsed())
}

func TestFlakeFreeZeroesHandle(t *testing.T) {
	pool := newTestPool(t)

	f := kroos.NewFlakeString(pool, "twice")
	f.Free()
	f.Free()
	require.Equal(t, uint64(0), pool.GetUsed())
}

func TestFlakeSame(t *testing.T) {
	pool := newTestPool(t)

	a := kroos.NewFlakeString(pool, "abc")
	b := kroos.NewFlakeString(pool, "abc")
	defer a.Free()
	defer b.Free()

	require.True(t, a.Same(&a))
	require.False(t, a.Same(&b))
	require.Equal(t, a.Bytes(), b.Bytes())
}

func TestDescribe(t *testing.T) {
	var x uint64
	d := kroos.DescribeValue(&x)
	require.Equal(t, uintptr(8), d.Size)
	require.Equal(t, uintptr(8), d.Align)
	require.Equal(t, 1, d.Elems)

	d = kroos.DescribeSlice([]uint16{1, 2, 3})
	require.Equal(t, uintptr(6), d.Size)
	require.Equal(t, uintptr(2), d.Align)
	require.Equal(t, 3, d.Elems)

	d = kroos.DescribeString("abcd")
	require.Equal(t, uintptr(4), d.Size)
	require.Equal(t, uintptr(1), d.Align)
	require.Equal(t, 4, d.Elems)
}
