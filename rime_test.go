package kroos_test

import (
	"sync"
	"testing"
	"unsafe"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/Pavez7274/kroos"
)

func TestRimeCloneAndRelease(t *testing.T) {
	pool := newTestPool(t)

	r := kroos.NewRimeString[kroos.Plain](pool, "hello")
	require.Equal(t, "hello", r.String())
	require.Equal(t, int32(1), r.RefCount())

	c := r.Clone()
	require.Equal(t, int32(2), r.RefCount())
	require.True(t, r.Same(&c))
	require.Equal(t, r.AsPtr(), c.AsPtr())

	r.Release()
	require.Equal(t, "hello", c.String())
	require.Equal(t, int32(1), c.RefCount())

	c.Release()
	require.Equal(t, uint64(0), pool.GetUsed())
}

func TestRimeMutateUnderSingleOwnership(t *testing.T) {
	pool := newTestPool(t)

	r := kroos.NewRimeString[kroos.Plain](pool, "hi")
	b := r.Bytes()
	b[0] = 'H'
	b[1] = 'I'
	require.Equal(t, "HI", r.String())

	r.Release()
	require.Equal(t, uint64(0), pool.GetUsed())
}

func TestRimeSteal(t *testing.T) {
	pool := newTestPool(t)

	addr := common.HexToAddress("0x00000000000000000000000000000000000000ff")
	r := kroos.StealRime[kroos.Plain](pool, addr)
	defer r.Release()

	require.Equal(t, addr, *r.Value())
}

func TestRimeSliceView(t *testing.T) {
	pool := newTestPool(t)

	r := kroos.NewRimeSlice[kroos.Plain](pool, []uint32{1, 2, 3, 4})
	defer r.Release()

	require.Equal(t, []uint32{1, 2, 3, 4}, r.Slice())
	require.Equal(t, 4, r.Descriptor().Elems)
	require.Equal(t, uintptr(16), r.Descriptor().Size)
}

func TestRimeManyClones(t *testing.T) {
	pool := newTestPool(t)

	r := kroos.NewRimeString[kroos.Plain](pool, "shared payload")
	clones := make([]kroos.Rime[kroos.Plain, byte], 10)
	for i := range clones {
		clones[i] = r.Clone()
	}
	require.Equal(t, int32(11), r.RefCount())

	r.Release()
	for i := 0; i < len(clones)-1; i++ {
		clones[i].Release()
	}

	last := &clones[len(clones)-1]
	require.Equal(t, int32(1), last.RefCount())
	require.Equal(t, "shared payload", last.String())

	last.Release()
	require.Equal(t, uint64(0), pool.GetUsed())
}

func TestRimeReleaseZeroesHandle(t *testing.T) {
	pool := newTestPool(t)

	r := kroos.NewRimeString[kroos.Plain](pool, "x")
	r.Release()
	r.Release()
	require.Equal(t, uint64(0), pool.GetUsed())
}

func TestRimeFromRaw(t *testing.T) {
	pool := newTestPool(t)

	desc := kroos.DescribeSlice([]byte{0, 0, 0, 0})
	block := kroos.RawAllocShared(pool, desc)
	copy(unsafe.Slice((*byte)(kroos.RawPayload(block)), desc.Size), "hola")

	r := kroos.RimeFromRaw[kroos.Plain, byte](pool, block, desc)
	require.Equal(t, int32(1), r.RefCount())
	require.Equal(t, "hola", r.String())

	c := r.Clone()
	r.Release()
	require.Equal(t, "hola", c.String())

	c.Release()
	require.Equal(t, uint64(0), pool.GetUsed())
}

func TestRimeAtomicConcurrent(t *testing.T) {
	pool := newTestPool(t)

	const workers = 16
	const rounds = 200

	r := kroos.NewRimeString[kroos.Atomic](pool, "multi")

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		h := r.Clone()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				c := h.Clone()
				if c.String() != "multi" {
					panic("payload corrupted")
				}
				c.Release()
			}
			h.Release()
		}()
	}

	require.Equal(t, "multi", r.String())
	r.Release()
	wg.Wait()

	// Every handle released: the block was freed exactly once, nothing
	// leaked and nothing was freed twice (a double free would corrupt the
	// pool accounting or panic above).
	require.Equal(t, uint64(0), pool.GetUsed())
}

func TestRimeAtomicConcurrentChurn(t *testing.T) {
	pool := newTestPool(t)

	const workers = 8

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				r := kroos.NewRimeString[kroos.Atomic](pool, "churn")
				c := r.Clone()
				r.Release()
				c.Release()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, uint64(0), pool.GetUsed())
}

func TestCounterContract(t *testing.T) {
	for name, c := range map[string]kroos.Counter{"atomic": kroos.Atomic{}, "plain": kroos.Plain{}} {
		t.Run(name, func(t *testing.T) {
			v := int32(1)
			c.Increment(&v)
			require.Equal(t, int32(2), c.Load(&v))

			require.False(t, c.Decrement(&v))
			require.True(t, c.Decrement(&v))
			require.Equal(t, int32(0), c.Load(&v))
		})
	}
}
