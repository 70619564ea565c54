package kroos

import (
	"fmt"
	"unsafe"

	"github.com/Pavez7274/kroos/balloc"
)

// RawAlloc reserves a block laid out for a Flake of the given descriptor and
// returns the payload address for the caller to fill directly. Adopting the
// address with FlakeFromRaw afterwards skips the copy the safe constructors
// would have performed; a block built this way is indistinguishable from one
// built by NewFlake. Panics if the pool is exhausted.
func RawAlloc(mm balloc.MemoryManager, desc Descriptor) unsafe.Pointer {
	return mustAllocate(mm, allocSize(desc), false)
}

// RawAllocShared reserves a counter-then-payload block for the descriptor,
// initializes the counter to 1, and returns the block address for
// RimeFromRaw. The payload region starts at RawPayload(block) and is
// uninitialized; the caller must write it before any handle reads it.
// Panics if the pool is exhausted.
func RawAllocShared(mm balloc.MemoryManager, desc Descriptor) unsafe.Pointer {
	block := mustAllocate(mm, headerSize+uint64(desc.Size), false)
	*(*int32)(block) = 1
	return block
}

// RawPayload returns the payload address inside a counter-then-payload
// block.
func RawPayload(block unsafe.Pointer) unsafe.Pointer {
	return unsafe.Add(block, headerSize)
}

// allocSize maps a descriptor to the byte count requested from the
// allocator. Zero-size values still get a real block so every handle frees
// exactly once.
func allocSize(desc Descriptor) uint64 {
	if desc.Size == 0 {
		return 1
	}
	return uint64(desc.Size)
}

// mustAllocate is the single allocation path of the pointer types. Heap
// exhaustion is not recoverable here: there is no error to surface, the
// process dies with the pool's state in the message.
func mustAllocate(mm balloc.MemoryManager, size uint64, zero bool) unsafe.Pointer {
	p, err := mm.Allocate(size, zero)
	if err != nil {
		panic(fmt.Sprintf("%s (allocating: %d bytes, used: %d, free: %d)", err, size, mm.GetUsed(), mm.GetFree()))
	}
	return p
}

func copyPayload(dst, src unsafe.Pointer, size uintptr) {
	copy(unsafe.Slice((*byte)(dst), size), unsafe.Slice((*byte)(src), size))
}
