package kroos

import (
	"unsafe"

	"github.com/Pavez7274/kroos/balloc"
)

// Flake is a non-owning heap box: a single block holding a byte copy of a
// value, with no counter and no notion of a second owner. "Non-owning" is
// about the payload, not the block: a Flake is responsible for freeing its
// block exactly once, but it never runs any cleanup the payload type itself
// might want. Store only trivially-copyable data.
//
// Copying a Flake value and freeing both copies is a double free. Pass
// Flakes by pointer, or treat every copy but one as read-only.
type Flake[T any] struct {
	mm   balloc.MemoryManager
	data unsafe.Pointer
	desc Descriptor
}

// NewFlake copies *v into a fresh block. v remains untouched and usable.
// Panics if the pool is exhausted.
func NewFlake[T any](mm balloc.MemoryManager, v *T) Flake[T] {
	desc := DescribeValue(v)
	data := mustAllocate(mm, allocSize(desc), false)
	copyPayload(data, unsafe.Pointer(v), desc.Size)
	return Flake[T]{mm: mm, data: data, desc: desc}
}

// NewFlakeSlice copies the elements of s into a fresh block. The element
// count is captured in the descriptor, so the slice can be reconstructed
// from the handle alone.
func NewFlakeSlice[T any](mm balloc.MemoryManager, s []T) Flake[T] {
	desc := DescribeSlice(s)
	data := mustAllocate(mm, allocSize(desc), false)
	if desc.Size > 0 {
		copyPayload(data, unsafe.Pointer(unsafe.SliceData(s)), desc.Size)
	}
	return Flake[T]{mm: mm, data: data, desc: desc}
}

// NewFlakeString copies the bytes of s into a fresh block.
func NewFlakeString(mm balloc.MemoryManager, s string) Flake[byte] {
	desc := DescribeString(s)
	data := mustAllocate(mm, allocSize(desc), false)
	if desc.Size > 0 {
		copyPayload(data, unsafe.Pointer(unsafe.StringData(s)), desc.Size)
	}
	return Flake[byte]{mm: mm, data: data, desc: desc}
}

// StealFlake relocates v's bit pattern into a fresh block instead of
// duplicating it. The argument binding is consumed: using v afterwards, or
// letting any cleanup run on it, aliases resources the block now holds.
func StealFlake[T any](mm balloc.MemoryManager, v T) Flake[T] {
	desc := DescribeValue(&v)
	data := mustAllocate(mm, allocSize(desc), false)
	copyPayload(data, unsafe.Pointer(&v), desc.Size)
	return Flake[T]{mm: mm, data: data, desc: desc}
}

// FlakeFromRaw adopts data as the box's payload address without allocating
// or copying anything. The address must come from an allocation that matches
// desc and mm's layout convention (see RawAlloc), and must not be owned by
// any other live handle. None of this is checked.
func FlakeFromRaw[T any](mm balloc.MemoryManager, data unsafe.Pointer, desc Descriptor) Flake[T] {
	return Flake[T]{mm: mm, data: data, desc: desc}
}

// Value returns a typed view of the payload (its first element, for slice
// payloads).
func (f *Flake[T]) Value() *T {
	return (*T)(f.data)
}

// Slice returns a typed view over all elements of the payload. The slice
// aliases the block; it is valid only while the Flake is live.
func (f *Flake[T]) Slice() []T {
	if f.data == nil {
		return nil
	}
	return unsafe.Slice((*T)(f.data), f.desc.Elems)
}

// Bytes returns the raw payload bytes. The slice aliases the block.
func (f *Flake[T]) Bytes() []byte {
	if f.data == nil {
		return nil
	}
	return unsafe.Slice((*byte)(f.data), f.desc.Size)
}

// String returns a string view over the raw payload bytes without copying.
// The string aliases the block and must not outlive it.
func (f *Flake[T]) String() string {
	if f.desc.Size == 0 {
		return ""
	}
	return unsafe.String((*byte)(f.data), int(f.desc.Size))
}

// AsPtr returns the payload address.
func (f *Flake[T]) AsPtr() unsafe.Pointer {
	return f.data
}

// AsMutPtr returns the payload address for in-place mutation. The caller
// must hold exclusive access for the duration of any write; there is no
// internal locking.
func (f *Flake[T]) AsMutPtr() unsafe.Pointer {
	return f.data
}

// Descriptor returns the layout captured when the block was built.
func (f *Flake[T]) Descriptor() Descriptor {
	return f.desc
}

// Same reports whether two boxes wrap the same block.
func (f *Flake[T]) Same(o *Flake[T]) bool {
	return f.data == o.data
}

// Free returns the block to the allocator using the exact layout it was
// allocated with. No payload cleanup of any kind runs. The handle zeroes
// itself, so calling Free again on it is a no-op, but freeing another copy
// of the same handle is still a double free.
func (f *Flake[T]) Free() {
	if f.data == nil {
		return
	}
	if err := f.mm.Deallocate(f.data, allocSize(f.desc)); err != nil {
		panic(err)
	}
	f.data = nil
	f.desc = Descriptor{}
	f.mm = nil
}
