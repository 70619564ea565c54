package kroos

import (
	"unsafe"

	"github.com/Pavez7274/kroos/balloc"
)

// headerSize is the room reserved for the int32 counter at the head of a
// shared block, padded to one alignment quantum so the payload offset
// satisfies any Go alignment.
const headerSize = 8

// Rime is a compact reference-counted pointer. The counter and the payload
// share one block, laid out [counter | payload], and every clone of a handle
// is a fat reference into the same block. The counting strategy is the type
// parameter C; Rime itself never branches on which strategy is in use, so
// the synchronization guarantees are exactly those of the chosen Counter.
//
// The block is freed by whichever Release observes the counter reach zero.
// Store only trivially-copyable data; see the package comment.
type Rime[C Counter, T any] struct {
	mm   balloc.MemoryManager
	head unsafe.Pointer // block start: the counter word
	data unsafe.Pointer // payload, head+headerSize
	desc Descriptor
}

func newShared(mm balloc.MemoryManager, desc Descriptor) (head, data unsafe.Pointer) {
	head = mustAllocate(mm, headerSize+uint64(desc.Size), false)
	*(*int32)(head) = 1
	return head, unsafe.Add(head, headerSize)
}

// NewRime copies *v into a counter-then-payload block with the count at 1.
// v remains untouched and usable. Panics if the pool is exhausted.
func NewRime[C Counter, T any](mm balloc.MemoryManager, v *T) Rime[C, T] {
	desc := DescribeValue(v)
	head, data := newShared(mm, desc)
	copyPayload(data, unsafe.Pointer(v), desc.Size)
	return Rime[C, T]{mm: mm, head: head, data: data, desc: desc}
}

// NewRimeSlice copies the elements of s into a shared block.
func NewRimeSlice[C Counter, T any](mm balloc.MemoryManager, s []T) Rime[C, T] {
	desc := DescribeSlice(s)
	head, data := newShared(mm, desc)
	if desc.Size > 0 {
		copyPayload(data, unsafe.Pointer(unsafe.SliceData(s)), desc.Size)
	}
	return Rime[C, T]{mm: mm, head: head, data: data, desc: desc}
}

// NewRimeString copies the bytes of s into a shared block.
func NewRimeString[C Counter](mm balloc.MemoryManager, s string) Rime[C, byte] {
	desc := DescribeString(s)
	head, data := newShared(mm, desc)
	if desc.Size > 0 {
		copyPayload(data, unsafe.Pointer(unsafe.StringData(s)), desc.Size)
	}
	return Rime[C, byte]{mm: mm, head: head, data: data, desc: desc}
}

// StealRime relocates v's bit pattern into a shared block instead of
// duplicating it. The argument binding is consumed.
func StealRime[C Counter, T any](mm balloc.MemoryManager, v T) Rime[C, T] {
	desc := DescribeValue(&v)
	head, data := newShared(mm, desc)
	copyPayload(data, unsafe.Pointer(&v), desc.Size)
	return Rime[C, T]{mm: mm, head: head, data: data, desc: desc}
}

// RimeFromRaw adopts block as a handle without allocating or copying. block
// must point at a counter-then-payload allocation matching desc and mm's
// layout convention (see RawAllocShared), holding a live counter >= 1
// maintained with the same capability C. None of this is checked.
func RimeFromRaw[C Counter, T any](mm balloc.MemoryManager, block unsafe.Pointer, desc Descriptor) Rime[C, T] {
	return Rime[C, T]{
		mm:   mm,
		head: block,
		data: unsafe.Add(block, headerSize),
		desc: desc,
	}
}

func (r *Rime[C, T]) counter() *int32 {
	return (*int32)(r.head)
}

// Clone increments the shared counter and returns a new handle over the same
// block. No payload bytes are copied. The receiver must be live for the
// duration of the call.
func (r *Rime[C, T]) Clone() Rime[C, T] {
	var c C
	c.Increment(r.counter())
	return *r
}

// Release decrements the shared counter. Exactly one call observes the
// transition to zero, under any interleaving the capability supports, and
// that call frees the whole block, counter included. The handle zeroes
// itself, so a second Release on it is a no-op; releasing another copy of
// the same handle is still a double release.
func (r *Rime[C, T]) Release() {
	if r.head == nil {
		return
	}

	var c C
	if c.Decrement(r.counter()) {
		if err := r.mm.Deallocate(r.head, headerSize+uint64(r.desc.Size)); err != nil {
			panic(err)
		}
	}

	r.head = nil
	r.data = nil
	r.desc = Descriptor{}
	r.mm = nil
}

// RefCount loads the current count. Diagnostics and tests only: with the
// Atomic capability the value may be stale as soon as it is returned, so it
// must not drive ownership decisions.
func (r *Rime[C, T]) RefCount() int32 {
	var c C
	return c.Load(r.counter())
}

// Value returns a typed view of the payload (its first element, for slice
// payloads).
func (r *Rime[C, T]) Value() *T {
	return (*T)(r.data)
}

// Slice returns a typed view over all elements of the payload. The slice
// aliases the block; it is valid only while some handle keeps it live.
func (r *Rime[C, T]) Slice() []T {
	if r.data == nil {
		return nil
	}
	return unsafe.Slice((*T)(r.data), r.desc.Elems)
}

// Bytes returns the raw payload bytes. The slice aliases the block.
func (r *Rime[C, T]) Bytes() []byte {
	if r.data == nil {
		return nil
	}
	return unsafe.Slice((*byte)(r.data), r.desc.Size)
}

// String returns a string view over the raw payload bytes without copying.
func (r *Rime[C, T]) String() string {
	if r.desc.Size == 0 {
		return ""
	}
	return unsafe.String((*byte)(r.data), int(r.desc.Size))
}

// AsPtr returns the payload address.
func (r *Rime[C, T]) AsPtr() unsafe.Pointer {
	return r.data
}

// AsMutPtr returns the payload address for in-place mutation. Safe only
// when the caller can prove single ownership: no other live handle, no
// concurrent reader. Nothing stops a clone from reading mid-write.
func (r *Rime[C, T]) AsMutPtr() unsafe.Pointer {
	return r.data
}

// Descriptor returns the layout captured when the block was built.
func (r *Rime[C, T]) Descriptor() Descriptor {
	return r.desc
}

// Same reports whether two handles share one block.
func (r *Rime[C, T]) Same(o *Rime[C, T]) bool {
	return r.head == o.head
}
