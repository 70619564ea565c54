// Package kroos provides two low-overhead heap primitives for open-ended
// values: Flake, a non-owning heap box, and Rime, a compact reference-counted
// pointer whose counter lives inline at the head of the value's own block.
//
// Both types store trivially-copyable data in blocks served by a
// balloc.MemoryManager, outside the Go heap. Values containing Go pointers
// must not be stored: the garbage collector cannot see into a block, so any
// pointer kept only there dangles. This is a contract, not a checked rule;
// the primitives trade every runtime guard for overhead-free access, and the
// preconditions documented on each operation are the caller's to uphold.
package kroos

import (
	"unsafe"
)

// Descriptor is the size, alignment and element count of a hosted value,
// captured once when a block is built and carried in the handle for its
// whole lifetime. A handle's descriptor must always match the layout of the
// block it points at.
type Descriptor struct {
	Size  uintptr
	Align uintptr
	Elems int
}

// DescribeValue captures the layout of a single value of type T.
func DescribeValue[T any](v *T) Descriptor {
	return Descriptor{
		Size:  unsafe.Sizeof(*v),
		Align: unsafe.Alignof(*v),
		Elems: 1,
	}
}

// DescribeSlice captures the layout of the elements of s. The element count
// is read from the slice itself, never supplied separately.
func DescribeSlice[T any](s []T) Descriptor {
	var elem T
	return Descriptor{
		Size:  unsafe.Sizeof(elem) * uintptr(len(s)),
		Align: unsafe.Alignof(elem),
		Elems: len(s),
	}
}

// DescribeString captures the layout of the bytes of s.
func DescribeString(s string) Descriptor {
	return Descriptor{
		Size:  uintptr(len(s)),
		Align: 1,
		Elems: len(s),
	}
}
