package kroos

import (
	"sync/atomic"
)

// Counter is the counting capability a Rime is generic over. Implementations
// operate on the int32 counter word at the head of a shared block.
//
// Increment must never run on a counter that already reached zero. Decrement
// subtracts one and reports whether this call observed the transition to
// zero; exactly one caller among all handles sees true. Load is for
// diagnostics and tests only, since in concurrent use the value is stale by
// the time it is returned.
type Counter interface {
	Increment(p *int32)
	Decrement(p *int32) bool
	Load(p *int32) int32
}

// Atomic counts through sync/atomic and is safe when handles of the same
// block are cloned and released from multiple goroutines. Go's atomics are
// sequentially consistent, so the release that observes zero is ordered
// after every other handle's accesses to the payload.
type Atomic struct{}

func (Atomic) Increment(p *int32) {
	atomic.AddInt32(p, 1)
}

func (Atomic) Decrement(p *int32) bool {
	return atomic.AddInt32(p, -1) == 0
}

func (Atomic) Load(p *int32) int32 {
	return atomic.LoadInt32(p)
}

// Plain counts with ordinary integer operations. Using handles of one block
// from more than one goroutine without external synchronization is undefined
// behavior.
type Plain struct{}

func (Plain) Increment(p *int32) {
	*p++
}

func (Plain) Decrement(p *int32) bool {
	*p--
	return *p == 0
}

func (Plain) Load(p *int32) int32 {
	return *p
}
