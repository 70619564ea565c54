// Package balloc implements the block allocator backing the kroos pointer
// types. A Pool hands out raw, 8-byte aligned blocks carved from anonymous
// mmap chunks. Chunks never move once mapped, so block addresses stay valid
// until they are deallocated or the pool is closed; the memory lives outside
// the Go heap and is never touched by the garbage collector.
package balloc

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"
)

var (
	ErrOutOfMemory = errors.New("not enough space allocating memory")
	ErrInvalidSize = errors.New("the requested size is invalid")
	ErrClosed      = errors.New("operation on a closed pool")
)

const alignmentBytes = 8
const alignmentBytesMinusOne = alignmentBytes - 1

// Every block must be able to hold a freeChunk header once deallocated.
const minBlockSize = uint64(unsafe.Sizeof(freeChunk{}))

// MemoryManager is the allocation contract the pointer types depend on.
type MemoryManager interface {
	Allocate(size uint64, zero bool) (unsafe.Pointer, error)
	Deallocate(p unsafe.Pointer, size uint64) error
	GetUsed() uint64
	GetFree() uint64
	GetCapacity() uint64
}

// Options for a Pool.
type Options struct {
	// ChunkSize is the granularity the pool grows by. Must be a multiple
	// of 8. If zero, DefaultOptions.ChunkSize is used.
	ChunkSize uint64

	// MaxCapacity caps the total mapped memory. Zero means unbounded.
	MaxCapacity uint64

	// UseMutex guards the pool with a mutex. Required whenever blocks can
	// be allocated or released from more than one goroutine, which is the
	// case as soon as synchronized handles cross goroutines.
	UseMutex bool

	// Logger receives debug events (chunk mapping, close). Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// DefaultOptions for a Pool.
var DefaultOptions = &Options{
	ChunkSize: 1 * megaByte,
	UseMutex:  true,
}

const megaByte = 1024 * 1024

// freeChunk heads a deallocated block, linked into the pool's free list.
// The list is intrusive: the header lives in the freed memory itself.
type freeChunk struct {
	size uint64
	next *freeChunk
}

type chunk struct {
	buf  []byte
	next uint64 // bump offset of the first unallocated byte
}

// Pool allocates blocks out of anonymous mmap chunks using a first-fit free
// list, with bump allocation from the newest chunk as the fallback.
type Pool struct {
	mutex optionalMutex

	chunkSize   uint64
	maxCapacity uint64
	logger      *slog.Logger

	chunks    []*chunk
	freeList  *freeChunk
	capacity  uint64
	used      uint64
	watermark uint64
	allocs    uint64
	frees     uint64
	closed    bool
}

// NewPool creates a pool and maps its first chunk.
func NewPool(options *Options) (*Pool, error) {
	if options == nil {
		options = DefaultOptions
	}

	chunkSize := options.ChunkSize
	if chunkSize == 0 {
		chunkSize = DefaultOptions.ChunkSize
	}
	if chunkSize&alignmentBytesMinusOne != 0 {
		return nil, errors.Wrapf(ErrInvalidSize, "chunk size %d is not a multiple of %d", chunkSize, alignmentBytes)
	}
	if options.MaxCapacity != 0 && options.MaxCapacity < chunkSize {
		return nil, errors.Wrapf(ErrInvalidSize, "max capacity %d is below the chunk size", options.MaxCapacity)
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pool{
		mutex:       optionalMutex{useMutex: options.UseMutex},
		chunkSize:   chunkSize,
		maxCapacity: options.MaxCapacity,
		logger:      logger,
	}
	if err := p.grow(chunkSize); err != nil {
		return nil, err
	}
	return p, nil
}

// blockSize returns the size actually reserved for a request: rounded up to
// the alignment quantum and never below the free list header size.
func blockSize(size uint64) uint64 {
	if size < minBlockSize {
		size = minBlockSize
	}
	if size&alignmentBytesMinusOne != 0 {
		size += alignmentBytes
		size &= ^uint64(alignmentBytesMinusOne)
	}
	return size
}

// Allocate returns the address of a block of at least size bytes, aligned to
// 8 bytes. The same size must later be passed to Deallocate.
func (p *Pool) Allocate(size uint64, zero bool) (unsafe.Pointer, error) {
	if size == 0 {
		return nil, ErrInvalidSize
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.closed {
		return nil, ErrClosed
	}

	asize := blockSize(size)

	ptr := p.takeFree(asize)
	if ptr == nil {
		ptr = p.takeBump(asize)
	}
	if ptr == nil {
		if err := p.grow(asize); err != nil {
			return nil, err
		}
		ptr = p.takeBump(asize)
	}

	p.used += asize
	if p.used > p.watermark {
		p.watermark = p.used
	}
	p.allocs++

	if zero {
		b := unsafe.Slice((*byte)(ptr), asize)
		for i := range b {
			b[i] = 0
		}
	}

	return ptr, nil
}

// Deallocate returns a block to the pool. size must be the size passed to
// Allocate; passing anything else corrupts the free list.
func (p *Pool) Deallocate(ptr unsafe.Pointer, size uint64) error {
	if ptr == nil || size == 0 {
		return ErrInvalidSize
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.closed {
		return ErrClosed
	}

	asize := blockSize(size)

	fc := (*freeChunk)(ptr)
	fc.size = asize
	fc.next = p.freeList
	p.freeList = fc

	p.used -= asize
	p.frees++

	return nil
}

// takeFree scans the free list first-fit. A block is taken only when it
// matches exactly or the remainder is large enough to stay on the list, so
// no byte of a chunk ever becomes untracked.
func (p *Pool) takeFree(asize uint64) unsafe.Pointer {
	prev := &p.freeList
	for fc := p.freeList; fc != nil; fc = fc.next {
		if fc.size != asize && fc.size < asize+minBlockSize {
			prev = &fc.next
			continue
		}
		*prev = fc.next
		if rest := fc.size - asize; rest != 0 {
			rc := (*freeChunk)(unsafe.Add(unsafe.Pointer(fc), asize))
			rc.size = rest
			rc.next = p.freeList
			p.freeList = rc
		}
		return unsafe.Pointer(fc)
	}
	return nil
}

// takeBump allocates from the tail of the newest chunk.
func (p *Pool) takeBump(asize uint64) unsafe.Pointer {
	if len(p.chunks) == 0 {
		return nil
	}
	c := p.chunks[len(p.chunks)-1]
	if c.next+asize > uint64(len(c.buf)) {
		return nil
	}
	ptr := unsafe.Pointer(&c.buf[c.next])
	c.next += asize
	return ptr
}

// grow maps a new chunk of at least min bytes. The unallocated tail of the
// previous chunk is pushed onto the free list so it is not stranded.
func (p *Pool) grow(min uint64) error {
	size := p.chunkSize
	for size < min {
		size *= 2
	}
	if p.maxCapacity != 0 && p.capacity+size > p.maxCapacity {
		return ErrOutOfMemory
	}

	buf, err := mmapChunk(int(size))
	if err != nil {
		return errors.Wrapf(err, "mapping a %d byte pool chunk", size)
	}

	if n := len(p.chunks); n > 0 {
		c := p.chunks[n-1]
		if tail := uint64(len(c.buf)) - c.next; tail >= minBlockSize {
			fc := (*freeChunk)(unsafe.Pointer(&c.buf[c.next]))
			fc.size = tail
			fc.next = p.freeList
			p.freeList = fc
			c.next = uint64(len(c.buf))
		}
	}

	p.chunks = append(p.chunks, &chunk{buf: buf})
	p.capacity += size

	p.logger.Debug("balloc: mapped pool chunk",
		slog.Uint64("size", size),
		slog.Uint64("capacity", p.capacity),
		slog.Int("chunks", len(p.chunks)))

	return nil
}

// GetUsed returns the number of bytes currently allocated.
func (p *Pool) GetUsed() uint64 {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.used
}

// GetFree returns the number of bytes available without growing.
func (p *Pool) GetFree() uint64 {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.capacity - p.used
}

// GetCapacity returns the total mapped memory.
func (p *Pool) GetCapacity() uint64 {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.capacity
}

// GetWatermark returns the highest used byte count seen so far.
func (p *Pool) GetWatermark() uint64 {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.watermark
}

// Close unmaps every chunk. Every block handed out by the pool becomes
// invalid; dereferencing one afterwards is undefined behavior.
func (p *Pool) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var err error
	for _, c := range p.chunks {
		if e := munmapChunk(c.buf); e != nil && err == nil {
			err = errors.Wrap(e, "unmapping pool chunk")
		}
	}
	p.chunks = nil
	p.freeList = nil
	p.capacity = 0
	p.used = 0

	p.logger.Debug("balloc: pool closed")

	return err
}
