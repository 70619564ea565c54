package balloc

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// Stats is a point-in-time snapshot of a pool's accounting.
type Stats struct {
	Capacity  uint64 // total mapped bytes
	Used      uint64 // bytes currently allocated
	Free      uint64 // bytes available without growing
	Watermark uint64 // highest Used seen
	Allocs    uint64 // total Allocate calls that succeeded
	Frees     uint64 // total Deallocate calls
	Chunks    int    // mapped chunks
}

// Stats returns a snapshot of the pool's accounting.
func (p *Pool) Stats() Stats {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return Stats{
		Capacity:  p.capacity,
		Used:      p.used,
		Free:      p.capacity - p.used,
		Watermark: p.watermark,
		Allocs:    p.allocs,
		Frees:     p.frees,
		Chunks:    len(p.chunks),
	}
}

// BuildStatsString renders the pool's statistics, including the free list,
// as a JSON document.
func (p *Pool) BuildStatsString() string {
	writer := jwriter.NewWriter()
	p.printStats(&writer)
	return string(writer.Bytes())
}

func (p *Pool) printStats(writer *jwriter.Writer) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	obj := writer.Object()
	obj.Name("Capacity").Int(int(p.capacity))
	obj.Name("Used").Int(int(p.used))
	obj.Name("Free").Int(int(p.capacity - p.used))
	obj.Name("Watermark").Int(int(p.watermark))
	obj.Name("Allocs").Int(int(p.allocs))
	obj.Name("Frees").Int(int(p.frees))
	obj.Name("Chunks").Int(len(p.chunks))

	freeState := obj.Name("FreeChunks").Array()
	for fc := p.freeList; fc != nil; fc = fc.next {
		o := freeState.Object()
		o.Name("Size").Int(int(fc.size))
		o.End()
	}
	freeState.End()

	obj.End()
}
