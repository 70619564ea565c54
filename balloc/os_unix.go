//go:build unix

package balloc

import (
	"golang.org/x/sys/unix"
)

// mmapChunk maps an anonymous, private chunk. The mapping is page backed and
// invisible to the Go garbage collector.
func mmapChunk(size int) ([]byte, error) {
	b, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func munmapChunk(b []byte) error {
	if b == nil {
		return nil
	}
	return unix.Munmap(b)
}
