//go:build linux || darwin

package chunky

import (
	"os"

	"golang.org/x/sys/unix"
)

// readChunkFile maps a snapshot data file, copies its content out and
// unmaps. Mapping avoids double-buffering large chunks through the page
// cache and a read buffer.
func readChunkFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := int(info.Size())
	if size == 0 {
		return nil, nil
	}

	mapped, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	defer unix.Munmap(mapped)

	out := make([]byte, size)
	copy(out, mapped)
	return out, nil
}
