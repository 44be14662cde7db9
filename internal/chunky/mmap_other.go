//go:build !linux && !darwin

package chunky

import "os"

// readChunkFile reads a snapshot data file with a plain buffered read on
// platforms without the mmap fast path.
func readChunkFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}
