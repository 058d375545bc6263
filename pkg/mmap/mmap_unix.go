//go:build linux || darwin

package mmap

import "os"

// mapFile maps size bytes of f read-only. The second result reports
// whether data must be unmapped.
func mapFile(f *os.File, size int64) ([]byte, bool, error) {
	data, err := mmap(int(f.Fd()), 0, int(size), protRead, mapShared)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func unmapFile(b []byte) error {
	return munmap(b)
}

// adviseRandom hints that chunks are read out of order. Failures are ignored.
func adviseRandom(b []byte) {
	_ = madvise(b, madvRandom)
}

// adviseSequential is used for whole-file reads
func adviseSequential(b []byte) {
	_ = madvise(b, madvSequential)
}
