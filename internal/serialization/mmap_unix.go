//go:build unix

package serialization

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mmapFile maps a whole file read-only. The file descriptor is closed before returning;
// the mapping stays valid until release is called.
func mmapFile(path string) ([]byte, func() error, error) {
	//nolint:gosec // G304: path is chosen by the caller
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.Size() == 0 {
		return nil, nil, errors.New("cannot map an empty file")
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED) //nolint:gosec // G115: fd and size fit in int
	if err != nil {
		return nil, nil, fmt.Errorf("mmap failed: %w", err)
	}
	return data, func() error { return unix.Munmap(data) }, nil
}
