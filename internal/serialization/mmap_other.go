//go:build !unix

package serialization

import "errors"

func mmapFile(string) ([]byte, func() error, error) {
	return nil, nil, errors.New("mmap is not supported on this platform")
}
