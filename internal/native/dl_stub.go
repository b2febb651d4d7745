//go:build !((linux || freebsd || darwin) && (amd64 || arm64) && !cgo)

package native

import "unsafe"

const supported = false

func dlopen(string) (unsafe.Pointer, error) { return nil, ErrUnsupported }

func dlsym(unsafe.Pointer, string) (unsafe.Pointer, error) { return nil, ErrUnsupported }

func dlclose(unsafe.Pointer) error { return ErrUnsupported }

func callString(unsafe.Pointer) (string, error) { return "", ErrUnsupported }
