//go:build (linux || freebsd || darwin) && (amd64 || arm64) && !cgo

package native

import (
	"unsafe"

	"github.com/go-webgpu/goffi/ffi"
	"github.com/go-webgpu/goffi/types"
	"golang.org/x/sys/unix"
)

const supported = true

func dlopen(path string) (unsafe.Pointer, error) {
	return ffi.LoadLibrary(path)
}

func dlsym(handle unsafe.Pointer, name string) (unsafe.Pointer, error) {
	return ffi.GetSymbol(handle, name)
}

func dlclose(handle unsafe.Pointer) error {
	return ffi.FreeLibrary(handle)
}

func callString(fn unsafe.Pointer) (string, error) {
	var cif types.CallInterface
	if err := ffi.PrepareCallInterface(&cif, types.DefaultCall, types.PointerTypeDescriptor, nil); err != nil {
		return "", err
	}
	var ret unsafe.Pointer
	if err := ffi.CallFunction(&cif, fn, unsafe.Pointer(&ret), nil); err != nil {
		return "", err
	}
	if ret == nil {
		return "", ErrNullString
	}
	return unix.BytePtrToString((*byte)(ret)), nil
}
