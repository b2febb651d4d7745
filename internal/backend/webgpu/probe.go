// Package webgpu reports whether WebGPU acceleration can be used on this machine.
//
// Availability is checked by creating an instance through the go-webgpu bindings and requesting an
// adapter, the way the compute backend starts up. No device is created, so the check
// leaves no GPU state behind.
package webgpu

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/born-ml/harness/internal/native"
)

// LibraryName is the name wgpu-native is resolved by.
const LibraryName = "wgpu_native"

// EnvLibraryPath overrides where wgpu-native is looked up. It may name the library
// file or hold a list of directories.
const EnvLibraryPath = "WGPU_NATIVE_PATH"

// Device names used for placement.
const (
	DeviceWebGPU = "webgpu"
	DeviceCPU    = "cpu"
)

var (
	errNullInstance = errors.New("webgpu: CreateInstance returned no instance")
	errNoAdapter    = errors.New("webgpu: no adapter available")
)

type gpuAdapter interface {
	Release()
}

type gpuInstance interface {
	RequestAdapter() (gpuAdapter, error)
	Release()
}

// Status is the outcome of a probe.
type Status struct {
	Built     bool   `json:"built"`
	Available bool   `json:"available"`
	Library   string `json:"library,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Device returns the device a model should be placed on given this status.
func (s Status) Device() string {
	if s.Available {
		return DeviceWebGPU
	}
	return DeviceCPU
}

// IsBuilt reports whether this binary can load wgpu-native at all.
func IsBuilt() bool {
	return newInstance != nil
}

// IsAvailable reports whether wgpu-native loads and provides an adapter.
func IsAvailable() bool {
	return Probe(nil).Available
}

// Probe loads wgpu-native from WGPU_NATIVE_PATH, then dirs, then the loader's default
// search paths, and checks that an instance can be created and yields an adapter.
func Probe(dirs []string) (status Status) {
	status.Built = IsBuilt()
	if !status.Built {
		status.Error = native.ErrUnsupported.Error()
		return status
	}

	// Recover from panic if wgpu_native misbehaves during the call.
	defer func() {
		if r := recover(); r != nil {
			status.Available = false
			status.Error = fmt.Sprintf("webgpu: native library not available: %v", r)
		}
	}()

	path := libraryPath(dirs)
	status.Library = path
	if err := requestAdapter(path); err != nil {
		status.Error = err.Error()
		zap.L().Debug("webgpu unavailable", zap.String("library", path), zap.Error(err))
		return status
	}
	status.Available = true
	return status
}

func requestAdapter(path string) error {
	// A library found on disk is opened first so the bindings' lookup by soname
	// resolves to it.
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		lib, err := native.Open(path)
		if err != nil {
			return err
		}
		defer func() { _ = lib.Close() }()
	}

	instance, err := newInstance()
	if err != nil {
		return err
	}
	defer instance.Release()

	adapter, err := instance.RequestAdapter()
	if err != nil {
		return fmt.Errorf("webgpu: failed to request adapter: %w", err)
	}
	if adapter == nil {
		return errNoAdapter
	}
	adapter.Release()
	return nil
}

// libraryPath resolves the library to open. Entries of EnvLibraryPath come first, then
// dirs; an entry naming a file is used as is.
func libraryPath(dirs []string) string {
	entries := append(native.SplitPathList(os.Getenv(EnvLibraryPath)), dirs...)
	search := make([]string, 0, len(entries))
	for _, e := range entries {
		if info, err := os.Stat(e); err == nil && !info.IsDir() {
			return e
		}
		search = append(search, e)
	}
	path, _ := native.Find(LibraryName, search)
	return path
}
