// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu reports whether WebGPU acceleration can be used.
//
// The runtime drives WebGPU through the wgpu-native shared library, loaded at
// run time. Support is built in on platforms with a pure-Go FFI (Linux, macOS and
// FreeBSD on amd64 or arm64, built with CGO_ENABLED=0); whether it is available
// depends on the library being found and creating an instance.
//
// Example:
//
//	device := "cpu"
//	if webgpu.IsAvailable() {
//	    device = "webgpu"
//	}
//	model, err := pose.InitModel(ctx, cfgPath, ckptPath, device)
package webgpu

import (
	internalwebgpu "github.com/born-ml/harness/internal/backend/webgpu"
)

// Status is the outcome of a probe.
type Status = internalwebgpu.Status

// EnvLibraryPath names the wgpu-native library file or a list of directories to search.
const EnvLibraryPath = internalwebgpu.EnvLibraryPath

// IsBuilt reports whether WebGPU support is compiled into this binary.
func IsBuilt() bool {
	return internalwebgpu.IsBuilt()
}

// IsAvailable reports whether a WebGPU instance can be created with the library
// found on the default search path.
//
// Useful for graceful fallback to the CPU:
//
//	if !webgpu.IsAvailable() {
//	    log.Println("WebGPU not available, using CPU")
//	}
func IsAvailable() bool {
	return internalwebgpu.IsAvailable()
}

// Probe looks for wgpu-native in the EnvLibraryPath entries, then in dirs, then
// through the system loader, and tries to create an instance.
func Probe(dirs []string) Status {
	return internalwebgpu.Probe(dirs)
}
