//go:build !((linux || freebsd || darwin) && (amd64 || arm64) && !cgo)

package webgpu

// newInstance is nil where the go-webgpu bindings are not built in.
var newInstance func() (gpuInstance, error)
