//go:build (linux || freebsd || darwin) && (amd64 || arm64) && !cgo

package webgpu

import (
	"github.com/go-webgpu/webgpu/wgpu"
)

// newInstance creates an instance through the go-webgpu bindings.
var newInstance = createWGPUInstance

func createWGPUInstance() (gpuInstance, error) {
	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return nil, err
	}
	if instance == nil {
		return nil, errNullInstance
	}
	return wgpuInstance{instance}, nil
}

type wgpuInstance struct {
	instance *wgpu.Instance
}

func (w wgpuInstance) RequestAdapter() (gpuAdapter, error) {
	adapter, err := w.instance.RequestAdapter(nil)
	if err != nil {
		return nil, err
	}
	if adapter == nil {
		return nil, errNoAdapter
	}
	return wgpuAdapter{adapter}, nil
}

func (w wgpuInstance) Release() {
	w.instance.Release()
}

type wgpuAdapter struct {
	adapter *wgpu.Adapter
}

func (w wgpuAdapter) Release() {
	w.adapter.Release()
}
