//go:build windows

package main

import (
	"fmt"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/backend/webgpu"
	"github.com/rs/zerolog/log"
)

const (
	deviceCPU    = "cpu"
	deviceWebGPU = "webgpu"
	deviceNames  = "cpu, webgpu"
)

type (
	cpuBackend = *autodiff.Backend[*cpu.Backend]
	gpuBackend = *autodiff.Backend[*webgpu.Backend]
)

// newRunner returns a session on device, falling back to the CPU when
// WebGPU is requested but unavailable.
func newRunner(device string) (runner, error) {
	switch device {
	case deviceCPU:
		return &session[cpuBackend]{backend: autodiff.New(cpu.New())}, nil
	case deviceWebGPU:
		if !webgpu.IsAvailable() {
			log.Warn().Msg("WebGPU not available, using the CPU")
			return &session[cpuBackend]{backend: autodiff.New(cpu.New())}, nil
		}
		gpu, err := webgpu.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create WebGPU backend: %w", err)
		}
		return &session[gpuBackend]{backend: autodiff.New(gpu), release: gpu.Release}, nil
	default:
		return nil, fmt.Errorf("unsupported device %q (available: %s)", device, deviceNames)
	}
}
