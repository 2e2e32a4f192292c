//go:build !windows

package main

import (
	"fmt"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
)

const (
	deviceCPU   = "cpu"
	deviceNames = "cpu"
)

type cpuBackend = *autodiff.Backend[*cpu.Backend]

// newRunner returns a session on device. Only the CPU backend is available
// on this platform.
func newRunner(device string) (runner, error) {
	if device != deviceCPU {
		return nil, fmt.Errorf("unsupported device %q (available: %s)", device, deviceNames)
	}
	return &session[cpuBackend]{backend: autodiff.New(cpu.New())}, nil
}
