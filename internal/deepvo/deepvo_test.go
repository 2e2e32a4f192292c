package deepvo

import (
	"testing"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/tensor"
	"github.com/stretchr/testify/require"
)

type Backend = *autodiff.Backend[*cpu.Backend]

func newBackend() Backend {
	return autodiff.New(cpu.New())
}

// smallConfig keeps the encoder output at 1x1 and the LSTM narrow.
func smallConfig(h, w int) Config {
	cfg := DefaultConfig()
	cfg.ImageHeight = h
	cfg.ImageWidth = w
	cfg.RNNHiddenSize = 8
	return cfg
}

func newModel(t *testing.T, cfg Config) *Model[Backend] {
	t.Helper()
	model, err := New(cfg, newBackend())
	require.NoError(t, err)
	return model
}

func fromSlice(t *testing.T, data []float32, shape tensor.Shape, backend Backend) *tensor.Tensor[float32, Backend] {
	t.Helper()
	x, err := tensor.FromSlice(data, shape, backend)
	require.NoError(t, err)
	return x
}

