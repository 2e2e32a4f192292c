package nn

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

func fromSlice(t *testing.T, data []float32, shape tensor.Shape, backend Backend) *tensor.Tensor[float32, Backend] {
	t.Helper()
	x, err := tensor.FromSlice(data, shape, backend)
	require.NoError(t, err)
	return x
}

// backward seeds the last recorded op with ones and returns the gradients.
func backward(t *testing.T, backend Backend, loss *tensor.Tensor[float32, Backend]) map[*tensor.RawTensor]*tensor.RawTensor {
	t.Helper()
	outputGrad, err := tensor.NewRaw(loss.Shape(), loss.DType(), backend.Device())
	require.NoError(t, err)
	for i := range outputGrad.AsFloat32() {
		outputGrad.AsFloat32()[i] = 1
	}
	return backend.Tape().Backward(outputGrad, backend)
}

func setData(p *Parameter[Backend], values ...float32) {
	copy(p.Tensor().Data(), values)
}
