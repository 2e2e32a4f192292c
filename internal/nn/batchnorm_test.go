package nn

import (
	"testing"

	"github.com/born-ml/born/tensor"
	"github.com/stretchr/testify/assert"
)

// TestBatchNorm2D_TrainingNormalizes checks per-channel zero mean and unit variance.
func TestBatchNorm2D_TrainingNormalizes(t *testing.T) {
	backend := newBackend()
	bn := NewBatchNorm2D(2, backend)

	// [N=2, C=2, H=1, W=2]; channel 0 = {1,2,3,4}, channel 1 = {10,10,20,20}
	x := fromSlice(t, []float32{
		1, 2, 10, 10,
		3, 4, 20, 20,
	}, tensor.Shape{2, 2, 1, 2}, backend)

	out := bn.Forward(x)
	assert.Equal(t, tensor.Shape{2, 2, 1, 2}, out.Shape())

	data := out.Data()
	ch0 := []float32{data[0], data[1], data[4], data[5]}
	ch1 := []float32{data[2], data[3], data[6], data[7]}
	for _, ch := range [][]float32{ch0, ch1} {
		var mean, sq float32
		for _, v := range ch {
			mean += v
		}
		mean /= 4
		for _, v := range ch {
			sq += (v - mean) * (v - mean)
		}
		assert.InDelta(t, 0, mean, 1e-4)
		assert.InDelta(t, 1, sq/4, 1e-3)
	}
}

// TestBatchNorm2D_RunningStats checks the momentum update with unbiased variance.
func TestBatchNorm2D_RunningStats(t *testing.T) {
	backend := newBackend()
	bn := NewBatchNorm2D(1, backend)

	x := fromSlice(t, []float32{1, 2, 3, 4}, tensor.Shape{1, 1, 2, 2}, backend)
	bn.Forward(x)

	// batch mean 2.5, biased var 1.25, unbiased 1.6667
	assert.InDelta(t, 0.25, bn.RunningMean()[0], 1e-5)
	assert.InDelta(t, 0.9*1+0.1*(1.25*4.0/3.0), bn.RunningVar()[0], 1e-5)
}

// TestBatchNorm2D_EvalUsesRunningStats checks evaluation ignores batch statistics.
func TestBatchNorm2D_EvalUsesRunningStats(t *testing.T) {
	backend := newBackend()
	bn := NewBatchNorm2D(1, backend)
	bn.RunningMean()[0] = 1
	bn.RunningVar()[0] = 4
	bn.Train(false)

	x := fromSlice(t, []float32{1, 3, 5, 7}, tensor.Shape{1, 1, 2, 2}, backend)
	out := bn.Forward(x)

	expected := []float32{0, 1, 2, 3}
	for i, exp := range expected {
		assert.InDelta(t, exp, out.Data()[i], 1e-4, "index %d", i)
	}
	assert.InDelta(t, 1, bn.RunningMean()[0], 1e-7, "eval must not update running stats")
}

// TestBatchNorm2D_AffineGradients checks gamma and beta receive gradients.
func TestBatchNorm2D_AffineGradients(t *testing.T) {
	backend := newBackend()
	backend.Tape().StartRecording()
	defer backend.Tape().Clear()

	bn := NewBatchNorm2D(1, backend)
	x := fromSlice(t, []float32{1, 2, 3, 4}, tensor.Shape{1, 1, 2, 2}, backend)
	out := bn.Forward(x)
	loss := out.Reshape(1, 4).MeanDim(1, false)

	grads := backward(t, backend, loss)

	// d(mean(gamma*xhat + beta))/d beta = 1; xhat sums to zero so d/d gamma = 0.
	assert.InDelta(t, 1, grads[bn.Beta().Tensor().Raw()].AsFloat32()[0], 1e-5)
	assert.InDelta(t, 0, grads[bn.Gamma().Tensor().Raw()].AsFloat32()[0], 1e-5)
}
