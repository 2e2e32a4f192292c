package nn

import (
	"testing"

	"github.com/born-ml/born/tensor"
	"github.com/stretchr/testify/assert"
)

// TestLeakyReLU_Forward checks positive values pass and negative ones are scaled.
func TestLeakyReLU_Forward(t *testing.T) {
	backend := newBackend()
	x := fromSlice(t, []float32{-2, -0.5, 0, 0.5, 3}, tensor.Shape{5}, backend)

	out := NewLeakyReLU[Backend](0.1).Forward(x)

	expected := []float32{-0.2, -0.05, 0, 0.5, 3}
	for i, exp := range expected {
		assert.InDelta(t, exp, out.Data()[i], 1e-6, "index %d", i)
	}
}

// TestLeakyReLU_Gradient checks d/dx is 1 for x > 0 and slope for x < 0.
func TestLeakyReLU_Gradient(t *testing.T) {
	backend := newBackend()
	backend.Tape().StartRecording()
	defer backend.Tape().Clear()

	x := fromSlice(t, []float32{-1, 2}, tensor.Shape{1, 2}, backend)
	out := NewLeakyReLU[Backend](0.1).Forward(x)
	loss := out.Reshape(1, 2).MeanDim(1, false)

	grads := backward(t, backend, loss)

	g := grads[x.Raw()]
	if assert.NotNil(t, g) {
		// mean over 2 elements halves the gradient.
		assert.InDelta(t, 0.05, g.AsFloat32()[0], 1e-6)
		assert.InDelta(t, 0.5, g.AsFloat32()[1], 1e-6)
	}
}

// TestLeakyReLU_InvalidSlope checks the constructor rejects slopes outside [0, 1).
func TestLeakyReLU_InvalidSlope(t *testing.T) {
	assert.Panics(t, func() { NewLeakyReLU[Backend](1.5) })
	assert.Panics(t, func() { NewLeakyReLU[Backend](-0.1) })
}
