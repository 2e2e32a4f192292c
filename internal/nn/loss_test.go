package nn

import (
	"testing"

	"github.com/born-ml/born/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMSE_Value checks mean((p - t)²).
func TestMSE_Value(t *testing.T) {
	backend := newBackend()
	p := fromSlice(t, []float32{1, 2, 3, 4}, tensor.Shape{2, 2}, backend)
	y := fromSlice(t, []float32{1, 0, 3, 0}, tensor.Shape{2, 2}, backend)

	loss := MSE(p, y)

	assert.Equal(t, tensor.Shape{1}, loss.Shape())
	assert.InDelta(t, (4.0+16.0)/4.0, loss.Data()[0], 1e-6)
}

// TestPoseLoss_Weighting checks rotation error is weighted and translation is not.
func TestPoseLoss_Weighting(t *testing.T) {
	backend := newBackend()
	// one timestep: rotation error 1 on one component, translation error 2 on one component.
	p := fromSlice(t, []float32{1, 0, 0, 2, 0, 0}, tensor.Shape{1, 1, 6}, backend)
	y := tensor.Zeros[float32](tensor.Shape{1, 1, 6}, backend)

	loss := NewPoseLoss(100, backend).Forward(p, y)

	rot := float32(1.0 / 3.0)
	trans := float32(4.0 / 3.0)
	assert.InDelta(t, 100*rot+trans, loss.Data()[0], 1e-4)

	r, tr := NewPoseLoss(100, backend).Components(p, y)
	assert.InDelta(t, rot, r, 1e-6)
	assert.InDelta(t, trans, tr, 1e-6)
}

// TestPoseLoss_Gradient checks the analytic gradient 2*w*(p-t)/n per component.
func TestPoseLoss_Gradient(t *testing.T) {
	backend := newBackend()
	backend.Tape().StartRecording()
	defer backend.Tape().Clear()

	p := fromSlice(t, []float32{1, 0, 0, 2, 0, 0}, tensor.Shape{1, 1, 6}, backend)
	y := tensor.Zeros[float32](tensor.Shape{1, 1, 6}, backend)

	loss := NewPoseLoss(10, backend).Forward(p, y)
	grads := backward(t, backend, loss)

	g := grads[p.Raw()]
	require.NotNil(t, g)
	// rotation: d/dp0 10 * (p0² + p1² + p2²)/3 = 20*p0/3
	assert.InDelta(t, 20.0/3.0, g.AsFloat32()[0], 1e-4)
	// translation: d/dp3 (p3² + ...)/3 = 2*p3/3
	assert.InDelta(t, 4.0/3.0, g.AsFloat32()[3], 1e-4)
	assert.InDelta(t, 0, g.AsFloat32()[1], 1e-6)
}

// TestSplitLast_Copies checks the head/tail split along the last dimension.
func TestSplitLast_Copies(t *testing.T) {
	backend := newBackend()
	x := fromSlice(t, []float32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}, tensor.Shape{2, 6}, backend)

	head, tail := SplitLast(x, 3)

	assert.Equal(t, tensor.Shape{2, 3}, head.Shape())
	assert.Equal(t, []float32{0, 1, 2, 6, 7, 8}, head.Data())
	assert.Equal(t, []float32{3, 4, 5, 9, 10, 11}, tail.Data())
}

// TestPoseLoss_ShapeMismatch checks mismatched shapes panic.
func TestPoseLoss_ShapeMismatch(t *testing.T) {
	backend := newBackend()
	p := tensor.Zeros[float32](tensor.Shape{1, 2, 6}, backend)
	y := tensor.Zeros[float32](tensor.Shape{1, 3, 6}, backend)

	assert.Panics(t, func() { NewPoseLoss(100, backend).Forward(p, y) })
}
