package deepvo

import (
	"testing"

	"github.com/born-ml/born/optim"
	"github.com/born-ml/born/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestModel_StepTargetShape checks misaligned targets are rejected before any work.
func TestModel_StepTargetShape(t *testing.T) {
	model := newModel(t, smallConfig(32, 32))
	b := model.Backend()
	opt := optim.NewAdam(model.Parameters(), optim.AdamConfig{LR: 1e-3}, b)
	x := tensor.Zeros[float32](tensor.Shape{1, 3, 3, 32, 32}, b)

	for _, shape := range []tensor.Shape{{1, 2, 6}, {2, 3, 6}, {1, 3, 7}, {3, 6}} {
		_, err := model.Step(x, tensor.Zeros[float32](shape, b), opt)
		assert.ErrorIs(t, err, ErrTargetShape, "target %v", shape)

		_, err = model.Evaluate(x, tensor.Zeros[float32](shape, b))
		assert.ErrorIs(t, err, ErrTargetShape, "target %v", shape)
	}
	assert.Zero(t, b.Tape().NumOps())
}

// TestModel_StepUpdatesParameters checks a step changes the weights and clears the tape.
func TestModel_StepUpdatesParameters(t *testing.T) {
	model := newModel(t, smallConfig(32, 32))
	b := model.Backend()
	opt := optim.NewAdam(model.Parameters(), optim.AdamConfig{LR: 1e-2}, b)

	head := model.Regressor().Linear().Bias().Tensor().Data()
	before := append([]float32(nil), head...)

	x := tensor.Randn[float32](tensor.Shape{1, 3, 3, 32, 32}, b)
	y := tensor.Ones[float32](tensor.Shape{1, 3, 6}, b)
	loss, err := model.Step(x, y, opt)
	require.NoError(t, err)

	assert.Greater(t, loss, float32(0))
	assert.NotEqual(t, before, model.Regressor().Linear().Bias().Tensor().Data())
	assert.Zero(t, b.Tape().NumOps())
	assert.False(t, b.Tape().IsRecording())
}

// TestModel_StepReducesLoss fits a fixed clip for a few dozen steps.
func TestModel_StepReducesLoss(t *testing.T) {
	if testing.Short() {
		t.Skip("trains the full encoder")
	}
	model := newModel(t, smallConfig(32, 32))
	b := model.Backend()
	opt := optim.NewAdam(model.Parameters(), optim.AdamConfig{LR: 1e-3}, b)

	x := tensor.Randn[float32](tensor.Shape{1, 3, 3, 32, 32}, b)
	y := fromSlice(t, []float32{
		0, 0, 0, 0, 0, 0,
		0.01, -0.02, 0.005, 0.1, 0.0, 0.8,
		0.02, -0.01, 0.0, 0.2, 0.0, 1.6,
	}, tensor.Shape{1, 3, 6}, b)

	first, err := model.Step(x, y, opt)
	require.NoError(t, err)
	var last float32
	for range 40 {
		last, err = model.Step(x, y, opt)
		require.NoError(t, err)
	}

	assert.Less(t, last, first)
	eval, err := model.Evaluate(x, y)
	require.NoError(t, err)
	assert.Less(t, eval, first)
}

// TestModel_EvaluateComponents checks the weighted sum matches Evaluate.
func TestModel_EvaluateComponents(t *testing.T) {
	model := newModel(t, smallConfig(32, 32))
	b := model.Backend()
	x := tensor.Randn[float32](tensor.Shape{1, 2, 3, 32, 32}, b)
	y := tensor.Randn[float32](tensor.Shape{1, 2, 6}, b)
	model.Train(false)

	total, err := model.Evaluate(x, y)
	require.NoError(t, err)
	rot, trans, err := model.EvaluateComponents(x, y)
	require.NoError(t, err)

	assert.InDelta(t, DefaultRotationWeight*rot+trans, total, 1e-3*float64(total)+1e-5)
}
