package deepvo

import (
	"testing"

	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEncoderOutputShape_Reference checks the 184x608 feature map size.
func TestEncoderOutputShape_Reference(t *testing.T) {
	c, h, w := EncoderOutputShape(DefaultImageHeight, DefaultImageWidth)

	assert.Equal(t, 1024, c)
	assert.Equal(t, 3, h)
	assert.Equal(t, 10, w)
}

// TestEncoder_ProbeMatchesClosedForm checks the executed probe against the arithmetic.
func TestEncoder_ProbeMatchesClosedForm(t *testing.T) {
	backend := newBackend()
	encoder := NewEncoder(true, backend)

	c, h, w := encoder.OutputShape(64, 96)
	require.Equal(t, 2, w)

	assert.Equal(t, c*h*w, encoder.Probe(64, 96))
	assert.Zero(t, backend.Tape().NumOps())
}

// TestModel_ForwardShape checks [B, T, 3, H, W] -> [B, T-1, 6].
func TestModel_ForwardShape(t *testing.T) {
	model := newModel(t, smallConfig(64, 64))
	x := tensor.Randn[float32](tensor.Shape{2, 5, 3, 64, 64}, model.Backend())

	out := model.Forward(x)

	assert.Equal(t, tensor.Shape{2, 4, 6}, out.Shape())
	assert.Equal(t, 1024, model.FeatureSize())
}

// TestModel_ParameterNames checks the qualified names of a batch norm model.
func TestModel_ParameterNames(t *testing.T) {
	model := newModel(t, smallConfig(32, 32))

	var got []string
	for _, p := range model.NamedParameters() {
		got = append(got, p.Name)
	}

	assert.Contains(t, got, "conv1.0.weight")
	assert.Contains(t, got, "conv1.1.weight")
	assert.Contains(t, got, "conv6.1.bias")
	assert.Contains(t, got, "rnn.weight_ih_l0")
	assert.Contains(t, got, "rnn.bias_hh_l1")
	assert.Contains(t, got, "linear.weight")
	assert.Contains(t, got, "linear.bias")
	assert.NotContains(t, got, "conv1.0.bias")
	// 9 blocks x 3 + 8 LSTM + 2 linear
	assert.Len(t, got, 37)
}

// TestModel_ParameterViewsDisjoint checks weight and bias views partition the parameters.
func TestModel_ParameterViewsDisjoint(t *testing.T) {
	model := newModel(t, smallConfig(32, 32))

	seen := make(map[any]bool)
	for _, p := range model.WeightParameters() {
		seen[p] = true
	}
	for _, p := range model.BiasParameters() {
		assert.False(t, seen[p], p.Name())
		seen[p] = true
	}
	assert.Len(t, seen, len(model.Parameters()))
}

// TestModel_BatchNormToggle checks BN only changes the parameter set.
func TestModel_BatchNormToggle(t *testing.T) {
	withBN := newModel(t, smallConfig(32, 32))
	cfg := smallConfig(32, 32)
	cfg.BatchNorm = false
	withoutBN := newModel(t, cfg)

	// conv bias replaces BN gamma/beta: one tensor fewer per block.
	assert.Len(t, withoutBN.Parameters(), len(withBN.Parameters())-9)
	assert.NotEqual(t, withBN.ParameterCount(), withoutBN.ParameterCount())

	x := tensor.Randn[float32](tensor.Shape{1, 3, 3, 32, 32}, withBN.Backend())
	y := tensor.Randn[float32](tensor.Shape{1, 3, 3, 32, 32}, withoutBN.Backend())
	assert.Equal(t, withBN.Forward(x).Shape(), withoutBN.Forward(y).Shape())
}

// TestNew_InvalidConfig checks construction errors.
func TestNew_InvalidConfig(t *testing.T) {
	backend := newBackend()

	cfg := smallConfig(32, 32)
	cfg.RNNHiddenSize = 0
	_, err := New(cfg, backend)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg = smallConfig(32, 32)
	cfg.RNNDropoutBetween = 1
	_, err = New(cfg, backend)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg = smallConfig(0, 32)
	_, err = New(cfg, backend)
	assert.ErrorIs(t, err, ErrInvalidFeatureSize)
}

// TestModel_ForwardPanics checks malformed clips are rejected.
func TestModel_ForwardPanics(t *testing.T) {
	model := newModel(t, smallConfig(32, 32))
	b := model.Backend()

	assert.Panics(t, func() { model.Forward(tensor.Zeros[float32](tensor.Shape{1, 1, 3, 32, 32}, b)) })
	assert.Panics(t, func() { model.Forward(tensor.Zeros[float32](tensor.Shape{1, 2, 4, 32, 32}, b)) })
	assert.Panics(t, func() { model.Forward(tensor.Zeros[float32](tensor.Shape{1, 2, 3, 32, 64}, b)) })
	assert.Panics(t, func() { model.Forward(tensor.Zeros[float32](tensor.Shape{2, 3, 32, 32}, b)) })
}

// TestStackFrames_Layout checks consecutive frames are paired along channels.
func TestStackFrames_Layout(t *testing.T) {
	backend := newBackend()
	// B=1, T=3, C=1, H=1, W=2: frames [0 1], [2 3], [4 5]
	x := fromSlice(t, []float32{0, 1, 2, 3, 4, 5}, tensor.Shape{1, 3, 1, 1, 2}, backend)

	stacked := StackFrames(x)

	assert.Equal(t, tensor.Shape{2, 2, 1, 2}, stacked.Shape())
	assert.Equal(t, []float32{0, 1, 2, 3, 2, 3, 4, 5}, stacked.Data())
}

// TestDropFirstStep checks y[:, 1:] over a batch.
func TestDropFirstStep(t *testing.T) {
	backend := newBackend()
	y := fromSlice(t, []float32{0, 1, 2, 3, 4, 5, 6, 7}, tensor.Shape{2, 2, 2}, backend)

	out := DropFirstStep(y)

	assert.Equal(t, tensor.Shape{2, 1, 2}, out.Shape())
	assert.Equal(t, []float32{2, 3, 6, 7}, out.Data())
}

// TestModel_StateDictRoundTrip checks two models agree after loading weights.
func TestModel_StateDictRoundTrip(t *testing.T) {
	src := newModel(t, smallConfig(32, 32))
	dst := newModel(t, smallConfig(32, 32))

	state := src.StateDict()
	assert.Contains(t, state, "conv1.1.running_mean")
	require.NoError(t, dst.LoadStateDict(state))

	x := tensor.Randn[float32](tensor.Shape{1, 3, 3, 32, 32}, src.Backend())
	assert.InDeltaSlice(t, src.Predict(x).Data(), dst.Predict(x).Data(), 1e-5)
}

// TestModel_PredictRestoresMode checks Predict leaves no tape and keeps training mode.
func TestModel_PredictRestoresMode(t *testing.T) {
	model := newModel(t, smallConfig(32, 32))
	model.Backend().Tape().StartRecording()
	defer model.Backend().Tape().Clear()

	out := model.Predict(tensor.Randn[float32](tensor.Shape{1, 2, 3, 32, 32}, model.Backend()))

	assert.Equal(t, tensor.Shape{1, 1, 6}, out.Shape())
	assert.True(t, model.Training())
	assert.True(t, model.Backend().Tape().IsRecording())
	assert.Zero(t, model.Backend().Tape().NumOps())
}

// TestModel_CPUBackendHasNoTape checks Step refuses a non-recording backend.
func TestModel_CPUBackendHasNoTape(t *testing.T) {
	model, err := New(smallConfig(32, 32), cpu.New())
	require.NoError(t, err)

	x := tensor.Zeros[float32](tensor.Shape{1, 2, 3, 32, 32}, model.Backend())
	y := tensor.Zeros[float32](tensor.Shape{1, 2, 6}, model.Backend())
	_, err = model.Step(x, y, nil)
	assert.ErrorIs(t, err, ErrNoTape)
}
