package nn

import (
	"math"
	"testing"

	"github.com/born-ml/born/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// referenceLSTM runs a single-feature, single-unit, single-layer LSTM.
// w = [W_ih(i,f,g,o)], u = [W_hh(i,f,g,o)], b = b_ih + b_hh.
func referenceLSTM(xs []float64, w, u, b [4]float64) []float64 {
	var h, c float64
	out := make([]float64, len(xs))
	for t, x := range xs {
		i := sigmoid(w[0]*x + u[0]*h + b[0])
		f := sigmoid(w[1]*x + u[1]*h + b[1])
		g := math.Tanh(w[2]*x + u[2]*h + b[2])
		o := sigmoid(w[3]*x + u[3]*h + b[3])
		c = f*c + i*g
		h = o * math.Tanh(c)
		out[t] = h
	}
	return out
}

// TestLSTM_MatchesReference checks the unrolled gates against a scalar loop.
func TestLSTM_MatchesReference(t *testing.T) {
	backend := newBackend()
	lstm := NewLSTM(LSTMConfig{InputSize: 1, HiddenSize: 1, NumLayers: 1}, backend)

	w := [4]float64{0.5, -0.5, 1.0, 2.0}
	u := [4]float64{0.3, 0.1, -0.7, 0.2}
	bih := [4]float64{0.1, 0.2, 0.0, -0.1}
	bhh := [4]float64{0.0, 0.1, 0.05, 0.0}

	params := lstm.Parameters()
	setData(params[0], float32(w[0]), float32(w[1]), float32(w[2]), float32(w[3]))
	setData(params[1], float32(u[0]), float32(u[1]), float32(u[2]), float32(u[3]))
	setData(params[2], float32(bih[0]), float32(bih[1]), float32(bih[2]), float32(bih[3]))
	setData(params[3], float32(bhh[0]), float32(bhh[1]), float32(bhh[2]), float32(bhh[3]))

	var b [4]float64
	for k := range b {
		b[k] = bih[k] + bhh[k]
	}

	xs := []float64{1.0, -0.5, 2.0}
	x := fromSlice(t, []float32{1.0, -0.5, 2.0}, tensor.Shape{1, 3, 1}, backend)

	out := lstm.Forward(x)
	require.Equal(t, tensor.Shape{1, 3, 1}, out.Shape())

	expected := referenceLSTM(xs, w, u, b)
	for i, exp := range expected {
		assert.InDelta(t, exp, out.Data()[i], 1e-5, "step %d", i)
	}
}

// TestLSTM_Shapes checks a stacked LSTM over a batch.
func TestLSTM_Shapes(t *testing.T) {
	backend := newBackend()
	lstm := NewLSTM(LSTMConfig{InputSize: 5, HiddenSize: 4, NumLayers: 2}, backend)

	x := tensor.Randn[float32](tensor.Shape{3, 6, 5}, backend)
	out := lstm.Forward(x)

	assert.Equal(t, tensor.Shape{3, 6, 4}, out.Shape())
}

// TestLSTM_SingleStep checks sequences of length one.
func TestLSTM_SingleStep(t *testing.T) {
	backend := newBackend()
	lstm := NewLSTM(LSTMConfig{InputSize: 2, HiddenSize: 3, NumLayers: 2}, backend)

	out := lstm.Forward(tensor.Randn[float32](tensor.Shape{2, 1, 2}, backend))

	assert.Equal(t, tensor.Shape{2, 1, 3}, out.Shape())
}

// TestLSTM_ParameterNames checks the torch.nn.LSTM layout.
func TestLSTM_ParameterNames(t *testing.T) {
	backend := newBackend()
	lstm := NewLSTM(LSTMConfig{InputSize: 7, HiddenSize: 4, NumLayers: 2}, backend)

	named := lstm.LocalParameters()
	assert.Equal(t, []string{
		"weight_ih_l0", "weight_hh_l0", "bias_ih_l0", "bias_hh_l0",
		"weight_ih_l1", "weight_hh_l1", "bias_ih_l1", "bias_hh_l1",
	}, names(named))

	assert.Equal(t, tensor.Shape{16, 7}, named[0].Param.Tensor().Shape())
	assert.Equal(t, tensor.Shape{16, 4}, named[1].Param.Tensor().Shape())
	assert.Equal(t, tensor.Shape{16, 4}, named[4].Param.Tensor().Shape())
	assert.Equal(t, tensor.Shape{16}, named[2].Param.Tensor().Shape())
}

// TestLSTM_Gradients checks every weight receives a gradient.
func TestLSTM_Gradients(t *testing.T) {
	backend := newBackend()
	backend.Tape().StartRecording()
	defer backend.Tape().Clear()

	lstm := NewLSTM(LSTMConfig{InputSize: 3, HiddenSize: 2, NumLayers: 2}, backend)
	x := tensor.Randn[float32](tensor.Shape{2, 4, 3}, backend)

	out := lstm.Forward(x)
	loss := out.Reshape(1, out.NumElements()).MeanDim(1, false)
	grads := backward(t, backend, loss)

	for _, p := range lstm.Parameters() {
		assert.Contains(t, grads, p.Tensor().Raw(), p.Name())
	}
}

// TestDropout_Scaling checks kept elements are scaled by 1/(1-p).
func TestDropout_Scaling(t *testing.T) {
	backend := newBackend()
	x := tensor.Ones[float32](tensor.Shape{1000}, backend)

	out := Dropout(x, 0.5)

	kept := 0
	for _, v := range out.Data() {
		if v != 0 {
			assert.InDelta(t, 2.0, v, 1e-6)
			kept++
		}
	}
	assert.InDelta(t, 500, kept, 100)
}
