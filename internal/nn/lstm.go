package nn

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/born-ml/born/tensor"
)

// LSTM is a multi-layer, batch-first long short-term memory network.
//
// For each layer and timestep t:
//
//	gates = x_t @ W_ih.T + b_ih + h_{t-1} @ W_hh.T + b_hh   // [B, 4H]
//	i, f, g, o = sigmoid, sigmoid, tanh, sigmoid (gate order i, f, g, o)
//	c_t = f * c_{t-1} + i * g
//	h_t = o * tanh(c_t)
//
// The hidden and cell state start at zero on every Forward call; nothing is
// carried across sequences. Layer k > 0 consumes the hidden sequence of
// layer k-1, with optional dropout between layers in training mode.
//
// Input:  [batch, seq_len, input_size]
// Output: [batch, seq_len, hidden_size] (hidden state of the last layer).
type LSTM[B tensor.Backend] struct {
	inputSize  int
	hiddenSize int
	numLayers  int
	dropout    float32
	training   bool

	layers []lstmLayer[B]

	backend B
}

type lstmLayer[B tensor.Backend] struct {
	weightIH *Parameter[B] // [4H, in]
	weightHH *Parameter[B] // [4H, H]
	biasIH   *Parameter[B] // [4H]
	biasHH   *Parameter[B] // [4H]
}

// LSTMConfig configures an LSTM.
type LSTMConfig struct {
	InputSize  int
	HiddenSize int
	NumLayers  int     // default 1
	Dropout    float32 // between layers, training only; 0 disables
}

// NewLSTM creates an LSTM. All weights and biases start at
// U(-1/sqrt(H), 1/sqrt(H)).
func NewLSTM[B tensor.Backend](cfg LSTMConfig, backend B) *LSTM[B] {
	if cfg.NumLayers == 0 {
		cfg.NumLayers = 1
	}
	if cfg.InputSize <= 0 || cfg.HiddenSize <= 0 || cfg.NumLayers < 0 {
		panic(fmt.Sprintf("lstm: invalid config input=%d hidden=%d layers=%d",
			cfg.InputSize, cfg.HiddenSize, cfg.NumLayers))
	}
	if cfg.Dropout < 0 || cfg.Dropout >= 1 {
		panic(fmt.Sprintf("lstm: dropout must be in [0, 1), got %v", cfg.Dropout))
	}

	h := cfg.HiddenSize
	bound := 1 / math.Sqrt(float64(h))

	l := &LSTM[B]{
		inputSize:  cfg.InputSize,
		hiddenSize: h,
		numLayers:  cfg.NumLayers,
		dropout:    cfg.Dropout,
		training:   true,
		layers:     make([]lstmLayer[B], cfg.NumLayers),
		backend:    backend,
	}
	for k := range l.layers {
		in := cfg.InputSize
		if k > 0 {
			in = h
		}
		layer := lstmLayer[B]{
			weightIH: NewParameter(fmt.Sprintf("weight_ih_l%d", k), tensor.Zeros[float32](tensor.Shape{4 * h, in}, backend)),
			weightHH: NewParameter(fmt.Sprintf("weight_hh_l%d", k), tensor.Zeros[float32](tensor.Shape{4 * h, h}, backend)),
			biasIH:   NewParameter(fmt.Sprintf("bias_ih_l%d", k), tensor.Zeros[float32](tensor.Shape{4 * h}, backend)),
			biasHH:   NewParameter(fmt.Sprintf("bias_hh_l%d", k), tensor.Zeros[float32](tensor.Shape{4 * h}, backend)),
		}
		Uniform(layer.weightIH, bound)
		Uniform(layer.weightHH, bound)
		Uniform(layer.biasIH, bound)
		Uniform(layer.biasHH, bound)
		l.layers[k] = layer
	}
	return l
}

// Forward runs every layer over the whole sequence.
func (l *LSTM[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if len(shape) != 3 {
		panic(fmt.Sprintf("lstm: expected 3D input [batch, seq, features], got %dD", len(shape)))
	}
	if shape[2] != l.inputSize {
		panic(fmt.Sprintf("lstm: input features %d != expected %d", shape[2], l.inputSize))
	}

	out := input
	for k := range l.layers {
		out = l.runLayer(&l.layers[k], out)
		if l.training && l.dropout > 0 && k < l.numLayers-1 {
			out = Dropout(out, l.dropout)
		}
	}
	return out
}

// runLayer unrolls one layer. The input projection is computed for all
// timesteps in a single matmul; only the recurrent term is per step.
func (l *LSTM[B]) runLayer(layer *lstmLayer[B], x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := x.Shape()
	batch, steps, in := shape[0], shape[1], shape[2]
	h4 := 4 * l.hiddenSize

	proj := x.Reshape(batch*steps, in).
		MatMul(layer.weightIH.Tensor().Transpose()).
		Add(layer.biasIH.Tensor().Reshape(1, h4)).
		Add(layer.biasHH.Tensor().Reshape(1, h4)).
		Reshape(batch, steps, h4)

	var perStep []*tensor.Tensor[float32, B]
	if steps == 1 {
		perStep = []*tensor.Tensor[float32, B]{proj}
	} else {
		perStep = proj.Chunk(steps, 1)
	}

	whhT := layer.weightHH.Tensor().Transpose() // [H, 4H]

	var h, c *tensor.Tensor[float32, B]
	outputs := make([]*tensor.Tensor[float32, B], steps)
	for t := 0; t < steps; t++ {
		gates := perStep[t].Reshape(batch, h4)
		if h != nil {
			gates = gates.Add(h.MatMul(whhT))
		}

		parts := gates.Chunk(4, 1)
		i := Sigmoid(parts[0])
		f := Sigmoid(parts[1])
		g := Tanh(parts[2])
		o := Sigmoid(parts[3])

		// Zero initial state: c_0 = i * g, and the recurrent term vanishes.
		if c == nil {
			c = i.Mul(g)
		} else {
			c = f.Mul(c).Add(i.Mul(g))
		}
		h = o.Mul(Tanh(c))

		outputs[t] = h.Reshape(batch, 1, l.hiddenSize)
	}

	if steps == 1 {
		return outputs[0]
	}
	return tensor.Cat(outputs, 1)
}

// Dropout zeroes elements with probability p and scales survivors by
// 1/(1-p). The mask is a constant, so gradients flow through the kept
// elements only.
func Dropout[B tensor.Backend](x *tensor.Tensor[float32, B], p float32) *tensor.Tensor[float32, B] {
	if p <= 0 {
		return x
	}
	scale := 1 / (1 - p)
	mask := make([]float32, x.NumElements())
	for i := range mask {
		//nolint:gosec // Dropout masks are not security-critical
		if rand.Float32() >= p {
			mask[i] = scale
		}
	}
	m, err := tensor.FromSlice(mask, x.Shape(), x.Backend())
	if err != nil {
		panic(err)
	}
	return x.Mul(m)
}

// Parameters returns all weights and biases, layer by layer.
func (l *LSTM[B]) Parameters() []*Parameter[B] {
	params := make([]*Parameter[B], 0, 4*len(l.layers))
	for _, layer := range l.layers {
		params = append(params, layer.weightIH, layer.weightHH, layer.biasIH, layer.biasHH)
	}
	return params
}

// LocalParameters names the parameters the way torch.nn.LSTM does.
func (l *LSTM[B]) LocalParameters() []NamedParameter[B] {
	params := l.Parameters()
	named := make([]NamedParameter[B], len(params))
	for i, p := range params {
		named[i] = NamedParameter[B]{Name: p.Name(), Param: p}
	}
	return named
}

// Train enables (true) or disables (false) inter-layer dropout.
func (l *LSTM[B]) Train(training bool) {
	l.training = training
}

// InputSize returns the expected feature width.
func (l *LSTM[B]) InputSize() int { return l.inputSize }

// HiddenSize returns the hidden state width.
func (l *LSTM[B]) HiddenSize() int { return l.hiddenSize }

// NumLayers returns the number of stacked layers.
func (l *LSTM[B]) NumLayers() int { return l.numLayers }
