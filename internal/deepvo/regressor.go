package deepvo

import (
	"github.com/born-ml/born/tensor"
	"github.com/born-ml/deepvo/internal/nn"
)

// Regressor turns a feature sequence into per-step 6-DoF poses with a
// two-layer LSTM followed by a linear head.
type Regressor[B tensor.Backend] struct {
	rnn    *nn.LSTM[B]
	linear *nn.Linear[B]
}

// NewRegressor creates the recurrent head for featureSize-wide inputs.
func NewRegressor[B tensor.Backend](featureSize int, cfg Config, backend B) *Regressor[B] {
	return &Regressor[B]{
		rnn: nn.NewLSTM(nn.LSTMConfig{
			InputSize:  featureSize,
			HiddenSize: cfg.RNNHiddenSize,
			NumLayers:  RNNLayers,
			Dropout:    cfg.RNNDropoutBetween,
		}, backend),
		linear: nn.NewLinear(cfg.RNNHiddenSize, PoseDim, backend),
	}
}

// Forward maps [B, T, F] to [B, T, 6].
func (r *Regressor[B]) Forward(features *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return r.linear.Forward(r.rnn.Forward(features))
}

// Parameters returns the LSTM parameters followed by the linear ones.
func (r *Regressor[B]) Parameters() []*nn.Parameter[B] {
	return append(r.rnn.Parameters(), r.linear.Parameters()...)
}

// Children returns the recurrent core and the output head.
func (r *Regressor[B]) Children() []nn.Child[B] {
	return []nn.Child[B]{
		{Name: "rnn", Module: r.rnn},
		{Name: "linear", Module: r.linear},
	}
}

// RNN returns the recurrent core.
func (r *Regressor[B]) RNN() *nn.LSTM[B] { return r.rnn }

// Linear returns the output head.
func (r *Regressor[B]) Linear() *nn.Linear[B] { return r.linear }
