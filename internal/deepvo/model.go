// Package deepvo implements the DeepVO visual odometry network: a
// FlowNet-style convolutional encoder over stacked consecutive frames,
// followed by a two-layer LSTM that regresses a 6-DoF relative pose
// (three Euler angles, three translations) per frame pair.
package deepvo

import (
	"fmt"

	"github.com/born-ml/born/tensor"
	"github.com/born-ml/deepvo/internal/nn"
	"github.com/born-ml/deepvo/internal/parallel"
)

// Model is the full DeepVO network. Parameter names follow the PyTorch
// reference layout (conv1.0.weight, rnn.weight_ih_l0, linear.bias, ...).
type Model[B tensor.Backend] struct {
	cfg         Config
	encoder     *Encoder[B]
	regressor   *Regressor[B]
	loss        *nn.PoseLoss[B]
	featureSize int
	training    bool
	backend     B
}

// New builds and initializes a model for cfg.
//
// It fails with ErrInvalidConfig for bad hyperparameters and with
// ErrInvalidFeatureSize when the image size leaves no spatial extent after
// the encoder.
func New[B tensor.Backend](cfg Config, backend B) (*Model[B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c, h, w := EncoderOutputShape(cfg.ImageHeight, cfg.ImageWidth)
	if cfg.ImageHeight <= 0 || cfg.ImageWidth <= 0 || h <= 0 || w <= 0 {
		return nil, fmt.Errorf("%w: %dx%d input gives %dx%d features",
			ErrInvalidFeatureSize, cfg.ImageHeight, cfg.ImageWidth, h, w)
	}

	featureSize := c * h * w
	encoder := NewEncoder(cfg.BatchNorm, backend)
	return &Model[B]{
		cfg:         cfg,
		encoder:     encoder,
		regressor:   NewRegressor(featureSize, cfg, backend),
		loss:        nn.NewPoseLoss(cfg.RotationWeight, backend),
		featureSize: featureSize,
		training:    true,
		backend:     backend,
	}, nil
}

// Forward maps a [B, T, 3, H, W] clip to [B, T-1, 6] relative poses.
//
// It panics on a malformed input (rank, channels, T < 2, or a resolution
// other than the configured one).
func (m *Model[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	m.checkInput(x.Shape())
	shape := x.Shape()
	batch, steps := shape[0], shape[1]-1

	stacked := StackFrames(x)
	features := m.encoder.Forward(stacked)
	features = features.Reshape(batch, steps, m.featureSize)
	return m.regressor.Forward(features)
}

func (m *Model[B]) checkInput(shape tensor.Shape) {
	if len(shape) != 5 {
		panic(fmt.Sprintf("deepvo: expected [B, T, 3, H, W] input, got %v", shape))
	}
	if shape[2] != 3 {
		panic(fmt.Sprintf("deepvo: expected 3 channels per frame, got %d", shape[2]))
	}
	if shape[1] < 2 {
		panic(fmt.Sprintf("deepvo: need at least 2 frames per clip, got %d", shape[1]))
	}
	if shape[3] != m.cfg.ImageHeight || shape[4] != m.cfg.ImageWidth {
		panic(fmt.Sprintf("deepvo: model built for %dx%d frames, got %dx%d",
			m.cfg.ImageHeight, m.cfg.ImageWidth, shape[3], shape[4]))
	}
}

// StackFrames pairs consecutive frames of a [B, T, C, H, W] clip along the
// channel axis, giving [B*(T-1), 2C, H, W]. Pair (b, t) holds frame t in
// its first C channels and frame t+1 in the rest.
//
// The result is a fresh constant tensor; clips are inputs and carry no
// gradient.
func StackFrames[B tensor.Backend](x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := x.Shape()
	if len(shape) != 5 || shape[1] < 2 {
		panic(fmt.Sprintf("deepvo: cannot stack frames of shape %v", shape))
	}
	batch, frames, c, h, w := shape[0], shape[1], shape[2], shape[3], shape[4]
	frame := c * h * w
	pairs := frames - 1

	src := x.Data()
	dst := make([]float32, batch*pairs*2*frame)
	parallel.ForBatch(batch, pairs, func(b, t int) {
		in := (b*frames + t) * frame
		out := (b*pairs + t) * 2 * frame
		copy(dst[out:out+2*frame], src[in:in+2*frame])
	}, parallel.DefaultConfig())

	stacked, err := tensor.FromSlice(dst, tensor.Shape{batch * pairs, 2 * c, h, w}, x.Backend())
	if err != nil {
		panic(fmt.Sprintf("deepvo: stack frames: %v", err))
	}
	return stacked
}

// Parameters returns every trainable parameter in registration order.
func (m *Model[B]) Parameters() []*nn.Parameter[B] {
	return nn.CollectParameters[B](m)
}

// Children exposes the encoder stages and the regressor parts at the top
// level, so qualified names match the reference checkpoints.
func (m *Model[B]) Children() []nn.Child[B] {
	return append(m.encoder.Children(), m.regressor.Children()...)
}

// NamedParameters returns parameters with their qualified names.
func (m *Model[B]) NamedParameters() []nn.NamedParameter[B] {
	return nn.NamedParameters[B](m)
}

// WeightParameters returns the parameters whose name contains "weight".
func (m *Model[B]) WeightParameters() []*nn.Parameter[B] {
	return nn.FilterParameters[B](m, "weight")
}

// BiasParameters returns the parameters whose name contains "bias".
func (m *Model[B]) BiasParameters() []*nn.Parameter[B] {
	return nn.FilterParameters[B](m, "bias")
}

// StateDict returns parameters and batch norm buffers by qualified name.
func (m *Model[B]) StateDict() map[string]*tensor.RawTensor {
	return nn.StateDict[B](m)
}

// LoadStateDict copies a state dict into the model.
func (m *Model[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return nn.LoadStateDict[B](m, stateDict)
}

// Train switches batch norm and recurrent dropout between training and
// inference behavior.
func (m *Model[B]) Train(training bool) {
	m.training = training
	for _, child := range m.Children() {
		nn.SetTraining(child.Module, training)
	}
}

// Training reports whether the model is in training mode.
func (m *Model[B]) Training() bool { return m.training }

// ParameterCount returns the number of scalar weights.
func (m *Model[B]) ParameterCount() int {
	n := 0
	for _, p := range m.Parameters() {
		n += p.Tensor().NumElements()
	}
	return n
}

// Config returns the configuration the model was built with.
func (m *Model[B]) Config() Config { return m.cfg }

// FeatureSize returns the flattened encoder output width per frame pair.
func (m *Model[B]) FeatureSize() int { return m.featureSize }

// Encoder returns the convolutional encoder.
func (m *Model[B]) Encoder() *Encoder[B] { return m.encoder }

// Regressor returns the recurrent pose head.
func (m *Model[B]) Regressor() *Regressor[B] { return m.regressor }

// Backend returns the compute backend.
func (m *Model[B]) Backend() B { return m.backend }
