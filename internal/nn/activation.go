package nn

import (
	"fmt"

	"github.com/born-ml/born/tensor"
)

// ReLUBackend is an interface for backends that support ReLU activation.
type ReLUBackend interface {
	ReLU(*tensor.RawTensor) *tensor.RawTensor
}

// SigmoidBackend is an interface for backends that support Sigmoid activation.
type SigmoidBackend interface {
	Sigmoid(*tensor.RawTensor) *tensor.RawTensor
}

// TanhBackend is an interface for backends that support Tanh activation.
type TanhBackend interface {
	Tanh(*tensor.RawTensor) *tensor.RawTensor
}

// ReLU applies max(0, x) through the backend.
func ReLU[B tensor.Backend](x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	backend := x.Backend()
	if b, ok := any(backend).(ReLUBackend); ok {
		return tensor.New[float32, B](b.ReLU(x.Raw()), backend)
	}
	panic("ReLU: backend must implement ReLU operation (use autodiff.Backend)")
}

// Sigmoid applies 1 / (1 + exp(-x)) through the backend.
func Sigmoid[B tensor.Backend](x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	backend := x.Backend()
	if b, ok := any(backend).(SigmoidBackend); ok {
		return tensor.New[float32, B](b.Sigmoid(x.Raw()), backend)
	}
	panic("Sigmoid: backend must implement Sigmoid operation (use autodiff.Backend)")
}

// Tanh applies the hyperbolic tangent through the backend.
func Tanh[B tensor.Backend](x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	backend := x.Backend()
	if b, ok := any(backend).(TanhBackend); ok {
		return tensor.New[float32, B](b.Tanh(x.Raw()), backend)
	}
	panic("Tanh: backend must implement Tanh operation (use autodiff.Backend)")
}

// LeakyReLU passes positive inputs unchanged and scales negative inputs
// by a fixed slope.
//
// It is composed from recorded ops, f(x) = slope*x + (1-slope)*relu(x),
// so gradients flow without a dedicated backward kernel.
type LeakyReLU[B tensor.Backend] struct {
	slope float32
}

// NewLeakyReLU creates a LeakyReLU with the given negative slope.
func NewLeakyReLU[B tensor.Backend](slope float32) *LeakyReLU[B] {
	if slope < 0 || slope >= 1 {
		panic(fmt.Sprintf("leaky_relu: slope must be in [0, 1), got %v", slope))
	}
	return &LeakyReLU[B]{slope: slope}
}

// Forward applies the activation element-wise.
func (l *LeakyReLU[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	backend := input.Backend()
	positive := ReLU(input)

	negScale := tensor.Full[float32](tensor.Shape{1}, l.slope, backend)
	posScale := tensor.Full[float32](tensor.Shape{1}, 1-l.slope, backend)

	return input.Mul(negScale).Add(positive.Mul(posScale))
}

// Parameters returns nil (LeakyReLU has no trainable parameters).
func (l *LeakyReLU[B]) Parameters() []*Parameter[B] {
	return nil
}

// Slope returns the negative slope.
func (l *LeakyReLU[B]) Slope() float32 {
	return l.slope
}
