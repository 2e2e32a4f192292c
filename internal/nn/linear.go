package nn

import (
	"fmt"
	"math"

	bornnn "github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// Linear is a fully connected layer, y = x @ W.T + b, backed by Born's Linear.
//
// Unlike Born's layer it accepts any input rank >= 2: leading dimensions
// are flattened into the batch and restored afterwards, so a [B, T, in]
// sequence maps to [B, T, out] with the same weights at every step.
type Linear[B tensor.Backend] struct {
	linear *bornnn.Linear[B]
}

// NewLinear creates a linear layer with weight [out, in] and bias [out].
//
// Initialization follows PyTorch: U(-1/sqrt(in), 1/sqrt(in)) for both.
func NewLinear[B tensor.Backend](inFeatures, outFeatures int, backend B) *Linear[B] {
	if inFeatures <= 0 || outFeatures <= 0 {
		panic(fmt.Sprintf("linear: invalid features in=%d, out=%d", inFeatures, outFeatures))
	}
	l := &Linear[B]{linear: bornnn.NewLinear(inFeatures, outFeatures, backend)}
	bound := 1 / math.Sqrt(float64(inFeatures))
	Uniform(l.Weight(), bound)
	Uniform(l.Bias(), bound)
	return l
}

// Forward applies the affine map over the last dimension.
func (l *Linear[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if len(shape) < 2 {
		panic(fmt.Sprintf("linear: expected at least 2D input, got shape %v", shape))
	}
	if len(shape) == 2 {
		return l.linear.Forward(input)
	}

	in := shape[len(shape)-1]
	rows := input.NumElements() / in
	out := l.linear.Forward(input.Reshape(rows, in))

	outShape := make([]int, len(shape))
	copy(outShape, shape)
	outShape[len(shape)-1] = l.linear.OutFeatures()
	return out.Reshape(outShape...)
}

// Parameters returns [weight, bias].
func (l *Linear[B]) Parameters() []*Parameter[B] {
	return l.linear.Parameters()
}

// LocalParameters names the weight and bias.
func (l *Linear[B]) LocalParameters() []NamedParameter[B] {
	return []NamedParameter[B]{
		{Name: "weight", Param: l.linear.Weight()},
		{Name: "bias", Param: l.linear.Bias()},
	}
}

// Weight returns the weight parameter [out, in].
func (l *Linear[B]) Weight() *Parameter[B] {
	return l.linear.Weight()
}

// Bias returns the bias parameter [out].
func (l *Linear[B]) Bias() *Parameter[B] {
	return l.linear.Bias()
}

// InFeatures returns the number of input features.
func (l *Linear[B]) InFeatures() int {
	return l.linear.InFeatures()
}

// OutFeatures returns the number of output features.
func (l *Linear[B]) OutFeatures() int {
	return l.linear.OutFeatures()
}
