package nn

import (
	"fmt"

	"github.com/born-ml/born/tensor"
)

// BatchNorm2D normalizes each channel of a [N, C, H, W] input.
//
// In training mode the batch statistics over (N, H, W) are used and the
// running estimates are updated:
//
//	running = (1 - momentum) * running + momentum * batch
//
// with the unbiased batch variance. In evaluation mode the running
// estimates are used instead. Gamma and beta are registered as "weight" and
// "bias"; the running statistics are buffers, not parameters.
type BatchNorm2D[B tensor.Backend] struct {
	numFeatures int
	eps         float32
	momentum    float32
	training    bool

	gamma *Parameter[B] // [C]
	beta  *Parameter[B] // [C]

	runningMean *tensor.RawTensor // [C]
	runningVar  *tensor.RawTensor // [C]

	backend B
}

// NewBatchNorm2D creates a batch norm layer with eps 1e-5 and momentum 0.1.
//
// Initialization: gamma ones, beta zeros, running mean zeros, running var ones.
func NewBatchNorm2D[B tensor.Backend](numFeatures int, backend B) *BatchNorm2D[B] {
	if numFeatures <= 0 {
		panic(fmt.Sprintf("batchnorm2d: invalid features %d", numFeatures))
	}

	runningMean, err := tensor.NewRaw(tensor.Shape{numFeatures}, tensor.Float32, backend.Device())
	if err != nil {
		panic(err)
	}
	runningVar, err := tensor.NewRaw(tensor.Shape{numFeatures}, tensor.Float32, backend.Device())
	if err != nil {
		panic(err)
	}
	for i := range runningVar.AsFloat32() {
		runningVar.AsFloat32()[i] = 1
	}

	return &BatchNorm2D[B]{
		numFeatures: numFeatures,
		eps:         1e-5,
		momentum:    0.1,
		training:    true,
		gamma:       NewParameter("weight", tensor.Ones[float32](tensor.Shape{numFeatures}, backend)),
		beta:        NewParameter("bias", tensor.Zeros[float32](tensor.Shape{numFeatures}, backend)),
		runningMean: runningMean,
		runningVar:  runningVar,
		backend:     backend,
	}
}

// Forward normalizes the input.
//
// Input/Output: [N, C, H, W].
func (bn *BatchNorm2D[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := x.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("batchnorm2d: expected 4D input [N,C,H,W], got %dD", len(shape)))
	}
	if shape[1] != bn.numFeatures {
		panic(fmt.Sprintf("batchnorm2d: input channels %d != expected %d", shape[1], bn.numFeatures))
	}

	var mean, variance *tensor.Tensor[float32, B]
	if bn.training {
		mean = channelMean(x)
		centered := x.Sub(mean)
		variance = channelMean(centered.Mul(centered))
		bn.updateRunningStats(mean.Data(), variance.Data(), shape[0]*shape[2]*shape[3])
	} else {
		mean = bn.statTensor(bn.runningMean.AsFloat32())
		variance = bn.statTensor(bn.runningVar.AsFloat32())
	}

	xCentered := x.Sub(mean)

	epsTensor := tensor.Full[float32](tensor.Shape{1}, bn.eps, bn.backend)
	invStd := variance.Add(epsTensor).Rsqrt()

	gamma := bn.gamma.Tensor().Reshape(1, bn.numFeatures, 1, 1)
	beta := bn.beta.Tensor().Reshape(1, bn.numFeatures, 1, 1)

	return xCentered.Mul(invStd).Mul(gamma).Add(beta)
}

// channelMean reduces [N, C, H, W] to [1, C, 1, 1].
func channelMean[B tensor.Backend](x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return x.MeanDim(0, true).MeanDim(2, true).MeanDim(3, true)
}

func (bn *BatchNorm2D[B]) updateRunningStats(mean, variance []float32, n int) {
	correction := float32(1)
	if n > 1 {
		correction = float32(n) / float32(n-1)
	}
	rm := bn.runningMean.AsFloat32()
	rv := bn.runningVar.AsFloat32()
	for c := range rm {
		rm[c] = (1-bn.momentum)*rm[c] + bn.momentum*mean[c]
		rv[c] = (1-bn.momentum)*rv[c] + bn.momentum*variance[c]*correction
	}
}

// statTensor wraps a copy of a running statistic as a [1, C, 1, 1] constant.
func (bn *BatchNorm2D[B]) statTensor(values []float32) *tensor.Tensor[float32, B] {
	data := make([]float32, len(values))
	copy(data, values)
	t, err := tensor.FromSlice(data, tensor.Shape{1, bn.numFeatures, 1, 1}, bn.backend)
	if err != nil {
		panic(err)
	}
	return t
}

// Parameters returns [gamma, beta].
func (bn *BatchNorm2D[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{bn.gamma, bn.beta}
}

// LocalParameters returns gamma and beta under their state dict names.
func (bn *BatchNorm2D[B]) LocalParameters() []NamedParameter[B] {
	return []NamedParameter[B]{
		{Name: "weight", Param: bn.gamma},
		{Name: "bias", Param: bn.beta},
	}
}

// Buffers returns the running statistics.
func (bn *BatchNorm2D[B]) Buffers() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{
		"running_mean": bn.runningMean,
		"running_var":  bn.runningVar,
	}
}

// Train switches between batch statistics (true) and running statistics (false).
func (bn *BatchNorm2D[B]) Train(training bool) {
	bn.training = training
}

// Training reports whether batch statistics are in use.
func (bn *BatchNorm2D[B]) Training() bool {
	return bn.training
}

// Gamma returns the scale parameter.
func (bn *BatchNorm2D[B]) Gamma() *Parameter[B] {
	return bn.gamma
}

// Beta returns the shift parameter.
func (bn *BatchNorm2D[B]) Beta() *Parameter[B] {
	return bn.beta
}

// RunningMean returns the running mean estimate.
func (bn *BatchNorm2D[B]) RunningMean() []float32 {
	return bn.runningMean.AsFloat32()
}

// RunningVar returns the running variance estimate.
func (bn *BatchNorm2D[B]) RunningVar() []float32 {
	return bn.runningVar.AsFloat32()
}
