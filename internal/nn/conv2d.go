package nn

import (
	"fmt"

	bornnn "github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// Conv2D is a square-kernel 2D convolution backed by Born's Conv2D.
//
// Input shape:  [batch, in_channels, height, width]
// Weight shape: [out_channels, in_channels, kernel, kernel]
// Bias shape:   [out_channels] (optional)
// Output shape: [batch, out_channels, out_h, out_w]
//
// Where out = (in + 2*padding - kernel) / stride + 1.
type Conv2D[B tensor.Backend] struct {
	conv        *bornnn.Conv2D[B]
	inChannels  int
	outChannels int
	kernel      int
	stride      int
	padding     int
	useBias     bool
}

// NewConv2D creates a convolution. Weights start with Born's Xavier init;
// call InitKaiming (or Initialize) to apply the DeepVO scheme.
func NewConv2D[B tensor.Backend](inChannels, outChannels, kernel, stride, padding int, useBias bool, backend B) *Conv2D[B] {
	return &Conv2D[B]{
		conv:        bornnn.NewConv2D(inChannels, outChannels, kernel, kernel, stride, padding, useBias, backend),
		inChannels:  inChannels,
		outChannels: outChannels,
		kernel:      kernel,
		stride:      stride,
		padding:     padding,
		useBias:     useBias,
	}
}

// Forward performs the convolution.
func (c *Conv2D[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return c.conv.Forward(input)
}

// Parameters returns [weight] or [weight, bias].
func (c *Conv2D[B]) Parameters() []*Parameter[B] {
	return c.conv.Parameters()
}

// LocalParameters names the weight and the optional bias.
func (c *Conv2D[B]) LocalParameters() []NamedParameter[B] {
	params := c.conv.Parameters()
	named := []NamedParameter[B]{{Name: "weight", Param: params[0]}}
	if c.useBias {
		named = append(named, NamedParameter[B]{Name: "bias", Param: params[1]})
	}
	return named
}

// Weight returns the kernel parameter.
func (c *Conv2D[B]) Weight() *Parameter[B] {
	return c.conv.Parameters()[0]
}

// Bias returns the bias parameter, or nil when the layer has none.
func (c *Conv2D[B]) Bias() *Parameter[B] {
	if !c.useBias {
		return nil
	}
	return c.conv.Parameters()[1]
}

// InChannels returns the number of input channels.
func (c *Conv2D[B]) InChannels() int { return c.inChannels }

// OutChannels returns the number of output channels.
func (c *Conv2D[B]) OutChannels() int { return c.outChannels }

// FanIn returns in_channels * kernel * kernel.
func (c *Conv2D[B]) FanIn() int { return c.inChannels * c.kernel * c.kernel }

// OutputSize computes the spatial output size for an input of h x w.
func (c *Conv2D[B]) OutputSize(h, w int) (int, int) {
	return ConvOutputSize(h, c.kernel, c.stride, c.padding), ConvOutputSize(w, c.kernel, c.stride, c.padding)
}

// String returns a short description of the layer.
func (c *Conv2D[B]) String() string {
	return fmt.Sprintf("Conv2D(%d, %d, kernel=%d, stride=%d, padding=%d, bias=%t)",
		c.inChannels, c.outChannels, c.kernel, c.stride, c.padding, c.useBias)
}

// ConvOutputSize applies out = (in + 2*padding - kernel) / stride + 1.
// The result is <= 0 when the kernel does not fit.
func ConvOutputSize(in, kernel, stride, padding int) int {
	span := in + 2*padding - kernel
	if span < 0 {
		return 0
	}
	return span/stride + 1
}

// ConvBlockConfig describes one encoder stage. Zero Kernel and Stride
// default to 3 and 1.
type ConvBlockConfig struct {
	In, Out        int
	Kernel, Stride int
	BatchNorm      bool
}

// NewConvBlock builds Conv2D -> [BatchNorm2D] -> LeakyReLU(0.1) with
// padding (kernel-1)/2. The convolution carries a bias only when batch
// norm is disabled. Children are named by index ("0", "1", "2").
func NewConvBlock[B tensor.Backend](cfg ConvBlockConfig, backend B) *Sequential[B] {
	kernel, stride := cfg.Kernel, cfg.Stride
	if kernel == 0 {
		kernel = 3
	}
	if stride == 0 {
		stride = 1
	}
	padding := (kernel - 1) / 2

	block := NewSequential[B]()
	block.Add(NewConv2D(cfg.In, cfg.Out, kernel, stride, padding, !cfg.BatchNorm, backend))
	if cfg.BatchNorm {
		block.Add(NewBatchNorm2D(cfg.Out, backend))
	}
	block.Add(NewLeakyReLU[B](0.1))
	return block
}
