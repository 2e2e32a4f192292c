package deepvo

import (
	"github.com/born-ml/born/tensor"
	"github.com/born-ml/deepvo/internal/nn"
)

// stage is one convolutional block of the encoder.
type stage struct {
	name                     string
	in, out, kernel, stride int
}

// encoderStages is the FlowNet-style topology. Input is a stacked frame
// pair (6 channels); the output has 1024 channels and 1/32 of the
// resolution, rounded up per stride-2 stage.
var encoderStages = []stage{
	{"conv1", 6, 64, 7, 2},
	{"conv2", 64, 128, 5, 2},
	{"conv3", 128, 256, 5, 2},
	{"conv3_1", 256, 256, 3, 1},
	{"conv4", 256, 512, 3, 2},
	{"conv4_1", 512, 512, 3, 1},
	{"conv5", 512, 512, 3, 2},
	{"conv5_1", 512, 512, 3, 1},
	{"conv6", 512, 1024, 3, 2},
}

// Encoder maps [N, 6, H, W] stacked frame pairs to dense
// [N, 1024, h', w'] feature maps.
type Encoder[B tensor.Backend] struct {
	blocks  []*nn.Sequential[B]
	backend B
}

// NewEncoder builds the nine blocks and applies Kaiming initialization.
func NewEncoder[B tensor.Backend](batchNorm bool, backend B) *Encoder[B] {
	e := &Encoder[B]{
		blocks:  make([]*nn.Sequential[B], len(encoderStages)),
		backend: backend,
	}
	for i, s := range encoderStages {
		e.blocks[i] = nn.NewConvBlock(nn.ConvBlockConfig{
			In:        s.in,
			Out:       s.out,
			Kernel:    s.kernel,
			Stride:    s.stride,
			BatchNorm: batchNorm,
		}, backend)
	}
	nn.Initialize[B](e)
	return e
}

// Forward runs all blocks in order.
func (e *Encoder[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	out := input
	for _, block := range e.blocks {
		out = block.Forward(out)
	}
	return out
}

// Parameters returns the parameters of every block.
func (e *Encoder[B]) Parameters() []*nn.Parameter[B] {
	var params []*nn.Parameter[B]
	for _, block := range e.blocks {
		params = append(params, block.Parameters()...)
	}
	return params
}

// Children returns the blocks under their stage names.
func (e *Encoder[B]) Children() []nn.Child[B] {
	children := make([]nn.Child[B], len(e.blocks))
	for i, block := range e.blocks {
		children[i] = nn.Child[B]{Name: encoderStages[i].name, Module: block}
	}
	return children
}

// OutputShape returns the feature map shape (channels, height, width) for
// an h x w input, using out = (in + 2p - k)/s + 1 per stage.
func (e *Encoder[B]) OutputShape(h, w int) (c, oh, ow int) {
	return EncoderOutputShape(h, w)
}

// EncoderOutputShape is OutputShape without an encoder instance.
func EncoderOutputShape(h, w int) (c, oh, ow int) {
	oh, ow = h, w
	for _, s := range encoderStages {
		pad := (s.kernel - 1) / 2
		oh = nn.ConvOutputSize(oh, s.kernel, s.stride, pad)
		ow = nn.ConvOutputSize(ow, s.kernel, s.stride, pad)
	}
	return encoderStages[len(encoderStages)-1].out, oh, ow
}
