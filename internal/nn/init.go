package nn

import (
	"math"
	"math/rand"

	"github.com/born-ml/born/tensor"
)

// KaimingNormal fills p in place with values drawn from N(0, 2/fanIn).
//
// This is He initialization with gain sqrt(2), the scheme for layers
// followed by (leaky) rectifiers.
func KaimingNormal[B tensor.Backend](p *Parameter[B], fanIn int) {
	std := math.Sqrt(2.0 / float64(fanIn))
	data := p.Tensor().Data()
	for i := range data {
		//nolint:gosec // Using math/rand for weight initialization (not security-critical)
		data[i] = float32(rand.NormFloat64() * std)
	}
}

// Uniform fills p in place with values drawn from U(-bound, bound).
func Uniform[B tensor.Backend](p *Parameter[B], bound float64) {
	data := p.Tensor().Data()
	for i := range data {
		//nolint:gosec // Using math/rand for weight initialization (not security-critical)
		data[i] = float32((rand.Float64()*2.0 - 1.0) * bound)
	}
}

// Fill sets every element of p to value.
func Fill[B tensor.Backend](p *Parameter[B], value float32) {
	data := p.Tensor().Data()
	for i := range data {
		data[i] = value
	}
}

// Initialize walks the module tree once and re-initializes every layer it
// knows:
//   - Conv2D: Kaiming-normal weight, zero bias
//   - BatchNorm2D: weight (gamma) ones, bias (beta) zeros
//
// Other modules (activations, containers, recurrent layers) keep their own
// initialization.
func Initialize[B tensor.Backend](root Module[B]) {
	Walk(root, func(_ string, m Module[B]) {
		switch layer := m.(type) {
		case *Conv2D[B]:
			KaimingNormal(layer.Weight(), layer.FanIn())
			if bias := layer.Bias(); bias != nil {
				Fill(bias, 0)
			}
		case *BatchNorm2D[B]:
			Fill(layer.Gamma(), 1)
			Fill(layer.Beta(), 0)
		}
	})
}
