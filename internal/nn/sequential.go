package nn

import (
	"strconv"

	"github.com/born-ml/born/tensor"
)

// Sequential is a container module that chains multiple modules together.
//
// Each module's output becomes the next module's input. Children are named
// by their index, so parameters read "0.weight", "1.bias", and so on.
//
// Example:
//
//	block := nn.NewSequential(
//	    nn.NewConv2D(6, 64, 7, 2, 3, false, backend),
//	    nn.NewBatchNorm2D(64, backend),
//	    nn.NewLeakyReLU[Backend](0.1),
//	)
//
//	output := block.Forward(input)
type Sequential[B tensor.Backend] struct {
	modules []Module[B]
}

// NewSequential creates a new Sequential container.
func NewSequential[B tensor.Backend](modules ...Module[B]) *Sequential[B] {
	return &Sequential[B]{
		modules: modules,
	}
}

// Forward applies all modules in sequence.
func (s *Sequential[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	output := input
	for _, module := range s.modules {
		output = module.Forward(output)
	}
	return output
}

// Parameters returns all trainable parameters from all modules.
func (s *Sequential[B]) Parameters() []*Parameter[B] {
	var params []*Parameter[B]
	for _, module := range s.modules {
		params = append(params, module.Parameters()...)
	}
	return params
}

// Children returns the modules named by index.
func (s *Sequential[B]) Children() []Child[B] {
	children := make([]Child[B], len(s.modules))
	for i, m := range s.modules {
		children[i] = Child[B]{Name: strconv.Itoa(i), Module: m}
	}
	return children
}

// Add appends a module to the sequence.
func (s *Sequential[B]) Add(module Module[B]) {
	s.modules = append(s.modules, module)
}

// Len returns the number of modules in the sequence.
func (s *Sequential[B]) Len() int {
	return len(s.modules)
}

// Module returns the module at the given index.
//
// Panics if index is out of bounds.
func (s *Sequential[B]) Module(index int) Module[B] {
	if index < 0 || index >= len(s.modules) {
		panic("Sequential.Module: index out of bounds")
	}
	return s.modules[index]
}
