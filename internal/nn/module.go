// Package nn implements the layers DeepVO is assembled from, on top of the
// Born tensor engine.
//
// This package provides:
//   - Module interface plus a named module tree (Walk, NamedParameters)
//   - Conv2D and Linear adapters over Born's layers
//   - BatchNorm2D with running statistics
//   - LeakyReLU and the Sigmoid/Tanh helpers used by recurrent cells
//   - LSTM: multi-layer, batch-first
//   - MSE and the weighted rotation/translation pose loss
//   - Kaiming initialization applied by visiting the module tree
//
// Parameter names follow the PyTorch layout (conv3_1.0.weight, rnn.weight_ih_l0),
// so state dicts produced by torch map one to one.
package nn

import (
	"fmt"
	"sort"
	"strings"

	bornnn "github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// Parameter is Born's trainable parameter.
type Parameter[B tensor.Backend] = bornnn.Parameter[B]

// NewParameter wraps t as a named trainable parameter.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return bornnn.NewParameter(name, t)
}

// Module is the base interface for all DeepVO network components.
//
// Every module must implement:
//   - Forward: Compute output from input
//   - Parameters: Return all trainable parameters, children included
type Module[B tensor.Backend] interface {
	Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]
	Parameters() []*Parameter[B]
}

// NamedParameter pairs a parameter with its qualified name.
type NamedParameter[B tensor.Backend] struct {
	Name  string
	Param *Parameter[B]
}

// Child is a named submodule.
type Child[B tensor.Backend] struct {
	Name   string
	Module Module[B]
}

// Container is implemented by modules that own submodules.
type Container[B tensor.Backend] interface {
	Children() []Child[B]
}

// ParameterOwner is implemented by leaf layers that own parameters directly.
// Names are local to the layer ("weight", "bias", "weight_ih_l0").
type ParameterOwner[B tensor.Backend] interface {
	LocalParameters() []NamedParameter[B]
}

// BufferOwner is implemented by layers with non-trainable state that belongs
// in a state dict (batch norm running statistics).
type BufferOwner interface {
	Buffers() map[string]*tensor.RawTensor
}

// Trainable is implemented by layers whose forward pass differs between
// training and evaluation.
type Trainable interface {
	Train(training bool)
}

// Walk visits root and every submodule in pre-order. The name passed to fn
// is the dot-separated path from root ("" for root itself).
func Walk[B tensor.Backend](root Module[B], fn func(name string, m Module[B])) {
	walk("", root, fn)
}

func walk[B tensor.Backend](name string, m Module[B], fn func(string, Module[B])) {
	fn(name, m)
	c, ok := m.(Container[B])
	if !ok {
		return
	}
	for _, child := range c.Children() {
		walk(join(name, child.Name), child.Module, fn)
	}
}

// NamedParameters returns every parameter of the tree with its qualified name,
// in registration order.
func NamedParameters[B tensor.Backend](root Module[B]) []NamedParameter[B] {
	var named []NamedParameter[B]
	Walk(root, func(name string, m Module[B]) {
		owner, ok := m.(ParameterOwner[B])
		if !ok {
			return
		}
		for _, p := range owner.LocalParameters() {
			named = append(named, NamedParameter[B]{Name: join(name, p.Name), Param: p.Param})
		}
	})
	return named
}

// CollectParameters flattens NamedParameters into a plain slice.
func CollectParameters[B tensor.Backend](root Module[B]) []*Parameter[B] {
	named := NamedParameters(root)
	params := make([]*Parameter[B], len(named))
	for i, p := range named {
		params[i] = p.Param
	}
	return params
}

// FilterParameters returns the parameters whose qualified name contains substr.
func FilterParameters[B tensor.Backend](root Module[B], substr string) []*Parameter[B] {
	var params []*Parameter[B]
	for _, p := range NamedParameters(root) {
		if strings.Contains(p.Name, substr) {
			params = append(params, p.Param)
		}
	}
	return params
}

// SetTraining switches every Trainable module in the tree.
func SetTraining[B tensor.Backend](root Module[B], training bool) {
	Walk(root, func(_ string, m Module[B]) {
		if t, ok := m.(Trainable); ok {
			t.Train(training)
		}
	})
}

// StateDict returns a map of qualified names to raw tensors, covering
// parameters and buffers. The tensors are shared, not copied.
func StateDict[B tensor.Backend](root Module[B]) map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	for _, p := range NamedParameters(root) {
		stateDict[p.Name] = p.Param.Tensor().Raw()
	}
	Walk(root, func(name string, m Module[B]) {
		owner, ok := m.(BufferOwner)
		if !ok {
			return
		}
		for bufName, raw := range owner.Buffers() {
			stateDict[join(name, bufName)] = raw
		}
	})
	return stateDict
}

// LoadStateDict copies every entry of stateDict into the tree, in place.
//
// Missing keys, unexpected keys, shape and dtype mismatches are errors;
// nothing is modified unless the whole dict matches.
func LoadStateDict[B tensor.Backend](root Module[B], stateDict map[string]*tensor.RawTensor) error {
	own := StateDict(root)

	var missing, unexpected []string
	for name := range own {
		if _, ok := stateDict[name]; !ok {
			missing = append(missing, name)
		}
	}
	for name := range stateDict {
		if _, ok := own[name]; !ok {
			unexpected = append(unexpected, name)
		}
	}
	if len(missing) > 0 || len(unexpected) > 0 {
		sort.Strings(missing)
		sort.Strings(unexpected)
		return fmt.Errorf("state dict mismatch: missing %v, unexpected %v", missing, unexpected)
	}

	for name, dst := range own {
		src := stateDict[name]
		if !src.Shape().Equal(dst.Shape()) {
			return fmt.Errorf("%s: shape mismatch: expected %v, got %v", name, dst.Shape(), src.Shape())
		}
		if src.DType() != tensor.Float32 {
			return fmt.Errorf("%s: dtype mismatch: expected float32, got %v", name, src.DType())
		}
	}

	for name, dst := range own {
		copy(dst.AsFloat32(), stateDict[name].AsFloat32())
	}
	return nil
}

func join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
