// Package optim builds the optimizers used to train DeepVO.
//
// It provides:
//   - Adagrad: the default optimizer, with per-group weight decay
//   - WeightDecay: an L2 wrapper for born's Adam and SGD
//   - New: a factory that splits a model into weight and bias groups
//
// Every optimizer satisfies born's optim.Optimizer, so it plugs directly
// into Model.Step:
//
//	optimizer, err := optim.New(cfg.Optimizer, model)
//	if err != nil {
//	    return err
//	}
//	loss, err := model.Step(x, y, optimizer)
package optim

import (
	"errors"
	"fmt"
	"strings"

	bornoptim "github.com/born-ml/born/optim"
	"github.com/born-ml/born/tensor"
	"github.com/born-ml/deepvo/internal/nn"
)

// Optimizer is born's optimizer interface.
type Optimizer = bornoptim.Optimizer

// Optimizer names accepted by New.
const (
	NameAdagrad = "adagrad"
	NameAdam    = "adam"
	NameSGD     = "sgd"
)

// ErrUnknownOptimizer is returned by New for an unsupported name.
var ErrUnknownOptimizer = errors.New("unknown optimizer")

// Config selects and parameterizes an optimizer. Zero values fall back to
// each optimizer's defaults.
type Config struct {
	Name     string     `yaml:"name"`
	LR       float32    `yaml:"lr"`
	Eps      float32    `yaml:"eps"`
	Momentum float32    `yaml:"momentum"`
	Betas    [2]float32 `yaml:"betas"`

	// WeightDecay applies to the "weight" group only; biases and batch
	// norm shifts are never decayed.
	WeightDecay float32 `yaml:"weight_decay"`
}

// DefaultConfig returns Adagrad with lr 5e-4.
func DefaultConfig() Config {
	return Config{Name: NameAdagrad, LR: DefaultAdagradLR, Eps: DefaultAdagradEps}
}

// ParamGroup is a set of parameters sharing a weight decay.
type ParamGroup[B tensor.Backend] struct {
	Params      []*nn.Parameter[B]
	WeightDecay float32
}

// ParameterViews is implemented by models that split their parameters by
// name.
type ParameterViews[B tensor.Backend] interface {
	WeightParameters() []*nn.Parameter[B]
	BiasParameters() []*nn.Parameter[B]
	Backend() B
}

// Groups returns the weight group (decayed) followed by the bias group.
func Groups[B tensor.Backend](model ParameterViews[B], weightDecay float32) []ParamGroup[B] {
	return []ParamGroup[B]{
		{Params: model.WeightParameters(), WeightDecay: weightDecay},
		{Params: model.BiasParameters()},
	}
}

// New builds the optimizer named in cfg over model's parameter groups.
func New[B tensor.Backend](cfg Config, model ParameterViews[B]) (Optimizer, error) {
	if cfg.LR < 0 || cfg.WeightDecay < 0 {
		return nil, fmt.Errorf("optimizer: lr and weight_decay must not be negative (lr=%v, weight_decay=%v)",
			cfg.LR, cfg.WeightDecay)
	}
	groups := Groups(model, cfg.WeightDecay)
	backend := model.Backend()

	switch strings.ToLower(cfg.Name) {
	case "", NameAdagrad:
		return NewAdagrad(groups, AdagradConfig{LR: cfg.LR, Eps: cfg.Eps}, backend), nil
	case NameAdam:
		inner := bornoptim.NewAdam(flatten(groups), bornoptim.AdamConfig{LR: cfg.LR, Betas: cfg.Betas, Eps: cfg.Eps}, backend)
		return WithWeightDecay(inner, groups), nil
	case NameSGD:
		inner := bornoptim.NewSGD(flatten(groups), bornoptim.SGDConfig{LR: cfg.LR, Momentum: cfg.Momentum}, backend)
		return WithWeightDecay(inner, groups), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOptimizer, cfg.Name)
	}
}

func flatten[B tensor.Backend](groups []ParamGroup[B]) []*nn.Parameter[B] {
	var params []*nn.Parameter[B]
	for _, g := range groups {
		params = append(params, g.Params...)
	}
	return params
}

// getGradient retrieves the gradient of param, or nil when the parameter
// took no part in the recorded computation.
func getGradient[B tensor.Backend](param *nn.Parameter[B], grads map[*tensor.RawTensor]*tensor.RawTensor) *tensor.RawTensor {
	if param == nil {
		return nil
	}
	return grads[param.Tensor().Raw()]
}
