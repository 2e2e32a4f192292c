package optim

import (
	"github.com/born-ml/born/tensor"
	"github.com/born-ml/deepvo/internal/nn"
)

// decayed adds L2 weight decay to the gradients before delegating to an
// optimizer that has none of its own.
type decayed[B tensor.Backend] struct {
	Optimizer
	groups []ParamGroup[B]
}

// WithWeightDecay wraps inner so that every group's gradient gets
// WeightDecay * param added before inner.Step. Groups with zero decay are
// untouched; if no group decays, inner is returned as is.
func WithWeightDecay[B tensor.Backend](inner Optimizer, groups []ParamGroup[B]) Optimizer {
	for _, g := range groups {
		if g.WeightDecay != 0 {
			return &decayed[B]{Optimizer: inner, groups: groups}
		}
	}
	return inner
}

// Step adds the decay term in place and forwards the gradients.
func (d *decayed[B]) Step(grads map[*tensor.RawTensor]*tensor.RawTensor) {
	for _, group := range d.groups {
		if group.WeightDecay == 0 {
			continue
		}
		for _, param := range group.Params {
			addDecay(param, getGradient(param, grads), group.WeightDecay)
		}
	}
	d.Optimizer.Step(grads)
}

func addDecay[B tensor.Backend](param *nn.Parameter[B], grad *tensor.RawTensor, weightDecay float32) {
	if grad == nil {
		return
	}
	gradData := grad.AsFloat32()
	for i, p := range param.Tensor().Raw().AsFloat32() {
		gradData[i] += weightDecay * p
	}
}
