package optim

import (
	"math"

	"github.com/born-ml/born/tensor"
	"github.com/born-ml/deepvo/internal/nn"
)

// Adagrad defaults.
const (
	DefaultAdagradLR  = 5e-4
	DefaultAdagradEps = 1e-10
)

// AdagradConfig holds configuration for the Adagrad optimizer.
type AdagradConfig struct {
	LR  float32 // Learning rate (default: 5e-4)
	Eps float32 // Term for numerical stability (default: 1e-10)
}

// Adagrad adapts each element's step to the history of its gradients.
//
// Update rule, per element:
//
//	g     = grad + weight_decay * param
//	sum  += g²
//	param = param - lr * g / (sqrt(sum) + eps)
//
// Accumulators start at zero.
type Adagrad[B tensor.Backend] struct {
	groups  []ParamGroup[B]
	lr      float32
	eps     float32
	sum     map[*nn.Parameter[B]][]float32
	backend B
}

// NewAdagrad creates an Adagrad optimizer over the given groups.
func NewAdagrad[B tensor.Backend](groups []ParamGroup[B], config AdagradConfig, backend B) *Adagrad[B] {
	if config.LR == 0 {
		config.LR = DefaultAdagradLR
	}
	if config.Eps == 0 {
		config.Eps = DefaultAdagradEps
	}
	return &Adagrad[B]{
		groups:  groups,
		lr:      config.LR,
		eps:     config.Eps,
		sum:     make(map[*nn.Parameter[B]][]float32),
		backend: backend,
	}
}

// Step applies one update. Parameters with no gradient are skipped.
func (a *Adagrad[B]) Step(grads map[*tensor.RawTensor]*tensor.RawTensor) {
	for _, group := range a.groups {
		for _, param := range group.Params {
			grad := getGradient(param, grads)
			if grad == nil {
				continue
			}
			a.update(param, grad.AsFloat32(), group.WeightDecay)
		}
	}
}

func (a *Adagrad[B]) update(param *nn.Parameter[B], gradData []float32, weightDecay float32) {
	paramData := param.Tensor().Raw().AsFloat32()
	sum, ok := a.sum[param]
	if !ok {
		sum = make([]float32, len(paramData))
		a.sum[param] = sum
	}

	for i := range paramData {
		g := gradData[i]
		if weightDecay != 0 {
			g += weightDecay * paramData[i]
		}
		sum[i] += g * g
		paramData[i] -= a.lr * g / (float32(math.Sqrt(float64(sum[i]))) + a.eps)
	}
}

// ZeroGrad clears gradients for all parameters.
func (a *Adagrad[B]) ZeroGrad() {
	for _, group := range a.groups {
		for _, param := range group.Params {
			param.ZeroGrad()
		}
	}
}

// GetLR returns the learning rate.
func (a *Adagrad[B]) GetLR() float32 {
	return a.lr
}

// SetLR changes the learning rate for subsequent steps.
func (a *Adagrad[B]) SetLR(lr float32) {
	a.lr = lr
}

// State returns the squared-gradient accumulators keyed by parameter name.
func (a *Adagrad[B]) State() map[string][]float32 {
	state := make(map[string][]float32, len(a.sum))
	for param, sum := range a.sum {
		state[param.Name()] = sum
	}
	return state
}
