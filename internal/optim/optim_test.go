package optim_test

import (
	"math"
	"testing"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/tensor"
	"github.com/born-ml/deepvo/internal/nn"
	"github.com/born-ml/deepvo/internal/optim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Backend = *autodiff.Backend[*cpu.Backend]

func newParam(t *testing.T, name string, backend Backend, values ...float32) *nn.Parameter[Backend] {
	t.Helper()
	x, err := tensor.FromSlice(values, tensor.Shape{len(values)}, backend)
	require.NoError(t, err)
	return nn.NewParameter(name, x)
}

func gradsFor(t *testing.T, backend Backend, param *nn.Parameter[Backend], values ...float32) map[*tensor.RawTensor]*tensor.RawTensor {
	t.Helper()
	grad, err := tensor.NewRaw(tensor.Shape{len(values)}, tensor.Float32, backend.Device())
	require.NoError(t, err)
	copy(grad.AsFloat32(), values)
	return map[*tensor.RawTensor]*tensor.RawTensor{param.Tensor().Raw(): grad}
}

// views is a two-parameter model.
type views struct {
	weight, bias *nn.Parameter[Backend]
	backend      Backend
}

func (v *views) WeightParameters() []*nn.Parameter[Backend] { return []*nn.Parameter[Backend]{v.weight} }
func (v *views) BiasParameters() []*nn.Parameter[Backend]   { return []*nn.Parameter[Backend]{v.bias} }
func (v *views) Backend() Backend                           { return v.backend }

// TestAdagrad_SimpleUpdate checks the first two steps by hand.
func TestAdagrad_SimpleUpdate(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x := newParam(t, "x", backend, 2.0)
	opt := optim.NewAdagrad([]optim.ParamGroup[Backend]{{Params: []*nn.Parameter[Backend]{x}}},
		optim.AdagradConfig{LR: 0.1, Eps: 1e-10}, backend)

	// sum = 4, step = 0.1 * 2 / 2
	opt.Step(gradsFor(t, backend, x, 2.0))
	assert.InDelta(t, 1.9, x.Tensor().Data()[0], 1e-6)

	// sum = 4 + 1, step = 0.1 * 1 / sqrt(5)
	opt.Step(gradsFor(t, backend, x, 1.0))
	assert.InDelta(t, 1.9-0.1/math.Sqrt(5), x.Tensor().Data()[0], 1e-6)
}

// TestAdagrad_Defaults checks the zero config falls back to lr 5e-4.
func TestAdagrad_Defaults(t *testing.T) {
	backend := autodiff.New(cpu.New())
	opt := optim.NewAdagrad[Backend](nil, optim.AdagradConfig{}, backend)

	assert.InDelta(t, 5e-4, opt.GetLR(), 1e-12)
	opt.SetLR(1e-3)
	assert.InDelta(t, 1e-3, opt.GetLR(), 1e-12)
}

// TestAdagrad_WeightDecayPerGroup checks only the decayed group sees the L2 term.
func TestAdagrad_WeightDecayPerGroup(t *testing.T) {
	backend := autodiff.New(cpu.New())
	w := newParam(t, "weight", backend, 1.0)
	b := newParam(t, "bias", backend, 1.0)
	opt := optim.NewAdagrad([]optim.ParamGroup[Backend]{
		{Params: []*nn.Parameter[Backend]{w}, WeightDecay: 1},
		{Params: []*nn.Parameter[Backend]{b}},
	}, optim.AdagradConfig{LR: 0.1}, backend)

	grads := gradsFor(t, backend, w, 1.0)
	for k, v := range gradsFor(t, backend, b, 1.0) {
		grads[k] = v
	}
	opt.Step(grads)

	// both steps are lr * g / |g| on the first update, so compare accumulators.
	state := opt.State()
	assert.InDelta(t, 4.0, state["weight"][0], 1e-6)
	assert.InDelta(t, 1.0, state["bias"][0], 1e-6)
}

// TestAdagrad_SkipsMissingGradients checks untouched parameters stay put.
func TestAdagrad_SkipsMissingGradients(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x := newParam(t, "x", backend, 3.0)
	opt := optim.NewAdagrad([]optim.ParamGroup[Backend]{{Params: []*nn.Parameter[Backend]{x}}},
		optim.AdagradConfig{}, backend)

	opt.Step(map[*tensor.RawTensor]*tensor.RawTensor{})

	assert.Equal(t, float32(3.0), x.Tensor().Data()[0])
	assert.Empty(t, opt.State())
}

// TestNew_Factory checks names map to optimizers.
func TestNew_Factory(t *testing.T) {
	backend := autodiff.New(cpu.New())
	model := &views{
		weight:  newParam(t, "weight", backend, 1.0),
		bias:    newParam(t, "bias", backend, 1.0),
		backend: backend,
	}

	opt, err := optim.New[Backend](optim.DefaultConfig(), model)
	require.NoError(t, err)
	assert.IsType(t, &optim.Adagrad[Backend]{}, opt)

	opt, err = optim.New[Backend](optim.Config{Name: "Adam", LR: 0.01}, model)
	require.NoError(t, err)
	assert.InDelta(t, 0.01, opt.GetLR(), 1e-9)

	opt, err = optim.New[Backend](optim.Config{Name: "sgd", LR: 0.1}, model)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, opt.GetLR(), 1e-9)

	_, err = optim.New[Backend](optim.Config{Name: "lbfgs"}, model)
	assert.ErrorIs(t, err, optim.ErrUnknownOptimizer)

	_, err = optim.New[Backend](optim.Config{LR: -1}, model)
	assert.Error(t, err)
}

// TestWithWeightDecay_SGD checks the L2 term reaches plain SGD.
func TestWithWeightDecay_SGD(t *testing.T) {
	backend := autodiff.New(cpu.New())
	model := &views{
		weight:  newParam(t, "weight", backend, 2.0),
		bias:    newParam(t, "bias", backend, 2.0),
		backend: backend,
	}
	opt, err := optim.New[Backend](optim.Config{Name: optim.NameSGD, LR: 0.1, WeightDecay: 0.5}, model)
	require.NoError(t, err)

	grads := gradsFor(t, backend, model.weight, 1.0)
	for k, v := range gradsFor(t, backend, model.bias, 1.0) {
		grads[k] = v
	}
	opt.Step(grads)

	// weight: 2 - 0.1 * (1 + 0.5*2); bias: 2 - 0.1 * 1
	assert.InDelta(t, 1.8, model.weight.Tensor().Data()[0], 1e-6)
	assert.InDelta(t, 1.9, model.bias.Tensor().Data()[0], 1e-6)
}

// TestWithWeightDecay_NoDecayUnwrapped checks zero decay returns the inner optimizer.
func TestWithWeightDecay_NoDecayUnwrapped(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x := newParam(t, "x", backend, 1.0)
	groups := []optim.ParamGroup[Backend]{{Params: []*nn.Parameter[Backend]{x}}}
	inner := optim.NewAdagrad(groups, optim.AdagradConfig{}, backend)

	assert.Same(t, inner, optim.WithWeightDecay[Backend](inner, groups))
}
