package deepvo

import (
	"fmt"

	"github.com/born-ml/born/optim"
	"github.com/born-ml/born/tensor"
)

// Step runs one optimization step on a clip x [B, T, 3, H, W] with absolute
// targets y [B, T, 6] and returns the loss before the update.
//
// Target step 0 is dropped so the remaining T-1 targets line up with the
// T-1 predicted frame pairs. The loss is
//
//	RotationWeight * mse(angles) + mse(translation)
//
// The backend must record operations (autodiff.Backend); ErrNoTape is
// returned otherwise.
func (m *Model[B]) Step(x, y *tensor.Tensor[float32, B], optimizer optim.Optimizer) (float32, error) {
	t, ok := any(m.backend).(taper)
	if !ok {
		return 0, ErrNoTape
	}
	target, err := m.alignTarget(x, y)
	if err != nil {
		return 0, err
	}

	tape := t.Tape()
	wasRecording := tape.IsRecording()
	tape.Clear()
	optimizer.ZeroGrad()
	tape.StartRecording()
	defer func() {
		tape.Clear()
		if !wasRecording {
			tape.StopRecording()
		}
	}()

	pred := m.Forward(x)
	loss := m.loss.Forward(pred, target)
	value := loss.Data()[0]

	outputGrad, err := tensor.NewRaw(loss.Shape(), loss.DType(), m.backend.Device())
	if err != nil {
		return 0, fmt.Errorf("create output gradient: %w", err)
	}
	for i := range outputGrad.AsFloat32() {
		outputGrad.AsFloat32()[i] = 1
	}

	grads := tape.Backward(outputGrad, m.backend)
	optimizer.Step(grads)
	return value, nil
}

// Evaluate returns the loss of x against y without recording or updating.
func (m *Model[B]) Evaluate(x, y *tensor.Tensor[float32, B]) (float32, error) {
	target, err := m.alignTarget(x, y)
	if err != nil {
		return 0, err
	}
	var value float32
	withoutTape(m.backend, func() {
		value = m.loss.Forward(m.Forward(x), target).Data()[0]
	})
	return value, nil
}

// EvaluateComponents is Evaluate split into the unweighted rotation and
// translation errors.
func (m *Model[B]) EvaluateComponents(x, y *tensor.Tensor[float32, B]) (rotation, translation float32, err error) {
	target, err := m.alignTarget(x, y)
	if err != nil {
		return 0, 0, err
	}
	withoutTape(m.backend, func() {
		rotation, translation = m.loss.Components(m.Forward(x), target)
	})
	return rotation, translation, nil
}

// Predict runs the model in inference mode and returns [B, T-1, 6] poses.
// The training mode is restored afterwards.
func (m *Model[B]) Predict(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	training := m.training
	m.Train(false)
	defer m.Train(training)

	var out *tensor.Tensor[float32, B]
	withoutTape(m.backend, func() {
		out = m.Forward(x)
	})
	return out
}

// alignTarget checks y against x and drops target step 0.
func (m *Model[B]) alignTarget(x, y *tensor.Tensor[float32, B]) (*tensor.Tensor[float32, B], error) {
	xs, ys := x.Shape(), y.Shape()
	if len(xs) != 5 || len(ys) != 3 || ys[0] != xs[0] || ys[1] != xs[1] || ys[2] != PoseDim {
		return nil, fmt.Errorf("%w: input %v, target %v (want [%d, %d, %d])",
			ErrTargetShape, xs, ys, xs[0], xs[1], PoseDim)
	}
	return DropFirstStep(y), nil
}

// DropFirstStep returns y[:, 1:] as a constant tensor.
func DropFirstStep[B tensor.Backend](y *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := y.Shape()
	batch, steps, width := shape[0], shape[1], shape[2]
	src := y.Data()
	dst := make([]float32, 0, batch*(steps-1)*width)
	for b := 0; b < batch; b++ {
		start := (b*steps + 1) * width
		dst = append(dst, src[start:(b+1)*steps*width]...)
	}
	out, err := tensor.FromSlice(dst, tensor.Shape{batch, steps - 1, width}, y.Backend())
	if err != nil {
		panic(fmt.Sprintf("deepvo: drop first step: %v", err))
	}
	return out
}
