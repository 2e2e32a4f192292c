package nn

import (
	"fmt"

	"github.com/born-ml/born/tensor"
)

// MSE computes mean((predictions - targets)²) as a [1] tensor.
//
// Every step is a recorded op (Sub, Mul, Reshape, MeanDim), so the result
// can seed a backward pass.
func MSE[B tensor.Backend](predictions, targets *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if !predictions.Shape().Equal(targets.Shape()) {
		panic(fmt.Sprintf("mse: shape mismatch %v vs %v", predictions.Shape(), targets.Shape()))
	}
	diff := predictions.Sub(targets)
	squared := diff.Mul(diff)
	return squared.Reshape(1, squared.NumElements()).MeanDim(1, false)
}

// PoseLoss is the weighted pose regression loss
//
//	loss = w * MSE(pred[..., :3], target[..., :3]) + MSE(pred[..., 3:], target[..., 3:])
//
// where the first three components are rotation and the last three
// translation. The final op is the Add, so the loss is the last entry on
// the tape.
type PoseLoss[B tensor.Backend] struct {
	rotationWeight float32
	backend        B
}

// NewPoseLoss creates the loss with the given rotation weight.
func NewPoseLoss[B tensor.Backend](rotationWeight float32, backend B) *PoseLoss[B] {
	return &PoseLoss[B]{rotationWeight: rotationWeight, backend: backend}
}

// Forward computes the loss for predictions and targets of shape [..., 6].
func (l *PoseLoss[B]) Forward(predictions, targets *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := predictions.Shape()
	if len(shape) == 0 || shape[len(shape)-1] != 6 {
		panic(fmt.Sprintf("pose_loss: expected last dimension 6, got shape %v", shape))
	}
	if !shape.Equal(targets.Shape()) {
		panic(fmt.Sprintf("pose_loss: shape mismatch %v vs %v", shape, targets.Shape()))
	}

	last := len(shape) - 1
	pred := predictions.Chunk(2, last)
	rotTarget, transTarget := SplitLast(targets, 3)

	rotation := MSE(pred[0], rotTarget)
	translation := MSE(pred[1], transTarget)

	weight := tensor.Full[float32](tensor.Shape{1}, l.rotationWeight, l.backend)
	return rotation.Mul(weight).Add(translation)
}

// Components returns the unweighted rotation and translation MSE without
// touching the tape. Used for reporting.
func (l *PoseLoss[B]) Components(predictions, targets *tensor.Tensor[float32, B]) (rotation, translation float32) {
	pr, pt := SplitLast(predictions, 3)
	tr, tt := SplitLast(targets, 3)
	return meanSquared(pr.Data(), tr.Data()), meanSquared(pt.Data(), tt.Data())
}

// RotationWeight returns the weight applied to the rotation term.
func (l *PoseLoss[B]) RotationWeight() float32 {
	return l.rotationWeight
}

// SplitLast copies x into two constants holding the first k and the
// remaining entries of the last dimension. Nothing is recorded.
func SplitLast[B tensor.Backend](x *tensor.Tensor[float32, B], k int) (head, tail *tensor.Tensor[float32, B]) {
	shape := x.Shape()
	width := shape[len(shape)-1]
	if k <= 0 || k >= width {
		panic(fmt.Sprintf("split_last: k=%d out of range for width %d", k, width))
	}
	rows := x.NumElements() / width
	src := x.Data()
	headData := make([]float32, 0, rows*k)
	tailData := make([]float32, 0, rows*(width-k))
	for r := 0; r < rows; r++ {
		row := src[r*width : (r+1)*width]
		headData = append(headData, row[:k]...)
		tailData = append(tailData, row[k:]...)
	}

	headShape := append(tensor.Shape{}, shape...)
	headShape[len(shape)-1] = k
	tailShape := append(tensor.Shape{}, shape...)
	tailShape[len(shape)-1] = width - k

	var err error
	if head, err = tensor.FromSlice(headData, headShape, x.Backend()); err != nil {
		panic(err)
	}
	if tail, err = tensor.FromSlice(tailData, tailShape, x.Backend()); err != nil {
		panic(err)
	}
	return head, tail
}

func meanSquared(a, b []float32) float32 {
	var sum float64
	for i := range a {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return float32(sum / float64(len(a)))
}
