package dataset

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/born/tensor"
	"github.com/born-ml/deepvo/internal/parallel"
)

// Batch is one training batch.
type Batch[B tensor.Backend] struct {
	X    *tensor.Tensor[float32, B] // [B, T, 3, H, W]
	Y    *tensor.Tensor[float32, B] // [B, T, 6]
	Size int
}

// Batches groups windows into batches of at most batchSize. When rng is
// set the windows are shuffled first. The last batch may be smaller.
func Batches(windows []Window, batchSize int, rng *rand.Rand) [][]Window {
	if batchSize < 1 {
		batchSize = 1
	}
	order := make([]Window, len(windows))
	copy(order, windows)
	if rng != nil {
		rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}

	batches := make([][]Window, 0, (len(order)+batchSize-1)/batchSize)
	for i := 0; i < len(order); i += batchSize {
		end := min(i+batchSize, len(order))
		batches = append(batches, order[i:end])
	}
	return batches
}

// Materialize loads the frames of windows into a batch. All windows must
// share length and resolution. With relative set, each window's poses are
// expressed in the frame of its first pose.
func Materialize[B tensor.Backend](windows []Window, relative bool, backend B) (*Batch[B], error) {
	if len(windows) == 0 {
		return nil, fmt.Errorf("empty batch")
	}
	first := windows[0]
	steps, h, w := first.Length, first.Seq.Height, first.Seq.Width
	frameSize := 3 * h * w

	xRaw, err := tensor.NewRaw(tensor.Shape{len(windows), steps, 3, h, w}, tensor.Float32, backend.Device())
	if err != nil {
		return nil, fmt.Errorf("failed to create clip tensor: %w", err)
	}
	yRaw, err := tensor.NewRaw(tensor.Shape{len(windows), steps, 6}, tensor.Float32, backend.Device())
	if err != nil {
		return nil, fmt.Errorf("failed to create pose tensor: %w", err)
	}
	xData, yData := xRaw.AsFloat32(), yRaw.AsFloat32()

	for b, win := range windows {
		if win.Length != steps || win.Seq.Height != h || win.Seq.Width != w {
			return nil, fmt.Errorf("window %d of sequence %s does not match batch shape", b, win.Seq.ID)
		}
	}

	// Frames decode independently.
	err = parallel.ForErr(len(windows)*steps, func(k int) error {
		b, t := k/steps, k%steps
		frame, err := windows[b].Seq.Frame(windows[b].Start + t)
		if err != nil {
			return err
		}
		copy(xData[k*frameSize:(k+1)*frameSize], frame)
		return nil
	}, parallel.DefaultConfig())
	if err != nil {
		return nil, err
	}

	for b, win := range windows {
		poses := win.Poses()
		if relative {
			poses = RelativeTo(poses[0], poses)
		}
		for t, p := range poses {
			copy(yData[(b*steps+t)*6:], p[:])
		}
	}

	return &Batch[B]{
		X:    tensor.New[float32, B](xRaw, backend),
		Y:    tensor.New[float32, B](yRaw, backend),
		Size: len(windows),
	}, nil
}
