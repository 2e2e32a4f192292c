package deepvo

import (
	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/tensor"
	"github.com/born-ml/deepvo/internal/nn"
)

// taper is implemented by backends that record operations for backprop.
type taper interface {
	Tape() *autodiff.GradientTape
}

// withoutTape runs fn with recording paused, restoring the previous state.
func withoutTape[B tensor.Backend](backend B, fn func()) {
	t, ok := any(backend).(taper)
	if !ok || !t.Tape().IsRecording() {
		fn()
		return
	}
	t.Tape().StopRecording()
	defer t.Tape().StartRecording()
	fn()
}

// Probe runs a single zero frame pair of size h x w through the encoder
// and returns the flattened feature count. Batch norm layers run in eval
// mode for the probe and are restored afterwards; nothing is recorded.
func (e *Encoder[B]) Probe(h, w int) int {
	type switchable interface {
		Training() bool
		Train(bool)
	}
	restore := make(map[switchable]bool)
	nn.Walk[B](e, func(_ string, m nn.Module[B]) {
		if s, ok := m.(switchable); ok {
			restore[s] = s.Training()
			s.Train(false)
		}
	})
	defer func() {
		for s, training := range restore {
			s.Train(training)
		}
	}()

	var size int
	withoutTape(e.backend, func() {
		out := e.Forward(tensor.Zeros[float32](tensor.Shape{1, 6, h, w}, e.backend))
		size = out.NumElements()
	})
	return size
}
