package dataset

import (
	"fmt"
	"math/rand"
)

// Synthetic creates n deterministic sequences of frames frames each. Every
// sequence slides a random texture sideways at a constant speed, and the
// ground truth translation follows that speed, so the motion is learnable
// from the pixels. Angles drift slowly.
func Synthetic(n, frames, height, width int, seed int64) []*Sequence {
	//nolint:gosec // G404: reproducible test data, not cryptography
	rng := rand.New(rand.NewSource(seed))
	seqs := make([]*Sequence, n)

	for s := range seqs {
		speed := 1 + rng.Intn(3)
		yawRate := float32(rng.NormFloat64() * 0.01)
		texWidth := width + speed*frames
		texture := make([]float32, 3*height*texWidth)
		for i := range texture {
			texture[i] = rng.Float32() - 0.5
		}

		data := make([][]float32, frames)
		poses := make([]Pose, frames)
		for f := 0; f < frames; f++ {
			shift := f * speed
			frame := make([]float32, 3*height*width)
			for c := 0; c < 3; c++ {
				for y := 0; y < height; y++ {
					src := (c*height+y)*texWidth + shift
					copy(frame[(c*height+y)*width:(c*height+y+1)*width], texture[src:src+width])
				}
			}
			data[f] = frame
			poses[f] = Pose{0, 0, yawRate * float32(f), 0.1 * float32(shift), 0, 0}
		}

		seq, err := NewSequence(fmt.Sprintf("synthetic-%02d", s), data, poses, height, width)
		if err != nil {
			panic(err)
		}
		seqs[s] = seq
	}
	return seqs
}
