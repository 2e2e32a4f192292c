package dataset

import (
	"fmt"
	"math/rand"
)

// Window is a run of Length consecutive frames starting at Start.
type Window struct {
	Seq    *Sequence
	Start  int
	Length int
}

// Poses returns the ground truth of the window.
func (w Window) Poses() []Pose {
	return w.Seq.Poses[w.Start : w.Start+w.Length]
}

// Windows cuts every sequence into windows of length frames, starting
// every stride frames. Trailing frames that do not fill a window are
// dropped.
func Windows(seqs []*Sequence, length, stride int) ([]Window, error) {
	if length < 2 {
		return nil, fmt.Errorf("window length must be at least 2, got %d", length)
	}
	if stride < 1 {
		return nil, fmt.Errorf("window stride must be positive, got %d", stride)
	}
	var windows []Window
	for _, seq := range seqs {
		for start := 0; start+length <= seq.Len(); start += stride {
			windows = append(windows, Window{Seq: seq, Start: start, Length: length})
		}
	}
	return windows, nil
}

// Split shuffles windows with rng and moves validRatio of them to the
// validation set. A nil rng keeps the order (tail goes to validation).
func Split(windows []Window, validRatio float32, rng *rand.Rand) (train, valid []Window) {
	shuffled := make([]Window, len(windows))
	copy(shuffled, windows)
	if rng != nil {
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
	}
	splitIdx := int(float32(len(shuffled)) * (1 - validRatio))
	return shuffled[:splitIdx], shuffled[splitIdx:]
}
