package train

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/deepvo/internal/config"
	"github.com/born-ml/deepvo/internal/dataset"
)

// SyntheticFrames is the length of each generated sequence, in windows.
const SyntheticFrames = 8

// LoadWindows builds the training and validation windows described by
// cfg.Data. Held-out sequences form the validation set when listed;
// otherwise ValidRatio of the training windows is split off.
func LoadWindows(cfg config.Config) (train, valid []dataset.Window, err error) {
	d := cfg.Data
	h, w := cfg.Model.ImageHeight, cfg.Model.ImageWidth
	//nolint:gosec // G404: shuffling, not cryptography
	rng := rand.New(rand.NewSource(cfg.Train.Seed))

	if d.Synthetic > 0 {
		seqs := dataset.Synthetic(d.Synthetic, SyntheticFrames*d.SeqLen, h, w, cfg.Train.Seed)
		all, err := dataset.Windows(seqs, d.SeqLen, d.Stride)
		if err != nil {
			return nil, nil, err
		}
		train, valid = dataset.Split(all, d.ValidRatio, rng)
		return train, valid, nil
	}

	norm := dataset.DefaultNormalization()
	seqs, err := dataset.LoadSequences(d.Root, d.Sequences, h, w, norm)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load training sequences: %w", err)
	}
	all, err := dataset.Windows(seqs, d.SeqLen, d.Stride)
	if err != nil {
		return nil, nil, err
	}
	if len(d.ValidSequences) == 0 {
		train, valid = dataset.Split(all, d.ValidRatio, rng)
		return train, valid, nil
	}

	validSeqs, err := dataset.LoadSequences(d.Root, d.ValidSequences, h, w, norm)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load validation sequences: %w", err)
	}
	valid, err = dataset.Windows(validSeqs, d.SeqLen, d.Stride)
	if err != nil {
		return nil, nil, err
	}
	return all, valid, nil
}
