package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// ErrNoFrames is returned when a sequence directory holds no images.
var ErrNoFrames = errors.New("no frames found")

// Sequence is one recorded drive: frames with a ground truth pose each.
type Sequence struct {
	ID     string
	Poses  []Pose
	Height int
	Width  int

	frame func(i int) ([]float32, error)
}

// Len returns the number of frames.
func (s *Sequence) Len() int { return len(s.Poses) }

// Frame returns frame i as normalized [3, Height, Width] data.
func (s *Sequence) Frame(i int) ([]float32, error) {
	if i < 0 || i >= s.Len() {
		return nil, fmt.Errorf("sequence %s: frame %d out of range [0, %d)", s.ID, i, s.Len())
	}
	return s.frame(i)
}

// NewSequence builds an in-memory sequence. Every frame must hold
// 3*height*width values.
func NewSequence(id string, frames [][]float32, poses []Pose, height, width int) (*Sequence, error) {
	if len(frames) != len(poses) {
		return nil, fmt.Errorf("sequence %s: %d frames but %d poses", id, len(frames), len(poses))
	}
	for i, f := range frames {
		if len(f) != 3*height*width {
			return nil, fmt.Errorf("sequence %s: frame %d has %d values, want %d", id, i, len(f), 3*height*width)
		}
	}
	return &Sequence{
		ID:     id,
		Poses:  poses,
		Height: height,
		Width:  width,
		frame:  func(i int) ([]float32, error) { return frames[i], nil },
	}, nil
}

// LoadSequence opens KITTI sequence id under root:
//
//	root/poses/<id>.txt
//	root/sequences/<id>/image_2/*.png   (or image_02)
//
// Frames are decoded on demand.
func LoadSequence(root, id string, height, width int, norm Normalization) (*Sequence, error) {
	posePath := filepath.Join(root, "poses", id+".txt")
	//nolint:gosec // G304: dataset root comes from configuration
	f, err := os.Open(posePath)
	if err != nil {
		return nil, fmt.Errorf("sequence %s: %w", id, err)
	}
	poses, err := ReadPoses(f)
	_ = f.Close()
	if err != nil {
		return nil, fmt.Errorf("sequence %s: %s: %w", id, posePath, err)
	}

	paths, err := framePaths(filepath.Join(root, "sequences", id))
	if err != nil {
		return nil, fmt.Errorf("sequence %s: %w", id, err)
	}
	if len(paths) != len(poses) {
		return nil, fmt.Errorf("sequence %s: %d frames but %d poses", id, len(paths), len(poses))
	}

	log.Debug().Str("sequence", id).Int("frames", len(paths)).Msg("loaded sequence index")
	return &Sequence{
		ID:     id,
		Poses:  poses,
		Height: height,
		Width:  width,
		frame: func(i int) ([]float32, error) {
			return LoadFrame(paths[i], height, width, norm)
		},
	}, nil
}

// LoadSequences loads every id under root.
func LoadSequences(root string, ids []string, height, width int, norm Normalization) ([]*Sequence, error) {
	seqs := make([]*Sequence, 0, len(ids))
	for _, id := range ids {
		seq, err := LoadSequence(root, id, height, width, norm)
		if err != nil {
			return nil, err
		}
		seqs = append(seqs, seq)
	}
	return seqs, nil
}

func framePaths(dir string) ([]string, error) {
	for _, sub := range []string{"image_2", "image_02"} {
		entries, err := os.ReadDir(filepath.Join(dir, sub))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var paths []string
		for _, e := range entries {
			ext := strings.ToLower(filepath.Ext(e.Name()))
			if !e.IsDir() && (ext == ".png" || ext == ".jpg" || ext == ".jpeg") {
				paths = append(paths, filepath.Join(dir, sub, e.Name()))
			}
		}
		if len(paths) == 0 {
			break
		}
		sort.Strings(paths)
		return paths, nil
	}
	return nil, fmt.Errorf("%w in %s", ErrNoFrames, dir)
}
