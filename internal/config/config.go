// Package config loads the YAML configuration of a DeepVO training run.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/born-ml/deepvo/internal/deepvo"
	"github.com/born-ml/deepvo/internal/optim"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the root of a configuration file.
type Config struct {
	Model     deepvo.Config `yaml:"model"`
	Optimizer optim.Config  `yaml:"optimizer"`
	Data      Data          `yaml:"data"`
	Train     Train         `yaml:"train"`
}

// Data selects the sequences and how they are cut into batches.
type Data struct {
	// Root holds poses/<id>.txt and sequences/<id>/image_2.
	Root           string   `yaml:"root"`
	Sequences      []string `yaml:"sequences"`
	ValidSequences []string `yaml:"valid_sequences"`

	SeqLen    int `yaml:"seq_len"`
	Stride    int `yaml:"stride"`
	BatchSize int `yaml:"batch_size"`

	// ValidRatio splits the training windows when ValidSequences is empty.
	ValidRatio float32 `yaml:"valid_ratio"`

	// Relative expresses each window's poses in the frame of its first pose.
	Relative bool `yaml:"relative"`

	// Synthetic replaces the dataset with generated sequences.
	Synthetic int `yaml:"synthetic"`
}

// Train controls the epoch loop and its outputs.
type Train struct {
	Epochs        int    `yaml:"epochs"`
	CheckpointDir string `yaml:"checkpoint_dir"`
	Journal       string `yaml:"journal"`
	Seed          int64  `yaml:"seed"`
}

// Default returns the reference training setup on KITTI sequences
// 00, 01, 02, 05, 08, 09 with 04, 06, 07, 10 held out.
func Default() Config {
	return Config{
		Model:     deepvo.DefaultConfig(),
		Optimizer: optim.DefaultConfig(),
		Data: Data{
			Root:           "KITTI",
			Sequences:      []string{"00", "01", "02", "05", "08", "09"},
			ValidSequences: []string{"04", "06", "07", "10"},
			SeqLen:         5,
			Stride:         5,
			BatchSize:      8,
			ValidRatio:     0.1,
		},
		Train: Train{
			Epochs:        250,
			CheckpointDir: "checkpoints",
			Seed:          1,
		},
	}
}

// Load reads path on top of Default. Unknown keys are rejected.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Marshal encodes cfg as YAML.
func (c Config) Marshal() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	return string(out), nil
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Model.Validate(); err != nil {
		return fmt.Errorf("%w: model: %w", ErrInvalidConfig, err)
	}
	if c.Model.ImageHeight <= 0 || c.Model.ImageWidth <= 0 {
		return invalid("model.image_height/image_width", "must be positive")
	}
	switch strings.ToLower(c.Optimizer.Name) {
	case "", optim.NameAdagrad, optim.NameAdam, optim.NameSGD:
	default:
		return invalid("optimizer.name", fmt.Sprintf("unknown optimizer %q", c.Optimizer.Name))
	}
	if c.Optimizer.LR < 0 {
		return invalid("optimizer.lr", "must not be negative")
	}
	if c.Optimizer.WeightDecay < 0 {
		return invalid("optimizer.weight_decay", "must not be negative")
	}
	if c.Data.SeqLen < 2 {
		return invalid("data.seq_len", "must be at least 2")
	}
	if c.Data.Stride < 1 {
		return invalid("data.stride", "must be positive")
	}
	if c.Data.BatchSize < 1 {
		return invalid("data.batch_size", "must be positive")
	}
	if c.Data.ValidRatio < 0 || c.Data.ValidRatio >= 1 {
		return invalid("data.valid_ratio", "must be in [0, 1)")
	}
	if c.Data.Synthetic < 0 {
		return invalid("data.synthetic", "must not be negative")
	}
	if c.Data.Synthetic == 0 && len(c.Data.Sequences) == 0 {
		return invalid("data.sequences", "at least one sequence is required")
	}
	if c.Train.Epochs < 1 {
		return invalid("train.epochs", "must be positive")
	}
	return nil
}

func invalid(field, reason string) error {
	return fmt.Errorf("%w: %s %s", ErrInvalidConfig, field, reason)
}
