package deepvo

import (
	"errors"
	"fmt"
)

// Errors returned by model construction and training.
var (
	ErrInvalidConfig      = errors.New("invalid model config")
	ErrInvalidFeatureSize = errors.New("encoder output has no spatial extent")
	ErrTargetShape        = errors.New("target shape does not match input")
	ErrNoTape             = errors.New("backend does not record gradients (use autodiff.New)")
)

// Default hyperparameters of the reference KITTI setup.
const (
	DefaultImageHeight    = 184
	DefaultImageWidth     = 608
	DefaultRNNHiddenSize  = 1000
	DefaultRotationWeight = 100
	RNNLayers             = 2
	PoseDim               = 6
)

// Config holds everything that shapes a DeepVO model.
type Config struct {
	ImageHeight       int     `yaml:"image_height"`
	ImageWidth        int     `yaml:"image_width"`
	BatchNorm         bool    `yaml:"batch_norm"`
	RNNHiddenSize     int     `yaml:"rnn_hidden_size"`
	RNNDropoutBetween float32 `yaml:"rnn_dropout_between"`
	RotationWeight    float32 `yaml:"rotation_weight"`
}

// DefaultConfig returns the reference configuration: 184x608 frames,
// batch norm on, 1000 hidden units, rotation weight 100.
func DefaultConfig() Config {
	return Config{
		ImageHeight:    DefaultImageHeight,
		ImageWidth:     DefaultImageWidth,
		BatchNorm:      true,
		RNNHiddenSize:  DefaultRNNHiddenSize,
		RotationWeight: DefaultRotationWeight,
	}
}

// Validate checks the non-geometric fields. Image sizes are checked by New
// through the encoder shape arithmetic.
func (c Config) Validate() error {
	if c.RNNHiddenSize <= 0 {
		return fmt.Errorf("%w: rnn_hidden_size must be positive, got %d", ErrInvalidConfig, c.RNNHiddenSize)
	}
	if c.RNNDropoutBetween < 0 || c.RNNDropoutBetween >= 1 {
		return fmt.Errorf("%w: rnn_dropout_between must be in [0, 1), got %v", ErrInvalidConfig, c.RNNDropoutBetween)
	}
	if c.RotationWeight < 0 {
		return fmt.Errorf("%w: rotation_weight must not be negative, got %v", ErrInvalidConfig, c.RotationWeight)
	}
	return nil
}
