// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package deepvo

import (
	"github.com/born-ml/born/tensor"
	"github.com/born-ml/deepvo/internal/checkpoint"
	"github.com/born-ml/deepvo/internal/deepvo"
	"github.com/born-ml/deepvo/internal/optim"
	"github.com/born-ml/deepvo/internal/torchimport"
)

// Model is the DeepVO network.
type Model[B tensor.Backend] = deepvo.Model[B]

// Config holds the hyperparameters that shape a model.
type Config = deepvo.Config

// Default hyperparameters of the reference KITTI setup.
const (
	DefaultImageHeight    = deepvo.DefaultImageHeight
	DefaultImageWidth     = deepvo.DefaultImageWidth
	DefaultRNNHiddenSize  = deepvo.DefaultRNNHiddenSize
	DefaultRotationWeight = deepvo.DefaultRotationWeight
	PoseDim               = deepvo.PoseDim
)

// Errors returned by model construction and training.
var (
	ErrInvalidConfig      = deepvo.ErrInvalidConfig
	ErrInvalidFeatureSize = deepvo.ErrInvalidFeatureSize
	ErrTargetShape        = deepvo.ErrTargetShape
	ErrNoTape             = deepvo.ErrNoTape
)

// DefaultConfig returns 184x608 frames, batch norm, 1000 hidden units and
// rotation weight 100.
func DefaultConfig() Config {
	return deepvo.DefaultConfig()
}

// New builds and initializes a model.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	model, err := deepvo.New(deepvo.DefaultConfig(), backend)
//	fmt.Println(model.FeatureSize()) // 30720
func New[B tensor.Backend](cfg Config, backend B) (*Model[B], error) {
	return deepvo.New(cfg, backend)
}

// EncoderOutputShape returns the encoder feature map shape for an h x w
// input without building a model.
func EncoderOutputShape(h, w int) (c, oh, ow int) {
	return deepvo.EncoderOutputShape(h, w)
}

// StackFrames pairs consecutive frames along the channel axis:
// [B, T, C, H, W] -> [B*(T-1), 2C, H, W].
func StackFrames[B tensor.Backend](x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return deepvo.StackFrames(x)
}

// Optimizers

// Optimizer is born's optimizer interface.
type Optimizer = optim.Optimizer

// OptimizerConfig selects adagrad, adam or sgd and its hyperparameters.
type OptimizerConfig = optim.Config

// DefaultOptimizerConfig returns Adagrad with lr 5e-4.
func DefaultOptimizerConfig() OptimizerConfig {
	return optim.DefaultConfig()
}

// NewOptimizer builds the optimizer of cfg over model's weight and bias
// groups. Weight decay applies to the weight group only.
func NewOptimizer[B tensor.Backend](cfg OptimizerConfig, model *Model[B]) (Optimizer, error) {
	return optim.New[B](cfg, model)
}

// Checkpoints

// CheckpointHeader is the JSON header of a .born checkpoint.
type CheckpointHeader = checkpoint.Header

// Save writes model to path in .born format.
func Save[B tensor.Backend](path string, model *Model[B], metadata map[string]string) error {
	return checkpoint.Save(path, model, checkpoint.Meta{Metadata: metadata})
}

// Load reads the .born checkpoint at path into model.
func Load[B tensor.Backend](path string, model *Model[B]) (CheckpointHeader, error) {
	return checkpoint.Load(path, model)
}

// ImportTorch copies a PyTorch DeepVO state dict (torch.save output) into
// model and returns the number of tensors loaded.
func ImportTorch[B tensor.Backend](path string, model *Model[B]) (int, error) {
	report, err := torchimport.Import(path, model)
	return report.Loaded, err
}
