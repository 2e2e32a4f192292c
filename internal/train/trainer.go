// Package train runs the DeepVO epoch loop: shuffled mini-batches through
// Model.Step, a validation pass per epoch, checkpoints and an optional
// SQLite journal.
package train

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/born-ml/born/tensor"
	"github.com/born-ml/deepvo/internal/checkpoint"
	"github.com/born-ml/deepvo/internal/config"
	"github.com/born-ml/deepvo/internal/dataset"
	"github.com/born-ml/deepvo/internal/deepvo"
	"github.com/born-ml/deepvo/internal/journal"
	"github.com/born-ml/deepvo/internal/optim"
	"github.com/rs/zerolog"
)

// Checkpoint file names inside Train.CheckpointDir.
const (
	LastCheckpoint = "last.born"
	BestCheckpoint = "best.born"
)

// Errors returned by Fit.
var (
	ErrDiverged  = errors.New("training diverged")
	ErrNoWindows = errors.New("no training windows")
)

// Options are the optional collaborators of a Trainer.
type Options struct {
	// Journal records the run when set.
	Journal *journal.Journal
	// RunName labels the journal run and checkpoint metadata.
	RunName string
	Logger  zerolog.Logger
}

// EpochStats summarizes one epoch.
type EpochStats struct {
	Epoch     int
	TrainLoss float64
	ValidLoss float64 // NaN without validation windows
	Steps     int
	Duration  time.Duration
}

// HasValid reports whether a validation loss was computed.
func (s EpochStats) HasValid() bool { return !math.IsNaN(s.ValidLoss) }

// score is the loss used to pick the best checkpoint.
func (s EpochStats) score() float64 {
	if s.HasValid() {
		return s.ValidLoss
	}
	return s.TrainLoss
}

// History is the outcome of Fit.
type History struct {
	Epochs    []EpochStats
	BestEpoch int
	BestLoss  float64
}

// Trainer owns one training run.
type Trainer[B tensor.Backend] struct {
	cfg          config.Config
	model        *deepvo.Model[B]
	optimizer    optim.Optimizer
	train, valid []dataset.Window
	opts         Options
	rng          *rand.Rand
	step         int64
}

// New creates a trainer over the given windows.
func New[B tensor.Backend](
	cfg config.Config,
	model *deepvo.Model[B],
	optimizer optim.Optimizer,
	train, valid []dataset.Window,
	opts Options,
) *Trainer[B] {
	return &Trainer[B]{
		cfg:       cfg,
		model:     model,
		optimizer: optimizer,
		train:     train,
		valid:     valid,
		opts:      opts,
		//nolint:gosec // G404: shuffling, not cryptography
		rng: rand.New(rand.NewSource(cfg.Train.Seed)),
	}
}

// Fit runs cfg.Train.Epochs epochs. It stops early with ErrDiverged on a
// non-finite loss, or with the context error on cancellation; the
// checkpoints on disk are then those of the last finished epoch.
func (t *Trainer[B]) Fit(ctx context.Context) (hist History, err error) {
	if len(t.train) == 0 {
		return hist, ErrNoWindows
	}
	log := t.opts.Logger

	cfgYAML, err := t.cfg.Marshal()
	if err != nil {
		return hist, err
	}
	if dir := t.cfg.Train.CheckpointDir; dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return hist, fmt.Errorf("failed to create checkpoint dir: %w", err)
		}
	}

	var run *journal.Run
	if t.opts.Journal != nil {
		run, err = t.opts.Journal.StartRun(t.opts.RunName, cfgYAML)
		if err != nil {
			return hist, err
		}
		defer func() {
			if ferr := t.opts.Journal.FinishRun(run, runStatus(err)); ferr != nil && err == nil {
				err = ferr
			}
		}()
	}

	log.Info().
		Int("train_windows", len(t.train)).
		Int("valid_windows", len(t.valid)).
		Int("parameters", t.model.ParameterCount()).
		Int("feature_size", t.model.FeatureSize()).
		Msg("training started")

	hist.BestLoss = math.Inf(1)
	for epoch := 1; epoch <= t.cfg.Train.Epochs; epoch++ {
		start := time.Now()
		stats := EpochStats{Epoch: epoch, ValidLoss: math.NaN()}

		stats.TrainLoss, stats.Steps, err = t.trainEpoch(ctx)
		if err != nil {
			return hist, fmt.Errorf("epoch %d: %w", epoch, err)
		}
		if len(t.valid) > 0 {
			stats.ValidLoss, err = t.validate(ctx)
			if err != nil {
				return hist, fmt.Errorf("epoch %d: %w", epoch, err)
			}
			if !finite(stats.ValidLoss) {
				return hist, fmt.Errorf("epoch %d: %w: validation loss %v", epoch, ErrDiverged, stats.ValidLoss)
			}
		}
		stats.Duration = time.Since(start)
		hist.Epochs = append(hist.Epochs, stats)

		event := log.Info().
			Int("epoch", epoch).
			Float64("train_loss", stats.TrainLoss).
			Dur("elapsed", stats.Duration)
		if stats.HasValid() {
			event = event.Float64("valid_loss", stats.ValidLoss)
		}
		event.Msg("epoch finished")

		improved := stats.score() < hist.BestLoss
		if improved {
			hist.BestEpoch, hist.BestLoss = epoch, stats.score()
		}
		saved, err := t.saveCheckpoints(stats, cfgYAML, improved)
		if err != nil {
			return hist, err
		}
		if run != nil {
			if err := t.opts.Journal.RecordEpoch(run, journalEpoch(stats, saved)); err != nil {
				return hist, err
			}
		}
	}

	log.Info().Int("best_epoch", hist.BestEpoch).Float64("best_loss", hist.BestLoss).Msg("training finished")
	return hist, nil
}

func (t *Trainer[B]) trainEpoch(ctx context.Context) (float64, int, error) {
	t.model.Train(true)

	var total float64
	var samples, steps int
	for _, windows := range dataset.Batches(t.train, t.cfg.Data.BatchSize, t.rng) {
		if err := ctx.Err(); err != nil {
			return 0, steps, err
		}
		batch, err := dataset.Materialize(windows, t.cfg.Data.Relative, t.model.Backend())
		if err != nil {
			return 0, steps, err
		}
		loss, err := t.model.Step(batch.X, batch.Y, t.optimizer)
		if err != nil {
			return 0, steps, err
		}
		t.step++
		steps++
		if !finite(float64(loss)) {
			return 0, steps, fmt.Errorf("%w: loss %v at step %d", ErrDiverged, loss, t.step)
		}
		t.opts.Logger.Debug().Int64("step", t.step).Float32("loss", loss).Msg("step")

		total += float64(loss) * float64(batch.Size)
		samples += batch.Size
	}
	return total / float64(samples), steps, nil
}

func (t *Trainer[B]) validate(ctx context.Context) (float64, error) {
	t.model.Train(false)
	defer t.model.Train(true)

	var total float64
	var samples int
	for _, windows := range dataset.Batches(t.valid, t.cfg.Data.BatchSize, nil) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		batch, err := dataset.Materialize(windows, t.cfg.Data.Relative, t.model.Backend())
		if err != nil {
			return 0, err
		}
		loss, err := t.model.Evaluate(batch.X, batch.Y)
		if err != nil {
			return 0, err
		}
		total += float64(loss) * float64(batch.Size)
		samples += batch.Size
	}
	return total / float64(samples), nil
}

// saveCheckpoints writes last.born, and best.born when improved. It
// returns the path of the last checkpoint written.
func (t *Trainer[B]) saveCheckpoints(stats EpochStats, cfgYAML string, improved bool) (string, error) {
	dir := t.cfg.Train.CheckpointDir
	if dir == "" {
		return "", nil
	}
	meta := checkpoint.Meta{
		Metadata: map[string]string{
			"config": cfgYAML,
			"run":    t.opts.RunName,
		},
		Training: &checkpoint.TrainingMeta{
			IsCheckpoint:  true,
			Epoch:         stats.Epoch,
			Step:          t.step,
			Loss:          stats.TrainLoss,
			OptimizerType: t.cfg.Optimizer.Name,
		},
	}
	if stats.HasValid() {
		meta.Training.ValidLoss = stats.ValidLoss
	}

	last := filepath.Join(dir, LastCheckpoint)
	if err := checkpoint.Save(last, t.model, meta); err != nil {
		return "", err
	}
	if !improved {
		return last, nil
	}
	best := filepath.Join(dir, BestCheckpoint)
	if err := checkpoint.Save(best, t.model, meta); err != nil {
		return "", err
	}
	t.opts.Logger.Info().Int("epoch", stats.Epoch).Str("path", best).Msg("saved best checkpoint")
	return best, nil
}

func journalEpoch(stats EpochStats, checkpointPath string) journal.Epoch {
	e := journal.Epoch{
		Number:     stats.Epoch,
		TrainLoss:  stats.TrainLoss,
		Steps:      stats.Steps,
		Duration:   stats.Duration,
		Checkpoint: checkpointPath,
	}
	if stats.HasValid() {
		v := stats.ValidLoss
		e.ValidLoss = &v
	}
	return e
}

func runStatus(err error) string {
	switch {
	case err == nil:
		return journal.StatusFinished
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return journal.StatusCancelled
	case errors.Is(err, ErrDiverged):
		return journal.StatusDiverged
	default:
		return journal.StatusFailed
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
