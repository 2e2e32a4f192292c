package main

import (
	"context"
	"fmt"
	"io"

	"github.com/born-ml/born/tensor"
	"github.com/born-ml/deepvo/internal/checkpoint"
	"github.com/born-ml/deepvo/internal/config"
	"github.com/born-ml/deepvo/internal/dataset"
	"github.com/born-ml/deepvo/internal/deepvo"
	"github.com/born-ml/deepvo/internal/journal"
	"github.com/born-ml/deepvo/internal/optim"
	"github.com/born-ml/deepvo/internal/torchimport"
	"github.com/born-ml/deepvo/internal/train"
	"github.com/rs/zerolog/log"
)

// runner executes commands on one device.
type runner interface {
	train(ctx context.Context, cfg config.Config, resume, runName string) error
	evaluate(w io.Writer, cfg config.Config, checkpointPath string) error
	predict(w io.Writer, cfg config.Config, checkpointPath, sequence string) error
	probe(w io.Writer, h, wid int) error
	convert(cfg config.Config, input, output string) error
	close()
}

// session is a runner bound to backend B.
type session[B tensor.Backend] struct {
	backend B
	release func()
}

var _ runner = (*session[cpuBackend])(nil)

func (s *session[B]) close() {
	if s.release != nil {
		s.release()
	}
}

func (s *session[B]) newModel(cfg config.Config) (*deepvo.Model[B], error) {
	model, err := deepvo.New(cfg.Model, s.backend)
	if err != nil {
		return nil, err
	}
	log.Debug().
		Int("parameters", model.ParameterCount()).
		Int("feature_size", model.FeatureSize()).
		Str("device", s.backend.Name()).
		Msg("model created")
	return model, nil
}

func (s *session[B]) loadModel(cfg config.Config, checkpointPath string) (*deepvo.Model[B], error) {
	model, err := s.newModel(cfg)
	if err != nil {
		return nil, err
	}
	header, err := checkpoint.Load(checkpointPath, model)
	if err != nil {
		return nil, err
	}
	event := log.Info().Str("checkpoint", checkpointPath)
	if header.Training != nil {
		event = event.Int("epoch", header.Training.Epoch).Float64("loss", header.Training.Loss)
	}
	event.Msg("checkpoint loaded")
	return model, nil
}

func (s *session[B]) train(ctx context.Context, cfg config.Config, resume, runName string) error {
	trainW, validW, err := train.LoadWindows(cfg)
	if err != nil {
		return err
	}

	var model *deepvo.Model[B]
	if resume != "" {
		model, err = s.loadModel(cfg, resume)
	} else {
		model, err = s.newModel(cfg)
	}
	if err != nil {
		return err
	}

	optimizer, err := optim.New[B](cfg.Optimizer, model)
	if err != nil {
		return err
	}

	opts := train.Options{RunName: runName, Logger: log.Logger}
	if cfg.Train.Journal != "" {
		j, err := journal.Open(cfg.Train.Journal)
		if err != nil {
			return err
		}
		defer func() { _ = j.Close() }()
		opts.Journal = j
	}

	_, err = train.New(cfg, model, optimizer, trainW, validW, opts).Fit(ctx)
	return err
}

func (s *session[B]) evaluate(w io.Writer, cfg config.Config, checkpointPath string) error {
	trainW, validW, err := train.LoadWindows(cfg)
	if err != nil {
		return err
	}
	if len(validW) == 0 {
		log.Warn().Msg("no validation windows, evaluating on the training windows")
		validW = trainW
	}
	model, err := s.loadModel(cfg, checkpointPath)
	if err != nil {
		return err
	}
	model.Train(false)

	var total, rotation, translation float64
	var samples int
	for _, windows := range dataset.Batches(validW, cfg.Data.BatchSize, nil) {
		batch, err := dataset.Materialize(windows, cfg.Data.Relative, s.backend)
		if err != nil {
			return err
		}
		loss, err := model.Evaluate(batch.X, batch.Y)
		if err != nil {
			return err
		}
		rot, trans, err := model.EvaluateComponents(batch.X, batch.Y)
		if err != nil {
			return err
		}
		n := float64(batch.Size)
		total += float64(loss) * n
		rotation += float64(rot) * n
		translation += float64(trans) * n
		samples += batch.Size
	}
	if samples == 0 {
		return train.ErrNoWindows
	}
	n := float64(samples)
	_, err = fmt.Fprintf(w, "windows: %d\nloss: %.6f\nrotation mse: %.6f\ntranslation mse: %.6f\n",
		samples, total/n, rotation/n, translation/n)
	return err
}

func (s *session[B]) predict(w io.Writer, cfg config.Config, checkpointPath, sequence string) error {
	seq, err := selectSequence(cfg, sequence)
	if err != nil {
		return err
	}
	model, err := s.loadModel(cfg, checkpointPath)
	if err != nil {
		return err
	}

	// Consecutive windows share one frame so every frame pair is predicted once.
	steps := cfg.Data.SeqLen
	windows, err := dataset.Windows([]*dataset.Sequence{seq}, steps, steps-1)
	if err != nil {
		return err
	}
	frame := 0
	for _, batchWindows := range dataset.Batches(windows, cfg.Data.BatchSize, nil) {
		batch, err := dataset.Materialize(batchWindows, cfg.Data.Relative, s.backend)
		if err != nil {
			return err
		}
		data := model.Predict(batch.X).Data()
		for i := 0; i < len(data); i += deepvo.PoseDim {
			frame++
			p := data[i : i+deepvo.PoseDim]
			if _, err := fmt.Fprintf(w, "%d %g %g %g %g %g %g\n", frame, p[0], p[1], p[2], p[3], p[4], p[5]); err != nil {
				return err
			}
		}
	}
	log.Info().Str("sequence", seq.ID).Int("frames", frame).Msg("prediction written")
	return nil
}

func (s *session[B]) probe(w io.Writer, h, wid int) error {
	encoder := deepvo.NewEncoder(true, s.backend)
	_, err := fmt.Fprintf(w, "probed feature size: %d\n", encoder.Probe(h, wid))
	return err
}

func (s *session[B]) convert(cfg config.Config, input, output string) error {
	model, err := s.newModel(cfg)
	if err != nil {
		return err
	}
	report, err := torchimport.Import(input, model)
	if err != nil {
		return err
	}
	cfgYAML, err := cfg.Marshal()
	if err != nil {
		return err
	}
	meta := checkpoint.Meta{Metadata: map[string]string{"config": cfgYAML, "source": input}}
	if err := checkpoint.Save(output, model, meta); err != nil {
		return err
	}
	log.Info().Int("tensors", report.Loaded).Int("skipped", len(report.Skipped)).Str("output", output).Msg("converted")
	return nil
}

// selectSequence returns the sequence named id, or the first held-out
// sequence when id is empty.
func selectSequence(cfg config.Config, id string) (*dataset.Sequence, error) {
	h, w := cfg.Model.ImageHeight, cfg.Model.ImageWidth
	if cfg.Data.Synthetic > 0 {
		seqs := dataset.Synthetic(cfg.Data.Synthetic, train.SyntheticFrames*cfg.Data.SeqLen, h, w, cfg.Train.Seed)
		if id == "" {
			return seqs[len(seqs)-1], nil
		}
		for _, seq := range seqs {
			if seq.ID == id {
				return seq, nil
			}
		}
		return nil, fmt.Errorf("unknown synthetic sequence %q", id)
	}
	if id == "" {
		switch {
		case len(cfg.Data.ValidSequences) > 0:
			id = cfg.Data.ValidSequences[0]
		case len(cfg.Data.Sequences) > 0:
			id = cfg.Data.Sequences[0]
		default:
			return nil, fmt.Errorf("no sequence to predict")
		}
	}
	return dataset.LoadSequence(cfg.Data.Root, id, h, w, dataset.DefaultNormalization())
}
