package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/born-ml/deepvo/internal/checkpoint"
	"github.com/born-ml/deepvo/internal/config"
	"github.com/born-ml/deepvo/internal/deepvo"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "YAML configuration file (defaults are used when empty)",
	}
	checkpointFlag = &cli.StringFlag{
		Name:     "checkpoint",
		Usage:    ".born checkpoint to load",
		Required: true,
	}
	syntheticFlag = &cli.IntFlag{
		Name:  "synthetic",
		Usage: "replace the dataset with N generated sequences",
	}
)

func trainCommand() *cli.Command {
	return &cli.Command{
		Name:  "train",
		Usage: "Train a model",
		Flags: []cli.Flag{
			configFlag,
			syntheticFlag,
			&cli.IntFlag{Name: "epochs", Usage: "override train.epochs"},
			&cli.StringFlag{Name: "checkpoint-dir", Usage: "override train.checkpoint_dir"},
			&cli.StringFlag{Name: "journal", Usage: "SQLite file recording the run"},
			&cli.StringFlag{Name: "resume", Usage: "checkpoint to start from"},
			&cli.StringFlag{Name: "run-name", Usage: "label of the run", Value: "deepvo"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c, "")
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
			defer stop()
			return withRunner(c, func(r runner) error {
				return r.train(ctx, cfg, c.String("resume"), c.String("run-name"))
			})
		},
	}
}

func evaluateCommand() *cli.Command {
	return &cli.Command{
		Name:  "evaluate",
		Usage: "Report the loss of a checkpoint on the validation windows",
		Flags: []cli.Flag{configFlag, checkpointFlag, syntheticFlag},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c, c.String("checkpoint"))
			if err != nil {
				return err
			}
			return withRunner(c, func(r runner) error {
				return r.evaluate(c.App.Writer, cfg, c.String("checkpoint"))
			})
		},
	}
}

func predictCommand() *cli.Command {
	return &cli.Command{
		Name:  "predict",
		Usage: "Write the predicted motion of every frame of a sequence",
		Flags: []cli.Flag{
			configFlag,
			checkpointFlag,
			syntheticFlag,
			&cli.StringFlag{Name: "sequence", Usage: "sequence id (first validation sequence when empty)"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "output file (stdout when empty)"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c, c.String("checkpoint"))
			if err != nil {
				return err
			}
			out := c.App.Writer
			if path := c.String("output"); path != "" {
				f, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("failed to create output: %w", err)
				}
				defer func() { _ = f.Close() }()
				out = f
			}
			return withRunner(c, func(r runner) error {
				return r.predict(out, cfg, c.String("checkpoint"), c.String("sequence"))
			})
		},
	}
}

func shapeCommand() *cli.Command {
	return &cli.Command{
		Name:  "shape",
		Usage: "Print the encoder output shape and RNN input size for a resolution",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "height", Value: deepvo.DefaultImageHeight},
			&cli.IntFlag{Name: "width", Value: deepvo.DefaultImageWidth},
			&cli.BoolFlag{Name: "probe", Usage: "also run a zero input through the encoder"},
		},
		Action: func(c *cli.Context) error {
			h, w := c.Int("height"), c.Int("width")
			ch, oh, ow := deepvo.EncoderOutputShape(h, w)
			if h <= 0 || w <= 0 || oh <= 0 || ow <= 0 {
				return fmt.Errorf("%w: %dx%d", deepvo.ErrInvalidFeatureSize, h, w)
			}
			if _, err := fmt.Fprintf(c.App.Writer, "encoder output: [%d, %d, %d]\nfeature size: %d\n",
				ch, oh, ow, ch*oh*ow); err != nil {
				return err
			}
			if !c.Bool("probe") {
				return nil
			}
			return withRunner(c, func(r runner) error {
				return r.probe(c.App.Writer, h, w)
			})
		},
	}
}

func convertCommand() *cli.Command {
	return &cli.Command{
		Name:  "convert",
		Usage: "Convert a PyTorch DeepVO state dict to a .born checkpoint",
		Flags: []cli.Flag{
			configFlag,
			&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "torch.save(state_dict) file", Required: true},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: ".born file to write", Required: true},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c, "")
			if err != nil {
				return err
			}
			return withRunner(c, func(r runner) error {
				return r.convert(cfg, c.String("input"), c.String("output"))
			})
		},
	}
}

// loadConfig resolves the configuration of a command: --config when set,
// else the config stored in checkpointPath, else the defaults. Flag
// overrides are applied last.
func loadConfig(c *cli.Context, checkpointPath string) (config.Config, error) {
	cfg := config.Default()
	switch {
	case c.String("config") != "":
		var err error
		if cfg, err = config.Load(c.String("config")); err != nil {
			return cfg, err
		}
	case checkpointPath != "":
		header, err := checkpoint.ReadHeader(checkpointPath)
		if err != nil {
			return cfg, err
		}
		if text, ok := header.Metadata["config"]; ok {
			if cfg, err = config.Parse([]byte(text)); err != nil {
				return cfg, fmt.Errorf("config stored in %s: %w", checkpointPath, err)
			}
			log.Debug().Str("checkpoint", checkpointPath).Msg("using stored config")
		}
	}

	if c.IsSet("synthetic") {
		cfg.Data.Synthetic = c.Int("synthetic")
	}
	if c.IsSet("epochs") {
		cfg.Train.Epochs = c.Int("epochs")
	}
	if c.IsSet("checkpoint-dir") {
		cfg.Train.CheckpointDir = c.String("checkpoint-dir")
	}
	if c.IsSet("journal") {
		cfg.Train.Journal = c.String("journal")
	}
	return cfg, cfg.Validate()
}

// withRunner opens the --device backend, runs fn on it and releases it.
func withRunner(c *cli.Context, fn func(runner) error) error {
	r, err := newRunner(c.String("device"))
	if err != nil {
		return err
	}
	defer r.close()
	return fn(r)
}
