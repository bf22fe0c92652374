package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ZanzyTHEbar/viral-o-meter/internal/dataset"
	apperrors "github.com/ZanzyTHEbar/viral-o-meter/internal/errors"
	"github.com/ZanzyTHEbar/viral-o-meter/internal/hybrid"
	"github.com/ZanzyTHEbar/viral-o-meter/internal/neural"
	"github.com/ZanzyTHEbar/viral-o-meter/internal/security"
)

func withRepo(c *cli.Context, fn func(*dataset.Repository) error) error {
	db, err := dataset.Open(c.Context, c.String("data-dir"))
	if err != nil {
		return err
	}
	defer apperrors.SafeClose(db, "dataset")
	return fn(dataset.NewRepository(db))
}

func printJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func featureCountFlag() *cli.IntFlag {
	return &cli.IntFlag{
		Name:  "features",
		Value: hybrid.BaseFeatureCount,
		Usage: fmt.Sprintf("feature vector length, %d or %d", hybrid.BaseFeatureCount, hybrid.ExtendedFeatureCount),
	}
}

func checkFeatureCount(n int) error {
	if hybrid.FeatureNames(n) == nil {
		return apperrors.NewValidationError("unsupported feature count",
			fmt.Sprintf("%d, want %d or %d", n, hybrid.BaseFeatureCount, hybrid.ExtendedFeatureCount))
	}
	return nil
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "import a JSON array of samples",
		ArgsUsage: "<file.json>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "source", Usage: "label stored with every imported sample (defaults to the file name)"},
		},
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return apperrors.NewValidationError("a sample file is required")
			}
			source := c.String("source")
			if source == "" {
				source = filepath.Base(path)
			}

			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open samples: %w", err)
			}
			defer apperrors.SafeClose(f, "sample file")

			return withRepo(c, func(repo *dataset.Repository) error {
				n, err := repo.ImportJSON(c.Context, f, source)
				if err != nil {
					return err
				}
				loggerFrom(c).Info("Imported samples", "count", n, "source", source)
				return printJSON(c, map[string]any{"imported": n, "source": source})
			})
		},
	}
}

func trainCommand() *cli.Command {
	return &cli.Command{
		Name:  "train",
		Usage: "train a network on stored samples and save the snapshot",
		Flags: []cli.Flag{
			featureCountFlag(),
			&cli.StringFlag{Name: "out", Value: "./data/model.json", Usage: "snapshot output path"},
			&cli.IntFlag{Name: "epochs", Value: 1000},
			&cli.IntFlag{Name: "hidden", Value: 16, Usage: "hidden layer size"},
			&cli.Float64Flag{Name: "learning-rate", Value: 0.01},
			&cli.Float64Flag{Name: "validation", Value: 0.2, Usage: "fraction of samples held out"},
			&cli.Float64Flag{Name: "target-loss", Value: 0.01},
			&cli.Float64Flag{Name: "target-accuracy", Value: 0.9},
			&cli.Int64Flag{Name: "seed", Value: 42},
			&cli.StringFlag{Name: "from", Usage: "continue training from this snapshot; its architecture overrides --features and --hidden"},
		},
		Action: func(c *cli.Context) error {
			features := c.Int("features")
			var base *neural.Snapshot
			if from := c.String("from"); from != "" {
				snap, err := neural.Load(from)
				if err != nil {
					return err
				}
				if c.IsSet("features") && features != snap.InputSize() {
					return apperrors.NewValidationError("feature count does not match the snapshot",
						fmt.Sprintf("--features %d, snapshot %s", features, snap.Architecture().String()))
				}
				base, features = snap, snap.InputSize()
			}
			if err := checkFeatureCount(features); err != nil {
				return err
			}
			fraction := c.Float64("validation")
			if fraction < 0 || fraction >= 1 {
				return apperrors.NewValidationError("validation fraction must be in [0, 1)")
			}
			if c.Int("epochs") <= 0 || c.Float64("learning-rate") <= 0 {
				return apperrors.NewValidationError("epochs and learning rate must be positive")
			}
			logger := loggerFrom(c)

			return withRepo(c, func(repo *dataset.Repository) error {
				samples, err := repo.Samples(c.Context, features)
				if err != nil {
					return err
				}
				if len(samples) == 0 {
					return apperrors.NewValidationError("no stored samples", fmt.Sprintf("feature count %d", features))
				}

				cfg := neural.DefaultConfig(features)
				cfg.Architecture.HiddenSize = c.Int("hidden")
				cfg.Epochs = c.Int("epochs")
				cfg.LearningRate = c.Float64("learning-rate")
				cfg.TargetLoss = c.Float64("target-loss")
				cfg.TargetAccuracy = c.Float64("target-accuracy")
				cfg.Seed = c.Int64("seed")

				train, validation := neural.Split(samples, fraction, cfg.Seed)
				var (
					net         *neural.Network
					resumedFrom string
				)
				if base != nil {
					net = neural.Thaw(base, cfg)
					cfg.Architecture = net.Architecture()
					resumedFrom = base.RunID()
				} else {
					net, err = neural.NewNetwork(cfg)
					if err != nil {
						return err
					}
				}

				logger.Info("Training started",
					"architecture", cfg.Architecture.String(),
					"resumed_from", resumedFrom,
					"train_samples", len(train),
					"validation_samples", len(validation),
				)
				run, err := net.Train(c.Context, neural.TrainInput{
					Train:      train,
					Validation: validation,
					Progress: func(h neural.HistoryEntry) {
						logger.TrainingLogger(h.RunID, h.Epoch, h.Loss, h.TrainAccuracy, h.ValidationAccuracy)
					},
				})
				if err != nil {
					return err
				}

				out := c.String("out")
				if err := net.Freeze().Save(out); err != nil {
					return err
				}
				if err := repo.RecordRun(c.Context, run, cfg.Architecture, out); err != nil {
					return err
				}
				logger.Info("Training finished",
					"run_id", run.ID,
					"epochs", run.Epochs,
					"stopped_early", run.StoppedEarly,
					"final_loss", run.FinalLoss,
					"snapshot", out,
				)
				return printJSON(c, map[string]any{
					"run_id":       run.ID,
					"architecture": cfg.Architecture.String(),
					"snapshot":     out,
					"performance":  run.Performance,
				})
			})
		},
	}
}

func evaluateCommand() *cli.Command {
	return &cli.Command{
		Name:      "evaluate",
		Usage:     "evaluate a saved snapshot against the stored samples of its input size",
		ArgsUsage: "<model.json>",
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return apperrors.NewValidationError("a model snapshot is required")
			}
			snap, err := neural.Load(path)
			if err != nil {
				return err
			}

			return withRepo(c, func(repo *dataset.Repository) error {
				samples, err := repo.Samples(c.Context, snap.InputSize())
				if err != nil {
					return err
				}
				if len(samples) == 0 {
					return apperrors.NewValidationError("no stored samples", fmt.Sprintf("feature count %d", snap.InputSize()))
				}
				metrics, err := neural.Thaw(snap, neural.DefaultConfig(snap.InputSize())).Evaluate(samples)
				if err != nil {
					return err
				}
				return printJSON(c, map[string]any{
					"run_id":       snap.RunID(),
					"architecture": snap.Architecture().String(),
					"metrics":      metrics,
				})
			})
		},
	}
}

func runsCommand() *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "list recorded training runs, newest first",
		Flags: []cli.Flag{&cli.IntFlag{Name: "limit", Value: 20}},
		Action: func(c *cli.Context) error {
			return withRepo(c, func(repo *dataset.Repository) error {
				runs, err := repo.Runs(c.Context, c.Int("limit"))
				if err != nil {
					return err
				}
				return printJSON(c, runs)
			})
		},
	}
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "count stored samples by feature vector length",
		Action: func(c *cli.Context) error {
			return withRepo(c, func(repo *dataset.Repository) error {
				counts, err := repo.Counts(c.Context)
				if err != nil {
					return err
				}
				return printJSON(c, counts)
			})
		},
	}
}

func purgeCommand() *cli.Command {
	return &cli.Command{
		Name:  "purge",
		Usage: "delete every sample imported under a source label",
		Flags: []cli.Flag{&cli.StringFlag{Name: "source", Required: true}},
		Action: func(c *cli.Context) error {
			return withRepo(c, func(repo *dataset.Repository) error {
				n, err := repo.DeleteSource(c.Context, c.String("source"))
				if err != nil {
					return err
				}
				return printJSON(c, map[string]any{"deleted": n, "source": c.String("source")})
			})
		},
	}
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "issue a bearer token for POST /model/reload",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "secret", EnvVars: []string{"ADMIN_TOKEN_SECRET"}, Required: true, Usage: "signing secret shared with the server"},
			&cli.DurationFlag{Name: "ttl", Value: time.Hour},
		},
		Action: func(c *cli.Context) error {
			ttl := c.Duration("ttl")
			if ttl <= 0 {
				return apperrors.NewValidationError("ttl must be positive")
			}
			token, err := security.IssueToken([]byte(c.String("secret")), security.ScopeModelReload, ttl)
			if err != nil {
				return apperrors.NewValidationError("cannot issue token", err.Error())
			}
			return printJSON(c, map[string]any{
				"token":      token,
				"scope":      security.ScopeModelReload,
				"expires_at": time.Now().Add(ttl).UTC().Format(time.RFC3339),
			})
		},
	}
}
