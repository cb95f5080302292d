// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/tsdl/tsdl/pkg/ml/config"
	"github.com/tsdl/tsdl/pkg/ml/model"
	"github.com/tsdl/tsdl/pkg/ml/registry"
	"k8s.io/klog/v2"
)

// trainConfig is the "train" section of the configuration.
type trainConfig struct {
	Steps     int `yaml:"steps"`
	BatchSize int `yaml:"batch_size"`

	// ScheduleEvery is the number of steps between learning-rate decays. 0 disables the decay.
	ScheduleEvery int `yaml:"schedule_every"`

	Checkpoint      string `yaml:"checkpoint"`
	CheckpointEvery int    `yaml:"checkpoint_every"`

	Seed uint64 `yaml:"seed"`
}

func defaultTrainConfig() trainConfig {
	return trainConfig{
		Steps:         100,
		BatchSize:     16,
		ScheduleEvery: 50,
		Seed:          42,
	}
}

// buildModel creates the model selected by the "architecture" key of doc.
func buildModel(doc config.Document) (model.Model, error) {
	name := doc.Architecture()
	if name == "" {
		return nil, errors.Errorf("configuration has no %q, options are %v", config.KeyArchitecture, registry.Names())
	}
	backend, err := newBackend()
	if err != nil {
		return nil, err
	}
	return registry.New(name, backend, doc.Section(config.KeyModel))
}

func newTrainCommand() *cobra.Command {
	var (
		steps      int
		checkpoint string
	)
	trainCmd := &cobra.Command{
		Use:   "train CONFIG",
		Short: "Train the configured model on synthetic sine waves",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadConfig(args[0])
			if err != nil {
				return err
			}
			cfg := defaultTrainConfig()
			if err := config.Decode(doc.Section(config.KeyTrain), &cfg); err != nil {
				return err
			}
			if cmd.Flags().Changed("steps") {
				cfg.Steps = steps
			}
			if cmd.Flags().Changed("checkpoint") {
				cfg.Checkpoint = checkpoint
			}
			return train(cmd, doc, cfg)
		},
	}
	trainCmd.Flags().IntVar(&steps, "steps", 0, "Number of training steps. Overrides train.steps.")
	trainCmd.Flags().StringVar(&checkpoint, "checkpoint", "",
		"Checkpoint directory: training resumes from it if it has checkpoints. Overrides train.checkpoint.")
	return trainCmd
}

func train(cmd *cobra.Command, doc config.Document, cfg trainConfig) (err error) {
	if cfg.Steps <= 0 || cfg.BatchSize <= 0 {
		return errors.Errorf("train.steps (%d) and train.batch_size (%d) must be > 0", cfg.Steps, cfg.BatchSize)
	}
	m, err := buildModel(doc)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); err == nil {
			err = closeErr
		}
	}()
	if cfg.Checkpoint != "" {
		if err = m.Resume(cfg.Checkpoint); err != nil {
			return err
		}
	}
	dims, err := inputDims(m, cfg.BatchSize)
	if err != nil {
		return err
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed+1))

	bar := progressbar.NewOptions(cfg.Steps,
		progressbar.OptionSetDescription(fmt.Sprintf("Training %s", m.Kind())),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("steps"),
		progressbar.OptionSetTheme(progressbar.ThemeASCII),
		progressbar.OptionSetWriter(os.Stderr),
	)
	var loss float64
	for step := range cfg.Steps {
		loss, err = m.TrainStep(sineBatch(rng, dims))
		if err != nil {
			return err
		}
		bar.Describe(fmt.Sprintf("Training %s [loss=%.4g]", m.Kind(), loss))
		_ = bar.Add(1)
		if cfg.ScheduleEvery > 0 && (step+1)%cfg.ScheduleEvery == 0 {
			if _, err = m.StepSchedule(); err != nil {
				return err
			}
		}
		if cfg.Checkpoint != "" && cfg.CheckpointEvery > 0 && (step+1)%cfg.CheckpointEvery == 0 {
			if err = m.Save(cfg.Checkpoint); err != nil {
				return err
			}
		}
	}
	_ = bar.Finish()
	fmt.Fprintln(os.Stderr)

	evalLoss, err := m.Evaluate(sineBatch(rng, dims))
	if err != nil {
		return err
	}
	if cfg.Checkpoint != "" {
		if err = m.Save(cfg.Checkpoint); err != nil {
			return err
		}
	}
	klog.V(1).Infof("%s: trained %d steps, eval loss %g", m.Kind(), cfg.Steps, evalLoss)

	summary := newTable([]string{"Summary", "Value"}, lipgloss.Left, lipgloss.Right)
	summary.row(false, "Architecture", m.Kind())
	if counter, ok := m.(interface{ NumParameters() int }); ok {
		summary.row(false, "Parameters", humanize.Comma(int64(counter.NumParameters())))
	}
	summary.row(false, "Trainable parameters", humanize.Comma(int64(m.NumTrainable())))
	summary.row(false, "Steps", humanize.Comma(int64(cfg.Steps)))
	summary.row(false, "Last train loss", fmt.Sprintf("%.6g", loss))
	summary.row(evalLoss > loss*10, "Eval loss", fmt.Sprintf("%.6g", evalLoss))
	if lr, ok := m.(interface{ LearningRate() float64 }); ok {
		summary.row(false, "Learning rate", fmt.Sprintf("%.4g", lr.LearningRate()))
	}
	if dir := m.Writer().Dir(); dir != "" {
		summary.row(false, "Run log", dir)
	}
	if cfg.Checkpoint != "" {
		summary.row(false, "Checkpoint", cfg.Checkpoint)
	}
	fmt.Fprintln(cmd.OutOrStdout(), summary.Render())
	return nil
}
