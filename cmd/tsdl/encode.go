// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"math/rand/v2"

	"github.com/charmbracelet/lipgloss"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/tsdl/tsdl/pkg/ml/config"
	"github.com/tsdl/tsdl/pkg/ml/models/ae"
	"github.com/tsdl/tsdl/pkg/ml/models/vae"
)

func newEncodeCommand() *cobra.Command {
	var (
		checkpoint string
		batchSize  int
	)
	encodeCmd := &cobra.Command{
		Use:   "encode CONFIG",
		Short: "Load a trained model and encode a synthetic batch, printing the latent shape",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadConfig(args[0])
			if err != nil {
				return err
			}
			if checkpoint == "" {
				cfg := defaultTrainConfig()
				if err := config.Decode(doc.Section(config.KeyTrain), &cfg); err != nil {
					return err
				}
				checkpoint = cfg.Checkpoint
			}
			if checkpoint == "" {
				return errors.New("no checkpoint given: use --checkpoint or train.checkpoint")
			}
			m, err := buildModel(doc)
			if err != nil {
				return err
			}
			defer func() { _ = m.Close() }()
			if err := m.Load(checkpoint); err != nil {
				return err
			}
			dims, err := inputDims(m, batchSize)
			if err != nil {
				return err
			}
			batch := sineBatch(rand.New(rand.NewPCG(0, 1)), dims)

			var latent *tensors.Tensor
			switch m := m.(type) {
			case *ae.Model:
				latent, err = m.Encode(batch)
			case *vae.Model:
				latent, err = m.Encode(batch)
			default:
				err = errors.Errorf("model kind %q can't encode", m.Kind())
			}
			if err != nil {
				return err
			}
			evalLoss, err := m.Evaluate(batch)
			if err != nil {
				return err
			}

			report := newTable([]string{"Encoding", "Value"}, lipgloss.Left)
			report.row(false, "Input", fmt.Sprint(dims))
			report.row(false, "Latent", latent.Shape().String())
			report.row(false, "Reconstruction loss", fmt.Sprintf("%.6g", evalLoss))
			fmt.Fprintln(cmd.OutOrStdout(), report.Render())
			return nil
		},
	}
	encodeCmd.Flags().StringVar(&checkpoint, "checkpoint", "", "Checkpoint directory. Defaults to train.checkpoint.")
	encodeCmd.Flags().IntVar(&batchSize, "batch", 4, "Number of synthetic series to encode.")
	return encodeCmd
}
