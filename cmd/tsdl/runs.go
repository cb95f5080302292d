// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/pkg/support/fsutil"
	"github.com/spf13/cobra"
	"github.com/tsdl/tsdl/pkg/ml/runlog"
)

func newRunsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "runs RUN_DIR",
		Short: "Print the metrics logged by a training run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := fsutil.ReplaceTildeInDir(args[0])
			if err != nil {
				return err
			}
			if info, err := os.Stat(path); err == nil && info.IsDir() {
				path = filepath.Join(path, runlog.PointsFileName)
			}
			points, err := runlog.LoadPoints(path)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), runlog.Table(points))

			summary := newTable([]string{"Metric", "Points", "Steps", "First", "Last", "Min", "Max", "Mean", "StdDev"},
				lipgloss.Left, lipgloss.Right)
			for _, s := range runlog.Summarize(points) {
				summary.row(s.Last > s.First, s.MetricName, humanize.Comma(int64(s.Count)),
					fmt.Sprintf("%d-%d", s.FirstStep, s.LastStep),
					formatValue(s.First), formatValue(s.Last), formatValue(s.Min), formatValue(s.Max),
					formatValue(s.Mean), formatValue(s.StdDev))
			}
			fmt.Fprintln(cmd.OutOrStdout(), summary.Render())
			return nil
		},
	}
}

func formatValue(v float64) string { return fmt.Sprintf("%.4g", v) }
