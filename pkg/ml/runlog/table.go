// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package runlog

import (
	"fmt"
	"slices"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
)

// Table renders the points as a table with the first column being the step, followed by one column per metric name.
// Metric names are sorted alphabetically.
func Table(points []Point) string {
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	headerStyle := lipgloss.NewStyle().Padding(0, 1).Bold(true).Reverse(true)
	table := lgtable.New().
		Border(lipgloss.RoundedBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row < 0 {
				return headerStyle
			}
			return cellStyle
		})

	byStep := make(map[int64]map[string]float64)
	var names []string
	for _, p := range points {
		if !slices.Contains(names, p.MetricName) {
			names = append(names, p.MetricName)
		}
		if byStep[p.Step] == nil {
			byStep[p.Step] = make(map[string]float64)
		}
		byStep[p.Step][p.MetricName] = p.Value
	}
	slices.Sort(names)
	table.Headers(append([]string{"Step"}, names...)...)

	steps := make([]int64, 0, len(byStep))
	for step := range byStep {
		steps = append(steps, step)
	}
	slices.Sort(steps)
	for _, step := range steps {
		row := []string{fmt.Sprintf("%d", step)}
		for _, name := range names {
			value, found := byStep[step][name]
			if !found {
				row = append(row, "")
				continue
			}
			row = append(row, fmt.Sprintf("%.4g", value))
		}
		table.Row(row...)
	}
	return table.String()
}
