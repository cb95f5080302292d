// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package runlog

import (
	"slices"

	"gonum.org/v1/gonum/stat"
)

// MetricSummary aggregates the points of one metric.
type MetricSummary struct {
	MetricName          string
	Count               int
	FirstStep, LastStep int64
	First, Last         float64
	Min, Max            float64
	Mean, StdDev        float64
}

// Summarize the points per metric, sorted by metric name. Points are taken in step order.
func Summarize(points []Point) []MetricSummary {
	byName := make(map[string][]Point)
	for _, p := range points {
		byName[p.MetricName] = append(byName[p.MetricName], p)
	}
	summaries := make([]MetricSummary, 0, len(byName))
	for name, metricPoints := range byName {
		slices.SortStableFunc(metricPoints, func(a, b Point) int { return int(a.Step - b.Step) })
		values := make([]float64, len(metricPoints))
		for ii, p := range metricPoints {
			values[ii] = p.Value
		}
		s := MetricSummary{
			MetricName: name,
			Count:      len(values),
			FirstStep:  metricPoints[0].Step,
			LastStep:   metricPoints[len(metricPoints)-1].Step,
			First:      values[0],
			Last:       values[len(values)-1],
			Min:        slices.Min(values),
			Max:        slices.Max(values),
		}
		s.Mean, s.StdDev = stat.MeanStdDev(values, nil)
		if len(values) == 1 {
			s.StdDev = 0
		}
		summaries = append(summaries, s)
	}
	slices.SortFunc(summaries, func(a, b MetricSummary) int {
		switch {
		case a.MetricName < b.MetricName:
			return -1
		case a.MetricName > b.MetricName:
			return 1
		}
		return 0
	})
	return summaries
}
