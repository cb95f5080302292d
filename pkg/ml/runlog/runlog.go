// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package runlog is the metrics-writer collaborator of the models: when logging is enabled,
// a model writes its training points to a run directory of the form
//
//	<root>/<tag>/<Kind>/<DDMMYYYY_HHMMSS>
//
// When logging is disabled the model holds a Nop writer, which has no side effects.
package runlog

import (
	"path/filepath"
	"time"
)

// DefaultRoot is the default root directory for run logs.
const DefaultRoot = "runs"

// TimestampLayout is the time layout of the last element of a run directory (day, month, year, then time).
const TimestampLayout = "02012006_150405"

// PointsFileName is the name of the file, within the run directory, holding the points.
const PointsFileName = "metrics.jsonl"

// Point is one measurement of a metric.
type Point struct {
	// RunID identifies the run (model instance) that generated the point.
	RunID string

	// MetricName of this point, e.g. "Train: loss".
	MetricName string

	// MetricType typically will be "loss" or "learning_rate".
	MetricType string

	// Step is the global step at which the metric was measured.
	Step int64

	// Value is the metric captured.
	Value float64

	// Time the point was recorded.
	Time time.Time
}

// Writer receives the points of a run.
type Writer interface {
	// Add records a point. It never blocks on I/O errors: those are reported by Close.
	Add(point Point)

	// Dir returns the run directory, or "" if nothing is written.
	Dir() string

	// Close flushes pending points and releases the resources.
	Close() error
}

// RunDir returns the deterministic run directory for the given tag, architecture kind and time.
// If root is empty, DefaultRoot is used.
func RunDir(root, tag, kind string, t time.Time) string {
	if root == "" {
		root = DefaultRoot
	}
	return filepath.Join(root, tag, kind, t.Format(TimestampLayout))
}

// New returns a JSONL writer on RunDir(root, tag, kind, now) if enabled, or Nop otherwise.
func New(enabled bool, root, tag, kind string, now time.Time) (Writer, error) {
	if !enabled {
		return Nop{}, nil
	}
	return NewJSONL(RunDir(root, tag, kind, now))
}

// Nop is a Writer that discards everything.
type Nop struct{}

// Add implements Writer.
func (Nop) Add(Point) {}

// Dir implements Writer.
func (Nop) Dir() string { return "" }

// Close implements Writer.
func (Nop) Close() error { return nil }
