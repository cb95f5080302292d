// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package runlog

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// JSONL writes points as one JSON object per line to <dir>/metrics.jsonl.
//
// Encoding happens in a separate goroutine fed by a channel; the first error stops the writing
// and is returned by Close.
type JSONL struct {
	dir, runID string

	mu     sync.Mutex
	points chan Point
	done   chan error
	closed bool
}

var _ Writer = (*JSONL)(nil)

// NewJSONL creates dir (and parents) and starts the writer goroutine.
func NewJSONL(dir string) (*JSONL, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create run directory %q", dir)
	}
	w := &JSONL{
		dir:    dir,
		runID:  uuid.NewString(),
		points: make(chan Point, 100),
		done:   make(chan error, 1),
	}
	filePath := filepath.Join(dir, PointsFileName)
	go func() {
		f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o664)
		if err != nil {
			err = errors.Wrapf(err, "failed to open points file %q for append", filePath)
			klog.Errorf("Error: %v", err)
		}
		enc := json.NewEncoder(f)
		for point := range w.points {
			if err != nil {
				continue
			}
			if err = enc.Encode(point); err != nil {
				err = errors.Wrapf(err, "failed to encode point %v", point)
				klog.Errorf("Error: %v", err)
			}
		}
		if f != nil {
			if closeErr := f.Close(); err == nil {
				err = closeErr
			}
		}
		w.done <- err
	}()
	klog.V(1).Infof("run %s logging to %q", w.runID, dir)
	return w, nil
}

// RunID returns the unique identifier attached to every point of this writer.
func (w *JSONL) RunID() string { return w.runID }

// Add implements Writer. Points added after Close are dropped.
func (w *JSONL) Add(point Point) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	point.RunID = w.runID
	w.points <- point
}

// Dir implements Writer.
func (w *JSONL) Dir() string { return w.dir }

// Close implements Writer. It waits for the pending points to be written.
func (w *JSONL) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.points)
	w.mu.Unlock()
	return <-w.done
}

// LoadPoints parses all points saved in the given file.
func LoadPoints(filePath string) ([]Point, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read points file %q", filePath)
	}
	defer func() { _ = f.Close() }()
	dec := json.NewDecoder(f)
	var points []Point
	for {
		var point Point
		err := dec.Decode(&point)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "error while decoding points file %q", filePath)
		}
		points = append(points, point)
	}
	return points, nil
}
