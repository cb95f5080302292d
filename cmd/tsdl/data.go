// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"math"
	"math/rand/v2"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/tsdl/tsdl/pkg/ml/model"
	"github.com/tsdl/tsdl/pkg/ml/models/ae"
	"github.com/tsdl/tsdl/pkg/ml/models/vae"
)

// inputDims returns the shape of a batch of batchSize examples for m.
func inputDims(m model.Model, batchSize int) ([]int, error) {
	switch m := m.(type) {
	case *ae.Model:
		cfg := m.Config()
		return []int{batchSize, cfg.Features, cfg.SequenceLength}, nil
	case *vae.Model:
		cfg := m.Config()
		return []int{batchSize, cfg.Features, cfg.Channels, cfg.SequenceLength}, nil
	}
	return nil, errors.Errorf("no synthetic data for model kind %q", m.Kind())
}

// sineBatch generates sine waves in [0, 1], with the time on the last axis and a random phase and
// period per series. The models convert it to their own dtype.
func sineBatch(rng *rand.Rand, dims []int) *tensors.Tensor {
	batch := tensors.FromShape(shapes.Make(dtypes.Float64, dims...))
	length := dims[len(dims)-1]
	must.M(tensors.MutableFlatData(batch, func(flat []float64) {
		for start := 0; start < len(flat); start += length {
			phase := rng.Float64() * 2 * math.Pi
			period := 4 + rng.Float64()*float64(length)
			for t := range length {
				flat[start+t] = 0.5 + 0.5*math.Sin(phase+2*math.Pi*float64(t)/period)
			}
		}
	}))
	return batch
}
