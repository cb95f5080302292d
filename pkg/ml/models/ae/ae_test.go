// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ae

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/backends/simplego"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsdl/tsdl/pkg/ml/config"
	"github.com/tsdl/tsdl/pkg/ml/layers/codec"
	"github.com/tsdl/tsdl/pkg/ml/registry"
	"github.com/tsdl/tsdl/pkg/ml/runlog"
)

func newBackend(t *testing.T) backends.Backend {
	backend, err := simplego.New("")
	require.NoError(t, err)
	return backend
}

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.Features = 1
	cfg.SequenceLength = 16
	cfg.ExtractedFeatures = 4
	cfg.LatentSpace = 2
	cfg.KernelSize = 3
	cfg.Stride = 1
	cfg.Padding = 1
	cfg.Log = false
	return cfg
}

func zeros(dims ...int) *tensors.Tensor {
	return tensors.FromShape(shapes.Make(dtypes.Float32, dims...))
}

func TestForwardZeros(t *testing.T) {
	m, err := New(newBackend(t), smallConfig())
	require.NoError(t, err)
	defer func() { require.NoError(t, m.Close()) }()

	output, err := m.Predict(zeros(8, 1, 16))
	require.NoError(t, err)
	assert.Equal(t, []int{8, 1, 16}, output.Shape().Dimensions)
	assert.Equal(t, dtypes.Float32, output.DType())
}

func TestTrainStepUpdatesKernels(t *testing.T) {
	m, err := New(newBackend(t), smallConfig())
	require.NoError(t, err)
	c := m.Codec()
	kernels := []*context.Variable{c.Encoder1.Kernel, c.Encoder2.Kernel, c.Decoder1.Kernel, c.Decoder2.Kernel}
	flatValue := func(v *context.Variable) []float32 {
		value, err := v.Value()
		require.NoError(t, err)
		return tensors.MustCopyFlatData[float32](value)
	}
	before := make([][]float32, len(kernels))
	for ii, v := range kernels {
		before[ii] = flatValue(v)
	}

	x := zeros(8, 1, 16)
	require.NoError(t, tensors.MutableFlatData(x, func(flat []float32) {
		for ii := range flat {
			flat[ii] = float32(math.Sin(0.4 * float64(ii%16)))
		}
	}))
	loss, err := m.TrainStep(x)
	require.NoError(t, err)
	assert.Greater(t, loss, 0.0)
	for ii, v := range kernels {
		assert.NotEqualf(t, before[ii], flatValue(v), "%s not updated", v.ScopeAndName())
	}
}

func TestEncodeDecode(t *testing.T) {
	cfg := smallConfig()
	cfg.Features = 3
	cfg.SequenceLength = 20
	cfg.Stride = 2
	cfg.KernelSize = 4
	m, err := New(newBackend(t), cfg)
	require.NoError(t, err)

	latent, err := m.Encode(zeros(5, 3, 20))
	require.NoError(t, err)
	lengths := m.Codec().Lengths()
	assert.Equal(t, []int{5, 2, lengths.Latent}, latent.Shape().Dimensions)

	reconstruction, err := m.Decode(latent)
	require.NoError(t, err)
	assert.Equal(t, []int{5, 3, 20}, reconstruction.Shape().Dimensions)
}

func TestShapeHeuristic(t *testing.T) {
	cfg := smallConfig()
	cfg.SequenceLength = 10
	m, err := New(newBackend(t), cfg)
	require.NoError(t, err)
	assert.Equal(t, codec.Lengths{Input: 10, Extracted: 10, Latent: 10}, m.Codec().Lengths())
	assert.Nil(t, m.Codec().Warning())

	cfg.KernelSize, cfg.Stride, cfg.Padding = 5, 2, 0
	m, err = New(newBackend(t), cfg)
	require.NoError(t, err, "the shape heuristic must not abort construction")
	// Floor division: (3-5)/2+1 = 0, the latent axis is empty.
	assert.Equal(t, codec.Lengths{Input: 10, Extracted: 3, Latent: 0}, m.Codec().Lengths())
	assert.NotNil(t, m.Codec().Warning())
}

func TestFreeze(t *testing.T) {
	m, err := New(newBackend(t), smallConfig())
	require.NoError(t, err)
	// encoder_1: 4*1*3+4, encoder_2: 2*4*3+2, decoder_1: 2*4*3+4, decoder_2: 4*1*3+1.
	const numParams = 16 + 26 + 28 + 13
	assert.Equal(t, numParams, m.NumTrainable())
	m.Freeze(false)
	assert.Equal(t, 0, m.NumTrainable())
	m.Freeze(false)
	assert.Equal(t, 0, m.NumTrainable())
	m.Freeze(true)
	assert.Equal(t, numParams, m.NumTrainable())
}

func TestInvalidConfig(t *testing.T) {
	backend := newBackend(t)
	cfg := smallConfig()
	cfg.KernelSize = 0
	_, err := New(backend, cfg)
	assert.True(t, errors.Is(err, codec.ErrInvalidConfig))

	cfg = smallConfig()
	cfg.Precision = "int8"
	_, err = New(backend, cfg)
	assert.True(t, errors.Is(err, codec.ErrInvalidConfig), "parameters must be floats")

	cfg = smallConfig()
	cfg.Precision = "bfloat13"
	_, err = New(backend, cfg)
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	doc, err := config.Parse([]byte(`
architecture: SimpleModel
precision: float64
model:
  features: 2
  sequence_length: 12
  extracted_features: 3
  latent_space: 2
  kernel_size: 3
  log: false
`))
	require.NoError(t, err)
	assert.Contains(t, registry.Names(), Kind)
	m, err := registry.New(doc.Architecture(), newBackend(t), doc.Section(config.KeyModel))
	require.NoError(t, err)
	aeModel, ok := m.(*Model)
	require.True(t, ok)
	assert.Equal(t, Kind, aeModel.Kind())
	assert.Equal(t, dtypes.Float64, aeModel.Precision().DType)
	assert.Equal(t, "relu", aeModel.Config().LastActivation)

	output, err := m.Predict(zeros(2, 2, 12))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 12}, output.Shape().Dimensions)
	assert.Equal(t, dtypes.Float64, output.DType())
}

func TestTrainWithRunLog(t *testing.T) {
	cfg := smallConfig()
	cfg.Log = true
	cfg.LogRoot = t.TempDir()
	cfg.Tag = "unit"
	m, err := New(newBackend(t), cfg)
	require.NoError(t, err)
	runDir := m.Writer().Dir()
	assert.Equal(t, filepath.Join(cfg.LogRoot, "unit", Kind), filepath.Dir(runDir))

	batch := tensors.FromShape(shapes.Make(dtypes.Float32, 4, 1, 16))
	require.NoError(t, tensors.MutableFlatData(batch, func(flat []float32) {
		for ii := range flat {
			flat[ii] = float32(math.Sin(float64(ii) / 3))
		}
	}))
	for range 3 {
		loss, err := m.TrainStep(batch)
		require.NoError(t, err)
		assert.False(t, math.IsNaN(loss))
	}
	_, err = m.StepSchedule()
	require.NoError(t, err)
	assert.InDelta(t, cfg.LR*cfg.LRDecay, m.LearningRate(), 1e-9)

	require.NoError(t, m.Close())
	points, err := runlog.LoadPoints(filepath.Join(runDir, runlog.PointsFileName))
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, int64(3), points[2].Step)
}
