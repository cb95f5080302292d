// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package ae implements a 1D convolutional autoencoder for multivariate time series shaped
// [batch, features, sequenceLength].
//
// It registers itself as "AE" (and the legacy name "SimpleModel") in the model registry.
package ae

import (
	"time"

	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/pkg/errors"
	"github.com/tsdl/tsdl/pkg/core/precision"
	"github.com/tsdl/tsdl/pkg/ml/config"
	"github.com/tsdl/tsdl/pkg/ml/layers/codec"
	"github.com/tsdl/tsdl/pkg/ml/model"
	"github.com/tsdl/tsdl/pkg/ml/registry"
	"github.com/tsdl/tsdl/pkg/ml/runlog"
)

const (
	// Kind of the model, used also as its registry name and in the run directory.
	Kind = "AE"

	// LegacyName is an alias in the registry.
	LegacyName = "SimpleModel"
)

func init() {
	registry.Register(Kind, FromParams)
	registry.Register(LegacyName, FromParams)
}

// Config of the autoencoder, decoded from the "model" section of a configuration file.
type Config struct {
	Features          int    `yaml:"features"`
	SequenceLength    int    `yaml:"sequence_length"`
	ExtractedFeatures int    `yaml:"extracted_features"`
	LatentSpace       int    `yaml:"latent_space"`
	KernelSize        int    `yaml:"kernel_size"`
	Stride            int    `yaml:"stride"`
	Padding           int    `yaml:"padding"`
	LastActivation    string `yaml:"last_activation"`

	LR          float64    `yaml:"lr"`
	LRDecay     float64    `yaml:"lr_decay"`
	AdamBetas   [2]float64 `yaml:"adam_betas"`
	WeightDecay float64    `yaml:"weight_decay"`

	// Tag groups runs under the run log root. Log disables the run writer when false.
	Tag     string `yaml:"tag"`
	Log     bool   `yaml:"log"`
	LogRoot string `yaml:"log_root"`

	// Precision of the parameters: one of precision.Names() with a float dtype.
	Precision string `yaml:"precision"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	optimizer := model.DefaultOptimizerConfig()
	return Config{
		Features:          1,
		SequenceLength:    1,
		ExtractedFeatures: 1,
		LatentSpace:       1,
		KernelSize:        1,
		Stride:            1,
		Padding:           1,
		LastActivation:    "relu",
		LR:                optimizer.LearningRate,
		LRDecay:           optimizer.Decay,
		AdamBetas:         optimizer.Betas,
		WeightDecay:       optimizer.WeightDecay,
		Log:               true,
		Precision:         "float32",
	}
}

// Model is the convolutional autoencoder.
type Model struct {
	*model.Base
	config    Config
	precision precision.Descriptor
	codec     *codec.Codec
}

var _ model.Model = (*Model)(nil)

// FromParams builds a Model from the keyword parameters of a "model" section, on top of DefaultConfig.
// It is the registry constructor.
func FromParams(backend backends.Backend, params map[string]any) (model.Model, error) {
	cfg := DefaultConfig()
	if err := config.Decode(params, &cfg); err != nil {
		return nil, err
	}
	return New(backend, cfg)
}

// New creates the autoencoder on backend and initializes its parameters.
func New(backend backends.Backend, cfg Config) (*Model, error) {
	p, found := precision.Resolve(cfg.Precision)
	if !found {
		return nil, errors.Wrapf(codec.ErrInvalidConfig, "unknown precision %q, options are %q", cfg.Precision, precision.Names())
	}
	optimizerConfig := model.OptimizerConfig{
		LearningRate: cfg.LR,
		Decay:        cfg.LRDecay,
		Betas:        cfg.AdamBetas,
		WeightDecay:  cfg.WeightDecay,
		DType:        p.DType,
	}
	if err := optimizerConfig.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "%s: invalid optimizer configuration", Kind)
	}

	m := &Model{config: cfg, precision: p}
	m.Base = model.NewBase(Kind, backend, optimizerConfig, nil)
	ctx := m.Context()
	var err error
	m.codec, err = codec.New(ctx.In("ae"), codec.Config{
		Channels:       cfg.Features,
		Length:         cfg.SequenceLength,
		Extracted:      cfg.ExtractedFeatures,
		Latent:         cfg.LatentSpace,
		Kernel:         cfg.KernelSize,
		Stride:         cfg.Stride,
		Padding:        cfg.Padding,
		LastActivation: cfg.LastActivation,
		DType:          p.DType,
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "%s", Kind)
	}
	ctx.SetParams(map[string]any{
		"features":           cfg.Features,
		"sequence_length":    cfg.SequenceLength,
		"extracted_features": cfg.ExtractedFeatures,
		"latent_space":       cfg.LatentSpace,
		"kernel_size":        cfg.KernelSize,
		"stride":             cfg.Stride,
		"padding":            cfg.Padding,
		"last_activation":    cfg.LastActivation,
		"precision":          p.Name,
	})
	if err = m.Bind(m.codec.Variables(), m.Forward, m.Loss); err != nil {
		return nil, err
	}

	// The writer is created last, so failed constructions leave no run directory behind.
	writer, err := runlog.New(cfg.Log, cfg.LogRoot, cfg.Tag, Kind, time.Now())
	if err != nil {
		return nil, errors.WithMessagef(err, "%s: failed to create run writer", Kind)
	}
	m.SetWriter(writer)
	return m, nil
}

// Config returns the configuration the model was built with.
func (m *Model) Config() Config { return m.config }

// Precision of the model parameters.
func (m *Model) Precision() precision.Descriptor { return m.precision }

// Codec returns the encoder/decoder of the model.
func (m *Model) Codec() *codec.Codec { return m.codec }

// Forward implements model.Model: it reconstructs x shaped [batch, features, sequenceLength].
func (m *Model) Forward(_ *context.Context, x *Node) *Node {
	return m.codec.Decode(m.codec.Encode(x))
}

// Loss implements model.Model: the mean squared reconstruction error.
func (m *Model) Loss(ctx *context.Context, x *Node) *Node {
	reconstruction := m.Forward(ctx, x)
	return ReduceAllMean(Square(Sub(reconstruction, ConvertDType(x, reconstruction.DType()))))
}

// EncodeGraph builds the latent representation of x, shaped [batch, latentSpace, latentLength].
func (m *Model) EncodeGraph(_ *context.Context, x *Node) *Node { return m.codec.Encode(x) }

// DecodeGraph builds the reconstruction of the latent z.
func (m *Model) DecodeGraph(_ *context.Context, z *Node) *Node { return m.codec.Decode(z) }

// Encode x into its latent representation.
func (m *Model) Encode(x *tensors.Tensor) (*tensors.Tensor, error) {
	return m.Execute("encode", m.EncodeGraph, x)
}

// Decode the latent z into a reconstruction.
func (m *Model) Decode(z *tensors.Tensor) (*tensors.Tensor, error) {
	return m.Execute("decode", m.DecodeGraph, z)
}
