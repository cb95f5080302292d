// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package vae implements a convolutional variational autoencoder for time series shaped
// [batch, features, channels, sequenceLength].
//
// The convolutions run over the time axis only (kernels 1 x kernelSize), the encoder output is projected
// to the mean and log-variance of a Gaussian latent distribution, and the decoder reconstructs the input
// from a sample of it.
//
// It registers itself as "VAE" and "ConvVAE" in the model registry.
package vae

import (
	"time"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/pkg/errors"
	"github.com/tsdl/tsdl/pkg/core/precision"
	"github.com/tsdl/tsdl/pkg/ml/config"
	"github.com/tsdl/tsdl/pkg/ml/layers/codec"
	"github.com/tsdl/tsdl/pkg/ml/model"
	"github.com/tsdl/tsdl/pkg/ml/nn"
	"github.com/tsdl/tsdl/pkg/ml/registry"
	"github.com/tsdl/tsdl/pkg/ml/runlog"
)

const (
	// Kind of the model, used also as its registry name and in the run directory.
	Kind = "VAE"

	// LegacyName is an alias in the registry.
	LegacyName = "ConvVAE"
)

func init() {
	registry.Register(Kind, FromParams)
	registry.Register(LegacyName, FromParams)
}

// Config of the variational autoencoder, decoded from the "model" section of a configuration file.
type Config struct {
	Features          int `yaml:"features"`
	SequenceLength    int `yaml:"sequence_length"`
	Channels          int `yaml:"channels"`
	ExtractedFeatures int `yaml:"extracted_features"`
	LatentSpace       int `yaml:"latent_space"`

	// LatentSize is accepted for compatibility with older configuration files, and otherwise ignored.
	LatentSize int `yaml:"latent_size"`

	KernelSize     int    `yaml:"kernel_size"`
	Stride         int    `yaml:"stride"`
	Padding        int    `yaml:"padding"`
	LastActivation string `yaml:"last_activation"`

	LR          float64    `yaml:"lr"`
	LRDecay     float64    `yaml:"lr_decay"`
	AdamBetas   [2]float64 `yaml:"adam_betas"`
	WeightDecay float64    `yaml:"weight_decay"`

	// KLWeight scales the KL divergence term of the training loss.
	KLWeight float64 `yaml:"kl_weight"`

	Tag     string `yaml:"tag"`
	Log     bool   `yaml:"log"`
	LogRoot string `yaml:"log_root"`

	Precision string `yaml:"precision"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	optimizer := model.DefaultOptimizerConfig()
	return Config{
		Features:          1,
		SequenceLength:    1,
		Channels:          1,
		ExtractedFeatures: 1,
		LatentSpace:       1,
		LatentSize:        1,
		KernelSize:        1,
		Stride:            1,
		Padding:           0,
		LastActivation:    "sigmoid",
		LR:                optimizer.LearningRate,
		LRDecay:           optimizer.Decay,
		AdamBetas:         optimizer.Betas,
		WeightDecay:       optimizer.WeightDecay,
		KLWeight:          1.0,
		Log:               true,
		Precision:         "float32",
	}
}

// Projection is a square linear layer over the flattened encoder output.
type Projection struct {
	Weights, Biases *context.Variable
}

func newProjection(ctx *context.Context, dtype dtypes.DType, size int) Projection {
	zeros := func(g *Graph, shape shapes.Shape) *Node { return Zeros(g, shape) }
	return Projection{
		Weights: ctx.VariableWithShape("weights", shapes.Make(dtype, size, size)),
		Biases:  ctx.WithInitializer(zeros).VariableWithShape("biases", shapes.Make(dtype, size)),
	}
}

func (p Projection) apply(x *Node) *Node {
	g := x.Graph()
	return nn.Linear(x, p.Weights.ValueGraph(g), p.Biases.ValueGraph(g))
}

// Model is the convolutional variational autoencoder.
type Model struct {
	*model.Base
	config    Config
	precision precision.Descriptor
	codec     *codec.Codec

	// latentDims is the shape of a latent sample (without the batch axis): [latentSpace, features, latentLength].
	latentDims     [3]int
	mean, logVar   Projection
	projectionSize int
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

// New creates the variational autoencoder on backend and initializes its parameters.
func New(backend backends.Backend, cfg Config) (*Model, error) {
	p, found := precision.Resolve(cfg.Precision)
	if !found {
		return nil, errors.Wrapf(codec.ErrInvalidConfig, "unknown precision %q, options are %q", cfg.Precision, precision.Names())
	}
	if cfg.Features < 1 {
		return nil, errors.Wrapf(codec.ErrInvalidConfig, "%s: features must be >= 1, got %d", Kind, cfg.Features)
	}
	if cfg.KLWeight < 0 {
		return nil, errors.Wrapf(codec.ErrInvalidConfig, "%s: kl_weight must be >= 0, got %g", Kind, cfg.KLWeight)
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
	ctx := m.Context().In("vae")
	var err error
	m.codec, err = codec.New(ctx, codec.Config{
		Channels:       cfg.Channels,
		Length:         cfg.SequenceLength,
		Extracted:      cfg.ExtractedFeatures,
		Latent:         cfg.LatentSpace,
		Kernel:         cfg.KernelSize,
		Stride:         cfg.Stride,
		Padding:        cfg.Padding,
		InnerAxes:      1,
		LastActivation: cfg.LastActivation,
		DType:          p.DType,
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "%s", Kind)
	}
	latentLength := m.codec.Lengths().Latent
	if latentLength < 1 {
		return nil, errors.Wrapf(codec.ErrInvalidConfig, "%s: the encoder produces an empty sequence (length %d) from %d samples",
			Kind, latentLength, cfg.SequenceLength)
	}
	m.latentDims = [3]int{cfg.LatentSpace, cfg.Features, latentLength}
	m.projectionSize = cfg.LatentSpace * cfg.Features * latentLength
	m.mean = newProjection(ctx.In("mean"), p.DType, m.projectionSize)
	m.logVar = newProjection(ctx.In("log_var"), p.DType, m.projectionSize)

	m.Context().SetParams(map[string]any{
		"features":           cfg.Features,
		"sequence_length":    cfg.SequenceLength,
		"channels":           cfg.Channels,
		"extracted_features": cfg.ExtractedFeatures,
		"latent_space":       cfg.LatentSpace,
		"kernel_size":        cfg.KernelSize,
		"stride":             cfg.Stride,
		"padding":            cfg.Padding,
		"last_activation":    cfg.LastActivation,
		"kl_weight":          cfg.KLWeight,
		"precision":          p.Name,
	})
	vars := append(m.codec.Variables(), m.mean.Weights, m.mean.Biases, m.logVar.Weights, m.logVar.Biases)
	if err = m.Bind(vars, m.Forward, m.Loss); err != nil {
		return nil, err
	}

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

// Codec returns the convolutional encoder/decoder of the model.
func (m *Model) Codec() *codec.Codec { return m.codec }

// LatentDims returns the shape of the latent distribution parameters, without the batch axis.
func (m *Model) LatentDims() []int { return m.latentDims[:] }

// toChannelsFirst converts [batch, features, channels, samples] to [batch, channels, features, samples].
// It is its own inverse.
func toChannelsFirst(x *Node) *Node {
	return TransposeAllDims(x, 0, 2, 1, 3)
}

// EncodeDistribution builds the mean and log-variance of the latent distribution of x, both shaped
// [batch, latentSpace, features, latentLength].
func (m *Model) EncodeDistribution(x *Node) (mean, logVar *Node) {
	if x.Rank() != 4 {
		exceptions.Panicf("%s: expected input shaped [batch, features, channels, samples], got %s", Kind, x.Shape())
	}
	h := m.codec.Encode(toChannelsFirst(x))
	batchSize := h.Shape().Dim(0)
	h = Reshape(h, batchSize, m.projectionSize)
	latentShape := []int{batchSize, m.latentDims[0], m.latentDims[1], m.latentDims[2]}
	mean = Reshape(m.mean.apply(h), latentShape...)
	logVar = Reshape(m.logVar.apply(h), latentShape...)
	return
}

// Reparameterize samples z = mean + std*noise, with noise drawn from a standard normal distribution
// with the shape and dtype of std, using the random number generator of ctx.
func Reparameterize(ctx *context.Context, mean, std *Node) *Node {
	noise := ctx.RandomNormal(std.Graph(), std.Shape())
	return Add(mean, Mul(std, noise))
}

// KLDivergence returns the mean KL divergence of the Gaussian (mean, exp(logVar)) to the standard normal.
func KLDivergence(mean, logVar *Node) *Node {
	terms := Sub(Sub(OnePlus(logVar), Square(mean)), Exp(logVar))
	return MulScalar(ReduceAllMean(terms), -0.5)
}

// forward returns the reconstruction of x, and the parameters of the latent distribution sampled.
func (m *Model) forward(ctx *context.Context, x *Node) (reconstruction, mean, logVar *Node) {
	mean, logVar = m.EncodeDistribution(x)
	std := Exp(MulScalar(logVar, 0.5))
	z := Reparameterize(ctx, mean, std)
	reconstruction = toChannelsFirst(m.codec.Decode(z))
	return
}

// Forward implements model.Model: it reconstructs x from a sample of its latent distribution.
// The output has the same shape as x.
func (m *Model) Forward(ctx *context.Context, x *Node) *Node {
	reconstruction, _, _ := m.forward(ctx, x)
	return reconstruction
}

// Loss implements model.Model: the mean squared reconstruction error plus KLWeight times the KL divergence.
func (m *Model) Loss(ctx *context.Context, x *Node) *Node {
	reconstruction, mean, logVar := m.forward(ctx, x)
	mse := ReduceAllMean(Square(Sub(reconstruction, ConvertDType(x, reconstruction.DType()))))
	if m.config.KLWeight == 0 {
		return mse
	}
	return Add(mse, MulScalar(KLDivergence(mean, logVar), m.config.KLWeight))
}

// EncodeGraph builds the mean of the latent distribution of x, with gradients stopped.
func (m *Model) EncodeGraph(_ *context.Context, x *Node) *Node {
	mean, _ := m.EncodeDistribution(x)
	return StopGradient(mean)
}

// Encode returns the mean of the latent distribution of x, shaped [batch, latentSpace, features, latentLength].
func (m *Model) Encode(x *tensors.Tensor) (*tensors.Tensor, error) {
	return m.Execute("encode", m.EncodeGraph, x)
}

// EncodeArray is like Encode, but returns the values as a Go multidimensional slice of the model's host type,
// e.g. [][][][]float32.
func (m *Model) EncodeArray(x *tensors.Tensor) (any, error) {
	mean, err := m.Encode(x)
	if err != nil {
		return nil, err
	}
	return mean.Value(), nil
}

// Decode the latent z, shaped [batch, latentSpace, features, latentLength], into [batch, features, channels, samples].
func (m *Model) Decode(z *tensors.Tensor) (*tensors.Tensor, error) {
	return m.Execute("decode", func(_ *context.Context, z *Node) *Node {
		return toChannelsFirst(m.codec.Decode(z))
	}, z)
}
