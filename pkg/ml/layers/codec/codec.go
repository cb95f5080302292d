// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package codec implements the two-stage convolutional encoder and its mirrored transposed-convolution decoder
// shared by the autoencoder architectures.
//
// Inputs are channels-first: [batch, channels, inner..., length], where the "inner" axes (zero or more) are
// carried through with a kernel size of 1, and the last axis is the time (sample) axis that is strided.
//
// The encoder is conv(channels->extracted)+ReLU, conv(extracted->latent)+ReLU. The decoder is
// convTranspose(latent->extracted)+ReLU, convTranspose(extracted->channels)+last activation, with the
// output paddings chosen so that Decode(Encode(x)) has the same length as x.
package codec

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/pkg/errors"
	"github.com/tsdl/tsdl/pkg/ml/nn"
	"k8s.io/klog/v2"
)

// ErrInvalidConfig is returned (wrapped with details) when the geometry of a codec can't be built.
var ErrInvalidConfig = errors.New("codec: invalid configuration")

// Config of a Codec.
type Config struct {
	// Channels of the input (and of the reconstruction).
	Channels int

	// Length of the time axis of the input.
	Length int

	// Extracted is the number of channels after the first encoder stage.
	Extracted int

	// Latent is the number of channels of the latent representation.
	Latent int

	// Kernel, Stride and Padding of all convolutions, along the time axis.
	Kernel, Stride, Padding int

	// InnerAxes is the number of axes between the channels and the time axis. They use a kernel of size 1.
	InnerAxes int

	// LastActivation applied to the reconstruction, e.g. "relu", "sigmoid" or "none".
	LastActivation string

	// DType of the variables.
	DType dtypes.DType
}

// Lengths of the time axis at each stage of the encoder.
type Lengths struct {
	Input, Extracted, Latent int
}

// Lengths returns the length of the time axis after each encoder stage:
// L1 = floor((L-k+2p)/s)+1 and L2 = floor((L1-k+2p)/s)+1.
func (c Config) Lengths() Lengths {
	ef := nn.ConvOutputLength(c.Length, c.Kernel, c.Stride, c.Padding)
	return Lengths{
		Input:     c.Length,
		Extracted: ef,
		Latent:    nn.ConvOutputLength(ef, c.Kernel, c.Stride, c.Padding),
	}
}

// Validate the configuration: only geometries that can't produce any tensor are rejected.
func (c Config) Validate() error {
	for _, count := range []struct {
		name  string
		value int
	}{
		{"channels", c.Channels}, {"sequence length", c.Length}, {"extracted features", c.Extracted},
		{"latent space", c.Latent}, {"kernel size", c.Kernel}, {"stride", c.Stride},
	} {
		if count.value < 1 {
			return errors.Wrapf(ErrInvalidConfig, "%s must be >= 1, got %d", count.name, count.value)
		}
	}
	if c.Padding < 0 {
		return errors.Wrapf(ErrInvalidConfig, "padding must be >= 0, got %d", c.Padding)
	}
	if c.InnerAxes < 0 {
		return errors.Wrapf(ErrInvalidConfig, "inner axes must be >= 0, got %d", c.InnerAxes)
	}
	if !c.DType.IsFloat() {
		return errors.Wrapf(ErrInvalidConfig, "variables dtype must be a float, got %s", c.DType)
	}
	if _, err := parseActivation(c.LastActivation); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "%v", err)
	}
	return nil
}

func parseActivation(name string) (activations.Type, error) {
	if name == "" || strings.EqualFold(name, "none") {
		return activations.TypeNone, nil
	}
	activation, err := activations.TypeString(name)
	if err != nil {
		return activations.TypeNone, errors.Errorf("unknown activation %q, options are %v", name, activations.TypeValues())
	}
	return activation, nil
}

// ShapeWarning describes a suspicious (but buildable) geometry: the latent time axis is longer than the
// one after the first stage, which usually means the kernel/stride/padding don't compress the sequence.
type ShapeWarning struct {
	Lengths Lengths
}

// Error implements error.
func (w *ShapeWarning) Error() string {
	return fmt.Sprintf("length after the first encoder stage (%d) is greater than the latent length (%d)",
		w.Lengths.Extracted, w.Lengths.Latent)
}

// Stage holds the variables of one convolution.
type Stage struct {
	Kernel, Bias *context.Variable
}

// Codec holds the variables of the encoder and decoder, and builds their graphs.
type Codec struct {
	config         Config
	lengths        Lengths
	lastActivation activations.Type
	warning        *ShapeWarning

	Encoder1, Encoder2, Decoder1, Decoder2 Stage

	// outputPaddings of Decoder1 and Decoder2 along the time axis.
	outputPaddings [2]int
}

// New validates the config and creates the codec variables in ctx (under its current scope).
// Suspicious geometries are logged with klog.Warningf and reported by Codec.Warning.
func New(ctx *context.Context, config Config) (*Codec, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	lastActivation, _ := parseActivation(config.LastActivation)
	c := &Codec{
		config:         config,
		lengths:        config.Lengths(),
		lastActivation: lastActivation,
	}
	if c.lengths.Extracted > c.lengths.Latent {
		c.warning = &ShapeWarning{Lengths: c.lengths}
		klog.Warningf("codec: %v (kernel=%d, stride=%d, padding=%d, length=%d)",
			c.warning, config.Kernel, config.Stride, config.Padding, config.Length)
	}
	k, s, p := config.Kernel, config.Stride, config.Padding
	c.outputPaddings[0] = c.lengths.Extracted - nn.ConvTransposeOutputLength(c.lengths.Latent, k, s, p, 0)
	c.outputPaddings[1] = c.lengths.Input - nn.ConvTransposeOutputLength(c.lengths.Extracted, k, s, p, 0)

	c.Encoder1 = c.newStage(ctx.In("encoder_1"), config.Extracted, config.Channels, config.Extracted)
	c.Encoder2 = c.newStage(ctx.In("encoder_2"), config.Latent, config.Extracted, config.Latent)
	c.Decoder1 = c.newStage(ctx.In("decoder_1"), config.Latent, config.Extracted, config.Extracted)
	c.Decoder2 = c.newStage(ctx.In("decoder_2"), config.Extracted, config.Channels, config.Channels)
	return c, nil
}

// newStage creates a kernel shaped [dim0, dim1, 1 (per inner axis)..., kernel] and a zero initialized bias.
func (c *Codec) newStage(ctx *context.Context, dim0, dim1, biasDim int) Stage {
	kernelDims := []int{dim0, dim1}
	for range c.config.InnerAxes {
		kernelDims = append(kernelDims, 1)
	}
	kernelDims = append(kernelDims, c.config.Kernel)
	zeros := func(g *Graph, shape shapes.Shape) *Node { return Zeros(g, shape) }
	return Stage{
		Kernel: ctx.VariableWithShape("weights", shapes.Make(c.config.DType, kernelDims...)),
		Bias:   ctx.WithInitializer(zeros).VariableWithShape("biases", shapes.Make(c.config.DType, biasDim)),
	}
}

// Config returns the configuration of the codec.
func (c *Codec) Config() Config { return c.config }

// Lengths returns the length of the time axis at each stage.
func (c *Codec) Lengths() Lengths { return c.lengths }

// Warning returns the suspicious geometry warning, or nil.
func (c *Codec) Warning() *ShapeWarning { return c.warning }

// Variables of the codec, in encoder to decoder order.
func (c *Codec) Variables() []*context.Variable {
	return []*context.Variable{
		c.Encoder1.Kernel, c.Encoder1.Bias, c.Encoder2.Kernel, c.Encoder2.Bias,
		c.Decoder1.Kernel, c.Decoder1.Bias, c.Decoder2.Kernel, c.Decoder2.Bias,
	}
}

// perAxis returns the values for the inner axes (innerValue each) followed by the one for the time axis.
func (c *Codec) perAxis(innerValue, timeValue int) []int {
	values := slices.Repeat([]int{innerValue}, c.config.InnerAxes)
	return append(values, timeValue)
}

func (c *Codec) checkInput(x *Node, channels int, name string) {
	if x.Rank() != c.config.InnerAxes+3 {
		exceptions.Panicf("codec.%s: expected input of rank %d ([batch, channels, inner..., length]), got %s",
			name, c.config.InnerAxes+3, x.Shape())
	}
	if x.Shape().Dim(1) != channels {
		exceptions.Panicf("codec.%s: expected %d channels on axis 1, got %s", name, channels, x.Shape())
	}
}

// Encode x shaped [batch, channels, inner..., length] into [batch, latent, inner..., latentLength].
// The input is converted to the dtype of the variables.
func (c *Codec) Encode(x *Node) *Node {
	c.checkInput(x, c.config.Channels, "Encode")
	g := x.Graph()
	x = ConvertDType(x, c.config.DType)
	strides := c.perAxis(1, c.config.Stride)
	paddings := c.perAxis(0, c.config.Padding)
	x = activations.Relu(nn.Conv(x, c.Encoder1.Kernel.ValueGraph(g), c.Encoder1.Bias.ValueGraph(g), strides, paddings))
	x = activations.Relu(nn.Conv(x, c.Encoder2.Kernel.ValueGraph(g), c.Encoder2.Bias.ValueGraph(g), strides, paddings))
	return x
}

// Decode the latent z shaped [batch, latent, inner..., latentLength] back to [batch, channels, inner..., length].
func (c *Codec) Decode(z *Node) *Node {
	c.checkInput(z, c.config.Latent, "Decode")
	g := z.Graph()
	z = ConvertDType(z, c.config.DType)
	strides := c.perAxis(1, c.config.Stride)
	paddings := c.perAxis(0, c.config.Padding)
	z = activations.Relu(nn.ConvTranspose(z, c.Decoder1.Kernel.ValueGraph(g), c.Decoder1.Bias.ValueGraph(g),
		strides, paddings, c.perAxis(0, c.outputPaddings[0])))
	z = nn.ConvTranspose(z, c.Decoder2.Kernel.ValueGraph(g), c.Decoder2.Bias.ValueGraph(g),
		strides, paddings, c.perAxis(0, c.outputPaddings[1]))
	return activations.Apply(c.lastActivation, z)
}
