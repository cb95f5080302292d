// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package codec

import (
	"testing"

	"github.com/gomlx/gomlx/backends/simplego"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseConfig() Config {
	return Config{
		Channels: 1, Length: 10, Extracted: 4, Latent: 2,
		Kernel: 3, Stride: 1, Padding: 1,
		LastActivation: "relu", DType: dtypes.Float32,
	}
}

func TestLengths(t *testing.T) {
	config := baseConfig()
	assert.Equal(t, Lengths{Input: 10, Extracted: 10, Latent: 10}, config.Lengths())
	c, err := New(context.New(), config)
	require.NoError(t, err)
	assert.Nil(t, c.Warning())

	config.Kernel, config.Stride, config.Padding = 5, 2, 0
	lengths := config.Lengths()
	assert.Equal(t, Lengths{Input: 10, Extracted: 3, Latent: 0}, lengths)
	c, err = New(context.New(), config)
	require.NoError(t, err, "suspicious geometries must still be built")
	require.NotNil(t, c.Warning())
	assert.Equal(t, lengths, c.Warning().Lengths)
}

func TestInvalidConfig(t *testing.T) {
	for name, mutate := range map[string]func(c *Config){
		"kernel":     func(c *Config) { c.Kernel = 0 },
		"stride":     func(c *Config) { c.Stride = 0 },
		"padding":    func(c *Config) { c.Padding = -1 },
		"channels":   func(c *Config) { c.Channels = 0 },
		"latent":     func(c *Config) { c.Latent = -2 },
		"activation": func(c *Config) { c.LastActivation = "softplusplus" },
		"dtype":      func(c *Config) { c.DType = dtypes.Int32 },
	} {
		t.Run(name, func(t *testing.T) {
			config := baseConfig()
			mutate(&config)
			_, err := New(context.New(), config)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
		})
	}
}

func TestVariables(t *testing.T) {
	ctx := context.New()
	config := baseConfig()
	config.InnerAxes = 1
	c, err := New(ctx.In("codec"), config)
	require.NoError(t, err)
	vars := c.Variables()
	require.Len(t, vars, 8)
	assert.Equal(t, []int{4, 1, 1, 3}, vars[0].Shape().Dimensions)
	assert.Equal(t, []int{2, 4, 1, 3}, vars[2].Shape().Dimensions)
	assert.Equal(t, []int{2, 4, 1, 3}, vars[4].Shape().Dimensions)
	assert.Equal(t, []int{4, 1, 1, 3}, vars[6].Shape().Dimensions)
	assert.Equal(t, []int{1}, vars[7].Shape().Dimensions)
	assert.Equal(t, "/codec/encoder_1", vars[0].Scope())
	assert.Equal(t, "biases", vars[1].Name())
}

// TestRoundTripShape checks that decoding an encoding restores the input shape for several geometries.
func TestRoundTripShape(t *testing.T) {
	backend, err := simplego.New("")
	require.NoError(t, err)
	for _, geometry := range [][4]int{ // length, kernel, stride, padding
		{16, 3, 1, 1},
		{16, 3, 2, 1},
		{17, 4, 2, 0},
		{30, 5, 3, 2},
		{12, 1, 1, 0},
	} {
		for innerAxes := range 2 {
			config := baseConfig()
			config.Channels = 2
			config.Length, config.Kernel, config.Stride, config.Padding = geometry[0], geometry[1], geometry[2], geometry[3]
			config.InnerAxes = innerAxes
			ctx := context.New()
			c, err := New(ctx, config)
			require.NoError(t, err)
			inputDims := []int{3, 2}
			latentDims := []int{3, 2}
			if innerAxes == 1 {
				inputDims = append(inputDims, 5)
				latentDims = append(latentDims, 5)
			}
			inputDims = append(inputDims, config.Length)
			latentDims = append(latentDims, c.Lengths().Latent)
			require.NoError(t, ctx.InitializeVariables(backend, nil))

			exec, err := context.NewExec(backend, ctx, func(ctx *context.Context, x *Node) (*Node, *Node) {
				z := c.Encode(x)
				return z, c.Decode(z)
			})
			require.NoError(t, err)
			z, reconstruction, err := exec.Exec2(tensors.FromShape(shapes.Make(dtypes.Float32, inputDims...)))
			require.NoError(t, err, "geometry %v, inner axes %d", geometry, innerAxes)
			assert.Equal(t, latentDims, z.Shape().Dimensions, "geometry %v", geometry)
			assert.Equal(t, inputDims, reconstruction.Shape().Dimensions, "geometry %v", geometry)
		}
	}
}
