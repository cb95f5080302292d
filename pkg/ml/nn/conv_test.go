// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nn_test

import (
	"testing"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/backends/simplego"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsdl/tsdl/pkg/ml/nn"
)

func newBackend(t *testing.T) backends.Backend {
	backend, err := simplego.New("")
	require.NoError(t, err)
	t.Cleanup(backend.Finalize)
	return backend
}

func TestOutputLengths(t *testing.T) {
	assert.Equal(t, 10, nn.ConvOutputLength(10, 3, 1, 1))
	assert.Equal(t, 3, nn.ConvOutputLength(10, 5, 2, 0))
	assert.Equal(t, 0, nn.ConvOutputLength(3, 5, 2, 0))
	assert.Equal(t, -1, nn.ConvOutputLength(1, 5, 2, 0))
	assert.Equal(t, 12, nn.ConvOutputLength(10, 1, 1, 1))

	assert.Equal(t, 10, nn.ConvTransposeOutputLength(10, 3, 1, 1, 0))
	assert.Equal(t, 9, nn.ConvTransposeOutputLength(3, 5, 2, 0, 0))
	assert.Equal(t, 10, nn.ConvTransposeOutputLength(3, 5, 2, 0, 1))
}

func TestDilate(t *testing.T) {
	backend := newBackend(t)
	got := CallOnce(backend, func(g *Graph) *Node {
		x := Const(g, [][]float32{{1, 2, 3}})
		return nn.Dilate(x, 1, 3)
	})
	assert.Equal(t, [][]float32{{1, 0, 0, 2, 0, 0, 3}}, got.Value())
}

func TestConv(t *testing.T) {
	backend := newBackend(t)
	got := CallOnce(backend, func(g *Graph) *Node {
		x := Const(g, [][][]float32{{{1, 2, 3, 4}}})
		kernel := Const(g, [][][]float32{{{1, 1}}})
		bias := Const(g, []float32{0.5})
		return nn.Conv(x, kernel, bias, []int{2}, []int{0})
	})
	assert.Equal(t, [][][]float32{{{3.5, 7.5}}}, got.Value())
}

func TestConvTranspose(t *testing.T) {
	backend := newBackend(t)
	got := CallOnce(backend, func(g *Graph) *Node {
		x := Const(g, [][][]float32{{{1, 2}}})
		kernel := Const(g, [][][]float32{{{1, 2}}})
		return nn.ConvTranspose(x, kernel, nil, []int{2}, []int{0}, []int{0})
	})
	assert.Equal(t, [][][]float32{{{1, 2, 2, 4}}}, got.Value())

	// Output padding and cropping.
	got = CallOnce(backend, func(g *Graph) *Node {
		x := Const(g, [][][]float32{{{1, 2}}})
		kernel := Const(g, [][][]float32{{{1, 2}}})
		return nn.ConvTranspose(x, kernel, nil, []int{2}, []int{0}, []int{1})
	})
	assert.Equal(t, []int{1, 1, 5}, got.Shape().Dimensions)
	got = CallOnce(backend, func(g *Graph) *Node {
		x := Const(g, [][][]float32{{{1, 2}}})
		kernel := Const(g, [][][]float32{{{1, 2}}})
		return nn.ConvTranspose(x, kernel, nil, []int{2}, []int{0}, []int{-1})
	})
	assert.Equal(t, [][][]float32{{{1, 2, 2}}}, got.Value())

	// Kernel longer than the stride: overlapping contributions add up.
	got = CallOnce(backend, func(g *Graph) *Node {
		x := Const(g, [][][]float32{{{1, 2}}})
		kernel := Const(g, [][][]float32{{{1, 2, 3}}})
		return nn.ConvTranspose(x, kernel, nil, []int{2}, []int{0}, []int{0})
	})
	assert.Equal(t, [][][]float32{{{1, 2, 5, 4, 6}}}, got.Value())

	// Same with a leading spatial axis of length 1, as used by the codecs.
	got = CallOnce(backend, func(g *Graph) *Node {
		x := Const(g, [][][][]float32{{{{1, 2}}}})
		kernel := Const(g, [][][][]float32{{{{1, 2, 3}}}})
		return nn.ConvTranspose(x, kernel, nil, []int{1, 2}, []int{0, 0}, []int{0, 0})
	})
	assert.Equal(t, [][][][]float32{{{{1, 2, 5, 4, 6}}}}, got.Value())

	// Channels: kernel is [input, output, k].
	got = CallOnce(backend, func(g *Graph) *Node {
		x := Const(g, [][][]float32{{{1}, {10}}})
		kernel := Const(g, [][][]float32{{{1, 2}, {3, 4}, {5, 6}}, {{0, 1}, {0, 0}, {1, 0}}})
		return nn.ConvTranspose(x, kernel, nil, []int{1}, []int{0}, []int{0})
	})
	assert.Equal(t, [][][]float32{{{1, 12}, {3, 4}, {15, 6}}}, got.Value())
}

func TestConvTransposeRestoresLength(t *testing.T) {
	backend := newBackend(t)
	for _, geometry := range [][3]int{{3, 1, 1}, {5, 2, 0}, {4, 3, 2}, {1, 1, 1}, {2, 2, 0}} {
		kernelSize, stride, padding := geometry[0], geometry[1], geometry[2]
		const length = 17
		convLength := nn.ConvOutputLength(length, kernelSize, stride, padding)
		outputPadding := length - nn.ConvTransposeOutputLength(convLength, kernelSize, stride, padding, 0)
		got := CallOnce(backend, func(g *Graph) *Node {
			x := Ones(g, shapes.Make(dtypes.Float32, 2, 3, length))
			kernel := Ones(g, shapes.Make(dtypes.Float32, 4, 3, kernelSize))
			y := nn.Conv(x, kernel, nil, []int{stride}, []int{padding})
			back := Ones(g, shapes.Make(dtypes.Float32, 4, 3, kernelSize))
			return nn.ConvTranspose(y, back, nil, []int{stride}, []int{padding}, []int{outputPadding})
		})
		assert.Equalf(t, []int{2, 3, length}, got.Shape().Dimensions, "kernel=%d, stride=%d, padding=%d",
			kernelSize, stride, padding)
	}
}

func TestConvTransposeGradient(t *testing.T) {
	backend := newBackend(t)
	got := CallOnce(backend, func(g *Graph) *Node {
		x := Const(g, [][][]float32{{{1, 2}}})
		kernel := Const(g, [][][]float32{{{1, 2}}})
		y := nn.ConvTranspose(x, kernel, nil, []int{2}, []int{0}, []int{0})
		return Gradient(ReduceAllSum(y), x)[0]
	})
	assert.Equal(t, [][][]float32{{{3, 3}}}, got.Value())

	// With respect to the kernel: output[0] only depends on x[0]*kernel[0].
	got = CallOnce(backend, func(g *Graph) *Node {
		x := Const(g, [][][]float32{{{1, 2}}})
		kernel := Const(g, [][][]float32{{{1, 2, 3}}})
		y := nn.ConvTranspose(x, kernel, nil, []int{2}, []int{0}, []int{0})
		first := Slice(y, AxisRange(), AxisRange(), AxisRange(0, 1))
		return Gradient(ReduceAllSum(first), kernel)[0]
	})
	assert.Equal(t, [][][]float32{{{1, 0, 0}}}, got.Value())

	got = CallOnce(backend, func(g *Graph) *Node {
		x := Const(g, [][][][]float32{{{{1, 2}}}})
		kernel := Const(g, [][][][]float32{{{{1, 2, 3}}}})
		y := nn.ConvTranspose(x, kernel, nil, []int{1, 2}, []int{0, 0}, []int{0, 0})
		return Gradient(ReduceAllSum(y), kernel)[0]
	})
	assert.Equal(t, [][][][]float32{{{{3, 3, 3}}}}, got.Value())
}

func TestLinear(t *testing.T) {
	backend := newBackend(t)
	got := CallOnce(backend, func(g *Graph) *Node {
		x := Const(g, [][]float32{{1, 2}})
		weight := Const(g, [][]float32{{1, 0}, {0, 1}, {1, 1}})
		bias := Const(g, []float32{0, 0, 1})
		return nn.Linear(x, weight, bias)
	})
	assert.Equal(t, [][]float32{{1, 2, 4}}, got.Value())

	// Leading axes are kept.
	got = CallOnce(backend, func(g *Graph) *Node {
		x := Const(g, [][][]float32{{{1, 2}}, {{0, 1}}})
		weight := Const(g, [][]float32{{1, 0}, {0, 1}, {1, 1}})
		return nn.Linear(x, weight, nil)
	})
	assert.Equal(t, [][][]float32{{{1, 2, 3}}, {{0, 1, 1}}}, got.Value())

	got = CallOnce(backend, func(g *Graph) *Node {
		x := Const(g, [][]float32{{1, 2}, {3, 4}})
		weight := Const(g, [][]float32{{1, 0}, {0, 1}, {1, 1}})
		bias := Const(g, []float32{0, 0, 1})
		return Gradient(ReduceAllSum(nn.Linear(x, weight, bias)), weight)[0]
	})
	assert.Equal(t, [][]float32{{4, 6}, {4, 6}, {4, 6}}, got.Value())
}
