// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nn

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors/images"
)

// ConvOutputLength is the length of a spatial axis after a strided convolution:
// floor((length - kernel + 2*padding)/stride) + 1.
//
// The division floors toward minus infinity, so configurations that would produce an empty axis
// return a value <= 0.
func ConvOutputLength(length, kernel, stride, padding int) int {
	return floorDiv(length-kernel+2*padding, stride) + 1
}

// ConvTransposeOutputLength is the length of a spatial axis after a transposed convolution:
// (length-1)*stride - 2*padding + kernel + outputPadding.
func ConvTransposeOutputLength(length, kernel, stride, padding, outputPadding int) int {
	return (length-1)*stride - 2*padding + kernel + outputPadding
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Conv applies a strided convolution on a channels-first x, shaped [batch, channels, spatial...].
//
// kernel is shaped [outputChannels, inputChannels, kernelSpatial...] and bias, optional, [outputChannels].
// strides and paddings hold one value per spatial axis; padding is applied symmetrically.
func Conv(x, kernel, bias *Node, strides, paddings []int) *Node {
	numSpatial := x.Rank() - 2
	if len(strides) != numSpatial || len(paddings) != numSpatial {
		exceptions.Panicf("nn.Conv: x has %d spatial axes, but got %d strides and %d paddings",
			numSpatial, len(strides), len(paddings))
	}
	if kernel.Rank() != x.Rank() {
		exceptions.Panicf("nn.Conv: kernel rank (%s) must match x rank (%s)", kernel.Shape(), x.Shape())
	}
	paddingPerDim := make([][2]int, numSpatial)
	for ii, p := range paddings {
		paddingPerDim[ii] = [2]int{p, p}
	}
	output := Convolve(x, kernel).
		ChannelsAxis(images.ChannelsFirst).
		StridePerAxis(strides...).
		PaddingPerDim(paddingPerDim).
		Done()
	if bias != nil {
		output = addChannelBias(output, bias, 1)
	}
	return output
}

// ConvTranspose applies a strided transposed convolution on a channels-first x, shaped [batch, channels, spatial...].
//
// kernel is shaped [inputChannels, outputChannels, kernelSpatial...] and bias, optional, [outputChannels].
// strides, paddings and outputPaddings hold one value per spatial axis. The output length of each spatial axis is
// given by ConvTransposeOutputLength. A negative output padding crops the end of the axis.
//
// It is implemented as a stride 1 convolution over the input dilated by the strides, so it is differentiable
// with respect to both x and kernel.
func ConvTranspose(x, kernel, bias *Node, strides, paddings, outputPaddings []int) *Node {
	numSpatial := x.Rank() - 2
	if len(strides) != numSpatial || len(paddings) != numSpatial || len(outputPaddings) != numSpatial {
		exceptions.Panicf("nn.ConvTranspose: x has %d spatial axes, but got %d strides, %d paddings and %d output paddings",
			numSpatial, len(strides), len(paddings), len(outputPaddings))
	}
	if kernel.Rank() != x.Rank() {
		exceptions.Panicf("nn.ConvTranspose: kernel rank (%s) must match x rank (%s)", kernel.Shape(), x.Shape())
	}

	// Equivalent forward kernel: swap in/out channels and flip the spatial axes.
	fwdKernel := Transpose(kernel, 0, 1)
	for range numSpatial {
		fwdKernel = flipLeadingSpatialAxis(fwdKernel)
	}

	paddingPerDim := make([][2]int, numSpatial)
	for ii := range numSpatial {
		axis := ii + 2
		x = Dilate(x, axis, strides[ii])
		kernelSize := kernel.Shape().Dimensions[axis]
		before := kernelSize - 1 - paddings[ii]
		after := before + outputPaddings[ii]
		if before < 0 {
			x = sliceAxis(x, axis, -before, x.Shape().Dimensions[axis])
			before = 0
		}
		if after < 0 {
			x = cropEnd(x, axis, -after)
			after = 0
		}
		paddingPerDim[ii] = [2]int{before, after}
	}
	output := Convolve(x, fwdKernel).
		ChannelsAxis(images.ChannelsFirst).
		PaddingPerDim(paddingPerDim).
		Done()
	if bias != nil {
		output = addChannelBias(output, bias, 1)
	}
	return output
}

// flipLeadingSpatialAxis reverses axis 2 of x and moves it to the end, by contracting it with an anti-diagonal
// permutation matrix. Applied once per spatial axis it flips all of them and restores their order.
//
// Reverse has no gradient, so it cannot be used on the trainable path.
func flipLeadingSpatialAxis(x *Node) *Node {
	size := x.Shape().Dimensions[2]
	permutation := make([][]float64, size)
	for ii := range permutation {
		permutation[ii] = make([]float64, size)
		permutation[ii][size-1-ii] = 1
	}
	return DotGeneral(x, []int{2}, nil, ConvertDType(Const(x.Graph(), permutation), x.DType()), []int{0}, nil)
}

// Dilate inserts factor-1 zeros between consecutive elements of x along axis.
// An axis of length L becomes (L-1)*factor+1 long.
func Dilate(x *Node, axis, factor int) *Node {
	if factor <= 1 {
		return x
	}
	dims := x.Shape().Dimensions
	length := dims[axis]
	expanded := ExpandAxes(x, axis+1)
	zerosDims := make([]int, 0, len(dims)+1)
	zerosDims = append(zerosDims, dims[:axis+1]...)
	zerosDims = append(zerosDims, factor-1)
	zerosDims = append(zerosDims, dims[axis+1:]...)
	zeros := Zeros(x.Graph(), shapes.Make(x.DType(), zerosDims...))
	interleaved := Concatenate([]*Node{expanded, zeros}, axis+1)
	mergedDims := make([]int, len(dims))
	copy(mergedDims, dims)
	mergedDims[axis] = length * factor
	interleaved = Reshape(interleaved, mergedDims...)
	return sliceAxis(interleaved, axis, 0, (length-1)*factor+1)
}

func cropEnd(x *Node, axis, n int) *Node {
	return sliceAxis(x, axis, 0, x.Shape().Dimensions[axis]-n)
}

func sliceAxis(x *Node, axis, start, end int) *Node {
	specs := make([]SliceAxisSpec, x.Rank())
	for ii := range specs {
		specs[ii] = AxisRange()
	}
	specs[axis] = AxisRange(start, end)
	return Slice(x, specs...)
}
