// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package nn holds functional building blocks that take their weights explicitly, as opposed to
// creating variables in a context: convolutions, transposed convolutions and linear projections.
//
// Owners of the weights (see package codec) create the variables once and pass their graph values here.
package nn

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
)

// Linear performs a linear transformation: y = x @ weight^T + bias.
//
// x is shaped [..., in_features], weight [out_features, in_features] and bias, optional (nil means no bias),
// [out_features]. The output is shaped [..., out_features].
func Linear(x, weight, bias *Node) *Node {
	// DotGeneral outputs x's free axes followed by weight's free axis.
	y := DotGeneral(x, []int{x.Rank() - 1}, nil, weight, []int{1}, nil)
	if bias != nil {
		y = addChannelBias(y, bias, y.Rank()-1)
	}
	return y
}

// addChannelBias adds a rank-1 bias to x along channelsAxis, broadcasting over the other axes.
func addChannelBias(x, bias *Node, channelsAxis int) *Node {
	expandedDims := make([]int, x.Rank())
	for ii := range expandedDims {
		expandedDims[ii] = 1
	}
	expandedDims[channelsAxis] = bias.Shape().Dimensions[0]
	return Add(x, Reshape(bias, expandedDims...))
}
