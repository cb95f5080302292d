// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package model defines the contract implemented by every time-series model, and Base, the shared
// infrastructure that architectures embed: device placement (backend), variables context, training/eval mode,
// optimizer and learning-rate schedule, checkpoints and the optional run writer.
package model

import (
	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/pkg/errors"
	"github.com/tsdl/tsdl/pkg/ml/runlog"
)

// ErrCheckpointLoad is returned (wrapped with details) when a checkpoint can't be restored into a model,
// typically because the stored shapes are incompatible with the architecture.
var ErrCheckpointLoad = errors.New("model: incompatible checkpoint")

// GraphFn builds the computation of a model for the input x, using the variables in ctx.
type GraphFn func(ctx *context.Context, x *Node) *Node

// Model is implemented by all registered architectures.
type Model interface {
	// Kind of the architecture, e.g. "AE" or "VAE". Also used in the run directory.
	Kind() string

	// Backend where the model parameters live. Fixed at construction.
	Backend() backends.Backend

	// Context holds the variables and hyperparameters of the model.
	Context() *context.Context

	// Forward builds the reconstruction of x.
	Forward(ctx *context.Context, x *Node) *Node

	// Loss builds the scalar training loss for the batch x.
	Loss(ctx *context.Context, x *Node) *Node

	// Freeze toggles whether the model parameters are updated by training: Freeze(false) freezes
	// them, Freeze(true) unfreezes them. It is idempotent.
	Freeze(unfreeze bool)

	// NumTrainable returns the number of trainable parameters (scalar elements).
	NumTrainable() int

	// SetTraining switches between training and inference (eval) mode.
	SetTraining(training bool)

	// IsTraining returns the current mode.
	IsTraining() bool

	// Predict executes Forward on x.
	Predict(x *tensors.Tensor) (*tensors.Tensor, error)

	// TrainStep executes one optimizer step on the batch x and returns its loss.
	TrainStep(x *tensors.Tensor) (float64, error)

	// Evaluate returns the loss on the batch x, without updating the parameters.
	Evaluate(x *tensors.Tensor) (float64, error)

	// StepSchedule applies one step of the learning-rate schedule, and returns the new learning rate.
	StepSchedule() (float64, error)

	// Save writes a checkpoint of the model to dir.
	Save(dir string) error

	// Load replaces the model parameters by the ones in the latest checkpoint in dir, and switches to
	// inference mode. Incompatible checkpoints return ErrCheckpointLoad, and leave the model unchanged.
	Load(dir string) error

	// Resume attaches dir as the checkpoint directory of the model, restoring the latest checkpoint
	// (including optimizer state) if there is one.
	Resume(dir string) error

	// Writer returns the run writer: a runlog.Nop if logging is disabled.
	Writer() runlog.Writer

	// Close releases the run writer.
	Close() error
}
