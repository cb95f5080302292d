// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package model

import (
	"time"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/checkpoints"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/pkg/errors"
	"github.com/tsdl/tsdl/pkg/ml/runlog"
	"k8s.io/klog/v2"
)

// DefaultKeepCheckpoints is the number of checkpoints kept in a directory by Save.
const DefaultKeepCheckpoints = 3

// Base implements the parts of Model shared by all architectures. Architectures embed it,
// create their variables in Context(), and then call Bind with their Forward and Loss functions.
type Base struct {
	kind     string
	backend  backends.Backend
	ctx      *context.Context
	writer   runlog.Writer
	training bool

	optimizerConfig OptimizerConfig
	optimizer       optimizers.Interface

	// vars are the parameters of the model: the ones frozen, counted and checkpoint-validated.
	vars []*context.Variable

	forward, loss GraphFn

	trainExec, evalExec *context.Exec
	execs               map[string]*context.Exec

	checkpoint *checkpoints.Handler
	keep       int
}

// NewBase creates the shared infrastructure of a model of the given kind, placed on backend.
// A nil writer is replaced by runlog.Nop.
func NewBase(kind string, backend backends.Backend, optimizerConfig OptimizerConfig, writer runlog.Writer) *Base {
	if writer == nil {
		writer = runlog.Nop{}
	}
	return &Base{
		kind:            kind,
		backend:         backend,
		ctx:             context.New(),
		writer:          writer,
		training:        true,
		optimizerConfig: optimizerConfig,
		optimizer:       optimizerConfig.Build(),
		keep:            DefaultKeepCheckpoints,
	}
}

// Bind registers the model parameters and graph functions, and initializes the parameters.
// It must be called once, after the architecture created its variables.
func (b *Base) Bind(vars []*context.Variable, forward, loss GraphFn) error {
	if forward == nil || loss == nil {
		return errors.Errorf("%s: forward and loss functions must be given", b.kind)
	}
	b.vars = vars
	b.forward = forward
	b.loss = loss
	if err := b.ctx.InitializeVariables(b.backend, nil); err != nil {
		return errors.WithMessagef(err, "%s: failed to initialize variables", b.kind)
	}
	return nil
}

// Kind implements Model.
func (b *Base) Kind() string { return b.kind }

// Backend implements Model.
func (b *Base) Backend() backends.Backend { return b.backend }

// Context implements Model.
func (b *Base) Context() *context.Context { return b.ctx }

// Writer implements Model.
func (b *Base) Writer() runlog.Writer { return b.writer }

// SetWriter replaces the run writer. A nil writer is replaced by runlog.Nop.
func (b *Base) SetWriter(writer runlog.Writer) {
	if writer == nil {
		writer = runlog.Nop{}
	}
	b.writer = writer
}

// Variables returns the parameters of the model, in creation order.
func (b *Base) Variables() []*context.Variable { return b.vars }

// SetKeepCheckpoints sets how many checkpoints Save keeps in a directory. Values <= 0 keep all.
func (b *Base) SetKeepCheckpoints(n int) { b.keep = n }

// SetTraining implements Model.
func (b *Base) SetTraining(training bool) {
	if b.training != training {
		b.execs = nil
	}
	b.training = training
}

// IsTraining implements Model.
func (b *Base) IsTraining() bool { return b.training }

// Freeze implements Model.
func (b *Base) Freeze(unfreeze bool) {
	for _, v := range b.vars {
		v.SetTrainable(unfreeze)
	}
	// The set of trained variables is fixed in a compiled training graph.
	b.trainExec = nil
}

// NumTrainable implements Model.
func (b *Base) NumTrainable() int {
	var count int
	for _, v := range b.vars {
		if v.Trainable {
			count += v.Shape().Size()
		}
	}
	return count
}

// NumParameters returns the total number of parameters (scalar elements), trainable or not.
func (b *Base) NumParameters() int {
	var count int
	for _, v := range b.vars {
		count += v.Shape().Size()
	}
	return count
}

// Predict implements Model.
func (b *Base) Predict(x *tensors.Tensor) (*tensors.Tensor, error) {
	return b.Execute("predict", b.forward, x)
}

// Execute runs fn on x, in the current mode. The compiled executor is cached under name, so an
// architecture calls it with a fixed fn per name (e.g. "encode").
func (b *Base) Execute(name string, fn GraphFn, x *tensors.Tensor) (output *tensors.Tensor, err error) {
	exec, found := b.execs[name]
	if !found {
		training := b.training
		exec, err = context.NewExec(b.backend, b.ctx, func(ctx *context.Context, x *Node) *Node {
			ctx.SetTraining(x.Graph(), training)
			return fn(ctx, x)
		})
		if err != nil {
			return nil, errors.WithMessagef(err, "%s: failed to create %s executor", b.kind, name)
		}
		if b.execs == nil {
			b.execs = make(map[string]*context.Exec)
		}
		b.execs[name] = exec
		klog.V(1).Infof("%s: created %s executor", b.kind, name)
	}
	var execErr error
	err = exceptions.TryCatch[error](func() {
		output, execErr = exec.Exec1(x)
	})
	if err == nil {
		err = execErr
	}
	return output, errors.WithMessagef(err, "%s: %s", b.kind, name)
}

// TrainStep implements Model.
func (b *Base) TrainStep(x *tensors.Tensor) (loss float64, err error) {
	if b.trainExec == nil {
		b.trainExec, err = context.NewExec(b.backend, b.ctx.Checked(false), func(ctx *context.Context, x *Node) *Node {
			g := x.Graph()
			ctx.SetTraining(g, true)
			lossNode := b.loss(ctx, x)
			b.optimizer.UpdateGraph(ctx, g, lossNode)
			return lossNode
		})
		if err != nil {
			return 0, errors.WithMessagef(err, "%s: failed to create training executor", b.kind)
		}
	}
	loss, err = b.execLoss(b.trainExec, x)
	if err != nil {
		return 0, errors.WithMessagef(err, "%s: train step", b.kind)
	}
	b.writer.Add(runlog.Point{
		MetricName: "Train: loss",
		MetricType: "loss",
		Step:       optimizers.GetGlobalStep(b.ctx),
		Value:      loss,
		Time:       time.Now(),
	})
	return loss, nil
}

// Evaluate implements Model.
func (b *Base) Evaluate(x *tensors.Tensor) (loss float64, err error) {
	if b.evalExec == nil {
		b.evalExec, err = context.NewExec(b.backend, b.ctx, func(ctx *context.Context, x *Node) *Node {
			ctx.SetTraining(x.Graph(), false)
			return b.loss(ctx, x)
		})
		if err != nil {
			return 0, errors.WithMessagef(err, "%s: failed to create evaluation executor", b.kind)
		}
	}
	loss, err = b.execLoss(b.evalExec, x)
	return loss, errors.WithMessagef(err, "%s: evaluate", b.kind)
}

func (b *Base) execLoss(exec *context.Exec, x *tensors.Tensor) (loss float64, err error) {
	var lossT *tensors.Tensor
	var execErr error
	err = exceptions.TryCatch[error](func() {
		lossT, execErr = exec.Exec1(x)
	})
	if err == nil {
		err = execErr
	}
	if err != nil {
		return 0, err
	}
	return shapes.ConvertTo[float64](lossT.Value()), nil
}

// Close implements Model. It closes the run writer.
func (b *Base) Close() error {
	if err := b.writer.Close(); err != nil {
		return errors.WithMessagef(err, "%s: failed to close run writer", b.kind)
	}
	klog.V(1).Infof("%s: closed", b.kind)
	return nil
}
