// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package model

import (
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// OptimizerConfig holds the hyperparameters of the adaptive-moment optimizer with weight decay (AdamW),
// and of its exponential learning-rate decay.
type OptimizerConfig struct {
	// LearningRate is the initial learning rate.
	LearningRate float64

	// Decay is the factor applied to the learning rate at each schedule step.
	Decay float64

	// Betas are the moving average coefficients of the first and second moments.
	Betas [2]float64

	// WeightDecay is the decoupled weight decay.
	WeightDecay float64

	// DType of the optimizer computations and learning rate variable. Usually the model's dtype.
	DType dtypes.DType
}

// DefaultOptimizerConfig returns the default hyperparameters.
func DefaultOptimizerConfig() OptimizerConfig {
	return OptimizerConfig{
		LearningRate: 1e-3,
		Decay:        0.9,
		Betas:        [2]float64{0.9, 0.999},
		WeightDecay:  0.01,
		DType:        dtypes.Float32,
	}
}

// Validate checks the hyperparameters are usable.
func (c OptimizerConfig) Validate() error {
	if c.LearningRate <= 0 {
		return errors.Errorf("learning rate must be > 0, got %g", c.LearningRate)
	}
	if c.Decay <= 0 || c.Decay > 1 {
		return errors.Errorf("learning rate decay must be in (0, 1], got %g", c.Decay)
	}
	for _, beta := range c.Betas {
		if beta < 0 || beta >= 1 {
			return errors.Errorf("adam betas must be in [0, 1), got %v", c.Betas)
		}
	}
	if c.WeightDecay < 0 {
		return errors.Errorf("weight decay must be >= 0, got %g", c.WeightDecay)
	}
	return nil
}

// Build returns the optimizer.
func (c OptimizerConfig) Build() optimizers.Interface {
	return optimizers.Adam().
		LearningRate(c.LearningRate).
		Betas(c.Betas[0], c.Betas[1]).
		WeightDecay(c.WeightDecay).
		DType(c.dtype()).
		Done()
}

func (c OptimizerConfig) dtype() dtypes.DType {
	if c.DType == dtypes.InvalidDType {
		return dtypes.Float32
	}
	return c.DType
}

// LearningRate returns the current learning rate.
func (b *Base) LearningRate() float64 {
	lrVar := optimizers.LearningRateVar(b.ctx, b.optimizerConfig.dtype(), b.optimizerConfig.LearningRate)
	return shapes.ConvertTo[float64](lrVar.MustValue().Value())
}

// StepSchedule implements Model: it multiplies the learning rate by the decay factor.
// It is called by the training loop once per schedule step (typically each epoch).
func (b *Base) StepSchedule() (float64, error) {
	dtype := b.optimizerConfig.dtype()
	lrVar := optimizers.LearningRateVar(b.ctx, dtype, b.optimizerConfig.LearningRate)
	current, err := lrVar.Value()
	if err != nil {
		return 0, errors.WithMessagef(err, "%s: reading learning rate", b.kind)
	}
	lr := shapes.ConvertTo[float64](current.Value()) * b.optimizerConfig.Decay
	if err := lrVar.SetValue(tensors.FromAnyValue(shapes.CastAsDType(lr, dtype))); err != nil {
		return 0, errors.WithMessagef(err, "%s: updating learning rate", b.kind)
	}
	klog.V(1).Infof("%s: learning rate decayed to %g", b.kind, lr)
	return lr, nil
}
