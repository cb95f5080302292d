// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package model

import (
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/checkpoints"
	"github.com/gomlx/gomlx/pkg/support/fsutil"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Save implements Model. The first Save to a directory attaches it as the checkpoint directory of the model;
// checkpoints already there are kept (up to the configured limit) and numbering continues after them,
// but the model state saved is always the one in memory.
func (b *Base) Save(dir string) error {
	dir, err := fsutil.ReplaceTildeInDir(dir)
	if err != nil {
		return err
	}
	if b.checkpoint == nil || b.checkpoint.Dir() != dir {
		if err := b.attachPreservingState(dir); err != nil {
			return err
		}
	}
	if err := b.checkpoint.Save(); err != nil {
		return errors.WithMessagef(err, "%s: failed to save checkpoint to %q", b.kind, dir)
	}
	klog.Infof("%s: checkpoint saved to %q", b.kind, dir)
	return nil
}

// attachPreservingState attaches a checkpoint handler for dir without letting the checkpoints already there
// overwrite the in-memory variables.
func (b *Base) attachPreservingState(dir string) error {
	current := make(map[*context.Variable]*tensors.Tensor)
	for v := range b.ctx.IterVariables() {
		if !v.HasValue() {
			continue
		}
		value, err := v.Value()
		if err != nil {
			return errors.WithMessagef(err, "%s: reading variable %q", b.kind, v.ScopeAndName())
		}
		clone, err := value.LocalClone()
		if err != nil {
			return errors.WithMessagef(err, "%s: copying variable %q", b.kind, v.ScopeAndName())
		}
		current[v] = clone
	}
	handler, err := b.checkpointConfig(dir).Done()
	if err != nil {
		return errors.WithMessagef(err, "%s: failed to open checkpoint directory %q", b.kind, dir)
	}
	for v, value := range current {
		if err := v.SetValue(value); err != nil {
			return errors.WithMessagef(err, "%s: restoring variable %q", b.kind, v.ScopeAndName())
		}
	}
	b.checkpoint = handler
	return nil
}

func (b *Base) checkpointConfig(dir string) *checkpoints.Config {
	config := checkpoints.Build(b.ctx).Dir(dir)
	if b.keep > 0 {
		config = config.Keep(b.keep)
	}
	return config
}

// Load implements Model.
//
// The checkpoint is first read into a scratch context, and every parameter of the model must be present
// with an identical shape (and dtype); otherwise ErrCheckpointLoad is returned and the model is unchanged.
func (b *Base) Load(dir string) error {
	dir, err := fsutil.ReplaceTildeInDir(dir)
	if err != nil {
		return err
	}
	exists, err := fsutil.FileExists(dir)
	if err != nil {
		return err
	}
	if !exists {
		return errors.Wrapf(ErrCheckpointLoad, "%s: checkpoint directory %q does not exist", b.kind, dir)
	}
	values, found, err := b.readCheckpoint(dir)
	if err != nil {
		return err
	}
	if !found {
		return errors.Wrapf(ErrCheckpointLoad, "%s: no checkpoints in %q", b.kind, dir)
	}
	for ii, v := range b.vars {
		if err := v.SetValue(values[ii]); err != nil {
			return errors.WithMessagef(err, "%s: setting variable %q", b.kind, v.ScopeAndName())
		}
	}
	b.SetTraining(false)
	klog.Infof("%s: loaded %d variables from %q", b.kind, len(b.vars), dir)
	return nil
}

// Resume implements Model.
func (b *Base) Resume(dir string) error {
	dir, err := fsutil.ReplaceTildeInDir(dir)
	if err != nil {
		return err
	}
	exists, err := fsutil.FileExists(dir)
	if err != nil {
		return err
	}
	if exists {
		// Validate before the handler overwrites the variables.
		if _, _, err := b.readCheckpoint(dir); err != nil {
			return err
		}
	}
	handler, err := b.checkpointConfig(dir).Done()
	if err != nil {
		return errors.Wrapf(ErrCheckpointLoad, "%s: resuming from %q: %v", b.kind, dir, err)
	}
	b.checkpoint = handler
	if has, _ := handler.HasCheckpoints(); has {
		klog.Infof("%s: resumed from %q", b.kind, dir)
	}
	return nil
}

// readCheckpoint reads the latest checkpoint in dir into a scratch context, and returns the values of the
// model parameters, in the same order as b.vars. found is false if dir holds no checkpoints.
func (b *Base) readCheckpoint(dir string) (values []*tensors.Tensor, found bool, err error) {
	scratch := context.New()
	handler, err := checkpoints.Build(scratch).Dir(dir).Immediate().Done()
	if err != nil {
		return nil, false, errors.Wrapf(ErrCheckpointLoad, "%s: reading %q: %v", b.kind, dir, err)
	}
	found, err = handler.HasCheckpoints()
	if err != nil || !found {
		return nil, false, err
	}
	values = make([]*tensors.Tensor, len(b.vars))
	for ii, v := range b.vars {
		stored := scratch.GetVariableByScopeAndName(v.Scope(), v.Name())
		if stored == nil {
			return nil, true, errors.Wrapf(ErrCheckpointLoad, "%s: variable %q missing in checkpoint %q",
				b.kind, v.ScopeAndName(), dir)
		}
		if !stored.Shape().Equal(v.Shape()) {
			return nil, true, errors.Wrapf(ErrCheckpointLoad, "%s: variable %q has shape %s in checkpoint %q, model expects %s",
				b.kind, v.ScopeAndName(), stored.Shape(), dir, v.Shape())
		}
		values[ii], err = stored.Value()
		if err != nil {
			return nil, true, errors.WithMessagef(err, "%s: reading variable %q from %q", b.kind, v.ScopeAndName(), dir)
		}
	}
	return values, true, nil
}
