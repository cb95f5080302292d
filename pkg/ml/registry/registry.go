// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package registry maps architecture names to model constructors.
//
// Architectures register themselves in their package init(), so a program must import them (usually
// with a blank import of pkg/ml/models/all) before resolving names read from a configuration file.
//
// The package functions operate on Default.
package registry

import (
	"slices"
	"sync"

	"github.com/gomlx/gomlx/backends"
	"github.com/pkg/errors"
	"github.com/tsdl/tsdl/pkg/ml/model"
	"k8s.io/klog/v2"
)

// ErrModelNotRegistered is returned (wrapped with the requested name) when a name has no constructor.
var ErrModelNotRegistered = errors.New("model not registered")

// Constructor builds a model on the given backend from the keyword parameters of the
// configuration "model" section. params may be nil, in which case defaults are used.
type Constructor func(backend backends.Backend, params map[string]any) (model.Model, error)

// Registry is a concurrency safe map of architecture names to constructors.
// The zero value is ready to use.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// Default is the process-wide registry used by the package functions.
var Default = &Registry{}

// Register constructor under name. An existing entry is overwritten.
func (r *Registry) Register(name string, constructor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.constructors == nil {
		r.constructors = make(map[string]Constructor)
	}
	if _, found := r.constructors[name]; found {
		klog.V(1).Infof("registry: replacing constructor for model %q", name)
	}
	r.constructors[name] = constructor
}

// Get returns the constructor registered under name.
func (r *Registry) Get(name string) (Constructor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	constructor, found := r.constructors[name]
	if !found {
		return nil, errors.Wrapf(ErrModelNotRegistered, "model %q (registered: %v)", name, r.namesLocked())
	}
	return constructor, nil
}

// MustGet is like Get, but panics if name is not registered.
func (r *Registry) MustGet(name string) Constructor {
	constructor, err := r.Get(name)
	if err != nil {
		panic(err)
	}
	return constructor
}

// New builds the model registered under name.
func (r *Registry) New(name string, backend backends.Backend, params map[string]any) (model.Model, error) {
	constructor, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	m, err := constructor(backend, params)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to build model %q", name)
	}
	return m, nil
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Register constructor under name in the Default registry.
func Register(name string, constructor Constructor) { Default.Register(name, constructor) }

// Get the constructor for name from the Default registry.
func Get(name string) (Constructor, error) { return Default.Get(name) }

// MustGet the constructor for name from the Default registry, or panic.
func MustGet(name string) Constructor { return Default.MustGet(name) }

// New builds the model registered under name in the Default registry.
func New(name string, backend backends.Backend, params map[string]any) (model.Model, error) {
	return Default.New(name, backend, params)
}

// Names returns the sorted names in the Default registry.
func Names() []string { return Default.Names() }
