// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package precision maps symbolic precision names ("float16", "float32", ...) to the pair of
// host (Go) numeric type and tensor DType used for a run.
//
// The set of names is fixed: float16, float32, float64 and int8. Unknown names are not an error:
// Resolve returns false and callers leave their configuration unchanged.
package precision

import (
	"reflect"
	"slices"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// Descriptor pairs the host numeric type with the tensor DType for a precision name.
type Descriptor struct {
	// Name is the canonical symbolic name, e.g. "float32".
	Name string

	// Host is the Go type used for arrays in host memory (dataset side).
	Host reflect.Type

	// DType is the tensor dtype used by the model graphs.
	DType dtypes.DType
}

// String implements fmt.Stringer.
func (d Descriptor) String() string { return d.Name }

// IsFloat returns whether the tensor dtype is a floating point type.
func (d Descriptor) IsFloat() bool { return d.DType.IsFloat() }

var registry = map[string]Descriptor{
	"float16": {Name: "float16", Host: reflect.TypeOf(float16.Float16(0)), DType: dtypes.Float16},
	"float32": {Name: "float32", Host: reflect.TypeOf(float32(0)), DType: dtypes.Float32},
	"float64": {Name: "float64", Host: reflect.TypeOf(float64(0)), DType: dtypes.Float64},

	// int8 runs are stored as unsigned bytes.
	"int8": {Name: "int8", Host: reflect.TypeOf(uint8(0)), DType: dtypes.Uint8},
}

// Resolve returns the Descriptor registered under name.
// It returns false for unknown names, and has no side effects.
func Resolve(name string) (Descriptor, bool) {
	d, found := registry[name]
	return d, found
}

// MustResolve is like Resolve, but panics for unknown names.
func MustResolve(name string) Descriptor {
	d, found := Resolve(name)
	if !found {
		panic(errors.Errorf("unknown precision %q, valid values are %q", name, Names()))
	}
	return d
}

// FromDType returns the Descriptor whose tensor dtype is dtype.
func FromDType(dtype dtypes.DType) (Descriptor, bool) {
	for _, d := range registry {
		if d.DType == dtype {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Names returns the sorted list of registered precision names.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
