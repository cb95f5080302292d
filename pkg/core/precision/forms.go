// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package precision

import "reflect"

// Numeric is the host-side form of a resolved precision, injected into the dataset section
// of a configuration document.
//
// It serializes back to its symbolic name.
type Numeric Descriptor

// Type returns the Go type for host arrays.
func (n Numeric) Type() reflect.Type { return n.Host }

// String implements fmt.Stringer.
func (n Numeric) String() string { return n.Name }

// MarshalYAML implements yaml.Marshaler.
func (n Numeric) MarshalYAML() (any, error) { return n.Name, nil }

// Tensor is the tensor-side form of a resolved precision, injected into the model section
// of a configuration document.
//
// It serializes back to its symbolic name.
type Tensor Descriptor

// Descriptor returns the underlying Descriptor.
func (t Tensor) Descriptor() Descriptor { return Descriptor(t) }

// String implements fmt.Stringer.
func (t Tensor) String() string { return t.Name }

// MarshalYAML implements yaml.Marshaler.
func (t Tensor) MarshalYAML() (any, error) { return t.Name, nil }
