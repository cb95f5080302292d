// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package all registers every architecture in the model registry.
//
// To use it simply include:
//
//	import _ "github.com/tsdl/tsdl/pkg/ml/models/all"
package all

import (
	_ "github.com/tsdl/tsdl/pkg/ml/models/ae"
	_ "github.com/tsdl/tsdl/pkg/ml/models/vae"
)
