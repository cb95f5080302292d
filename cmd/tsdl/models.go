// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"path"
	"reflect"
	"runtime"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/tsdl/tsdl/pkg/core/precision"
	"github.com/tsdl/tsdl/pkg/ml/registry"
)

func newModelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the registered architectures and the supported precisions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			models := newTable([]string{"Architecture", "Constructor"}, lipgloss.Left)
			for _, name := range registry.Names() {
				constructor, err := registry.Get(name)
				if err != nil {
					return err
				}
				models.row(false, name, constructorName(constructor))
			}
			fmt.Fprintln(cmd.OutOrStdout(), models.Render())

			precisions := newTable([]string{"Precision", "Host type", "DType"}, lipgloss.Left)
			for _, name := range precision.Names() {
				d := precision.MustResolve(name)
				// Parameters must be floats: other precisions only apply to datasets.
				precisions.row(!d.IsFloat(), d.Name, d.Host.String(), d.DType.String())
			}
			fmt.Fprintln(cmd.OutOrStdout(), precisions.Render())
			return nil
		},
	}
}

// constructorName returns the package qualified function name of constructor, e.g. "ae.FromParams".
func constructorName(constructor registry.Constructor) string {
	fn := runtime.FuncForPC(reflect.ValueOf(constructor).Pointer())
	if fn == nil {
		return "?"
	}
	return path.Base(fn.Name())
}
