// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/tsdl/tsdl/pkg/ml/config"
	"gopkg.in/yaml.v3"
)

func newConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration files",
	}
	var output string
	showCmd := &cobra.Command{
		Use:   "show CONFIG",
		Short: "Print the configuration after precision resolution and --set overrides",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadConfig(args[0])
			if err != nil {
				return err
			}
			if output != "" {
				return config.Save(output, doc)
			}
			data, err := yaml.Marshal(doc)
			if err != nil {
				return errors.Wrap(err, "failed to encode configuration")
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), string(data))
			return err
		},
	}
	showCmd.Flags().StringVarP(&output, "output", "o", "", "Write the configuration to this file instead of printing it")
	configCmd.AddCommand(showCmd)
	return configCmd
}
