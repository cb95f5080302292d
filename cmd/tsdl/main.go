// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// tsdl builds, trains and inspects the time-series models described by a YAML configuration file.
//
// Usage:
//
//	tsdl models
//	tsdl config show config.yaml --set="model.kernel_size=5"
//	tsdl train config.yaml --steps=200 --checkpoint=~/work/ae
//	tsdl encode config.yaml --checkpoint=~/work/ae
//	tsdl runs runs/mytag/AE/19102026_150405
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gomlx/gomlx/backends"
	_ "github.com/gomlx/gomlx/backends/default"
	"github.com/spf13/cobra"
	"github.com/tsdl/tsdl/pkg/ml/config"
	_ "github.com/tsdl/tsdl/pkg/ml/models/all"
	"k8s.io/klog/v2"
)

var (
	flagBackend  string
	flagSettings string
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %+v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "tsdl",
		Short:         "Time-series deep learning models",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	klogFlags := flag.NewFlagSet("klog", flag.ExitOnError)
	klog.InitFlags(klogFlags)
	rootCmd.PersistentFlags().AddGoFlagSet(klogFlags)
	rootCmd.PersistentFlags().StringVar(&flagBackend, "backend", "",
		fmt.Sprintf("Backend configuration, e.g. \"go\" or \"xla:cuda\". Defaults to $%s or the first available.", backends.GOMLX_BACKEND))
	rootCmd.PersistentFlags().StringVar(&flagSettings, "set", "",
		`Configuration overrides, e.g. "model.kernel_size=5;train.steps=100". A "file:<path>" element reads them from a file.`)

	rootCmd.AddCommand(newModelsCommand(), newConfigCommand(), newTrainCommand(), newEncodeCommand(), newRunsCommand())
	return rootCmd
}

// loadConfig loads the configuration at path and applies the --set overrides.
func loadConfig(path string) (config.Document, error) {
	doc, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	paramsSet, err := config.ApplySettings(doc, flagSettings)
	if err != nil {
		return nil, err
	}
	if len(paramsSet) > 0 {
		klog.V(1).Infof("configuration overrides: %v", paramsSet)
	}
	return doc, nil
}

func newBackend() (backends.Backend, error) {
	if flagBackend != "" {
		if err := os.Setenv(backends.GOMLX_BACKEND, flagBackend); err != nil {
			return nil, err
		}
	}
	backend, err := backends.New()
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("backend: %s", backend.Name())
	return backend, nil
}
