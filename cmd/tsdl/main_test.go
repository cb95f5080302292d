// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsdl/tsdl/pkg/ml/config"
)

func run(t *testing.T, args ...string) string {
	flagBackend, flagSettings = "", ""
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs(append([]string{"--backend=go"}, args...))
	require.NoError(t, cmd.Execute(), "tsdl %v", args)
	return out.String()
}

func writeConfig(t *testing.T, architecture string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
architecture: ` + architecture + `
precision: float32
model:
  features: 2
  channels: 1
  sequence_length: 12
  extracted_features: 3
  latent_space: 2
  kernel_size: 3
  stride: 1
  padding: 1
  log: false
dataset:
  batch_size: 4
train:
  steps: 3
  batch_size: 4
  schedule_every: 2
`
	must.M(os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestModelsCommand(t *testing.T) {
	out := run(t, "models")
	for _, name := range []string{"AE", "SimpleModel", "VAE", "ConvVAE", "ae.FromParams", "float16", "int8"} {
		assert.Contains(t, out, name)
	}
}

func TestConfigShow(t *testing.T) {
	path := writeConfig(t, "AE")
	out := run(t, "config", "show", path, "--set=model.kernel_size=5;train.steps=7")
	doc, err := config.Parse([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, 5, doc.Section(config.KeyModel)["kernel_size"])
	assert.Equal(t, 7, doc.Section(config.KeyTrain)["steps"])
	assert.Equal(t, "float32", doc.Section(config.KeyDataset)["precision"].(interface{ String() string }).String())

	output := filepath.Join(t.TempDir(), "out", "resolved.yaml")
	run(t, "config", "show", path, "-o", output)
	saved, err := config.Load(output)
	require.NoError(t, err)
	assert.Equal(t, "AE", saved.Architecture())
}

func TestTrainAndEncode(t *testing.T) {
	for _, architecture := range []string{"AE", "VAE"} {
		t.Run(architecture, func(t *testing.T) {
			path := writeConfig(t, architecture)
			checkpoint := filepath.Join(t.TempDir(), "checkpoint")
			out := run(t, "train", path, "--checkpoint", checkpoint)
			assert.Contains(t, out, "Trainable parameters")
			assert.Contains(t, out, architecture)
			assert.DirExists(t, checkpoint)

			// Resumes from the checkpoint.
			run(t, "train", path, "--checkpoint", checkpoint, "--steps", "2")

			out = run(t, "encode", path, "--checkpoint", checkpoint, "--batch", "3")
			assert.Contains(t, out, "Latent")
			assert.Contains(t, out, "(Float32)[3 2")
		})
	}
}

func TestRunsCommand(t *testing.T) {
	path := writeConfig(t, "AE")
	logRoot := t.TempDir()
	run(t, "train", path, "--set=model.log=true;model.log_root="+logRoot+";model.tag=cli")
	runDirs, err := filepath.Glob(filepath.Join(logRoot, "cli", "AE", "*"))
	require.NoError(t, err)
	require.Len(t, runDirs, 1)
	out := run(t, "runs", runDirs[0])
	assert.Contains(t, out, "Train: loss")
	assert.Contains(t, out, "StdDev")
}
