// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"strings"

	"github.com/gomlx/gomlx/pkg/support/fsutil"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ApplySettings overrides values of doc from settings -- typically the contents of a flag set by the user.
// The settings are a list separated by ";", e.g.: "model.kernel_size=3;dataset.batch_size=16;precision=float64".
//
// Keys are paths of mapping keys separated by "."; missing intermediate sections are created. Values are parsed
// as YAML scalars or flow collections ("3" is an int, "0.1" a float, "[0.9, 0.99]" a list), except when the
// value being replaced is a string, in which case the raw text is kept.
//
// A setting "file:<path>" reads more settings from the file, one or more per line; empty lines and lines
// starting with "#" are skipped.
//
// If the root "precision" is set, it is resolved again. It returns the list of paths set.
func ApplySettings(doc Document, settings string) (paramsSet []string, err error) {
	for _, setting := range strings.Split(settings, ";") {
		paramsSet, err = applySetting(doc, setting, paramsSet)
		if err != nil {
			return
		}
	}
	for _, path := range paramsSet {
		if path == KeyPrecision {
			ResolvePrecision(doc)
			break
		}
	}
	return
}

func applySetting(doc Document, setting string, paramsSet []string) (newParamsSet []string, err error) {
	newParamsSet = paramsSet
	setting = strings.TrimSpace(setting)
	if setting == "" {
		return
	}
	if strings.HasPrefix(setting, "file:") {
		filePath := fsutil.MustReplaceTildeInDir(strings.TrimPrefix(setting, "file:"))
		var contents []byte
		contents, err = os.ReadFile(filePath)
		if err != nil {
			err = errors.Wrapf(err, "failed to read settings from file %q", filePath)
			return
		}
		for _, line := range strings.Split(string(contents), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			for _, setting := range strings.Split(line, ";") {
				newParamsSet, err = applySetting(doc, setting, newParamsSet)
				if err != nil {
					return
				}
			}
		}
		return
	}

	paramPath, valueStr, found := strings.Cut(setting, "=")
	if !found || paramPath == "" {
		err = errors.Errorf("can't parse setting %q: each setting requires the format \"<path>=<value>\"", setting)
		return
	}
	keys := strings.Split(paramPath, ".")
	parent := map[string]any(doc)
	for _, key := range keys[:len(keys)-1] {
		child, exists := parent[key]
		if !exists {
			newSection := make(map[string]any)
			parent[key] = newSection
			parent = newSection
			continue
		}
		section, ok := child.(map[string]any)
		if !ok {
			err = errors.Errorf("can't set %q: %q holds a %T, not a mapping", paramPath, key, child)
			return
		}
		parent = section
	}
	lastKey := keys[len(keys)-1]

	var value any
	if _, isString := parent[lastKey].(string); isString {
		value = valueStr
	} else if err = yaml.Unmarshal([]byte(valueStr), &value); err != nil {
		err = errors.Wrapf(err, "failed to parse value %q for %q", valueStr, paramPath)
		return
	}
	parent[lastKey] = value
	newParamsSet = append(newParamsSet, paramPath)
	return
}
