// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package config loads and saves the argument document of a run: a YAML mapping holding at least
// the "model" and "dataset" sections, and optionally a root "precision".
//
// After loading, the root precision (if registered in package precision) is resolved into its two
// concrete forms: the host numeric form goes to "dataset.precision" and the tensor form to
// "model.precision". Unknown precision names leave the document unchanged.
package config

import (
	"os"
	"path/filepath"

	"github.com/gomlx/gomlx/pkg/support/fsutil"
	"github.com/pkg/errors"
	"github.com/tsdl/tsdl/pkg/core/precision"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

// Well-known keys of a Document.
const (
	KeyModel        = "model"
	KeyDataset      = "dataset"
	KeyPrecision    = "precision"
	KeyArchitecture = "architecture"
	KeyTrain        = "train"
)

// ErrParse is returned (wrapped with the path and parser diagnostic) when a document is malformed.
var ErrParse = errors.New("config: malformed document")

// Document is the argument document: a nested mapping of hyperparameters and dataset parameters.
type Document map[string]any

// Section returns the sub-mapping stored under name, or nil if it is absent or not a mapping.
func (doc Document) Section(name string) map[string]any {
	section, _ := doc[name].(map[string]any)
	return section
}

// Architecture returns the name of the registered model to build, or "" if not set.
func (doc Document) Architecture() string {
	name, _ := doc[KeyArchitecture].(string)
	return name
}

// Load reads and parses the document at path, and then resolves its precision.
func Load(path string) (Document, error) {
	path, err := fsutil.ReplaceTildeInDir(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read configuration %q", path)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, errors.WithMessagef(err, "configuration %q", path)
	}
	return doc, nil
}

// Parse parses a YAML document from data and resolves its precision.
func Parse(data []byte) (Document, error) {
	var root any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, errors.Wrapf(ErrParse, "%v", err)
	}
	if root == nil {
		return Document{}, nil
	}
	mapping, ok := root.(map[string]any)
	if !ok {
		return nil, errors.Wrapf(ErrParse, "root must be a mapping, got %T", root)
	}
	doc := Document(mapping)
	ResolvePrecision(doc)
	return doc, nil
}

// Save writes doc as YAML to path, creating the parent directories if needed.
//
// Resolved precisions are written back as their symbolic names.
func Save(path string, doc Document) error {
	path, err := fsutil.ReplaceTildeInDir(path)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(map[string]any(doc))
	if err != nil {
		return errors.Wrapf(err, "failed to serialize configuration for %q", path)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "failed to create directory for configuration %q", path)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write configuration %q", path)
	}
	return nil
}

// ResolvePrecision injects the resolved forms of the root "precision" into the "dataset" and "model" sections.
//
// It is a no-op if "precision" is absent. An unknown precision, or a "dataset" or "model" entry that is
// not a mapping, leaves the document unchanged and is reported as a warning.
func ResolvePrecision(doc Document) {
	value, found := doc[KeyPrecision]
	if !found {
		return
	}
	name, _ := value.(string)
	d, ok := precision.Resolve(name)
	if !ok {
		klog.Warningf("configuration precision %v is not one of %q, it is ignored", value, precision.Names())
		return
	}
	for _, name := range []string{KeyDataset, KeyModel} {
		if entry, found := doc[name]; found && entry != nil && doc.Section(name) == nil {
			klog.Warningf("configuration %q is not a mapping (got %T), precision %q is ignored", name, entry, d.Name)
			return
		}
	}
	sectionFor(doc, KeyDataset)[KeyPrecision] = precision.Numeric(d)
	sectionFor(doc, KeyModel)[KeyPrecision] = precision.Tensor(d)
}

// sectionFor returns the section name, creating it if missing or null.
func sectionFor(doc Document, name string) map[string]any {
	section := doc.Section(name)
	if section == nil {
		section = make(map[string]any)
		doc[name] = section
	}
	return section
}

// Decode converts a section (e.g. "model") into the typed struct pointed by out, using its yaml tags.
// Fields not present in section keep their current values, so out can be pre-filled with defaults.
func Decode(section map[string]any, out any) error {
	if len(section) == 0 {
		return nil
	}
	data, err := yaml.Marshal(section)
	if err != nil {
		return errors.Wrap(err, "failed to re-encode configuration section")
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return errors.Wrapf(ErrParse, "decoding section into %T: %v", out, err)
	}
	return nil
}
