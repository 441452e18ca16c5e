// SPDX-License-Identifier: LGPL-3.0-or-later

package expansion

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"sbatchman/sbmerr"
)

// LoadDocument parses path and recursively resolves include: chains (Phase I).
// The included document is merged first, then the current document overrides
// key-by-key at the top level — a right-biased merge. Cycle detection is by
// the set of absolute paths visited on the current include chain.
func LoadDocument(path string) (Document, error) {
	return loadDocument(path, map[string]bool{})
}

func loadDocument(path string, visiting map[string]bool) (Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Document{}, sbmerr.Wrap(sbmerr.ConfigIO, err, "resolve path %s", path)
	}
	if visiting[abs] {
		return Document{}, sbmerr.New(sbmerr.ConfigCycle, "include cycle detected at %s", abs)
	}
	visiting[abs] = true

	data, err := os.ReadFile(abs)
	if err != nil {
		return Document{}, sbmerr.Wrap(sbmerr.ConfigIO, err, "read %s", abs)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, sbmerr.Wrap(sbmerr.ConfigParse, err, "parse %s", abs)
	}

	if doc.Include == "" {
		return doc, nil
	}

	includePath := doc.Include
	if !filepath.IsAbs(includePath) {
		includePath = filepath.Join(filepath.Dir(abs), includePath)
	}
	base, err := loadDocument(includePath, visiting)
	if err != nil {
		return Document{}, err
	}

	return mergeDocuments(base, doc), nil
}

// mergeDocuments merges base (included) and override (the including file),
// key-by-key at the top level, override winning — right-biased per §8 "laws".
func mergeDocuments(base, override Document) Document {
	merged := base

	if override.Variables != nil {
		merged.Variables = override.Variables
	}
	if override.PythonHeader != "" {
		merged.PythonHeader = override.PythonHeader
	}
	if override.Command != "" {
		merged.Command = override.Command
	}
	if override.Preprocess != "" {
		merged.Preprocess = override.Preprocess
	}
	if override.Postprocess != "" {
		merged.Postprocess = override.Postprocess
	}
	if override.Jobs != nil {
		merged.Jobs = override.Jobs
	}
	merged.Include = ""
	return merged
}

// LoadClusterConfigDocument parses a cluster-config import YAML file.
func LoadClusterConfigDocument(path string) (ClusterConfigDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ClusterConfigDocument{}, sbmerr.Wrap(sbmerr.ConfigIO, err, "read %s", path)
	}
	var doc ClusterConfigDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return ClusterConfigDocument{}, sbmerr.Wrap(sbmerr.ConfigParse, err, "parse %s", path)
	}
	return doc, nil
}
