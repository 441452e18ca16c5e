// SPDX-License-Identifier: LGPL-3.0-or-later

package expansion

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDocumentMergesInclude(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.yaml")
	if err := os.WriteFile(base, []byte(`
command: "base command"
variables:
  shared: "from-base"
`), 0o644); err != nil {
		t.Fatal(err)
	}
	override := filepath.Join(dir, "override.yaml")
	if err := os.WriteFile(override, []byte(`
include: base.yaml
variables:
  shared: "from-override"
jobs:
  - name: job1
`), 0o644); err != nil {
		t.Fatal(err)
	}

	doc, err := LoadDocument(override)
	if err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	if doc.Command != "base command" {
		t.Errorf("Command = %q, want inherited from base", doc.Command)
	}
	if doc.Variables["shared"] != "from-override" {
		t.Errorf("Variables[shared] = %v, want override to win", doc.Variables["shared"])
	}
	if len(doc.Jobs) != 1 {
		t.Errorf("Jobs = %v, want 1", doc.Jobs)
	}
}

func TestLoadDocumentDetectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.yaml")
	b := filepath.Join(dir, "b.yaml")
	if err := os.WriteFile(a, []byte("include: b.yaml\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, []byte("include: a.yaml\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadDocument(a); err == nil {
		t.Fatalf("expected a ConfigCycle error for mutually-including files")
	}
}
