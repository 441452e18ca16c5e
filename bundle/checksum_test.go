// SPDX-License-Identifier: LGPL-3.0-or-later

package bundle

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteAndVerifyChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bundle.tar.gz")
	if err := os.WriteFile(path, []byte("archive contents"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := writeChecksum(path); err != nil {
		t.Fatalf("writeChecksum: %v", err)
	}
	if err := verifyChecksum(path); err != nil {
		t.Errorf("verifyChecksum of an untouched bundle: %v", err)
	}
}

func TestVerifyChecksumToleratesMissingSidecar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bundle.tar.gz")
	if err := os.WriteFile(path, []byte("archive contents"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := verifyChecksum(path); err != nil {
		t.Errorf("verifyChecksum with no sidecar should pass, got: %v", err)
	}
}

func TestVerifyChecksumRejectsMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bundle.tar.gz")
	if err := os.WriteFile(path, []byte("archive contents"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := writeChecksum(path); err != nil {
		t.Fatalf("writeChecksum: %v", err)
	}
	if err := os.WriteFile(path, []byte("tampered contents"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := verifyChecksum(path); err == nil {
		t.Errorf("expected verifyChecksum to reject a tampered archive")
	}
}
