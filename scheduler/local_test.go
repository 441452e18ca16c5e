// SPDX-License-Identifier: LGPL-3.0-or-later

package scheduler

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func TestEncodeDecodeLocalJobID(t *testing.T) {
	id := encodeLocalJobID(4242, "/var/lib/sbatchman/jobs/7")
	pid, dir, err := decodeLocalJobID(id)
	if err != nil {
		t.Fatalf("decodeLocalJobID: %v", err)
	}
	if pid != 4242 {
		t.Errorf("pid = %d, want 4242", pid)
	}
	if dir != "/var/lib/sbatchman/jobs/7" {
		t.Errorf("dir = %q", dir)
	}
}

func TestDecodeLocalJobIDRejectsMalformed(t *testing.T) {
	if _, _, err := decodeLocalJobID("not-a-valid-id"); err == nil {
		t.Fatalf("expected an error for a scheduler_job_id missing the ':' separator")
	}
	if _, _, err := decodeLocalJobID("notanumber:/some/dir"); err == nil {
		t.Fatalf("expected an error for a non-numeric pid")
	}
}

func TestAliveReflectsProcessState(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start sleep: %v", err)
	}
	pid := cmd.Process.Pid
	if !alive(pid) {
		t.Errorf("alive(%d) = false for a just-started process", pid)
	}
	cmd.Process.Kill()
	cmd.Wait()
	if alive(pid) {
		t.Errorf("alive(%d) = true after the process was killed and reaped", pid)
	}
}

func TestLocalAdapterPollReadsExitCodeSidecar(t *testing.T) {
	dir := t.TempDir()

	// Poll on a pid that is certainly dead, with a sidecar exit code present.
	if err := os.WriteFile(filepath.Join(dir, exitCodeFile), []byte("0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	deadPID := findDeadPID(t)
	id := encodeLocalJobID(deadPID, dir)

	status, err := LocalAdapter{}.Poll(context.Background(), id)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if status != PollCompleted {
		t.Errorf("status = %v, want PollCompleted for exit code 0", status)
	}

	if err := os.WriteFile(filepath.Join(dir, exitCodeFile), []byte("1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	status, err = LocalAdapter{}.Poll(context.Background(), id)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if status != PollFailed {
		t.Errorf("status = %v, want PollFailed for nonzero exit code", status)
	}
}

func TestLocalAdapterPollUnknownBeforeSidecarLands(t *testing.T) {
	dir := t.TempDir()
	deadPID := findDeadPID(t)
	id := encodeLocalJobID(deadPID, dir)

	status, err := LocalAdapter{}.Poll(context.Background(), id)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if status != PollUnknown {
		t.Errorf("status = %v, want PollUnknown when no sidecar file exists yet", status)
	}
}

// findDeadPID starts and reaps a short-lived process, returning a pid
// guaranteed not to be alive (and very unlikely to have been recycled yet).
func findDeadPID(t *testing.T) int {
	t.Helper()
	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Skipf("cannot run true: %v", err)
	}
	return cmd.Process.Pid
}
