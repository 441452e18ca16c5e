// SPDX-License-Identifier: LGPL-3.0-or-later

package scheduler

import (
	"context"
	"testing"

	"sbatchman/sbmerr"
)

func TestSentinelRoundTrip(t *testing.T) {
	dir := t.TempDir()

	if _, ok := readSentinel(dir); ok {
		t.Fatalf("readSentinel on a fresh directory should report not-found")
	}
	if err := writeSentinel(dir, "12345"); err != nil {
		t.Fatalf("writeSentinel: %v", err)
	}
	id, ok := readSentinel(dir)
	if !ok {
		t.Fatalf("readSentinel should find the sentinel just written")
	}
	if id != "12345" {
		t.Errorf("id = %q, want 12345", id)
	}
}

func TestRunCaptureTrimsOutputAndClassifiesFailure(t *testing.T) {
	ctx := context.Background()
	out, err := runCapture(ctx, sbmerr.SchedulerSubmit, "echo", "  hello  ")
	if err != nil {
		t.Fatalf("runCapture: %v", err)
	}
	if out != "hello" {
		t.Errorf("out = %q, want trimmed %q", out, "hello")
	}

	_, err = runCapture(ctx, sbmerr.SchedulerSubmit, "false")
	if err == nil {
		t.Fatalf("expected an error when the command exits nonzero")
	}
	if sbmerr.KindOf(err) != sbmerr.SchedulerSubmit {
		t.Errorf("KindOf(err) = %v, want %v", sbmerr.KindOf(err), sbmerr.SchedulerSubmit)
	}
}
