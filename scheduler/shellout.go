// SPDX-License-Identifier: LGPL-3.0-or-later

package scheduler

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"sbatchman/sbmerr"
)

const submittedSentinel = ".submitted"

// runCapture runs name(args...) under ctx's deadline and returns trimmed
// stdout, classifying failures under kind.
func runCapture(ctx context.Context, kind sbmerr.Kind, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", sbmerr.Wrap(kind, err, "%s %s: %s", name, strings.Join(args, " "), strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// sentinelPath returns the idempotent-resubmission marker path for a job directory.
func sentinelPath(jobDirectory string) string {
	return filepath.Join(jobDirectory, submittedSentinel)
}

// readSentinel returns the previously recorded scheduler_job_id, if any.
func readSentinel(jobDirectory string) (string, bool) {
	data, err := os.ReadFile(sentinelPath(jobDirectory))
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

// writeSentinel records the scheduler_job_id for idempotent resubmission.
func writeSentinel(jobDirectory, schedulerJobID string) error {
	return os.WriteFile(sentinelPath(jobDirectory), []byte(schedulerJobID), 0o644)
}
