// SPDX-License-Identifier: LGPL-3.0-or-later

package scheduler

import (
	"context"
	"strings"

	"sbatchman/sbmerr"
)

// SlurmAdapter submits via sbatch, polls via squeue, cancels via scancel.
type SlurmAdapter struct{}

func (SlurmAdapter) Submit(ctx context.Context, jobDirectory, runScriptPath string, flags, env []string) (string, error) {
	if id, ok := readSentinel(jobDirectory); ok {
		return id, nil
	}

	args := append([]string{}, flags...)
	for _, kv := range env {
		args = append(args, "--export="+kv)
	}
	args = append(args, "--chdir="+jobDirectory, "--parsable", runScriptPath)

	out, err := runCapture(ctx, sbmerr.SchedulerSubmit, "sbatch", args...)
	if err != nil {
		return "", err
	}
	// --parsable prints "<job_id>" or "<job_id>;<cluster>".
	id := strings.SplitN(out, ";", 2)[0]
	if err := writeSentinel(jobDirectory, id); err != nil {
		return "", sbmerr.Wrap(sbmerr.SchedulerSubmit, err, "record submission sentinel")
	}
	return id, nil
}

func (SlurmAdapter) Poll(ctx context.Context, schedulerJobID string) (PollStatus, error) {
	out, err := runCapture(ctx, sbmerr.SchedulerPoll, "squeue", "-h", "-j", schedulerJobID, "-o", "%T")
	if err != nil {
		// squeue exits nonzero once the job has left the queue entirely;
		// sacct would be needed for terminal-state detail, which is out of
		// scope here — treat as unknown and let the poller's tolerance decide.
		return PollUnknown, nil
	}
	return mapSlurmState(strings.TrimSpace(out)), nil
}

func mapSlurmState(state string) PollStatus {
	switch state {
	case "":
		return PollUnknown
	case "PENDING", "CONFIGURING":
		return PollPending
	case "RUNNING", "COMPLETING", "SUSPENDED":
		return PollRunning
	case "COMPLETED":
		return PollCompleted
	case "FAILED", "CANCELLED", "TIMEOUT", "NODE_FAIL", "OUT_OF_MEMORY", "BOOT_FAIL", "DEADLINE":
		return PollFailed
	default:
		return PollUnknown
	}
}

func (SlurmAdapter) Cancel(ctx context.Context, schedulerJobID string) error {
	_, err := runCapture(ctx, sbmerr.SchedulerCancel, "scancel", schedulerJobID)
	return err
}
