// SPDX-License-Identifier: LGPL-3.0-or-later

package scheduler

import (
	"context"
	"strings"

	"sbatchman/sbmerr"
)

// PBSAdapter submits via qsub, polls via qstat, cancels via qdel.
type PBSAdapter struct{}

func (PBSAdapter) Submit(ctx context.Context, jobDirectory, runScriptPath string, flags, env []string) (string, error) {
	if id, ok := readSentinel(jobDirectory); ok {
		return id, nil
	}

	args := append([]string{}, flags...)
	if len(env) > 0 {
		args = append(args, "-v", strings.Join(env, ","))
	}
	args = append(args, "-d", jobDirectory, runScriptPath)

	out, err := runCapture(ctx, sbmerr.SchedulerSubmit, "qsub", args...)
	if err != nil {
		return "", err
	}
	id := strings.TrimSpace(out)
	if err := writeSentinel(jobDirectory, id); err != nil {
		return "", sbmerr.Wrap(sbmerr.SchedulerSubmit, err, "record submission sentinel")
	}
	return id, nil
}

func (PBSAdapter) Poll(ctx context.Context, schedulerJobID string) (PollStatus, error) {
	out, err := runCapture(ctx, sbmerr.SchedulerPoll, "qstat", "-f", "-x", schedulerJobID)
	if err != nil {
		return PollUnknown, nil
	}
	state := mapPBSState(extractField(out, "job_state = "))
	if state != PollCompleted {
		return state, nil
	}
	if extractField(out, "Exit_status = ") != "0" {
		return PollFailed, nil
	}
	return PollCompleted, nil
}

// extractField pulls the value following prefix on its own line of qstat -f output.
func extractField(qstatOutput, prefix string) string {
	for _, line := range strings.Split(qstatOutput, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, prefix); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

func mapPBSState(state string) PollStatus {
	switch state {
	case "":
		return PollUnknown
	case "Q", "H", "W", "T":
		return PollPending
	case "R", "S", "E":
		return PollRunning
	case "F":
		return PollCompleted
	default:
		return PollUnknown
	}
}

func (PBSAdapter) Cancel(ctx context.Context, schedulerJobID string) error {
	_, err := runCapture(ctx, sbmerr.SchedulerCancel, "qdel", schedulerJobID)
	return err
}
