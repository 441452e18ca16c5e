// SPDX-License-Identifier: LGPL-3.0-or-later

// Package scheduler implements the uniform Scheduler Adapter interface over
// SLURM, PBS, and a local fork-based executor (spec §4.3).
package scheduler

import (
	"context"

	"sbatchman/models"
)

// PollStatus is the adapter-observed state of a submitted job.
type PollStatus string

const (
	PollPending   PollStatus = "pending"
	PollRunning   PollStatus = "running"
	PollCompleted PollStatus = "completed"
	PollFailed    PollStatus = "failed"
	PollUnknown   PollStatus = "unknown"
)

// Adapter is the uniform capability set every scheduler backend implements.
type Adapter interface {
	// Submit blocks until submission is acknowledged and returns the
	// scheduler's job identifier. Idempotent by job directory: a prior
	// `.submitted` sentinel file causes the prior id to be returned.
	Submit(ctx context.Context, jobDirectory, runScriptPath string, flags, env []string) (string, error)

	// Poll is a pure, side-effect-free status query.
	Poll(ctx context.Context, schedulerJobID string) (PollStatus, error)

	// Cancel is best-effort; nil error means the scheduler reports the job terminated.
	Cancel(ctx context.Context, schedulerJobID string) error
}

// For selects the Adapter implementation for a SchedulerKind.
func For(kind models.SchedulerKind) Adapter {
	switch kind {
	case models.SchedulerSlurm:
		return &SlurmAdapter{}
	case models.SchedulerPBS:
		return &PBSAdapter{}
	default:
		return &LocalAdapter{}
	}
}
