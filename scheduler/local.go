// SPDX-License-Identifier: LGPL-3.0-or-later

package scheduler

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"sbatchman/sbmerr"
)

const exitCodeFile = ".exit_code"

// LocalAdapter forks run scripts as child processes on the current host.
// The scheduler_job_id encodes "<pid>:<jobDirectory>": Poll uses kill -0 on
// the pid to check liveness, then reads a sidecar exit-code file (written by
// the generated run script itself) to distinguish completed from failed.
type LocalAdapter struct{}

func (LocalAdapter) Submit(ctx context.Context, jobDirectory, runScriptPath string, flags, env []string) (string, error) {
	if id, ok := readSentinel(jobDirectory); ok {
		return id, nil
	}

	cmd := exec.Command("/bin/sh", runScriptPath)
	cmd.Dir = jobDirectory
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return "", sbmerr.Wrap(sbmerr.SchedulerSubmit, err, "fork run script %s", runScriptPath)
	}
	// Detach: the run script itself records completion via the __set-status
	// callback and the exit-code sidecar file, so no Wait() is needed here.
	go cmd.Process.Release()

	id := encodeLocalJobID(cmd.Process.Pid, jobDirectory)
	if err := writeSentinel(jobDirectory, id); err != nil {
		return "", sbmerr.Wrap(sbmerr.SchedulerSubmit, err, "record submission sentinel")
	}
	return id, nil
}

func (LocalAdapter) Poll(ctx context.Context, schedulerJobID string) (PollStatus, error) {
	pid, jobDirectory, err := decodeLocalJobID(schedulerJobID)
	if err != nil {
		return PollUnknown, sbmerr.Wrap(sbmerr.SchedulerPoll, err, "scheduler_job_id %q", schedulerJobID)
	}

	if alive(pid) {
		return PollRunning, nil
	}

	data, err := os.ReadFile(filepath.Join(jobDirectory, exitCodeFile))
	if err != nil {
		// Process has exited but the sidecar hasn't landed yet; let the
		// poller's unknown-status tolerance absorb the race.
		return PollUnknown, nil
	}
	if strings.TrimSpace(string(data)) == "0" {
		return PollCompleted, nil
	}
	return PollFailed, nil
}

func encodeLocalJobID(pid int, jobDirectory string) string {
	return strconv.Itoa(pid) + ":" + jobDirectory
}

func decodeLocalJobID(schedulerJobID string) (pid int, jobDirectory string, err error) {
	parts := strings.SplitN(schedulerJobID, ":", 2)
	if len(parts) != 2 {
		return 0, "", sbmerr.New(sbmerr.Invariant, "malformed local scheduler_job_id %q", schedulerJobID)
	}
	pid, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, "", sbmerr.Wrap(sbmerr.Invariant, err, "local scheduler_job_id %q has non-numeric pid", schedulerJobID)
	}
	return pid, parts[1], nil
}

func alive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

func (LocalAdapter) Cancel(ctx context.Context, schedulerJobID string) error {
	pid, _, err := decodeLocalJobID(schedulerJobID)
	if err != nil {
		return sbmerr.Wrap(sbmerr.SchedulerCancel, err, "scheduler_job_id %q", schedulerJobID)
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	if err := process.Signal(syscall.SIGTERM); err != nil && !strings.Contains(err.Error(), "process already finished") {
		return sbmerr.Wrap(sbmerr.SchedulerCancel, err, "terminate pid %d", pid)
	}
	return nil
}
