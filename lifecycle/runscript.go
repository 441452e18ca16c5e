// SPDX-License-Identifier: LGPL-3.0-or-later

// Package lifecycle drives a job from virtualqueue to a terminal status: it
// materializes the on-disk job directory, admits queued work under each
// cluster's max_jobs cap, polls scheduler adapters for status, and recovers
// in-flight jobs after a restart.
package lifecycle

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const runScriptName = "run.sh"

// writeRunScript materializes the generated run.sh for a job directory. The
// script records start/end status via the __set-status callback, executes
// preprocess/command/postprocess in sequence with each stage's failure
// short-circuiting the rest, redirects stdout/stderr to the job directory's
// log files, and leaves its own exit code in a sidecar file for the local
// adapter's poll.
func writeRunScript(jobDirectory string, jobID int64, selfExe, preprocess, command, postprocess string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "#!/bin/sh\nset -u\ncd %s\n", shellQuote(jobDirectory))
	fmt.Fprintf(&b, "%s __set-status %d running >/dev/null 2>&1\n", shellQuote(selfExe), jobID)

	writeStage(&b, jobID, selfExe, preprocess)
	writeStage(&b, jobID, selfExe, command)
	writeStage(&b, jobID, selfExe, postprocess)

	fmt.Fprintf(&b, "echo 0 > .exit_code\n")
	fmt.Fprintf(&b, "%s __set-status %d completed 0 >/dev/null 2>&1\n", shellQuote(selfExe), jobID)
	fmt.Fprintf(&b, "exit 0\n")

	path := filepath.Join(jobDirectory, runScriptName)
	if err := os.WriteFile(path, []byte(b.String()), 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// writeStage appends one pipeline stage. An empty stage is skipped entirely;
// a failing stage records its exit code and status before aborting the script.
func writeStage(b *strings.Builder, jobID int64, selfExe, stage string) {
	if strings.TrimSpace(stage) == "" {
		return
	}
	fmt.Fprintf(b, "%s >>stdout.log 2>>stderr.log\n", stage)
	fmt.Fprintf(b, "rc=$?\n")
	fmt.Fprintf(b, "if [ \"$rc\" -ne 0 ]; then\n")
	fmt.Fprintf(b, "  echo \"$rc\" > .exit_code\n")
	fmt.Fprintf(b, "  %s __set-status %d failed \"$rc\" >/dev/null 2>&1\n", shellQuote(selfExe), jobID)
	fmt.Fprintf(b, "  exit \"$rc\"\n")
	fmt.Fprintf(b, "fi\n")
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
