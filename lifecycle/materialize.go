// SPDX-License-Identifier: LGPL-3.0-or-later

package lifecycle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"sbatchman/models"
)

const metadataFileName = "metadata.txt"

// metadata.txt keys, in the order they are written. RebuildFromMetadata
// parses by key name, not position, but keeping the order matches §6's
// documented layout.
const (
	metaKeyID             = "id"
	metaKeyJobName        = "job_name"
	metaKeyClusterName    = "cluster_name"
	metaKeyConfigName     = "config_name"
	metaKeyScheduler      = "scheduler"
	metaKeySubmitTime     = "submit_time"
	metaKeyStartTime      = "start_time"
	metaKeyEndTime        = "end_time"
	metaKeyStatus         = "status"
	metaKeySchedulerJobID = "scheduler_job_id"
	metaKeyCommand        = "command"
	metaKeyPreprocess     = "preprocess"
	metaKeyPostprocess    = "postprocess"
	metaKeyArchived       = "archived"
	metaKeyVariablesJSON  = "variables_json"
)

// Materialize creates the on-disk job directory mirror: metadata.txt,
// run.sh, and empty stdout.log/stderr.log, ready for scheduler submission.
// Safe to call again for the same job (e.g. recovery): it only overwrites
// run.sh and metadata.txt, leaving any accumulated logs intact.
func Materialize(job models.Job, cluster models.Cluster, cfg models.Config, jobDirectory, selfExe string) (runScriptPath string, err error) {
	if err := os.MkdirAll(jobDirectory, 0o755); err != nil {
		return "", fmt.Errorf("create job directory %s: %w", jobDirectory, err)
	}
	if err := os.MkdirAll(filepath.Join(jobDirectory, "results"), 0o755); err != nil {
		return "", fmt.Errorf("create results directory: %w", err)
	}
	for _, name := range []string{"stdout.log", "stderr.log"} {
		path := filepath.Join(jobDirectory, name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := os.WriteFile(path, nil, 0o644); err != nil {
				return "", fmt.Errorf("create %s: %w", path, err)
			}
		}
	}

	if err := writeMetadata(job, cluster, cfg, jobDirectory); err != nil {
		return "", err
	}

	return writeRunScript(jobDirectory, job.ID, selfExe, job.Preprocess, job.Command, job.Postprocess)
}

// writeMetadata writes the job directory's metadata.txt, the human-readable
// key: value snapshot that doubles as the database-recovery source of
// truth (RebuildFromMetadata parses this exact format back).
func writeMetadata(job models.Job, cluster models.Cluster, cfg models.Config, jobDirectory string) error {
	varsJSON, err := json.Marshal(job.Variables)
	if err != nil {
		return fmt.Errorf("marshal variables for metadata.txt: %w", err)
	}

	fields := []struct{ key, value string }{
		{metaKeyID, strconv.FormatInt(job.ID, 10)},
		{metaKeyJobName, job.JobName},
		{metaKeyClusterName, cluster.ClusterName},
		{metaKeyConfigName, cfg.ConfigName},
		{metaKeyScheduler, string(cluster.Scheduler)},
		{metaKeySubmitTime, job.SubmitTime.Format(time.RFC3339)},
		{metaKeyStartTime, formatMetadataTime(job.StartTime)},
		{metaKeyEndTime, formatMetadataTime(job.EndTime)},
		{metaKeyStatus, string(job.Status)},
		{metaKeySchedulerJobID, stringOrEmpty(job.SchedulerJobID)},
		{metaKeyCommand, job.Command},
		{metaKeyPreprocess, job.Preprocess},
		{metaKeyPostprocess, job.Postprocess},
		{metaKeyArchived, strconv.FormatBool(job.Archived)},
		{metaKeyVariablesJSON, string(varsJSON)},
	}

	var b strings.Builder
	for _, f := range fields {
		b.WriteString(f.key)
		b.WriteString(": ")
		b.WriteString(escapeMetadataValue(f.value))
		b.WriteString("\n")
	}

	tmp := filepath.Join(jobDirectory, metadataFileName+".tmp")
	if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	return os.Rename(tmp, filepath.Join(jobDirectory, metadataFileName))
}

func formatMetadataTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// escapeMetadataValue keeps metadata.txt line-oriented: command/preprocess/
// postprocess can themselves be multi-line shell snippets.
func escapeMetadataValue(s string) string {
	return strings.ReplaceAll(s, "\n", "\\n")
}

func unescapeMetadataValue(s string) string {
	return strings.ReplaceAll(s, "\\n", "\n")
}

// parseMetadataFile reads a metadata.txt into its key: value fields.
func parseMetadataFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		fields[key] = unescapeMetadataValue(value)
	}
	return fields, nil
}
