// SPDX-License-Identifier: LGPL-3.0-or-later

package lifecycle

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"sbatchman/logging"
	"sbatchman/models"
	"sbatchman/sbmerr"
	"sbatchman/store"
)

// RebuildFromMetadata reconstructs the database from the on-disk jobs/
// directory tree, for the case described in §4.4 Recovery where
// sbatchman.db itself is lost but the job directories survive. Each job
// directory's metadata.txt is the authoritative snapshot: cluster and
// config rows are recreated from it if they don't already exist, then the
// job row is inserted preserving its original ID (the directory name).
// Already-present job rows are left untouched, so this is safe to run
// against a partially-recovered database. Returns the number of job rows
// rebuilt.
func RebuildFromMetadata(st *store.Store, jobsRoot string, log logging.Logger) (int, error) {
	entries, err := os.ReadDir(jobsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, sbmerr.Wrap(sbmerr.StoreIO, err, "list job directories under %s", jobsRoot)
	}

	rebuilt := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		jobDir := filepath.Join(jobsRoot, entry.Name())
		fields, err := parseMetadataFile(filepath.Join(jobDir, metadataFileName))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			log.Warn("recover: skip unreadable metadata.txt", "directory", jobDir, "error", err)
			continue
		}

		job, clusterName, schedulerKind, configName, err := jobFromMetadata(fields, jobDir)
		if err != nil {
			log.Warn("recover: skip malformed metadata.txt", "directory", jobDir, "error", err)
			continue
		}
		if _, exists, err := st.GetJob(job.ID); err != nil {
			return rebuilt, err
		} else if exists {
			continue
		}

		cluster, found, err := st.GetClusterByName(clusterName)
		if err != nil {
			return rebuilt, err
		}
		if !found {
			cluster, err = st.UpsertCluster(models.Cluster{ClusterName: clusterName, Scheduler: schedulerKind})
			if err != nil {
				return rebuilt, err
			}
		}

		matches, err := st.FindConfigsByName(configName, []string{clusterName})
		if err != nil {
			return rebuilt, err
		}
		var configID int64
		if len(matches) > 0 {
			configID = matches[0].Config.ID
		} else {
			cfgRow, err := st.UpsertConfig(models.Config{ConfigName: configName, ClusterID: cluster.ID})
			if err != nil {
				return rebuilt, err
			}
			configID = cfgRow.ID
		}
		job.ConfigID = configID

		if err := st.RebuildJob(job); err != nil {
			return rebuilt, err
		}
		log.Info("recover: rebuilt job from metadata.txt", "job", job.ID, "directory", jobDir)
		rebuilt++
	}
	return rebuilt, nil
}

func jobFromMetadata(fields map[string]string, jobDir string) (job models.Job, clusterName string, scheduler models.SchedulerKind, configName string, err error) {
	id, err := strconv.ParseInt(fields[metaKeyID], 10, 64)
	if err != nil {
		return models.Job{}, "", "", "", sbmerr.Wrap(sbmerr.ConfigParse, err, "parse %s", metaKeyID)
	}
	submitTime, err := parseMetadataTimestamp(fields[metaKeySubmitTime])
	if err != nil {
		return models.Job{}, "", "", "", sbmerr.Wrap(sbmerr.ConfigParse, err, "parse %s", metaKeySubmitTime)
	}

	variables := map[string]string{}
	if v := fields[metaKeyVariablesJSON]; v != "" && v != "null" {
		if err := json.Unmarshal([]byte(v), &variables); err != nil {
			return models.Job{}, "", "", "", sbmerr.Wrap(sbmerr.ConfigParse, err, "parse %s", metaKeyVariablesJSON)
		}
	}

	var schedulerJobID *string
	if v := fields[metaKeySchedulerJobID]; v != "" {
		schedulerJobID = &v
	}

	job = models.Job{
		ID:             id,
		JobName:        fields[metaKeyJobName],
		SubmitTime:     submitTime,
		StartTime:      parseOptionalMetadataTimestamp(fields[metaKeyStartTime]),
		EndTime:        parseOptionalMetadataTimestamp(fields[metaKeyEndTime]),
		Directory:      jobDir,
		Command:        fields[metaKeyCommand],
		Status:         models.JobStatus(fields[metaKeyStatus]),
		SchedulerJobID: schedulerJobID,
		Preprocess:     fields[metaKeyPreprocess],
		Postprocess:    fields[metaKeyPostprocess],
		Archived:       fields[metaKeyArchived] == "true",
		Variables:      variables,
	}
	return job, fields[metaKeyClusterName], models.SchedulerKind(fields[metaKeyScheduler]), fields[metaKeyConfigName], nil
}

func parseMetadataTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

func parseOptionalMetadataTimestamp(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}
