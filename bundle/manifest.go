// SPDX-License-Identifier: LGPL-3.0-or-later

// Package bundle implements job export/import as tar.gz archives: a
// manifest.json describing the selected jobs, their clusters and configs,
// followed by each job's on-disk directory under jobs/<id>/.
package bundle

import (
	"encoding/json"
	"time"

	"sbatchman/models"
)

const manifestFileName = "manifest.json"

// ManifestCluster is the exported shape of a cluster referenced by a bundle.
type ManifestCluster struct {
	ClusterName string               `json:"cluster_name"`
	Scheduler   models.SchedulerKind `json:"scheduler"`
	MaxJobs     int                  `json:"max_jobs"`
}

// ManifestConfig is the exported shape of a config referenced by a bundle.
type ManifestConfig struct {
	ConfigName  string   `json:"config_name"`
	ClusterName string   `json:"cluster_name"`
	Flags       []string `json:"flags"`
	Env         []string `json:"env"`
}

// ManifestJob is the exported shape of a single job.
type ManifestJob struct {
	OriginalID  int64             `json:"original_id"`
	JobName     string            `json:"job_name"`
	ConfigName  string            `json:"config_name"`
	ClusterName string            `json:"cluster_name"`
	SubmitTime  time.Time         `json:"submit_time"`
	StartTime   *time.Time        `json:"start_time,omitempty"`
	EndTime     *time.Time        `json:"end_time,omitempty"`
	Command     string            `json:"command"`
	Status      models.JobStatus  `json:"status"`
	Preprocess  string            `json:"preprocess"`
	Postprocess string            `json:"postprocess"`
	Archived    bool              `json:"archived"`
	Variables   map[string]string `json:"variables"`
}

// Manifest is the top-level manifest.json document.
type Manifest struct {
	FormatVersion int               `json:"format_version"`
	ExportID      string            `json:"export_id"`
	ExportedAt    time.Time         `json:"exported_at"`
	Clusters      []ManifestCluster `json:"clusters"`
	Configs       []ManifestConfig  `json:"configs"`
	Jobs          []ManifestJob     `json:"jobs"`
}

const currentFormatVersion = 1

func marshalManifest(m Manifest) ([]byte, error) {
	m.FormatVersion = currentFormatVersion
	return json.MarshalIndent(m, "", "  ")
}

func unmarshalManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, err
	}
	return m, nil
}
