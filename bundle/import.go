// SPDX-License-Identifier: LGPL-3.0-or-later

package bundle

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"sbatchman/config"
	"sbatchman/models"
	"sbatchman/sbmerr"
	"sbatchman/store"
)

// ImportResult summarizes one Import call.
type ImportResult struct {
	JobsImported int
	Coerced      []int64 // new job IDs whose non-terminal status was coerced to failed
}

// Import reads a tar.gz bundle produced by Export, merges its clusters and
// configs into st (importClusters rejects a cluster whose scheduler or
// max_jobs differs from the local row with a BundleFormat error; configs are
// upserted by name, replacing an existing config's flags and env), and
// inserts each job under a freshly
// allocated ID with its directory copied into cfg.JobDir(newID). Any
// imported job not already in a terminal status is coerced to failed,
// since its originating scheduler submission does not exist in this store.
func Import(st *store.Store, cfg config.Config, bundlePath string) (ImportResult, error) {
	if err := verifyChecksum(bundlePath); err != nil {
		return ImportResult{}, err
	}

	f, err := os.Open(bundlePath)
	if err != nil {
		return ImportResult{}, sbmerr.Wrap(sbmerr.ConfigIO, err, "open bundle %s", bundlePath)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return ImportResult{}, sbmerr.Wrap(sbmerr.BundleFormat, err, "bundle %s is not gzip", bundlePath)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)

	var manifest Manifest
	haveManifest := false
	jobFiles := map[int64]map[string][]byte{} // originalID -> relative path -> content
	jobDirs := map[int64]map[string]bool{}     // originalID -> relative dir path

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return ImportResult{}, sbmerr.Wrap(sbmerr.BundleFormat, err, "read bundle entry")
		}

		if hdr.Name == manifestFileName {
			data, err := io.ReadAll(tr)
			if err != nil {
				return ImportResult{}, sbmerr.Wrap(sbmerr.BundleFormat, err, "read manifest")
			}
			manifest, err = unmarshalManifest(data)
			if err != nil {
				return ImportResult{}, sbmerr.Wrap(sbmerr.BundleFormat, err, "parse manifest")
			}
			haveManifest = true
			continue
		}

		originalID, relPath, ok := parseJobEntry(hdr.Name)
		if !ok {
			continue
		}
		if hdr.Typeflag == tar.TypeDir {
			if jobDirs[originalID] == nil {
				jobDirs[originalID] = map[string]bool{}
			}
			jobDirs[originalID][relPath] = true
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return ImportResult{}, sbmerr.Wrap(sbmerr.BundleFormat, err, "read job file %s", hdr.Name)
		}
		if jobFiles[originalID] == nil {
			jobFiles[originalID] = map[string][]byte{}
		}
		jobFiles[originalID][relPath] = data
	}

	if !haveManifest {
		return ImportResult{}, sbmerr.New(sbmerr.BundleFormat, "bundle %s has no manifest", bundlePath)
	}

	clusterIDByName, err := importClusters(st, manifest.Clusters)
	if err != nil {
		return ImportResult{}, err
	}
	configIDByKey, err := importConfigs(st, manifest.Configs, clusterIDByName)
	if err != nil {
		return ImportResult{}, err
	}

	result := ImportResult{}
	for _, mj := range manifest.Jobs {
		configID, ok := configIDByKey[mj.ClusterName+"\x00"+mj.ConfigName]
		if !ok {
			return result, sbmerr.New(sbmerr.BundleFormat, "job %s references unknown config %s@%s", mj.JobName, mj.ConfigName, mj.ClusterName)
		}

		status := mj.Status
		coerced := false
		if !status.IsTerminal() {
			status = models.StatusFailed
			coerced = true
		}

		job := models.Job{
			JobName:     mj.JobName,
			ConfigID:    configID,
			SubmitTime:  mj.SubmitTime,
			Command:     mj.Command,
			Preprocess:  mj.Preprocess,
			Postprocess: mj.Postprocess,
			Variables:   mj.Variables,
		}
		newID, err := st.InsertJob(job)
		if err != nil {
			return result, err
		}

		newDir := cfg.JobDir(newID)
		if err := st.UpdateDirectory(newID, newDir); err != nil {
			return result, err
		}
		if err := copyJobDirectory(newDir, jobFiles[mj.OriginalID], jobDirs[mj.OriginalID]); err != nil {
			return result, sbmerr.Wrap(sbmerr.ConfigIO, err, "restore job %d directory", newID)
		}

		if err := st.UpdateStatus(newID, status, nil, mj.StartTime, mj.EndTime); err != nil {
			return result, err
		}
		if err := st.SetArchived(newID, mj.Archived || coerced); err != nil {
			return result, err
		}

		result.JobsImported++
		if coerced {
			result.Coerced = append(result.Coerced, newID)
		}
	}

	return result, nil
}

// importClusters merges the bundle's clusters into st. Unlike the cluster
// config loader (which treats a local reload as authoritative and replaces
// max_jobs), a bundle re-importing a cluster that already exists locally
// with a different scheduler or max_jobs is rejected rather than merged:
// the two states came from different hosts and silently picking one would
// hide a real configuration drift.
func importClusters(st *store.Store, clusters []ManifestCluster) (map[string]int64, error) {
	ids := map[string]int64{}
	for _, mc := range clusters {
		existing, found, err := st.GetClusterByName(mc.ClusterName)
		if err != nil {
			return nil, err
		}
		if found {
			if existing.Scheduler != mc.Scheduler || existing.MaxJobs != mc.MaxJobs {
				return nil, sbmerr.New(sbmerr.BundleFormat,
					"cluster %s conflicts with existing definition (scheduler=%s max_jobs=%d vs imported scheduler=%s max_jobs=%d)",
					mc.ClusterName, existing.Scheduler, existing.MaxJobs, mc.Scheduler, mc.MaxJobs)
			}
			ids[mc.ClusterName] = existing.ID
			continue
		}

		c, err := st.UpsertCluster(models.Cluster{ClusterName: mc.ClusterName, Scheduler: mc.Scheduler, MaxJobs: mc.MaxJobs})
		if err != nil {
			return nil, err
		}
		ids[mc.ClusterName] = c.ID
	}
	return ids, nil
}

func importConfigs(st *store.Store, configs []ManifestConfig, clusterIDByName map[string]int64) (map[string]int64, error) {
	ids := map[string]int64{}
	for _, mc := range configs {
		clusterID, ok := clusterIDByName[mc.ClusterName]
		if !ok {
			return nil, sbmerr.New(sbmerr.BundleFormat, "config %s references unknown cluster %s", mc.ConfigName, mc.ClusterName)
		}
		c, err := st.UpsertConfig(models.Config{ConfigName: mc.ConfigName, ClusterID: clusterID, Flags: mc.Flags, Env: mc.Env})
		if err != nil {
			return nil, err
		}
		ids[mc.ClusterName+"\x00"+mc.ConfigName] = c.ID
	}
	return ids, nil
}

// parseJobEntry splits a tar entry name of the form "jobs/<id>/<rel...>"
// into the original job ID and the remaining relative path.
func parseJobEntry(name string) (originalID int64, relPath string, ok bool) {
	parts := strings.SplitN(name, "/", 3)
	if len(parts) < 2 || parts[0] != "jobs" {
		return 0, "", false
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, "", false
	}
	if len(parts) == 3 {
		relPath = parts[2]
	}
	return id, relPath, true
}

func copyJobDirectory(newDir string, files map[string][]byte, dirs map[string]bool) error {
	if err := os.MkdirAll(newDir, 0o755); err != nil {
		return err
	}
	for rel := range dirs {
		if rel == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Join(newDir, rel), 0o755); err != nil {
			return err
		}
	}
	for rel, data := range files {
		path := filepath.Join(newDir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
	}
	return nil
}
