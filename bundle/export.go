// SPDX-License-Identifier: LGPL-3.0-or-later

package bundle

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"sbatchman/config"
	"sbatchman/models"
	"sbatchman/sbmerr"
	"sbatchman/store"
)

// Export writes a tar.gz bundle of every job matching filter to outPath:
// manifest.json plus each job's on-disk directory under jobs/<original_id>/.
func Export(st *store.Store, cfg config.Config, filter models.Filter, outPath string) (int, error) {
	views, err := st.ListJobs(filter)
	if err != nil {
		return 0, err
	}
	if len(views) == 0 {
		return 0, nil
	}

	manifest, err := buildManifest(st, views)
	if err != nil {
		return 0, err
	}

	out, err := os.Create(outPath)
	if err != nil {
		return 0, sbmerr.Wrap(sbmerr.ConfigIO, err, "create bundle %s", outPath)
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	manifestJSON, err := marshalManifest(manifest)
	if err != nil {
		return 0, sbmerr.Wrap(sbmerr.BundleFormat, err, "marshal manifest")
	}
	if err := writeTarFile(tw, manifestFileName, manifestJSON); err != nil {
		return 0, sbmerr.Wrap(sbmerr.ConfigIO, err, "write manifest into bundle")
	}

	for _, v := range views {
		if err := addJobDirectory(tw, cfg.JobDir(v.ID), v.ID); err != nil {
			return 0, sbmerr.Wrap(sbmerr.ConfigIO, err, "archive job %d directory", v.ID)
		}
	}

	if err := tw.Close(); err != nil {
		return 0, sbmerr.Wrap(sbmerr.ConfigIO, err, "close tar writer")
	}
	if err := gz.Close(); err != nil {
		return 0, sbmerr.Wrap(sbmerr.ConfigIO, err, "close gzip writer")
	}
	if err := out.Close(); err != nil {
		return 0, sbmerr.Wrap(sbmerr.ConfigIO, err, "close bundle file")
	}
	if err := writeChecksum(outPath); err != nil {
		return 0, err
	}
	return len(views), nil
}

func buildManifest(st *store.Store, views []models.JobView) (Manifest, error) {
	clusterSeen := map[string]bool{}
	configSeen := map[string]bool{}
	m := Manifest{ExportID: uuid.New().String(), ExportedAt: time.Now()}

	for _, v := range views {
		if !clusterSeen[v.ClusterName] {
			clusterSeen[v.ClusterName] = true
			cluster, ok, err := st.GetClusterByName(v.ClusterName)
			if err != nil {
				return Manifest{}, err
			}
			if !ok {
				return Manifest{}, sbmerr.New(sbmerr.Invariant, "job references missing cluster %s", v.ClusterName)
			}
			m.Clusters = append(m.Clusters, ManifestCluster{ClusterName: v.ClusterName, Scheduler: v.Scheduler, MaxJobs: cluster.MaxJobs})
		}
		configKey := v.ClusterName + "\x00" + v.ConfigName
		if !configSeen[configKey] {
			configSeen[configKey] = true
			cfg, ok, err := st.GetConfigByID(v.ConfigID)
			if err != nil {
				return Manifest{}, err
			}
			if !ok {
				return Manifest{}, sbmerr.New(sbmerr.Invariant, "job references missing config %d", v.ConfigID)
			}
			m.Configs = append(m.Configs, ManifestConfig{
				ConfigName:  v.ConfigName,
				ClusterName: v.ClusterName,
				Flags:       cfg.Flags,
				Env:         cfg.Env,
			})
		}
		m.Jobs = append(m.Jobs, ManifestJob{
			OriginalID:  v.ID,
			JobName:     v.JobName,
			ConfigName:  v.ConfigName,
			ClusterName: v.ClusterName,
			SubmitTime:  v.SubmitTime,
			StartTime:   v.StartTime,
			EndTime:     v.EndTime,
			Command:     v.Command,
			Status:      v.Status,
			Preprocess:  v.Preprocess,
			Postprocess: v.Postprocess,
			Archived:    v.Archived,
			Variables:   v.Variables,
		})
	}
	return m, nil
}

func writeTarFile(tw *tar.Writer, name string, data []byte) error {
	hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(data))}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := tw.Write(data)
	return err
}

func addJobDirectory(tw *tar.Writer, jobDirectory string, jobID int64) error {
	if _, err := os.Stat(jobDirectory); os.IsNotExist(err) {
		return nil
	}
	prefix := filepath.Join("jobs", strconv.FormatInt(jobID, 10))

	return filepath.Walk(jobDirectory, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		relPath, err := filepath.Rel(jobDirectory, path)
		if err != nil {
			return err
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.Join(prefix, relPath)
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
}
