// SPDX-License-Identifier: LGPL-3.0-or-later

package bundle

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sbatchman/config"
	"sbatchman/logging"
	"sbatchman/models"
	"sbatchman/store"
)

func newExportFixture(t *testing.T) (*store.Store, config.Config) {
	t.Helper()
	root := t.TempDir()
	st, err := store.Open(filepath.Join(root, "test.db"), logging.Nop{})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	cfg := config.Config{Root: root}

	cluster, err := st.UpsertCluster(models.Cluster{ClusterName: "gpu01", Scheduler: models.SchedulerLocal, MaxJobs: 4})
	require.NoError(t, err)
	cfgRow, err := st.UpsertConfig(models.Config{ConfigName: "default", ClusterID: cluster.ID, Flags: []string{"-N", "1"}})
	require.NoError(t, err)

	id, err := st.InsertJob(models.Job{JobName: "job1", ConfigID: cfgRow.ID, SubmitTime: time.Now(), Command: "echo hi"})
	require.NoError(t, err)
	now := time.Now()
	require.NoError(t, st.UpdateStatus(id, models.StatusCompleted, nil, &now, &now))
	require.NoError(t, st.UpdateDirectory(id, cfg.JobDir(id)))

	jobDir := cfg.JobDir(id)
	require.NoError(t, os.MkdirAll(jobDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(jobDir, "stdout.log"), []byte("hello\n"), 0o644))

	return st, cfg
}

func TestExportImportRoundTrip(t *testing.T) {
	st, cfg := newExportFixture(t)
	bundlePath := filepath.Join(t.TempDir(), "export.tar.gz")

	n, err := Export(st, cfg, models.Filter{}, bundlePath)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	if _, err := os.Stat(bundlePath + checksumSuffix); err != nil {
		t.Errorf("expected a checksum sidecar next to the bundle: %v", err)
	}

	destRoot := t.TempDir()
	destStore, err := store.Open(filepath.Join(destRoot, "dest.db"), logging.Nop{})
	require.NoError(t, err)
	t.Cleanup(func() { destStore.Close() })
	destCfg := config.Config{Root: destRoot}

	result, err := Import(destStore, destCfg, bundlePath)
	require.NoError(t, err)
	assert.Equal(t, 1, result.JobsImported)
	assert.Empty(t, result.Coerced, "a completed job must not be coerced on import")

	views, err := destStore.ListJobs(models.Filter{})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "job1", views[0].JobName)
	assert.Equal(t, models.StatusCompleted, views[0].Status)

	restoredLog, err := os.ReadFile(filepath.Join(destCfg.JobDir(views[0].ID), "stdout.log"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(restoredLog))

	destConfig, ok, err := destStore.GetConfigByID(views[0].ConfigID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"-N", "1"}, destConfig.Flags, "config flags must survive export/import")
}

func TestImportCoercesNonTerminalJobsToFailed(t *testing.T) {
	root := t.TempDir()
	st, err := store.Open(filepath.Join(root, "test.db"), logging.Nop{})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	cfg := config.Config{Root: root}

	cluster, _ := st.UpsertCluster(models.Cluster{ClusterName: "gpu01", Scheduler: models.SchedulerLocal})
	cfgRow, _ := st.UpsertConfig(models.Config{ConfigName: "default", ClusterID: cluster.ID})
	id, err := st.InsertJob(models.Job{JobName: "stuck-job", ConfigID: cfgRow.ID, SubmitTime: time.Now()})
	require.NoError(t, err)
	now := time.Now()
	require.NoError(t, st.UpdateStatus(id, models.StatusRunning, nil, &now, nil))
	require.NoError(t, st.UpdateDirectory(id, cfg.JobDir(id)))

	bundlePath := filepath.Join(t.TempDir(), "export.tar.gz")
	_, err = Export(st, cfg, models.Filter{}, bundlePath)
	require.NoError(t, err)

	destRoot := t.TempDir()
	destStore, err := store.Open(filepath.Join(destRoot, "dest.db"), logging.Nop{})
	require.NoError(t, err)
	t.Cleanup(func() { destStore.Close() })

	result, err := Import(destStore, config.Config{Root: destRoot}, bundlePath)
	require.NoError(t, err)
	require.Len(t, result.Coerced, 1)

	views, err := destStore.ListJobs(models.Filter{})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, models.StatusFailed, views[0].Status)
	assert.True(t, views[0].Archived)
}

func TestImportRejectsConflictingClusterDefinition(t *testing.T) {
	st, cfg := newExportFixture(t)
	bundlePath := filepath.Join(t.TempDir(), "export.tar.gz")
	_, err := Export(st, cfg, models.Filter{}, bundlePath)
	require.NoError(t, err)

	destRoot := t.TempDir()
	destStore, err := store.Open(filepath.Join(destRoot, "dest.db"), logging.Nop{})
	require.NoError(t, err)
	t.Cleanup(func() { destStore.Close() })

	// A cluster of the same name but a different scheduler already exists locally.
	_, err = destStore.UpsertCluster(models.Cluster{ClusterName: "gpu01", Scheduler: models.SchedulerSlurm, MaxJobs: 4})
	require.NoError(t, err)

	_, err = Import(destStore, config.Config{Root: destRoot}, bundlePath)
	require.Error(t, err)
}

func TestImportRejectsTamperedBundle(t *testing.T) {
	st, cfg := newExportFixture(t)
	bundlePath := filepath.Join(t.TempDir(), "export.tar.gz")
	_, err := Export(st, cfg, models.Filter{}, bundlePath)
	require.NoError(t, err)

	f, err := os.OpenFile(bundlePath, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte("corruption"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	destRoot := t.TempDir()
	destStore, err := store.Open(filepath.Join(destRoot, "dest.db"), logging.Nop{})
	require.NoError(t, err)
	t.Cleanup(func() { destStore.Close() })

	_, err = Import(destStore, config.Config{Root: destRoot}, bundlePath)
	require.Error(t, err)
}

func TestExportWithNoMatchingJobsWritesNothing(t *testing.T) {
	st, cfg := newExportFixture(t)
	bundlePath := filepath.Join(t.TempDir(), "export.tar.gz")

	n, err := Export(st, cfg, models.Filter{NamePattern: "no-such-job"}, bundlePath)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, statErr := os.Stat(bundlePath)
	assert.True(t, os.IsNotExist(statErr), "no bundle file should be created when nothing matches")
}
