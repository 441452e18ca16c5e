// SPDX-License-Identifier: LGPL-3.0-or-later

// Package sbatchman is the library surface wiring together config, store,
// expansion, lifecycle, and bundle: the same entry points the CLI (and any
// other embedder) drives.
package sbatchman

import (
	"context"
	"time"

	"sbatchman/bundle"
	"sbatchman/config"
	"sbatchman/expansion"
	"sbatchman/lifecycle"
	"sbatchman/logging"
	"sbatchman/models"
	"sbatchman/sbmerr"
	"sbatchman/store"
)

// App bundles the opened Store and resolved Config for one process run.
type App struct {
	Config config.Config
	Store  *store.Store
	Log    logging.Logger
}

// Open resolves configuration and opens (migrating, if needed) the store.
func Open(log logging.Logger) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, sbmerr.Wrap(sbmerr.ConfigIO, err, "load configuration")
	}
	st, err := store.Open(cfg.DBPath(), log)
	if err != nil {
		return nil, err
	}
	return &App{Config: cfg, Store: st, Log: log}, nil
}

// Close releases the underlying database handle.
func (a *App) Close() error { return a.Store.Close() }

// MigrateDB re-applies any pending schema migrations, independent of Open,
// for standalone upgrade tooling (the migrate_db operation).
func (a *App) MigrateDB() error { return a.Store.Migrate() }

// ImportClusterConfigsFromFile loads a cluster-config YAML file and
// upserts every cluster and config it declares.
func (a *App) ImportClusterConfigsFromFile(path string) error {
	doc, err := expansion.LoadClusterConfigDocument(path)
	if err != nil {
		return err
	}
	for clusterName, cs := range doc.Clusters {
		cluster, err := a.Store.UpsertCluster(models.Cluster{
			ClusterName: clusterName,
			Scheduler:   models.SchedulerKind(cs.Scheduler),
			MaxJobs:     cs.MaxJobs,
		})
		if err != nil {
			return err
		}
		for configName, confSpec := range cs.Configs {
			if _, err := a.Store.UpsertConfig(models.Config{
				ConfigName: configName,
				ClusterID:  cluster.ID,
				Flags:      confSpec.Flags,
				Env:        confSpec.Env,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// GetClusterConfig returns the stored cluster row by name.
func (a *App) GetClusterConfig(name string) (models.Cluster, bool, error) {
	return a.Store.GetClusterByName(name)
}

// GetSbatchmanPath returns the resolved root directory for this host.
func (a *App) GetSbatchmanPath() string { return a.Config.Root }

// SetClusterName persists this host's cluster_name.
func (a *App) SetClusterName(name string) error { return a.Config.SetClusterName(name) }

// GetClusterName returns this host's recorded cluster_name.
func (a *App) GetClusterName() string { return a.Config.GetClusterName() }

// ParseJobsFromFile runs Phases I–VIII of the Expansion Engine (Expand then
// Bind) against a job-expansion YAML file, without inserting anything.
func (a *App) ParseJobsFromFile(path string) ([]expansion.BoundJob, error) {
	expanded, err := expansion.Expand(path, expansion.TemplateEvaluator{})
	if err != nil {
		return nil, err
	}
	return expansion.Bind(expanded, a.configLookup)
}

func (a *App) configLookup(configName string, allowlist []string) ([]expansion.ClusterBinding, error) {
	matches, err := a.Store.FindConfigsByName(configName, allowlist)
	if err != nil {
		return nil, err
	}
	bindings := make([]expansion.ClusterBinding, len(matches))
	for i, m := range matches {
		bindings[i] = expansion.ClusterBinding{ClusterName: m.Cluster.ClusterName, ConfigID: m.Config.ID}
	}
	return bindings, nil
}

// LaunchJobs inserts each bound job into the store at virtualqueue status,
// returning the newly assigned job IDs.
func (a *App) LaunchJobs(jobs []expansion.BoundJob) ([]int64, error) {
	ids := make([]int64, 0, len(jobs))
	for _, j := range jobs {
		id, err := a.Store.InsertJob(models.Job{
			JobName:     j.JobName,
			ConfigID:    j.ConfigID,
			SubmitTime:  time.Now(),
			Command:     j.Command,
			Preprocess:  j.Preprocess,
			Postprocess: j.Postprocess,
			Variables:   j.Variables,
		})
		if err != nil {
			return ids, err
		}
		if err := a.Store.UpdateDirectory(id, a.Config.JobDir(id)); err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// RunJobsFromFile is the composition of ParseJobsFromFile and LaunchJobs:
// parse, bind, and enqueue every job a YAML file expands to.
func (a *App) RunJobsFromFile(path string) ([]int64, error) {
	jobs, err := a.ParseJobsFromFile(path)
	if err != nil {
		return nil, err
	}
	return a.LaunchJobs(jobs)
}

// GetJobs runs a Query (§4.6) against the store.
func (a *App) GetJobs(filter models.Filter) ([]models.JobView, error) {
	return a.Store.ListJobs(filter)
}

// ExportJobs writes a bundle of jobs matching filter to outPath.
func (a *App) ExportJobs(filter models.Filter, outPath string) (int, error) {
	return bundle.Export(a.Store, a.Config, filter, outPath)
}

// ImportJobs reads a bundle and merges it into the store.
func (a *App) ImportJobs(bundlePath string) (bundle.ImportResult, error) {
	return bundle.Import(a.Store, a.Config, bundlePath)
}

// NewLifecycleEngine builds the admission/polling/cancel engine for this App.
func (a *App) NewLifecycleEngine(selfExe string) *lifecycle.Engine {
	return lifecycle.New(a.Store, a.Config, a.Log, selfExe)
}

// RecoverFromMetadata rebuilds the database from jobs/ directory metadata.txt
// snapshots (§4.4), for an operator repairing a lost or corrupted database
// file without restarting the daemon's own startup recovery. Returns the
// number of job rows rebuilt.
func (a *App) RecoverFromMetadata() (int, error) {
	return lifecycle.RebuildFromMetadata(a.Store, a.Config.JobsDir(), a.Log)
}

// SetStatus is the internal __set-status callback entry point invoked from
// generated run scripts: it writes a monotonic status transition for jobID.
func (a *App) SetStatus(jobID int64, status models.JobStatus, schedulerJobID *string) error {
	now := time.Now()
	var start, end *time.Time
	switch status {
	case models.StatusRunning:
		start = &now
	case models.StatusCompleted, models.StatusFailed:
		end = &now
	}
	return a.Store.UpdateStatus(jobID, status, schedulerJobID, start, end)
}

// CancelJob cancels one job via the Lifecycle Engine.
func (a *App) CancelJob(ctx context.Context, selfExe string, jobID int64) error {
	return a.NewLifecycleEngine(selfExe).Cancel(ctx, jobID)
}
