// SPDX-License-Identifier: LGPL-3.0-or-later

package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"sbatchman/config"
	"sbatchman/logging"
	"sbatchman/metrics"
	"sbatchman/models"
	"sbatchman/scheduler"
	"sbatchman/sbmerr"
	"sbatchman/store"
)

// Engine drives admission, polling, and cancellation for every job under a
// Store. One Engine runs per sbatchman process (daemon or foreground CLI
// wait loop); cron schedules its two ticks at the configured poll interval.
type Engine struct {
	store  *store.Store
	cfg    config.Config
	log    logging.Logger
	selfExe string

	mu       sync.Mutex
	unknownStreak map[int64]int // consecutive "unknown" polls per job, for §5 tolerance

	cron *cron.Cron
}

// New constructs an Engine. selfExe is the absolute path to the running
// sbatchman binary, embedded into generated run scripts for the
// __set-status callback.
func New(st *store.Store, cfg config.Config, log logging.Logger, selfExe string) *Engine {
	return &Engine{
		store:         st,
		cfg:           cfg,
		log:           log,
		selfExe:       selfExe,
		unknownStreak: map[int64]int{},
	}
}

// Start schedules the admission and polling ticks on cfg.PollInterval and
// returns immediately; call Stop to shut down.
func (e *Engine) Start() {
	e.cron = cron.New(cron.WithSeconds())
	spec := secondsSpec(e.cfg.PollInterval)
	e.cron.AddFunc(spec, func() { e.AdmissionTick(context.Background()) })
	e.cron.AddFunc(spec, func() { e.PollingTick(context.Background()) })
	e.cron.Start()
	e.log.Info("lifecycle engine started", "poll_interval", e.cfg.PollInterval)
}

// Stop halts scheduled ticks and waits for any in-flight run to finish.
func (e *Engine) Stop() {
	if e.cron != nil {
		ctx := e.cron.Stop()
		<-ctx.Done()
	}
}

// secondsSpec renders a robfig/cron "every N seconds" spec from d, floored
// at one second since the admission/poll cadence is never sub-second.
func secondsSpec(d time.Duration) string {
	n := int(d / time.Second)
	if n < 1 {
		n = 1
	}
	return "@every " + time.Duration(n*int(time.Second)).String()
}

// AdmissionTick promotes virtualqueue jobs to queued, per cluster, up to
// max_jobs minus currently active (queued+running) jobs (§4.4). Admissions
// across clusters run concurrently, bounded by one goroutine per cluster.
func (e *Engine) AdmissionTick(ctx context.Context) {
	start := time.Now()
	defer func() { metrics.AdmissionTickDuration.Observe(time.Since(start).Seconds()) }()

	clusters, err := e.store.AllClusters()
	if err != nil {
		e.log.Error("admission tick: list clusters", "error", err)
		return
	}

	var wg sync.WaitGroup
	for _, c := range clusters {
		wg.Add(1)
		go func(c models.Cluster) {
			defer wg.Done()
			e.admitCluster(ctx, c)
		}(c)
	}
	wg.Wait()
}

// unboundedSlots is the batch size used for NextInVirtualQueue when no cap
// applies: a cluster whose max_jobs is 0 (unlimited concurrency), or the
// queue-depth sample.
const unboundedSlots = 1 << 20

func (e *Engine) admitCluster(ctx context.Context, c models.Cluster) {
	waiting, err := e.store.NextInVirtualQueue(c.ID, unboundedSlots)
	if err != nil {
		e.log.Error("admission tick: measure virtual queue", "cluster", c.ClusterName, "error", err)
		return
	}
	metrics.QueueDepth.WithLabelValues(c.ClusterName, "virtualqueue").Set(float64(len(waiting)))

	slots := unboundedSlots
	if c.MaxJobs > 0 {
		active, err := e.store.CountActive(c.ID)
		if err != nil {
			e.log.Error("admission tick: count active", "cluster", c.ClusterName, "error", err)
			return
		}
		slots = c.MaxJobs - active
		if slots <= 0 {
			return
		}
	}

	ids, err := e.store.NextInVirtualQueue(c.ID, slots)
	if err != nil {
		e.log.Error("admission tick: next in virtual queue", "cluster", c.ClusterName, "error", err)
		return
	}

	for _, id := range ids {
		if err := e.admitJob(ctx, id, c); err != nil {
			e.log.Error("admission tick: admit job", "job", id, "cluster", c.ClusterName, "error", err)
		}
	}
}

func (e *Engine) admitJob(ctx context.Context, jobID int64, cluster models.Cluster) error {
	job, ok, err := e.store.GetJob(jobID)
	if err != nil {
		return err
	}
	if !ok {
		return sbmerr.New(sbmerr.Invariant, "admitted job %d vanished", jobID)
	}
	cfgRow, ok, err := e.store.GetConfigByID(job.ConfigID)
	if err != nil {
		return err
	}
	if !ok {
		return sbmerr.New(sbmerr.Invariant, "job %d references missing config %d", jobID, job.ConfigID)
	}

	runScriptPath, err := Materialize(job, cluster, cfgRow, job.Directory, e.selfExe)
	if err != nil {
		return sbmerr.Wrap(sbmerr.StoreIO, err, "materialize job %d", jobID)
	}

	adapterCtx, cancel := context.WithTimeout(ctx, e.cfg.AdapterTimeout)
	defer cancel()

	adapter := scheduler.For(cluster.Scheduler)
	submitStart := time.Now()
	schedulerJobID, err := adapter.Submit(adapterCtx, job.Directory, runScriptPath, cfgRow.Flags, cfgRow.Env)
	metrics.AdapterCallDuration.WithLabelValues(string(cluster.Scheduler), "submit").Observe(time.Since(submitStart).Seconds())
	if err != nil {
		metrics.AdapterErrors.WithLabelValues(string(cluster.Scheduler), "submit").Inc()
		now := time.Now()
		e.store.UpdateStatus(jobID, models.StatusFailed, nil, nil, &now)
		metrics.JobsTerminal.WithLabelValues(cluster.ClusterName, string(models.StatusFailed)).Inc()
		return err
	}

	metrics.JobsSubmitted.WithLabelValues(cluster.ClusterName, string(cluster.Scheduler)).Inc()
	now := time.Now()
	return e.store.UpdateStatus(jobID, models.StatusQueued, &schedulerJobID, &now, nil)
}

// PollingTick walks every non-terminal job, queries its scheduler adapter,
// and reconciles status. A job polling "unknown" for UnknownTolerance
// consecutive ticks is treated as failed (§5).
func (e *Engine) PollingTick(ctx context.Context) {
	start := time.Now()
	defer func() { metrics.PollingTickDuration.Observe(time.Since(start).Seconds()) }()

	ids, err := e.store.NonTerminalJobIDs()
	if err != nil {
		e.log.Error("polling tick: list non-terminal jobs", "error", err)
		return
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if err := e.pollJob(ctx, id); err != nil {
				e.log.Error("polling tick: poll job", "job", id, "error", err)
			}
		}(id)
	}
	wg.Wait()
}

func (e *Engine) pollJob(ctx context.Context, jobID int64) error {
	job, ok, err := e.store.GetJob(jobID)
	if err != nil || !ok || job.SchedulerJobID == nil {
		return err
	}
	cfgRow, ok, err := e.store.GetConfigByID(job.ConfigID)
	if err != nil || !ok {
		return err
	}
	cluster, ok, err := e.store.GetClusterByID(cfgRow.ClusterID)
	if err != nil || !ok {
		return err
	}

	adapterCtx, cancel := context.WithTimeout(ctx, e.cfg.AdapterTimeout)
	defer cancel()

	adapter := scheduler.For(cluster.Scheduler)
	pollStart := time.Now()
	status, err := adapter.Poll(adapterCtx, *job.SchedulerJobID)
	metrics.AdapterCallDuration.WithLabelValues(string(cluster.Scheduler), "poll").Observe(time.Since(pollStart).Seconds())
	if err != nil {
		metrics.AdapterErrors.WithLabelValues(string(cluster.Scheduler), "poll").Inc()
		return err
	}

	if status == scheduler.PollUnknown {
		return e.handleUnknown(jobID)
	}
	e.clearUnknown(jobID)

	switch status {
	case scheduler.PollRunning:
		if job.Status == models.StatusQueued {
			now := time.Now()
			return e.store.UpdateStatus(jobID, models.StatusRunning, nil, &now, nil)
		}
	case scheduler.PollCompleted:
		metrics.JobsTerminal.WithLabelValues(cluster.ClusterName, string(models.StatusCompleted)).Inc()
		now := time.Now()
		return e.store.UpdateStatus(jobID, models.StatusCompleted, nil, nil, &now)
	case scheduler.PollFailed:
		metrics.JobsTerminal.WithLabelValues(cluster.ClusterName, string(models.StatusFailed)).Inc()
		now := time.Now()
		return e.store.UpdateStatus(jobID, models.StatusFailed, nil, nil, &now)
	}
	return nil
}

func (e *Engine) handleUnknown(jobID int64) error {
	e.mu.Lock()
	e.unknownStreak[jobID]++
	streak := e.unknownStreak[jobID]
	e.mu.Unlock()

	if streak < e.cfg.UnknownTolerance {
		return nil
	}
	e.log.Warn("job exceeded unknown-status tolerance, marking failed", "job", jobID, "streak", streak)
	now := time.Now()
	return e.store.UpdateStatus(jobID, models.StatusFailed, nil, nil, &now)
}

func (e *Engine) clearUnknown(jobID int64) {
	e.mu.Lock()
	delete(e.unknownStreak, jobID)
	e.mu.Unlock()
}

// Cancel cancels a job: best-effort adapter cancellation followed by a
// terminal-failed status write, regardless of adapter outcome (§4.4).
func (e *Engine) Cancel(ctx context.Context, jobID int64) error {
	job, ok, err := e.store.GetJob(jobID)
	if err != nil {
		return err
	}
	if !ok {
		return sbmerr.New(sbmerr.Invariant, "cancel: job %d not found", jobID)
	}
	if job.Status.IsTerminal() {
		return nil
	}

	if job.SchedulerJobID != nil {
		cfgRow, ok, err := e.store.GetConfigByID(job.ConfigID)
		if err == nil && ok {
			if cluster, ok, err := e.store.GetClusterByID(cfgRow.ClusterID); err == nil && ok {
				adapterCtx, cancel := context.WithTimeout(ctx, e.cfg.AdapterTimeout)
				defer cancel()
				if err := scheduler.For(cluster.Scheduler).Cancel(adapterCtx, *job.SchedulerJobID); err != nil {
					e.log.Warn("cancel: adapter cancel failed", "job", jobID, "error", err)
				}
			}
		}
	}

	now := time.Now()
	return e.store.UpdateStatus(jobID, models.StatusFailed, nil, nil, &now)
}

// Recover re-polls every non-terminal job at startup, covering the case
// where the process died between a scheduler submission and its next poll.
func (e *Engine) Recover(ctx context.Context) {
	ids, err := e.store.NonTerminalJobIDs()
	if err != nil {
		e.log.Error("recover: list non-terminal jobs", "error", err)
		return
	}
	e.log.Info("recovering non-terminal jobs", "count", len(ids))
	for _, id := range ids {
		if err := e.pollJob(ctx, id); err != nil {
			e.log.Error("recover: poll job", "job", id, "error", err)
		}
	}
}
