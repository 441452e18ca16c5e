// SPDX-License-Identifier: LGPL-3.0-or-later

// Package store is the SQLite-backed persistence layer for clusters, configs,
// jobs, and the virtual queue. An in-process mutex serializes this Store's
// writes; no lock is taken on the database file itself, so writers in other
// processes are not excluded. The *sql.DB pool holds a single connection, so
// reads and writes take turns on it.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"sbatchman/logging"
	"sbatchman/models"
	"sbatchman/sbmerr"
)

// Store is the SQLite-backed persistence layer described in §4.2.
type Store struct {
	db      *sql.DB
	writeMu sync.Mutex // serializes writes within this process; not a file lock
	log     logging.Logger
}

// Open opens (creating if necessary) the SQLite database at path, enables
// WAL mode, and applies any pending schema migrations.
func Open(path string, log logging.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, sbmerr.Wrap(sbmerr.StoreIO, err, "open database %s", path)
	}
	db.SetMaxOpenConns(1) // sqlite3 driver is not safe for concurrent writers regardless of WAL

	s := &Store{db: db, log: log}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return sbmerr.Wrap(sbmerr.StoreSchema, err, "create schema_version table")
	}

	current := 0
	row := s.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`)
	if err := row.Scan(&current); err != nil && err != sql.ErrNoRows {
		return sbmerr.Wrap(sbmerr.StoreSchema, err, "read schema_version")
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if _, err := s.db.Exec(m.SQL); err != nil {
			return sbmerr.Wrap(sbmerr.StoreSchema, err, "apply migration %d", m.Version)
		}
		current = m.Version
	}

	if _, err := s.db.Exec(`DELETE FROM schema_version`); err != nil {
		return sbmerr.Wrap(sbmerr.StoreSchema, err, "reset schema_version")
	}
	if _, err := s.db.Exec(`INSERT INTO schema_version(version) VALUES (?)`, current); err != nil {
		return sbmerr.Wrap(sbmerr.StoreSchema, err, "write schema_version")
	}
	s.log.Info("schema up to date", "version", current)
	return nil
}

// Migrate re-applies any pending schema migrations; safe to call repeatedly
// (idempotent), independent of Open, for standalone upgrade tooling.
func (s *Store) Migrate() error { return s.migrate() }

// UpsertCluster creates a cluster row by cluster_name, or updates an existing
// one: a different max_jobs under the same scheduler replaces the stored
// max_jobs, while a different scheduler is rejected with a BundleFormat
// error. Returns the stored row.
func (s *Store) UpsertCluster(c models.Cluster) (models.Cluster, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var existing models.Cluster
	var schedulerStr string
	row := s.db.QueryRow(`SELECT id, cluster_name, scheduler, max_jobs FROM clusters WHERE cluster_name = ?`, c.ClusterName)
	err := row.Scan(&existing.ID, &existing.ClusterName, &schedulerStr, &existing.MaxJobs)
	switch {
	case err == sql.ErrNoRows:
		res, err := s.db.Exec(`INSERT INTO clusters(cluster_name, scheduler, max_jobs) VALUES (?,?,?)`,
			c.ClusterName, string(c.Scheduler), c.MaxJobs)
		if err != nil {
			return models.Cluster{}, sbmerr.Wrap(sbmerr.StoreIO, err, "insert cluster %s", c.ClusterName)
		}
		id, _ := res.LastInsertId()
		c.ID = id
		return c, nil
	case err != nil:
		return models.Cluster{}, sbmerr.Wrap(sbmerr.StoreIO, err, "lookup cluster %s", c.ClusterName)
	}
	existing.Scheduler = models.SchedulerKind(schedulerStr)

	if existing.Scheduler == c.Scheduler && existing.MaxJobs != c.MaxJobs {
		// Re-import of the same cluster's own config: replace max_jobs.
		if _, err := s.db.Exec(`UPDATE clusters SET max_jobs = ? WHERE id = ?`, c.MaxJobs, existing.ID); err != nil {
			return models.Cluster{}, sbmerr.Wrap(sbmerr.StoreIO, err, "update cluster %s", c.ClusterName)
		}
		existing.MaxJobs = c.MaxJobs
		return existing, nil
	}
	if existing.Scheduler != c.Scheduler {
		return models.Cluster{}, sbmerr.New(sbmerr.BundleFormat,
			"cluster %s already exists with scheduler %s, cannot rebind to %s", c.ClusterName, existing.Scheduler, c.Scheduler)
	}
	return existing, nil
}

// UpsertConfig creates or replaces a config row by (cluster_id, config_name).
func (s *Store) UpsertConfig(c models.Config) (models.Config, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	flagsJSON, _ := json.Marshal(c.Flags)
	envJSON, _ := json.Marshal(c.Env)

	var existingID int64
	row := s.db.QueryRow(`SELECT id FROM configs WHERE cluster_id = ? AND config_name = ?`, c.ClusterID, c.ConfigName)
	err := row.Scan(&existingID)
	switch {
	case err == sql.ErrNoRows:
		res, err := s.db.Exec(`INSERT INTO configs(config_name, cluster_id, flags_json, env_json) VALUES (?,?,?,?)`,
			c.ConfigName, c.ClusterID, string(flagsJSON), string(envJSON))
		if err != nil {
			return models.Config{}, sbmerr.Wrap(sbmerr.StoreIO, err, "insert config %s", c.ConfigName)
		}
		id, _ := res.LastInsertId()
		c.ID = id
		return c, nil
	case err != nil:
		return models.Config{}, sbmerr.Wrap(sbmerr.StoreIO, err, "lookup config %s", c.ConfigName)
	}
	if _, err := s.db.Exec(`UPDATE configs SET flags_json = ?, env_json = ? WHERE id = ?`, string(flagsJSON), string(envJSON), existingID); err != nil {
		return models.Config{}, sbmerr.Wrap(sbmerr.StoreIO, err, "replace config %s", c.ConfigName)
	}
	c.ID = existingID
	return c, nil
}

// GetClusterByName looks up a cluster by its unique name.
func (s *Store) GetClusterByName(name string) (models.Cluster, bool, error) {
	var c models.Cluster
	var schedulerStr string
	row := s.db.QueryRow(`SELECT id, cluster_name, scheduler, max_jobs FROM clusters WHERE cluster_name = ?`, name)
	err := row.Scan(&c.ID, &c.ClusterName, &schedulerStr, &c.MaxJobs)
	if err == sql.ErrNoRows {
		return models.Cluster{}, false, nil
	}
	if err != nil {
		return models.Cluster{}, false, sbmerr.Wrap(sbmerr.StoreIO, err, "lookup cluster %s", name)
	}
	c.Scheduler = models.SchedulerKind(schedulerStr)
	return c, true, nil
}

// GetConfigByID fetches a single config row by ID.
func (s *Store) GetConfigByID(id int64) (models.Config, bool, error) {
	var c models.Config
	var flagsJSON, envJSON string
	row := s.db.QueryRow(`SELECT id, config_name, cluster_id, flags_json, env_json FROM configs WHERE id = ?`, id)
	err := row.Scan(&c.ID, &c.ConfigName, &c.ClusterID, &flagsJSON, &envJSON)
	if err == sql.ErrNoRows {
		return models.Config{}, false, nil
	}
	if err != nil {
		return models.Config{}, false, sbmerr.Wrap(sbmerr.StoreIO, err, "get config %d", id)
	}
	json.Unmarshal([]byte(flagsJSON), &c.Flags)
	json.Unmarshal([]byte(envJSON), &c.Env)
	return c, true, nil
}

// GetClusterByID fetches a single cluster row by ID.
func (s *Store) GetClusterByID(id int64) (models.Cluster, bool, error) {
	var c models.Cluster
	var schedulerStr string
	row := s.db.QueryRow(`SELECT id, cluster_name, scheduler, max_jobs FROM clusters WHERE id = ?`, id)
	err := row.Scan(&c.ID, &c.ClusterName, &schedulerStr, &c.MaxJobs)
	if err == sql.ErrNoRows {
		return models.Cluster{}, false, nil
	}
	if err != nil {
		return models.Cluster{}, false, sbmerr.Wrap(sbmerr.StoreIO, err, "get cluster %d", id)
	}
	c.Scheduler = models.SchedulerKind(schedulerStr)
	return c, true, nil
}

// ConfigMatch is a candidate cluster_config binding target for Phase VII.
type ConfigMatch struct {
	Config  models.Config
	Cluster models.Cluster
}

// FindConfigsByName returns every (config, cluster) pair across all clusters
// whose config_name matches, optionally restricted to clusters named in
// allowlist (nil/empty means no restriction).
func (s *Store) FindConfigsByName(configName string, allowlist []string) ([]ConfigMatch, error) {
	query := `
SELECT c.id, c.config_name, c.cluster_id, c.flags_json, c.env_json,
       cl.id, cl.cluster_name, cl.scheduler, cl.max_jobs
FROM configs c
JOIN clusters cl ON cl.id = c.cluster_id
WHERE c.config_name = ?`
	args := []interface{}{configName}
	if len(allowlist) > 0 {
		placeholders := make([]string, len(allowlist))
		for i, name := range allowlist {
			placeholders[i] = "?"
			args = append(args, name)
		}
		query += fmt.Sprintf(" AND cl.cluster_name IN (%s)", strings.Join(placeholders, ","))
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, sbmerr.Wrap(sbmerr.StoreIO, err, "find configs named %s", configName)
	}
	defer rows.Close()

	var matches []ConfigMatch
	for rows.Next() {
		var m ConfigMatch
		var flagsJSON, envJSON, schedulerStr string
		if err := rows.Scan(&m.Config.ID, &m.Config.ConfigName, &m.Config.ClusterID, &flagsJSON, &envJSON,
			&m.Cluster.ID, &m.Cluster.ClusterName, &schedulerStr, &m.Cluster.MaxJobs); err != nil {
			return nil, sbmerr.Wrap(sbmerr.StoreIO, err, "scan config match")
		}
		json.Unmarshal([]byte(flagsJSON), &m.Config.Flags)
		json.Unmarshal([]byte(envJSON), &m.Config.Env)
		m.Cluster.Scheduler = models.SchedulerKind(schedulerStr)
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// InsertJob inserts a new job with status=virtualqueue and a corresponding
// VirtualQueue row, per the creation invariant in §3.
func (s *Store) InsertJob(j models.Job) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	varsJSON, _ := json.Marshal(j.Variables)

	tx, err := s.db.Begin()
	if err != nil {
		return 0, sbmerr.Wrap(sbmerr.StoreIO, err, "begin insert job transaction")
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
INSERT INTO jobs(job_name, config_id, submit_time, directory, command, status, preprocess, postprocess, archived, variables_json)
VALUES (?,?,?,?,?,?,?,?,0,?)`,
		j.JobName, j.ConfigID, j.SubmitTime, j.Directory, j.Command, models.StatusVirtualQueue, j.Preprocess, j.Postprocess, string(varsJSON))
	if err != nil {
		return 0, sbmerr.Wrap(sbmerr.StoreIO, err, "insert job %s", j.JobName)
	}
	id, _ := res.LastInsertId()

	if _, err := tx.Exec(`INSERT INTO virtual_queue(job_id) VALUES (?)`, id); err != nil {
		return 0, sbmerr.Wrap(sbmerr.StoreIO, err, "enqueue job %d", id)
	}
	if err := tx.Commit(); err != nil {
		return 0, sbmerr.Wrap(sbmerr.StoreIO, err, "commit insert job %s", j.JobName)
	}
	return id, nil
}

// RebuildJob re-inserts a job row preserving its original ID, used by
// lifecycle.RebuildFromMetadata to reconstruct a lost database from
// metadata.txt snapshots. A row already present at that ID is left
// untouched: a partially-rebuilt database (the process died mid-recovery,
// or a second recover run overlaps a first) must not regress state that
// already advanced past what the snapshot recorded.
func (s *Store) RebuildJob(j models.Job) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	varsJSON, _ := json.Marshal(j.Variables)
	archivedInt := 0
	if j.Archived {
		archivedInt = 1
	}

	tx, err := s.db.Begin()
	if err != nil {
		return sbmerr.Wrap(sbmerr.StoreIO, err, "begin rebuild job transaction")
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
INSERT OR IGNORE INTO jobs(id, job_name, config_id, submit_time, start_time, end_time, directory, command, status, scheduler_job_id, preprocess, postprocess, archived, variables_json)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		j.ID, j.JobName, j.ConfigID, j.SubmitTime, j.StartTime, j.EndTime, j.Directory, j.Command,
		j.Status, j.SchedulerJobID, j.Preprocess, j.Postprocess, archivedInt, string(varsJSON))
	if err != nil {
		return sbmerr.Wrap(sbmerr.StoreIO, err, "rebuild job %d", j.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return sbmerr.Wrap(sbmerr.StoreIO, err, "rebuild job %d", j.ID)
	}
	if n == 0 {
		return tx.Commit()
	}

	if j.Status == models.StatusVirtualQueue {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO virtual_queue(job_id) VALUES (?)`, j.ID); err != nil {
			return sbmerr.Wrap(sbmerr.StoreIO, err, "re-enqueue job %d", j.ID)
		}
	}
	return tx.Commit()
}

// UpdateDirectory rewrites a job's on-disk directory path, used by Bundle
// import once the freshly allocated job ID (and therefore its directory
// under the local root) is known.
func (s *Store) UpdateDirectory(jobID int64, directory string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.Exec(`UPDATE jobs SET directory = ? WHERE id = ?`, directory, jobID)
	if err != nil {
		return sbmerr.Wrap(sbmerr.StoreIO, err, "update directory for job %d", jobID)
	}
	return nil
}

// GetJob fetches a single job by ID.
func (s *Store) GetJob(id int64) (models.Job, bool, error) {
	row := s.db.QueryRow(`
SELECT id, job_name, config_id, submit_time, start_time, end_time, directory, command,
       status, scheduler_job_id, preprocess, postprocess, archived, variables_json
FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return models.Job{}, false, nil
	}
	if err != nil {
		return models.Job{}, false, sbmerr.Wrap(sbmerr.StoreIO, err, "get job %d", id)
	}
	return j, true, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (models.Job, error) {
	var j models.Job
	var submitTime time.Time
	var startTime, endTime sql.NullTime
	var schedulerJobID sql.NullString
	var statusStr string
	var archivedInt int
	var varsJSON string

	if err := row.Scan(&j.ID, &j.JobName, &j.ConfigID, &submitTime, &startTime, &endTime, &j.Directory, &j.Command,
		&statusStr, &schedulerJobID, &j.Preprocess, &j.Postprocess, &archivedInt, &varsJSON); err != nil {
		return models.Job{}, err
	}

	j.SubmitTime = submitTime
	if startTime.Valid {
		j.StartTime = &startTime.Time
	}
	if endTime.Valid {
		j.EndTime = &endTime.Time
	}
	if schedulerJobID.Valid {
		j.SchedulerJobID = &schedulerJobID.String
	}
	j.Status = models.JobStatus(statusStr)
	j.Archived = archivedInt != 0
	j.Variables = map[string]string{}
	json.Unmarshal([]byte(varsJSON), &j.Variables)
	return j, nil
}

// UpdateStatus applies a monotonic-rank status write: virtualqueue < queued <
// running < {completed,failed}. A write whose target rank is not strictly
// greater than the current rank is a silent no-op (idempotent per §5/§8).
// startTime/endTime/schedulerJobID are set only when non-nil.
func (s *Store) UpdateStatus(jobID int64, target models.JobStatus, schedulerJobID *string, startTime, endTime *time.Time) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var currentStr string
	row := s.db.QueryRow(`SELECT status FROM jobs WHERE id = ?`, jobID)
	if err := row.Scan(&currentStr); err != nil {
		if err == sql.ErrNoRows {
			return sbmerr.New(sbmerr.Invariant, "status write for unknown job %d", jobID)
		}
		return sbmerr.Wrap(sbmerr.StoreIO, err, "read status for job %d", jobID)
	}
	current := models.JobStatus(currentStr)
	if target.Rank() <= current.Rank() {
		s.log.Debug("idempotent status write ignored", "job", jobID, "current", current, "target", target)
		return nil
	}

	setClauses := []string{"status = ?"}
	args := []interface{}{string(target)}
	if schedulerJobID != nil {
		setClauses = append(setClauses, "scheduler_job_id = ?")
		args = append(args, *schedulerJobID)
	}
	if startTime != nil {
		setClauses = append(setClauses, "start_time = ?")
		args = append(args, *startTime)
	}
	if endTime != nil {
		setClauses = append(setClauses, "end_time = ?")
		args = append(args, *endTime)
	}
	args = append(args, jobID)

	query := fmt.Sprintf(`UPDATE jobs SET %s WHERE id = ?`, strings.Join(setClauses, ", "))
	if _, err := s.db.Exec(query, args...); err != nil {
		return sbmerr.Wrap(sbmerr.StoreIO, err, "update status for job %d", jobID)
	}

	if target == models.StatusQueued || target.IsTerminal() {
		if _, err := s.db.Exec(`DELETE FROM virtual_queue WHERE job_id = ?`, jobID); err != nil {
			return sbmerr.Wrap(sbmerr.StoreIO, err, "clear virtual queue row for job %d", jobID)
		}
	}
	return nil
}

// SetArchived sets the archived flag; callers must ensure the job is terminal
// per the invariant archived=true ⇒ status∈{completed,failed}.
func (s *Store) SetArchived(jobID int64, archived bool) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var statusStr string
	if err := s.db.QueryRow(`SELECT status FROM jobs WHERE id = ?`, jobID).Scan(&statusStr); err != nil {
		return sbmerr.Wrap(sbmerr.StoreIO, err, "read status for job %d", jobID)
	}
	if archived && !models.JobStatus(statusStr).IsTerminal() {
		return sbmerr.New(sbmerr.Invariant, "cannot archive job %d in non-terminal status %s", jobID, statusStr)
	}
	archivedInt := 0
	if archived {
		archivedInt = 1
	}
	_, err := s.db.Exec(`UPDATE jobs SET archived = ? WHERE id = ?`, archivedInt, jobID)
	if err != nil {
		return sbmerr.Wrap(sbmerr.StoreIO, err, "set archived for job %d", jobID)
	}
	return nil
}

// NextInVirtualQueue returns up to n job IDs, FIFO by virtual_queue.id, for
// jobs bound to clusterID and still in virtualqueue status.
func (s *Store) NextInVirtualQueue(clusterID int64, n int) ([]int64, error) {
	rows, err := s.db.Query(`
SELECT vq.job_id
FROM virtual_queue vq
JOIN jobs j ON j.id = vq.job_id
JOIN configs c ON c.id = j.config_id
WHERE c.cluster_id = ? AND j.status = ?
ORDER BY vq.id ASC
LIMIT ?`, clusterID, models.StatusVirtualQueue, n)
	if err != nil {
		return nil, sbmerr.Wrap(sbmerr.StoreIO, err, "list virtual queue for cluster %d", clusterID)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, sbmerr.Wrap(sbmerr.StoreIO, err, "scan virtual queue row")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountActive returns the number of jobs in status∈{queued,running} for a cluster.
func (s *Store) CountActive(clusterID int64) (int, error) {
	var count int
	row := s.db.QueryRow(`
SELECT COUNT(*)
FROM jobs j JOIN configs c ON c.id = j.config_id
WHERE c.cluster_id = ? AND j.status IN (?, ?)`, clusterID, models.StatusQueued, models.StatusRunning)
	if err := row.Scan(&count); err != nil {
		return 0, sbmerr.Wrap(sbmerr.StoreIO, err, "count active jobs for cluster %d", clusterID)
	}
	return count, nil
}

// AllClusters returns every cluster row, used by the admission tick to drive
// one pass per cluster.
func (s *Store) AllClusters() ([]models.Cluster, error) {
	rows, err := s.db.Query(`SELECT id, cluster_name, scheduler, max_jobs FROM clusters`)
	if err != nil {
		return nil, sbmerr.Wrap(sbmerr.StoreIO, err, "list clusters")
	}
	defer rows.Close()

	var out []models.Cluster
	for rows.Next() {
		var c models.Cluster
		var schedulerStr string
		if err := rows.Scan(&c.ID, &c.ClusterName, &schedulerStr, &c.MaxJobs); err != nil {
			return nil, sbmerr.Wrap(sbmerr.StoreIO, err, "scan cluster row")
		}
		c.Scheduler = models.SchedulerKind(schedulerStr)
		out = append(out, c)
	}
	return out, rows.Err()
}

// NonTerminalJobIDs returns every job not yet in a terminal status, for
// startup recovery re-polling.
func (s *Store) NonTerminalJobIDs() ([]int64, error) {
	rows, err := s.db.Query(`SELECT id FROM jobs WHERE status NOT IN (?, ?)`, models.StatusCompleted, models.StatusFailed)
	if err != nil {
		return nil, sbmerr.Wrap(sbmerr.StoreIO, err, "list non-terminal jobs")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, sbmerr.Wrap(sbmerr.StoreIO, err, "scan non-terminal job id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListJobs composes the §4.6 query: Job ⋈ Config ⋈ Cluster under Filter,
// ordered by submit_time ascending, ties broken by id.
func (s *Store) ListJobs(f models.Filter) ([]models.JobView, error) {
	query := `
SELECT j.id, j.job_name, j.config_id, j.submit_time, j.start_time, j.end_time, j.directory, j.command,
       j.status, j.scheduler_job_id, j.preprocess, j.postprocess, j.archived, j.variables_json,
       c.config_name, cl.cluster_name, cl.scheduler
FROM jobs j
JOIN configs c ON c.id = j.config_id
JOIN clusters cl ON cl.id = c.cluster_id
WHERE 1=1`
	var args []interface{}

	if f.NamePattern != "" {
		query += ` AND LOWER(j.job_name) LIKE ?`
		args = append(args, "%"+strings.ToLower(f.NamePattern)+"%")
	}
	if f.Status != nil {
		query += ` AND j.status = ?`
		args = append(args, string(*f.Status))
	}
	if f.ClusterName != "" {
		query += ` AND cl.cluster_name = ?`
		args = append(args, f.ClusterName)
	}
	if f.ConfigName != "" {
		query += ` AND c.config_name = ?`
		args = append(args, f.ConfigName)
	}
	if f.Archived != nil {
		v := 0
		if *f.Archived {
			v = 1
		}
		query += ` AND j.archived = ?`
		args = append(args, v)
	}
	if f.SubmitTimeFrom != nil {
		query += ` AND j.submit_time >= ?`
		args = append(args, *f.SubmitTimeFrom)
	}
	if f.SubmitTimeTo != nil {
		query += ` AND j.submit_time <= ?`
		args = append(args, *f.SubmitTimeTo)
	}
	if f.EndTimeFrom != nil {
		query += ` AND j.end_time IS NOT NULL AND j.end_time >= ?`
		args = append(args, *f.EndTimeFrom)
	}
	if f.EndTimeTo != nil {
		query += ` AND j.end_time IS NOT NULL AND j.end_time <= ?`
		args = append(args, *f.EndTimeTo)
	}

	query += ` ORDER BY j.submit_time ASC, j.id ASC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
		if f.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, f.Offset)
		}
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, sbmerr.Wrap(sbmerr.StoreIO, err, "list jobs")
	}
	defer rows.Close()

	var out []models.JobView
	for rows.Next() {
		var v models.JobView
		var submitTime time.Time
		var startTime, endTime sql.NullTime
		var schedulerJobID sql.NullString
		var statusStr, schedulerStr string
		var archivedInt int
		var varsJSON string

		if err := rows.Scan(&v.ID, &v.JobName, &v.ConfigID, &submitTime, &startTime, &endTime, &v.Directory, &v.Command,
			&statusStr, &schedulerJobID, &v.Preprocess, &v.Postprocess, &archivedInt, &varsJSON,
			&v.ConfigName, &v.ClusterName, &schedulerStr); err != nil {
			return nil, sbmerr.Wrap(sbmerr.StoreIO, err, "scan job view row")
		}

		v.SubmitTime = submitTime
		if startTime.Valid {
			v.StartTime = &startTime.Time
		}
		if endTime.Valid {
			v.EndTime = &endTime.Time
		}
		if schedulerJobID.Valid {
			v.SchedulerJobID = &schedulerJobID.String
		}
		v.Status = models.JobStatus(statusStr)
		v.Archived = archivedInt != 0
		v.Variables = map[string]string{}
		json.Unmarshal([]byte(varsJSON), &v.Variables)
		v.Scheduler = models.SchedulerKind(schedulerStr)

		out = append(out, v)
	}
	return out, rows.Err()
}
