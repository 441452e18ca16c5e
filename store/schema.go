// SPDX-License-Identifier: LGPL-3.0-or-later

package store

// migration is one forward-only schema step, applied in ascending Version
// order. schema_version tracks the highest applied Version.
type migration struct {
	Version int
	SQL     string
}

var migrations = []migration{
	{
		Version: 1,
		SQL: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS clusters (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	cluster_name TEXT NOT NULL UNIQUE,
	scheduler    TEXT NOT NULL,
	max_jobs     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS configs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	config_name TEXT NOT NULL,
	cluster_id  INTEGER NOT NULL REFERENCES clusters(id),
	flags_json  TEXT NOT NULL DEFAULT '[]',
	env_json    TEXT NOT NULL DEFAULT '[]',
	UNIQUE(cluster_id, config_name)
);

CREATE TABLE IF NOT EXISTS jobs (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	job_name         TEXT NOT NULL,
	config_id        INTEGER NOT NULL REFERENCES configs(id),
	submit_time      DATETIME NOT NULL,
	start_time       DATETIME,
	end_time         DATETIME,
	directory        TEXT NOT NULL,
	command          TEXT NOT NULL,
	status           TEXT NOT NULL,
	scheduler_job_id TEXT,
	preprocess       TEXT NOT NULL DEFAULT '',
	postprocess      TEXT NOT NULL DEFAULT '',
	archived         INTEGER NOT NULL DEFAULT 0,
	variables_json   TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_config ON jobs(config_id);
CREATE INDEX IF NOT EXISTS idx_jobs_submit_time ON jobs(submit_time);

CREATE TABLE IF NOT EXISTS virtual_queue (
	id     INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id INTEGER NOT NULL UNIQUE REFERENCES jobs(id)
);
`,
	},
}
