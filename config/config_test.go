// SPDX-License-Identifier: LGPL-3.0-or-later

package config

import (
	"path/filepath"
	"testing"
)

func TestConfigDerivedPaths(t *testing.T) {
	c := Config{Root: "/var/lib/sbatchman"}
	if got := c.DBPath(); got != filepath.Join("/var/lib/sbatchman", "sbatchman.db") {
		t.Errorf("DBPath = %q", got)
	}
	if got := c.ConfPath(); got != filepath.Join("/var/lib/sbatchman", "sbatchman.conf") {
		t.Errorf("ConfPath = %q", got)
	}
	if got := c.JobsDir(); got != filepath.Join("/var/lib/sbatchman", "jobs") {
		t.Errorf("JobsDir = %q", got)
	}
	if got := c.JobDir(42); got != filepath.Join("/var/lib/sbatchman", "jobs", "42") {
		t.Errorf("JobDir(42) = %q", got)
	}
}

func TestLoadReadsConfFileAndAppliesEnvOverride(t *testing.T) {
	root := t.TempDir()
	t.Setenv("SBATCHMAN_HOME", root)
	t.Setenv("SBATCHMAN_POLL_INTERVAL_MS", "")
	t.Setenv("SBATCHMAN_UNKNOWN_TOLERANCE", "")
	t.Setenv("SBATCHMAN_ADAPTER_TIMEOUT_MS", "")
	t.Setenv("SBATCHMAN_CLUSTER_NAME", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Root != root {
		t.Errorf("Root = %q, want %q", cfg.Root, root)
	}
	if cfg.PollInterval != defaultPollInterval {
		t.Errorf("PollInterval = %v, want default", cfg.PollInterval)
	}

	if err := cfg.SetClusterName("gpu01"); err != nil {
		t.Fatalf("SetClusterName: %v", err)
	}

	reloaded, err := Load()
	if err != nil {
		t.Fatalf("Load (reloaded): %v", err)
	}
	if reloaded.ClusterName != "gpu01" {
		t.Errorf("ClusterName = %q, want gpu01 after SetClusterName+reload", reloaded.ClusterName)
	}
}

func TestLoadEnvOverridesWinOverConfFile(t *testing.T) {
	root := t.TempDir()
	t.Setenv("SBATCHMAN_HOME", root)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.SetClusterName("from-conf-file"); err != nil {
		t.Fatalf("SetClusterName: %v", err)
	}

	t.Setenv("SBATCHMAN_CLUSTER_NAME", "from-env")
	t.Setenv("SBATCHMAN_POLL_INTERVAL_MS", "500")
	t.Setenv("SBATCHMAN_UNKNOWN_TOLERANCE", "7")
	t.Setenv("SBATCHMAN_ADAPTER_TIMEOUT_MS", "9000")

	reloaded, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reloaded.ClusterName != "from-env" {
		t.Errorf("ClusterName = %q, want env override to win", reloaded.ClusterName)
	}
	if reloaded.PollInterval.Milliseconds() != 500 {
		t.Errorf("PollInterval = %v, want 500ms", reloaded.PollInterval)
	}
	if reloaded.UnknownTolerance != 7 {
		t.Errorf("UnknownTolerance = %d, want 7", reloaded.UnknownTolerance)
	}
	if reloaded.AdapterTimeout.Milliseconds() != 9000 {
		t.Errorf("AdapterTimeout = %v, want 9000ms", reloaded.AdapterTimeout)
	}
}

func TestLoadIgnoresInvalidOrZeroEnvOverrides(t *testing.T) {
	root := t.TempDir()
	t.Setenv("SBATCHMAN_HOME", root)
	t.Setenv("SBATCHMAN_POLL_INTERVAL_MS", "not-a-number")
	t.Setenv("SBATCHMAN_UNKNOWN_TOLERANCE", "0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PollInterval != defaultPollInterval {
		t.Errorf("PollInterval = %v, want default to survive an invalid override", cfg.PollInterval)
	}
	if cfg.UnknownTolerance != defaultUnknownTolerance {
		t.Errorf("UnknownTolerance = %d, want default to survive a zero override", cfg.UnknownTolerance)
	}
}
