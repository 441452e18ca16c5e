// SPDX-License-Identifier: LGPL-3.0-or-later

// Package expansion implements the Configuration Expansion Engine: YAML
// load+include, variable normalization, dependency DAG, cartesian expansion,
// substitution, and cluster binding (spec §4.1).
package expansion

// Document is the top-level shape of a job-expansion YAML file.
type Document struct {
	Include      string                 `yaml:"include"`
	Variables    map[string]interface{} `yaml:"variables"`
	PythonHeader string                 `yaml:"python.header"`
	Command      string                 `yaml:"command"`
	Preprocess   string                 `yaml:"preprocess"`
	Postprocess  string                 `yaml:"postprocess"`
	Jobs         []JobSpec              `yaml:"jobs"`
}

// JobSpec is one entry under the top-level jobs[] key.
type JobSpec struct {
	Name             string                 `yaml:"name"`
	Variables        map[string]interface{} `yaml:"variables"`
	Command          string                 `yaml:"command"`
	Preprocess       string                 `yaml:"preprocess"`
	Postprocess      string                 `yaml:"postprocess"`
	ClusterConfig    string                 `yaml:"cluster_config"`
	ClusterAllowlist []string               `yaml:"cluster_allowlist"`
	Variants         []VariantSpec          `yaml:"variants"`
}

// VariantSpec is a per-job override block producing additional jobs sharing a base.
type VariantSpec struct {
	Name        string                 `yaml:"name"`
	Variables   map[string]interface{} `yaml:"variables"`
	Command     string                 `yaml:"command"`
	Preprocess  string                 `yaml:"preprocess"`
	Postprocess string                 `yaml:"postprocess"`
}

// ClusterConfigDocument is the top-level shape of a cluster-config import
// YAML file (§3 "Created by cluster-config import").
type ClusterConfigDocument struct {
	Clusters map[string]ClusterSpec `yaml:"clusters"`
}

// ClusterSpec declares one cluster and its named configs.
type ClusterSpec struct {
	Scheduler string                `yaml:"scheduler"`
	MaxJobs   int                   `yaml:"max_jobs"`
	Configs   map[string]ConfigSpec `yaml:"configs"`
}

// ConfigSpec declares one named flags/env preset under a cluster.
type ConfigSpec struct {
	Flags []string `yaml:"flags"`
	Env   []string `yaml:"env"`
}

// VariableKind is the closed sum type a variables[] entry normalizes to (Phase II).
type VariableKind int

const (
	KindScalar VariableKind = iota
	KindList
	KindStandardMap
	KindClusterMap
	KindDirExpand
	KindFileExpand
	KindScriptExpr
)

// Variable is the normalized form of one variables[] entry.
type Variable struct {
	Kind VariableKind

	Scalar string
	List   []string
	Map    map[string]string

	ClusterMapDefault    string
	ClusterMapPerCluster map[string]string

	Path string // DirExpand / FileExpand source path, pre-expansion

	ScriptSource string // ScriptExpr expression text
}

// IsListAxis reports whether this variable, once resolved, contributes an
// axis to the cartesian product (Phase V).
func (v Variable) IsListAxis() bool {
	return v.Kind == KindList || v.Kind == KindDirExpand || v.Kind == KindFileExpand
}

// ExpandedJob is one output row of the engine, prior to cluster binding.
// ClusterMapVars holds every ClusterMap-typed variable in this job's scope,
// whether or not a field references it, still unresolved — Bind finishes their substitution once a
// candidate cluster name is known (Phase VII).
type ExpandedJob struct {
	JobName          string
	ClusterConfig    string
	ClusterAllowlist []string
	Command          string
	Preprocess       string
	Postprocess      string
	Variables        map[string]string
	ClusterMapVars   map[string]Variable
}
