// SPDX-License-Identifier: LGPL-3.0-or-later

package expansion

import (
	"sort"
	"strconv"
	"strings"

	"sbatchman/sbmerr"
)

// ClusterBinding is one candidate cluster a cluster_config name resolved to.
type ClusterBinding struct {
	ClusterName string
	ConfigID    int64
}

// ConfigLookupFunc resolves a cluster_config name (restricted to allowlist,
// when non-empty) to every matching (cluster, config) pair. The caller
// supplies this over its own Store so the expansion package stays free of a
// persistence dependency.
type ConfigLookupFunc func(configName string, allowlist []string) ([]ClusterBinding, error)

// BoundJob is a fully literal job ready for Store.InsertJob.
type BoundJob struct {
	JobName     string
	ConfigID    int64
	ClusterName string
	Command     string
	Preprocess  string
	Postprocess string
	Variables   map[string]string
}

// Bind performs Phase VII (cluster binding) and Phase VIII (output + dedup).
// A cluster_config name resolving to exactly one cluster binds directly; to
// several, produces one job per match; to none, fails ConfigUnresolved.
func Bind(jobs []ExpandedJob, lookup ConfigLookupFunc) ([]BoundJob, error) {
	var out []BoundJob
	for _, ej := range jobs {
		matches, err := lookup(ej.ClusterConfig, ej.ClusterAllowlist)
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			return nil, sbmerr.New(sbmerr.ConfigUnresolved, "cluster_config %q matches no cluster", ej.ClusterConfig)
		}

		for _, m := range matches {
			out = append(out, BoundJob{
				JobName:     substituteClusterMapTokens(ej.JobName, ej.ClusterMapVars, m.ClusterName),
				ConfigID:    m.ConfigID,
				ClusterName: m.ClusterName,
				Command:     substituteClusterMapTokens(ej.Command, ej.ClusterMapVars, m.ClusterName),
				Preprocess:  substituteClusterMapTokens(ej.Preprocess, ej.ClusterMapVars, m.ClusterName),
				Postprocess: substituteClusterMapTokens(ej.Postprocess, ej.ClusterMapVars, m.ClusterName),
				Variables:   ej.Variables,
			})
		}
	}
	return dedupBoundJobs(out), nil
}

// dedupBoundJobs deduplicates by (job_name, config_id, variables), preserving
// the stable input order (Phase VIII).
func dedupBoundJobs(jobs []BoundJob) []BoundJob {
	seen := map[string]bool{}
	var out []BoundJob
	for _, j := range jobs {
		key := dedupKey(j)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, j)
	}
	return out
}

func dedupKey(j BoundJob) string {
	keys := make([]string, 0, len(j.Variables))
	for k := range j.Variables {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(j.JobName)
	b.WriteString("\x00")
	b.WriteString(strconv.FormatInt(j.ConfigID, 10))
	for _, k := range keys {
		b.WriteString("\x00")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(j.Variables[k])
	}
	return b.String()
}
