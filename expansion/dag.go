// SPDX-License-Identifier: LGPL-3.0-or-later

package expansion

import (
	"regexp"
	"sort"

	"sbatchman/sbmerr"
)

// tokenRef matches {name}, {name.N}, {name[literal]}, {name[$other]} tokens.
var tokenRef = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)(?:\.\d+)?(?:\[\$?([A-Za-z_][A-Za-z0-9_]*)?\])?\}`)

// scriptVarRef matches $name references inside a {{ ... }} expression body.
var scriptVarRef = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)

// referencedVariables returns the set of variable names that text directly
// references, scanning both {var}/{map[literal]}/{map[$var]} tokens and any
// {{ ...$var... }} script expression embedded in the text.
func referencedVariables(text string) map[string]bool {
	refs := map[string]bool{}
	for _, m := range tokenRef.FindAllStringSubmatch(text, -1) {
		refs[m[1]] = true
		if m[2] != "" {
			refs[m[2]] = true
		}
	}
	for _, m := range scriptVarRef.FindAllStringSubmatch(text, -1) {
		refs[m[1]] = true
	}
	return refs
}

// dependencyGraph builds the directed graph over variables (Phase III): an
// edge name -> dep means name's unevaluated form references dep. ClusterMap
// variables carry a synthetic dependency on "cluster_name".
func dependencyGraph(vars map[string]Variable) map[string]map[string]bool {
	graph := make(map[string]map[string]bool, len(vars))
	for name, v := range vars {
		deps := map[string]bool{}
		switch v.Kind {
		case KindScriptExpr:
			for dep := range referencedVariables("{{" + v.ScriptSource + "}}") {
				if dep != name {
					deps[dep] = true
				}
			}
		case KindClusterMap:
			deps["cluster_name"] = true
		case KindStandardMap:
			// StandardMap values are literal strings; no variable dependencies.
		}
		graph[name] = deps
	}
	return graph
}

// topologicalOrder runs a DFS-based topological sort over graph, rejecting
// cycles with ConfigCycle per Phase III / §9 "explicit DAG rejection".
func topologicalOrder(graph map[string]map[string]bool) ([]string, error) {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(graph))
	var order []string

	names := make([]string, 0, len(graph))
	for name := range graph {
		names = append(names, name)
	}
	sort.Strings(names)

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return sbmerr.New(sbmerr.ConfigCycle, "variable dependency cycle involving %q", name)
		}
		state[name] = visiting

		deps := make([]string, 0, len(graph[name]))
		for dep := range graph[name] {
			deps = append(deps, dep)
		}
		sort.Strings(deps)
		for _, dep := range deps {
			if _, known := graph[dep]; !known {
				continue // external binding (e.g. cluster_name), not a declared variable
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[name] = done
		order = append(order, name)
		return nil
	}

	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}
