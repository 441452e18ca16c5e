// SPDX-License-Identifier: LGPL-3.0-or-later

package expansion

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"sbatchman/sbmerr"
)

// Expand runs Phases I–VI of the Configuration Expansion Engine against the
// YAML file at path, returning one ExpandedJob per (job, variant, cartesian
// tuple) combination. Cluster binding (Phase VII) and output dedup (Phase
// VIII) are performed separately by Bind, once candidate clusters are known.
func Expand(path string, evaluator Evaluator) ([]ExpandedJob, error) {
	doc, err := LoadDocument(path)
	if err != nil {
		return nil, err
	}
	baseDir := filepath.Dir(path)

	var out []ExpandedJob
	for _, job := range doc.Jobs {
		variants := job.Variants
		if len(variants) == 0 {
			variants = []VariantSpec{{}}
		}
		for _, variant := range variants {
			jobs, err := expandJobVariant(doc, job, variant, evaluator, baseDir)
			if err != nil {
				return nil, err
			}
			out = append(out, jobs...)
		}
	}
	return out, nil
}

func expandJobVariant(doc Document, job JobSpec, variant VariantSpec, evaluator Evaluator, baseDir string) ([]ExpandedJob, error) {
	rawVars := mergeVarMaps(doc.Variables, job.Variables, variant.Variables)
	normalized, err := normalizeVariables(rawVars)
	if err != nil {
		return nil, err
	}

	if err := resolveFileBackedVariables(normalized, baseDir); err != nil {
		return nil, err
	}

	graph := dependencyGraph(normalized)
	order, err := topologicalOrder(graph)
	if err != nil {
		return nil, err
	}

	command := firstNonEmpty(variant.Command, job.Command, doc.Command)
	preprocess := firstNonEmpty(variant.Preprocess, job.Preprocess, doc.Preprocess)
	postprocess := firstNonEmpty(variant.Postprocess, job.Postprocess, doc.Postprocess)
	jobName := job.Name
	clusterConfig := job.ClusterConfig

	scalars := map[string]string{}
	lists := map[string][]string{}
	maps := map[string]map[string]string{}
	clusterMapVars := map[string]Variable{}
	var listAxisOrder []string

	for _, name := range order {
		v := normalized[name]
		switch v.Kind {
		case KindScalar:
			scalars[name] = v.Scalar
		case KindList:
			lists[name] = v.List
			listAxisOrder = append(listAxisOrder, name)
		case KindStandardMap:
			maps[name] = v.Map
		case KindClusterMap:
			clusterMapVars[name] = v
		case KindScriptExpr:
			bindings := make(map[string]string, len(scalars))
			for k, val := range scalars {
				bindings[k] = val
			}
			result, err := evaluator.Eval(doc.PythonHeader, v.ScriptSource, bindings)
			if err != nil {
				return nil, err
			}
			if result.IsList {
				lists[name] = result.List
				listAxisOrder = append(listAxisOrder, name)
			} else {
				scalars[name] = result.Scalar
			}
		}
	}

	fieldsText := strings.Join([]string{command, preprocess, postprocess, clusterConfig, jobName}, "\x00")
	directRefs := referencedVariables(fieldsText)
	referenced := transitiveClosure(directRefs, graph)

	var activeAxes []string
	for _, axis := range listAxisOrder {
		if referenced[axis] {
			activeAxes = append(activeAxes, axis)
		}
	}

	tuples := cartesianProduct(activeAxes, lists)

	deferredNames := map[string]bool{}
	for name := range clusterMapVars {
		deferredNames[name] = true
	}

	var out []ExpandedJob
	for _, tuple := range tuples {
		tupleScalars := make(map[string]string, len(scalars)+len(tuple))
		for k, v := range scalars {
			tupleScalars[k] = v
		}
		for k, v := range tuple {
			tupleScalars[k] = v
		}

		ctx := substitutionContext{scalars: tupleScalars, lists: lists, maps: maps, deferred: deferredNames}

		cmdSub, err := substitute(command, ctx)
		if err != nil {
			return nil, err
		}
		preSub, err := substitute(preprocess, ctx)
		if err != nil {
			return nil, err
		}
		postSub, err := substitute(postprocess, ctx)
		if err != nil {
			return nil, err
		}
		nameSub, err := substitute(jobName, ctx)
		if err != nil {
			return nil, err
		}
		ccSub, err := substitute(clusterConfig, ctx)
		if err != nil {
			return nil, err
		}

		out = append(out, ExpandedJob{
			JobName:          nameSub,
			ClusterConfig:    ccSub,
			ClusterAllowlist: job.ClusterAllowlist,
			Command:          cmdSub,
			Preprocess:       preSub,
			Postprocess:      postSub,
			Variables:        tupleScalars,
			ClusterMapVars:   clusterMapVars,
		})
	}
	return out, nil
}

func resolveFileBackedVariables(vars map[string]Variable, baseDir string) error {
	for name, v := range vars {
		switch v.Kind {
		case KindDirExpand:
			list, err := expandDir(resolvePath(v.Path, baseDir))
			if err != nil {
				return err
			}
			vars[name] = Variable{Kind: KindList, List: list}
		case KindFileExpand:
			list, err := expandFile(resolvePath(v.Path, baseDir))
			if err != nil {
				return err
			}
			vars[name] = Variable{Kind: KindList, List: list}
		}
	}
	return nil
}

func resolvePath(path, baseDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

func expandDir(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, sbmerr.Wrap(sbmerr.ConfigIO, err, "expand directory %s", path)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func expandFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, sbmerr.Wrap(sbmerr.ConfigIO, err, "expand file %s", path)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, sbmerr.Wrap(sbmerr.ConfigIO, err, "read file %s", path)
	}
	return lines, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// mergeVarMaps layers variable scopes outer-to-inner, the inner layer
// overriding outer by name wholesale (Phase IV).
func mergeVarMaps(layers ...map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{}
	for _, layer := range layers {
		for k, v := range layer {
			out[k] = v
		}
	}
	return out
}

// transitiveClosure extends start with every variable transitively reachable
// via graph's dependency edges.
func transitiveClosure(start map[string]bool, graph map[string]map[string]bool) map[string]bool {
	closure := map[string]bool{}
	var visit func(name string)
	visit = func(name string) {
		if closure[name] {
			return
		}
		closure[name] = true
		for dep := range graph[name] {
			visit(dep)
		}
	}
	for name := range start {
		visit(name)
	}
	return closure
}

// cartesianProduct computes the cross-product of axes (each drawn from
// lists), in stable order: axes iterate in the given order, each axis's
// values in their list order, giving deterministic output per §8's
// determinism law.
func cartesianProduct(axes []string, lists map[string][]string) []map[string]string {
	if len(axes) == 0 {
		return []map[string]string{{}}
	}
	result := []map[string]string{{}}
	for _, axis := range axes {
		values := lists[axis]
		var next []map[string]string
		for _, partial := range result {
			for _, v := range values {
				tuple := make(map[string]string, len(partial)+1)
				for k, pv := range partial {
					tuple[k] = pv
				}
				tuple[axis] = v
				next = append(next, tuple)
			}
		}
		result = next
	}
	return result
}
