// SPDX-License-Identifier: LGPL-3.0-or-later

package expansion

import (
	"fmt"
	"sort"
	"strings"

	"sbatchman/sbmerr"
)

const (
	dirExpandPrefix  = "@dir "
	fileExpandPrefix = "@file "
)

// normalizeVariables normalizes a raw variables map into the closed sum type
// described in Phase II.
func normalizeVariables(raw map[string]interface{}) (map[string]Variable, error) {
	out := make(map[string]Variable, len(raw))
	for name, value := range raw {
		v, err := normalizeValue(value)
		if err != nil {
			return nil, sbmerr.Wrap(sbmerr.ConfigParse, err, "normalize variable %q", name)
		}
		out[name] = v
	}
	return out, nil
}

func normalizeValue(value interface{}) (Variable, error) {
	switch val := value.(type) {
	case string:
		return normalizeString(val), nil
	case bool, int, int64, float64:
		return Variable{Kind: KindScalar, Scalar: scalarToString(val)}, nil
	case []interface{}:
		list := make([]string, len(val))
		for i, item := range val {
			list[i] = scalarToString(item)
		}
		return Variable{Kind: KindList, List: list}, nil
	case map[string]interface{}:
		return normalizeMap(val)
	default:
		return Variable{}, fmt.Errorf("unsupported variable shape %T", value)
	}
}

func normalizeString(s string) Variable {
	switch {
	case strings.HasPrefix(s, dirExpandPrefix):
		return Variable{Kind: KindDirExpand, Path: strings.TrimSpace(strings.TrimPrefix(s, dirExpandPrefix))}
	case strings.HasPrefix(s, fileExpandPrefix):
		return Variable{Kind: KindFileExpand, Path: strings.TrimSpace(strings.TrimPrefix(s, fileExpandPrefix))}
	case isFullScriptExpr(s):
		return Variable{Kind: KindScriptExpr, ScriptSource: extractScriptExpr(s)}
	default:
		return Variable{Kind: KindScalar, Scalar: s}
	}
}

func isFullScriptExpr(s string) bool {
	t := strings.TrimSpace(s)
	return strings.HasPrefix(t, "{{") && strings.HasSuffix(t, "}}")
}

func extractScriptExpr(s string) string {
	t := strings.TrimSpace(s)
	t = strings.TrimPrefix(t, "{{")
	t = strings.TrimSuffix(t, "}}")
	return strings.TrimSpace(t)
}

func normalizeMap(m map[string]interface{}) (Variable, error) {
	_, hasDefault := m["default"]
	_, hasPerCluster := m["per_cluster"]
	if hasDefault || hasPerCluster {
		v := Variable{Kind: KindClusterMap, ClusterMapPerCluster: map[string]string{}}
		if d, ok := m["default"]; ok {
			v.ClusterMapDefault = scalarToString(d)
		}
		if pc, ok := m["per_cluster"].(map[string]interface{}); ok {
			for cluster, val := range pc {
				v.ClusterMapPerCluster[cluster] = scalarToString(val)
			}
		}
		return v, nil
	}

	out := map[string]string{}
	for k, val := range m {
		out[k] = scalarToString(val)
	}
	return Variable{Kind: KindStandardMap, Map: out}, nil
}

func scalarToString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case int:
		return fmt.Sprintf("%d", t)
	case int64:
		return fmt.Sprintf("%d", t)
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// sortedKeys returns m's keys in sorted order. Nothing in the package calls
// it: expansion order comes from topologicalOrder, which sorts names itself.
func sortedKeys(m map[string]Variable) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
