// SPDX-License-Identifier: LGPL-3.0-or-later

package expansion

import "testing"

func TestNormalizeScalarKinds(t *testing.T) {
	raw := map[string]interface{}{
		"name":    "gpu-run",
		"enabled": true,
		"count":   3,
		"ratio":   1.5,
		"whole":   float64(4),
	}
	out, err := normalizeVariables(raw)
	if err != nil {
		t.Fatalf("normalizeVariables: %v", err)
	}
	if out["name"].Kind != KindScalar || out["name"].Scalar != "gpu-run" {
		t.Errorf("name = %+v", out["name"])
	}
	if out["enabled"].Scalar != "true" {
		t.Errorf("enabled = %q, want true", out["enabled"].Scalar)
	}
	if out["count"].Scalar != "3" {
		t.Errorf("count = %q, want 3", out["count"].Scalar)
	}
	if out["ratio"].Scalar != "1.5" {
		t.Errorf("ratio = %q, want 1.5", out["ratio"].Scalar)
	}
	if out["whole"].Scalar != "4" {
		t.Errorf("whole = %q, want 4 (no trailing .0)", out["whole"].Scalar)
	}
}

func TestNormalizeList(t *testing.T) {
	raw := map[string]interface{}{
		"sizes": []interface{}{1, 2, 3},
	}
	out, err := normalizeVariables(raw)
	if err != nil {
		t.Fatalf("normalizeVariables: %v", err)
	}
	v := out["sizes"]
	if v.Kind != KindList {
		t.Fatalf("Kind = %v, want KindList", v.Kind)
	}
	if len(v.List) != 3 || v.List[0] != "1" || v.List[2] != "3" {
		t.Errorf("List = %v", v.List)
	}
	if !v.IsListAxis() {
		t.Errorf("IsListAxis() = false, want true")
	}
}

func TestNormalizeDirAndFileExpand(t *testing.T) {
	raw := map[string]interface{}{
		"inputs":  "@dir data/inputs",
		"seeds":   "@file data/seeds.txt",
		"literal": "@dirty", // must NOT be mistaken for @dir
	}
	out, err := normalizeVariables(raw)
	if err != nil {
		t.Fatalf("normalizeVariables: %v", err)
	}
	if out["inputs"].Kind != KindDirExpand || out["inputs"].Path != "data/inputs" {
		t.Errorf("inputs = %+v", out["inputs"])
	}
	if out["seeds"].Kind != KindFileExpand || out["seeds"].Path != "data/seeds.txt" {
		t.Errorf("seeds = %+v", out["seeds"])
	}
	if out["literal"].Kind != KindScalar {
		t.Errorf("literal.Kind = %v, want KindScalar (no false @dir match)", out["literal"].Kind)
	}
}

func TestNormalizeScriptExpr(t *testing.T) {
	raw := map[string]interface{}{
		"doubled": "{{ $cores }}",
	}
	out, err := normalizeVariables(raw)
	if err != nil {
		t.Fatalf("normalizeVariables: %v", err)
	}
	v := out["doubled"]
	if v.Kind != KindScriptExpr {
		t.Fatalf("Kind = %v, want KindScriptExpr", v.Kind)
	}
	if v.ScriptSource != "$cores" {
		t.Errorf("ScriptSource = %q, want %q", v.ScriptSource, "$cores")
	}
}

func TestNormalizeClusterMap(t *testing.T) {
	raw := map[string]interface{}{
		"queue": map[string]interface{}{
			"default": "short",
			"per_cluster": map[string]interface{}{
				"gpu01": "gpu-long",
			},
		},
	}
	out, err := normalizeVariables(raw)
	if err != nil {
		t.Fatalf("normalizeVariables: %v", err)
	}
	v := out["queue"]
	if v.Kind != KindClusterMap {
		t.Fatalf("Kind = %v, want KindClusterMap", v.Kind)
	}
	if v.ClusterMapDefault != "short" {
		t.Errorf("ClusterMapDefault = %q", v.ClusterMapDefault)
	}
	if v.ClusterMapPerCluster["gpu01"] != "gpu-long" {
		t.Errorf("ClusterMapPerCluster[gpu01] = %q", v.ClusterMapPerCluster["gpu01"])
	}
}

func TestNormalizeStandardMap(t *testing.T) {
	raw := map[string]interface{}{
		"module": map[string]interface{}{
			"cuda":   "cuda/12.2",
			"openmp": "gcc/13",
		},
	}
	out, err := normalizeVariables(raw)
	if err != nil {
		t.Fatalf("normalizeVariables: %v", err)
	}
	v := out["module"]
	if v.Kind != KindStandardMap {
		t.Fatalf("Kind = %v, want KindStandardMap", v.Kind)
	}
	if v.Map["cuda"] != "cuda/12.2" {
		t.Errorf("Map[cuda] = %q", v.Map["cuda"])
	}
}

func TestNormalizeRejectsUnsupportedShape(t *testing.T) {
	raw := map[string]interface{}{
		"bad": []map[string]interface{}{{"nested": "list-of-maps"}},
	}
	if _, err := normalizeVariables(raw); err == nil {
		t.Fatalf("expected error for unsupported variable shape")
	}
}
