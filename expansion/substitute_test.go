// SPDX-License-Identifier: LGPL-3.0-or-later

package expansion

import "testing"

func TestSubstituteScalarAndList(t *testing.T) {
	ctx := substitutionContext{
		scalars: map[string]string{"gpu": "a100"},
		lists:   map[string][]string{"hosts": {"n1", "n2", "n3"}},
	}
	got, err := substitute("card={gpu} all={hosts} one={hosts.1}", ctx)
	if err != nil {
		t.Fatalf("substitute: %v", err)
	}
	want := "card=a100 all=n1 n2 n3 one=n2"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSubstituteMapLiteralAndDynamicKey(t *testing.T) {
	ctx := substitutionContext{
		scalars: map[string]string{"toolchain": "cuda"},
		maps: map[string]map[string]string{
			"module": {"cuda": "cuda/12.2", "openmp": "gcc/13"},
		},
	}
	got, err := substitute("{module[cuda]} {module[$toolchain]}", ctx)
	if err != nil {
		t.Fatalf("substitute: %v", err)
	}
	if got != "cuda/12.2 cuda/12.2" {
		t.Errorf("got %q", got)
	}
}

func TestSubstituteMissingMapKeyErrors(t *testing.T) {
	ctx := substitutionContext{
		maps: map[string]map[string]string{"module": {"cuda": "cuda/12.2"}},
	}
	if _, err := substitute("{module[rocm]}", ctx); err == nil {
		t.Fatalf("expected ConfigKey error for missing map key")
	}
}

func TestSubstituteLeavesDeferredTokenUntouched(t *testing.T) {
	ctx := substitutionContext{
		deferred: map[string]bool{"queue": true},
	}
	got, err := substitute("queue={queue}", ctx)
	if err != nil {
		t.Fatalf("substitute: %v", err)
	}
	if got != "queue={queue}" {
		t.Errorf("got %q, want token left untouched", got)
	}
}

func TestSubstituteUnresolvedVariableErrors(t *testing.T) {
	if _, err := substitute("{missing}", substitutionContext{}); err == nil {
		t.Fatalf("expected error for unresolved variable")
	}
}

func TestSubstituteClusterMapTokensPerClusterAndDefault(t *testing.T) {
	clusterMaps := map[string]Variable{
		"queue": {
			ClusterMapDefault:    "short",
			ClusterMapPerCluster: map[string]string{"gpu01": "gpu-long"},
		},
	}
	if got := substituteClusterMapTokens("{queue}", clusterMaps, "gpu01"); got != "gpu-long" {
		t.Errorf("gpu01: got %q", got)
	}
	if got := substituteClusterMapTokens("{queue}", clusterMaps, "cpu01"); got != "short" {
		t.Errorf("cpu01: got %q", got)
	}
}
