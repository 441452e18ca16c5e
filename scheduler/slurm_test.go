// SPDX-License-Identifier: LGPL-3.0-or-later

package scheduler

import "testing"

func TestMapSlurmState(t *testing.T) {
	cases := map[string]PollStatus{
		"":             PollUnknown,
		"PENDING":      PollPending,
		"CONFIGURING":  PollPending,
		"RUNNING":      PollRunning,
		"COMPLETING":   PollRunning,
		"SUSPENDED":    PollRunning,
		"COMPLETED":    PollCompleted,
		"FAILED":       PollFailed,
		"CANCELLED":    PollFailed,
		"TIMEOUT":      PollFailed,
		"NODE_FAIL":    PollFailed,
		"OUT_OF_MEMORY": PollFailed,
		"BOOT_FAIL":    PollFailed,
		"DEADLINE":     PollFailed,
		"WEIRD_STATE":  PollUnknown,
	}
	for state, want := range cases {
		if got := mapSlurmState(state); got != want {
			t.Errorf("mapSlurmState(%q) = %v, want %v", state, got, want)
		}
	}
}
