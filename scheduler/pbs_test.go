// SPDX-License-Identifier: LGPL-3.0-or-later

package scheduler

import "testing"

func TestMapPBSState(t *testing.T) {
	cases := map[string]PollStatus{
		"":  PollUnknown,
		"Q": PollPending,
		"H": PollPending,
		"W": PollPending,
		"T": PollPending,
		"R": PollRunning,
		"S": PollRunning,
		"E": PollRunning,
		"F": PollCompleted,
		"X": PollUnknown,
	}
	for state, want := range cases {
		if got := mapPBSState(state); got != want {
			t.Errorf("mapPBSState(%q) = %v, want %v", state, got, want)
		}
	}
}

func TestExtractField(t *testing.T) {
	output := "Job Id: 123.host\n    job_state = F\n    Exit_status = 1\n    Resource_List.nodes = 1\n"
	if got := extractField(output, "job_state = "); got != "F" {
		t.Errorf("job_state = %q, want F", got)
	}
	if got := extractField(output, "Exit_status = "); got != "1" {
		t.Errorf("Exit_status = %q, want 1", got)
	}
	if got := extractField(output, "Missing_Field = "); got != "" {
		t.Errorf("Missing_Field = %q, want empty", got)
	}
}
