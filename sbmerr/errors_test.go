// SPDX-License-Identifier: LGPL-3.0-or-later

package sbmerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestExitCode(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{ConfigParse, 1},
		{ConfigCycle, 1},
		{BundleFormat, 1},
		{ConfigIO, 2},
		{StoreIO, 2},
		{SchedulerSubmit, 3},
		{SchedulerPoll, 3},
		{SchedulerCancel, 3},
		{StoreSchema, 4},
		{Invariant, 4},
		{Kind("made-up"), 1},
	}
	for _, c := range cases {
		if got := c.kind.ExitCode(); got != c.want {
			t.Errorf("%s.ExitCode() = %d, want %d", c.kind, got, c.want)
		}
	}
}

func TestNewAndError(t *testing.T) {
	err := New(ConfigKey, "variable %q is unresolved", "gpu")
	if err.Kind != ConfigKey {
		t.Fatalf("Kind = %s, want %s", err.Kind, ConfigKey)
	}
	want := `ConfigKey: variable "gpu" is unresolved`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestWrapIncludesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(ConfigIO, cause, "write %s", "metadata.txt")
	if !errors.Is(err, cause) {
		t.Errorf("Wrap result does not unwrap to cause")
	}
	want := "ConfigIO: write metadata.txt: disk full"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestKindOfUnwrapsChain(t *testing.T) {
	base := New(SchedulerPoll, "squeue failed")
	wrapped := fmt.Errorf("polling job 7: %w", base)
	if got := KindOf(wrapped); got != SchedulerPoll {
		t.Errorf("KindOf(wrapped) = %s, want %s", got, SchedulerPoll)
	}
}

func TestKindOfDefaultsToInvariant(t *testing.T) {
	if got := KindOf(errors.New("plain")); got != Invariant {
		t.Errorf("KindOf(plain) = %s, want %s", got, Invariant)
	}
	if got := KindOf(nil); got != Invariant {
		t.Errorf("KindOf(nil) = %s, want %s", got, Invariant)
	}
}
