// SPDX-License-Identifier: LGPL-3.0-or-later

package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"DEBUG":   LevelDebug,
		"info":    LevelInfo,
		"":        LevelInfo,
		"warn":    LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"bogus":   LevelInfo,
	}
	for s, want := range cases {
		if got := parseLevel(s); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", s, got, want)
		}
	}
}

func TestStandardLoggerFiltersBelowConfiguredLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithConfig(Config{Level: LevelWarn, Format: FormatText, Output: &buf})

	l.Info("should not appear")
	l.Debug("should not appear either")
	if buf.Len() != 0 {
		t.Errorf("buf = %q, want empty below the configured level", buf.String())
	}

	l.Warn("visible warning", "job", 42)
	if !strings.Contains(buf.String(), "WARN: visible warning") || !strings.Contains(buf.String(), "job=42") {
		t.Errorf("buf = %q, missing expected warning text", buf.String())
	}
}

func TestStandardLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithConfig(Config{Level: LevelInfo, Format: FormatJSON, Output: &buf})
	l.Error("boom", "code", 500)

	var record map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not valid JSON: %v (%q)", err, buf.String())
	}
	if record["message"] != "boom" {
		t.Errorf("message = %v, want boom", record["message"])
	}
	if record["level"] != "ERROR" {
		t.Errorf("level = %v, want ERROR", record["level"])
	}
	if record["code"] != float64(500) {
		t.Errorf("code = %v, want 500", record["code"])
	}
}

func TestStandardLoggerHandlesOddKeyValueCount(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithConfig(Config{Level: LevelInfo, Format: FormatText, Output: &buf})
	l.Info("dangling key", "only_key")
	if !strings.Contains(buf.String(), "only_key=<missing>") {
		t.Errorf("buf = %q, want a <missing> placeholder for the dangling key", buf.String())
	}
}

func TestNopSatisfiesLogger(t *testing.T) {
	var l Logger = Nop{}
	l.Debug("x")
	l.Info("x")
	l.Warn("x")
	l.Error("x")
}
