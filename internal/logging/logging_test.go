package logging

import (
	"testing"
)

func TestLogLevelString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level    LogLevel
		expected string
	}{
		{LevelDebug, "debug"},
		{LevelInfo, "info"},
		{LevelWarn, "warn"},
		{LevelError, "error"},
		{LogLevel(99), "unknown(99)"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.expected {
			t.Errorf("LogLevel(%d).String() = %q, want %q", tt.level, got, tt.expected)
		}
	}
}

func TestGetLevelDefault(t *testing.T) {
	// GetLevel is latched by sync.Once, so in the default test environment
	// (no DEBUG or LOG_LEVEL set) it must resolve to Info.
	level := GetLevel()
	if level < LevelDebug || level > LevelError {
		t.Errorf("GetLevel() returned out-of-range level %d", level)
	}

	// Repeated calls must be stable.
	if again := GetLevel(); again != level {
		t.Errorf("GetLevel() not stable: first %v, then %v", level, again)
	}
}

func TestIsDebugEnabledConsistent(t *testing.T) {
	enabled := IsDebugEnabled()
	if enabled != (GetLevel() <= LevelDebug) {
		t.Errorf("IsDebugEnabled() = %v inconsistent with GetLevel() = %v", enabled, GetLevel())
	}
}
