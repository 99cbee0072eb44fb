package memory

import (
	"math"
	"runtime/debug"
	"testing"
)

func TestConfigureFromEnvNoEnvironment(t *testing.T) {
	t.Setenv("GOMEMLIMIT", "")
	t.Setenv("MEMORY_LIMIT", "")
	t.Setenv("MEMORY_RATIO", "")

	result := ConfigureFromEnv()

	if result.Configured {
		t.Error("Expected Configured=false with no environment variables")
	}
	if result.Source != "none" {
		t.Errorf("Expected Source=none, got %q", result.Source)
	}
}

func TestConfigureFromEnvMemoryLimit(t *testing.T) {
	prev := debug.SetMemoryLimit(-1)
	defer debug.SetMemoryLimit(prev)

	t.Setenv("GOMEMLIMIT", "")
	t.Setenv("MEMORY_LIMIT", "1073741824") // 1 GiB
	t.Setenv("MEMORY_RATIO", "")

	result := ConfigureFromEnv()

	if !result.Configured {
		t.Fatal("Expected Configured=true with MEMORY_LIMIT set")
	}
	if result.Source != "MEMORY_LIMIT" {
		t.Errorf("Expected Source=MEMORY_LIMIT, got %q", result.Source)
	}
	if result.ContainerLimit != 1073741824 {
		t.Errorf("Expected ContainerLimit=1073741824, got %d", result.ContainerLimit)
	}
	wantGoLimit := int64(1073741824 * DefaultMemoryRatio)
	if result.GoMemLimit != wantGoLimit {
		t.Errorf("Expected GoMemLimit=%d, got %d", wantGoLimit, result.GoMemLimit)
	}
	if result.Ratio != DefaultMemoryRatio {
		t.Errorf("Expected Ratio=%v, got %v", DefaultMemoryRatio, result.Ratio)
	}
	if got := debug.SetMemoryLimit(-1); got != wantGoLimit {
		t.Errorf("Expected runtime limit %d, got %d", wantGoLimit, got)
	}
}

func TestConfigureFromEnvCustomRatio(t *testing.T) {
	prev := debug.SetMemoryLimit(-1)
	defer debug.SetMemoryLimit(prev)

	t.Setenv("GOMEMLIMIT", "")
	t.Setenv("MEMORY_LIMIT", "2147483648")
	t.Setenv("MEMORY_RATIO", "0.5")

	result := ConfigureFromEnv()

	if !result.Configured {
		t.Fatal("Expected Configured=true")
	}
	if result.Ratio != 0.5 {
		t.Errorf("Expected Ratio=0.5, got %v", result.Ratio)
	}
	if result.GoMemLimit != 1073741824 {
		t.Errorf("Expected GoMemLimit=1073741824, got %d", result.GoMemLimit)
	}
}

func TestConfigureFromEnvInvalidMemoryLimit(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"Not a number", "abc"},
		{"Negative", "-1024"},
		{"Zero", "0"},
		{"Empty after whitespace", "  "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GOMEMLIMIT", "")
			t.Setenv("MEMORY_LIMIT", tt.value)

			result := ConfigureFromEnv()

			if result.Configured {
				t.Errorf("Expected Configured=false for MEMORY_LIMIT=%q", tt.value)
			}
			if result.Source != "none" {
				t.Errorf("Expected Source=none, got %q", result.Source)
			}
		})
	}
}

func TestConfigureFromEnvInvalidRatioFallsBack(t *testing.T) {
	prev := debug.SetMemoryLimit(-1)
	defer debug.SetMemoryLimit(prev)

	tests := []struct {
		name  string
		ratio string
	}{
		{"Not a number", "fast"},
		{"Zero", "0"},
		{"Negative", "-0.5"},
		{"Above one", "1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GOMEMLIMIT", "")
			t.Setenv("MEMORY_LIMIT", "1048576")
			t.Setenv("MEMORY_RATIO", tt.ratio)

			result := ConfigureFromEnv()

			if !result.Configured {
				t.Fatal("Expected Configured=true")
			}
			if result.Ratio != DefaultMemoryRatio {
				t.Errorf("Expected fallback ratio %v, got %v", DefaultMemoryRatio, result.Ratio)
			}
		})
	}
}

func TestConfigureFromEnvGOMEMLIMITWins(t *testing.T) {
	prev := debug.SetMemoryLimit(-1)
	defer debug.SetMemoryLimit(prev)

	debug.SetMemoryLimit(512 * 1024 * 1024)
	t.Setenv("GOMEMLIMIT", "512MiB")
	t.Setenv("MEMORY_LIMIT", "1073741824")

	result := ConfigureFromEnv()

	if result.Source != "GOMEMLIMIT" {
		t.Errorf("Expected Source=GOMEMLIMIT, got %q", result.Source)
	}
	if result.ContainerLimit != 0 {
		t.Error("MEMORY_LIMIT should be ignored when GOMEMLIMIT is set")
	}
	// The limit set by the runtime itself must survive untouched.
	if got := debug.SetMemoryLimit(-1); got != 512*1024*1024 {
		t.Errorf("Expected runtime limit unchanged at 536870912, got %d", got)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1048576, "1.0 MiB"},
		{1073741824, "1.0 GiB"},
		{1610612736, "1.5 GiB"},
		{1099511627776, "1.0 TiB"},
	}

	for _, tt := range tests {
		if got := formatBytes(tt.bytes); got != tt.expected {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.bytes, got, tt.expected)
		}
	}
}

func TestDefaultMemoryRatio(t *testing.T) {
	if DefaultMemoryRatio <= 0 || DefaultMemoryRatio > 1 {
		t.Errorf("DefaultMemoryRatio out of range: %v", DefaultMemoryRatio)
	}
	// Keep headroom for the ffmpeg subprocess.
	if math.Abs(DefaultMemoryRatio-0.75) > 1e-9 {
		t.Errorf("Expected DefaultMemoryRatio=0.75, got %v", DefaultMemoryRatio)
	}
}
