// ABOUTME: Tests for logger construction
// ABOUTME: Checks level filtering and prefixing

package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNew_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "warn")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Info("quiet")
	logger.Warn("left planned route", "distance", 120)

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Errorf("info message should be filtered at warn level:\n%s", out)
	}
	if !strings.Contains(out, "left planned route") || !strings.Contains(out, "distance=120") {
		t.Errorf("expected warn message with fields:\n%s", out)
	}
	if !strings.Contains(out, "offroute") {
		t.Errorf("expected prefix in output:\n%s", out)
	}
}

func TestNew_RejectsUnknownLevel(t *testing.T) {
	if _, err := New(&bytes.Buffer{}, "loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestDiscard(t *testing.T) {
	Discard().Error("nobody hears this")
}
