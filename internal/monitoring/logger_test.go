package monitoring

import (
	"fmt"
	"strings"
	"testing"
)

func TestSetLogger(t *testing.T) {
	defer SetLogger(nil)

	var captured []string
	SetLogger(func(format string, v ...interface{}) {
		captured = append(captured, fmt.Sprintf(format, v...))
	})

	Logf("hello %d", 42)

	if len(captured) != 1 || captured[0] != "hello 42" {
		t.Errorf("unexpected capture: %v", captured)
	}
}

func TestSetLogger_NilMutes(t *testing.T) {
	SetLogger(nil)
	// Must not panic.
	Logf("discarded %s", "message")
}

func TestStagef(t *testing.T) {
	defer SetLogger(nil)

	var captured []string
	SetLogger(func(format string, v ...interface{}) {
		captured = append(captured, fmt.Sprintf(format, v...))
	})

	Stagef("burst-7", "calibration", "exit code %d", 0)

	if len(captured) != 1 {
		t.Fatalf("expected one message, got %d", len(captured))
	}
	if !strings.HasPrefix(captured[0], "[burst-7/calibration] ") {
		t.Errorf("missing stage prefix: %q", captured[0])
	}
	if !strings.Contains(captured[0], "exit code 0") {
		t.Errorf("missing body: %q", captured[0])
	}
}
