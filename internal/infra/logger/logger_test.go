package logger

import "testing"

func TestNew(t *testing.T) {
	if _, err := New("warn", false); err != nil {
		t.Fatalf("New(warn): %v", err)
	}
	if _, err := New("", true); err != nil {
		t.Fatalf("New(debug): %v", err)
	}
	if _, err := New("loud", false); err == nil {
		t.Error("Expected error for invalid level")
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("héllo world", 5); got != "héllo..." {
		t.Errorf("Truncate = %q", got)
	}
	if got := Truncate("short", 50); got != "short" {
		t.Errorf("Truncate = %q", got)
	}
}
