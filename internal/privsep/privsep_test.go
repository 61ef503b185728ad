package privsep

import "testing"

func TestConstants(t *testing.T) {
	if ChildIPCFd != 3 {
		t.Fatalf("got ChildIPCFd %d, want 3", ChildIPCFd)
	}
	if DefaultTimeoutSeconds <= 0 {
		t.Fatalf("DefaultTimeoutSeconds must be positive, got %d", DefaultTimeoutSeconds)
	}
	if DebugEnv == "" {
		t.Fatal("DebugEnv must not be empty")
	}
}

func TestNewCapsetNeverNil(t *testing.T) {
	if NewCapset(false) == nil {
		t.Fatal("NewCapset(false) returned nil")
	}
	if NewCapset(true) == nil {
		t.Fatal("NewCapset(true) returned nil")
	}
}
