package app

import (
	"context"
	"path/filepath"
	"testing"
)

// TestApp_New verifies app initialization.
func TestApp_New(t *testing.T) {
	app, err := New("1.0.0", "abc123", "2024-01-01")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if app.Version() != "1.0.0" {
		t.Errorf("Version() = %s, want 1.0.0", app.Version())
	}
	if app.Logger() == nil {
		t.Error("Logger() returned nil")
	}
	if app.Config() == nil {
		t.Error("Config() returned nil")
	}
}

// TestApp_Tracker_Singleton verifies that Tracker() reuses one instance.
func TestApp_Tracker_Singleton(t *testing.T) {
	app, err := New("1.0.0", "test", "2024-01-01")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	dir := t.TempDir()
	app.config.SnapshotDir = filepath.Join(dir, "snapshots")
	app.config.ChangesDir = filepath.Join(dir, "changes")
	app.config.DBPath = ":memory:"

	tr1, err := app.Tracker()
	if err != nil {
		t.Fatalf("Tracker() failed: %v", err)
	}
	tr2, err := app.Tracker()
	if err != nil {
		t.Fatalf("Tracker() failed: %v", err)
	}
	if tr1 != tr2 {
		t.Error("Tracker() created a second instance")
	}

	if err := app.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() failed: %v", err)
	}
}

// TestApp_Shutdown_WithoutTracker verifies shutdown is safe before use.
func TestApp_Shutdown_WithoutTracker(t *testing.T) {
	app, err := New("1.0.0", "test", "2024-01-01")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := app.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() failed: %v", err)
	}
}
