package config

import (
	"strings"
	"testing"
)

func TestLoadClientAppliesDefaults(t *testing.T) {
	t.Setenv("SLOTSYNC_EMPLOYEE_ID", "3b64c1d4-8f0a-4a5e-9c2b-1d6e7f8a9b0c")

	cfg, err := LoadClient()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ServerURL != "http://localhost:8080" {
		t.Fatalf("ServerURL default = %s", cfg.ServerURL)
	}
	if cfg.WSURL != "ws://localhost:8080" {
		t.Fatalf("WSURL default = %s", cfg.WSURL)
	}
	if cfg.UndoLimit != 0 {
		t.Fatalf("UndoLimit default = %d", cfg.UndoLimit)
	}
}

func TestLoadClientRequiresEmployeeID(t *testing.T) {
	t.Setenv("SLOTSYNC_EMPLOYEE_ID", "")

	_, err := LoadClient()
	if err == nil || !strings.Contains(err.Error(), "SLOTSYNC_EMPLOYEE_ID") {
		t.Fatalf("expected missing employee id error, got %v", err)
	}
}

func TestLoadClientRejectsInvalidUndoLimit(t *testing.T) {
	t.Setenv("SLOTSYNC_EMPLOYEE_ID", "3b64c1d4-8f0a-4a5e-9c2b-1d6e7f8a9b0c")
	t.Setenv("SLOTSYNC_UNDO_LIMIT", "-3")

	_, err := LoadClient()
	if err == nil || !strings.Contains(err.Error(), "SLOTSYNC_UNDO_LIMIT") {
		t.Fatalf("expected invalid undo limit error, got %v", err)
	}
}

func TestLoadClientHonoursOverrides(t *testing.T) {
	t.Setenv("SLOTSYNC_EMPLOYEE_ID", "3b64c1d4-8f0a-4a5e-9c2b-1d6e7f8a9b0c")
	t.Setenv("SLOTSYNC_SERVER_URL", "https://scheduler.internal")
	t.Setenv("SLOTSYNC_WS_URL", "wss://scheduler.internal")
	t.Setenv("SLOTSYNC_UNDO_LIMIT", "25")

	cfg, err := LoadClient()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ServerURL != "https://scheduler.internal" || cfg.WSURL != "wss://scheduler.internal" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.UndoLimit != 25 {
		t.Fatalf("UndoLimit = %d", cfg.UndoLimit)
	}
}

func TestLoadServerRejectsInvalidPort(t *testing.T) {
	t.Setenv("SLOTSYNCD_HTTP_PORT", "zero")

	_, err := LoadServer()
	if err == nil || !strings.Contains(err.Error(), "SLOTSYNCD_HTTP_PORT") {
		t.Fatalf("expected invalid port error, got %v", err)
	}
}

func TestLoadServerDefaults(t *testing.T) {
	t.Setenv("SLOTSYNCD_HTTP_PORT", "")
	t.Setenv("SLOTSYNCD_SQLITE_DSN", "")

	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPPort != 8080 {
		t.Fatalf("HTTPPort default = %d", cfg.HTTPPort)
	}
	if !strings.Contains(cfg.SQLiteDSN, "slotsyncd.db") {
		t.Fatalf("SQLiteDSN default = %s", cfg.SQLiteDSN)
	}
}
