package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "bridge.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestApplyFileConfig_Basic(t *testing.T) {
	base := validConfig()
	base.configFile = writeConfigFile(t, `
backend: dump
can_interface: vcan0
baud: 57600
serial_read_timeout: 75ms
slcan_bitrate: 4
wheel_base: 1.8
rate: 20
initial_mode: emergency
stop_dwell: 2s
listen: ":19090"
keyboard: false
hub_policy: kick
log_level: debug
`)
	if err := applyFileConfig(base, map[string]struct{}{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base.backend != "dump" || base.canIf != "vcan0" {
		t.Fatalf("backend/interface not applied: %q %q", base.backend, base.canIf)
	}
	if base.baud != 57600 {
		t.Fatalf("expected baud 57600 got %d", base.baud)
	}
	if base.serialReadTO != 75*time.Millisecond {
		t.Fatalf("expected serialReadTO 75ms got %v", base.serialReadTO)
	}
	if base.slcanBitrate != 4 {
		t.Fatalf("expected bitrate 4 got %d", base.slcanBitrate)
	}
	if base.wheelBase != 1.8 {
		t.Fatalf("expected wheelBase 1.8 got %g", base.wheelBase)
	}
	if base.rateHz != 20 {
		t.Fatalf("expected rate 20 got %d", base.rateHz)
	}
	if base.initialMode != "emergency" {
		t.Fatalf("expected initial mode emergency got %q", base.initialMode)
	}
	if base.stopDwell != 2*time.Second {
		t.Fatalf("expected stopDwell 2s got %v", base.stopDwell)
	}
	if base.listenAddr != ":19090" {
		t.Fatalf("expected listen :19090 got %q", base.listenAddr)
	}
	if base.keyboard {
		t.Fatalf("expected keyboard false from explicit file value")
	}
	if base.hubPolicy != "kick" || base.logLevel != "debug" {
		t.Fatalf("hub policy / log level not applied: %q %q", base.hubPolicy, base.logLevel)
	}
	if err := base.validate(); err != nil {
		t.Fatalf("file-loaded config should validate: %v", err)
	}
}

func TestApplyFileConfig_FlagWins(t *testing.T) {
	base := validConfig()
	base.configFile = writeConfigFile(t, "baud: 57600\n")
	if err := applyFileConfig(base, map[string]struct{}{"baud": {}}); err != nil {
		t.Fatalf("err: %v", err)
	}
	if base.baud != 115200 {
		t.Fatalf("expected flag value retained, got %d", base.baud)
	}
}

func TestApplyFileConfig_EnvWinsOverFile(t *testing.T) {
	base := validConfig()
	base.configFile = writeConfigFile(t, "baud: 57600\n")
	os.Setenv("DBW_BRIDGE_BAUD", "230400")
	t.Cleanup(func() { os.Unsetenv("DBW_BRIDGE_BAUD") })
	// Same order as parseFlags: file first, env after.
	set := map[string]struct{}{}
	if err := applyFileConfig(base, set); err != nil {
		t.Fatalf("file: %v", err)
	}
	if err := applyEnvOverrides(base, set); err != nil {
		t.Fatalf("env: %v", err)
	}
	if base.baud != 230400 {
		t.Fatalf("expected env to win over file, got %d", base.baud)
	}
}

func TestApplyFileConfig_Errors(t *testing.T) {
	base := validConfig()
	base.configFile = filepath.Join(t.TempDir(), "missing.yaml")
	if err := applyFileConfig(base, map[string]struct{}{}); err == nil {
		t.Fatalf("expected error for missing file")
	}

	base = validConfig()
	base.configFile = writeConfigFile(t, ": not yaml [\n")
	if err := applyFileConfig(base, map[string]struct{}{}); err == nil {
		t.Fatalf("expected error for bad yaml")
	}

	base = validConfig()
	base.configFile = writeConfigFile(t, "serial_read_timeout: soon\n")
	if err := applyFileConfig(base, map[string]struct{}{}); err == nil {
		t.Fatalf("expected error for bad duration")
	}
}
