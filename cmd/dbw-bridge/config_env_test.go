package main

import (
	"testing"
	"time"
)

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DBW_BRIDGE_BAUD", "230400")
	t.Setenv("DBW_BRIDGE_WHEEL_BASE", "1.9")
	t.Setenv("DBW_BRIDGE_RATE", "50")
	t.Setenv("DBW_BRIDGE_KEYBOARD", "off")
	t.Setenv("DBW_BRIDGE_MDNS_ENABLE", "true")
	t.Setenv("DBW_BRIDGE_SERIAL_READ_TIMEOUT", "100ms")
	t.Setenv("DBW_BRIDGE_LOG_METRICS_INTERVAL", "5s")

	cfg := validConfig()
	if err := applyEnvOverrides(cfg, map[string]struct{}{}); err != nil {
		t.Fatalf("applyEnvOverrides: %v", err)
	}
	if cfg.baud != 230400 {
		t.Errorf("baud = %d, want 230400", cfg.baud)
	}
	if cfg.wheelBase != 1.9 {
		t.Errorf("wheelBase = %g, want 1.9", cfg.wheelBase)
	}
	if cfg.rateHz != 50 {
		t.Errorf("rateHz = %d, want 50", cfg.rateHz)
	}
	if cfg.keyboard {
		t.Error("keyboard should be off")
	}
	if !cfg.mdnsEnable {
		t.Error("mdnsEnable should be on")
	}
	if cfg.serialReadTO != 100*time.Millisecond {
		t.Errorf("serialReadTO = %v, want 100ms", cfg.serialReadTO)
	}
	if cfg.logMetricsEvery != 5*time.Second {
		t.Errorf("logMetricsEvery = %v, want 5s", cfg.logMetricsEvery)
	}
}

func TestEnvYieldsToFlags(t *testing.T) {
	t.Setenv("DBW_BRIDGE_BAUD", "230400")
	cfg := &appConfig{baud: 115200}
	set := map[string]struct{}{"baud": {}}
	if err := applyEnvOverrides(cfg, set); err != nil {
		t.Fatalf("applyEnvOverrides: %v", err)
	}
	if cfg.baud != 115200 {
		t.Fatalf("env overrode an explicit flag: baud = %d", cfg.baud)
	}
}

func TestEnvBadValueFails(t *testing.T) {
	t.Setenv("DBW_BRIDGE_HUB_BUFFER", "notint")
	cfg := &appConfig{hubBuffer: 64}
	if err := applyEnvOverrides(cfg, map[string]struct{}{}); err == nil {
		t.Fatal("bad integer accepted")
	}
}

func TestEnvEmptySecretDisablesAuth(t *testing.T) {
	t.Setenv("DBW_BRIDGE_JWT_SECRET", "")
	cfg := &appConfig{jwtSecret: "from-file"}
	if err := applyEnvOverrides(cfg, map[string]struct{}{}); err != nil {
		t.Fatalf("applyEnvOverrides: %v", err)
	}
	if cfg.jwtSecret != "" {
		t.Fatalf("explicit empty secret not applied, got %q", cfg.jwtSecret)
	}
}
