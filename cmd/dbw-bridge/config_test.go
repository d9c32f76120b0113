package main

import (
	"testing"
	"time"

	"github.com/cartlab/go-dbw-bridge/internal/g30"
	"github.com/cartlab/go-dbw-bridge/internal/hub"
)

func validConfig() *appConfig {
	return &appConfig{
		backend:      "slcan",
		canIf:        "can0",
		serialDev:    "/dev/null",
		baud:         115200,
		serialReadTO: 10 * time.Millisecond,
		slcanBitrate: 6,
		wheelBase:    2.4,
		rateHz:       100,
		initialMode:  "drive",
		stopDwell:    time.Second,
		listenAddr:   ":18080",
		clientReadTO: time.Second,
		keyboard:     true,
		hubBuffer:    8,
		hubPolicy:    "drop",
		logFormat:    "text",
		logLevel:     "info",
	}
}

func TestConfigValidate_OK(t *testing.T) {
	if err := validConfig().validate(); err != nil {
		t.Fatalf("expected ok got %v", err)
	}
}

func TestConfigValidate_Errors(t *testing.T) {
	cases := []struct {
		name    string
		corrupt func(*appConfig)
	}{
		{"backend", func(c *appConfig) { c.backend = "x" }},
		{"initial mode", func(c *appConfig) { c.initialMode = "park" }},
		{"log format", func(c *appConfig) { c.logFormat = "xx" }},
		{"log level", func(c *appConfig) { c.logLevel = "nope" }},
		{"hub policy", func(c *appConfig) { c.hubPolicy = "x" }},
		{"hub buffer", func(c *appConfig) { c.hubBuffer = 0 }},
		{"baud", func(c *appConfig) { c.baud = 0 }},
		{"serial timeout", func(c *appConfig) { c.serialReadTO = 0 }},
		{"bitrate code", func(c *appConfig) { c.slcanBitrate = 9 }},
		{"wheel base", func(c *appConfig) { c.wheelBase = 0 }},
		{"rate zero", func(c *appConfig) { c.rateHz = 0 }},
		{"rate too high", func(c *appConfig) { c.rateHz = 2000 }},
		{"stop dwell", func(c *appConfig) { c.stopDwell = 0 }},
		{"client timeout", func(c *appConfig) { c.clientReadTO = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := validConfig()
			tc.corrupt(c)
			if err := c.validate(); err == nil {
				t.Fatal("validate accepted a bad config")
			}
		})
	}
}

func TestConfigAccessors(t *testing.T) {
	c := validConfig()
	if c.mode() != g30.ModeDrive {
		t.Fatalf("expected drive, got %v", c.mode())
	}
	c.initialMode = "emergency"
	if c.mode() != g30.ModeEmergency {
		t.Fatalf("expected emergency, got %v", c.mode())
	}
	if c.policy() != hub.PolicyDrop {
		t.Fatalf("expected drop policy, got %v", c.policy())
	}
	c.hubPolicy = "kick"
	if c.policy() != hub.PolicyKick {
		t.Fatalf("expected kick policy, got %v", c.policy())
	}
}
