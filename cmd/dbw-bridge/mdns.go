package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"

	"github.com/grandcat/zeroconf"
)

// mdnsServiceType is what operator consoles browse for on the paddock
// network.
const mdnsServiceType = "_dbw-teleop._tcp"

// startMDNS advertises the teleop endpoint on the local domain. The TXT
// record carries what a console needs to connect without prior
// configuration: the ws path, the auth scheme and the control rate.
// Deregistration is tied to ctx.
func startMDNS(ctx context.Context, cfg *appConfig, addr string, l *slog.Logger) error {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("mdns: listen addr %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("mdns: listen addr %q: %w", addr, err)
	}
	instance := cfg.mdnsName
	if instance == "" {
		host, _ := os.Hostname()
		instance = "dbw-bridge-" + host
	}
	auth := "open"
	if cfg.jwtSecret != "" {
		auth = "token"
	}
	txt := []string{
		"path=/ws",
		"auth=" + auth,
		"backend=" + cfg.backend,
		"rate_hz=" + strconv.Itoa(cfg.rateHz),
		"version=" + version,
	}
	svc, err := zeroconf.Register(instance, mdnsServiceType, "local.", port, txt, nil)
	if err != nil {
		return fmt.Errorf("mdns register: %w", err)
	}
	l.Info("mdns_started", "service", mdnsServiceType, "instance", instance, "port", port)
	go func() {
		<-ctx.Done()
		svc.Shutdown()
	}()
	return nil
}
