package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cartlab/go-dbw-bridge/internal/command"
	"github.com/cartlab/go-dbw-bridge/internal/control"
	"github.com/cartlab/go-dbw-bridge/internal/hub"
	"github.com/cartlab/go-dbw-bridge/internal/keyboard"
	"github.com/cartlab/go-dbw-bridge/internal/metrics"
	"github.com/cartlab/go-dbw-bridge/internal/modectl"
	"github.com/cartlab/go-dbw-bridge/internal/telemetry"
	"github.com/cartlab/go-dbw-bridge/internal/teleop"
)

// Helper implementations live in dedicated files: version.go, config.go,
// logger.go, metrics_logger.go, backend.go.

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("dbw-bridge %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(2)
	}
	l, logCloser := setupLogger(cfg)
	if logCloser != nil {
		defer func() { _ = logCloser.Close() }()
	}
	l.Info("build_info", "version", version, "commit", commit, "date", date)

	h := hub.New()
	h.OutBufSize = cfg.hubBuffer
	h.Policy = cfg.policy()
	l.Info("hub_config", "policy", cfg.hubPolicy, "buffer", cfg.hubBuffer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	arb := command.NewArbiter(cfg.wheelBase, cfg.mode())
	srv := teleop.New(
		teleop.WithListenAddr(cfg.listenAddr),
		teleop.WithHub(h),
		teleop.WithArbiter(arb),
		teleop.WithLogger(l),
		teleop.WithReadDeadline(cfg.clientReadTO),
		teleop.WithVerifier(teleop.NewVerifier(cfg.jwtSecret)),
	)
	rd := telemetry.NewReader(arb, srv, l)

	sendFunc, cleanup, berr := initBackend(ctx, cfg, rd, l, &wg)
	if berr != nil {
		l.Error("backend_init_error", "error", berr)
		os.Exit(1)
	}

	loop := control.New(arb, sendFunc, cfg.rateHz, l)
	wg.Add(1)
	go func() {
		defer wg.Done()
		loop.Run(ctx)
	}()
	l.Info("control_loop_started", "rate_hz", cfg.rateHz, "initial_mode", arb.Mode().String())

	go func() {
		if err := srv.Serve(ctx); err != nil {
			l.Error("teleop_server_error", "error", err)
			cancel()
		}
	}()

	if cfg.keyboard {
		kb, kerr := keyboard.Open()
		if kerr != nil {
			l.Warn("keyboard_unavailable", "error", kerr)
		} else {
			defer func() { _ = kb.Close() }()
			mc := modectl.New(arb, kb, l)
			wg.Add(1)
			go func() {
				defer wg.Done()
				mc.Run(ctx)
			}()
			l.Info("keyboard_mode_control", "emergency_key", "space", "drive_key", "s")
		}
	}

	if cfg.mdnsEnable {
		// Advertise only once the teleop listener is bound, so the TXT
		// record carries the real port.
		go func() {
			select {
			case <-srv.Ready():
			case <-ctx.Done():
				return
			}
			if err := startMDNS(ctx, cfg, srv.Addr(), l); err != nil {
				l.Warn("mdns_start_failed", "error", err)
			}
		}()
	}

	// Ready when the teleop listener is bound and context not cancelled.
	metrics.SetReadinessFunc(func() bool {
		select {
		case <-srv.Ready():
		default:
			return false
		}
		return ctx.Err() == nil
	})
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sigCh:
		l.Info("shutdown_signal", "signal", s.String())
	case <-ctx.Done():
	}
	cancel()
	cleanup()
	wg.Wait()
	sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer scancel()
	if err := srv.Shutdown(sctx); err != nil {
		l.Warn("teleop_shutdown_incomplete", "error", err)
	}
}
