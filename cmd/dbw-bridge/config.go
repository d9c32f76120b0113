package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cartlab/go-dbw-bridge/internal/g30"
	"github.com/cartlab/go-dbw-bridge/internal/hub"
)

type appConfig struct {
	backend         string
	canIf           string
	serialDev       string
	baud            int
	serialReadTO    time.Duration
	slcanBitrate    int
	wheelBase       float64
	rateHz          int
	initialMode     string
	stopDwell       time.Duration
	listenAddr      string
	clientReadTO    time.Duration
	jwtSecret       string
	keyboard        bool
	hubBuffer       int
	hubPolicy       string
	metricsAddr     string
	logFormat       string
	logLevel        string
	logFile         string
	logMetricsEvery time.Duration
	mdnsEnable      bool
	mdnsName        string
	configFile      string
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	backend := flag.String("backend", "socketcan", "Bus backend: socketcan|slcan|dump (default socketcan)")
	canIf := flag.String("can-if", "can0", "CAN interface (socketcan and dump backends)")
	serialDev := flag.String("serial", "/dev/ttyUSB0", "Serial device path (slcan backend)")
	baud := flag.Int("baud", 115200, "Serial line baud rate")
	serialReadTO := flag.Duration("serial-read-timeout", 50*time.Millisecond, "Serial port read timeout")
	slcanBitrate := flag.Int("slcan-bitrate", 6, "SLCAN bitrate code 0-8 (6 = 500 kbit/s)")
	wheelBase := flag.Float64("wheel-base", 2.4, "Wheel base in meters for twist steering conversion")
	rateHz := flag.Int("rate", 100, "Control frame transmit rate in Hz")
	initialMode := flag.String("initial-mode", "drive", "Initial vehicle mode: drive|emergency")
	stopDwell := flag.Duration("stop-dwell", time.Second, "Stop sequencer dwell time (reserved, unused by active logic)")
	listen := flag.String("listen", ":18080", "Teleop WebSocket listen address")
	clientReadTO := flag.Duration("client-read-timeout", 60*time.Second, "Per-connection WebSocket read deadline")
	jwtSecret := flag.String("jwt-secret", "", "HS256 secret for teleop client tokens; empty disables auth")
	keyboard := flag.Bool("keyboard", true, "Terminal mode control (space=emergency, s=drive)")
	hubBuf := flag.Int("hub-buffer", 64, "Per-client feedback buffer (messages)")
	hubPolicy := flag.String("hub-policy", "drop", "Slow teleop client policy: drop|kick")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus listen address (e.g. :9100); empty disables")
	logFormat := flag.String("log-format", "text", "Log output format: text|json")
	logLevel := flag.String("log-level", "info", "Minimum log level: debug|info|warn|error")
	logFile := flag.String("log-file", "", "Rotating log file path; empty logs to stderr")
	logMetricsEvery := flag.Duration("log-metrics-interval", 0, "Interval for logging counter snapshots; 0 disables")
	mdnsEnable := flag.Bool("mdns-enable", false, "Enable mDNS/Avahi advertisement of the teleop endpoint")
	mdnsName := flag.String("mdns-name", "", "mDNS instance name (default dbw-bridge-<hostname>)")
	configFile := flag.String("config", "", "YAML config file; flags and environment override it")
	showVersion := flag.Bool("version", false, "Print build version and exit")
	flag.Parse()

	// Flags named on the command line outrank both the config file and
	// the environment, so remember which ones the user actually passed.
	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })
	cfg.backend = *backend
	cfg.canIf = *canIf
	cfg.serialDev = *serialDev
	cfg.baud = *baud
	cfg.serialReadTO = *serialReadTO
	cfg.slcanBitrate = *slcanBitrate
	cfg.wheelBase = *wheelBase
	cfg.rateHz = *rateHz
	cfg.initialMode = *initialMode
	cfg.stopDwell = *stopDwell
	cfg.listenAddr = *listen
	cfg.clientReadTO = *clientReadTO
	cfg.jwtSecret = *jwtSecret
	cfg.keyboard = *keyboard
	cfg.hubBuffer = *hubBuf
	cfg.hubPolicy = *hubPolicy
	cfg.metricsAddr = *metricsAddr
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.logFile = *logFile
	cfg.logMetricsEvery = *logMetricsEvery
	cfg.mdnsEnable = *mdnsEnable
	cfg.mdnsName = *mdnsName
	cfg.configFile = *configFile

	if _, ok := setFlags["config"]; !ok {
		if v, ok := os.LookupEnv("DBW_BRIDGE_CONFIG"); ok && strings.TrimSpace(v) != "" {
			cfg.configFile = strings.TrimSpace(v)
		}
	}
	if err := applyFileConfig(cfg, setFlags); err != nil {
		fmt.Printf("config file: %v\n", err)
		return nil, *showVersion
	}
	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("invalid configuration: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

// validate checks enum fields and numeric ranges after flag, file and env
// merging. It never touches devices or sockets; the backends report those
// failures themselves.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.backend {
	case "socketcan", "slcan", "dump":
	default:
		return fmt.Errorf("backend %q is not one of socketcan, slcan, dump", c.backend)
	}
	switch c.initialMode {
	case "drive", "emergency":
	default:
		return fmt.Errorf("initial-mode %q is not drive or emergency", c.initialMode)
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log-format %q is not text or json", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log-level %q", c.logLevel)
	}
	switch c.hubPolicy {
	case "drop", "kick":
	default:
		return fmt.Errorf("hub-policy %q is not drop or kick", c.hubPolicy)
	}
	if c.hubBuffer <= 0 {
		return fmt.Errorf("hub-buffer %d is not positive", c.hubBuffer)
	}
	if c.baud <= 0 {
		return fmt.Errorf("baud %d is not positive", c.baud)
	}
	if c.serialReadTO <= 0 {
		return errors.New("serial-read-timeout is not positive")
	}
	if c.slcanBitrate < 0 || c.slcanBitrate > 8 {
		return fmt.Errorf("slcan-bitrate %d is outside 0..8", c.slcanBitrate)
	}
	if c.wheelBase <= 0 {
		return fmt.Errorf("wheel-base %g is not positive", c.wheelBase)
	}
	if c.rateHz <= 0 || c.rateHz > 1000 {
		return fmt.Errorf("rate %d Hz is outside 1..1000", c.rateHz)
	}
	if c.stopDwell <= 0 {
		return errors.New("stop-dwell is not positive")
	}
	if c.clientReadTO <= 0 {
		return errors.New("client-read-timeout is not positive")
	}
	return nil
}

// mode converts the validated initial-mode string.
func (c *appConfig) mode() g30.Mode {
	if c.initialMode == "emergency" {
		return g30.ModeEmergency
	}
	return g30.ModeDrive
}

// policy converts the validated hub-policy string.
func (c *appConfig) policy() hub.BackpressurePolicy {
	if c.hubPolicy == "kick" {
		return hub.PolicyKick
	}
	return hub.PolicyDrop
}

// fileConfig mirrors the YAML config file. Bools are pointers so an
// explicit "false" can override a true default; durations are Go
// duration strings.
type fileConfig struct {
	Backend         string  `yaml:"backend"`
	CANInterface    string  `yaml:"can_interface"`
	SerialDevice    string  `yaml:"serial_device"`
	Baud            int     `yaml:"baud"`
	SerialReadTO    string  `yaml:"serial_read_timeout"`
	SLCANBitrate    *int    `yaml:"slcan_bitrate"`
	WheelBase       float64 `yaml:"wheel_base"`
	RateHz          int     `yaml:"rate"`
	InitialMode     string  `yaml:"initial_mode"`
	StopDwell       string  `yaml:"stop_dwell"`
	Listen          string  `yaml:"listen"`
	ClientReadTO    string  `yaml:"client_read_timeout"`
	JWTSecret       string  `yaml:"jwt_secret"`
	Keyboard        *bool   `yaml:"keyboard"`
	HubBuffer       int     `yaml:"hub_buffer"`
	HubPolicy       string  `yaml:"hub_policy"`
	MetricsAddr     string  `yaml:"metrics_addr"`
	LogFormat       string  `yaml:"log_format"`
	LogLevel        string  `yaml:"log_level"`
	LogFile         string  `yaml:"log_file"`
	LogMetricsEvery string  `yaml:"log_metrics_interval"`
	MDNSEnable      *bool   `yaml:"mdns_enable"`
	MDNSName        string  `yaml:"mdns_name"`
}

// applyFileConfig loads the YAML file (if configured) into fields whose
// flags were not explicitly set. Env overrides run after this, so the
// precedence is flag > env > file > default.
func applyFileConfig(c *appConfig, set map[string]struct{}) error {
	if c.configFile == "" {
		return nil
	}
	raw, err := os.ReadFile(c.configFile)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if _, ok := set["backend"]; !ok && fc.Backend != "" {
		c.backend = fc.Backend
	}
	if _, ok := set["can-if"]; !ok && fc.CANInterface != "" {
		c.canIf = fc.CANInterface
	}
	if _, ok := set["serial"]; !ok && fc.SerialDevice != "" {
		c.serialDev = fc.SerialDevice
	}
	if _, ok := set["baud"]; !ok && fc.Baud > 0 {
		c.baud = fc.Baud
	}
	if _, ok := set["serial-read-timeout"]; !ok && fc.SerialReadTO != "" {
		d, err := time.ParseDuration(fc.SerialReadTO)
		if err != nil {
			return fmt.Errorf("invalid serial_read_timeout: %w", err)
		}
		c.serialReadTO = d
	}
	if _, ok := set["slcan-bitrate"]; !ok && fc.SLCANBitrate != nil {
		c.slcanBitrate = *fc.SLCANBitrate
	}
	if _, ok := set["wheel-base"]; !ok && fc.WheelBase > 0 {
		c.wheelBase = fc.WheelBase
	}
	if _, ok := set["rate"]; !ok && fc.RateHz > 0 {
		c.rateHz = fc.RateHz
	}
	if _, ok := set["initial-mode"]; !ok && fc.InitialMode != "" {
		c.initialMode = fc.InitialMode
	}
	if _, ok := set["stop-dwell"]; !ok && fc.StopDwell != "" {
		d, err := time.ParseDuration(fc.StopDwell)
		if err != nil {
			return fmt.Errorf("invalid stop_dwell: %w", err)
		}
		c.stopDwell = d
	}
	if _, ok := set["listen"]; !ok && fc.Listen != "" {
		c.listenAddr = fc.Listen
	}
	if _, ok := set["client-read-timeout"]; !ok && fc.ClientReadTO != "" {
		d, err := time.ParseDuration(fc.ClientReadTO)
		if err != nil {
			return fmt.Errorf("invalid client_read_timeout: %w", err)
		}
		c.clientReadTO = d
	}
	if _, ok := set["jwt-secret"]; !ok && fc.JWTSecret != "" {
		c.jwtSecret = fc.JWTSecret
	}
	if _, ok := set["keyboard"]; !ok && fc.Keyboard != nil {
		c.keyboard = *fc.Keyboard
	}
	if _, ok := set["hub-buffer"]; !ok && fc.HubBuffer > 0 {
		c.hubBuffer = fc.HubBuffer
	}
	if _, ok := set["hub-policy"]; !ok && fc.HubPolicy != "" {
		c.hubPolicy = fc.HubPolicy
	}
	if _, ok := set["metrics-addr"]; !ok && fc.MetricsAddr != "" {
		c.metricsAddr = fc.MetricsAddr
	}
	if _, ok := set["log-format"]; !ok && fc.LogFormat != "" {
		c.logFormat = fc.LogFormat
	}
	if _, ok := set["log-level"]; !ok && fc.LogLevel != "" {
		c.logLevel = fc.LogLevel
	}
	if _, ok := set["log-file"]; !ok && fc.LogFile != "" {
		c.logFile = fc.LogFile
	}
	if _, ok := set["log-metrics-interval"]; !ok && fc.LogMetricsEvery != "" {
		d, err := time.ParseDuration(fc.LogMetricsEvery)
		if err != nil {
			return fmt.Errorf("invalid log_metrics_interval: %w", err)
		}
		c.logMetricsEvery = d
	}
	if _, ok := set["mdns-enable"]; !ok && fc.MDNSEnable != nil {
		c.mdnsEnable = *fc.MDNSEnable
	}
	if _, ok := set["mdns-name"]; !ok && fc.MDNSName != "" {
		c.mdnsName = fc.MDNSName
	}
	return nil
}

// applyEnvOverrides folds DBW_BRIDGE_* variables into any field whose flag
// was not given on the command line. Malformed values surface as an error;
// values that parse but fall below a field's floor are ignored. The JWT
// secret and the metrics address accept the empty string, which switches
// the feature off.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	setString := func(dst *string) func(string) error {
		return func(v string) error { *dst = v; return nil }
	}
	setInt := func(dst *int, floor int) func(string) error {
		return func(v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			if n >= floor {
				*dst = n
			}
			return nil
		}
	}
	setDuration := func(dst *time.Duration, floor time.Duration) func(string) error {
		return func(v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return err
			}
			if d >= floor {
				*dst = d
			}
			return nil
		}
	}
	setBool := func(dst *bool) func(string) error {
		return func(v string) error {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				*dst = true
			case "0", "false", "no", "off":
				*dst = false
			}
			return nil
		}
	}
	setPositiveFloat := func(dst *float64) func(string) error {
		return func(v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return err
			}
			if f > 0 {
				*dst = f
			}
			return nil
		}
	}

	overrides := []struct {
		flagName   string
		env        string
		allowEmpty bool
		apply      func(string) error
	}{
		{"backend", "DBW_BRIDGE_BACKEND", false, setString(&c.backend)},
		{"can-if", "DBW_BRIDGE_IF", false, setString(&c.canIf)},
		{"serial", "DBW_BRIDGE_SERIAL", false, setString(&c.serialDev)},
		{"baud", "DBW_BRIDGE_BAUD", false, setInt(&c.baud, 1)},
		{"serial-read-timeout", "DBW_BRIDGE_SERIAL_READ_TIMEOUT", false, setDuration(&c.serialReadTO, 1)},
		{"slcan-bitrate", "DBW_BRIDGE_SLCAN_BITRATE", false, setInt(&c.slcanBitrate, 0)},
		{"wheel-base", "DBW_BRIDGE_WHEEL_BASE", false, setPositiveFloat(&c.wheelBase)},
		{"rate", "DBW_BRIDGE_RATE", false, setInt(&c.rateHz, 1)},
		{"initial-mode", "DBW_BRIDGE_INITIAL_MODE", false, setString(&c.initialMode)},
		{"stop-dwell", "DBW_BRIDGE_STOP_DWELL", false, setDuration(&c.stopDwell, 1)},
		{"listen", "DBW_BRIDGE_LISTEN", false, setString(&c.listenAddr)},
		{"client-read-timeout", "DBW_BRIDGE_CLIENT_READ_TIMEOUT", false, setDuration(&c.clientReadTO, 1)},
		{"jwt-secret", "DBW_BRIDGE_JWT_SECRET", true, setString(&c.jwtSecret)},
		{"keyboard", "DBW_BRIDGE_KEYBOARD", false, setBool(&c.keyboard)},
		{"hub-buffer", "DBW_BRIDGE_HUB_BUFFER", false, setInt(&c.hubBuffer, 1)},
		{"hub-policy", "DBW_BRIDGE_HUB_POLICY", false, setString(&c.hubPolicy)},
		{"metrics-addr", "DBW_BRIDGE_METRICS", true, setString(&c.metricsAddr)},
		{"log-format", "DBW_BRIDGE_LOG_FORMAT", false, setString(&c.logFormat)},
		{"log-level", "DBW_BRIDGE_LOG_LEVEL", false, setString(&c.logLevel)},
		{"log-file", "DBW_BRIDGE_LOG_FILE", false, setString(&c.logFile)},
		{"log-metrics-interval", "DBW_BRIDGE_LOG_METRICS_INTERVAL", false, setDuration(&c.logMetricsEvery, 0)},
		{"mdns-enable", "DBW_BRIDGE_MDNS_ENABLE", false, setBool(&c.mdnsEnable)},
		{"mdns-name", "DBW_BRIDGE_MDNS_NAME", false, setString(&c.mdnsName)},
	}

	var firstErr error
	for _, o := range overrides {
		if _, fromFlag := set[o.flagName]; fromFlag {
			continue
		}
		raw, found := os.LookupEnv(o.env)
		if !found {
			continue
		}
		v := strings.TrimSpace(raw)
		if v == "" && !o.allowEmpty {
			continue
		}
		if err := o.apply(v); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("invalid %s: %w", o.env, err)
		}
	}
	return firstErr
}
