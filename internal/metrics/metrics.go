// Package metrics exposes the bridge's Prometheus collectors plus a
// log-friendly counter snapshot for the periodic metrics log line.
package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/cartlab/go-dbw-bridge/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors stay package-private; call sites use the helpers below,
// which update the Prometheus series and the local mirror together.
var (
	controlTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "control_tx_frames_total",
		Help: "Control frames handed to the CAN backend.",
	})
	busRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bus_rx_frames_total",
		Help: "CAN frames received from the bus backend.",
	})
	telemetryLines = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_lines_total",
		Help: "Telemetry dump lines consumed.",
	})
	malformedInput = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_malformed_total",
		Help: "Telemetry input rejected as unparsable or truncated.",
	})
	feedbackPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedback_published_total",
		Help: "Vehicle feedback messages published to teleop sessions.",
	})
	modeChanges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mode_changes_total",
		Help: "Drive mode transitions, commanded or observed on the bus.",
	})
	wsCommandsRx = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_commands_rx_total",
		Help: "Command messages received from teleop sessions.",
	})
	wsTxMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_tx_messages_total",
		Help: "Messages written to teleop sessions.",
	})
	hubDroppedMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_dropped_messages_total",
		Help: "Feedback messages discarded because a session buffer was full.",
	})
	hubKickedClients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_kicked_clients_total",
		Help: "Sessions closed for falling behind the feedback stream.",
	})
	hubRejectedClients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_rejected_clients_total",
		Help: "Connection attempts refused before the websocket upgrade.",
	})
	hubActiveClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_active_clients",
		Help: "Connected teleop sessions.",
	})
	hubBroadcastFanout = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_broadcast_fanout",
		Help: "Sessions reached by the latest broadcast.",
	})
	hubQueueDepthMax = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_queue_depth_max",
		Help: "Deepest session queue seen at the latest broadcast.",
	})
	hubQueueDepthAvg = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_queue_depth_avg",
		Help: "Mean session queue depth at the latest broadcast.",
	})
	feedbackVelocityKmph = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "feedback_velocity_kmph",
		Help: "Last cart speed decoded from the bus, in km/h.",
	})
	displayVelocityKmph = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "display_velocity_kmph",
		Help: "Last localization speed reported by a teleop client, in km/h.",
	})
	buildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata; the value is always 1.",
	}, []string{"version", "commit", "date"})
	errorsVec = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Errors by subsystem label.",
	}, []string{"where"})
)

// Stable error label values, one per failure site, to bound series
// cardinality.
const (
	ErrWSRead         = "ws_read"
	ErrWSWrite        = "ws_write"
	ErrWSAuth         = "ws_auth"
	ErrWSUpgrade      = "ws_upgrade"
	ErrSocketCANWrite = "socketcan_write"
	ErrSocketCANOver  = "socketcan_tx_overflow"
	ErrSocketCANRead  = "socketcan_read"
	ErrSLCANWrite     = "slcan_write"
	ErrSLCANOver      = "slcan_tx_overflow"
	ErrSLCANRead      = "slcan_read"
	ErrDumpWrite      = "dump_write"
	ErrDumpOver       = "dump_tx_overflow"
	ErrDumpRead       = "dump_read"
)

// Mirrors for Snap, so the metrics logger never scrapes the registry
// in-process.
var local struct {
	controlTx   atomic.Uint64
	busRx       atomic.Uint64
	lines       atomic.Uint64
	malformed   atomic.Uint64
	feedback    atomic.Uint64
	modeChanges atomic.Uint64
	wsRx        atomic.Uint64
	wsTx        atomic.Uint64
	hubDrops    atomic.Uint64
	hubKicks    atomic.Uint64
	hubRejects  atomic.Uint64
	errs        atomic.Uint64
	hubClients  atomic.Uint64
	fanout      atomic.Uint64
	qdMax       atomic.Uint64
	qdAvg       atomic.Uint64
}

// Snapshot is a point-in-time copy of the mirrored counters.
type Snapshot struct {
	ControlTx     uint64
	BusRx         uint64
	Lines         uint64
	Malformed     uint64
	Feedback      uint64
	ModeChanges   uint64
	WSRx          uint64
	WSTx          uint64
	HubDrops      uint64
	HubKicks      uint64
	HubRejects    uint64
	Errors        uint64 // sum across error labels
	HubClients    uint64
	Fanout        uint64
	QueueDepthMax uint64
	QueueDepthAvg uint64
}

func Snap() Snapshot {
	return Snapshot{
		ControlTx:     local.controlTx.Load(),
		BusRx:         local.busRx.Load(),
		Lines:         local.lines.Load(),
		Malformed:     local.malformed.Load(),
		Feedback:      local.feedback.Load(),
		ModeChanges:   local.modeChanges.Load(),
		WSRx:          local.wsRx.Load(),
		WSTx:          local.wsTx.Load(),
		HubDrops:      local.hubDrops.Load(),
		HubKicks:      local.hubKicks.Load(),
		HubRejects:    local.hubRejects.Load(),
		Errors:        local.errs.Load(),
		HubClients:    local.hubClients.Load(),
		Fanout:        local.fanout.Load(),
		QueueDepthMax: local.qdMax.Load(),
		QueueDepthAvg: local.qdAvg.Load(),
	}
}

// IncControlTx counts one control frame queued toward the bus.
func IncControlTx() { controlTxFrames.Inc(); local.controlTx.Add(1) }

// IncBusRx counts one frame read off the bus.
func IncBusRx() { busRxFrames.Inc(); local.busRx.Add(1) }

func IncTelemetryLine() { telemetryLines.Inc(); local.lines.Add(1) }

func IncMalformed() { malformedInput.Inc(); local.malformed.Add(1) }

func IncFeedback() { feedbackPublished.Inc(); local.feedback.Add(1) }

func IncModeChange() { modeChanges.Inc(); local.modeChanges.Add(1) }

func IncWSCommand() { wsCommandsRx.Inc(); local.wsRx.Add(1) }

func AddWSTx(n int) { wsTxMessages.Add(float64(n)); local.wsTx.Add(uint64(n)) }

func IncHubDrop() { hubDroppedMessages.Inc(); local.hubDrops.Add(1) }

func IncHubKick() { hubKickedClients.Inc(); local.hubKicks.Add(1) }

func IncHubReject() { hubRejectedClients.Inc(); local.hubRejects.Add(1) }

func SetHubClients(n int) { hubActiveClients.Set(float64(n)); local.hubClients.Store(uint64(n)) }

func SetBroadcastFanout(n int) { hubBroadcastFanout.Set(float64(n)); local.fanout.Store(uint64(n)) }

func IncError(label string) { errorsVec.WithLabelValues(label).Inc(); local.errs.Add(1) }

// SetFeedbackVelocity records the last cart speed decoded from the bus.
func SetFeedbackVelocity(kmph float64) { feedbackVelocityKmph.Set(kmph) }

// SetDisplayVelocity records the last client-reported localization speed.
func SetDisplayVelocity(kmph float64) { displayVelocityKmph.Set(kmph) }

// SetQueueDepth records max and mean session queue depth for one
// broadcast.
func SetQueueDepth(max, avg int) {
	hubQueueDepthMax.Set(float64(max))
	hubQueueDepthAvg.Set(float64(avg))
	local.qdMax.Store(uint64(max))
	local.qdAvg.Store(uint64(avg))
}

// InitBuildInfo publishes build metadata and warms the error label
// space so scrapes see every series from the first sample.
func InitBuildInfo(version, commit, date string) {
	buildInfo.WithLabelValues(version, commit, date).Set(1)
	for _, lbl := range []string{
		ErrWSRead, ErrWSWrite, ErrWSAuth, ErrWSUpgrade,
		ErrSocketCANWrite, ErrSocketCANOver, ErrSocketCANRead,
		ErrSLCANWrite, ErrSLCANOver, ErrSLCANRead,
		ErrDumpWrite, ErrDumpOver, ErrDumpRead,
	} {
		errorsVec.WithLabelValues(lbl).Add(0)
	}
}

var readiness atomic.Pointer[func() bool]

// SetReadinessFunc installs the probe behind /ready.
func SetReadinessFunc(fn func() bool) { readiness.Store(&fn) }

// IsReady reports true until a probe is installed, so the endpoint
// does not flap during startup.
func IsReady() bool {
	fn := readiness.Load()
	if fn == nil {
		return true
	}
	return (*fn)()
}

// StartHTTP serves /metrics and /ready on addr in a goroutine.
// Shutting down the returned server stops it.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", readyHandler)
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

func readyHandler(w http.ResponseWriter, _ *http.Request) {
	if IsReady() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready\n"))
}
