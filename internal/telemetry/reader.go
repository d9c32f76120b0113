// Package telemetry turns raw bus traffic into vehicle feedback and
// folds mode echoes from the cart back into the command state.
package telemetry

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/cartlab/go-dbw-bridge/internal/command"
	"github.com/cartlab/go-dbw-bridge/internal/g30"
	"github.com/cartlab/go-dbw-bridge/internal/metrics"
)

// feedbackFrameID tags feedback samples with the vehicle frame the
// measurement is expressed in.
const feedbackFrameID = "base_link"

// Feedback is one decoded vehicle state sample.
type Feedback struct {
	Stamp       time.Time
	FrameID     string
	VelocityMps float64
}

// Publisher receives decoded feedback samples.
type Publisher interface {
	PublishFeedback(Feedback)
}

// Reader decodes bus traffic into feedback samples and mode
// observations. It is shared by all backends: the frame-based ones
// call HandleFrame directly, the dump backend feeds lines through Run.
type Reader struct {
	arb *command.Arbiter
	pub Publisher
	log *slog.Logger
}

// NewReader creates a Reader. pub may be nil when no feedback consumer
// is wired up.
func NewReader(arb *command.Arbiter, pub Publisher, log *slog.Logger) *Reader {
	return &Reader{arb: arb, pub: pub, log: log}
}

// Run consumes candump-format lines from r until EOF, stream error or
// ctx cancellation. The caller owns the restart policy.
func (rd *Reader) Run(ctx context.Context, r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		rd.HandleLine(sc.Text())
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return nil
}

// HandleLine parses one dump line and feeds any frame into HandleFrame.
// Blank lines are skipped silently, unparsable ones count as malformed.
func (rd *Reader) HandleLine(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	metrics.IncTelemetryLine()
	id, payload, ok := g30.ParseDumpLine(line)
	if !ok {
		metrics.IncMalformed()
		rd.log.Debug("telemetry_line_rejected", "line", line)
		return
	}
	metrics.IncBusRx()
	rd.HandleFrame(id, payload)
}

// HandleFrame decodes one bus frame. A valid mode cell updates the
// tracked mode so the next control frame repeats what the cart is in;
// every control echo also publishes a feedback sample.
func (rd *Reader) HandleFrame(id uint32, payload []byte) {
	tl, ok := g30.DecodeTelemetry(id, payload)
	if !ok {
		return
	}
	if tl.HasMode {
		if prev := rd.arb.ObserveBusMode(tl.Mode); prev != tl.Mode {
			metrics.IncModeChange()
			rd.log.Info("mode_change", "from", prev, "to", tl.Mode, "source", "bus")
		}
	}
	metrics.SetFeedbackVelocity(g30.MpsToKmph(tl.VelocityMps))
	if rd.pub != nil {
		rd.pub.PublishFeedback(Feedback{
			Stamp:       time.Now(),
			FrameID:     feedbackFrameID,
			VelocityMps: tl.VelocityMps,
		})
		metrics.IncFeedback()
	}
}
