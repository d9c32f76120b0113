// Package command arbitrates between the autonomy stream and the
// operator pad, producing the sample encoded into each control frame.
package command

import (
	"math"
	"sync/atomic"

	"github.com/cartlab/go-dbw-bridge/internal/g30"
)

// Pad mapping.
const (
	BtnCancel         = 0 // any press drops to manual and applies light brake
	BtnThrottleEnable = 1 // hold to command speed
	BtnBrakeMedium    = 2
	BtnBrakeStrong    = 3
	BtnShift          = 5 // held value is the shift cell
	BtnResumeAuto     = 12

	AxisSteering    = 0
	AxisCancelL     = 1
	AxisCancelR     = 2
	AxisSensitivity = 3 // widens the steering ratio while pulled
	AxisThrottle    = 4
)

// Manual throttle and steering tuning. Speed spans 3 to 19 km/h with
// the throttle trigger, the steering ratio spans 20 to 37 degrees of
// wheel angle per unit of stick deflection.
const (
	throttleFloorKmph = 3.0
	throttleSpanKmph  = 16.0
	steerRatioBaseDeg = 20.0
	steerRatioSpanDeg = 17.0
)

// Sample is one arbitrated command: fixed-point speed and steering plus
// the shift and brake cells selected for a single transmit tick.
type Sample struct {
	VelocityX10 int16
	SteeringX10 int16
	Shift       g30.Shift
	Brake       g30.Brake
}

func packSample(s Sample) uint64 {
	return uint64(uint16(s.VelocityX10))<<48 |
		uint64(uint16(s.SteeringX10))<<32 |
		uint64(s.Shift)<<24 |
		uint64(s.Brake)<<16
}

func unpackSample(v uint64) Sample {
	return Sample{
		VelocityX10: int16(uint16(v >> 48)),
		SteeringX10: int16(uint16(v >> 32)),
		Shift:       g30.Shift(byte(v >> 24)),
		Brake:       g30.Brake(byte(v >> 16)),
	}
}

// Arbiter holds the latest command from each source and the drive mode.
// Writers are the teleop connection goroutines, the keyboard watcher
// and the telemetry reader; the single reader is the transmit loop.
// Each sample is packed into one word so a reader never observes the
// speed of one event paired with the steering of another.
type Arbiter struct {
	wheelBase float64

	auto     atomic.Uint64 // packed Sample from the autonomy stream
	manual   atomic.Uint64 // packed Sample from the operator pad
	automode atomic.Bool
	mode     atomic.Uint32
	display  atomic.Uint64 // float64 bits, localization speed in km/h
}

// NewArbiter creates an arbiter with the autonomy stream selected and
// the given initial drive mode.
func NewArbiter(wheelBase float64, initial g30.Mode) *Arbiter {
	a := &Arbiter{wheelBase: wheelBase}
	a.automode.Store(true)
	a.mode.Store(uint32(initial))
	return a
}

// SetAuto records the latest autonomy command. The yaw rate is turned
// into a wheel angle with the bicycle model, trimmed by the column
// offset and negated for the column controller.
func (a *Arbiter) SetAuto(linearMps, angularRadps float64) {
	kmph := g30.MpsToKmph(linearMps)
	deg := g30.SteeringAngle(angularRadps, linearMps, a.wheelBase) + g30.SteeringOffsetDeg
	s := Sample{
		VelocityX10: g30.ToFixedX10(kmph),
		SteeringX10: -g30.ToFixedX10(deg),
	}
	a.auto.Store(packSample(s))
}

// SetManual records one pad event. Any cancel input drops out of the
// autonomy stream before the rest of the event is applied; the resume
// button re-arms it last and resets shift to drive.
func (a *Arbiter) SetManual(buttons []int, axes []float64) {
	if btn(buttons, BtnCancel) == 1 || axis(axes, AxisCancelL) != 0 || axis(axes, AxisCancelR) != 0 {
		a.automode.Store(false)
	}

	// Only speed is gated behind the enable button; steering follows
	// the stick on every event.
	var s Sample
	if btn(buttons, BtnThrottleEnable) == 1 {
		r2 := (1 - axis(axes, AxisThrottle)) / 2
		s.VelocityX10 = g30.ToFixedX10(throttleSpanKmph*r2 + throttleFloorKmph)
	}
	l2 := (1 - axis(axes, AxisSensitivity)) / 2
	ratio := steerRatioBaseDeg + steerRatioSpanDeg*l2
	s.SteeringX10 = -g30.ToFixedX10(ratio*axis(axes, AxisSteering) + g30.SteeringOffsetDeg)

	switch {
	case btn(buttons, BtnCancel) == 1:
		s.Brake = g30.BrakeLight
	case btn(buttons, BtnBrakeMedium) == 1:
		s.Brake = g30.BrakeMedium
	case btn(buttons, BtnBrakeStrong) == 1:
		s.Brake = g30.BrakeStrong
	}

	s.Shift = g30.Shift(btn(buttons, BtnShift))

	resume := btn(buttons, BtnResumeAuto) == 1
	if resume {
		s.Shift = g30.ShiftDrive
	}
	a.manual.Store(packSample(s))
	if resume {
		a.automode.Store(true)
	}
}

// Select returns the sample for the next transmit tick. Manual shift
// and brake always win because the autonomy stream carries neither.
func (a *Arbiter) Select() Sample {
	manual := unpackSample(a.manual.Load())
	if !a.automode.Load() {
		return manual
	}
	s := unpackSample(a.auto.Load())
	s.Shift = manual.Shift
	s.Brake = manual.Brake
	return s
}

// SetMode commands a new drive mode and returns the previous one.
func (a *Arbiter) SetMode(m g30.Mode) g30.Mode {
	return g30.Mode(a.mode.Swap(uint32(m)))
}

// ObserveBusMode folds a mode echoed by the unit into the tracked mode
// so the next frame repeats what the cart is actually in. Returns the
// previous mode; invalid cells leave it untouched.
func (a *Arbiter) ObserveBusMode(m g30.Mode) g30.Mode {
	if !m.Valid() {
		return a.Mode()
	}
	return g30.Mode(a.mode.Swap(uint32(m)))
}

// Mode returns the mode transmitted with the next control frame.
func (a *Arbiter) Mode() g30.Mode { return g30.Mode(a.mode.Load()) }

// Automode reports whether the autonomy stream is selected.
func (a *Arbiter) Automode() bool { return a.automode.Load() }

// SetDisplayVelocity records the localization speed in m/s reported by
// a teleop client for operator display.
func (a *Arbiter) SetDisplayVelocity(mps float64) {
	a.display.Store(math.Float64bits(g30.MpsToKmph(mps)))
}

// DisplayVelocityKmph returns the last reported localization speed.
func (a *Arbiter) DisplayVelocityKmph() float64 {
	return math.Float64frombits(a.display.Load())
}

func btn(buttons []int, i int) int {
	if i >= len(buttons) {
		return 0
	}
	return buttons[i]
}

func axis(axes []float64, i int) float64 {
	if i >= len(axes) {
		return 0
	}
	return axes[i]
}
