package g30

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"

	"go.einride.tech/can"
)

// EncodeControl packs cmd into a classical CAN frame with ControlFrameID.
// Multi-byte fields are big-endian.
func EncodeControl(cmd Command) can.Frame {
	var d can.Data
	d[0] = byte(cmd.Mode)
	d[1] = byte(cmd.Shift)
	binary.BigEndian.PutUint16(d[2:4], uint16(cmd.VelocityX10))
	binary.BigEndian.PutUint16(d[4:6], uint16(cmd.SteeringX10))
	d[6] = byte(cmd.Brake)
	d[7] = cmd.Heartbeat
	return can.Frame{ID: ControlFrameID, Length: 8, Data: d}
}

// DecodeControl is the inverse of EncodeControl.
func DecodeControl(d can.Data) Command {
	return Command{
		Mode:        Mode(d[0]),
		Shift:       Shift(d[1]),
		VelocityX10: int16(binary.BigEndian.Uint16(d[2:4])),
		SteeringX10: int16(binary.BigEndian.Uint16(d[4:6])),
		Brake:       Brake(d[6]),
		Heartbeat:   d[7],
	}
}

// Telemetry is the cart state extracted from a frame echoed by the unit.
type Telemetry struct {
	VelocityMps float64
	Mode        Mode
	HasMode     bool
}

// DecodeTelemetry extracts cart state from a received frame. Only echoes
// of the control frame are understood; everything else returns ok=false.
// HasMode is set only when the mode cell holds a value the unit defines,
// so glitched frames cannot push the tracked mode into an unknown state.
func DecodeTelemetry(id uint32, payload []byte) (Telemetry, bool) {
	if id != ControlFrameID || len(payload) < 8 {
		return Telemetry{}, false
	}
	var t Telemetry
	kmphX10 := binary.BigEndian.Uint16(payload[2:4])
	t.VelocityMps = float64(kmphX10) / 10.0 / 3.6
	if m := Mode(payload[0]); m.Valid() {
		t.Mode = m
		t.HasMode = true
	}
	return t, true
}

// ParseDumpLine parses one line of candump output, e.g.
//
//	can0  200   [8]  08 00 00 48 FF 6C 00 29
//
// The identifier and payload bytes are hexadecimal. Lines with fewer
// than three columns are rejected; a line with no payload columns
// yields ok with an empty payload.
func ParseDumpLine(line string) (id uint32, payload []byte, ok bool) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return 0, nil, false
	}
	v, err := strconv.ParseUint(fields[1], 16, 32)
	if err != nil {
		return 0, nil, false
	}
	id = uint32(v)
	raw := fields[3:]
	payload = make([]byte, 0, len(raw))
	for _, tok := range raw {
		b, err := strconv.ParseUint(tok, 16, 8)
		if err != nil {
			return 0, nil, false
		}
		payload = append(payload, byte(b))
	}
	return id, payload, true
}

// SteeringAngle converts a yaw-rate command into a front-wheel angle in
// degrees using the bicycle model with the given wheel base in meters.
// Near-zero forward speed yields a zero angle because the curvature is
// undefined there.
func SteeringAngle(angularRadps, linearMps, wheelBase float64) float64 {
	if math.Abs(linearMps) < 1e-3 {
		return 0
	}
	return math.Atan(angularRadps*wheelBase/linearMps) * 180.0 / math.Pi
}

// MpsToKmph converts meters per second to kilometers per hour.
func MpsToKmph(v float64) float64 { return v * 3.6 }

// ToFixedX10 rounds v to one decimal digit and returns it scaled by ten.
func ToFixedX10(v float64) int16 { return int16(math.Round(v * 10)) }
