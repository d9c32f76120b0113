package g30

import (
	"math"
	"testing"
)

func TestEncodeControlGolden(t *testing.T) {
	cmd := Command{
		Mode:        ModeDrive,
		Shift:       ShiftDrive,
		VelocityX10: 72,
		SteeringX10: -148,
		Brake:       BrakeNone,
		Heartbeat:   0x29,
	}
	fr := EncodeControl(cmd)
	if fr.ID != ControlFrameID {
		t.Fatalf("frame id: got 0x%X want 0x%X", fr.ID, ControlFrameID)
	}
	if fr.Length != 8 {
		t.Fatalf("frame length: got %d want 8", fr.Length)
	}
	want := [8]byte{0x08, 0x00, 0x00, 0x48, 0xFF, 0x6C, 0x00, 0x29}
	if fr.Data != want {
		t.Fatalf("frame data: got % X want % X", fr.Data, want)
	}
}

func TestEncodeDecodeRoundtrip(t *testing.T) {
	cmds := []Command{
		{},
		{Mode: ModeEmergency, Shift: ShiftReverse, VelocityX10: 0, SteeringX10: 0, Brake: BrakeStrong, Heartbeat: 255},
		{Mode: ModeDrive, Shift: ShiftDrive, VelocityX10: 190, SteeringX10: -280, Brake: BrakeLight, Heartbeat: 1},
		{Mode: ModeDrive, Shift: ShiftDrive, VelocityX10: -1, SteeringX10: 32767, Brake: BrakeMedium, Heartbeat: 128},
		{Mode: ModeDrive, Shift: ShiftDrive, VelocityX10: 12345, SteeringX10: -32768, Brake: BrakeNone, Heartbeat: 0},
	}
	for i, cmd := range cmds {
		fr := EncodeControl(cmd)
		got := DecodeControl(fr.Data)
		if got != cmd {
			t.Fatalf("case %d: roundtrip mismatch: got %+v want %+v", i, got, cmd)
		}
	}
}

func TestDecodeTelemetry(t *testing.T) {
	payload := []byte{0x08, 0x00, 0x00, 0x48, 0xFF, 0x6C, 0x00, 0x29}

	tl, ok := DecodeTelemetry(ControlFrameID, payload)
	if !ok {
		t.Fatal("expected control echo to decode")
	}
	if !tl.HasMode || tl.Mode != ModeDrive {
		t.Fatalf("mode: got %v (has=%v) want drive", tl.Mode, tl.HasMode)
	}
	// 72 tenths of km/h is exactly 2.0 m/s.
	if math.Abs(tl.VelocityMps-2.0) > 1e-9 {
		t.Fatalf("velocity: got %v want 2.0", tl.VelocityMps)
	}

	if _, ok := DecodeTelemetry(0x1A0, payload); ok {
		t.Fatal("expected foreign id to be rejected")
	}
	if _, ok := DecodeTelemetry(ControlFrameID, payload[:7]); ok {
		t.Fatal("expected short payload to be rejected")
	}

	glitched := append([]byte{}, payload...)
	glitched[0] = 0x55
	tl, ok = DecodeTelemetry(ControlFrameID, glitched)
	if !ok {
		t.Fatal("expected glitched mode frame to still decode velocity")
	}
	if tl.HasMode {
		t.Fatalf("expected HasMode=false for mode byte 0x55, got mode %v", tl.Mode)
	}
}

func TestParseDumpLine(t *testing.T) {
	cases := []struct {
		name    string
		line    string
		wantOK  bool
		wantID  uint32
		wantLen int
	}{
		{"control echo", "  can0  200   [8]  08 00 00 00 01 00 01 29", true, 0x200, 8},
		{"golden echo", "can0  200   [8]  08 00 00 48 FF 6C 00 29", true, 0x200, 8},
		{"extended id", "can0  18DB33F1   [3]  01 02 03", true, 0x18DB33F1, 3},
		{"no payload", "can0  1A0   [0]", true, 0x1A0, 0},
		{"too short", "can0  200", false, 0, 0},
		{"empty", "", false, 0, 0},
		{"bad id", "can0  zz0   [1]  01", false, 0, 0},
		{"bad byte", "can0  1A0   [2]  01 GG", false, 0, 0},
		{"id too wide", "can0  123456789   [1]  01", false, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			id, payload, ok := ParseDumpLine(tc.line)
			if ok != tc.wantOK {
				t.Fatalf("ok: got %v want %v", ok, tc.wantOK)
			}
			if !ok {
				return
			}
			if id != tc.wantID {
				t.Fatalf("id: got 0x%X want 0x%X", id, tc.wantID)
			}
			if len(payload) != tc.wantLen {
				t.Fatalf("payload length: got %d want %d", len(payload), tc.wantLen)
			}
		})
	}
}

func TestParseDumpLineGoldenPayload(t *testing.T) {
	id, payload, ok := ParseDumpLine("can0  200   [8]  08 00 00 48 FF 6C 00 29")
	if !ok {
		t.Fatal("expected parse to succeed")
	}
	cmd := DecodeControl([8]byte(payload))
	if id != ControlFrameID || cmd.Mode != ModeDrive || cmd.VelocityX10 != 72 || cmd.SteeringX10 != -148 {
		t.Fatalf("unexpected decode: id=0x%X cmd=%+v", id, cmd)
	}
}

func TestSteeringAngle(t *testing.T) {
	// Bicycle model: atan(0.1 * 2.4 / 2.0) is 6.8428 degrees.
	if got := SteeringAngle(0.1, 2.0, 2.4); math.Abs(got-6.8428) > 1e-3 {
		t.Fatalf("forward: got %v want ~6.8428", got)
	}
	if got := SteeringAngle(0.1, -2.0, 2.4); math.Abs(got+6.8428) > 1e-3 {
		t.Fatalf("reverse: got %v want ~-6.8428", got)
	}
	// Below the speed floor the curvature is undefined.
	if got := SteeringAngle(0.5, 0.0005, 2.4); got != 0 {
		t.Fatalf("near-zero speed: got %v want 0", got)
	}
	if got := SteeringAngle(0.5, 0, 2.4); got != 0 {
		t.Fatalf("zero speed: got %v want 0", got)
	}
}

func TestFixedPointHelpers(t *testing.T) {
	if got := MpsToKmph(2.0); math.Abs(got-7.2) > 1e-9 {
		t.Fatalf("MpsToKmph(2.0): got %v", got)
	}
	for _, tc := range []struct {
		in   float64
		want int16
	}{
		{7.2, 72},
		{-14.84, -148},
		{0.049, 0},
		{0.05, 1},
		{-0.051, -1},
	} {
		if got := ToFixedX10(tc.in); got != tc.want {
			t.Fatalf("ToFixedX10(%v): got %d want %d", tc.in, got, tc.want)
		}
	}
}
