// Package g30 implements the control and telemetry protocol of the
// G30Es-Li golf cart drive-by-wire unit.
//
// The cart is commanded with a single 8-byte CAN frame (ID 0x200)
// carrying mode, shift, speed, steering, brake and a rolling heartbeat.
// The unit echoes the same layout back on the bus, which is the only
// feedback channel this package decodes.
package g30

import "fmt"

// ControlFrameID is the CAN identifier of the cart control frame.
// Echoes from the unit arrive with the same identifier.
const ControlFrameID uint32 = 0x200

// SteeringOffsetDeg is the mechanical trim of the steering column.
// It is added to every computed steering angle before encoding.
const SteeringOffsetDeg = 8.0

// Mode is the drive mode cell of the control frame.
type Mode uint8

const (
	// ModeEmergency latches the cart brakes regardless of the other fields.
	ModeEmergency Mode = 3
	// ModeDrive accepts speed and steering commands.
	ModeDrive Mode = 8
)

// Valid reports whether m is a mode the unit understands.
func (m Mode) Valid() bool { return m == ModeEmergency || m == ModeDrive }

func (m Mode) String() string {
	switch m {
	case ModeEmergency:
		return "emergency"
	case ModeDrive:
		return "drive"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// Shift selects the drive direction.
type Shift uint8

const (
	ShiftDrive   Shift = 0
	ShiftReverse Shift = 1
)

// Brake is the stepped brake command. Higher is stronger.
type Brake uint8

const (
	BrakeNone   Brake = 0
	BrakeLight  Brake = 1
	BrakeMedium Brake = 2
	BrakeStrong Brake = 3
)

// Command is the decoded form of the 8-byte control frame.
//
// Speed and steering are fixed-point with one decimal digit:
// VelocityX10 is km/h times ten, SteeringX10 is degrees times ten.
// Steering is stored negated relative to the kinematic convention,
// matching the column controller.
type Command struct {
	Mode        Mode
	Shift       Shift
	VelocityX10 int16
	SteeringX10 int16
	Brake       Brake
	Heartbeat   uint8
}
