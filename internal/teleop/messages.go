package teleop

// inboundMessage is the union of client command payloads. Type selects
// which fields matter: "twist" carries linear/angular, "joy" carries
// the pad arrays, "velocity" the localization speed in m/s.
type inboundMessage struct {
	Type     string    `json:"type"`
	Linear   float64   `json:"linear"`
	Angular  float64   `json:"angular"`
	Buttons  []int     `json:"buttons"`
	Axes     []float64 `json:"axes"`
	Velocity float64   `json:"velocity"`
}

// feedbackMessage mirrors a vehicle feedback sample on the wire.
type feedbackMessage struct {
	Type        string  `json:"type"`
	Stamp       string  `json:"stamp"`
	FrameID     string  `json:"frame_id"`
	VelocityMps float64 `json:"velocity_mps"`
}
