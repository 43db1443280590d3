package models

import "time"

// LiveStatus is what the presentation side shows for the most recent frame.
type LiveStatus struct {
	Timestamp    time.Time            `json:"timestamp"`
	Result       ClassificationResult `json:"result"`
	HeldOver     bool                 `json:"held_over"`
	Render       bool                 `json:"render"`
	Calibrated   bool                 `json:"calibrated"`
	ActiveAlerts []AlertKind          `json:"active_alerts,omitempty"`
	// TwentyTwentyRemaining is the time left until the next eye-break reminder.
	TwentyTwentyRemaining time.Duration `json:"twenty_twenty_remaining"`
	// PersistenceDegraded is set once flushing has failed more times than allowed.
	PersistenceDegraded bool `json:"persistence_degraded,omitempty"`
}
