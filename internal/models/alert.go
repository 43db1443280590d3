package models

import "time"

// AlertKind identifies an alert state machine.
type AlertKind string

const (
	AlertPosture      AlertKind = "posture"
	AlertDistance     AlertKind = "distance"
	AlertTwentyTwenty AlertKind = "twenty_twenty_twenty"
	AlertNailBiting   AlertKind = "nail_biting"
	AlertFaceTouch    AlertKind = "face_touch"
	AlertPartialFrame AlertKind = "partial_frame"
	AlertOffTask      AlertKind = "off_task"
)

// AllAlertKinds lists every kind in display order.
var AllAlertKinds = []AlertKind{
	AlertPosture,
	AlertDistance,
	AlertTwentyTwenty,
	AlertNailBiting,
	AlertFaceTouch,
	AlertPartialFrame,
	AlertOffTask,
}

// AlertEvent is an emitted alert (alert_events table). Immutable once created.
type AlertEvent struct {
	ID        string    `json:"id" db:"id"`
	Timestamp time.Time `json:"timestamp" db:"ts"`
	Kind      AlertKind `json:"kind" db:"kind"`
	Message   string    `json:"message" db:"message"`
}
