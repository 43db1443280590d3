package evaluator

import (
	"time"

	"github.com/EricW9888/ScreenGuardian/internal/models"

	"github.com/google/uuid"
)

// AlertEventBuilder stamps alert events with an id.
type AlertEventBuilder struct {
	newID func() string
}

// NewAlertEventBuilder creates a builder issuing random UUIDs.
func NewAlertEventBuilder() *AlertEventBuilder {
	return &AlertEventBuilder{
		newID: func() string { return uuid.New().String() },
	}
}

// Build creates an event for kind at ts.
func (b *AlertEventBuilder) Build(kind models.AlertKind, message string, ts time.Time) models.AlertEvent {
	return models.AlertEvent{
		ID:        b.newID(),
		Timestamp: ts,
		Kind:      kind,
		Message:   message,
	}
}
