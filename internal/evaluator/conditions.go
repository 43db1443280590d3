package evaluator

import (
	"strings"

	"github.com/EricW9888/ScreenGuardian/internal/models"
)

// Alert messages.
const (
	MessageBadPosture   = "Bad Posture"
	MessageTooClose     = "Distance Alerts - Too close to screen"
	MessageNailBiting   = "Nail Biting Detected"
	MessageFaceTouch    = "Face Touch Detected"
	MessageTwentyTwenty = "20-20-20 reminder"
	MessagePartialFrame = "Partial Frame - Please come fully into frame"
	MessageOffTask      = "Off Task - Body Turned"
)

// condition decides whether a classification satisfies one alert kind.
// Unknown inputs must report false.
type condition interface {
	Kind() models.AlertKind
	Check(r *models.ClassificationResult, p *Policy) (bool, string)
}

type postureCondition struct{}

func (postureCondition) Kind() models.AlertKind { return models.AlertPosture }

func (postureCondition) Check(r *models.ClassificationResult, _ *Policy) (bool, string) {
	if !r.Posture.Bad() {
		return false, ""
	}
	if len(r.PostureReasons) == 0 {
		return true, MessageBadPosture
	}
	return true, MessageBadPosture + " - " + strings.Join(r.PostureReasons, ", ")
}

type distanceCondition struct{}

func (distanceCondition) Kind() models.AlertKind { return models.AlertDistance }

func (distanceCondition) Check(r *models.ClassificationResult, p *Policy) (bool, string) {
	if !r.DistanceKnown() {
		return false, ""
	}
	return *r.DistanceCM < p.MinDistanceCM, MessageTooClose
}

type nailBitingCondition struct{}

func (nailBitingCondition) Kind() models.AlertKind { return models.AlertNailBiting }

func (nailBitingCondition) Check(r *models.ClassificationResult, _ *Policy) (bool, string) {
	return r.Behavior.NailBitingKnown && r.Behavior.NailBiting, MessageNailBiting
}

type faceTouchCondition struct{}

func (faceTouchCondition) Kind() models.AlertKind { return models.AlertFaceTouch }

func (faceTouchCondition) Check(r *models.ClassificationResult, _ *Policy) (bool, string) {
	return r.Behavior.FaceTouchKnown && r.Behavior.FaceTouch, MessageFaceTouch
}

type partialFrameCondition struct{}

func (partialFrameCondition) Kind() models.AlertKind { return models.AlertPartialFrame }

func (partialFrameCondition) Check(r *models.ClassificationResult, _ *Policy) (bool, string) {
	f := r.Framing
	return f.FacePresent && f.Partial && !f.BodyTurned, MessagePartialFrame
}

type offTaskCondition struct{}

func (offTaskCondition) Kind() models.AlertKind { return models.AlertOffTask }

func (offTaskCondition) Check(r *models.ClassificationResult, _ *Policy) (bool, string) {
	return r.Framing.BodyTurned, MessageOffTask
}
