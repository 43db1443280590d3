package evaluator

import (
	"fmt"
	"testing"
	"time"

	"github.com/EricW9888/ScreenGuardian/internal/config"
	"github.com/EricW9888/ScreenGuardian/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testPolicy() Policy {
	on := func(dwell, cooldown time.Duration) KindPolicy {
		return KindPolicy{Enabled: true, Dwell: dwell, Cooldown: cooldown}
	}
	return Policy{
		Kinds: map[models.AlertKind]KindPolicy{
			models.AlertPosture:      on(6*time.Second, time.Minute),
			models.AlertDistance:     on(6*time.Second, time.Minute),
			models.AlertNailBiting:   on(5*time.Second, time.Minute),
			models.AlertFaceTouch:    on(3*time.Second, time.Minute),
			models.AlertPartialFrame: on(6*time.Second, 5*time.Minute),
			models.AlertOffTask:      on(6*time.Second, 5*time.Minute),
		},
		MinDistanceCM: 50.8,
		TwentyTwenty:  TwentyTwentyPolicy{Enabled: true, Interval: 20 * time.Minute},
	}
}

func newTestEngine(p Policy) *Engine {
	e := NewEngine(p, t0, zap.NewNop())
	n := 0
	e.builder.newID = func() string {
		n++
		return fmt.Sprintf("evt-%d", n)
	}
	return e
}

func goodResult() models.ClassificationResult {
	d := 65.0
	return models.ClassificationResult{
		Calibrated: true,
		Posture:    models.PostureGood,
		DistanceCM: &d,
		Behavior:   models.BehaviorFlags{FaceTouchKnown: true, NailBitingKnown: true},
		Framing:    models.Framing{FacePresent: true},
	}
}

func slouching() models.ClassificationResult {
	r := goodResult()
	r.Posture = models.PostureSlouching
	r.PostureReasons = []string{"head dropped"}
	return r
}

func kinds(events []models.AlertEvent) []models.AlertKind {
	var out []models.AlertKind
	for _, e := range events {
		out = append(out, e.Kind)
	}
	return out
}

func TestEngine_PostureFiresAfterDwell(t *testing.T) {
	e := newTestEngine(testPolicy())

	for s := 0; s < 6; s++ {
		assert.Empty(t, e.Evaluate(slouching(), at(time.Duration(s)*time.Second)))
	}
	events := e.Evaluate(slouching(), at(6*time.Second))
	require.Len(t, events, 1)
	assert.Equal(t, models.AlertPosture, events[0].Kind)
	assert.Equal(t, "Bad Posture - head dropped", events[0].Message)
	assert.Equal(t, "evt-1", events[0].ID)
	assert.Equal(t, at(6*time.Second), events[0].Timestamp)
	assert.Equal(t, []models.AlertKind{models.AlertPosture}, e.ActiveKinds())
}

func TestEngine_DistanceThreshold(t *testing.T) {
	e := newTestEngine(testPolicy())

	near := goodResult()
	d := 40.0
	near.DistanceCM = &d

	e.Evaluate(near, at(0))
	events := e.Evaluate(near, at(6*time.Second))
	assert.Equal(t, []models.AlertKind{models.AlertDistance}, kinds(events))
	assert.Equal(t, MessageTooClose, events[0].Message)
}

func TestEngine_UnknownDistanceResetsPending(t *testing.T) {
	e := newTestEngine(testPolicy())

	near := goodResult()
	d := 40.0
	near.DistanceCM = &d
	unknown := goodResult()
	unknown.DistanceCM = nil

	e.Evaluate(near, at(0))
	e.Evaluate(unknown, at(3*time.Second))
	assert.Empty(t, e.Evaluate(near, at(6*time.Second)))
	assert.Equal(t, StatePending, e.Snapshot(at(6*time.Second)).Machines[models.AlertDistance].State)
}

func TestEngine_UnknownPostureDoesNotAlert(t *testing.T) {
	e := newTestEngine(testPolicy())

	r := goodResult()
	r.Posture = models.PostureUnknown
	for s := 0; s <= 30; s++ {
		assert.Empty(t, e.Evaluate(r, at(time.Duration(s)*time.Second)))
	}
}

func TestEngine_KindsAreIndependent(t *testing.T) {
	e := newTestEngine(testPolicy())

	both := slouching()
	d := 30.0
	both.DistanceCM = &d

	e.Evaluate(both, at(0))
	// posture clears, distance keeps dwelling
	e.Evaluate(goodResultWithDistance(30), at(3*time.Second))
	events := e.Evaluate(goodResultWithDistance(30), at(6*time.Second))
	assert.Equal(t, []models.AlertKind{models.AlertDistance}, kinds(events))
}

func goodResultWithDistance(cm float64) models.ClassificationResult {
	r := goodResult()
	r.DistanceCM = &cm
	return r
}

func TestEngine_DisabledKindNeverFires(t *testing.T) {
	p := testPolicy()
	kp := p.Kinds[models.AlertPosture]
	kp.Enabled = false
	p.Kinds[models.AlertPosture] = kp
	e := newTestEngine(p)

	for s := 0; s <= 20; s++ {
		assert.Empty(t, e.Evaluate(slouching(), at(time.Duration(s)*time.Second)))
	}
}

func TestEngine_BehaviorAndFraming(t *testing.T) {
	e := newTestEngine(testPolicy())

	r := goodResult()
	r.Behavior.FaceTouch = true
	r.Behavior.NailBiting = true
	r.Framing.Partial = true

	e.Evaluate(r, at(0))
	assert.Equal(t, []models.AlertKind{models.AlertFaceTouch}, kinds(e.Evaluate(r, at(3*time.Second))))
	assert.Equal(t, []models.AlertKind{models.AlertNailBiting}, kinds(e.Evaluate(r, at(5*time.Second))))
	assert.Equal(t, []models.AlertKind{models.AlertPartialFrame}, kinds(e.Evaluate(r, at(6*time.Second))))

	turned := goodResult()
	turned.Framing.BodyTurned = true
	turned.Framing.Partial = true
	e2 := newTestEngine(testPolicy())
	e2.Evaluate(turned, at(0))
	assert.Equal(t, []models.AlertKind{models.AlertOffTask}, kinds(e2.Evaluate(turned, at(6*time.Second))))
}

func TestEngine_UnknownBehaviorIgnored(t *testing.T) {
	e := newTestEngine(testPolicy())

	r := goodResult()
	r.Behavior = models.BehaviorFlags{FaceTouch: true, NailBiting: true}
	e.Evaluate(r, at(0))
	assert.Empty(t, e.Evaluate(r, at(10*time.Second)))
}

func TestEngine_TwentyTwentyIgnoresClassifiers(t *testing.T) {
	e := newTestEngine(testPolicy())

	assert.Empty(t, e.Tick(at(19*time.Minute)))
	events := e.Tick(at(20 * time.Minute))
	require.Len(t, events, 1)
	assert.Equal(t, models.AlertTwentyTwenty, events[0].Kind)
	assert.Equal(t, MessageTwentyTwenty, events[0].Message)

	// also fires from Evaluate, even with an unknown classification
	r := models.ClassificationResult{Posture: models.PostureUnknown}
	assert.Equal(t, []models.AlertKind{models.AlertTwentyTwenty}, kinds(e.Evaluate(r, at(40*time.Minute))))
	assert.EqualValues(t, 2, e.Counts()[models.AlertTwentyTwenty])
}

func TestEngine_AcknowledgeRestartsInterval(t *testing.T) {
	e := newTestEngine(testPolicy())

	e.AcknowledgeTwentyTwenty(at(15 * time.Minute))
	assert.Empty(t, e.Tick(at(20*time.Minute)))
	assert.Equal(t, 10*time.Minute, e.TwentyTwentyRemaining(at(25*time.Minute)))
	assert.Len(t, e.Tick(at(35*time.Minute)), 1)
}

func TestEngine_TickDoesNotFireConditions(t *testing.T) {
	e := newTestEngine(testPolicy())

	e.Evaluate(slouching(), at(0))
	assert.Empty(t, e.Tick(at(10*time.Second)))
	assert.Len(t, e.Evaluate(slouching(), at(11*time.Second)), 1)
}

func TestEngine_ApplyDisablesAndKeepsState(t *testing.T) {
	e := newTestEngine(testPolicy())
	both := slouching()
	d := 30.0
	both.DistanceCM = &d
	e.Evaluate(both, at(0))

	p := testPolicy()
	kp := p.Kinds[models.AlertPosture]
	kp.Enabled = false
	p.Kinds[models.AlertPosture] = kp
	e.Apply(p, at(2*time.Second))

	snap := e.Snapshot(at(2 * time.Second))
	assert.Equal(t, StateInactive, snap.Machines[models.AlertPosture].State)
	assert.Equal(t, StatePending, snap.Machines[models.AlertDistance].State)
}

func TestEngine_SnapshotRestore(t *testing.T) {
	e := newTestEngine(testPolicy())
	e.Evaluate(slouching(), at(0))
	e.Evaluate(slouching(), at(6*time.Second))

	snap := e.Snapshot(at(7 * time.Second))

	restored := newTestEngine(testPolicy())
	restored.Restore(snap, at(8*time.Second))
	assert.Equal(t, []models.AlertKind{models.AlertPosture}, restored.ActiveKinds())
	assert.EqualValues(t, 1, restored.Counts()[models.AlertPosture])

	// the restored cooldown still suppresses
	assert.Empty(t, restored.Evaluate(slouching(), at(30*time.Second)))
}

func TestEngine_RestoreAfterRestartNeedsFreshDwell(t *testing.T) {
	e := newTestEngine(testPolicy())
	e.Evaluate(slouching(), at(0))
	snap := e.Snapshot(at(5 * time.Minute))

	restart := at(time.Hour)
	restored := newTestEngine(testPolicy())
	restored.Restore(snap, restart)

	assert.Empty(t, restored.Evaluate(slouching(), restart))
	assert.Empty(t, restored.Evaluate(slouching(), restart.Add(5*time.Second)))
	assert.Equal(t, []models.AlertKind{models.AlertPosture}, kinds(restored.Evaluate(slouching(), restart.Add(6*time.Second))))

	// five minutes of the interval were used before the restart, the hour offline is not counted
	assert.Equal(t, 15*time.Minute, restored.TwentyTwentyRemaining(restart))
}

func TestEngine_Reset(t *testing.T) {
	e := newTestEngine(testPolicy())
	e.Evaluate(slouching(), at(0))
	e.Evaluate(slouching(), at(6*time.Second))

	e.Reset(at(8 * time.Second))
	assert.Empty(t, e.ActiveKinds())
	assert.Zero(t, e.Counts()[models.AlertPosture])
}

func TestPolicyFromConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Alerts.MinDistanceCM = 45
	cfg.Alerts.Posture = config.AlertTiming{Enabled: true, Dwell: 4 * time.Second, Cooldown: time.Minute}
	cfg.Alerts.TwentyTwenty.Enabled = true
	cfg.Alerts.TwentyTwenty.Interval = 10 * time.Minute

	p := PolicyFromConfig(cfg)
	assert.Equal(t, 45.0, p.MinDistanceCM)
	assert.Equal(t, KindPolicy{Enabled: true, Dwell: 4 * time.Second, Cooldown: time.Minute}, p.Kinds[models.AlertPosture])
	assert.False(t, p.Kinds[models.AlertNailBiting].Enabled)
	assert.Equal(t, TwentyTwentyPolicy{Enabled: true, Interval: 10 * time.Minute}, p.TwentyTwenty)
}
