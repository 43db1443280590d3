// Package evaluator turns per-frame classifications into debounced alert events.
package evaluator

import (
	"sync"
	"time"

	"github.com/EricW9888/ScreenGuardian/internal/config"
	"github.com/EricW9888/ScreenGuardian/internal/models"

	"go.uber.org/zap"
)

// KindPolicy is the debounce policy of one alert kind.
type KindPolicy struct {
	Enabled  bool
	Dwell    time.Duration
	Cooldown time.Duration
}

// TwentyTwentyPolicy configures the eye-break reminder.
type TwentyTwentyPolicy struct {
	Enabled  bool
	Interval time.Duration
}

// Policy configures the engine. Kinds missing from the map are disabled.
type Policy struct {
	Kinds         map[models.AlertKind]KindPolicy
	MinDistanceCM float64
	TwentyTwenty  TwentyTwentyPolicy
}

// PolicyFromConfig builds a Policy from the alert section of the configuration.
func PolicyFromConfig(cfg *config.Config) Policy {
	a := cfg.Alerts
	kp := func(t config.AlertTiming) KindPolicy {
		return KindPolicy{Enabled: t.Enabled, Dwell: t.Dwell, Cooldown: t.Cooldown}
	}
	return Policy{
		Kinds: map[models.AlertKind]KindPolicy{
			models.AlertPosture:      kp(a.Posture),
			models.AlertDistance:     kp(a.Distance),
			models.AlertNailBiting:   kp(a.NailBiting),
			models.AlertFaceTouch:    kp(a.FaceTouch),
			models.AlertPartialFrame: kp(a.PartialFrame),
			models.AlertOffTask:      kp(a.OffTask),
		},
		MinDistanceCM: a.MinDistanceCM,
		TwentyTwenty: TwentyTwentyPolicy{
			Enabled:  a.TwentyTwenty.Enabled,
			Interval: a.TwentyTwenty.Interval,
		},
	}
}

// Snapshot is the full engine state, used for presentation and for persistence
// across restarts.
type Snapshot struct {
	Machines        map[models.AlertKind]MachineSnapshot `json:"machines"`
	TwentyLastReset time.Time                            `json:"twenty_last_reset"`
	TwentyFired     int64                                `json:"twenty_fired"`
	TakenAt         time.Time                            `json:"taken_at"`
}

// Engine owns one Machine per alert kind plus the 20-20-20 timer. It is used by the
// producer loop; the mutex only guards snapshot readers.
type Engine struct {
	mu          sync.Mutex
	policy      Policy
	conditions  []condition
	machines    map[models.AlertKind]*Machine
	twenty      *IntervalTimer
	twentyFired int64
	builder     *AlertEventBuilder
	logger      *zap.Logger
}

// NewEngine creates an engine whose 20-20-20 interval starts at now.
func NewEngine(policy Policy, now time.Time, logger *zap.Logger) *Engine {
	e := &Engine{
		conditions: []condition{
			postureCondition{},
			distanceCondition{},
			nailBitingCondition{},
			faceTouchCondition{},
			partialFrameCondition{},
			offTaskCondition{},
		},
		machines: make(map[models.AlertKind]*Machine),
		twenty:   NewIntervalTimer(policy.TwentyTwenty.Interval, now),
		builder:  NewAlertEventBuilder(),
		logger:   logger,
	}
	for _, c := range e.conditions {
		kp := policy.Kinds[c.Kind()]
		e.machines[c.Kind()] = NewMachine(kp.Dwell, kp.Cooldown)
	}
	e.policy = policy
	return e
}

// Apply swaps in a new policy. Machine state survives; disabling a kind resets it.
func (e *Engine) Apply(policy Policy, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for kind, m := range e.machines {
		kp := policy.Kinds[kind]
		m.SetTiming(kp.Dwell, kp.Cooldown)
		if !kp.Enabled {
			m.Reset(now)
		}
	}
	e.twenty.SetInterval(policy.TwentyTwenty.Interval)
	if policy.TwentyTwenty.Enabled && !e.policy.TwentyTwenty.Enabled {
		e.twenty.Reset(now)
	}
	e.policy = policy
}

// Evaluate feeds a freshly computed classification to every enabled machine and
// returns the alerts that fired. Unknown sub-results count as "condition not met".
func (e *Engine) Evaluate(result models.ClassificationResult, now time.Time) []models.AlertEvent {
	e.mu.Lock()
	defer e.mu.Unlock()

	var events []models.AlertEvent
	for _, c := range e.conditions {
		kind := c.Kind()
		if !e.policy.Kinds[kind].Enabled {
			continue
		}
		cond, message := c.Check(&result, &e.policy)
		if e.machines[kind].Observe(cond, now) {
			events = append(events, e.builder.Build(kind, message, now))
			e.logger.Info("Alert fired",
				zap.String("kind", string(kind)),
				zap.String("message", message),
			)
		}
	}
	return append(events, e.tickTwenty(now)...)
}

// Tick advances wall-clock timers without evaluating any condition. It is called on
// frames whose classification was held over, and may only emit the 20-20-20 reminder.
func (e *Engine) Tick(now time.Time) []models.AlertEvent {
	e.mu.Lock()
	defer e.mu.Unlock()

	for kind, m := range e.machines {
		if e.policy.Kinds[kind].Enabled {
			m.Advance(now)
		}
	}
	return e.tickTwenty(now)
}

// AcknowledgeTwentyTwenty restarts the 20-20-20 interval.
func (e *Engine) AcknowledgeTwentyTwenty(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.twenty.Reset(now)
}

// TwentyTwentyRemaining returns the time until the next reminder.
func (e *Engine) TwentyTwentyRemaining(now time.Time) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.twenty.Remaining(now)
}

// ActiveKinds lists the kinds currently in the Active state, in display order.
func (e *Engine) ActiveKinds() []models.AlertKind {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []models.AlertKind
	for _, kind := range models.AllAlertKinds {
		if m, ok := e.machines[kind]; ok && m.State() == StateActive {
			out = append(out, kind)
		}
	}
	return out
}

// Counts returns how many times each kind fired since the engine started.
func (e *Engine) Counts() map[models.AlertKind]int64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[models.AlertKind]int64, len(e.machines)+1)
	for kind, m := range e.machines {
		out[kind] = m.fired
	}
	out[models.AlertTwentyTwenty] = e.twentyFired
	return out
}

// Snapshot captures every machine and the 20-20-20 timer.
func (e *Engine) Snapshot(now time.Time) Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Snapshot{
		Machines:        make(map[models.AlertKind]MachineSnapshot, len(e.machines)),
		TwentyLastReset: e.twenty.LastReset(),
		TwentyFired:     e.twentyFired,
		TakenAt:         now,
	}
	for kind, m := range e.machines {
		s.Machines[kind] = m.Snapshot()
	}
	return s
}

// Restore loads a snapshot taken by an earlier process, restarting at now.
// The 20-20-20 interval resumes with the progress it had at TakenAt; time the
// process was down does not count.
func (e *Engine) Restore(s Snapshot, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for kind, ms := range s.Machines {
		if m, ok := e.machines[kind]; ok {
			m.Restore(ms, now)
		}
	}
	if !s.TwentyLastReset.IsZero() && !s.TakenAt.IsZero() {
		elapsed := s.TakenAt.Sub(s.TwentyLastReset)
		if elapsed < 0 {
			elapsed = 0
		}
		e.twenty.Reset(now.Add(-elapsed))
	}
	e.twentyFired = s.TwentyFired
}

// Reset clears every machine and counter, e.g. after a panic erase.
func (e *Engine) Reset(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for kind := range e.machines {
		kp := e.policy.Kinds[kind]
		e.machines[kind] = NewMachine(kp.Dwell, kp.Cooldown)
	}
	e.twenty.Reset(now)
	e.twentyFired = 0
}

func (e *Engine) tickTwenty(now time.Time) []models.AlertEvent {
	if !e.policy.TwentyTwenty.Enabled || !e.twenty.Tick(now) {
		return nil
	}
	e.twentyFired++
	e.logger.Info("20-20-20 reminder fired")
	return []models.AlertEvent{e.builder.Build(models.AlertTwentyTwenty, MessageTwentyTwenty, now)}
}
