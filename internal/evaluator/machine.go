package evaluator

import "time"

// State is a debounce state.
type State string

const (
	StateInactive State = "inactive"
	StatePending  State = "pending"
	StateActive   State = "active"
	StateCooling  State = "cooling"
)

// MachineSnapshot is the serialisable state of a Machine.
type MachineSnapshot struct {
	State     State     `json:"state"`
	Since     time.Time `json:"since"`
	FiredAt   time.Time `json:"fired_at,omitempty"`
	Condition bool      `json:"condition"`
	Fired     int64     `json:"fired"`
}

// Machine debounces one alert kind.
//
//	Inactive --cond--> Pending --cond held for dwell--> Active (emit)
//	Active --!cond--> Cooling, or Inactive once the cooldown has passed
//	Cooling --cooldown elapsed--> Inactive, or Pending if cond still holds
//	Active --cooldown elapsed, cond still holds--> Pending (re-arms the reminder)
//
// A false condition in Pending drops back to Inactive.
type Machine struct {
	dwell    time.Duration
	cooldown time.Duration

	state     State
	since     time.Time
	firedAt   time.Time
	condition bool
	fired     int64
}

// NewMachine creates an inactive machine.
func NewMachine(dwell, cooldown time.Duration) *Machine {
	return &Machine{
		dwell:    dwell,
		cooldown: cooldown,
		state:    StateInactive,
	}
}

// SetTiming changes dwell and cooldown without touching the current state.
func (m *Machine) SetTiming(dwell, cooldown time.Duration) {
	m.dwell = dwell
	m.cooldown = cooldown
}

// Observe feeds a fresh condition sample and reports whether the alert fired.
func (m *Machine) Observe(cond bool, now time.Time) bool {
	m.Advance(now)
	m.condition = cond

	switch m.state {
	case StateInactive:
		if cond {
			m.enter(StatePending, now)
			return m.promote(now)
		}
	case StatePending:
		if !cond {
			m.enter(StateInactive, now)
			return false
		}
		return m.promote(now)
	case StateActive:
		if !cond {
			if now.Sub(m.firedAt) < m.cooldown {
				m.enter(StateCooling, now)
			} else {
				m.enter(StateInactive, now)
			}
		}
	case StateCooling:
		// suppressed until the cooldown runs out
	}
	return false
}

// Advance applies time-driven transitions only. It never fires, so it is safe to
// call on frames whose classification was held over.
func (m *Machine) Advance(now time.Time) {
	if m.state != StateActive && m.state != StateCooling {
		return
	}
	if now.Sub(m.firedAt) < m.cooldown {
		return
	}
	switch {
	case m.state == StateCooling && !m.condition:
		m.enter(StateInactive, now)
	case m.condition:
		m.enter(StatePending, now)
	}
}

// Reset returns the machine to Inactive, keeping the fire count.
func (m *Machine) Reset(now time.Time) {
	m.condition = false
	m.enter(StateInactive, now)
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Snapshot captures the machine state.
func (m *Machine) Snapshot() MachineSnapshot {
	return MachineSnapshot{
		State:     m.state,
		Since:     m.since,
		FiredAt:   m.firedAt,
		Condition: m.condition,
		Fired:     m.fired,
	}
}

// Restore replaces the machine state with s at now. A pending dwell is not
// carried over: the condition has to be observed for a full dwell again.
// Active and Cooling keep their fire time so the cooldown still applies.
func (m *Machine) Restore(s MachineSnapshot, now time.Time) {
	m.firedAt = s.FiredAt
	m.condition = s.Condition
	m.fired = s.Fired

	switch s.State {
	case StateActive, StateCooling:
		m.state = s.State
		m.since = s.Since
	default:
		m.condition = false
		m.enter(StateInactive, now)
	}
}

func (m *Machine) promote(now time.Time) bool {
	if now.Sub(m.since) < m.dwell {
		return false
	}
	m.enter(StateActive, now)
	m.firedAt = now
	m.fired++
	return true
}

func (m *Machine) enter(s State, now time.Time) {
	m.state = s
	m.since = now
}
