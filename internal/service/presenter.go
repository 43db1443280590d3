package service

import (
	"sync/atomic"

	"github.com/EricW9888/ScreenGuardian/internal/models"
)

// Presenter is the hand-off point between the producer loop and whatever renders
// the live view. The latest status is a single overwritten cell; alerts go through
// a bounded queue that drops the oldest entry instead of blocking the producer.
type Presenter struct {
	latest  atomic.Pointer[models.LiveStatus]
	alerts  chan models.AlertEvent
	dropped atomic.Int64
}

// NewPresenter creates a presenter whose alert queue holds up to size events.
func NewPresenter(size int) *Presenter {
	if size < 1 {
		size = 1
	}
	return &Presenter{alerts: make(chan models.AlertEvent, size)}
}

// Publish replaces the latest status.
func (p *Presenter) Publish(status models.LiveStatus) {
	status.Result = status.Result.Clone()
	status.ActiveAlerts = append([]models.AlertKind(nil), status.ActiveAlerts...)
	p.latest.Store(&status)
}

// Latest returns the most recent status, if one was published.
func (p *Presenter) Latest() (models.LiveStatus, bool) {
	s := p.latest.Load()
	if s == nil {
		return models.LiveStatus{}, false
	}
	return *s, true
}

// PushAlerts enqueues events without blocking.
func (p *Presenter) PushAlerts(events []models.AlertEvent) {
	for _, ev := range events {
		for !p.offer(ev) {
			select {
			case <-p.alerts:
				p.dropped.Add(1)
			default:
			}
		}
	}
}

func (p *Presenter) offer(ev models.AlertEvent) bool {
	select {
	case p.alerts <- ev:
		return true
	default:
		return false
	}
}

// Alerts exposes the queue for consumers that want to block on it.
func (p *Presenter) Alerts() <-chan models.AlertEvent {
	return p.alerts
}

// DrainAlerts returns every queued event in order.
func (p *Presenter) DrainAlerts() []models.AlertEvent {
	var out []models.AlertEvent
	for {
		select {
		case ev := <-p.alerts:
			out = append(out, ev)
		default:
			return out
		}
	}
}

// Dropped returns how many queued alerts were discarded because the queue was full.
func (p *Presenter) Dropped() int64 {
	return p.dropped.Load()
}
