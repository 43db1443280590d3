// Package publisher mirrors live status and alerts to Redis and MQTT for external
// dashboards. Publication is best effort: failures are logged and never returned
// to the producer loop.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	commonredis "github.com/EricW9888/ScreenGuardian/common/redis"
	"github.com/EricW9888/ScreenGuardian/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// MessagePublisher is the subset of the MQTT client the publisher uses.
type MessagePublisher interface {
	Publish(topic string, retained bool, payload []byte, timeout time.Duration) error
}

// Options names the keys and topics.
type Options struct {
	SnapshotKey    string
	SnapshotTTL    time.Duration
	AlertStream    string
	StreamMaxLen   int64
	MQTTTopic      string
	PublishTimeout time.Duration
}

// Publisher fans out to whichever backends are configured; nil backends are skipped.
type Publisher struct {
	redis  *redis.Client
	mqtt   MessagePublisher
	opts   Options
	logger *zap.Logger
}

// New creates a publisher. Either backend may be nil.
func New(redisClient *redis.Client, mqttClient MessagePublisher, opts Options, logger *zap.Logger) *Publisher {
	return &Publisher{
		redis:  redisClient,
		mqtt:   mqttClient,
		opts:   opts,
		logger: logger,
	}
}

// Enabled reports whether any backend is configured.
func (p *Publisher) Enabled() bool {
	return p.redis != nil || p.mqtt != nil
}

// PublishStatus overwrites the live status key.
func (p *Publisher) PublishStatus(ctx context.Context, status models.LiveStatus) {
	if p.redis == nil || p.opts.SnapshotKey == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, p.opts.PublishTimeout)
	defer cancel()

	data, err := json.Marshal(status)
	if err != nil {
		p.logger.Error("Failed to marshal live status", zap.Error(err))
		return
	}
	if err := p.redis.Set(ctx, p.opts.SnapshotKey, data, p.opts.SnapshotTTL).Err(); err != nil {
		p.logger.Warn("Failed to publish live status",
			zap.String("key", p.opts.SnapshotKey),
			zap.Error(err),
		)
	}
}

// PublishAlerts appends each event to the alert stream and the MQTT topic.
func (p *Publisher) PublishAlerts(ctx context.Context, events []models.AlertEvent) {
	for _, ev := range events {
		p.publishAlert(ctx, ev)
	}
}

func (p *Publisher) publishAlert(ctx context.Context, ev models.AlertEvent) {
	if p.redis != nil && p.opts.AlertStream != "" {
		sctx, cancel := context.WithTimeout(ctx, p.opts.PublishTimeout)
		_, err := commonredis.PublishToStream(sctx, p.redis, p.opts.AlertStream, p.opts.StreamMaxLen, map[string]interface{}{
			"id":        ev.ID,
			"kind":      string(ev.Kind),
			"message":   ev.Message,
			"timestamp": ev.Timestamp.Unix(),
		})
		cancel()
		if err != nil {
			p.logger.Warn("Failed to publish alert to stream",
				zap.String("stream", p.opts.AlertStream),
				zap.String("alert_id", ev.ID),
				zap.Error(err),
			)
		}
	}

	if p.mqtt != nil && p.opts.MQTTTopic != "" {
		payload, err := json.Marshal(ev)
		if err != nil {
			p.logger.Error("Failed to marshal alert", zap.Error(err))
			return
		}
		topic := fmt.Sprintf("%s/%s", p.opts.MQTTTopic, ev.Kind)
		if err := p.mqtt.Publish(topic, false, payload, p.opts.PublishTimeout); err != nil {
			p.logger.Warn("Failed to publish alert to MQTT",
				zap.String("topic", topic),
				zap.String("alert_id", ev.ID),
				zap.Error(err),
			)
		}
	}
}

// RecentAlerts reads back up to count alerts from the stream, oldest first.
func (p *Publisher) RecentAlerts(ctx context.Context, count int64) ([]models.AlertEvent, error) {
	if p.redis == nil || p.opts.AlertStream == "" {
		return nil, nil
	}
	msgs, err := commonredis.ReadRange(ctx, p.redis, p.opts.AlertStream, count)
	if err != nil {
		return nil, fmt.Errorf("failed to read alert stream: %w", err)
	}

	events := make([]models.AlertEvent, 0, len(msgs))
	for _, m := range msgs {
		ev := models.AlertEvent{
			ID:      str(m.Values["id"]),
			Kind:    models.AlertKind(str(m.Values["kind"])),
			Message: str(m.Values["message"]),
		}
		var unix int64
		if _, err := fmt.Sscan(str(m.Values["timestamp"]), &unix); err == nil {
			ev.Timestamp = time.Unix(unix, 0)
		}
		events = append(events, ev)
	}
	return events, nil
}

// Clear removes the live status key and the alert stream.
func (p *Publisher) Clear(ctx context.Context) error {
	if p.redis == nil {
		return nil
	}
	var keys []string
	for _, k := range []string{p.opts.SnapshotKey, p.opts.AlertStream} {
		if k != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	if err := p.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to clear published data: %w", err)
	}
	return nil
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}
