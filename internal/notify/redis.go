// Package notify holds Notifier implementations. The real dispatch work
// (resolving contacts, composing messages, delivery records) belongs to an
// external consumer; this side only publishes committed transitions.
package notify

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sanordv/rdv-scheduling/internal/booking"
)

const DefaultStream = "notifications:booking"

// RedisPublisher appends booking events to a Redis stream consumed by the
// notification service. Publish failures are the caller's to log; the
// booking transaction is already committed and is never rolled back.
type RedisPublisher struct {
	client *redis.Client
	stream string
}

func NewRedisPublisher(client *redis.Client, stream string) *RedisPublisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisPublisher{client: client, stream: stream}
}

func (p *RedisPublisher) SlotBooked(ctx context.Context, ev booking.Event) error {
	return p.publish(ctx, "slot_booked", ev)
}

func (p *RedisPublisher) SlotCancelled(ctx context.Context, ev booking.Event) error {
	return p.publish(ctx, "slot_cancelled", ev)
}

func (p *RedisPublisher) publish(ctx context.Context, kind string, ev booking.Event) error {
	values := map[string]any{
		"kind":        kind,
		"slot_day_id": ev.SlotDayID.String(),
		"slot_id":     ev.SlotID.String(),
		"agenda_id":   ev.AgendaID.String(),
		"patient_id":  ev.PatientID.String(),
		"day":         ev.Day.Format("2006-01-02"),
		"time":        ev.TimeLabel,
		"occurred_at": ev.OccurredAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if ev.Reason != "" {
		values["reason"] = ev.Reason
	}

	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: values,
	}).Err()
}

// LogNotifier is the redis-less fallback for dev setups: it just logs the
// event instead of publishing it.
type LogNotifier struct {
	Log zerolog.Logger
}

func (n LogNotifier) SlotBooked(_ context.Context, ev booking.Event) error {
	n.Log.Info().
		Stringer("slot_id", ev.SlotID).
		Stringer("patient_id", ev.PatientID).
		Str("time", ev.TimeLabel).
		Msg("slot booked")
	return nil
}

func (n LogNotifier) SlotCancelled(_ context.Context, ev booking.Event) error {
	n.Log.Info().
		Stringer("slot_id", ev.SlotID).
		Str("time", ev.TimeLabel).
		Str("reason", ev.Reason).
		Msg("slot cancelled")
	return nil
}
