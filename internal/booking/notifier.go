package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event describes a committed slot transition, with enough identity for the
// notification collaborator to resolve contact details on its side.
type Event struct {
	SlotDayID  uuid.UUID
	SlotID     uuid.UUID
	AgendaID   uuid.UUID
	TimeLabel  string
	Day        time.Time
	PatientID  uuid.UUID
	OccurredAt time.Time
	Reason     string
}

// Notifier is the fire-and-forget dispatch hook invoked after a transition
// commits. Implementations must not block the booking path for long and
// their errors are logged, never propagated; the committed state stands.
type Notifier interface {
	SlotBooked(ctx context.Context, ev Event) error
	SlotCancelled(ctx context.Context, ev Event) error
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) SlotBooked(context.Context, Event) error    { return nil }
func (NopNotifier) SlotCancelled(context.Context, Event) error { return nil }
