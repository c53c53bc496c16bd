package booking

import (
	"time"

	"github.com/google/uuid"
)

type SlotStatus string

const (
	SlotAvailable   SlotStatus = "available"
	SlotReserved    SlotStatus = "reserved"
	SlotUnavailable SlotStatus = "unavailable"
)

// ParseSlotStatus validates a status string coming from the outside.
func ParseSlotStatus(s string) (SlotStatus, bool) {
	switch SlotStatus(s) {
	case SlotAvailable, SlotReserved, SlotUnavailable:
		return SlotStatus(s), true
	}
	return "", false
}

type AgendaStatus string

const (
	AgendaActive   AgendaStatus = "active"
	AgendaInactive AgendaStatus = "inactive"
)

// ActorType identifies who is asking for a cancellation.
type ActorType string

const (
	ActorPatient ActorType = "patient"
	ActorDoctor  ActorType = "doctor"
	ActorAdmin   ActorType = "admin"
)

func ParseActorType(s string) (ActorType, bool) {
	switch ActorType(s) {
	case ActorPatient, ActorDoctor, ActorAdmin:
		return ActorType(s), true
	}
	return "", false
}

type Doctor struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Agenda is one doctor's scheduling container for a single day.
// At most one agenda exists per (doctor, day).
type Agenda struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	Day       time.Time
	Status    AgendaStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SlotDay holds the bookable slots of one agenda day. At most one exists
// per (agenda, day); its slots are ordered by time label.
type SlotDay struct {
	ID        uuid.UUID
	AgendaID  uuid.UUID
	Day       time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
	Slots     []TimeSlot
}

// TimeSlot is one bookable 30-minute unit. PatientID is set exactly when
// the slot is reserved; cancellation metadata survives until the next
// booking overwrites it.
type TimeSlot struct {
	ID              uuid.UUID
	SlotDayID       uuid.UUID
	TimeLabel       string
	Status          SlotStatus
	PatientID       *uuid.UUID
	Motive          *string
	ReservedAt      *time.Time
	CancelledAt     *time.Time
	CancelReason    *string
	CancelledBy     *uuid.UUID
	CancelledByType *ActorType
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SlotSeed is the layout produced by the generator, before persistence.
type SlotSeed struct {
	Label  string
	Status SlotStatus
}

// SlotRef addresses one slot inside a slot day, either by its sub-document
// id or by its time label.
type SlotRef struct {
	ID    *uuid.UUID
	Label string
}

func RefByID(id uuid.UUID) SlotRef { return SlotRef{ID: &id} }

func RefByLabel(label string) SlotRef { return SlotRef{Label: label} }

func (r SlotRef) IsZero() bool { return r.ID == nil && r.Label == "" }

// Actor is the party requesting a cancellation.
type Actor struct {
	ID   uuid.UUID
	Type ActorType
}

// Appointment is a read-time projection over reserved slots. It is never
// written; the slot row is the single source of truth.
type Appointment struct {
	SlotID     uuid.UUID
	SlotDayID  uuid.UUID
	AgendaID   uuid.UUID
	DoctorID   uuid.UUID
	PatientID  uuid.UUID
	Day        time.Time
	TimeLabel  string
	Motive     *string
	ReservedAt *time.Time
}

// TimeWindow restricts appointment projections relative to today.
type TimeWindow string

const (
	WindowAll      TimeWindow = "all"
	WindowPast     TimeWindow = "past"
	WindowUpcoming TimeWindow = "upcoming"
)

func ParseTimeWindow(s string) (TimeWindow, bool) {
	switch s {
	case "", string(WindowAll):
		return WindowAll, true
	case string(WindowPast):
		return WindowPast, true
	case string(WindowUpcoming):
		return WindowUpcoming, true
	}
	return "", false
}

// DoctorStats aggregates booking activity across a doctor's agendas.
type DoctorStats struct {
	Reserved  int64
	Cancelled int64
	Total     int64
}

type EventLog struct {
	ID        int64
	EventType string
	SlotDayID *uuid.UUID
	SlotID    *uuid.UUID
	Payload   []byte
	CreatedAt time.Time
}
