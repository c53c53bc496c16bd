package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDoctorNotFound  = errors.New("doctor not found")
	ErrPatientNotFound = errors.New("patient not found")
	ErrAgendaNotFound  = errors.New("agenda not found")
	ErrSlotDayNotFound = errors.New("slot day not found")
	ErrSlotNotFound    = errors.New("slot not found")
)

// CancelParams carries everything the conditional cancel update needs.
// When OccupantOnly is set the update additionally requires the current
// occupant to be Actor.ID, so a patient can only release their own slot.
type CancelParams struct {
	Actor        Actor
	Reason       string
	OccupantOnly bool
}

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	GetAgendaByID(ctx context.Context, id uuid.UUID) (*Agenda, error)
	GetAgendaByDoctorDay(ctx context.Context, doctorID uuid.UUID, day time.Time) (*Agenda, error)
	CreateAgenda(ctx context.Context, doctorID uuid.UUID, day time.Time) (*Agenda, error)
	DeactivateAgendasBefore(ctx context.Context, day time.Time) (int64, error)

	// GetSlotDay and GetSlotDayByID hydrate the ordered slot list.
	GetSlotDay(ctx context.Context, agendaID uuid.UUID, day time.Time) (*SlotDay, error)
	GetSlotDayByID(ctx context.Context, id uuid.UUID) (*SlotDay, error)
	ListSlotDays(ctx context.Context, agendaID uuid.UUID) ([]SlotDay, error)

	// CreateSlotDay fails on (agenda, day) conflict; ReplaceSlotDay
	// overwrites the whole slot list, creating the day if needed.
	CreateSlotDay(ctx context.Context, agendaID uuid.UUID, day time.Time, seeds []SlotSeed) (*SlotDay, error)
	ReplaceSlotDay(ctx context.Context, agendaID uuid.UUID, day time.Time, seeds []SlotSeed) (*SlotDay, bool, error)
	DeleteSlotDay(ctx context.Context, agendaID uuid.UUID, day time.Time) error

	GetSlot(ctx context.Context, slotDayID uuid.UUID, ref SlotRef) (*TimeSlot, error)

	// BookSlot and CancelSlot are single conditional updates keyed on the
	// expected prior status. Zero matched rows means the transition lost;
	// both return ErrSlotNotFound in that case and the service translates.
	BookSlot(ctx context.Context, slotDayID uuid.UUID, ref SlotRef, patientID uuid.UUID, motive string, now time.Time) (*TimeSlot, error)
	CancelSlot(ctx context.Context, slotDayID uuid.UUID, ref SlotRef, p CancelParams, now time.Time) (*TimeSlot, error)

	// Projections
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, window TimeWindow, limit, offset int) ([]Appointment, error)
	ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, window TimeWindow, limit, offset int) ([]Appointment, error)
	DoctorStats(ctx context.Context, doctorID uuid.UUID) (*DoctorStats, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
