package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/sanordv/rdv-scheduling/internal/redis"
	"github.com/sanordv/rdv-scheduling/internal/schedule"
)

const (
	EventSlotBooked    = "SLOT_BOOKED"
	EventSlotCancelled = "SLOT_CANCELLED"
	EventDayGenerated  = "DAY_GENERATED"
)

var (
	ErrSlotUnavailable = errors.New("slot is not available for booking")
	ErrNotReserved     = errors.New("slot is not reserved")
	ErrUnauthorized    = errors.New("actor is not allowed to cancel this slot")
	ErrDayBusy         = errors.New("slot day is being generated, please retry")
)

type Service struct {
	repo     Repository
	locker   redisclient.Locker
	notifier Notifier
	log      zerolog.Logger
}

func NewService(repo Repository, locker redisclient.Locker, notifier Notifier, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		locker:   locker,
		notifier: notifier,
		log:      log,
	}
}

// AgendaDetail is an agenda hydrated with its slot days.
type AgendaDetail struct {
	Agenda
	SlotDays []SlotDay
}

// GetOrCreateAgenda guarantees a single agenda per (doctor, day) and
// returns it. Repeated calls return the existing agenda unchanged; no
// slots are generated here.
func (s *Service) GetOrCreateAgenda(ctx context.Context, doctorID uuid.UUID, day time.Time) (*Agenda, error) {
	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	agenda, err := s.repo.GetAgendaByDoctorDay(ctx, doctorID, day)
	if err == nil {
		return agenda, nil
	}
	if !errors.Is(err, ErrAgendaNotFound) {
		return nil, fmt.Errorf("load agenda: %w", err)
	}

	agenda, err = s.repo.CreateAgenda(ctx, doctorID, day)
	if err != nil {
		return nil, fmt.Errorf("create agenda: %w", err)
	}
	return agenda, nil
}

func (s *Service) GetAgenda(ctx context.Context, agendaID uuid.UUID) (*AgendaDetail, error) {
	agenda, err := s.repo.GetAgendaByID(ctx, agendaID)
	if err != nil {
		if errors.Is(err, ErrAgendaNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load agenda: %w", err)
	}

	days, err := s.repo.ListSlotDays(ctx, agendaID)
	if err != nil {
		return nil, fmt.Errorf("list slot days: %w", err)
	}

	return &AgendaDetail{Agenda: *agenda, SlotDays: days}, nil
}

// GenerateAndStore materializes the slot layout for (agenda, day),
// overwriting any existing layout. Existing reservations on that day are
// discarded, which is the intended re-templating workflow; callers that
// must not clobber bookings use RetrieveOrCreate instead. The generation
// upsert is read-then-write, so it runs under a per-day lock.
func (s *Service) GenerateAndStore(ctx context.Context, agendaID uuid.UUID, day time.Time, blocked []string) (*SlotDay, bool, error) {
	if _, err := s.repo.GetAgendaByID(ctx, agendaID); err != nil {
		if errors.Is(err, ErrAgendaNotFound) {
			return nil, false, err
		}
		return nil, false, fmt.Errorf("load agenda: %w", err)
	}

	seeds := seedsFromLayout(schedule.DaySlots(blocked))

	var (
		slotDay *SlotDay
		created bool
	)
	err := s.locker.WithDayLock(ctx, agendaID, day, func(lockCtx context.Context) error {
		sd, wasCreated, err := s.repo.ReplaceSlotDay(lockCtx, agendaID, day, seeds)
		if err != nil {
			return fmt.Errorf("replace slot day: %w", err)
		}
		slotDay = sd
		created = wasCreated
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, false, ErrDayBusy
		}
		return nil, false, err
	}

	s.logEvent(ctx, EventDayGenerated, &slotDay.ID, nil, map[string]any{
		"agenda_id": agendaID.String(),
		"day":       day.Format("2006-01-02"),
		"blocked":   blocked,
		"overwrite": !created,
	})

	return slotDay, created, nil
}

// RetrieveOrCreate returns the existing slot day or synthesizes one with
// the default working hours. It never touches slots that already exist.
func (s *Service) RetrieveOrCreate(ctx context.Context, agendaID uuid.UUID, day time.Time) (*SlotDay, error) {
	sd, err := s.repo.GetSlotDay(ctx, agendaID, day)
	if err == nil {
		return sd, nil
	}
	if !errors.Is(err, ErrSlotDayNotFound) {
		return nil, fmt.Errorf("load slot day: %w", err)
	}

	if _, err := s.repo.GetAgendaByID(ctx, agendaID); err != nil {
		if errors.Is(err, ErrAgendaNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load agenda: %w", err)
	}

	seeds := seedsFromLayout(schedule.DaySlots(nil))

	err = s.locker.WithDayLock(ctx, agendaID, day, func(lockCtx context.Context) error {
		created, err := s.repo.CreateSlotDay(lockCtx, agendaID, day, seeds)
		if err != nil {
			return fmt.Errorf("create slot day: %w", err)
		}
		sd = created
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrDayBusy
		}
		return nil, err
	}

	return sd, nil
}

func (s *Service) GetSlotDayByDate(ctx context.Context, agendaID uuid.UUID, day time.Time) (*SlotDay, error) {
	sd, err := s.repo.GetSlotDay(ctx, agendaID, day)
	if err != nil {
		if errors.Is(err, ErrSlotDayNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load slot day: %w", err)
	}
	return sd, nil
}

// FilterSlots returns the slot day with only the slots matching status,
// in their original order.
func (s *Service) FilterSlots(ctx context.Context, agendaID uuid.UUID, day time.Time, status SlotStatus) (*SlotDay, error) {
	sd, err := s.GetSlotDayByDate(ctx, agendaID, day)
	if err != nil {
		return nil, err
	}

	filtered := make([]TimeSlot, 0, len(sd.Slots))
	for _, slot := range sd.Slots {
		if slot.Status == status {
			filtered = append(filtered, slot)
		}
	}
	sd.Slots = filtered
	return sd, nil
}

func (s *Service) DeleteSlotDay(ctx context.Context, agendaID uuid.UUID, day time.Time) error {
	if err := s.repo.DeleteSlotDay(ctx, agendaID, day); err != nil {
		if errors.Is(err, ErrSlotDayNotFound) {
			return err
		}
		return fmt.Errorf("delete slot day: %w", err)
	}
	return nil
}

// Book transitions a slot from available to reserved for patientID. The
// transition is one conditional update keyed on the current status; when
// it matches nothing the slot is taken, blocked, or absent, and the caller
// gets ErrSlotUnavailable. Concurrent bookers cannot both win.
func (s *Service) Book(ctx context.Context, slotDayID uuid.UUID, ref SlotRef, patientID uuid.UUID, motive string) (*TimeSlot, error) {
	if ref.IsZero() {
		return nil, ErrSlotNotFound
	}

	if _, err := s.repo.GetPatientByID(ctx, patientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	now := time.Now().UTC()
	slot, err := s.repo.BookSlot(ctx, slotDayID, ref, patientID, motive, now)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, ErrSlotUnavailable
		}
		return nil, fmt.Errorf("book slot: %w", err)
	}

	s.logEvent(ctx, EventSlotBooked, &slot.SlotDayID, &slot.ID, map[string]any{
		"patient_id": patientID.String(),
		"time":       slot.TimeLabel,
	})
	s.dispatch(ctx, s.notifier.SlotBooked, slot, patientID, "")

	return slot, nil
}

// Cancel transitions a slot from reserved back to available. The actor
// must be the occupant, the doctor owning the agenda, or an admin. The
// commit point is again a single conditional update keyed on 'reserved'.
func (s *Service) Cancel(ctx context.Context, slotDayID uuid.UUID, ref SlotRef, actor Actor, reason string) (*TimeSlot, error) {
	if ref.IsZero() {
		return nil, ErrSlotNotFound
	}

	slot, err := s.repo.GetSlot(ctx, slotDayID, ref)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load slot: %w", err)
	}
	if slot.Status != SlotReserved {
		return nil, ErrNotReserved
	}

	occupant := slot.PatientID
	params := CancelParams{Actor: actor, Reason: reason}

	switch actor.Type {
	case ActorPatient:
		if occupant == nil || *occupant != actor.ID {
			return nil, ErrUnauthorized
		}
		params.OccupantOnly = true
	case ActorDoctor:
		sd, err := s.repo.GetSlotDayByID(ctx, slotDayID)
		if err != nil {
			return nil, fmt.Errorf("load slot day: %w", err)
		}
		agenda, err := s.repo.GetAgendaByID(ctx, sd.AgendaID)
		if err != nil {
			return nil, fmt.Errorf("load agenda: %w", err)
		}
		if agenda.DoctorID != actor.ID {
			return nil, ErrUnauthorized
		}
	case ActorAdmin:
		// administrative override
	default:
		return nil, ErrUnauthorized
	}

	now := time.Now().UTC()
	cancelled, err := s.repo.CancelSlot(ctx, slotDayID, ref, params, now)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			// Lost the race: the slot left 'reserved' between the read and
			// the conditional update.
			return nil, ErrNotReserved
		}
		return nil, fmt.Errorf("cancel slot: %w", err)
	}

	var patientID uuid.UUID
	if occupant != nil {
		patientID = *occupant
	}

	s.logEvent(ctx, EventSlotCancelled, &cancelled.SlotDayID, &cancelled.ID, map[string]any{
		"actor_id":   actor.ID.String(),
		"actor_type": string(actor.Type),
		"reason":     reason,
		"time":       cancelled.TimeLabel,
	})
	s.dispatch(ctx, s.notifier.SlotCancelled, cancelled, patientID, reason)

	return cancelled, nil
}

func (s *Service) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, window TimeWindow, limit, offset int) ([]Appointment, error) {
	if _, err := s.repo.GetPatientByID(ctx, patientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	limit, offset = clampPage(limit, offset)
	result, err := s.repo.ListAppointmentsByPatient(ctx, patientID, window, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return result, nil
}

func (s *Service) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, window TimeWindow, limit, offset int) ([]Appointment, error) {
	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	limit, offset = clampPage(limit, offset)
	result, err := s.repo.ListAppointmentsByDoctor(ctx, doctorID, window, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by doctor: %w", err)
	}
	return result, nil
}

func (s *Service) DoctorStats(ctx context.Context, doctorID uuid.UUID) (*DoctorStats, error) {
	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	stats, err := s.repo.DoctorStats(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("doctor stats: %w", err)
	}
	return stats, nil
}

// DeactivatePastAgendas is called by the worker periodically.
func (s *Service) DeactivatePastAgendas(ctx context.Context) (int64, error) {
	y, m, d := time.Now().UTC().Date()
	cutoff := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	n, err := s.repo.DeactivateAgendasBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deactivate past agendas: %w", err)
	}
	if n > 0 {
		s.log.Info().Int64("count", n).Msg("deactivated past agendas")
	}
	return n, nil
}

// dispatch invokes the notification hook after a committed transition.
// Hook failures are logged and never surfaced; the committed state stands.
func (s *Service) dispatch(ctx context.Context, fn func(context.Context, Event) error, slot *TimeSlot, patientID uuid.UUID, reason string) {
	sd, err := s.repo.GetSlotDayByID(ctx, slot.SlotDayID)
	agendaID := uuid.Nil
	day := time.Time{}
	if err != nil {
		s.log.Warn().Err(err).Stringer("slot_id", slot.ID).Msg("notification dispatch: slot day lookup failed")
	} else {
		agendaID = sd.AgendaID
		day = sd.Day
	}

	ev := Event{
		SlotDayID:  slot.SlotDayID,
		SlotID:     slot.ID,
		AgendaID:   agendaID,
		TimeLabel:  slot.TimeLabel,
		Day:        day,
		PatientID:  patientID,
		OccurredAt: time.Now().UTC(),
		Reason:     reason,
	}

	if err := fn(ctx, ev); err != nil {
		s.log.Error().Err(err).
			Stringer("slot_id", slot.ID).
			Str("time", slot.TimeLabel).
			Msg("notification dispatch failed")
	}
}

func (s *Service) logEvent(ctx context.Context, eventType string, slotDayID, slotID *uuid.UUID, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event", eventType).Msg("marshal event payload")
		data = nil
	}

	ev := EventLog{
		EventType: eventType,
		SlotDayID: slotDayID,
		SlotID:    slotID,
		Payload:   data,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).Str("event", eventType).Msg("insert event log")
	}
}

func seedsFromLayout(slots []schedule.Slot) []SlotSeed {
	seeds := make([]SlotSeed, 0, len(slots))
	for _, sl := range slots {
		status := SlotAvailable
		if sl.Blocked {
			status = SlotUnavailable
		}
		seeds = append(seeds, SlotSeed{Label: sl.Label, Status: status})
	}
	return seeds
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
