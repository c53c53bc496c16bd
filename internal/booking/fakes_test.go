package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memRepo is an in-memory Repository whose Book/Cancel mutate under a
// mutex keyed on the expected prior status, mirroring the conditional
// update the SQL implementation relies on.
type memRepo struct {
	mu       sync.Mutex
	doctors  map[uuid.UUID]Doctor
	patients map[uuid.UUID]Patient
	agendas  map[uuid.UUID]*Agenda
	slotDays map[uuid.UUID]*SlotDay
	events   []EventLog
}

func newMemRepo() *memRepo {
	return &memRepo{
		doctors:  make(map[uuid.UUID]Doctor),
		patients: make(map[uuid.UUID]Patient),
		agendas:  make(map[uuid.UUID]*Agenda),
		slotDays: make(map[uuid.UUID]*SlotDay),
	}
}

func (r *memRepo) addDoctor() uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.New()
	r.doctors[id] = Doctor{ID: id, Name: "Dr " + id.String()[:8]}
	return id
}

func (r *memRepo) addPatient() uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.New()
	r.patients[id] = Patient{ID: id, Name: "Patient " + id.String()[:8]}
	return id
}

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func (r *memRepo) findSlot(sd *SlotDay, ref SlotRef) *TimeSlot {
	for i := range sd.Slots {
		s := &sd.Slots[i]
		if ref.ID != nil && s.ID == *ref.ID {
			return s
		}
		if ref.ID == nil && s.TimeLabel == ref.Label {
			return s
		}
	}
	return nil
}

func copySlot(s *TimeSlot) *TimeSlot {
	c := *s
	return &c
}

func (r *memRepo) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (r *memRepo) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (r *memRepo) GetAgendaByID(_ context.Context, id uuid.UUID) (*Agenda, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agendas[id]
	if !ok {
		return nil, ErrAgendaNotFound
	}
	c := *a
	return &c, nil
}

func (r *memRepo) GetAgendaByDoctorDay(_ context.Context, doctorID uuid.UUID, d time.Time) (*Agenda, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.agendas {
		if a.DoctorID == doctorID && a.Day.Equal(d) {
			c := *a
			return &c, nil
		}
	}
	return nil, ErrAgendaNotFound
}

func (r *memRepo) CreateAgenda(_ context.Context, doctorID uuid.UUID, d time.Time) (*Agenda, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.agendas {
		if a.DoctorID == doctorID && a.Day.Equal(d) {
			c := *a
			return &c, nil
		}
	}
	a := &Agenda{
		ID:       uuid.New(),
		DoctorID: doctorID,
		Day:      d,
		Status:   AgendaActive,
	}
	r.agendas[a.ID] = a
	c := *a
	return &c, nil
}

func (r *memRepo) DeactivateAgendasBefore(_ context.Context, d time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, a := range r.agendas {
		if a.Day.Before(d) && a.Status == AgendaActive {
			a.Status = AgendaInactive
			n++
		}
	}
	return n, nil
}

func (r *memRepo) GetSlotDay(_ context.Context, agendaID uuid.UUID, d time.Time) (*SlotDay, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sd := range r.slotDays {
		if sd.AgendaID == agendaID && sd.Day.Equal(d) {
			return copySlotDay(sd), nil
		}
	}
	return nil, ErrSlotDayNotFound
}

func (r *memRepo) GetSlotDayByID(_ context.Context, id uuid.UUID) (*SlotDay, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sd, ok := r.slotDays[id]
	if !ok {
		return nil, ErrSlotDayNotFound
	}
	return copySlotDay(sd), nil
}

func (r *memRepo) ListSlotDays(_ context.Context, agendaID uuid.UUID) ([]SlotDay, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []SlotDay
	for _, sd := range r.slotDays {
		if sd.AgendaID == agendaID {
			out = append(out, *copySlotDay(sd))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

func copySlotDay(sd *SlotDay) *SlotDay {
	c := *sd
	c.Slots = make([]TimeSlot, len(sd.Slots))
	copy(c.Slots, sd.Slots)
	return &c
}

func (r *memRepo) CreateSlotDay(_ context.Context, agendaID uuid.UUID, d time.Time, seeds []SlotSeed) (*SlotDay, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sd := range r.slotDays {
		if sd.AgendaID == agendaID && sd.Day.Equal(d) {
			return copySlotDay(sd), nil
		}
	}
	sd := r.newSlotDayLocked(agendaID, d, seeds)
	return copySlotDay(sd), nil
}

func (r *memRepo) ReplaceSlotDay(_ context.Context, agendaID uuid.UUID, d time.Time, seeds []SlotSeed) (*SlotDay, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sd := range r.slotDays {
		if sd.AgendaID == agendaID && sd.Day.Equal(d) {
			sd.Slots = slotsFromSeeds(sd.ID, seeds)
			return copySlotDay(sd), false, nil
		}
	}
	sd := r.newSlotDayLocked(agendaID, d, seeds)
	return copySlotDay(sd), true, nil
}

func (r *memRepo) newSlotDayLocked(agendaID uuid.UUID, d time.Time, seeds []SlotSeed) *SlotDay {
	sd := &SlotDay{
		ID:       uuid.New(),
		AgendaID: agendaID,
		Day:      d,
	}
	sd.Slots = slotsFromSeeds(sd.ID, seeds)
	r.slotDays[sd.ID] = sd
	return sd
}

func slotsFromSeeds(slotDayID uuid.UUID, seeds []SlotSeed) []TimeSlot {
	slots := make([]TimeSlot, 0, len(seeds))
	for _, seed := range seeds {
		slots = append(slots, TimeSlot{
			ID:        uuid.New(),
			SlotDayID: slotDayID,
			TimeLabel: seed.Label,
			Status:    seed.Status,
		})
	}
	return slots
}

func (r *memRepo) DeleteSlotDay(_ context.Context, agendaID uuid.UUID, d time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, sd := range r.slotDays {
		if sd.AgendaID == agendaID && sd.Day.Equal(d) {
			delete(r.slotDays, id)
			return nil
		}
	}
	return ErrSlotDayNotFound
}

func (r *memRepo) GetSlot(_ context.Context, slotDayID uuid.UUID, ref SlotRef) (*TimeSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sd, ok := r.slotDays[slotDayID]
	if !ok {
		return nil, ErrSlotNotFound
	}
	s := r.findSlot(sd, ref)
	if s == nil {
		return nil, ErrSlotNotFound
	}
	return copySlot(s), nil
}

func (r *memRepo) BookSlot(_ context.Context, slotDayID uuid.UUID, ref SlotRef, patientID uuid.UUID, motive string, now time.Time) (*TimeSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sd, ok := r.slotDays[slotDayID]
	if !ok {
		return nil, ErrSlotNotFound
	}
	s := r.findSlot(sd, ref)
	if s == nil || s.Status != SlotAvailable {
		return nil, ErrSlotNotFound
	}

	s.Status = SlotReserved
	pid := patientID
	s.PatientID = &pid
	if motive != "" {
		m := motive
		s.Motive = &m
	} else {
		s.Motive = nil
	}
	t := now
	s.ReservedAt = &t
	s.CancelledAt = nil
	s.CancelReason = nil
	s.CancelledBy = nil
	s.CancelledByType = nil

	return copySlot(s), nil
}

func (r *memRepo) CancelSlot(_ context.Context, slotDayID uuid.UUID, ref SlotRef, p CancelParams, now time.Time) (*TimeSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sd, ok := r.slotDays[slotDayID]
	if !ok {
		return nil, ErrSlotNotFound
	}
	s := r.findSlot(sd, ref)
	if s == nil || s.Status != SlotReserved {
		return nil, ErrSlotNotFound
	}
	if p.OccupantOnly && (s.PatientID == nil || *s.PatientID != p.Actor.ID) {
		return nil, ErrSlotNotFound
	}

	s.Status = SlotAvailable
	s.PatientID = nil
	s.Motive = nil
	s.ReservedAt = nil
	t := now
	s.CancelledAt = &t
	if p.Reason != "" {
		reason := p.Reason
		s.CancelReason = &reason
	}
	actorID := p.Actor.ID
	actorType := p.Actor.Type
	s.CancelledBy = &actorID
	s.CancelledByType = &actorType

	return copySlot(s), nil
}

func (r *memRepo) ListAppointmentsByPatient(_ context.Context, patientID uuid.UUID, window TimeWindow, limit, offset int) ([]Appointment, error) {
	return r.listAppointments(func(a *Agenda, s *TimeSlot) bool {
		return s.PatientID != nil && *s.PatientID == patientID
	}, limit, offset)
}

func (r *memRepo) ListAppointmentsByDoctor(_ context.Context, doctorID uuid.UUID, window TimeWindow, limit, offset int) ([]Appointment, error) {
	return r.listAppointments(func(a *Agenda, s *TimeSlot) bool {
		return a.DoctorID == doctorID
	}, limit, offset)
}

func (r *memRepo) listAppointments(match func(*Agenda, *TimeSlot) bool, limit, offset int) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Appointment
	for _, sd := range r.slotDays {
		agenda := r.agendas[sd.AgendaID]
		if agenda == nil {
			continue
		}
		for i := range sd.Slots {
			s := &sd.Slots[i]
			if s.Status != SlotReserved || !match(agenda, s) {
				continue
			}
			out = append(out, Appointment{
				SlotID:     s.ID,
				SlotDayID:  sd.ID,
				AgendaID:   agenda.ID,
				DoctorID:   agenda.DoctorID,
				PatientID:  *s.PatientID,
				Day:        sd.Day,
				TimeLabel:  s.TimeLabel,
				Motive:     s.Motive,
				ReservedAt: s.ReservedAt,
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Day.Equal(out[j].Day) {
			return out[i].Day.After(out[j].Day)
		}
		return out[i].TimeLabel > out[j].TimeLabel
	})

	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) DoctorStats(_ context.Context, doctorID uuid.UUID) (*DoctorStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stats DoctorStats
	for _, sd := range r.slotDays {
		agenda := r.agendas[sd.AgendaID]
		if agenda == nil || agenda.DoctorID != doctorID {
			continue
		}
		for i := range sd.Slots {
			s := &sd.Slots[i]
			if s.Status == SlotReserved {
				stats.Reserved++
			}
			if s.Status == SlotAvailable && s.CancelledAt != nil {
				stats.Cancelled++
			}
		}
	}
	stats.Total = stats.Reserved + stats.Cancelled
	return &stats, nil
}

func (r *memRepo) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// nopLocker runs the critical section directly; the memRepo mutex already
// serializes everything.
type nopLocker struct{}

func (nopLocker) WithDayLock(ctx context.Context, _ uuid.UUID, _ time.Time, fn func(context.Context) error) error {
	return fn(ctx)
}

// recordingNotifier captures dispatched events; Fail makes every call
// return an error to exercise the fire-and-forget contract.
type recordingNotifier struct {
	mu        sync.Mutex
	booked    []Event
	cancelled []Event
	Fail      error
}

func (n *recordingNotifier) SlotBooked(_ context.Context, ev Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.booked = append(n.booked, ev)
	return n.Fail
}

func (n *recordingNotifier) SlotCancelled(_ context.Context, ev Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelled = append(n.cancelled, ev)
	return n.Fail
}

func (n *recordingNotifier) counts() (int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.booked), len(n.cancelled)
}
