package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const slotColumns = `id, slot_day_id, time_label, status, patient_id, motive,
	reserved_at, cancelled_at, cancel_reason, cancelled_by, cancelled_by_type,
	created_at, updated_at`

// Helpers

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.Name, &d.Specialty, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return &d, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanAgenda(row pgx.Row) (*Agenda, error) {
	var a Agenda
	var status string
	err := row.Scan(&a.ID, &a.DoctorID, &a.Day, &status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAgendaNotFound
		}
		return nil, err
	}
	a.Status = AgendaStatus(status)
	return &a, nil
}

func scanSlot(row pgx.Row) (*TimeSlot, error) {
	var s TimeSlot
	var status string
	var cancelledByType *string

	err := row.Scan(
		&s.ID,
		&s.SlotDayID,
		&s.TimeLabel,
		&status,
		&s.PatientID,
		&s.Motive,
		&s.ReservedAt,
		&s.CancelledAt,
		&s.CancelReason,
		&s.CancelledBy,
		&cancelledByType,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	s.Status = SlotStatus(status)
	if cancelledByType != nil {
		t := ActorType(*cancelledByType)
		s.CancelledByType = &t
	}
	return &s, nil
}

// Interface methods

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetAgendaByID(ctx context.Context, id uuid.UUID) (*Agenda, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, doctor_id, day, status, created_at, updated_at
		FROM agendas
		WHERE id = $1
	`, id)
	return scanAgenda(row)
}

func (r *PgRepository) GetAgendaByDoctorDay(ctx context.Context, doctorID uuid.UUID, day time.Time) (*Agenda, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, doctor_id, day, status, created_at, updated_at
		FROM agendas
		WHERE doctor_id = $1 AND day = $2
	`, doctorID, day)
	return scanAgenda(row)
}

func (r *PgRepository) CreateAgenda(ctx context.Context, doctorID uuid.UUID, day time.Time) (*Agenda, error) {
	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO agendas (id, doctor_id, day, status, created_at, updated_at)
		VALUES ($1, $2, $3, 'active', now(), now())
		ON CONFLICT (doctor_id, day) DO NOTHING
		RETURNING id, doctor_id, day, status, created_at, updated_at
	`, id, doctorID, day)

	agenda, err := scanAgenda(row)
	if errors.Is(err, ErrAgendaNotFound) {
		// Lost a creation race; the existing row wins.
		return r.GetAgendaByDoctorDay(ctx, doctorID, day)
	}
	return agenda, err
}

func (r *PgRepository) DeactivateAgendasBefore(ctx context.Context, day time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE agendas
		SET status = 'inactive',
		    updated_at = now()
		WHERE day < $1
		  AND status = 'active'
	`, day)
	if err != nil {
		return 0, fmt.Errorf("deactivate agendas: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgRepository) GetSlotDay(ctx context.Context, agendaID uuid.UUID, day time.Time) (*SlotDay, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, agenda_id, day, created_at, updated_at
		FROM slot_days
		WHERE agenda_id = $1 AND day = $2
	`, agendaID, day)
	return r.hydrateSlotDay(ctx, row)
}

func (r *PgRepository) GetSlotDayByID(ctx context.Context, id uuid.UUID) (*SlotDay, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, agenda_id, day, created_at, updated_at
		FROM slot_days
		WHERE id = $1
	`, id)
	return r.hydrateSlotDay(ctx, row)
}

func (r *PgRepository) hydrateSlotDay(ctx context.Context, row pgx.Row) (*SlotDay, error) {
	var sd SlotDay
	err := row.Scan(&sd.ID, &sd.AgendaID, &sd.Day, &sd.CreatedAt, &sd.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotDayNotFound
		}
		return nil, err
	}

	slots, err := r.listSlots(ctx, sd.ID)
	if err != nil {
		return nil, err
	}
	sd.Slots = slots
	return &sd, nil
}

// listSlots orders by time label; zero-padded HH:MM sorts chronologically.
func (r *PgRepository) listSlots(ctx context.Context, slotDayID uuid.UUID) ([]TimeSlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM time_slots
		WHERE slot_day_id = $1
		ORDER BY time_label
	`, slotDayID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []TimeSlot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, *s)
	}
	return slots, rows.Err()
}

func (r *PgRepository) ListSlotDays(ctx context.Context, agendaID uuid.UUID) ([]SlotDay, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, agenda_id, day, created_at, updated_at
		FROM slot_days
		WHERE agenda_id = $1
		ORDER BY day
	`, agendaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []SlotDay
	for rows.Next() {
		var sd SlotDay
		if err := rows.Scan(&sd.ID, &sd.AgendaID, &sd.Day, &sd.CreatedAt, &sd.UpdatedAt); err != nil {
			return nil, err
		}
		days = append(days, sd)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range days {
		slots, err := r.listSlots(ctx, days[i].ID)
		if err != nil {
			return nil, err
		}
		days[i].Slots = slots
	}

	return days, nil
}

func (r *PgRepository) CreateSlotDay(ctx context.Context, agendaID uuid.UUID, day time.Time, seeds []SlotSeed) (*SlotDay, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	id := uuid.New()
	row := tx.QueryRow(ctx, `
		INSERT INTO slot_days (id, agenda_id, day, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (agenda_id, day) DO NOTHING
		RETURNING id
	`, id, agendaID, day)

	var insertedID uuid.UUID
	if err := row.Scan(&insertedID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Someone else materialized the day first; reuse theirs.
			return r.GetSlotDay(ctx, agendaID, day)
		}
		return nil, err
	}

	if err := insertSlots(ctx, tx, insertedID, seeds); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return r.GetSlotDayByID(ctx, insertedID)
}

func (r *PgRepository) ReplaceSlotDay(ctx context.Context, agendaID uuid.UUID, day time.Time, seeds []SlotSeed) (*SlotDay, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	var slotDayID uuid.UUID
	created := false

	err = tx.QueryRow(ctx, `
		SELECT id FROM slot_days
		WHERE agenda_id = $1 AND day = $2
		FOR UPDATE
	`, agendaID, day).Scan(&slotDayID)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		slotDayID = uuid.New()
		created = true
		_, err = tx.Exec(ctx, `
			INSERT INTO slot_days (id, agenda_id, day, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, slotDayID, agendaID, day)
		if err != nil {
			return nil, false, fmt.Errorf("insert slot day: %w", err)
		}
	case err != nil:
		return nil, false, err
	default:
		// Overwrite semantics: any prior reservations on this day are gone.
		_, err = tx.Exec(ctx, `DELETE FROM time_slots WHERE slot_day_id = $1`, slotDayID)
		if err != nil {
			return nil, false, fmt.Errorf("clear slot day: %w", err)
		}
		_, err = tx.Exec(ctx, `UPDATE slot_days SET updated_at = now() WHERE id = $1`, slotDayID)
		if err != nil {
			return nil, false, err
		}
	}

	if err := insertSlots(ctx, tx, slotDayID, seeds); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}

	sd, err := r.GetSlotDayByID(ctx, slotDayID)
	if err != nil {
		return nil, false, err
	}
	return sd, created, nil
}

func insertSlots(ctx context.Context, tx pgx.Tx, slotDayID uuid.UUID, seeds []SlotSeed) error {
	for _, seed := range seeds {
		_, err := tx.Exec(ctx, `
			INSERT INTO time_slots (id, slot_day_id, time_label, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, uuid.New(), slotDayID, seed.Label, string(seed.Status))
		if err != nil {
			return fmt.Errorf("insert slot %s: %w", seed.Label, err)
		}
	}
	return nil
}

func (r *PgRepository) DeleteSlotDay(ctx context.Context, agendaID uuid.UUID, day time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM slot_days
		WHERE agenda_id = $1 AND day = $2
	`, agendaID, day)
	if err != nil {
		return fmt.Errorf("delete slot day: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotDayNotFound
	}
	return nil
}

func (r *PgRepository) GetSlot(ctx context.Context, slotDayID uuid.UUID, ref SlotRef) (*TimeSlot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM time_slots
		WHERE slot_day_id = $1
		  AND (($2::uuid IS NOT NULL AND id = $2::uuid)
		    OR ($2::uuid IS NULL AND time_label = $3))
	`, slotDayID, ref.ID, ref.Label)
	return scanSlot(row)
}

// BookSlot is the anti-double-booking linchpin: a single conditional update
// keyed on status = 'available'. Zero matched rows means the slot is taken,
// blocked, or absent; all three surface as ErrSlotNotFound here.
func (r *PgRepository) BookSlot(ctx context.Context, slotDayID uuid.UUID, ref SlotRef, patientID uuid.UUID, motive string, now time.Time) (*TimeSlot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE time_slots
		SET status = 'reserved',
		    patient_id = $4,
		    motive = $5,
		    reserved_at = $6,
		    cancelled_at = NULL,
		    cancel_reason = NULL,
		    cancelled_by = NULL,
		    cancelled_by_type = NULL,
		    updated_at = now()
		WHERE slot_day_id = $1
		  AND (($2::uuid IS NOT NULL AND id = $2::uuid)
		    OR ($2::uuid IS NULL AND time_label = $3))
		  AND status = 'available'
		RETURNING `+slotColumns+`
	`, slotDayID, ref.ID, ref.Label, patientID, nullableString(motive), now)
	return scanSlot(row)
}

// CancelSlot mirrors BookSlot, keyed on status = 'reserved'. With
// OccupantOnly the occupant guard rides in the same update so a patient
// cannot release a slot that was rebooked by someone else in between.
func (r *PgRepository) CancelSlot(ctx context.Context, slotDayID uuid.UUID, ref SlotRef, p CancelParams, now time.Time) (*TimeSlot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE time_slots
		SET status = 'available',
		    patient_id = NULL,
		    motive = NULL,
		    reserved_at = NULL,
		    cancelled_at = $6,
		    cancel_reason = $4,
		    cancelled_by = $5,
		    cancelled_by_type = $7,
		    updated_at = now()
		WHERE slot_day_id = $1
		  AND (($2::uuid IS NOT NULL AND id = $2::uuid)
		    OR ($2::uuid IS NULL AND time_label = $3))
		  AND status = 'reserved'
		  AND (NOT $8::boolean OR patient_id = $5)
		RETURNING `+slotColumns+`
	`, slotDayID, ref.ID, ref.Label, nullableString(p.Reason), p.Actor.ID, now, string(p.Actor.Type), p.OccupantOnly)
	return scanSlot(row)
}

func appointmentWindowClause(window TimeWindow) string {
	switch window {
	case WindowPast:
		return "AND sd.day < $4"
	case WindowUpcoming:
		return "AND sd.day >= $4"
	default:
		return "AND $4::date IS NOT NULL"
	}
}

const appointmentSelect = `
	SELECT ts.id, ts.slot_day_id, sd.agenda_id, a.doctor_id, ts.patient_id,
	       sd.day, ts.time_label, ts.motive, ts.reserved_at
	FROM time_slots ts
	JOIN slot_days sd ON sd.id = ts.slot_day_id
	JOIN agendas a ON a.id = sd.agenda_id
	WHERE ts.status = 'reserved'
`

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, window TimeWindow, limit, offset int) ([]Appointment, error) {
	query := appointmentSelect + `
	  AND ts.patient_id = $1
	` + appointmentWindowClause(window) + `
	ORDER BY sd.day DESC, ts.time_label DESC
	LIMIT $2 OFFSET $3`

	return r.queryAppointments(ctx, query, patientID, limit, offset, today())
}

func (r *PgRepository) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, window TimeWindow, limit, offset int) ([]Appointment, error) {
	query := appointmentSelect + `
	  AND a.doctor_id = $1
	` + appointmentWindowClause(window) + `
	ORDER BY sd.day DESC, ts.time_label DESC
	LIMIT $2 OFFSET $3`

	return r.queryAppointments(ctx, query, doctorID, limit, offset, today())
}

func (r *PgRepository) queryAppointments(ctx context.Context, query string, args ...any) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		var ap Appointment
		err := rows.Scan(
			&ap.SlotID,
			&ap.SlotDayID,
			&ap.AgendaID,
			&ap.DoctorID,
			&ap.PatientID,
			&ap.Day,
			&ap.TimeLabel,
			&ap.Motive,
			&ap.ReservedAt,
		)
		if err != nil {
			return nil, err
		}
		result = append(result, ap)
	}
	return result, rows.Err()
}

func (r *PgRepository) DoctorStats(ctx context.Context, doctorID uuid.UUID) (*DoctorStats, error) {
	var stats DoctorStats
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE ts.status = 'reserved'),
			COUNT(*) FILTER (WHERE ts.status = 'available' AND ts.cancelled_at IS NOT NULL)
		FROM time_slots ts
		JOIN slot_days sd ON sd.id = ts.slot_day_id
		JOIN agendas a ON a.id = sd.agenda_id
		WHERE a.doctor_id = $1
	`, doctorID).Scan(&stats.Reserved, &stats.Cancelled)
	if err != nil {
		return nil, fmt.Errorf("doctor stats: %w", err)
	}
	stats.Total = stats.Reserved + stats.Cancelled
	return &stats, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, slot_day_id, slot_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.SlotDayID, ev.SlotID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func today() time.Time {
	y, m, d := time.Now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
