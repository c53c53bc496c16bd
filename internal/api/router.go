package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sanordv/rdv-scheduling/internal/booking"
)

// BookingService is the slice of the booking service the handlers consume.
type BookingService interface {
	GetOrCreateAgenda(ctx context.Context, doctorID uuid.UUID, day time.Time) (*booking.Agenda, error)
	GetAgenda(ctx context.Context, agendaID uuid.UUID) (*booking.AgendaDetail, error)

	GenerateAndStore(ctx context.Context, agendaID uuid.UUID, day time.Time, blocked []string) (*booking.SlotDay, bool, error)
	RetrieveOrCreate(ctx context.Context, agendaID uuid.UUID, day time.Time) (*booking.SlotDay, error)
	GetSlotDayByDate(ctx context.Context, agendaID uuid.UUID, day time.Time) (*booking.SlotDay, error)
	FilterSlots(ctx context.Context, agendaID uuid.UUID, day time.Time, status booking.SlotStatus) (*booking.SlotDay, error)
	DeleteSlotDay(ctx context.Context, agendaID uuid.UUID, day time.Time) error

	Book(ctx context.Context, slotDayID uuid.UUID, ref booking.SlotRef, patientID uuid.UUID, motive string) (*booking.TimeSlot, error)
	Cancel(ctx context.Context, slotDayID uuid.UUID, ref booking.SlotRef, actor booking.Actor, reason string) (*booking.TimeSlot, error)

	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, window booking.TimeWindow, limit, offset int) ([]booking.Appointment, error)
	ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, window booking.TimeWindow, limit, offset int) ([]booking.Appointment, error)
	DoctorStats(ctx context.Context, doctorID uuid.UUID) (*booking.DoctorStats, error)
}

type RouterConfig struct {
	Service BookingService
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Logger  zerolog.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Post("/agenda", createAgendaHandler(cfg.Service))
	r.Get("/agenda/{agendaID}", getAgendaHandler(cfg.Service))

	r.Route("/creneaux", func(r chi.Router) {
		r.Post("/genererEtEnregistrer", generateSlotDayHandler(cfg.Service))
		r.Post("/preparer", prepareSlotDayHandler(cfg.Service))
		r.Get("/parDate/{agendaID}/{date}", getSlotDayHandler(cfg.Service))
		r.Get("/filtrer/{agendaID}/{date}/{statut}", filterSlotsHandler(cfg.Service))
		r.Delete("/supprimer", deleteSlotDayHandler(cfg.Service))
	})

	r.Route("/rendezvous", func(r chi.Router) {
		r.Post("/", bookHandler(cfg.Service))
		r.Post("/prendre", bookHandler(cfg.Service))
		r.Post("/annuler", cancelHandler(cfg.Service))
		r.Get("/patient/{patientID}", listPatientAppointmentsHandler(cfg.Service))
		r.Get("/medecin/{doctorID}", listDoctorAppointmentsHandler(cfg.Service))
		r.Get("/medecin/{doctorID}/statistiques", doctorStatsHandler(cfg.Service))
	})

	return r
}
