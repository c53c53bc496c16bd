package main

import (
	"context"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/sanordv/rdv-scheduling/internal/booking"
	"github.com/sanordv/rdv-scheduling/internal/db"
	"github.com/sanordv/rdv-scheduling/internal/schedule"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Str("app", "seed").Logger()
	log.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	doctorIDs, err := seedDoctors(context.Background(), pool, 50, log)
	if err != nil {
		log.Fatal().Err(err).Msg("seed doctors")
	}
	if err := seedPatients(context.Background(), pool, 2000, log); err != nil {
		log.Fatal().Err(err).Msg("seed patients")
	}
	if err := seedAgendas(context.Background(), pool, doctorIDs, 7, log); err != nil {
		log.Fatal().Err(err).Msg("seed agendas")
	}

	log.Info().Msg("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int, log zerolog.Logger) ([]uuid.UUID, error) {
	log.Info().Int("count", count).Msg("seeding doctors")

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, spec)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Info().Msg("doctors seeded")
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int, log zerolog.Logger) error {
	log.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, uuid.New(), gofakeit.Name(), gofakeit.Email())
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Info().Int("done", end).Int("total", count).Msg("patients seeded")
	}

	return nil
}

// seedAgendas opens an agenda with a default slot layout for each doctor
// for the next `days` days. A couple of random labels are blocked per day
// to make the data look lived-in.
func seedAgendas(ctx context.Context, pool *pgxpool.Pool, doctorIDs []uuid.UUID, days int, log zerolog.Logger) error {
	log.Info().Int("doctors", len(doctorIDs)).Int("days", days).Msg("seeding agendas")

	repo := booking.NewPgRepository(pool)
	today := time.Now().UTC().Truncate(24 * time.Hour)

	layout := schedule.DaySlots(nil)
	labels := make([]string, len(layout))
	for i, s := range layout {
		labels[i] = s.Label
	}

	for _, doctorID := range doctorIDs {
		for d := 0; d < days; d++ {
			day := today.AddDate(0, 0, d)

			agenda, err := repo.CreateAgenda(ctx, doctorID, day)
			if err != nil {
				return err
			}

			blocked := []string{
				labels[gofakeit.Number(0, len(labels)-1)],
				labels[gofakeit.Number(0, len(labels)-1)],
			}

			seeds := make([]booking.SlotSeed, 0, len(layout))
			for _, s := range schedule.DaySlots(blocked) {
				status := booking.SlotAvailable
				if s.Blocked {
					status = booking.SlotUnavailable
				}
				seeds = append(seeds, booking.SlotSeed{Label: s.Label, Status: status})
			}

			if _, err := repo.CreateSlotDay(ctx, agenda.ID, day, seeds); err != nil {
				return err
			}
		}
	}

	log.Info().Msg("agendas seeded")
	return nil
}
