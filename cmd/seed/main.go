package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebook/scheduling/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	if err := ensureSchema(context.Background(), pool); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}

	doctors, err := seedDoctors(context.Background(), pool, 100)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	institutes, err := seedInstitutes(context.Background(), pool, 20)
	if err != nil {
		log.Fatalf("seed institutes: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 9000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedSchedules(context.Background(), pool, doctors, institutes); err != nil {
		log.Fatalf("seed schedules: %v", err)
	}

	log.Println("seed complete")
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS patients (
		id         UUID PRIMARY KEY,
		name       TEXT NOT NULL,
		email      TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS doctors (
		id         UUID PRIMARY KEY,
		name       TEXT NOT NULL,
		specialty  TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS institutes (
		id         UUID PRIMARY KEY,
		name       TEXT NOT NULL,
		city       TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS appointments (
		id                UUID PRIMARY KEY,
		patient_id        UUID NOT NULL,
		doctor_id         UUID,
		institute_id      UUID,
		service_id        UUID NOT NULL,
		start_time        TIMESTAMPTZ NOT NULL,
		end_time          TIMESTAMPTZ NOT NULL,
		status            TEXT NOT NULL,
		payment_method    TEXT NOT NULL DEFAULT '',
		amount            BIGINT NOT NULL DEFAULT 0,
		deposit_amount    BIGINT NOT NULL DEFAULT 0,
		balance_amount    BIGINT NOT NULL DEFAULT 0,
		deposit_paid      BOOLEAN NOT NULL DEFAULT FALSE,
		deposit_ref       TEXT NOT NULL DEFAULT '',
		balance_paid      BOOLEAN NOT NULL DEFAULT FALSE,
		balance_ref       TEXT NOT NULL DEFAULT '',
		patient_present   BOOLEAN NOT NULL DEFAULT FALSE,
		doctor_present    BOOLEAN NOT NULL DEFAULT FALSE,
		institute_present BOOLEAN NOT NULL DEFAULT FALSE,
		reject_reason     TEXT NOT NULL DEFAULT '',
		rating            INT,
		review            TEXT NOT NULL DEFAULT '',
		channel_id        TEXT NOT NULL DEFAULT '',
		created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
		CHECK (num_nonnulls(doctor_id, institute_id) = 1)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_appointments_doctor_window
		ON appointments (doctor_id, start_time) WHERE doctor_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_appointments_institute_window
		ON appointments (institute_id, start_time) WHERE institute_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_appointments_patient_window
		ON appointments (patient_id, start_time)`,
	`CREATE INDEX IF NOT EXISTS idx_appointments_status_start
		ON appointments (status, start_time)`,
	`CREATE TABLE IF NOT EXISTS availability_templates (
		provider_kind TEXT NOT NULL,
		provider_id   UUID NOT NULL,
		weekdays      INT NOT NULL,
		start_minute  INT NOT NULL,
		end_minute    INT NOT NULL,
		active        BOOLEAN NOT NULL DEFAULT TRUE,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (provider_kind, provider_id)
	)`,
	`CREATE TABLE IF NOT EXISTS service_prices (
		provider_kind TEXT NOT NULL,
		provider_id   UUID NOT NULL,
		service_id    UUID NOT NULL,
		amount        BIGINT NOT NULL,
		PRIMARY KEY (provider_kind, provider_id, service_id)
	)`,
	`CREATE TABLE IF NOT EXISTS event_logs (
		id             BIGSERIAL PRIMARY KEY,
		event_type     TEXT NOT NULL,
		appointment_id UUID,
		payload        JSONB,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

func ensureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	log.Println("schema ensured")
	return nil
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d doctors", count)

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

	log.Println("doctors seeded")
	return ids, nil
}

func seedInstitutes(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d institutes", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()

		_, err := tx.Exec(ctx, `
			INSERT INTO institutes (id, name, city, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, gofakeit.Company()+" Clinic", gofakeit.City())
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("institutes seeded")
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

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
			id := uuid.New()
			name := gofakeit.Name()
			email := gofakeit.Email()

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, name, email)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return nil
}

// seedSchedules gives every provider a weekday template and a price for one
// shared consultation service.
func seedSchedules(ctx context.Context, pool *pgxpool.Pool, doctors, institutes []uuid.UUID) error {
	log.Printf("seeding schedules for %d doctors and %d institutes", len(doctors), len(institutes))

	// Mon-Fri bitmask, bit 0 = Sunday.
	const weekdayMask = 0b0111110
	serviceID := uuid.New()
	log.Printf("consultation service id: %s", serviceID)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	insert := func(kind string, ids []uuid.UUID, startMin, endMin int) error {
		for _, id := range ids {
			_, err := tx.Exec(ctx, `
				INSERT INTO availability_templates
					(provider_kind, provider_id, weekdays, start_minute, end_minute, active, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, TRUE, now(), now())
				ON CONFLICT (provider_kind, provider_id) DO NOTHING
			`, kind, id, weekdayMask, startMin, endMin)
			if err != nil {
				return err
			}

			// Prices in minor units: 500.00 to 3000.00.
			amount := int64(gofakeit.Number(500, 3000)) * 100
			_, err = tx.Exec(ctx, `
				INSERT INTO service_prices (provider_kind, provider_id, service_id, amount)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (provider_kind, provider_id, service_id) DO NOTHING
			`, kind, id, serviceID, amount)
			if err != nil {
				return err
			}
		}
		return nil
	}

	if err := insert("doctor", doctors, 9*60, 17*60); err != nil {
		return err
	}
	// Institutes run longer days.
	if err := insert("institute", institutes, 8*60, 20*60); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("schedules seeded")
	return nil
}
