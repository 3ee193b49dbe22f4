package main

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"taxassist/backend/internal/config"
	"taxassist/backend/internal/logging"
	"taxassist/backend/internal/repository"
)

// Seeds a demo individual client so the workflow can be exercised end to end
// against a fresh database.
func main() {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := logging.NewLogger(cfg.Environment)

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pool.Close()

	if err := repository.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}
	logger.Info().Msg("schema applied")

	const practiceID = "TESTDEM1"
	var existing int64
	err = pool.QueryRow(ctx,
		`SELECT reference_id FROM internal_data WHERE practice_id = $1 AND reference = 'individual'`,
		practiceID,
	).Scan(&existing)
	if err == nil {
		logger.Info().Str("practice_id", practiceID).Int64("internal_id", existing).Msg("demo client already seeded")
		return
	}
	if err != pgx.ErrNoRows {
		log.Fatalf("Failed to check for existing client: %v", err)
	}

	var individualID int64
	err = pool.QueryRow(ctx, `
		INSERT INTO individual (
			first_name, middle_name, last_name, birth_date,
			address1, city, state, zip, country, phone, email,
			occupation, source_of_us_income,
			passport_number, passport_country, passport_expiry,
			visa_type, visa_issue_country,
			first_entry_date_us, days_in_us_current_year,
			w2_wages_amount, federal_withholding_w2, has_w2
		) VALUES (
			'Demo', 'T', 'Filer', '04/12/1996',
			'120 W 42nd St', 'New York', 'NY', '10036', 'USA', '+1-212-555-0142', 'demo.filer@example.com',
			'Graduate Research Assistant', 'University stipend',
			'Z9876543', 'India', '09/30/2029',
			'F-1', 'India',
			'08/15/2023', 212,
			18500.00, 1420.00, TRUE
		) RETURNING id`,
	).Scan(&individualID)
	if err != nil {
		log.Fatalf("Failed to seed individual: %v", err)
	}

	if _, err := pool.Exec(ctx,
		`INSERT INTO internal_data (practice_id, reference, reference_id) VALUES ($1, 'individual', $2)`,
		practiceID, individualID,
	); err != nil {
		log.Fatalf("Failed to seed internal data: %v", err)
	}

	// A dependent sub-client linked to the main demo client.
	var subID int64
	err = pool.QueryRow(ctx,
		`INSERT INTO individual (first_name, last_name, email) VALUES ('Dependent', 'Filer', 'dep.filer@example.com') RETURNING id`,
	).Scan(&subID)
	if err != nil {
		log.Fatalf("Failed to seed sub-client: %v", err)
	}
	if _, err := pool.Exec(ctx,
		`INSERT INTO internal_data (practice_id, reference, reference_id) VALUES ('TESTDEP1', 'individual', $1)`,
		subID,
	); err != nil {
		log.Fatalf("Failed to seed sub-client internal data: %v", err)
	}
	if _, err := pool.Exec(ctx,
		`INSERT INTO client_association_details (main_practice_id, associated_practice_id, association_type, status)
		 VALUES ($1, 'TESTDEP1', 'Sub Client', 1)`,
		practiceID,
	); err != nil {
		log.Fatalf("Failed to seed association: %v", err)
	}

	logger.Info().Str("practice_id", practiceID).Int64("internal_id", individualID).Msg("seeding complete")
}
