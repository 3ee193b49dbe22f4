package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the DDL for every table this service touches. The individual and
// company tables are wide on purpose: the field-group registry projects
// narrow named slices out of them and nothing else ever joins them.
const Schema = `
CREATE TABLE IF NOT EXISTS internal_data (
	id SERIAL PRIMARY KEY,
	practice_id TEXT NOT NULL,
	reference TEXT NOT NULL,
	reference_id BIGINT NOT NULL,
	UNIQUE (practice_id, reference)
);

CREATE TABLE IF NOT EXISTS individual (
	id BIGSERIAL PRIMARY KEY,
	first_name TEXT, middle_name TEXT, last_name TEXT,
	birth_date TEXT, filing_status TEXT,
	address1 TEXT, address2 TEXT, city TEXT, state TEXT, zip TEXT, country TEXT,
	phone TEXT, email TEXT,
	occupation TEXT, source_of_us_income TEXT,
	itin TEXT,
	passport_number TEXT, passport_country TEXT, passport_expiry TEXT,
	visa_type TEXT, visa_issue_country TEXT,
	first_entry_date_us TEXT, last_exit_date_us TEXT,
	days_in_us_current_year INT, days_in_us_prev_year INT, days_in_us_prev2_years INT,
	treaty_claimed BOOLEAN, treaty_country TEXT, treaty_article TEXT,
	treaty_income_type TEXT, treaty_exempt_amount NUMERIC, resident_of_treaty_country BOOLEAN,
	w2_wages_amount NUMERIC, scholarship_1042s_amount NUMERIC, interest_amount NUMERIC,
	dividend_amount NUMERIC, capital_gains_amount NUMERIC, rental_income_amount NUMERIC,
	self_employment_eci_amount NUMERIC,
	federal_withholding_w2 NUMERIC, federal_withholding_1042s NUMERIC, tax_withheld_1099 NUMERIC,
	has_w2 BOOLEAN, has_1042s BOOLEAN, has_1099 BOOLEAN, has_k1 BOOLEAN,
	itemized_state_local_tax NUMERIC, itemized_charity NUMERIC, itemized_casualty_losses NUMERIC,
	education_expenses NUMERIC, student_loan_interest NUMERIC,
	dependents_count INT,
	refund_method TEXT, bank_routing TEXT, bank_account_last4 TEXT
);

CREATE TABLE IF NOT EXISTS company (
	company_id BIGSERIAL PRIMARY KEY,
	company_name TEXT,
	address1 TEXT, address2 TEXT, city TEXT, state TEXT, zip TEXT, country TEXT,
	phone TEXT, email TEXT
);

CREATE TABLE IF NOT EXISTS client_association_details (
	id SERIAL PRIMARY KEY,
	main_practice_id TEXT NOT NULL,
	associated_practice_id TEXT NOT NULL,
	association_type TEXT NOT NULL,
	status INT NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS question_catalogs (
	user_id TEXT PRIMARY KEY,
	questions JSONB NOT NULL,
	total INT NOT NULL,
	generated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS workflow_progress (
	user_id TEXT PRIMARY KEY,
	current_question_index INT NOT NULL DEFAULT 0,
	completed_questions INT[] NOT NULL DEFAULT '{}',
	answers JSONB NOT NULL DEFAULT '{}',
	corrections JSONB NOT NULL DEFAULT '{}',
	last_ai_response TEXT NOT NULL DEFAULT '',
	last_updated TIMESTAMPTZ NOT NULL
);
`

// EnsureSchema applies the DDL. Safe to run repeatedly.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	_, err := db.Exec(ctx, Schema)
	return err
}
