package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"taxassist/backend/pkg/models"
)

// PostgresCatalogStore is a PostgreSQL implementation of CatalogStore.
type PostgresCatalogStore struct {
	db     *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresCatalogStore creates a new PostgresCatalogStore.
func NewPostgresCatalogStore(db *pgxpool.Pool, logger zerolog.Logger) *PostgresCatalogStore {
	return &PostgresCatalogStore{db: db, logger: logger.With().Str("store", "catalog").Logger()}
}

// Get retrieves a user's catalog. Returns ErrNotFound when absent.
func (s *PostgresCatalogStore) Get(ctx context.Context, userID string) (*models.Catalog, error) {
	var (
		c             models.Catalog
		questionsJSON []byte
	)
	err := s.db.QueryRow(ctx,
		`SELECT user_id, questions, total, generated_at FROM question_catalogs WHERE user_id = $1`, userID,
	).Scan(&c.UserID, &questionsJSON, &c.Total, &c.GeneratedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get catalog: %w", err)
	}
	if err := json.Unmarshal(questionsJSON, &c.Questions); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	return &c, nil
}

// Save stores a freshly generated catalog. A catalog is written once per
// user; a concurrent duplicate write keeps the first copy.
func (s *PostgresCatalogStore) Save(ctx context.Context, catalog *models.Catalog) error {
	questionsJSON, err := json.Marshal(catalog.Questions)
	if err != nil {
		return fmt.Errorf("encode questions: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO question_catalogs (user_id, questions, total, generated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id) DO NOTHING`,
		catalog.UserID, questionsJSON, catalog.Total, catalog.GeneratedAt,
	)
	if err != nil {
		return fmt.Errorf("save catalog: %w", err)
	}
	s.logger.Debug().Str("user_id", catalog.UserID).Int("total", catalog.Total).Msg("catalog saved")
	return nil
}
