package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"taxassist/backend/pkg/models"
)

// PostgresProgressStore is a PostgreSQL implementation of ProgressStore.
type PostgresProgressStore struct {
	db     *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresProgressStore creates a new PostgresProgressStore.
func NewPostgresProgressStore(db *pgxpool.Pool, logger zerolog.Logger) *PostgresProgressStore {
	return &PostgresProgressStore{db: db, logger: logger.With().Str("store", "progress").Logger()}
}

// Get retrieves a user's progress. Returns ErrNotFound when absent.
func (s *PostgresProgressStore) Get(ctx context.Context, userID string) (*models.Progress, error) {
	var (
		p           models.Progress
		completed   []int32
		answersJSON []byte
		corrections []byte
	)
	err := s.db.QueryRow(ctx,
		`SELECT user_id, current_question_index, completed_questions, answers, corrections, last_ai_response, last_updated
		 FROM workflow_progress WHERE user_id = $1`, userID,
	).Scan(&p.UserID, &p.CurrentQuestionIndex, &completed, &answersJSON, &corrections, &p.LastAIResponse, &p.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}

	p.CompletedQuestions = make([]int, 0, len(completed))
	for _, i := range completed {
		p.CompletedQuestions = append(p.CompletedQuestions, int(i))
	}
	if err := json.Unmarshal(answersJSON, &p.Answers); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}
	if len(corrections) > 0 {
		if err := json.Unmarshal(corrections, &p.Corrections); err != nil {
			return nil, fmt.Errorf("decode corrections: %w", err)
		}
	}
	if p.Corrections == nil {
		p.Corrections = map[int]int{}
	}
	return &p, nil
}

// Save upserts a user's progress, refreshing last_updated.
func (s *PostgresProgressStore) Save(ctx context.Context, progress *models.Progress) error {
	progress.LastUpdated = time.Now().UTC()

	answersJSON, err := json.Marshal(progress.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	correctionsJSON, err := json.Marshal(progress.Corrections)
	if err != nil {
		return fmt.Errorf("encode corrections: %w", err)
	}
	completed := make([]int32, 0, len(progress.CompletedQuestions))
	for _, i := range progress.CompletedQuestions {
		completed = append(completed, int32(i))
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO workflow_progress (user_id, current_question_index, completed_questions, answers, corrections, last_ai_response, last_updated)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (user_id) DO UPDATE SET
			current_question_index = EXCLUDED.current_question_index,
			completed_questions = EXCLUDED.completed_questions,
			answers = EXCLUDED.answers,
			corrections = EXCLUDED.corrections,
			last_ai_response = EXCLUDED.last_ai_response,
			last_updated = EXCLUDED.last_updated`,
		progress.UserID, progress.CurrentQuestionIndex, completed, answersJSON, correctionsJSON,
		progress.LastAIResponse, progress.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	s.logger.Debug().Str("user_id", progress.UserID).Int("cursor", progress.CurrentQuestionIndex).Msg("progress saved")
	return nil
}
