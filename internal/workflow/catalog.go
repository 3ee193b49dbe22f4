package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"taxassist/backend/internal/repository"
	"taxassist/backend/pkg/models"
)

// Generator produces the ordered question list for a new workflow.
type Generator interface {
	Generate(ctx context.Context) ([]string, error)
}

// CatalogService creates each user's question catalog at most once and reads
// the persisted copy thereafter. Generation runs under a bounded timeout; any
// generator failure substitutes the static fallback list.
type CatalogService struct {
	store     repository.CatalogStore
	generator Generator
	fallback  []string
	timeout   time.Duration
	logger    zerolog.Logger
}

// NewCatalogService creates a CatalogService. fallback must be non-empty; it
// is the list served when generation fails or times out.
func NewCatalogService(store repository.CatalogStore, generator Generator, fallback []string, timeout time.Duration, logger zerolog.Logger) *CatalogService {
	return &CatalogService{
		store:     store,
		generator: generator,
		fallback:  fallback,
		timeout:   timeout,
		logger:    logger.With().Str("component", "catalog").Logger(),
	}
}

// GetOrCreate returns the catalog for userID, generating and persisting it on
// first access. Question numbering is stable for the lifetime of the workflow:
// the persisted copy always wins, including under concurrent first calls.
func (s *CatalogService) GetOrCreate(ctx context.Context, userID string) (*models.Catalog, error) {
	catalog, err := s.store.Get(ctx, userID)
	if err == nil {
		return catalog, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	questions := s.generate(ctx, userID)
	catalog = &models.Catalog{
		UserID:      userID,
		Questions:   questions,
		Total:       len(questions),
		GeneratedAt: time.Now().UTC(),
	}
	if err := s.store.Save(ctx, catalog); err != nil {
		return nil, fmt.Errorf("persist catalog: %w", err)
	}

	// The store keeps the first write on conflict; read back the copy that
	// actually won so numbering stays consistent across racing callers.
	catalog, err = s.store.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return catalog, nil
}

// Peek reads the persisted catalog without generating one.
func (s *CatalogService) Peek(ctx context.Context, userID string) (*models.Catalog, error) {
	return s.store.Get(ctx, userID)
}

func (s *CatalogService) generate(ctx context.Context, userID string) []string {
	genCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	questions, err := s.generator.Generate(genCtx)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("question generation failed, using fallback catalog")
		return append([]string(nil), s.fallback...)
	}
	s.logger.Info().Str("user_id", userID).Int("count", len(questions)).Msg("question catalog generated")
	return questions
}
