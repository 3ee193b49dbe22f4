package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"taxassist/backend/pkg/models"
)

func setupPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test-db"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %s", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)

	require.NoError(t, EnsureSchema(ctx, pool))
	return pool
}

func TestPostgresProgressStore(t *testing.T) {
	ctx := context.Background()
	pool := setupPool(t)
	store := NewPostgresProgressStore(pool, zerolog.Nop())

	t.Run("missing user yields ErrNotFound", func(t *testing.T) {
		_, err := store.Get(ctx, "nobody")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("save and reload round-trips", func(t *testing.T) {
		p := models.NewProgress("user-1")
		p.CurrentQuestionIndex = 2
		p.MarkCompleted(0)
		p.RecordAnswer(0, models.AnswerRecord{
			Question:      "What is your full legal name?",
			AIResponse:    "I have Alex Test on file. Is that correct?",
			HumanResponse: "yes",
			WantsUpdate:   false,
			Timestamp:     time.Now().UTC(),
		})
		p.Corrections[1] = 2
		p.LastAIResponse = "Next question"

		require.NoError(t, store.Save(ctx, p))

		got, err := store.Get(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, 2, got.CurrentQuestionIndex)
		assert.Equal(t, []int{0}, got.CompletedQuestions)
		assert.Equal(t, "yes", got.Answers[0].HumanResponse)
		assert.Equal(t, 2, got.Corrections[1])
		assert.Equal(t, "Next question", got.LastAIResponse)
	})

	t.Run("save is last-write-wins", func(t *testing.T) {
		p := models.NewProgress("user-2")
		p.CurrentQuestionIndex = 1
		require.NoError(t, store.Save(ctx, p))
		p.CurrentQuestionIndex = 3
		require.NoError(t, store.Save(ctx, p))

		got, err := store.Get(ctx, "user-2")
		require.NoError(t, err)
		assert.Equal(t, 3, got.CurrentQuestionIndex)
	})
}

func TestPostgresCatalogStore(t *testing.T) {
	ctx := context.Background()
	pool := setupPool(t)
	store := NewPostgresCatalogStore(pool, zerolog.Nop())

	t.Run("first write wins", func(t *testing.T) {
		first := &models.Catalog{
			UserID:      "user-1",
			Questions:   []string{"Q0", "Q1", "Q2"},
			Total:       3,
			GeneratedAt: time.Now().UTC(),
		}
		require.NoError(t, store.Save(ctx, first))

		second := &models.Catalog{
			UserID:      "user-1",
			Questions:   []string{"other"},
			Total:       1,
			GeneratedAt: time.Now().UTC(),
		}
		require.NoError(t, store.Save(ctx, second))

		got, err := store.Get(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"Q0", "Q1", "Q2"}, got.Questions)
		assert.Equal(t, 3, got.Total)
	})
}

func TestPostgresFieldStore(t *testing.T) {
	ctx := context.Background()
	pool := setupPool(t)
	store := NewPostgresFieldStore(pool, zerolog.Nop())

	var individualID int64
	err := pool.QueryRow(ctx,
		`INSERT INTO individual (first_name, last_name, itin, email) VALUES ('Alex', 'Test', '900-70-0000', 'alex@example.com') RETURNING id`,
	).Scan(&individualID)
	require.NoError(t, err)
	_, err = pool.Exec(ctx,
		`INSERT INTO internal_data (practice_id, reference, reference_id) VALUES ('TESTDEM1', 'individual', $1)`, individualID)
	require.NoError(t, err)

	t.Run("resolve client", func(t *testing.T) {
		id, err := store.ResolveClient(ctx, "TESTDEM1", models.ClientTypeIndividual)
		require.NoError(t, err)
		assert.Equal(t, individualID, id)

		_, err = store.ResolveClient(ctx, "MISSING", models.ClientTypeIndividual)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("get field group", func(t *testing.T) {
		record, err := store.GetFieldGroup(ctx, individualID, models.ClientTypeIndividual, models.FieldGroupTaxID)
		require.NoError(t, err)
		assert.Equal(t, "900-70-0000", record["itin"])
	})

	t.Run("update field group", func(t *testing.T) {
		res, err := store.UpdateFieldGroup(ctx, individualID, models.ClientTypeIndividual, models.FieldGroupIdentity,
			map[string]any{"first_name": "Alexandra"})
		require.NoError(t, err)
		assert.EqualValues(t, 1, res.RowsAffected)
		assert.Equal(t, []string{"first_name"}, res.UpdatedFields)

		record, err := store.GetFieldGroup(ctx, individualID, models.ClientTypeIndividual, models.FieldGroupIdentity)
		require.NoError(t, err)
		assert.Equal(t, "Alexandra", record["first_name"])
	})

	t.Run("update rejects columns outside the group", func(t *testing.T) {
		_, err := store.UpdateFieldGroup(ctx, individualID, models.ClientTypeIndividual, models.FieldGroupIdentity,
			map[string]any{"itin": "stolen"})
		assert.Error(t, err)
	})

	t.Run("company-only groups are rejected for companies when absent", func(t *testing.T) {
		_, err := store.GetFieldGroup(ctx, individualID, models.ClientTypeCompany, models.FieldGroupPassport)
		assert.Error(t, err)
	})
}
