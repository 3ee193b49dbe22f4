package nlp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxassist/backend/internal/repository"
	"taxassist/backend/internal/session"
	"taxassist/backend/pkg/models"
)

// fakeCompletion starts a chat-completions endpoint that replies with the
// given message contents in order, then repeats the last one.
func fakeCompletion(t *testing.T, contents ...string) *openai.Client {
	t.Helper()
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1)) - 1
		if n >= len(contents) {
			n = len(contents) - 1
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": contents[n]}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	return openai.NewClientWithConfig(cfg)
}

func TestClassifier(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("on-topic confirmation", func(t *testing.T) {
		client := fakeCompletion(t, `{"is_tax_related": true, "wants_update": false}`)
		c := NewClassifier(client, "test-model", 5*time.Second, logger)

		verdict, err := c.Classify(context.Background(), "What is your ITIN?", "I have 912-34-5678 on file.", "yes that's right")
		require.NoError(t, err)
		assert.True(t, verdict.IsTaxRelated)
		assert.False(t, verdict.WantsUpdate)
	})

	t.Run("update intent", func(t *testing.T) {
		client := fakeCompletion(t, `{"is_tax_related": true, "wants_update": true}`)
		c := NewClassifier(client, "test-model", 5*time.Second, logger)

		verdict, err := c.Classify(context.Background(), "What is your address?", "123 Main St is on file.", "no, I moved to 456 Oak Ave")
		require.NoError(t, err)
		assert.True(t, verdict.IsTaxRelated)
		assert.True(t, verdict.WantsUpdate)
	})

	t.Run("off-topic forces wants_update false", func(t *testing.T) {
		client := fakeCompletion(t, `{"is_tax_related": false, "wants_update": true}`)
		c := NewClassifier(client, "test-model", 5*time.Second, logger)

		verdict, err := c.Classify(context.Background(), "What is your visa type?", "Please share your visa type.", "what's the weather like?")
		require.NoError(t, err)
		assert.False(t, verdict.IsTaxRelated)
		assert.False(t, verdict.WantsUpdate)
	})

	t.Run("malformed verdict retried then surfaced", func(t *testing.T) {
		client := fakeCompletion(t, "not json", "still not json")
		c := NewClassifier(client, "test-model", 5*time.Second, logger)

		_, err := c.Classify(context.Background(), "q", "a", "h")
		assert.Error(t, err)
	})

	t.Run("recovers on second attempt", func(t *testing.T) {
		client := fakeCompletion(t, "garbage", `{"is_tax_related": true, "wants_update": false}`)
		c := NewClassifier(client, "test-model", 5*time.Second, logger)

		verdict, err := c.Classify(context.Background(), "q", "a", "h")
		require.NoError(t, err)
		assert.True(t, verdict.IsTaxRelated)
	})
}

func TestQuestionGenerator(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("parses question list", func(t *testing.T) {
		client := fakeCompletion(t, `{"questions": ["What is your full legal name?", "What is your date of birth?"]}`)
		g := NewQuestionGenerator(client, "test-model", logger)

		questions, err := g.Generate(context.Background())
		require.NoError(t, err)
		require.Len(t, questions, 2)
		assert.Equal(t, "What is your full legal name?", questions[0])
	})

	t.Run("empty list is an error", func(t *testing.T) {
		client := fakeCompletion(t, `{"questions": []}`)
		g := NewQuestionGenerator(client, "test-model", logger)

		_, err := g.Generate(context.Background())
		assert.Error(t, err)
	})

	t.Run("malformed payload is an error", func(t *testing.T) {
		client := fakeCompletion(t, `nope`)
		g := NewQuestionGenerator(client, "test-model", logger)

		_, err := g.Generate(context.Background())
		assert.Error(t, err)
	})
}

func TestFallbackQuestions(t *testing.T) {
	questions := FallbackQuestions()
	assert.Len(t, questions, 20)
	assert.Contains(t, questions[0], "full legal name")
	// The fallback must be a fresh slice each call so callers can own it.
	questions[0] = "mutated"
	assert.NotEqual(t, "mutated", FallbackQuestions()[0])
}

type stubSessions struct {
	record *models.SessionRecord
	saved  *session.Update
}

func (s *stubSessions) Load(ctx context.Context, userID string) (*models.SessionRecord, error) {
	if s.record == nil {
		return models.NewSessionRecord(userID), nil
	}
	return s.record, nil
}

func (s *stubSessions) Save(ctx context.Context, userID string, update session.Update) error {
	s.saved = &update
	return nil
}

type stubFieldStore struct {
	resolved int64
	groups   map[models.FieldGroup]map[string]any
}

func (s *stubFieldStore) ResolveClient(ctx context.Context, practiceID string, ct models.ClientType) (int64, error) {
	return s.resolved, nil
}

func (s *stubFieldStore) GetFieldGroup(ctx context.Context, internalID int64, ct models.ClientType, group models.FieldGroup) (map[string]any, error) {
	return s.groups[group], nil
}

func (s *stubFieldStore) UpdateFieldGroup(ctx context.Context, internalID int64, ct models.ClientType, group models.FieldGroup, fields map[string]any) (*repository.UpdateResult, error) {
	return &repository.UpdateResult{RowsAffected: 1}, nil
}

func (s *stubFieldStore) AssociatedClients(ctx context.Context, practiceID string, ct models.ClientType) ([]repository.AssociatedClient, error) {
	return nil, nil
}

func TestAgentAsk(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("plain answer appends both turns", func(t *testing.T) {
		client := fakeCompletion(t, "I see you already provided your name. Is this still correct?")
		sessions := &stubSessions{}
		agent := NewAgent(client, "test-model", 10*time.Second, sessions, &stubFieldStore{}, logger)

		reply, err := agent.Ask(context.Background(), "What is your full legal name?", "u1", "TESTDEM1", models.ClientTypeIndividual)
		require.NoError(t, err)
		assert.Contains(t, reply, "already provided")

		require.NotNil(t, sessions.saved)
		require.Len(t, sessions.saved.Messages, 2)
		assert.Equal(t, models.RoleUser, sessions.saved.Messages[0].Role)
		assert.Equal(t, models.RoleAssistant, sessions.saved.Messages[1].Role)
		assert.Equal(t, "TESTDEM1", sessions.saved.ClientID)
	})

	t.Run("sticky client id from session", func(t *testing.T) {
		client := fakeCompletion(t, "Please share your date of birth.")
		record := models.NewSessionRecord("u1")
		record.ClientID = "STORED01"
		record.ClientType = models.ClientTypeIndividual
		sessions := &stubSessions{record: record}
		agent := NewAgent(client, "test-model", 10*time.Second, sessions, &stubFieldStore{}, logger)

		_, err := agent.Ask(context.Background(), "What is your date of birth?", "u1", "", "")
		require.NoError(t, err)
		require.NotNil(t, sessions.saved)
		assert.Equal(t, "STORED01", sessions.saved.ClientID)
		assert.Equal(t, models.ClientTypeIndividual, sessions.saved.ClientType)
	})
}
