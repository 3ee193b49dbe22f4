package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxassist/backend/internal/repository"
	"taxassist/backend/pkg/models"
)

type stubEngine struct {
	started  int
	answered int
	reply    string
	result   *models.WorkflowResult
}

func (s *stubEngine) Start(ctx context.Context, userID, clientID string, clientType models.ClientType) (*models.WorkflowResult, error) {
	s.started++
	return s.result, nil
}

func (s *stubEngine) Answer(ctx context.Context, userID, clientID string, clientType models.ClientType, humanReply string) (*models.WorkflowResult, error) {
	s.answered++
	s.reply = humanReply
	return s.result, nil
}

func (s *stubEngine) ProgressSummary(ctx context.Context, userID string) (*models.ProgressSummary, error) {
	return &models.ProgressSummary{UserID: userID, CurrentQuestion: 2, TotalQuestions: 20}, nil
}

type stubFields struct {
	identity map[string]any
	subs     []repository.AssociatedClient
}

func (s *stubFields) ResolveClient(ctx context.Context, practiceID string, ct models.ClientType) (int64, error) {
	if s.identity == nil {
		return 0, repository.ErrNotFound
	}
	return 1, nil
}

func (s *stubFields) GetFieldGroup(ctx context.Context, internalID int64, ct models.ClientType, group models.FieldGroup) (map[string]any, error) {
	return s.identity, nil
}

func (s *stubFields) UpdateFieldGroup(ctx context.Context, internalID int64, ct models.ClientType, group models.FieldGroup, fields map[string]any) (*repository.UpdateResult, error) {
	return &repository.UpdateResult{}, nil
}

func (s *stubFields) AssociatedClients(ctx context.Context, practiceID string, ct models.ClientType) ([]repository.AssociatedClient, error) {
	return s.subs, nil
}

func doRequest(t *testing.T, server *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.GET("/health", server.HandleHealth)
	server.RegisterRoutes(e.Group(""))
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandleWorkflow(t *testing.T) {
	t.Run("missing user_id is rejected before any engine call", func(t *testing.T) {
		engine := &stubEngine{}
		server := NewServer(engine, &stubFields{}, zerolog.Nop())

		rec := doRequest(t, server, http.MethodPost, "/tax/workflow", `{"client_id":"TESTDEM1","reference":"individual"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "application/problem+json")
		assert.Zero(t, engine.started+engine.answered)
	})

	t.Run("invalid reference is rejected", func(t *testing.T) {
		engine := &stubEngine{}
		server := NewServer(engine, &stubFields{}, zerolog.Nop())

		rec := doRequest(t, server, http.MethodPost, "/tax/workflow", `{"user_id":"u1","client_id":"TESTDEM1","reference":"llc"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Zero(t, engine.started+engine.answered)
	})

	t.Run("empty and start responses route to Start", func(t *testing.T) {
		engine := &stubEngine{result: &models.WorkflowResult{Status: models.StatusStarted, Question: "Q0"}}
		server := NewServer(engine, &stubFields{}, zerolog.Nop())

		rec := doRequest(t, server, http.MethodPost, "/tax/workflow", `{"user_id":"u1","client_id":"TESTDEM1","reference":"individual"}`)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = doRequest(t, server, http.MethodPost, "/tax/workflow", `{"user_id":"u1","client_id":"TESTDEM1","reference":"individual","human_response":" Start "}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 2, engine.started)
		assert.Zero(t, engine.answered)
	})

	t.Run("other responses route to Answer trimmed", func(t *testing.T) {
		engine := &stubEngine{result: &models.WorkflowResult{Status: models.StatusInProgress}}
		server := NewServer(engine, &stubFields{}, zerolog.Nop())

		rec := doRequest(t, server, http.MethodPost, "/tax/workflow", `{"user_id":"u1","client_id":"TESTDEM1","reference":"individual","human_response":" yes that's right "}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, engine.answered)
		assert.Equal(t, "yes that's right", engine.reply)
	})

	t.Run("off-topic message is mirrored into ai_response", func(t *testing.T) {
		engine := &stubEngine{result: &models.WorkflowResult{Status: models.StatusOffTopic, Message: "let's get back to it"}}
		server := NewServer(engine, &stubFields{}, zerolog.Nop())

		rec := doRequest(t, server, http.MethodPost, "/tax/workflow", `{"user_id":"u1","client_id":"TESTDEM1","reference":"individual","human_response":"weather?"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var result models.WorkflowResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.Equal(t, models.StatusOffTopic, result.Status)
		assert.Equal(t, "let's get back to it", result.AIResponse)
	})
}

func TestHandleProgress(t *testing.T) {
	server := NewServer(&stubEngine{}, &stubFields{}, zerolog.Nop())

	rec := doRequest(t, server, http.MethodGet, "/tax/progress/u1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var summary models.ProgressSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, "u1", summary.UserID)
	assert.Equal(t, 20, summary.TotalQuestions)
}

func TestHandleWelcome(t *testing.T) {
	t.Run("personalizes when identity resolves", func(t *testing.T) {
		server := NewServer(&stubEngine{}, &stubFields{identity: map[string]any{"first_name": "Priya"}}, zerolog.Nop())

		rec := doRequest(t, server, http.MethodPost, "/welcome/message", `{"client_id":"TESTDEM1","reference":"individual"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Welcome back, Priya")
	})

	t.Run("falls back to a generic greeting", func(t *testing.T) {
		server := NewServer(&stubEngine{}, &stubFields{}, zerolog.Nop())

		rec := doRequest(t, server, http.MethodPost, "/welcome/message", `{"client_id":"UNKNOWN1","reference":"individual"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "tax filing assistant")
	})
}

func TestHandleSubClients(t *testing.T) {
	subs := []repository.AssociatedClient{{PracticeID: "SUB00001", Name: "Dependent One", AssociationType: "Sub Client"}}
	server := NewServer(&stubEngine{}, &stubFields{subs: subs}, zerolog.Nop())

	rec := doRequest(t, server, http.MethodPost, "/sub/client", `{"client_id":"TESTDEM1","reference":"individual"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "SUB00001")
	assert.Contains(t, rec.Body.String(), `"count":1`)
}
