// Package api contains the HTTP handlers for the tax intake service.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"taxassist/backend/internal/repository"
	"taxassist/backend/internal/workflow"
	"taxassist/backend/pkg/models"
)

// WorkflowEngine is the slice of the engine the HTTP layer consumes.
type WorkflowEngine interface {
	Start(ctx context.Context, userID, clientID string, clientType models.ClientType) (*models.WorkflowResult, error)
	Answer(ctx context.Context, userID, clientID string, clientType models.ClientType, humanReply string) (*models.WorkflowResult, error)
	ProgressSummary(ctx context.Context, userID string) (*models.ProgressSummary, error)
}

// Server holds the dependencies for the API server.
type Server struct {
	Engine WorkflowEngine
	Fields repository.FieldStore
	Logger zerolog.Logger
}

// NewServer creates a new Server.
func NewServer(engine WorkflowEngine, fields repository.FieldStore, logger zerolog.Logger) *Server {
	return &Server{Engine: engine, Fields: fields, Logger: logger.With().Str("component", "api").Logger()}
}

// RegisterRoutes wires the service endpoints onto a group, typically one
// carrying the auth middleware. The health endpoint is registered separately
// so probes stay unauthenticated.
func (s *Server) RegisterRoutes(g *echo.Group) {
	g.POST("/tax/workflow", s.HandleWorkflow)
	g.GET("/tax/progress/:user_id", s.HandleProgress)
	g.POST("/welcome/message", s.HandleWelcome)
	g.POST("/sub/client", s.HandleSubClients)
}

// WorkflowRequest is one conversational turn. Reference carries the client
// type tag ("individual" or "company").
type WorkflowRequest struct {
	UserID        string `json:"user_id"`
	ClientID      string `json:"client_id"`
	Reference     string `json:"reference"`
	HumanResponse string `json:"human_response"`
}

// HandleWorkflow drives one workflow step. An empty human response, or the
// literal "start", begins or resumes the walk; anything else is processed as
// the answer to the pending question.
// (POST /tax/workflow)
func (s *Server) HandleWorkflow(c echo.Context) error {
	ctx := c.Request().Context()

	var req WorkflowRequest
	if err := c.Bind(&req); err != nil {
		return problem(c, http.StatusBadRequest, "Invalid request body", err.Error())
	}
	if req.UserID == "" {
		return problem(c, http.StatusBadRequest, "Invalid request", "user_id is required")
	}
	if req.ClientID == "" {
		return problem(c, http.StatusBadRequest, "Invalid request", "client_id is required")
	}
	clientType, err := models.ParseClientType(req.Reference)
	if err != nil {
		return problem(c, http.StatusBadRequest, "Invalid request", err.Error())
	}

	var result *models.WorkflowResult
	reply := strings.TrimSpace(req.HumanResponse)
	if reply == "" || strings.EqualFold(reply, "start") {
		result, err = s.Engine.Start(ctx, req.UserID, req.ClientID, clientType)
	} else {
		result, err = s.Engine.Answer(ctx, req.UserID, req.ClientID, clientType, reply)
	}
	if err != nil {
		return s.workflowError(c, err)
	}

	if result.Status == models.StatusOffTopic && result.AIResponse == "" {
		// Chat clients render ai_response; give them the redirect message.
		result.AIResponse = result.Message
	}
	return c.JSON(http.StatusOK, result)
}

// HandleProgress reports a user's position in the question walk.
// (GET /tax/progress/:user_id)
func (s *Server) HandleProgress(c echo.Context) error {
	summary, err := s.Engine.ProgressSummary(c.Request().Context(), c.Param("user_id"))
	if err != nil {
		return s.workflowError(c, err)
	}
	return c.JSON(http.StatusOK, summary)
}

// WelcomeRequest identifies the client to greet.
type WelcomeRequest struct {
	ClientID  string `json:"client_id"`
	Reference string `json:"reference"`
}

// WelcomeResponse carries the personalized greeting.
type WelcomeResponse struct {
	Message string `json:"message"`
}

// HandleWelcome produces the greeting for a returning client, personalized
// from the stored identity fields when they resolve.
// (POST /welcome/message)
func (s *Server) HandleWelcome(c echo.Context) error {
	ctx := c.Request().Context()

	var req WelcomeRequest
	if err := c.Bind(&req); err != nil {
		return problem(c, http.StatusBadRequest, "Invalid request body", err.Error())
	}
	if req.ClientID == "" {
		return problem(c, http.StatusBadRequest, "Invalid request", "client_id is required")
	}
	clientType, err := models.ParseClientType(req.Reference)
	if err != nil {
		return problem(c, http.StatusBadRequest, "Invalid request", err.Error())
	}

	name := ""
	if internalID, err := s.Fields.ResolveClient(ctx, req.ClientID, clientType); err == nil {
		if identity, err := s.Fields.GetFieldGroup(ctx, internalID, clientType, models.FieldGroupIdentity); err == nil {
			if first, ok := identity["first_name"].(string); ok {
				name = first
			}
		}
	}

	message := "Welcome! I'm your tax filing assistant. Say \"start\" whenever you're ready to begin your 1040NR intake."
	if name != "" {
		message = "Welcome back, " + name + "! I'm your tax filing assistant. Say \"start\" to continue your 1040NR intake."
	}
	return c.JSON(http.StatusOK, WelcomeResponse{Message: message})
}

// SubClientsRequest identifies the main client whose sub-clients to list.
type SubClientsRequest struct {
	ClientID  string `json:"client_id"`
	Reference string `json:"reference"`
}

// HandleSubClients lists the active individual sub-clients associated with a
// main client.
// (POST /sub/client)
func (s *Server) HandleSubClients(c echo.Context) error {
	ctx := c.Request().Context()

	var req SubClientsRequest
	if err := c.Bind(&req); err != nil {
		return problem(c, http.StatusBadRequest, "Invalid request body", err.Error())
	}
	if req.ClientID == "" {
		return problem(c, http.StatusBadRequest, "Invalid request", "client_id is required")
	}
	clientType, err := models.ParseClientType(req.Reference)
	if err != nil {
		return problem(c, http.StatusBadRequest, "Invalid request", err.Error())
	}

	clients, err := s.Fields.AssociatedClients(ctx, req.ClientID, clientType)
	if errors.Is(err, repository.ErrNotFound) {
		return problem(c, http.StatusNotFound, "Not found", "no client matches the supplied id")
	}
	if err != nil {
		s.Logger.Error().Err(err).Str("client_id", req.ClientID).Msg("sub-client lookup failed")
		return problem(c, http.StatusInternalServerError, "Lookup failed", "could not list associated clients")
	}
	return c.JSON(http.StatusOK, map[string]any{"clients": clients, "count": len(clients)})
}

func (s *Server) workflowError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, workflow.ErrInvalidInput):
		return problem(c, http.StatusBadRequest, "Invalid request", err.Error())
	case errors.Is(err, repository.ErrNotFound):
		return problem(c, http.StatusNotFound, "Not found", err.Error())
	default:
		s.Logger.Error().Err(err).Msg("workflow step failed")
		return problem(c, http.StatusInternalServerError, "Workflow step failed", "the step was not applied; retry with the same inputs")
	}
}
