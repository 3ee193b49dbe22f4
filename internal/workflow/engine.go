// Package workflow implements the conversational intake state machine: a
// fixed ordered question catalog walked one confirmed answer at a time, with
// off-topic replies rejected and correction sub-loops held at the same index.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"taxassist/backend/internal/repository"
	"taxassist/backend/pkg/models"
)

// ErrInvalidInput marks request validation failures. These are rejected
// before any state mutation.
var ErrInvalidInput = errors.New("invalid input")

// AnswerClassifier judges one human reply against the question it answers.
type AnswerClassifier interface {
	Classify(ctx context.Context, question, aiReply, humanReply string) (models.Verdict, error)
}

// AnsweringAgent produces the user-facing reply for one question. It may
// read or write the field store as a side effect.
type AnsweringAgent interface {
	Ask(ctx context.Context, question, userID, clientID string, clientType models.ClientType) (string, error)
}

// CatalogSource provides the stable question catalog per user. Peek reads
// without generating and reports repository.ErrNotFound when absent.
type CatalogSource interface {
	GetOrCreate(ctx context.Context, userID string) (*models.Catalog, error)
	Peek(ctx context.Context, userID string) (*models.Catalog, error)
}

// Engine drives one user through the question walk. All state it owns is
// persisted through the progress store; steps for the same user are
// serialized with a per-user critical section held for the whole call.
type Engine struct {
	catalog        CatalogSource
	progress       repository.ProgressStore
	classifier     AnswerClassifier
	agent          AnsweringAgent
	maxCorrections int
	locks          *userLocks
	steps          metric.Int64Counter
	logger         zerolog.Logger
}

// NewEngine creates an Engine. maxCorrections bounds the correction sub-loop
// per question; zero means unbounded.
func NewEngine(catalog CatalogSource, progress repository.ProgressStore, classifier AnswerClassifier, agent AnsweringAgent, maxCorrections int, logger zerolog.Logger) *Engine {
	steps, _ := otel.Meter("taxassist/backend/internal/workflow").Int64Counter(
		"workflow.steps",
		metric.WithDescription("Workflow steps processed, by resulting status."),
	)
	return &Engine{
		catalog:        catalog,
		progress:       progress,
		classifier:     classifier,
		agent:          agent,
		maxCorrections: maxCorrections,
		locks:          newUserLocks(),
		steps:          steps,
		logger:         logger.With().Str("component", "workflow").Logger(),
	}
}

// Start begins or resumes a workflow: it asks the question at the cursor and
// advances past it. A completed workflow returns its terminal totals instead.
func (e *Engine) Start(ctx context.Context, userID, clientID string, clientType models.ClientType) (*models.WorkflowResult, error) {
	if err := validateIdentity(userID, clientType); err != nil {
		return nil, err
	}
	release := e.locks.acquire(userID)
	defer release()

	catalog, progress, err := e.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if progress.CurrentQuestionIndex >= catalog.Total {
		return e.finish(ctx, completedResult(catalog, progress, "")), nil
	}
	return e.serveQuestion(ctx, catalog, progress, clientID, clientType, nil)
}

// Answer processes one human reply. The decision is always about the
// previous question; see the state machine in classifyStep.
func (e *Engine) Answer(ctx context.Context, userID, clientID string, clientType models.ClientType, humanReply string) (*models.WorkflowResult, error) {
	if err := validateIdentity(userID, clientType); err != nil {
		return nil, err
	}
	release := e.locks.acquire(userID)
	defer release()

	catalog, progress, err := e.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	state, prevIndex := classifyStep(progress.CurrentQuestionIndex, catalog.Total)
	switch state {
	case awaitingFirstQuestion:
		// No question has been asked yet, so there is nothing to validate.
		return e.serveQuestion(ctx, catalog, progress, clientID, clientType, nil)

	case terminal:
		return e.closeWorkflow(ctx, catalog, progress, clientID, clientType, prevIndex, humanReply)

	default:
		return e.confirmOrRevisit(ctx, catalog, progress, clientID, clientType, prevIndex, humanReply)
	}
}

// ProgressSummary reports a user's position without mutating anything. A
// never-seen user gets the zero-state summary.
func (e *Engine) ProgressSummary(ctx context.Context, userID string) (*models.ProgressSummary, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	progress, err := e.progress.Get(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		progress = models.NewProgress(userID)
	} else if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}

	total := 0
	if catalog, err := e.catalog.Peek(ctx, userID); err == nil {
		total = catalog.Total
	}
	return &models.ProgressSummary{
		UserID:             userID,
		CurrentQuestion:    progress.CurrentQuestionIndex,
		TotalQuestions:     total,
		CompletedQuestions: progress.CompletedCount(),
		TotalAnswers:       len(progress.Answers),
		LastUpdated:        progress.LastUpdated,
	}, nil
}

// confirmOrRevisit handles the normal mid-walk turn: classify the reply to
// the previous question, then branch on topicality and update intent.
func (e *Engine) confirmOrRevisit(ctx context.Context, catalog *models.Catalog, progress *models.Progress, clientID string, clientType models.ClientType, prevIndex int, humanReply string) (*models.WorkflowResult, error) {
	prevQuestion := catalog.Questions[prevIndex]
	verdict, err := e.classifier.Classify(ctx, prevQuestion, progress.LastAIResponse, humanReply)
	if err != nil {
		return nil, err
	}

	if !verdict.IsTaxRelated {
		// Off-topic replies are free: nothing is recorded, the cursor
		// stays, and the pending question must be re-answered.
		e.logger.Info().Str("user_id", progress.UserID).Int("question", prevIndex+1).Msg("off-topic reply rejected")
		return e.finish(ctx, &models.WorkflowResult{
			Status:  models.StatusOffTopic,
			Message: "That doesn't appear to be related to your tax filing. Let's get back to the current question.",
		}), nil
	}

	if verdict.WantsUpdate && !e.correctionsExhausted(progress, prevIndex) {
		return e.revisit(ctx, catalog, progress, clientID, clientType, prevIndex, humanReply)
	}

	progress.RecordAnswer(prevIndex, models.AnswerRecord{
		Question:      prevQuestion,
		AIResponse:    progress.LastAIResponse,
		HumanResponse: humanReply,
		WantsUpdate:   false,
		Timestamp:     time.Now().UTC(),
	})
	progress.MarkCompleted(prevIndex)

	validated := false
	return e.serveQuestion(ctx, catalog, progress, clientID, clientType, &validated)
}

// revisit keeps the cursor at the same index and treats the correction as a
// fresh sub-query to the agent. The sub-loop repeats until the user confirms
// or the correction cap is reached.
func (e *Engine) revisit(ctx context.Context, catalog *models.Catalog, progress *models.Progress, clientID string, clientType models.ClientType, prevIndex int, humanReply string) (*models.WorkflowResult, error) {
	reply, err := e.agent.Ask(ctx, humanReply, progress.UserID, clientID, clientType)
	if err != nil {
		return nil, err
	}

	progress.RecordAnswer(prevIndex, models.AnswerRecord{
		Question:      catalog.Questions[prevIndex],
		AIResponse:    progress.LastAIResponse,
		HumanResponse: humanReply,
		WantsUpdate:   true,
		Timestamp:     time.Now().UTC(),
	})
	if progress.Corrections == nil {
		progress.Corrections = map[int]int{}
	}
	progress.Corrections[prevIndex]++
	progress.LastAIResponse = reply
	progress.LastUpdated = time.Now().UTC()
	if err := e.progress.Save(ctx, progress); err != nil {
		return nil, fmt.Errorf("persist progress: %w", err)
	}

	validated := true
	return e.finish(ctx, &models.WorkflowResult{
		Status:           models.StatusInProgress,
		QuestionNumber:   prevIndex + 1,
		TotalQuestions:   catalog.Total,
		Question:         humanReply,
		AIResponse:       reply,
		Completed:        progress.CompletedCount(),
		ValidationResult: &validated,
	}), nil
}

// closeWorkflow handles the reply to the last catalog question. The
// classifier is never consulted here; the reply is forwarded verbatim to the
// agent for a closing acknowledgment.
func (e *Engine) closeWorkflow(ctx context.Context, catalog *models.Catalog, progress *models.Progress, clientID string, clientType models.ClientType, prevIndex int, humanReply string) (*models.WorkflowResult, error) {
	reply, err := e.agent.Ask(ctx, humanReply, progress.UserID, clientID, clientType)
	if err != nil {
		return nil, err
	}

	progress.RecordAnswer(prevIndex, models.AnswerRecord{
		Question:      catalog.Questions[prevIndex],
		AIResponse:    progress.LastAIResponse,
		HumanResponse: humanReply,
		WantsUpdate:   false,
		Timestamp:     time.Now().UTC(),
	})
	progress.MarkCompleted(prevIndex)
	progress.LastAIResponse = reply
	progress.LastUpdated = time.Now().UTC()
	if err := e.progress.Save(ctx, progress); err != nil {
		return nil, fmt.Errorf("persist progress: %w", err)
	}

	e.logger.Info().Str("user_id", progress.UserID).Int("completed", progress.CompletedCount()).Msg("workflow completed")
	return e.finish(ctx, completedResult(catalog, progress, reply)), nil
}

// serveQuestion asks the question at the cursor, advances past it and
// persists. Progress is only written after the agent call succeeded, so a
// failed step leaves the persisted cursor untouched.
func (e *Engine) serveQuestion(ctx context.Context, catalog *models.Catalog, progress *models.Progress, clientID string, clientType models.ClientType, validated *bool) (*models.WorkflowResult, error) {
	cursor := progress.CurrentQuestionIndex
	if cursor >= catalog.Total {
		progress.LastUpdated = time.Now().UTC()
		if err := e.progress.Save(ctx, progress); err != nil {
			return nil, fmt.Errorf("persist progress: %w", err)
		}
		return e.finish(ctx, completedResult(catalog, progress, "")), nil
	}

	question := catalog.Questions[cursor]
	reply, err := e.agent.Ask(ctx, question, progress.UserID, clientID, clientType)
	if err != nil {
		return nil, err
	}

	progress.CurrentQuestionIndex = cursor + 1
	progress.LastAIResponse = reply
	progress.LastUpdated = time.Now().UTC()
	if err := e.progress.Save(ctx, progress); err != nil {
		return nil, fmt.Errorf("persist progress: %w", err)
	}

	status := models.StatusInProgress
	if cursor == 0 {
		status = models.StatusStarted
	}
	return e.finish(ctx, &models.WorkflowResult{
		Status:           status,
		QuestionNumber:   cursor + 1,
		TotalQuestions:   catalog.Total,
		Question:         question,
		AIResponse:       reply,
		Completed:        progress.CompletedCount(),
		ValidationResult: validated,
	}), nil
}

func (e *Engine) load(ctx context.Context, userID string) (*models.Catalog, *models.Progress, error) {
	catalog, err := e.catalog.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	progress, err := e.progress.Get(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		progress = models.NewProgress(userID)
	} else if err != nil {
		return nil, nil, fmt.Errorf("load progress: %w", err)
	}
	return catalog, progress, nil
}

// correctionsExhausted reports whether the correction cap for an index has
// been reached. A reached cap forces the pending answer to be accepted.
func (e *Engine) correctionsExhausted(progress *models.Progress, index int) bool {
	if e.maxCorrections <= 0 {
		return false
	}
	if progress.Corrections[index] < e.maxCorrections {
		return false
	}
	e.logger.Warn().Str("user_id", progress.UserID).Int("question", index+1).Int("cap", e.maxCorrections).Msg("correction cap reached, accepting answer")
	return true
}

func (e *Engine) finish(ctx context.Context, result *models.WorkflowResult) *models.WorkflowResult {
	e.steps.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(result.Status))))
	return result
}

func completedResult(catalog *models.Catalog, progress *models.Progress, finalResponse string) *models.WorkflowResult {
	return &models.WorkflowResult{
		Status:             models.StatusCompleted,
		Message:            "All intake questions are complete. Thank you!",
		TotalQuestions:     catalog.Total,
		CompletedQuestions: progress.CompletedCount(),
		FinalResponse:      finalResponse,
	}
}

func validateIdentity(userID string, clientType models.ClientType) error {
	if userID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if clientType != models.ClientTypeIndividual && clientType != models.ClientTypeCompany {
		return fmt.Errorf("%w: client type must be %q or %q", ErrInvalidInput, models.ClientTypeIndividual, models.ClientTypeCompany)
	}
	return nil
}
