// Package models defines the domain models for the tax intake service
package models

import (
	"fmt"
	"strings"
	"time"
)

// ClientType distinguishes the two kinds of filers the field store knows about.
type ClientType string

const (
	ClientTypeIndividual ClientType = "individual"
	ClientTypeCompany    ClientType = "company"
)

// ParseClientType normalizes and validates a client type string.
func ParseClientType(s string) (ClientType, error) {
	switch ClientType(strings.ToLower(strings.TrimSpace(s))) {
	case ClientTypeIndividual:
		return ClientTypeIndividual, nil
	case ClientTypeCompany:
		return ClientTypeCompany, nil
	default:
		return "", fmt.Errorf("client type must be %q or %q, got %q", ClientTypeIndividual, ClientTypeCompany, s)
	}
}

// WorkflowStatus tags a WorkflowResult.
type WorkflowStatus string

const (
	StatusStarted    WorkflowStatus = "started"
	StatusInProgress WorkflowStatus = "in_progress"
	StatusOffTopic   WorkflowStatus = "off_topic"
	StatusCompleted  WorkflowStatus = "completed"
)

// Verdict is the classifier's judgment of one human reply. WantsUpdate is
// only meaningful when IsTaxRelated is true.
type Verdict struct {
	IsTaxRelated bool `json:"is_tax_related"`
	WantsUpdate  bool `json:"wants_update"`
}

// AnswerRecord captures one answered question. A question that is revisited
// overwrites its previous record.
type AnswerRecord struct {
	Question      string    `json:"question"`
	AIResponse    string    `json:"ai_response"`
	HumanResponse string    `json:"human_response"`
	WantsUpdate   bool      `json:"wants_update"`
	Timestamp     time.Time `json:"timestamp"`
}

// Progress is one user's persisted position in the question walk. The cursor
// points at the next unanswered question; CompletedQuestions holds the
// indices whose last answer was accepted.
type Progress struct {
	UserID               string               `json:"user_id"`
	CurrentQuestionIndex int                  `json:"current_question_index"`
	CompletedQuestions   []int                `json:"completed_questions"`
	Answers              map[int]AnswerRecord `json:"answers"`
	Corrections          map[int]int          `json:"corrections,omitempty"`
	LastAIResponse       string               `json:"last_ai_response"`
	LastUpdated          time.Time            `json:"last_updated"`
}

// NewProgress returns the zero-state progress for a user.
func NewProgress(userID string) *Progress {
	return &Progress{
		UserID:             userID,
		CompletedQuestions: []int{},
		Answers:            map[int]AnswerRecord{},
		Corrections:        map[int]int{},
		LastUpdated:        time.Now().UTC(),
	}
}

// RecordAnswer stores (or overwrites) the answer record for a question index.
func (p *Progress) RecordAnswer(index int, rec AnswerRecord) {
	if p.Answers == nil {
		p.Answers = map[int]AnswerRecord{}
	}
	p.Answers[index] = rec
}

// MarkCompleted adds an index to the completed set exactly once.
func (p *Progress) MarkCompleted(index int) {
	for _, i := range p.CompletedQuestions {
		if i == index {
			return
		}
	}
	p.CompletedQuestions = append(p.CompletedQuestions, index)
}

// CompletedCount returns the number of accepted answers.
func (p *Progress) CompletedCount() int {
	return len(p.CompletedQuestions)
}

// Catalog is the fixed ordered question list for one user's workflow,
// generated at most once and stable for the lifetime of the workflow.
type Catalog struct {
	UserID      string    `json:"user_id"`
	Questions   []string  `json:"questions"`
	Total       int       `json:"total_questions"`
	GeneratedAt time.Time `json:"generated_at"`
}

// WorkflowResult is the tagged union returned by the engine. Which fields are
// populated depends on Status.
type WorkflowResult struct {
	Status             WorkflowStatus `json:"status"`
	QuestionNumber     int            `json:"question_number,omitempty"`
	TotalQuestions     int            `json:"total_questions,omitempty"`
	Question           string         `json:"question,omitempty"`
	AIResponse         string         `json:"ai_response,omitempty"`
	Completed          int            `json:"completed"`
	ValidationResult   *bool          `json:"validation_result"`
	Message            string         `json:"message,omitempty"`
	CompletedQuestions int            `json:"completed_questions,omitempty"`
	FinalResponse      string         `json:"final_response,omitempty"`
}

// ProgressSummary is the read-only view served by the progress endpoint.
type ProgressSummary struct {
	UserID             string    `json:"user_id"`
	CurrentQuestion    int       `json:"current_question"`
	TotalQuestions     int       `json:"total_questions"`
	CompletedQuestions int       `json:"completed_questions"`
	TotalAnswers       int       `json:"total_answers"`
	LastUpdated        time.Time `json:"last_updated"`
}
