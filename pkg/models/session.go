package models

import (
	"time"

	"github.com/google/uuid"
)

// Message roles stored in session memory.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// WorkflowState is a coarse task/subtask mirror of workflow position kept in
// session metadata for backward compatibility. It is not authoritative for
// question indexing; Progress is.
type WorkflowState struct {
	CurrentTask       int    `json:"current_task"`
	CurrentSubtask    int    `json:"current_subtask"`
	CompletedTasks    []int  `json:"completed_tasks"`
	CompletedSubtasks []int  `json:"completed_subtasks"`
	CurrentQuestionID string `json:"current_question_id,omitempty"`
}

// SessionMetadata holds auxiliary session state.
type SessionMetadata struct {
	WorkflowState *WorkflowState `json:"workflow_state,omitempty"`
}

// SessionRecord is the TTL-bound conversation memory for one user.
// ClientID and ClientType are sticky: once set they survive writes that
// omit them.
type SessionRecord struct {
	SessionID   string          `json:"session_id"`
	UserID      string          `json:"user_id"`
	Messages    []Message       `json:"messages"`
	ClientID    string          `json:"client_id,omitempty"`
	ClientType  ClientType      `json:"reference,omitempty"`
	Metadata    SessionMetadata `json:"metadata"`
	LastUpdated time.Time       `json:"last_updated"`
}

// NewSessionRecord returns the empty session for a user; absence of a stored
// record is equivalent to this.
func NewSessionRecord(userID string) *SessionRecord {
	return &SessionRecord{
		SessionID: uuid.NewString(),
		UserID:    userID,
		Messages:  []Message{},
	}
}
