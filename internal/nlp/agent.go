package nlp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/rs/zerolog"

	"taxassist/backend/internal/repository"
	"taxassist/backend/internal/session"
	"taxassist/backend/pkg/models"
)

// How many prior turns the agent gets as context, and how many tool-call
// rounds it may take before the loop is cut off.
const (
	contextMessages   = 6
	maxToolIterations = 5
)

const agentSystemPrompt = `You are a friendly and professional tax filing assistant helping with
1040NR returns for non-resident aliens.

SESSION INFO:
- Client ID: %s
- Reference: %s

%s

How to respond:
1. Check stored information first using the tools before asking for anything.
2. Be direct and conversational:
   - If information exists: "I see you already provided [X]. Is this still correct?"
   - If information is missing: "I don't have [X] on file. Please provide [specific request]."
   - If the user wants to update: call update_field_group, then confirm the change.
3. Keep it simple: no workflow position mentions, one question at a time,
   never reveal the client id or reference in responses.`

// SessionMemory is the slice of the session store the agent needs.
type SessionMemory interface {
	Load(ctx context.Context, userID string) (*models.SessionRecord, error)
	Save(ctx context.Context, userID string, update session.Update) error
}

// Agent answers one question at a time, grounded in the field store through
// tool calls and in prior turns through session memory. It appends both the
// question and its reply to the session before returning.
type Agent struct {
	client   *openai.Client
	model    string
	timeout  time.Duration
	sessions SessionMemory
	fields   repository.FieldStore
	logger   zerolog.Logger
}

// NewAgent creates an Agent.
func NewAgent(client *openai.Client, model string, timeout time.Duration, sessions SessionMemory, fields repository.FieldStore, logger zerolog.Logger) *Agent {
	return &Agent{
		client:   client,
		model:    model,
		timeout:  timeout,
		sessions: sessions,
		fields:   fields,
		logger:   logger.With().Str("component", "agent").Logger(),
	}
}

// Ask produces the assistant reply for a question. Session attributes are
// sticky: a missing client id or type falls back to the stored session.
func (a *Agent) Ask(ctx context.Context, question, userID, clientID string, clientType models.ClientType) (string, error) {
	record, err := a.sessions.Load(ctx, userID)
	if err != nil {
		return "", err
	}
	if clientID == "" {
		clientID = record.ClientID
	}
	if clientType == "" {
		clientType = record.ClientType
	}
	if clientType == "" {
		clientType = models.ClientTypeIndividual
	}

	msgs := a.buildMessages(record, question, clientID, clientType)

	reply, err := a.complete(ctx, msgs, clientID, clientType)
	if err != nil {
		// One retry; agent failures beyond that are fatal to the step.
		a.logger.Warn().Err(err).Str("user_id", userID).Msg("agent completion failed, retrying")
		if reply, err = a.complete(ctx, msgs, clientID, clientType); err != nil {
			return "", fmt.Errorf("answer question: %w", err)
		}
	}

	messages := append(record.Messages,
		models.Message{Role: models.RoleUser, Content: question},
		models.Message{Role: models.RoleAssistant, Content: reply},
	)
	if err := a.sessions.Save(ctx, userID, session.Update{
		Messages:   messages,
		ClientID:   clientID,
		ClientType: clientType,
	}); err != nil {
		return "", err
	}
	return reply, nil
}

func (a *Agent) buildMessages(record *models.SessionRecord, question, clientID string, clientType models.ClientType) []openai.ChatCompletionMessage {
	system := fmt.Sprintf(agentSystemPrompt, clientID, clientType, session.RecentContext(record.Messages))

	msgs := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
	}
	history := record.Messages
	if len(history) > contextMessages {
		history = history[len(history)-contextMessages:]
	}
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Role == models.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: question})
}

// complete runs the tool-calling loop until the model produces a plain
// reply or the iteration cap is hit.
func (a *Agent) complete(ctx context.Context, msgs []openai.ChatCompletionMessage, clientID string, clientType models.ClientType) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	for iteration := 0; iteration < maxToolIterations; iteration++ {
		resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    a.model,
			Messages: msgs,
			Tools:    fieldStoreTools(),
		})
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("empty completion")
		}
		choice := resp.Choices[0].Message
		if len(choice.ToolCalls) == 0 {
			return choice.Content, nil
		}

		msgs = append(msgs, choice)
		for _, call := range choice.ToolCalls {
			result := a.dispatchTool(ctx, call, clientID, clientType)
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    result,
				ToolCallID: call.ID,
			})
		}
	}
	return "", fmt.Errorf("tool loop exceeded %d iterations", maxToolIterations)
}

// dispatchTool executes one tool call against the field store. Tool failures
// are reported back to the model as text so it can recover in-conversation.
func (a *Agent) dispatchTool(ctx context.Context, call openai.ToolCall, clientID string, clientType models.ClientType) string {
	a.logger.Debug().Str("tool", call.Function.Name).Str("args", call.Function.Arguments).Msg("tool call")

	result, err := a.executeTool(ctx, call.Function.Name, call.Function.Arguments, clientID, clientType)
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}
	return result
}

func (a *Agent) executeTool(ctx context.Context, name, arguments, clientID string, clientType models.ClientType) (string, error) {
	switch name {
	case "list_field_groups":
		out, err := json.Marshal(models.FieldGroupNames())
		return string(out), err

	case "get_field_group":
		var args struct {
			Group string `json:"group"`
		}
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return "", fmt.Errorf("decode arguments: %w", err)
		}
		internalID, err := a.fields.ResolveClient(ctx, clientID, clientType)
		if err != nil {
			return "", err
		}
		record, err := a.fields.GetFieldGroup(ctx, internalID, clientType, models.FieldGroup(args.Group))
		if err != nil {
			return "", err
		}
		out, err := json.Marshal(record)
		return string(out), err

	case "update_field_group":
		var args struct {
			Group  string         `json:"group"`
			Fields map[string]any `json:"fields"`
		}
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return "", fmt.Errorf("decode arguments: %w", err)
		}
		internalID, err := a.fields.ResolveClient(ctx, clientID, clientType)
		if err != nil {
			return "", err
		}
		result, err := a.fields.UpdateFieldGroup(ctx, internalID, clientType, models.FieldGroup(args.Group), args.Fields)
		if err != nil {
			return "", err
		}
		out, err := json.Marshal(result)
		return string(out), err

	default:
		return "", fmt.Errorf("unknown tool %q", name)
	}
}

func fieldStoreTools() []openai.Tool {
	groupParam := `{
		"type": "object",
		"properties": {
			"group": {"type": "string", "description": "Field group name, one of the registered groups"}
		},
		"required": ["group"]
	}`
	updateParam := `{
		"type": "object",
		"properties": {
			"group": {"type": "string", "description": "Field group name"},
			"fields": {"type": "object", "description": "Column/value pairs to update within the group"}
		},
		"required": ["group", "fields"]
	}`
	return []openai.Tool{
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        "list_field_groups",
				Description: "List the named field groups available for this client",
				Parameters:  json.RawMessage(`{"type": "object", "properties": {}}`),
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        "get_field_group",
				Description: "Read the stored values of one field group for the current client",
				Parameters:  json.RawMessage(groupParam),
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        "update_field_group",
				Description: "Update a subset of one field group's values for the current client",
				Parameters:  json.RawMessage(updateParam),
			},
		},
	}
}
