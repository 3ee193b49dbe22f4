// Package nlp implements the language-model collaborators of the workflow
// engine: the answer classifier, the question generator, and the
// conversational answering agent.
package nlp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/rs/zerolog"

	"taxassist/backend/pkg/models"
)

const classifierSystemPrompt = `You are a validation agent for a 1040-NR tax filing assistant.
You receive three pieces of context: the tax question asked, the assistant's
reply, and the human's response to it.

Perform two checks and answer with a JSON object:
{"is_tax_related": bool, "wants_update": bool}

is_tax_related: true when the human response answers, clarifies, confirms or
corrects the tax question. False when it is about anything else (weather,
jokes, cooking, general chat, homework, travel, ...).

wants_update: only meaningful when is_tax_related is true. True when the
human wants to change or correct stored information ("no, it should be...",
"actually it's...", "change it to...", a different value than the assistant
mentioned). False when the human confirms the existing information ("yes",
"correct", "that's right", "keep it as is").

If is_tax_related is false, set wants_update to false.`

// Classifier judges whether a human reply is on-topic and whether it asks
// for an update. It is stateless; workflow state never reaches it.
type Classifier struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  zerolog.Logger
}

// NewClassifier creates a Classifier.
func NewClassifier(client *openai.Client, model string, timeout time.Duration, logger zerolog.Logger) *Classifier {
	return &Classifier{
		client:  client,
		model:   model,
		timeout: timeout,
		logger:  logger.With().Str("component", "classifier").Logger(),
	}
}

// Classify returns the verdict for one turn. A transient failure is retried
// once before being surfaced.
func (c *Classifier) Classify(ctx context.Context, question, aiReply, humanReply string) (models.Verdict, error) {
	prompt := fmt.Sprintf(
		"**Question:** %s\n\n**AI Agent Response:** %s\n\n**Human Response:** %s\n\nReturn the JSON verdict.",
		question, aiReply, humanReply,
	)

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		verdict, err := c.classifyOnce(ctx, prompt)
		if err == nil {
			c.logger.Debug().
				Bool("is_tax_related", verdict.IsTaxRelated).
				Bool("wants_update", verdict.WantsUpdate).
				Msg("classified reply")
			return verdict, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		c.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("classification attempt failed")
	}
	return models.Verdict{}, fmt.Errorf("classify reply: %w", lastErr)
}

func (c *Classifier) classifyOnce(ctx context.Context, prompt string) (models.Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0.5,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: classifierSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return models.Verdict{}, err
	}
	if len(resp.Choices) == 0 {
		return models.Verdict{}, fmt.Errorf("empty completion")
	}

	var verdict models.Verdict
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &verdict); err != nil {
		return models.Verdict{}, fmt.Errorf("decode verdict %q: %w", resp.Choices[0].Message.Content, err)
	}
	// Off-topic replies carry no meaningful update intent.
	if !verdict.IsTaxRelated {
		verdict.WantsUpdate = false
	}
	return verdict, nil
}
