package nlp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/rs/zerolog"

	"taxassist/backend/pkg/models"
)

const generatorSystemPrompt = `Generate consolidated intake questions for a 1040NR tax filing,
one or two questions per data group, in plain conversational English.

The data groups are: %s.

Rules:
- Combine related fields from the same group into ONE question.
- Never ask separately for fields that are stored together
  (e.g. ask for the full legal name, not first/middle/last individually).
- 18 to 25 questions total.

Answer with a JSON object: {"questions": ["...", "..."]}`

// QuestionGenerator produces the ordered question list for a new workflow.
// Callers own the timeout and the fallback; Generate just reports failure.
type QuestionGenerator struct {
	client *openai.Client
	model  string
	logger zerolog.Logger
}

// NewQuestionGenerator creates a QuestionGenerator.
func NewQuestionGenerator(client *openai.Client, model string, logger zerolog.Logger) *QuestionGenerator {
	return &QuestionGenerator{
		client: client,
		model:  model,
		logger: logger.With().Str("component", "question_generator").Logger(),
	}
}

// Generate asks the model for the consolidated question list.
func (g *QuestionGenerator) Generate(ctx context.Context) ([]string, error) {
	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: 0.3,
		MaxTokens:   2000,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: fmt.Sprintf(generatorSystemPrompt, strings.Join(models.FieldGroupNames(), ", ")),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: "Generate the consolidated 1040NR intake questions, one per data group, combining related fields.",
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("generate questions: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("generate questions: empty completion")
	}

	var parsed struct {
		Questions []string `json:"questions"`
	}
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &parsed); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	if len(parsed.Questions) == 0 {
		return nil, fmt.Errorf("generator returned no questions")
	}

	g.logger.Info().Int("count", len(parsed.Questions)).Dur("elapsed", time.Since(start)).Msg("questions generated")
	return parsed.Questions, nil
}

// FallbackQuestions is the static consolidated catalog used when dynamic
// generation fails. It covers the same field groups the generator targets.
func FallbackQuestions() []string {
	return []string{
		"What is your full legal name? (First, Middle, Last)",
		"What is your date of birth? (MM/DD/YYYY)",
		"What is your complete current US address? (Street, Apt/Unit, City, State, ZIP, Country)",
		"What is your current occupation and source of US income?",
		"Do you have an ITIN? If yes, what is it?",
		"What is your passport number, issuing country, and expiration date?",
		"What is your visa type and which country issued it?",
		"What was your first entry date to the US and your last exit date? (MM/DD/YYYY for both)",
		"How many days were you physically present in the US during the current tax year, previous year, and two years ago?",
		"Are you claiming tax treaty benefits? If yes, which country and treaty article?",
		"If claiming treaty benefits, what type of income is covered, what is the exempt amount, and are you a resident of the treaty country?",
		"What were your W-2 wages and scholarship/fellowship amounts from Form 1042-S?",
		"What were your other income amounts: interest, dividends, capital gains, rental income, and self-employment income (ECI)?",
		"How much federal tax was withheld from your W-2, 1042-S, and 1099 forms?",
		"Which of the following tax forms do you have: W-2, 1042-S, 1099, or K-1?",
		"What are your itemized deduction amounts for state/local taxes, charitable contributions, and casualty losses?",
		"What are your education-related expenses and student loan interest amounts?",
		"How many dependents do you have?",
		"What is your preferred refund method: check or ACH (direct deposit)?",
		"If choosing direct deposit, what is your bank routing number and the last 4 digits of your account number?",
	}
}
