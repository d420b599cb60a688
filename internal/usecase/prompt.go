package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pipedrive-agent/internal/domain"
)

const (
	commandMaxTokens = 150
	rewriteMaxTokens = 250
)

// LLMClient is the chat-completion surface the prompt strategies need.
type LLMClient interface {
	Chat(ctx context.Context, model string, messages []domain.ChatMessage, maxTokens int) (string, error)
}

// SpeechClient is the speech-to-text surface behind SpeechTranscriber.
type SpeechClient interface {
	Transcribe(ctx context.Context, model string, audio domain.Audio) (string, error)
}

// commandPrompt lists the endpoints the model may target. It must never carry
// the CRM base URL or credentials; both live only in the executor.
func commandPrompt() string {
	return strings.Join([]string{
		"You are an AI assistant that converts natural language to Pipedrive API commands.",
		"Output format: METHOD /endpoint",
		"Respond with the command only, on a single line.",
		"",
		"Available endpoints and common use cases:",
		"",
		"1. Deals:",
		"- List all deals: GET /deals",
		"- Search deals: GET /deals/search?term={search_term}",
		"- Get specific deal: GET /deals/{id}",
		"- Create deal: POST /deals",
		"- Update deal: PATCH /deals/{id}",
		"- Delete deal: DELETE /deals/{id}",
		"",
		"2. Activities:",
		"- List all activities: GET /activities",
		"- Get specific activity: GET /activities/{id}",
		"- Create activity: POST /activities",
		"- Update activity: PATCH /activities/{id}",
		"- Delete activity: DELETE /activities/{id}",
		"",
		"3. Organizations:",
		"- List all: GET /organizations",
		"- Search: GET /organizations/search?term={search_term}",
		"- Get details: GET /organizations/{id}",
		"- Create: POST /organizations",
		"- Update: PATCH /organizations/{id}",
		"- Delete: DELETE /organizations/{id}",
		"",
		"4. Persons:",
		"- List all: GET /persons",
		"- Search: GET /persons/search?term={search_term}",
		"- Get details: GET /persons/{id}",
		"- Create: POST /persons",
		"- Update: PATCH /persons/{id}",
		"- Delete: DELETE /persons/{id}",
		"",
		"5. Notes:",
		"- List all notes: GET /notes",
		"- Get specific note: GET /notes/{id}",
		"- Create note: POST /notes",
		"- Update note: PATCH /notes/{id}",
		"- Delete note: DELETE /notes/{id}",
		"",
		"Example queries:",
		`"Show me the biggest deals" -> "GET /deals?sort=value DESC&limit=5"`,
		`"Find person named John" -> "GET /persons/search?term=John"`,
		`"Get all activities for today" -> "GET /activities?due_date=today"`,
		`"Add note 'Called customer about proposal' to deal 123" -> "POST /notes with {"content": "Called customer about proposal", "deal_id": 123}"`,
	}, "\n")
}

func rewritePrompt(utterance, summary string) string {
	return fmt.Sprintf(`Given the user query: %q
And the Pipedrive API response: %s

Please provide a natural language response that:
1. Answers the user's question directly
2. Highlights key information
3. Suggests relevant follow-up questions
4. Indicates if additional API calls might be needed for complete information

If the response doesn't fully answer the query, specify what additional information is needed.`, utterance, summary)
}

// LLMCommandGenerator asks a chat model for a "METHOD /path" command.
type LLMCommandGenerator struct {
	llm   LLMClient
	model string
}

func NewLLMCommandGenerator(llm LLMClient, model string) (*LLMCommandGenerator, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	return &LLMCommandGenerator{llm: llm, model: strings.TrimSpace(model)}, nil
}

func (g *LLMCommandGenerator) Generate(ctx context.Context, utterance string) (string, error) {
	out, err := g.llm.Chat(ctx, g.model, []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: commandPrompt()},
		domain.UserMessage(utterance),
	}, commandMaxTokens)
	if err != nil {
		return "", fmt.Errorf("usecase: generate command: %w", err)
	}
	if strings.TrimSpace(out) == "" {
		return "", errors.New("usecase: generate command: empty completion")
	}
	return out, nil
}

// LLMRewriter turns a formatted CRM summary into conversational prose.
type LLMRewriter struct {
	llm   LLMClient
	model string
}

func NewLLMRewriter(llm LLMClient, model string) (*LLMRewriter, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	return &LLMRewriter{llm: llm, model: strings.TrimSpace(model)}, nil
}

func (r *LLMRewriter) Rewrite(ctx context.Context, utterance, summary string) (string, error) {
	out, err := r.llm.Chat(ctx, r.model, []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: rewritePrompt(utterance, summary)},
	}, rewriteMaxTokens)
	if err != nil {
		return "", fmt.Errorf("usecase: rewrite response: %w", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", errors.New("usecase: rewrite response: empty completion")
	}
	return out, nil
}

// SpeechTranscriber binds a speech client to a model name.
type SpeechTranscriber struct {
	client SpeechClient
	model  string
}

func NewSpeechTranscriber(client SpeechClient, model string) (*SpeechTranscriber, error) {
	if client == nil {
		return nil, errors.New("usecase: speech client must not be nil")
	}
	return &SpeechTranscriber{client: client, model: strings.TrimSpace(model)}, nil
}

func (t *SpeechTranscriber) Transcribe(ctx context.Context, audio domain.Audio) (string, error) {
	text, err := t.client.Transcribe(ctx, t.model, audio)
	if err != nil {
		return "", fmt.Errorf("usecase: transcribe audio: %w", err)
	}
	return strings.TrimSpace(text), nil
}
