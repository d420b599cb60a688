package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"pipedrive-agent/internal/crm"
	"pipedrive-agent/internal/domain"
	"pipedrive-agent/internal/format"
)

const (
	WelcomeMessage = "Hello! I can help you with Pipedrive CRM queries. Try asking about deals, activities, or organizations."

	msgAudioFailed   = "I'm sorry, but I had trouble understanding the audio. Could you please try speaking again or type your question?"
	msgVoicePrefix   = "I apologize, but I couldn't process that request. "
	msgVoiceBadInput = "The request wasn't formatted correctly. Could you try rephrasing your question?"
	msgVoiceNotFound = "I couldn't find what you're looking for. Please verify the information and try again."
	msgVoiceUpstream = "There was an issue connecting to Pipedrive. Please try again in a moment."

	defaultTranscriptLimit = 200
	maxUtteranceLen        = 2000
)

type CommandExecutor interface {
	Execute(ctx context.Context, cmd domain.Command) (crm.Result, error)
}

type CommandGenerator interface {
	Generate(ctx context.Context, utterance string) (string, error)
}

type ResponseRewriter interface {
	Rewrite(ctx context.Context, utterance, summary string) (string, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio domain.Audio) (string, error)
}

type StateStore interface {
	Load(userID string) domain.ConversationState
	Save(userID string, state domain.ConversationState)
	Clear(userID string)
}

type TranscriptStore interface {
	AppendTurn(ctx context.Context, sessionID string, messages []domain.ChatMessage) error
	GetTranscript(ctx context.Context, sessionID string, limit int) ([]domain.ChatMessage, error)
	GetSessionMeta(ctx context.Context, sessionID string) (domain.SessionMeta, bool, error)
}

// Assistant runs one chat turn at a time per user: it feeds pending note
// dialogues, routes fresh utterances, and archives every message it emits.
type Assistant struct {
	exec        CommandExecutor
	generator   CommandGenerator
	rewriter    ResponseRewriter
	transcriber Transcriber
	state       StateStore
	transcripts TranscriptStore
	notes       *NoteFlow

	formatter       *format.Formatter
	logger          *zap.Logger
	now             func() time.Time
	transcriptLimit int
}

type AssistantOption func(*Assistant)

func WithClock(now func() time.Time) AssistantOption {
	return func(a *Assistant) {
		if now != nil {
			a.now = now
		}
	}
}

func WithLogger(logger *zap.Logger) AssistantOption {
	return func(a *Assistant) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func WithFormatter(f *format.Formatter) AssistantOption {
	return func(a *Assistant) {
		if f != nil {
			a.formatter = f
		}
	}
}

// WithRewriter enables the natural-language rewrite of formatted results.
func WithRewriter(r ResponseRewriter) AssistantOption {
	return func(a *Assistant) {
		a.rewriter = r
	}
}

func WithTranscriptLimit(n int) AssistantOption {
	return func(a *Assistant) {
		if n > 0 {
			a.transcriptLimit = n
		}
	}
}

func NewAssistant(exec CommandExecutor, gen CommandGenerator, tr Transcriber, state StateStore, transcripts TranscriptStore, opts ...AssistantOption) (*Assistant, error) {
	if exec == nil {
		return nil, errors.New("usecase: command executor must not be nil")
	}
	if gen == nil {
		return nil, errors.New("usecase: command generator must not be nil")
	}
	if tr == nil {
		return nil, errors.New("usecase: transcriber must not be nil")
	}
	if state == nil {
		return nil, errors.New("usecase: state store must not be nil")
	}
	if transcripts == nil {
		return nil, errors.New("usecase: transcript store must not be nil")
	}
	notes, err := NewNoteFlow(exec)
	if err != nil {
		return nil, err
	}
	a := &Assistant{
		exec:            exec,
		generator:       gen,
		transcriber:     tr,
		state:           state,
		transcripts:     transcripts,
		notes:           notes,
		formatter:       format.New(),
		logger:          zap.NewNop(),
		now:             time.Now,
		transcriptLimit: defaultTranscriptLimit,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Start opens a chat with the welcome message.
func (a *Assistant) Start(ctx context.Context, session string) ([]domain.ChatMessage, error) {
	if err := validSession(session); err != nil {
		return nil, err
	}
	return a.archive(ctx, session, []domain.ChatMessage{domain.AssistantMessage(WelcomeMessage)})
}

// Send handles a typed utterance.
func (a *Assistant) Send(ctx context.Context, session, text string) ([]domain.ChatMessage, error) {
	if err := validSession(session); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, newError(ErrorInvalidInput, "empty_message", nil)
	}
	if len(text) > maxUtteranceLen {
		return nil, newError(ErrorInvalidInput, "message_too_long", nil)
	}

	msgs := []domain.ChatMessage{domain.UserMessage(text)}
	for _, r := range a.respond(ctx, session, text, false) {
		msgs = append(msgs, domain.AssistantMessage(r))
	}
	return a.archive(ctx, session, msgs)
}

// SendAudio transcribes a recording and handles the transcript like typed
// text. Transcription failures become a chat reply, not an error.
func (a *Assistant) SendAudio(ctx context.Context, session string, audio domain.Audio) ([]domain.ChatMessage, error) {
	if err := validSession(session); err != nil {
		return nil, err
	}
	if len(audio.Data) == 0 {
		return nil, newError(ErrorAudio, "empty_audio", nil)
	}

	text, err := a.transcriber.Transcribe(ctx, audio)
	if err == nil && strings.TrimSpace(text) == "" {
		err = errors.New("empty transcript")
	}
	if err != nil {
		a.logger.Warn("transcription failed", zap.String("session", session), zap.Error(newError(ErrorAudio, "transcription_failed", err)))
		return a.archive(ctx, session, []domain.ChatMessage{domain.AssistantMessage(msgAudioFailed)})
	}

	text = strings.TrimSpace(text)
	msgs := []domain.ChatMessage{domain.UserMessage(text)}
	for _, r := range a.respond(ctx, session, text, true) {
		msgs = append(msgs, domain.AssistantMessage(r))
	}
	return a.archive(ctx, session, msgs)
}

// RunAction runs a quick prompt. The prompt text is recorded as the user
// message; add_stage_note is a silent trigger, like a button press.
func (a *Assistant) RunAction(ctx context.Context, session, action string, stageID int) ([]domain.ChatMessage, error) {
	if err := validSession(session); err != nil {
		return nil, err
	}
	qp, ok := quickPromptByAction(action)
	if !ok {
		return nil, newError(ErrorInvalidInput, "unknown_action", nil)
	}
	if stageID != 0 {
		if _, known := domain.StageMapping[stageID]; !known {
			return nil, newError(ErrorInputValidation, "unknown_stage", nil)
		}
	}

	var msgs []domain.ChatMessage
	if !qp.stateful {
		msgs = append(msgs, domain.UserMessage(qp.text))
	}
	turn, err := qp.run(a, ctx, stageID)
	if err != nil {
		a.logger.Warn("quick prompt failed", zap.String("action", qp.action), zap.Error(err))
		turn = reply(nil, "Error: "+describe(err))
	} else if qp.stateful {
		a.state.Save(session, turn.State)
	}
	for _, r := range turn.Replies {
		msgs = append(msgs, domain.AssistantMessage(r))
	}
	return a.archive(ctx, session, msgs)
}

// Transcript returns the archived conversation in chronological order.
func (a *Assistant) Transcript(ctx context.Context, session string) ([]domain.ChatMessage, error) {
	if err := validSession(session); err != nil {
		return nil, err
	}
	msgs, err := a.transcripts.GetTranscript(ctx, session, a.transcriptLimit)
	if err != nil {
		return nil, newError(ErrorInternal, "transcript_read_error", err)
	}
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}
	return msgs, nil
}

// Session reports archive totals for the user. A session that has never been
// archived comes back with zero turns.
func (a *Assistant) Session(ctx context.Context, session string) (domain.SessionMeta, error) {
	if err := validSession(session); err != nil {
		return domain.SessionMeta{}, err
	}
	meta, ok, err := a.transcripts.GetSessionMeta(ctx, session)
	if err != nil {
		return domain.SessionMeta{}, newError(ErrorInternal, "session_read_error", err)
	}
	if !ok {
		return domain.SessionMeta{SessionID: session}, nil
	}
	return meta, nil
}

// End drops any pending dialogue for the user (sign-out).
func (a *Assistant) End(_ context.Context, session string) error {
	if err := validSession(session); err != nil {
		return err
	}
	a.state.Clear(session)
	return nil
}

// respond produces the assistant replies for one utterance. It never fails:
// every error becomes reply text.
func (a *Assistant) respond(ctx context.Context, session, text string, spoken bool) []string {
	if pending := a.state.Load(session); pending != nil {
		turn := a.notes.Advance(ctx, pending, text)
		a.state.Save(session, turn.State)
		return turn.Replies
	}

	name, turn, err := a.route(ctx, text)
	if err != nil {
		a.logger.Warn("query failed", zap.String("intent", name), zap.Bool("spoken", spoken), zap.Error(err))
		if spoken {
			return []string{voiceFailure(err)}
		}
		return []string{"Error: Failed to process query: " + describe(err)}
	}
	if turn.State != nil {
		a.state.Save(session, turn.State)
	}
	if len(turn.Replies) == 0 {
		return []string{format.MsgNoRecords}
	}
	return turn.Replies
}

func voiceFailure(err error) string {
	status, _ := upstreamStatusCode(err)
	switch status {
	case 400:
		return msgVoicePrefix + msgVoiceBadInput
	case 404:
		return msgVoicePrefix + msgVoiceNotFound
	default:
		return msgVoicePrefix + msgVoiceUpstream
	}
}

func (a *Assistant) archive(ctx context.Context, session string, msgs []domain.ChatMessage) ([]domain.ChatMessage, error) {
	if err := a.transcripts.AppendTurn(ctx, session, msgs); err != nil {
		return nil, newError(ErrorInternal, "transcript_write_error", err)
	}
	return msgs, nil
}

func validSession(session string) error {
	if strings.TrimSpace(session) == "" {
		return newError(ErrorInvalidInput, "missing_session", nil)
	}
	return nil
}
