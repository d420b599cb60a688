package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"pipedrive-agent/internal/crm"
	"pipedrive-agent/internal/domain"
)

type execResponse struct {
	body string
	err  error
}

// fakeExecutor answers commands by "METHOD path" prefix. The longest
// matching prefix wins so specific paths can override general ones.
type fakeExecutor struct {
	routes map[string]execResponse
	calls  []domain.Command
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{routes: map[string]execResponse{}}
}

func (f *fakeExecutor) on(prefix, body string) *fakeExecutor {
	f.routes[prefix] = execResponse{body: body}
	return f
}

func (f *fakeExecutor) fail(prefix string, err error) *fakeExecutor {
	f.routes[prefix] = execResponse{err: err}
	return f
}

func (f *fakeExecutor) Execute(_ context.Context, cmd domain.Command) (crm.Result, error) {
	f.calls = append(f.calls, cmd)
	key := cmd.String()
	best := ""
	for prefix := range f.routes {
		if strings.HasPrefix(key, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return crm.Result{}, fmt.Errorf("fake executor: no route for %q", key)
	}
	r := f.routes[best]
	if r.err != nil {
		return crm.Result{}, r.err
	}
	return crm.Result{StatusCode: 200, Body: json.RawMessage(r.body)}, nil
}

func (f *fakeExecutor) paths() []string {
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.String())
	}
	return out
}

type fakeGenerator struct {
	out   string
	err   error
	calls []string
}

func (f *fakeGenerator) Generate(_ context.Context, utterance string) (string, error) {
	f.calls = append(f.calls, utterance)
	return f.out, f.err
}

type fakeRewriter struct {
	out     string
	err     error
	summary string
}

func (f *fakeRewriter) Rewrite(_ context.Context, _, summary string) (string, error) {
	f.summary = summary
	return f.out, f.err
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ domain.Audio) (string, error) {
	return f.text, f.err
}

type memState struct {
	slots map[string]domain.ConversationState
}

func newMemState() *memState {
	return &memState{slots: map[string]domain.ConversationState{}}
}

func (m *memState) Load(userID string) domain.ConversationState {
	return m.slots[userID]
}

func (m *memState) Save(userID string, state domain.ConversationState) {
	if state == nil {
		delete(m.slots, userID)
		return
	}
	m.slots[userID] = state
}

func (m *memState) Clear(userID string) {
	delete(m.slots, userID)
}

type fakeTranscripts struct {
	turns    [][]domain.ChatMessage
	appendEr error
	history  []domain.ChatMessage
	readErr  error
	limit    int
	meta     *domain.SessionMeta
	metaErr  error
}

func (f *fakeTranscripts) AppendTurn(_ context.Context, _ string, msgs []domain.ChatMessage) error {
	if f.appendEr != nil {
		return f.appendEr
	}
	f.turns = append(f.turns, msgs)
	return nil
}

func (f *fakeTranscripts) GetTranscript(_ context.Context, _ string, limit int) ([]domain.ChatMessage, error) {
	f.limit = limit
	return f.history, f.readErr
}

func (f *fakeTranscripts) GetSessionMeta(_ context.Context, _ string) (domain.SessionMeta, bool, error) {
	if f.metaErr != nil || f.meta == nil {
		return domain.SessionMeta{}, false, f.metaErr
	}
	return *f.meta, true, nil
}

var errBoom = errors.New("boom")

func apiErr(status int, msg string) error {
	return &crm.APIRequestError{StatusCode: status, Message: msg}
}
