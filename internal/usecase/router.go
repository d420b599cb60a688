package usecase

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"pipedrive-agent/internal/crm"
)

var orgNotesPattern = regexp.MustCompile(`(?i)(?:get|show|find)?\s*(?:notes|nodes)\s+(?:for|from)\s+(?:organization|org|company)?\s*(.+)`)

// intent is one routing rule. Rules are tried in order and the first match
// handles the utterance.
type intent struct {
	name   string
	match  func(text string) (arg string, ok bool)
	handle func(ctx context.Context, arg string) (Turn, error)
}

func (a *Assistant) intents() []intent {
	return []intent{
		{
			name: "quick_prompt",
			match: func(text string) (string, bool) {
				qp, ok := quickPromptByText(text)
				return qp.action, ok
			},
			handle: func(ctx context.Context, action string) (Turn, error) {
				qp, _ := quickPromptByAction(action)
				return qp.run(a, ctx, 0)
			},
		},
		{
			name:  "org_notes",
			match: matchOrgNotes,
			handle: func(ctx context.Context, name string) (Turn, error) {
				text, err := orgNotes{exec: a.exec, formatter: a.formatter}.lookup(ctx, name)
				if err != nil {
					return Turn{}, err
				}
				return reply(nil, text), nil
			},
		},
		{
			name:   "command",
			match:  func(text string) (string, bool) { return text, true },
			handle: a.runGenerated,
		},
	}
}

func matchOrgNotes(text string) (string, bool) {
	m := orgNotesPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	name := strings.TrimSpace(m[1])
	return name, name != ""
}

// route dispatches an utterance that arrived with no pending state.
func (a *Assistant) route(ctx context.Context, text string) (string, Turn, error) {
	for _, in := range a.intents() {
		arg, ok := in.match(text)
		if !ok {
			continue
		}
		turn, err := in.handle(ctx, arg)
		return in.name, turn, err
	}
	return "", Turn{}, nil
}

// runGenerated is the fallback path: the model proposes a command, the
// executor runs it, and the formatted result is optionally rewritten.
func (a *Assistant) runGenerated(ctx context.Context, text string) (Turn, error) {
	raw, err := a.generator.Generate(ctx, text)
	if err != nil {
		return Turn{}, err
	}
	cmd, err := crm.ParseCommand(raw)
	if err != nil {
		return Turn{}, err
	}
	a.logger.Debug("executing generated command", zap.String("command", cmd.String()))

	res, err := a.exec.Execute(ctx, cmd)
	if err != nil {
		return Turn{}, err
	}
	summary := a.formatter.Response(res.Body)
	return reply(nil, a.rewrite(ctx, text, summary)), nil
}

// rewrite falls back to the formatted summary on any failure.
func (a *Assistant) rewrite(ctx context.Context, text, summary string) string {
	if a.rewriter == nil {
		return summary
	}
	out, err := a.rewriter.Rewrite(ctx, text, summary)
	if err != nil {
		a.logger.Warn("response rewrite failed, using formatted summary", zap.Error(err))
		return summary
	}
	return out
}
