package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"pipedrive-agent/internal/crm"
	"pipedrive-agent/internal/domain"
)

const (
	msgInvalidOrg    = "Invalid organization number. Please try again."
	msgInvalidDeal   = "Invalid deal number. Please try again."
	msgNoteFailed    = "Error: Failed to add note"
	msgEmptyNote     = `Please enter a note after the deal number (e.g., "1 Called about proposal status")`
	noteUsageExample = `Please enter the deal number followed by your note (e.g., "1 Called about proposal status")`
	singleNotePrompt = "Please enter your note or use voice input."
	orgSelectionHint = "Please enter the organization number to see its deals."
)

// Turn is the outcome of one state machine step: the state to store (nil
// clears the slot) and the assistant replies to emit.
type Turn struct {
	State   domain.ConversationState
	Replies []string
}

func reply(state domain.ConversationState, msgs ...string) Turn {
	return Turn{State: state, Replies: msgs}
}

// NoteFlow is the add-note dialogue. It holds no state of its own; callers
// pass the pending state in and store whatever comes back.
type NoteFlow struct {
	exec CommandExecutor
}

func NewNoteFlow(exec CommandExecutor) (*NoteFlow, error) {
	if exec == nil {
		return nil, errors.New("usecase: command executor must not be nil")
	}
	return &NoteFlow{exec: exec}, nil
}

// Start lists the open deals in a stage and opens the dialogue.
func (f *NoteFlow) Start(ctx context.Context, stageID int, stageName string) Turn {
	res, err := f.exec.Execute(ctx, domain.Get(fmt.Sprintf("/deals?status=open&stage_id=%d", stageID)))
	if err != nil {
		return reply(nil, "Error: "+describe(err))
	}
	deals, err := crm.DecodeData[[]domain.Deal](res)
	if err != nil {
		return reply(nil, "Error: "+describe(err))
	}

	switch len(deals) {
	case 0:
		return reply(nil, fmt.Sprintf("No deals found in %s stage.", stageName))
	case 1:
		d := deals[0]
		return reply(
			domain.AwaitingSingleNote{Deal: d, StageName: stageName},
			fmt.Sprintf("Found one deal in %s stage:\n%s (%s)\n\n%s", stageName, d.Title, d.Amount(), singleNotePrompt),
		)
	}

	byOrg := make(map[string][]domain.Deal)
	var orgs []string
	for _, d := range deals {
		name := d.OrgName()
		if _, seen := byOrg[name]; !seen {
			orgs = append(orgs, name)
		}
		byOrg[name] = append(byOrg[name], d)
	}

	lines := make([]string, 0, len(orgs))
	for i, name := range orgs {
		lines = append(lines, fmt.Sprintf("%d. %s (%d deals)", i+1, name, len(byOrg[name])))
	}
	return reply(
		domain.AwaitingOrgSelection{DealsByOrg: byOrg, OrgList: orgs, StageName: stageName},
		fmt.Sprintf("Found deals in %s stage for these organizations:\n\n%s\n\n%s", stageName, strings.Join(lines, "\n"), orgSelectionHint),
	)
}

// Advance consumes one raw input against the pending state. Only an invalid
// organization number keeps the state; every other outcome clears it.
func (f *NoteFlow) Advance(ctx context.Context, state domain.ConversationState, input string) Turn {
	input = strings.TrimSpace(input)

	switch st := state.(type) {
	case domain.AwaitingSingleNote:
		return f.addNote(ctx, st.Deal, input, fmt.Sprintf("✅ Note added to deal \"%s\"", st.Deal.Title))

	case domain.AwaitingOrgSelection:
		idx, ok := parseIndex(input, len(st.OrgList))
		if !ok {
			return reply(st, msgInvalidOrg)
		}
		org := st.OrgList[idx]
		deals := st.DealsByOrg[org]
		lines := make([]string, 0, len(deals))
		for i, d := range deals {
			lines = append(lines, fmt.Sprintf("%d. %s (%s)", i+1, d.Title, d.Amount()))
		}
		return reply(
			domain.AwaitingNoteForDeal{Deals: deals, SelectedOrg: org, StageName: st.StageName},
			fmt.Sprintf("Deals for %s:\n\n%s\n\n%s", org, strings.Join(lines, "\n"), noteUsageExample),
		)

	case domain.AwaitingNoteForDeal:
		num, text, _ := strings.Cut(input, " ")
		idx, ok := parseIndex(num, len(st.Deals))
		if !ok {
			return reply(nil, msgInvalidDeal)
		}
		if strings.TrimSpace(text) == "" {
			return reply(nil, msgEmptyNote)
		}
		d := st.Deals[idx]
		return f.addNote(ctx, d, text, fmt.Sprintf("✅ Note added to deal \"%s\" for %s", d.Title, st.SelectedOrg))

	default:
		return reply(nil, "Error: no note is pending")
	}
}

func (f *NoteFlow) addNote(ctx context.Context, deal domain.Deal, content, success string) Turn {
	res, err := f.exec.Execute(ctx, domain.Post("/notes", map[string]any{
		"content": content,
		"deal_id": deal.ID,
	}))
	if err != nil {
		return reply(nil, "Error: "+describe(err))
	}
	if !res.Succeeded() {
		return reply(nil, msgNoteFailed)
	}
	return reply(nil, success)
}

// parseIndex reads a leading integer the way a lenient form field would
// ("2", " 2.", "2nd") and converts it to a 0-based index below n.
func parseIndex(s string, n int) (int, bool) {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	start := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == start {
		return 0, false
	}
	v, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	idx := v - 1
	if idx < 0 || idx >= n {
		return 0, false
	}
	return idx, true
}
