package usecase

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"pipedrive-agent/internal/crm"
	"pipedrive-agent/internal/domain"
)

// Quick prompt action ids accepted by RunAction.
const (
	ActionHighestDeal     = "highest_deal"
	ActionRecentProposals = "recent_proposals"
	ActionTopNegotiation  = "top_negotiation"
	ActionQualifiedNotes  = "qualified_notes"
	ActionAddStageNote    = "add_stage_note"
)

// quickPrompt is a canned query. Stateful prompts open the note dialogue and
// replace any pending state; the others leave it untouched.
type quickPrompt struct {
	action   string
	text     string
	stateful bool
	run      func(a *Assistant, ctx context.Context, stageID int) (Turn, error)
}

var quickPrompts = []quickPrompt{
	{action: ActionHighestDeal, text: "Get the highest deal", run: (*Assistant).highestDeal},
	{action: ActionRecentProposals, text: "Proposal made in last 5 days", run: (*Assistant).recentProposals},
	{action: ActionTopNegotiation, text: "Top Deal in negotiation stage", run: (*Assistant).topNegotiation},
	{action: ActionQualifiedNotes, text: "Get notes for qualified prospects", run: (*Assistant).qualifiedNotes},
	{action: ActionAddStageNote, text: "Add Note to Prospect Qualified Deal", stateful: true, run: (*Assistant).addStageNote},
}

func quickPromptByAction(action string) (quickPrompt, bool) {
	action = strings.TrimSpace(action)
	for _, qp := range quickPrompts {
		if qp.action == action {
			return qp, true
		}
	}
	return quickPrompt{}, false
}

func quickPromptByText(text string) (quickPrompt, bool) {
	text = strings.TrimSpace(text)
	for _, qp := range quickPrompts {
		if strings.EqualFold(qp.text, text) {
			return qp, true
		}
	}
	return quickPrompt{}, false
}

// highestDeal trusts the API only to say whether any deal exists; the ranking
// is redone client-side on the numeric value.
func (a *Assistant) highestDeal(ctx context.Context, _ int) (Turn, error) {
	res, err := a.exec.Execute(ctx, domain.Get("/deals?status=open&sort=value DESC&limit=1"))
	if err != nil {
		return Turn{}, err
	}
	top, err := crm.DecodeData[[]json.RawMessage](res)
	if err != nil {
		return Turn{}, err
	}
	if len(top) == 0 {
		return reply(nil, "No deals found"), nil
	}

	res, err = a.exec.Execute(ctx, domain.Get("/deals?status=open"))
	if err != nil {
		return Turn{}, err
	}
	all, err := crm.DecodeData[[]json.RawMessage](res)
	if err != nil {
		return Turn{}, err
	}
	if len(all) == 0 {
		return reply(nil, "No deals found"), nil
	}
	slices.SortStableFunc(all, func(x, y json.RawMessage) int {
		return cmp.Compare(dealValue(y), dealValue(x))
	})
	return reply(nil, "Here's the deal with the highest value:\n\n"+a.formatter.Records(all[:1])), nil
}

func (a *Assistant) recentProposals(ctx context.Context, _ int) (Turn, error) {
	since := a.now().UTC().AddDate(0, 0, -5).Format("2006-01-02")
	res, err := a.exec.Execute(ctx, domain.Get(fmt.Sprintf("/deals?status=open&stage_id=%d&start_date=%s", domain.StageProposalMade, since)))
	if err != nil {
		return Turn{}, err
	}
	return reply(nil, "Here are the deals in Proposal Made stage from the last 5 days:\n\n"+a.formatter.Response(res.Body)), nil
}

func (a *Assistant) topNegotiation(ctx context.Context, _ int) (Turn, error) {
	res, err := a.exec.Execute(ctx, domain.Get(fmt.Sprintf("/deals?status=open&stage_id=%d&sort=value DESC&limit=1", domain.StageNegotiationsStarted)))
	if err != nil {
		return Turn{}, err
	}
	return reply(nil, "Here's the top deal in Negotiations Started stage:\n\n"+a.formatter.Response(res.Body)), nil
}

func (a *Assistant) qualifiedNotes(ctx context.Context, _ int) (Turn, error) {
	res, err := a.exec.Execute(ctx, domain.Get(fmt.Sprintf("/deals?status=open&stage_id=%d", domain.StageProspectQualified)))
	if err != nil {
		return Turn{}, err
	}
	deals, err := crm.DecodeData[[]domain.Deal](res)
	if err != nil {
		return Turn{}, err
	}
	if len(deals) == 0 {
		return reply(nil, "No qualified prospects found."), nil
	}

	ids := make([]string, 0, len(deals))
	for _, d := range deals {
		ids = append(ids, strconv.FormatInt(d.ID, 10))
	}
	res, err = a.exec.Execute(ctx, domain.Get("/notes?deal_id="+strings.Join(ids, ",")))
	if err != nil {
		return Turn{}, err
	}
	return reply(nil, "Here are the notes for Prospect Qualified deals:\n\n"+a.formatter.Response(res.Body)), nil
}

func (a *Assistant) addStageNote(ctx context.Context, stageID int) (Turn, error) {
	if stageID == 0 {
		stageID = domain.StageProspectQualified
	}
	return a.notes.Start(ctx, stageID, domain.StageName(stageID)), nil
}

// dealValue reads a deal's value as a number, accepting numeric strings.
// Anything else counts as zero.
func dealValue(raw json.RawMessage) float64 {
	var d struct {
		Value any `json:"value"`
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return 0
	}
	switch v := d.Value.(type) {
	case float64:
		return v
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}
