package usecase

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"pipedrive-agent/internal/crm"
	"pipedrive-agent/internal/domain"
	"pipedrive-agent/internal/format"
	"pipedrive-agent/internal/fuzzy"
)

// orgNotes resolves a spoken or typed organization name to the closest CRM
// organization and lists its notes.
type orgNotes struct {
	exec      CommandExecutor
	formatter *format.Formatter
}

// searchTerm lower-cases name and repairs the first "nodes" transcription slip.
func searchTerm(name string) string {
	return strings.Replace(strings.ToLower(name), "nodes", "notes", 1)
}

func (o orgNotes) lookup(ctx context.Context, name string) (string, error) {
	term := searchTerm(name)
	escaped := strings.ReplaceAll(url.QueryEscape(term), "+", "%20")

	res, err := o.exec.Execute(ctx, domain.Get("/organizations/search?term="+escaped))
	if err != nil {
		return "", &orgNotesError{err: err}
	}
	found, err := crm.DecodeData[domain.SearchResult[domain.Organization]](res)
	if err != nil {
		return "", &orgNotesError{err: err}
	}
	if len(found.Items) == 0 {
		return fmt.Sprintf("No organization found matching \"%s\"", name), nil
	}

	candidates := make([]domain.Organization, 0, len(found.Items))
	for _, it := range found.Items {
		if it.Item != nil {
			candidates = append(candidates, *it.Item)
		}
	}
	match, ok := fuzzy.Closest(term, candidates, func(o domain.Organization) string { return o.Name })
	if !ok {
		return fmt.Sprintf("No valid organization found matching \"%s\"", name), nil
	}
	org := match.Item

	res, err = o.exec.Execute(ctx, domain.Get(fmt.Sprintf("/notes?org_id=%d", org.ID)))
	if err != nil {
		return "", &orgNotesError{err: err}
	}
	notes, err := crm.DecodeData[[]domain.Note](res)
	if err != nil {
		return "", &orgNotesError{err: err}
	}
	if len(notes) == 0 {
		return fmt.Sprintf("No notes found for organization \"%s\"", org.Name), nil
	}

	lines := make([]string, 0, len(notes))
	for _, n := range notes {
		lines = append(lines, fmt.Sprintf("📝 %s: %s", o.formatter.Date(n.AddTime), n.Content))
	}
	return fmt.Sprintf("Notes for %s:\n\n%s", org.Name, strings.Join(lines, "\n\n")), nil
}
