package domain

import "fmt"

// StageMapping maps pipeline stage ids to their labels.
var StageMapping = map[int]string{
	1: "Qualified",
	2: "Contact Made",
	3: "Prospect Qualified",
	4: "Needs Defined",
	5: "Proposal Made",
	6: "Negotiations Started",
}

const (
	StageProspectQualified   = 3
	StageProposalMade        = 5
	StageNegotiationsStarted = 6
)

// StageName resolves a stage id to its label. Unmapped ids render as
// "Unknown stage (<id>)".
func StageName(id int) string {
	if name, ok := StageMapping[id]; ok {
		return name
	}
	return fmt.Sprintf("Unknown stage (%d)", id)
}
