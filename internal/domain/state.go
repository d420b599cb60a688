package domain

// ConversationState is the pending step of the add-note dialogue. A nil
// state means the next input goes to the intent router.
type ConversationState interface {
	conversationState()
}

// AwaitingSingleNote waits for note content for the only deal in a stage.
type AwaitingSingleNote struct {
	Deal      Deal
	StageName string
}

// AwaitingOrgSelection waits for a 1-based index into OrgList.
type AwaitingOrgSelection struct {
	DealsByOrg map[string][]Deal
	OrgList    []string
	StageName  string
}

// AwaitingNoteForDeal waits for "<index> <note text>".
type AwaitingNoteForDeal struct {
	Deals       []Deal
	SelectedOrg string
	StageName   string
}

func (AwaitingSingleNote) conversationState()   {}
func (AwaitingOrgSelection) conversationState() {}
func (AwaitingNoteForDeal) conversationState()  {}
