package domain

// TranscriptEntry is a single archived transcript message.
type TranscriptEntry struct {
	PK        string
	SK        string
	SessionID string
	MessageID string
	Role      string
	Content   string
	TTL       int64
}

// SessionMeta stores aggregate session state for the transcript archive.
type SessionMeta struct {
	PK           string
	SK           string
	SessionID    string
	LastActivity string
	Turns        int
	TTL          int64
}
