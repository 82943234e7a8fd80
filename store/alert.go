package store

import "encoding/json"

// Alert is a notification raised from within a dialog turn. Alerts stay
// unread until a read time is recorded in their metadata, exactly once.
type Alert struct {
	ID int32

	// Sender may hold either a cleartext identifier or a protected one.
	Sender string

	DialogID *int32

	Message string

	AddedTs       int64
	LastUpdatedTs int64

	// Metadata is a JSON object; the read_time key records when the alert
	// was read.
	Metadata string
}

// IsUnread reports whether no read time has been recorded yet. Malformed
// metadata counts as unread.
func (a *Alert) IsUnread() bool {
	if a.Metadata == "" {
		return true
	}

	var metadata map[string]any
	if err := json.Unmarshal([]byte(a.Metadata), &metadata); err != nil {
		return true
	}

	return metadata["read_time"] == nil
}

// MarkRead returns updated metadata carrying the read time. The original
// metadata is preserved; malformed metadata is replaced.
func (a *Alert) MarkRead(readTime string) string {
	metadata := map[string]any{}

	if a.Metadata != "" {
		_ = json.Unmarshal([]byte(a.Metadata), &metadata)
	}

	metadata["read_time"] = readTime

	encoded, err := json.Marshal(metadata)
	if err != nil {
		return a.Metadata
	}

	return string(encoded)
}

type FindAlert struct {
	ID       *int32
	DialogID *int32
}

type UpdateAlert struct {
	ID int32

	Sender        *string
	Metadata      *string
	LastUpdatedTs *int64
}
