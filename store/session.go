package store

// Session identifies one run of a dialog script against one destination.
type Session struct {
	ID  int32
	UID string

	// Destination may hold either a cleartext identifier or a protected one.
	// Once protected it is never written back as cleartext.
	Destination string

	DialogID *int32

	StartedTs     int64
	LastUpdatedTs int64

	// FinishedTs is nil while the session is open. Set exactly once.
	FinishedTs *int64

	// LatestVariables caches the materialized variable log as of
	// LastVariableUpdateTs. Never authoritative, only an optimization.
	LatestVariables      string
	LastVariableUpdateTs *int64

	// TransmissionChannel pins which transport route replies must use.
	TransmissionChannel *string
}

// IsOpen reports whether the session has not finished.
func (s *Session) IsOpen() bool {
	return s.FinishedTs == nil
}

type FindSession struct {
	ID       *int32
	UID      *string
	DialogID *int32

	// Open filters on finished_ts being null (true) or non-null (false).
	Open *bool

	// NewestFirst orders by started_ts descending; the default ordering is
	// ascending by started_ts for export.
	NewestFirst bool

	Limit *int
}

type UpdateSession struct {
	ID int32

	Destination          *string
	LastUpdatedTs        *int64
	FinishedTs           *int64
	LatestVariables      *string
	LastVariableUpdateTs *int64
	TransmissionChannel  *string
}

type DeleteSession struct {
	ID int32
}
