package store

// Variable is one record in the append-only dialog variable log. Records are
// never mutated or deleted after creation; for a fixed (dialog key, key,
// sender) the most recent record by date_set is authoritative.
type Variable struct {
	ID int32

	// Sender may hold either a cleartext identifier or a protected one.
	Sender string

	// DialogKey scopes the variable to a script run namespace. Empty means
	// unscoped.
	DialogKey string

	Key   string
	Value string

	// DateSetTs is the authoritative ordering field.
	DateSetTs int64

	// LookupHash is a precomputed digest of the revealed sender, used for
	// indexed filtering without decrypting every row. Populated lazily on
	// rows that predate hashing.
	LookupHash *string
}

type FindVariable struct {
	ID         *int32
	DialogKey  *string
	Key        *string
	LookupHash *string

	// SetAtOrAfterTs / SetAtOrBeforeTs bound date_set inclusively.
	SetAtOrAfterTs  *int64
	SetAtOrBeforeTs *int64

	// NewestFirst orders by (date_set, id) descending; default is ascending.
	NewestFirst bool

	Limit *int
}

// UpdateVariable supports only identity-protection maintenance: sender
// re-encryption and lazy lookup-hash backfill. Values are immutable.
type UpdateVariable struct {
	ID int32

	Sender     *string
	LookupHash *string
}
