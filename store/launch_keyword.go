package store

// WildcardKeyword is the fallback launch keyword matched when no literal
// keyword matches an unsolicited inbound message.
const WildcardKeyword = "*"

// LaunchKeyword maps a literal trigger phrase to a script identifier.
type LaunchKeyword struct {
	ID int32

	Keyword       string
	CaseSensitive bool

	// ScriptIdentifier names the script a match launches.
	ScriptIdentifier string

	// Priority orders matching attempts; lower values are tried first.
	Priority int32
}

type FindLaunchKeyword struct {
	ID      *int32
	Keyword *string
}

type DeleteLaunchKeyword struct {
	ID int32
}
