package store

// TemplateVariable is a static default (key, value) pair used to seed a new
// session's dialog metadata. Entries with a nil script apply to all scripts;
// script-scoped entries override and extend the global set.
type TemplateVariable struct {
	ID       int32
	ScriptID *int32
	Key      string
	Value    string
}

type FindTemplateVariable struct {
	ID       *int32
	ScriptID *int32

	// GlobalOnly selects entries with no script scope.
	GlobalOnly bool
}

type DeleteTemplateVariable struct {
	ID int32
}
