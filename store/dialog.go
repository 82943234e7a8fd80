package store

import "encoding/json"

// DialogScript is a stored dialog script definition, resolved by identifier
// when a launch is requested.
type DialogScript struct {
	ID int32

	Identifier string
	Name       string

	// Definition is the script body as a JSON list of node objects. Its
	// interpretation belongs to the interpreter collaborator.
	Definition string

	// Labels is a JSON list of label strings used to select labeled
	// template-variable variants.
	Labels string
}

// LabelsList decodes the script's labels. Malformed labels decode to none.
func (s *DialogScript) LabelsList() []string {
	if s.Labels == "" {
		return nil
	}

	var labels []string
	if err := json.Unmarshal([]byte(s.Labels), &labels); err != nil {
		return nil
	}

	return labels
}

// Dialog is an interpreter-owned execution snapshot of a script, tied
// one-to-one with a session.
type Dialog struct {
	ID int32

	// Key is the dialog key variables recorded during this run are scoped to.
	Key string

	ScriptID *int32

	// Snapshot is the interpreter's versioned execution state as JSON.
	Snapshot string

	// Metadata carries the layered template variables and launch overrides
	// as a JSON object.
	Metadata string

	StartedTs  int64
	FinishedTs *int64

	FinishReason *string
}

// IsActive reports whether the interpreter run has not finished.
func (d *Dialog) IsActive() bool {
	return d.FinishedTs == nil
}

// MetadataMap decodes the dialog metadata. Malformed metadata decodes to an
// empty map.
func (d *Dialog) MetadataMap() map[string]any {
	metadata := map[string]any{}

	if d.Metadata != "" {
		_ = json.Unmarshal([]byte(d.Metadata), &metadata)
	}

	return metadata
}

type FindDialog struct {
	ID  *int32
	Key *string
}

type FindDialogScript struct {
	ID         *int32
	Identifier *string
}

type UpdateDialog struct {
	ID int32

	Snapshot     *string
	Metadata     *string
	FinishedTs   *int64
	FinishReason *string
}
