package entitlement

// Subject identifies the externally-owned entity consuming features by a
// stable (type, id) pair. The ledger stores it as an opaque foreign key and
// never materializes the entity itself.
type Subject struct {
	Type string
	ID   string
}

// String returns "type:id" for logging
func (s Subject) String() string {
	return s.Type + ":" + s.ID
}

// IsZero reports whether the subject is unset
func (s Subject) IsZero() bool {
	return s.Type == "" && s.ID == ""
}

// Billable is implemented by anything that can be metered against a plan:
// tenants, users, workspaces. Implementations only need a stable type tag
// and identifier.
type Billable interface {
	SubjectType() string
	SubjectID() string
}

// SubjectOf resolves a billable entity into its ledger identity
func SubjectOf(b Billable) Subject {
	return Subject{Type: b.SubjectType(), ID: b.SubjectID()}
}
