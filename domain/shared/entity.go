package shared

// Entity is anything the entity service can store.
// Entities are identified by ID; two entities with different IDs are different
// even if every other attribute matches.
type Entity interface {
	ID() string
}

// IdentityAssigner is implemented by entities whose identity is assigned by
// the repository on first persist.
type IdentityAssigner interface {
	AssignID(id string)
}

// HasID reports whether e already carries an identity.
func HasID(e Entity) bool {
	return e != nil && e.ID() != ""
}

// IsEntity marker helper for compile time checks.
// Usage: var _ = IsEntity(&Note{})
func IsEntity(e Entity) Entity {
	return e
}
