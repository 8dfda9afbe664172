package contact

// Manager is a discrete contact checker bound to one set of collision
// objects. Managers are not safe for concurrent use; callers serialize
// access.
type Manager interface {
	// ActiveCollisionObjects returns the links checked against everything else.
	ActiveCollisionObjects() []string
	// SetActiveCollisionObjects replaces the active link set.
	SetActiveCollisionObjects(names []string)

	// CollisionMarginData returns the margin configuration.
	CollisionMarginData() MarginData
	// SetCollisionMarginData replaces the margin configuration.
	SetCollisionMarginData(m MarginData)
	// SetDefaultCollisionMargin changes only the default margin.
	SetDefaultCollisionMargin(d float64)

	// IsContactAllowedFn returns the allowed-contact predicate.
	IsContactAllowedFn() IsContactAllowedFn
	// SetIsContactAllowedFn replaces the allowed-contact predicate.
	SetIsContactAllowedFn(fn IsContactAllowedFn)

	// SetCollisionObjectsTransform updates world poses by link name.
	// Unknown names are ignored.
	SetCollisionObjectsTransform(transforms map[string]Transform)

	// ContactTest runs one contact test.
	ContactTest(t TestType) (ResultMap, error)
}

// Factory builds a fresh manager, typically from the environment's current
// collision objects.
type Factory func() (Manager, error)
