package signal

// Kind names a data-layer lifecycle signal.
type Kind string

const (
	// KindSave fires after an entity is written. Event.Created tells inserts from updates.
	KindSave Kind = "post_save"
	// KindDelete fires before an entity is removed.
	KindDelete Kind = "pre_delete"
	// KindBulkUpdate is emitted by the signaling query set after a bulk update,
	// since native bulk writes bypass per-row signals.
	KindBulkUpdate Kind = "bulk_update"
)

// Kinds lists every kind the bus knows how to classify.
func Kinds() []Kind { return []Kind{KindSave, KindBulkUpdate, KindDelete} }

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindSave, KindDelete, KindBulkUpdate:
		return true
	default:
		return false
	}
}

// Operation is the label the classifier attaches to an event before handler invocation.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// EntityType tags the kind of entity a signal originates from.
type EntityType string

// AllEntities is the wildcard registration scope: it matches every entity type.
const AllEntities EntityType = "ALL"

// IsWildcard reports whether e is the wildcard scope.
func (e EntityType) IsWildcard() bool { return e == AllEntities }
