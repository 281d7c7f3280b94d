package types

// State is the local lifecycle state of an entity relative to the remote
// store.
type State int

// Entity states. Every state except StateClean means the entity has a
// pending remote operation.
const (
	StateClean State = iota
	StateCreate
	StateUpdate
	StateDelete
)

var stateNames = [...]string{
	StateClean:  "clean",
	StateCreate: "create",
	StateUpdate: "update",
	StateDelete: "delete",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
