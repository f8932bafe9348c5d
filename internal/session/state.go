package session

// State is the controller's session state. Exactly one is current.
type State int

const (
	// Maintenance: no usable content server; the maintenance display (or a
	// retained preview) is on screen.
	Maintenance State = iota
	// Loading: a preview or full load for a content server is in flight.
	Loading
	// PresentingRemote: full content from a content server is on screen.
	PresentingRemote
	// PresentingLocal: the local fallback file is on screen.
	PresentingLocal
)

var stateNames = map[State]string{
	Maintenance:      "maintenance",
	Loading:          "loading",
	PresentingRemote: "presenting_remote",
	PresentingLocal:  "presenting_local",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// Presenting reports whether loaded, current content is on screen.
func (s State) Presenting() bool {
	return s == PresentingRemote || s == PresentingLocal
}
