package fleet

// State is the supervisor's externally visible state.
type State string

// Supervisor states.
const (
	StateIdle     State = "idle"     // nothing running, ready to start
	StateStarting State = "starting" // batch in flight
	StateRunning  State = "running"  // last batch left at least one survivor
	StateStopping State = "stopping" // stop-all in flight
)

// Busy reports whether the state rejects a new start request.
func (s State) Busy() bool {
	return s == StateStarting || s == StateStopping
}
