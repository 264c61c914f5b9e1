package collector

// PowerState tracks whether a device group is drawing power.
//
// State is kept per device gid, carried across polling cycles for the
// lifetime of the process, and never persisted: a restart re-seeds it from
// the first observation.
type PowerState int

// Power states. The zero value is PowerUnknown so a map lookup for a gid
// never seen before yields the correct starting state.
const (
	PowerUnknown PowerState = iota
	PowerOn
	PowerOff
)

// Transition is an emitted on/off event marking a threshold crossing.
type Transition string

// Transition values. TransitionNone means no event was emitted.
const (
	TransitionNone Transition = ""
	TransitionOn   Transition = "on"
	TransitionOff  Transition = "off"
)

// DetectTransition applies one wattage reading to a power state.
//
// It is pure hysteresis with a single threshold and no debounce window:
// a single reading crossing the threshold flips the state immediately.
//
// The very first observation (prev == PowerUnknown) always emits a
// transition, seeding the hysteresis from the reading itself.
//
// Parameters:
//   - prev: State before this reading
//   - watts: The new reading
//   - threshold: Crossing threshold in watts
//
// Returns:
//   - Transition: "on", "off", or TransitionNone if the state did not change
//   - PowerState: State after this reading
func DetectTransition(prev PowerState, watts, threshold float64) (Transition, PowerState) {
	switch {
	case prev == PowerUnknown:
		if watts > threshold {
			return TransitionOn, PowerOn
		}
		return TransitionOff, PowerOff

	case prev == PowerOn && watts < threshold:
		return TransitionOff, PowerOff

	case prev == PowerOff && watts > threshold:
		return TransitionOn, PowerOn
	}

	return TransitionNone, prev
}
