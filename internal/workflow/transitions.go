package workflow

// StateUnknown is the implicit zero state: no stored workflow record.
// Stored state is ephemeral (it expires), while the user registry is
// authoritative, so transitions out of the unknown state are permitted
// both into awaiting_phone (first contact) and straight into complete
// (a phone share or skip arriving after the stored state expired).
const StateUnknown State = ""

var validTransitions = map[State][]State{
	StateUnknown: {
		StateAwaitingPhone,
		StateComplete,
	},
	StateAwaitingPhone: {
		StateComplete,
	},
}

// IsTransitionAllowed reports whether moving from one state to another is
// valid. Re-entering the current state is always allowed: duplicate
// events (a second skip, a repeated contact share) must stay idempotent.
func IsTransitionAllowed(from, to State) bool {
	if from == to {
		return true
	}

	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}

	for _, state := range allowed {
		if state == to {
			return true
		}
	}

	return false
}
