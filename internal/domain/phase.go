package domain

// Phase is the time-derived state of a sale. It is never persisted.
type Phase string

const (
	PhaseUpcoming Phase = "UPCOMING"
	PhaseActive   Phase = "ACTIVE"
	PhaseEnded    Phase = "ENDED"
)

// String returns the string representation of Phase.
func (p Phase) String() string {
	return string(p)
}

// PhaseAt computes the phase for a [start, end) window at now.
func PhaseAt(start, end, now int64) Phase {
	switch {
	case now < start:
		return PhaseUpcoming
	case now < end:
		return PhaseActive
	default:
		return PhaseEnded
	}
}
