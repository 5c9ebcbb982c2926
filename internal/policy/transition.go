package policy

// Outcome summarizes what happened to a user on one evaluated day.
// Next maps (current state, outcome) to the next retention state using
// only the closed transition table.
type Outcome struct {
	// Qualified: a qualifying action (check-in, group check-in, rest)
	// was completed for the day.
	Qualified bool

	// Missed: the day elapsed with no qualifying action. A freeze-held
	// day still counts as missed for retention purposes.
	Missed bool

	// Resurrected: an explicit resurrection action was taken.
	Resurrected bool

	// Pardoned: a pardon was granted for a fracture.
	Pardoned bool

	// StreakCount after the day's streak resolution.
	StreakCount int

	// ConsecutiveMisses after the day's resolution.
	ConsecutiveMisses int

	// RecoveryProgress: consecutive qualifying days while RECOVERING.
	RecoveryProgress int
}

// Next computes the retention state following one day's outcome.
//
// Deterministic: the same (current, outcome) pair always yields the same
// state, regardless of when the evaluation runs. Every returned state is
// reachable via the transition table; when no edge fires the current
// state is kept.
func (t *Table) Next(current State, out Outcome) State {
	next := t.propose(current, out)
	if next == current {
		return current
	}
	// The propose rules only emit table edges, but the table is the
	// authority: an edge missing from the CUE source never fires.
	if !t.Allowed(current, next) {
		return current
	}
	return next
}

func (t *Table) propose(current State, out Outcome) State {
	switch current {
	case StateOnboarding:
		if out.Missed {
			return StateAtRisk
		}
		if out.Qualified && out.StreakCount >= t.EngagedStreak {
			return StateEngaged
		}

	case StateEngaged:
		if out.Missed {
			return StateAtRisk
		}
		if out.Qualified && out.StreakCount >= t.MomentumStreak {
			return StateMomentum
		}

	case StateMomentum:
		if out.Missed {
			// The only way down from momentum. Direct fracture is not
			// an edge; the user must degrade through AT_RISK first.
			return StateAtRisk
		}

	case StateAtRisk:
		if out.Qualified {
			return StateRecovering
		}
		if out.Missed {
			return StateStreakFractured
		}

	case StateRecovering:
		if out.Missed {
			return StateAtRisk
		}
		if out.Qualified && out.RecoveryProgress >= t.RecoveryTarget {
			return StateEngaged
		}

	case StateStreakFractured:
		if out.Qualified || out.Pardoned {
			return StateRecovering
		}
		if out.Missed && out.ConsecutiveMisses >= t.DormancyDays {
			return StateDormant
		}

	case StateDormant:
		// Only an explicit resurrection exits dormancy.
		if out.Resurrected {
			return StateOnboarding
		}
	}

	return current
}
