package enforcement

import "fmt"

// Tier is the privilege level assigned to an action. The integer values
// define the ordering: Observe < Act < Commit. Tiers are a closed set;
// adding one is a policy schema change.
type Tier int

const (
	TierObserve Tier = iota
	TierAct
	TierCommit
)

func (t Tier) String() string {
	switch t {
	case TierObserve:
		return "observe"
	case TierAct:
		return "act"
	case TierCommit:
		return "commit"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// ParseTier maps a policy document tier string to a Tier. Only the exact
// lowercase names are accepted.
func ParseTier(s string) (Tier, error) {
	switch s {
	case "observe":
		return TierObserve, nil
	case "act":
		return TierAct, nil
	case "commit":
		return TierCommit, nil
	default:
		return 0, fmt.Errorf("unknown tier %q", s)
	}
}
