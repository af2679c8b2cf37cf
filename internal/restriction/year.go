package restriction

// Outcome is the result of applying a year limit to one user.
type Outcome int

const (
	NotMatched Outcome = iota
	Matched
)

func (o Outcome) String() string {
	if o == Matched {
		return "matched"
	}
	return "not_matched"
}

// EvaluateYearLimit compares the user's enrollment year with the rule's target.
// A user without a derivable year (ok == false) never matches, and neither
// does any rule with an unknown operator.
func EvaluateYearLimit(limit YearLimit, year int, ok bool) Outcome {
	if !ok {
		return NotMatched
	}
	var hit bool
	switch limit.Operator {
	case OpLT:
		hit = year < limit.TargetYear
	case OpLTE:
		hit = year <= limit.TargetYear
	case OpEQ:
		hit = year == limit.TargetYear
	case OpGTE:
		hit = year >= limit.TargetYear
	case OpGT:
		hit = year > limit.TargetYear
	}
	if hit {
		return Matched
	}
	return NotMatched
}
