package ai

// scoreTable is the single source of truth for ranking.
var scoreTable = map[Verdict]map[Priority]int{
	VerdictHigh:   {PriorityTop: 95, PriorityStrong: 85, PriorityBasic: 75},
	VerdictMedium: {PriorityTop: 65, PriorityStrong: 55, PriorityBasic: 45},
	VerdictLow:    {PriorityTop: 40, PriorityStrong: 32, PriorityBasic: 25},
}

const mismatchScore = 15

// Score maps a verdict and priority to a score in [0, 100].
// Mismatch scores the same for every priority; an unknown priority counts as basic.
func Score(verdict Verdict, priority Priority) int {
	row, ok := scoreTable[verdict]
	if !ok {
		return mismatchScore
	}
	if score, ok := row[priority]; ok {
		return score
	}
	return row[PriorityBasic]
}

// Recommend maps a verdict to a coarse action label.
func Recommend(verdict Verdict) string {
	switch verdict {
	case VerdictHigh:
		return RecommendInterview
	case VerdictMedium, VerdictLow:
		return RecommendMaybe
	default:
		return RecommendReject
	}
}

// EnforceMustHaves forces a Mismatch verdict when any requirement is unsatisfied.
// It reports whether the verdict was changed.
func EnforceMustHaves(e *Evaluation) bool {
	if e == nil || e.Verdict == VerdictMismatch {
		return false
	}
	for _, req := range e.Requirements {
		if req.Status == RequirementUnsatisfied {
			e.Verdict = VerdictMismatch
			return true
		}
	}
	return false
}

// Unsatisfied returns the names of unsatisfied requirements.
func (e *Evaluation) Unsatisfied() []string {
	var names []string
	for _, req := range e.Requirements {
		if req.Status == RequirementUnsatisfied {
			names = append(names, req.Name)
		}
	}
	return names
}
