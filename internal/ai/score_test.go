package ai

import "testing"

func TestScoreTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		verdict  Verdict
		priority Priority
		expect   int
	}{
		{VerdictHigh, PriorityTop, 95},
		{VerdictHigh, PriorityStrong, 85},
		{VerdictHigh, PriorityBasic, 75},
		{VerdictMedium, PriorityTop, 65},
		{VerdictMedium, PriorityStrong, 55},
		{VerdictMedium, PriorityBasic, 45},
		{VerdictLow, PriorityTop, 40},
		{VerdictLow, PriorityStrong, 32},
		{VerdictLow, PriorityBasic, 25},
		{VerdictMismatch, PriorityTop, 15},
		{VerdictMismatch, PriorityStrong, 15},
		{VerdictMismatch, PriorityBasic, 15},
		{VerdictHigh, Priority("unknown"), 75},
		{Verdict("unknown"), PriorityTop, 15},
	}

	for _, tt := range tests {
		first := Score(tt.verdict, tt.priority)
		second := Score(tt.verdict, tt.priority)
		if first != tt.expect || second != first {
			t.Fatalf("Score(%s, %s) = %d then %d, want %d", tt.verdict, tt.priority, first, second, tt.expect)
		}
		if first < 0 || first > 100 {
			t.Fatalf("score %d out of range", first)
		}
	}
}

func TestRecommend(t *testing.T) {
	t.Parallel()

	for verdict, expect := range map[Verdict]string{
		VerdictHigh:     RecommendInterview,
		VerdictMedium:   RecommendMaybe,
		VerdictLow:      RecommendMaybe,
		VerdictMismatch: RecommendReject,
	} {
		if got := Recommend(verdict); got != expect {
			t.Fatalf("Recommend(%s) = %q, want %q", verdict, got, expect)
		}
	}
}

func TestEnforceMustHaves(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		eval    Evaluation
		expect  Verdict
		changed bool
	}{
		{
			name: "unsatisfied requirement forces mismatch",
			eval: Evaluation{
				Verdict:   VerdictHigh,
				Priority:  PriorityTop,
				Strengths: []string{"everything"},
				Requirements: []Requirement{
					{Name: "Go", Status: RequirementSatisfied},
					{Name: "Kubernetes", Status: RequirementUnsatisfied},
				},
			},
			expect:  VerdictMismatch,
			changed: true,
		},
		{
			name: "empty lists do not matter",
			eval: Evaluation{
				Verdict:      VerdictMedium,
				Requirements: []Requirement{{Name: "Go", Status: RequirementUnsatisfied}},
			},
			expect:  VerdictMismatch,
			changed: true,
		},
		{
			name: "uncertain keeps verdict",
			eval: Evaluation{
				Verdict:      VerdictLow,
				Requirements: []Requirement{{Name: "Go", Status: RequirementUncertain}},
			},
			expect: VerdictLow,
		},
		{
			name: "already mismatch",
			eval: Evaluation{
				Verdict:      VerdictMismatch,
				Requirements: []Requirement{{Name: "Go", Status: RequirementUnsatisfied}},
			},
			expect: VerdictMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			eval := tt.eval
			changed := EnforceMustHaves(&eval)
			if eval.Verdict != tt.expect || changed != tt.changed {
				t.Fatalf("got verdict %s changed=%v, want %s changed=%v", eval.Verdict, changed, tt.expect, tt.changed)
			}
		})
	}
}

func TestParseVerdictAndPriority(t *testing.T) {
	t.Parallel()

	if v, ok := ParseVerdict(" mismatch "); !ok || v != VerdictMismatch {
		t.Fatalf("unexpected verdict %q", v)
	}
	if _, ok := ParseVerdict("great"); ok {
		t.Fatalf("expected unknown verdict to fail")
	}
	if p, ok := ParsePriority("TOP"); !ok || p != PriorityTop {
		t.Fatalf("unexpected priority %q", p)
	}
}
