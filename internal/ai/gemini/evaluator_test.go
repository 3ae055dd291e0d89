package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/spigell/hh-screener/internal/ai"
	"go.uber.org/zap"
)

type stubGenerator struct {
	response   string
	err        error
	calls      int
	lastSystem string
	lastPrompt string
}

func (s *stubGenerator) Generate(_ context.Context, system, prompt string) (*Generation, error) {
	s.calls++
	s.lastSystem = system
	s.lastPrompt = prompt
	if s.err != nil {
		return nil, s.err
	}
	return &Generation{Text: s.response, Usage: ai.Usage{PromptTokens: 10, OutputTokens: 5}}, nil
}

func (s *stubGenerator) Model() string {
	return "stub-model"
}

const validEvaluation = `{
  "requirements": [
    {"name": "Go", "status": "Satisfied", "evidence": "5 years of Go"},
    {"name": "PostgreSQL", "status": "uncertain"}
  ],
  "verdict": "high",
  "priority": "Top",
  "sub_scores": {"skills": 8.6, "experience": 7},
  "strengths": ["Go"],
  "concerns": [],
  "red_flags": null,
  "justification": "Strong backend engineer",
  "interview_questions": ["How do you tune PostgreSQL?"]
}`

var (
	testVacancy   = ai.VacancyInput{ID: "v1", Title: "Go Developer", Description: "Build services", KeySkills: []string{"Go"}}
	testCandidate = ai.CandidateInput{ApplicationID: "a1", ResumeID: "r1", ResumeTitle: "Backend", Resume: json.RawMessage(`{"skills":["Go"]}`)}
)

func TestEvaluatorEvaluate(t *testing.T) {
	stub := &stubGenerator{response: "```json\n" + validEvaluation + "\n```"}
	evaluator, err := NewEvaluator(stub, zap.NewNop(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assessment, err := evaluator.Evaluate(context.Background(), testVacancy, testCandidate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	evaluation := assessment.Evaluation
	if evaluation.Verdict != ai.VerdictHigh || evaluation.Priority != ai.PriorityTop {
		t.Fatalf("unexpected verdict/priority: %s/%s", evaluation.Verdict, evaluation.Priority)
	}
	if evaluation.Requirements[0].Status != ai.RequirementSatisfied {
		t.Fatalf("expected normalized status, got %q", evaluation.Requirements[0].Status)
	}
	if evaluation.SubScores["skills"] != 9 {
		t.Fatalf("expected rounded sub score, got %d", evaluation.SubScores["skills"])
	}
	if evaluation.RedFlags == nil || len(evaluation.RedFlags) != 0 {
		t.Fatalf("expected empty red flags, got %v", evaluation.RedFlags)
	}
	if assessment.Model != "stub-model" || assessment.Usage.PromptTokens != 10 {
		t.Fatalf("unexpected provenance: %+v", assessment)
	}
	if len(assessment.Raw) == 0 {
		t.Fatalf("expected raw output to be kept")
	}

	if !strings.Contains(stub.lastPrompt, `"title": "Go Developer"`) || !strings.Contains(stub.lastPrompt, `{"skills":["Go"]}`) {
		t.Fatalf("prompt does not embed vacancy and resume: %s", stub.lastPrompt)
	}
	if strings.Contains(stub.lastPrompt, "{{") {
		t.Fatalf("prompt has unresolved placeholders")
	}
	if strings.TrimSpace(stub.lastSystem) == "" {
		t.Fatalf("expected system instruction")
	}
}

func TestEvaluatorParseErrors(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{name: "not json", response: "I think the candidate is great"},
		{name: "unknown verdict", response: strings.Replace(validEvaluation, `"high"`, `"excellent"`, 1)},
		{name: "missing requirements", response: `{"verdict":"High","priority":"top","strengths":[],"concerns":[],"justification":"x","interview_questions":[]}`},
		{name: "bad status", response: strings.Replace(validEvaluation, `"uncertain"`, `"maybe"`, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubGenerator{response: tt.response}
			evaluator, err := NewEvaluator(stub, zap.NewNop(), 0)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			_, err = evaluator.Evaluate(context.Background(), testVacancy, testCandidate)
			if !errors.Is(err, ai.ErrParse) {
				t.Fatalf("expected ErrParse, got %v", err)
			}
			if stub.calls != 1 {
				t.Fatalf("parse errors must not be retried, got %d calls", stub.calls)
			}
		})
	}
}

func TestEvaluatorNormalizesOutOfRangeAnswers(t *testing.T) {
	stub := &stubGenerator{response: `{
  "requirements": [
    {"name": "Go", "status": "satisfied"},
    {"name": "PostgreSQL", "status": "satisfied"},
    {"name": "Kubernetes", "status": "uncertain"},
    {"name": "Kafka", "status": "satisfied"},
    {"name": "On-call", "status": "Unsatisfied"}
  ],
  "verdict": "Medium",
  "priority": "basic",
  "sub_scores": {"skills": 85, "experience": "40", "domain": -5},
  "strengths": [],
  "concerns": [],
  "justification": "Answered on the wrong scale",
  "interview_questions": []
}`}
	evaluator, err := NewEvaluator(stub, zap.NewNop(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assessment, err := evaluator.Evaluate(context.Background(), testVacancy, testCandidate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	evaluation := assessment.Evaluation
	scores := evaluation.SubScores
	if scores["skills"] != 9 || scores["experience"] != 4 || scores["domain"] != 0 {
		t.Fatalf("expected sub scores scaled to 0..10, got %v", scores)
	}

	names := make([]string, 0, len(evaluation.Requirements))
	for _, req := range evaluation.Requirements {
		names = append(names, req.Name)
	}
	if strings.Join(names, ",") != "Go,PostgreSQL,Kubernetes,On-call" {
		t.Fatalf("expected four requirements keeping the unsatisfied one, got %v", names)
	}
}

func TestEvaluatorPropagatesGeneratorError(t *testing.T) {
	stub := &stubGenerator{err: ai.ErrThrottled}
	evaluator, err := NewEvaluator(stub, zap.NewNop(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = evaluator.Evaluate(context.Background(), testVacancy, testCandidate)
	if !errors.Is(err, ai.ErrThrottled) {
		t.Fatalf("expected ErrThrottled, got %v", err)
	}
}

func TestExtractJSON(t *testing.T) {
	t.Parallel()

	for input, expect := range map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n{\"a\":1}```":       `{"a":1}`,
		"  {\"a\":1}  ":           `{"a":1}`,
	} {
		if got := extractJSON(input); got != expect {
			t.Fatalf("extractJSON(%q) = %q, want %q", input, got, expect)
		}
	}
}
