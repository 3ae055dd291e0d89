// Package ai holds the provider independent part of candidate screening:
// the evaluation contract, must-have gating and score derivation.
package ai

import (
	"context"
	"encoding/json"
	"strings"
)

type Verdict string

const (
	VerdictMismatch Verdict = "Mismatch"
	VerdictLow      Verdict = "Low"
	VerdictMedium   Verdict = "Medium"
	VerdictHigh     Verdict = "High"
)

type Priority string

const (
	PriorityBasic  Priority = "basic"
	PriorityStrong Priority = "strong"
	PriorityTop    Priority = "top"
)

type RequirementStatus string

const (
	RequirementSatisfied   RequirementStatus = "satisfied"
	RequirementUncertain   RequirementStatus = "uncertain"
	RequirementUnsatisfied RequirementStatus = "unsatisfied"
)

const (
	RecommendInterview = "interview"
	RecommendMaybe     = "maybe"
	RecommendReject    = "reject"
)

// Requirement is a hard requirement of the role checked against the resume.
type Requirement struct {
	Name     string            `json:"name"`
	Status   RequirementStatus `json:"status"`
	Evidence string            `json:"evidence,omitempty"`
}

// Evaluation is the structured output of the model.
type Evaluation struct {
	Requirements       []Requirement  `json:"requirements"`
	Verdict            Verdict        `json:"verdict"`
	Priority           Priority       `json:"priority"`
	SubScores          map[string]int `json:"sub_scores,omitempty"`
	Strengths          []string       `json:"strengths"`
	Concerns           []string       `json:"concerns"`
	RedFlags           []string       `json:"red_flags,omitempty"`
	Justification      string         `json:"justification"`
	InterviewQuestions []string       `json:"interview_questions"`
}

// Usage reports the tokens consumed by a generation call.
type Usage struct {
	PromptTokens int `json:"prompt_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Assessment is an Evaluation together with its provenance.
type Assessment struct {
	Evaluation Evaluation      `json:"evaluation"`
	Model      string          `json:"model"`
	Usage      Usage           `json:"usage"`
	Raw        json.RawMessage `json:"raw"`
}

// VacancyInput is the vacancy side of a screening request.
type VacancyInput struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	KeySkills   []string `json:"key_skills,omitempty"`
	Salary      string   `json:"salary,omitempty"`
}

// CandidateInput is the candidate side of a screening request.
type CandidateInput struct {
	ApplicationID string          `json:"application_id"`
	ResumeID      string          `json:"resume_id"`
	ResumeTitle   string          `json:"resume_title"`
	Resume        json.RawMessage `json:"resume"`
}

// Evaluator screens a candidate against a vacancy.
type Evaluator interface {
	Evaluate(ctx context.Context, vacancy VacancyInput, candidate CandidateInput) (*Assessment, error)
	Model() string
}

// ParseVerdict accepts any letter case.
func ParseVerdict(s string) (Verdict, bool) {
	for _, v := range []Verdict{VerdictMismatch, VerdictLow, VerdictMedium, VerdictHigh} {
		if strings.EqualFold(strings.TrimSpace(s), string(v)) {
			return v, true
		}
	}
	return "", false
}

// ParsePriority accepts any letter case.
func ParsePriority(s string) (Priority, bool) {
	for _, p := range []Priority{PriorityBasic, PriorityStrong, PriorityTop} {
		if strings.EqualFold(strings.TrimSpace(s), string(p)) {
			return p, true
		}
	}
	return "", false
}
