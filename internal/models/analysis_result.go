package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AnalysisResult is the persisted AI evaluation of an application.
// There is at most one live result per application.
type AnalysisResult struct {
	ID                 uuid.UUID       `json:"id"`
	ApplicationID      uuid.UUID       `json:"application_id"`
	Score              int             `json:"score"`
	SubScores          map[string]int  `json:"sub_scores"`
	Verdict            string          `json:"verdict"`
	Priority           string          `json:"priority"`
	Recommendation     string          `json:"recommendation"`
	Strengths          []string        `json:"strengths"`
	Weaknesses         []string        `json:"weaknesses"`
	RedFlags           []string        `json:"red_flags"`
	InterviewQuestions []string        `json:"interview_questions"`
	Reasoning          string          `json:"reasoning"`
	Model              string          `json:"model"`
	PromptTokens       int             `json:"prompt_tokens"`
	OutputTokens       int             `json:"output_tokens"`
	Raw                json.RawMessage `json:"raw"`
	CreatedAt          time.Time       `json:"created_at"`
}
