package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	_ "embed"

	"github.com/spigell/hh-screener/internal/ai"
	"github.com/spigell/hh-screener/internal/logger"
	"github.com/spigell/hh-screener/internal/utils"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
)

//go:embed prompt.md
var promptTemplate string

//go:embed system.md
var systemInstruction string

//go:embed schema.json
var evaluationSchema string

const defaultMaxLogLength = 200

const (
	// The prompt asks for two to four hard requirements.
	maxRequirements = 4
	maxSubScore     = 10
)

type contentGenerator interface {
	Generate(ctx context.Context, system, prompt string) (*Generation, error)
	Model() string
}

// Evaluator screens candidates with a Gemini generator.
type Evaluator struct {
	generator contentGenerator
	schema    *gojsonschema.Schema
	logger    *zap.Logger
	maxLogLen int
}

var _ ai.Evaluator = (*Evaluator)(nil)

func NewEvaluator(generator contentGenerator, log *zap.Logger, maxLogLength int) (*Evaluator, error) {
	if generator == nil {
		return nil, errors.New("generator is required")
	}
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(evaluationSchema))
	if err != nil {
		return nil, fmt.Errorf("load evaluation schema: %w", err)
	}

	return &Evaluator{
		generator: generator,
		schema:    schema,
		logger:    logger.WithCommonFields(log, providerName, generator.Model()),
		maxLogLen: maxLogLength,
	}, nil
}

func (e *Evaluator) Model() string {
	return e.generator.Model()
}

func (e *Evaluator) Evaluate(ctx context.Context, vacancy ai.VacancyInput, candidate ai.CandidateInput) (*ai.Assessment, error) {
	if strings.TrimSpace(vacancy.Title) == "" && strings.TrimSpace(vacancy.Description) == "" {
		return nil, fmt.Errorf("vacancy %s has neither title nor description", vacancy.ID)
	}
	if len(candidate.Resume) == 0 {
		return nil, fmt.Errorf("resume of application %s is empty", candidate.ApplicationID)
	}

	vacancyJSON, err := json.MarshalIndent(vacancy, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal vacancy payload: %w", err)
	}

	prompt := buildPrompt(string(vacancyJSON), string(candidate.Resume))

	log := e.logger.With(
		zap.String("vacancy_id", vacancy.ID),
		zap.String("application_id", candidate.ApplicationID),
	)
	log.Debug("gemini generate content request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, e.maxLogLen)),
	)

	generation, err := e.generator.Generate(ctx, systemInstruction, prompt)
	if err != nil {
		return nil, err
	}

	log.Debug("gemini generate content response",
		zap.Int("response_length", utf8.RuneCountInString(generation.Text)),
		zap.String("response_preview", utils.TruncateForLog(generation.Text, e.maxLogLen)),
		zap.Int("prompt_tokens", generation.Usage.PromptTokens),
		zap.Int("output_tokens", generation.Usage.OutputTokens),
	)

	evaluation, raw, err := e.parseResponse(generation.Text)
	if err != nil {
		return nil, err
	}

	return &ai.Assessment{
		Evaluation: *evaluation,
		Model:      e.generator.Model(),
		Usage:      generation.Usage,
		Raw:        raw,
	}, nil
}

func buildPrompt(vacancyJSON, resumeJSON string) string {
	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Vacancy:\n{{VACANCY_JSON}}\n\nCandidate resume:\n{{RESUME_JSON}}\n\nJSON Response:"
	}
	prompt := strings.ReplaceAll(template, "{{VACANCY_JSON}}", vacancyJSON)
	prompt = strings.ReplaceAll(prompt, "{{RESUME_JSON}}", resumeJSON)
	return prompt
}

// parseResponse decodes the model output, normalizes enum casing and checks
// the result against the evaluation schema.
func (e *Evaluator) parseResponse(raw string) (*ai.Evaluation, json.RawMessage, error) {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ai.ErrParse, err)
	}

	normalize(data)

	result, err := e.schema.Validate(gojsonschema.NewGoLoader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: validate: %v", ai.ErrParse, err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			field := desc.Field()
			if field == "" {
				field = "(root)"
			}
			problems = append(problems, field+": "+desc.Description())
		}
		return nil, nil, fmt.Errorf("%w: %s", ai.ErrParse, strings.Join(problems, "; "))
	}

	normalized, err := json.Marshal(data)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ai.ErrParse, err)
	}

	var evaluation ai.Evaluation
	if err := json.Unmarshal(normalized, &evaluation); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ai.ErrParse, err)
	}

	return &evaluation, normalized, nil
}

func normalize(data map[string]any) {
	if v, ok := data["verdict"].(string); ok {
		if verdict, ok := ai.ParseVerdict(v); ok {
			data["verdict"] = string(verdict)
		}
	}
	if p, ok := data["priority"].(string); ok {
		if priority, ok := ai.ParsePriority(p); ok {
			data["priority"] = string(priority)
		}
	}

	if reqs, ok := data["requirements"].([]any); ok {
		for _, item := range reqs {
			req, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if status, ok := req["status"].(string); ok {
				req["status"] = strings.ToLower(strings.TrimSpace(status))
			}
		}
		data["requirements"] = limitRequirements(reqs)
	}

	if scores, ok := data["sub_scores"].(map[string]any); ok {
		normalizeSubScores(scores)
	}

	for _, key := range []string{"strengths", "concerns", "red_flags", "interview_questions"} {
		if value, present := data[key]; present && value == nil {
			data[key] = []any{}
		}
	}
}

// limitRequirements keeps at most maxRequirements entries in their original
// order. Unsatisfied ones are kept first so must-have gating still sees them.
func limitRequirements(reqs []any) []any {
	if len(reqs) <= maxRequirements {
		return reqs
	}

	keep := make([]bool, len(reqs))
	kept := 0
	for _, unsatisfied := range []bool{true, false} {
		for i, item := range reqs {
			if kept == maxRequirements {
				break
			}
			req, _ := item.(map[string]any)
			if keep[i] || (req["status"] == string(ai.RequirementUnsatisfied)) != unsatisfied {
				continue
			}
			keep[i] = true
			kept++
		}
	}

	result := make([]any, 0, maxRequirements)
	for i, item := range reqs {
		if keep[i] {
			result = append(result, item)
		}
	}
	return result
}

// normalizeSubScores rounds sub-scores to integers on the 0..10 scale. A model
// that answers on the 0..100 scale of the total score is scaled down.
func normalizeSubScores(scores map[string]any) {
	values := make(map[string]float64, len(scores))
	hundredScale := false
	for key, value := range scores {
		f := coerceFloat(value)
		if math.IsNaN(f) {
			continue
		}
		values[key] = f
		if f > maxSubScore {
			hundredScale = true
		}
	}

	for key, f := range values {
		if hundredScale {
			f /= 10
		}
		scores[key] = int(math.Round(math.Min(math.Max(f, 0), maxSubScore)))
	}
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}
