// Package analysis turns persisted applications into scored analysis results.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spigell/hh-screener/internal/ai"
	"github.com/spigell/hh-screener/internal/cache"
	"github.com/spigell/hh-screener/internal/dedup"
	"github.com/spigell/hh-screener/internal/logger"
	"github.com/spigell/hh-screener/internal/models"
	"go.uber.org/zap"
)

const DefaultCacheTTL = 24 * time.Hour

// EngineConfig tunes the Engine.
type EngineConfig struct {
	CacheTTL time.Duration `mapstructure:"cache-ttl"`
}

// Request is a single candidate to evaluate.
type Request struct {
	Vacancy     *models.Vacancy
	Application *models.Application
	// Force bypasses the cache lookup. The fresh evaluation is still cached.
	Force bool
}

// Outcome is the result of Analyze.
type Outcome struct {
	Result *models.AnalysisResult
	// Cached is true when the evaluation came from the cache.
	Cached bool
	// Gated is true when an unsatisfied requirement forced a Mismatch.
	Gated bool
}

// Engine evaluates one candidate, cache first.
type Engine struct {
	evaluator ai.Evaluator
	cache     cache.Cache
	ttl       time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

func NewEngine(evaluator ai.Evaluator, c cache.Cache, log *zap.Logger, cfg EngineConfig) *Engine {
	if c == nil {
		c = cache.Nop{}
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	return &Engine{
		evaluator: evaluator,
		cache:     c,
		ttl:       cfg.CacheTTL,
		logger:    logger.WithFields(log),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Analyze evaluates the candidate and derives score and recommendation.
// Nothing is persisted here.
func (e *Engine) Analyze(ctx context.Context, req Request) (*Outcome, error) {
	if req.Vacancy == nil || req.Application == nil {
		return nil, errors.New("vacancy and application are required")
	}

	vacancy := VacancyInput(req.Vacancy)
	candidate := CandidateInput(req.Application)

	log := e.logger.With(
		logger.ID(logger.FieldVacancyID, req.Vacancy.ID),
		logger.ID(logger.FieldApplicationID, req.Application.ID),
	)

	key, err := cacheKey(vacancy, candidate.Resume)
	if err != nil {
		return nil, err
	}

	var (
		assessment *ai.Assessment
		cached     bool
	)
	if !req.Force {
		assessment = e.lookup(ctx, log, key)
		cached = assessment != nil
	}

	if assessment == nil {
		assessment, err = e.evaluator.Evaluate(ctx, vacancy, candidate)
		if err != nil {
			return nil, fmt.Errorf("evaluate application %s: %w", req.Application.ID, err)
		}
		e.store(ctx, log, key, assessment)
	}

	evaluation := assessment.Evaluation
	gated := ai.EnforceMustHaves(&evaluation)
	if gated {
		log.Info("must-have requirement unsatisfied, verdict forced to Mismatch",
			zap.Strings("requirements", evaluation.Unsatisfied()))
	}

	result := &models.AnalysisResult{
		ID:                 uuid.New(),
		ApplicationID:      req.Application.ID,
		Score:              ai.Score(evaluation.Verdict, evaluation.Priority),
		SubScores:          evaluation.SubScores,
		Verdict:            string(evaluation.Verdict),
		Priority:           string(evaluation.Priority),
		Recommendation:     ai.Recommend(evaluation.Verdict),
		Strengths:          evaluation.Strengths,
		Weaknesses:         evaluation.Concerns,
		RedFlags:           evaluation.RedFlags,
		InterviewQuestions: evaluation.InterviewQuestions,
		Reasoning:          evaluation.Justification,
		Model:              assessment.Model,
		Raw:                assessment.Raw,
		CreatedAt:          e.now(),
	}
	if !cached {
		result.PromptTokens = assessment.Usage.PromptTokens
		result.OutputTokens = assessment.Usage.OutputTokens
	}

	log.Debug("candidate analyzed",
		zap.Int("score", result.Score),
		zap.String("verdict", result.Verdict),
		zap.Bool("cached", cached),
	)

	return &Outcome{Result: result, Cached: cached, Gated: gated}, nil
}

func (e *Engine) lookup(ctx context.Context, log *zap.Logger, key string) *ai.Assessment {
	data, found, err := e.cache.Get(ctx, key)
	if err != nil {
		log.Warn("analysis cache read failed", zap.Error(err))
		return nil
	}
	if !found {
		return nil
	}

	var assessment ai.Assessment
	if err := json.Unmarshal(data, &assessment); err != nil {
		log.Warn("analysis cache entry is corrupt", zap.String("key", key), zap.Error(err))
		return nil
	}
	return &assessment
}

func (e *Engine) store(ctx context.Context, log *zap.Logger, key string, assessment *ai.Assessment) {
	data, err := json.Marshal(assessment)
	if err != nil {
		log.Warn("analysis cache entry not encoded", zap.Error(err))
		return
	}
	if err := e.cache.Set(ctx, key, data, e.ttl); err != nil {
		log.Warn("analysis cache write failed", zap.Error(err))
	}
}

func cacheKey(vacancy ai.VacancyInput, resume json.RawMessage) (string, error) {
	vacancyHash, err := dedup.ContentHash(vacancy)
	if err != nil {
		return "", fmt.Errorf("hash vacancy: %w", err)
	}
	resumeHash, err := dedup.ContentHash(resume)
	if err != nil {
		return "", fmt.Errorf("hash resume: %w", err)
	}
	return cache.AnalysisKey(vacancyHash, resumeHash), nil
}

// VacancyInput converts a persisted vacancy into the evaluator input.
func VacancyInput(v *models.Vacancy) ai.VacancyInput {
	return ai.VacancyInput{
		ID:          v.ExternalID,
		Title:       v.Title,
		Description: v.Description,
		KeySkills:   v.KeySkills,
		Salary:      salary(v.SalaryFrom, v.SalaryTo, v.SalaryCurrency),
	}
}

// CandidateInput converts a persisted application into the evaluator input.
// The resume object is taken out of the raw negotiation item when present.
func CandidateInput(app *models.Application) ai.CandidateInput {
	return ai.CandidateInput{
		ApplicationID: app.ID.String(),
		ResumeID:      app.ResumeID,
		ResumeTitle:   app.ResumeTitle,
		Resume:        resumeOf(app.RawPayload),
	}
}

func resumeOf(raw json.RawMessage) json.RawMessage {
	var item map[string]json.RawMessage
	if err := json.Unmarshal(raw, &item); err != nil {
		return raw
	}
	if resume, ok := item["resume"]; ok && len(resume) > 0 && string(resume) != "null" {
		return resume
	}
	return raw
}

func salary(from, to *int, currency string) string {
	var parts []string
	if from != nil {
		parts = append(parts, "from "+strconv.Itoa(*from))
	}
	if to != nil {
		parts = append(parts, "to "+strconv.Itoa(*to))
	}
	if len(parts) == 0 {
		return ""
	}
	if currency != "" {
		parts = append(parts, currency)
	}
	return strings.Join(parts, " ")
}
