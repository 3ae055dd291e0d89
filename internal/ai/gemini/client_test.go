package gemini

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/spigell/hh-screener/internal/ai"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

type fakeModels struct {
	mu    sync.Mutex
	calls []modelCallRecord
	queue []fakeResponse
}

type modelCallRecord struct {
	model    string
	config   *genai.GenerateContentConfig
	contents []*genai.Content
}

type fakeResponse struct {
	resp *genai.GenerateContentResponse
	err  error
}

func (f *fakeModels) enqueue(resp *genai.GenerateContentResponse, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, fakeResponse{resp: resp, err: err})
}

func (f *fakeModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, modelCallRecord{model: model, config: config, contents: contents})
	if len(f.queue) == 0 {
		return nil, errors.New("unexpected call")
	}
	res := f.queue[0]
	f.queue = f.queue[1:]
	return res.resp, res.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     120,
			CandidatesTokenCount: 40,
		},
	}
}

func stubSleep(t *testing.T) *[]time.Duration {
	t.Helper()
	var delays []time.Duration
	original := sleep
	sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return ctx.Err()
	}
	t.Cleanup(func() { sleep = original })
	return &delays
}

func TestGeneratorRetriesOnThrottling(t *testing.T) {
	delays := stubSleep(t)

	models := &fakeModels{}
	models.enqueue(nil, genai.APIError{Code: http.StatusTooManyRequests, Status: "RESOURCE_EXHAUSTED"})
	models.enqueue(nil, genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"})
	models.enqueue(textResponse(`{"ok":true}`), nil)

	g := newGenerator(models, zap.NewNop(), Config{Model: "gemini-pro"})

	out, err := g.Generate(context.Background(), "system", "message")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out.Text != `{"ok":true}` {
		t.Fatalf("unexpected output: %q", out.Text)
	}
	if out.Usage.PromptTokens != 120 || out.Usage.OutputTokens != 40 {
		t.Fatalf("unexpected usage: %+v", out.Usage)
	}

	if len(models.calls) != 3 {
		t.Fatalf("expected 3 calls, got %d", len(models.calls))
	}
	if len(*delays) != 2 || (*delays)[0] != 2*time.Second || (*delays)[1] != 4*time.Second {
		t.Fatalf("unexpected backoff: %v", *delays)
	}

	for _, call := range models.calls {
		if call.model != "gemini-pro" {
			t.Fatalf("unexpected model %q", call.model)
		}
		if call.config == nil || call.config.SystemInstruction == nil {
			t.Fatalf("expected system instruction to be set")
		}
		if got := call.config.SystemInstruction.Parts[0].Text; got != "system" {
			t.Fatalf("unexpected system instruction: %q", got)
		}
		if call.config.ResponseMIMEType != "application/json" {
			t.Fatalf("expected JSON response type, got %q", call.config.ResponseMIMEType)
		}
		if call.config.MaxOutputTokens != 2500 {
			t.Fatalf("expected 2500 output tokens, got %d", call.config.MaxOutputTokens)
		}
	}
}

func TestGeneratorStopsAfterRetriesExhausted(t *testing.T) {
	delays := stubSleep(t)

	models := &fakeModels{}
	for i := 0; i < 6; i++ {
		models.enqueue(nil, genai.APIError{Code: http.StatusTooManyRequests, Status: "RESOURCE_EXHAUSTED"})
	}

	g := newGenerator(models, zap.NewNop(), Config{})

	_, err := g.Generate(context.Background(), "sys", "msg")
	if !errors.Is(err, ai.ErrThrottled) {
		t.Fatalf("expected ErrThrottled, got %v", err)
	}
	if len(models.calls) != 6 {
		t.Fatalf("expected 6 calls, got %d", len(models.calls))
	}

	expected := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 32 * time.Second}
	if len(*delays) != len(expected) {
		t.Fatalf("expected %d delays, got %v", len(expected), *delays)
	}
	for i, d := range expected {
		if (*delays)[i] != d {
			t.Fatalf("delay %d: expected %s, got %s", i, d, (*delays)[i])
		}
	}
}

func TestGeneratorDoesNotRetryClientErrors(t *testing.T) {
	delays := stubSleep(t)

	models := &fakeModels{}
	models.enqueue(nil, genai.APIError{Code: http.StatusBadRequest, Status: "INVALID_ARGUMENT"})

	g := newGenerator(models, zap.NewNop(), Config{})

	_, err := g.Generate(context.Background(), "sys", "msg")
	if !errors.Is(err, ai.ErrGeneration) {
		t.Fatalf("expected ErrGeneration, got %v", err)
	}
	if errors.Is(err, ai.ErrThrottled) {
		t.Fatalf("client error must not be reported as throttling")
	}
	if len(models.calls) != 1 || len(*delays) != 0 {
		t.Fatalf("expected single call without waits, got %d calls and %v", len(models.calls), *delays)
	}
}

func TestGeneratorEmptyResponseIsParseError(t *testing.T) {
	stubSleep(t)

	models := &fakeModels{}
	models.enqueue(&genai.GenerateContentResponse{}, nil)

	g := newGenerator(models, zap.NewNop(), Config{})

	_, err := g.Generate(context.Background(), "sys", "msg")
	if !errors.Is(err, ai.ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
}
