package headhunter

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

// stubWait replaces the package wait hook and records requested delays.
func stubWait(t *testing.T) *[]time.Duration {
	t.Helper()

	var (
		mu    sync.Mutex
		waits []time.Duration
	)
	original := waitFor
	waitFor = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		defer mu.Unlock()
		waits = append(waits, d)
		return ctx.Err()
	}
	t.Cleanup(func() { waitFor = original })

	return &waits
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	return New(zap.NewNop(), "token", Config{APIURL: srv.URL, Timeout: 5 * time.Second})
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func pageOf(n, offset int) []map[string]any {
	items := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, map[string]any{"id": strconv.Itoa(offset + i)})
	}
	return items
}

func TestGetItemsWalksAllPages(t *testing.T) {
	stubWait(t)

	var requests atomic.Int32
	sizes := []int{100, 100, 40}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if got := r.URL.Query().Get("per_page"); got != "100" {
			t.Errorf("expected per_page=100, got %q", got)
		}
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		writeJSON(t, w, map[string]any{
			"items": pageOf(sizes[page], page*100),
			"found": 240,
			"pages": 3,
			"page":  page,
		})
	}))
	defer srv.Close()

	items, err := newTestClient(t, srv).GetItems(context.Background(), "/collection", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(items) != 240 {
		t.Fatalf("expected 240 items, got %d", len(items))
	}
	if got := requests.Load(); got != 3 {
		t.Fatalf("expected 3 requests, got %d", got)
	}
}

func TestGetItemsStopsOnEmptyPage(t *testing.T) {
	stubWait(t)

	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := requests.Add(1)
		items := pageOf(100, 0)
		if n > 1 {
			items = nil
		}
		// The declared page count overstates the data.
		writeJSON(t, w, map[string]any{"items": items, "pages": 10})
	}))
	defer srv.Close()

	items, err := newTestClient(t, srv).GetItems(context.Background(), "/collection", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 100 {
		t.Fatalf("expected 100 items, got %d", len(items))
	}
	if got := requests.Load(); got != 2 {
		t.Fatalf("expected 2 requests, got %d", got)
	}
}

func TestRateLimitRetriesOnceHonoringRetryAfter(t *testing.T) {
	waits := stubWait(t)

	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeJSON(t, w, map[string]any{"id": "1", "is_employer": true, "employer": map[string]any{"id": "e1"}})
	}))
	defer srv.Close()

	me, err := newTestClient(t, srv).Me(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if me.Employer.ID != "e1" {
		t.Fatalf("unexpected employer: %+v", me.Employer)
	}
	if got := requests.Load(); got != 2 {
		t.Fatalf("expected 2 requests, got %d", got)
	}
	if len(*waits) != 1 || (*waits)[0] != 7*time.Second {
		t.Fatalf("expected a single 7s wait, got %v", *waits)
	}
}

func TestRateLimitTwiceIsFatal(t *testing.T) {
	waits := stubWait(t)

	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Me(context.Background())
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if got := requests.Load(); got != 2 {
		t.Fatalf("expected 2 requests, got %d", got)
	}
	if len(*waits) != 1 || (*waits)[0] != 60*time.Second {
		t.Fatalf("expected default 60s wait, got %v", *waits)
	}
}

func TestCredentialErrorsAreNotRetried(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		t.Run(strconv.Itoa(status), func(t *testing.T) {
			waits := stubWait(t)

			var requests atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				requests.Add(1)
				w.WriteHeader(status)
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv).Me(context.Background())
			if !errors.Is(err, ErrCredentialInvalid) {
				t.Fatalf("expected ErrCredentialInvalid, got %v", err)
			}
			if got := requests.Load(); got != 1 {
				t.Fatalf("expected exactly 1 request, got %d", got)
			}
			if len(*waits) != 0 {
				t.Fatalf("expected no waits, got %v", *waits)
			}
		})
	}
}

func TestTransientFailuresBackOffAndAggregate(t *testing.T) {
	waits := stubWait(t)

	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Me(context.Background())
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
	if got := requests.Load(); got != 4 {
		t.Fatalf("expected 4 attempts, got %d", got)
	}

	expected := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if fmt.Sprint(*waits) != fmt.Sprint(expected) {
		t.Fatalf("expected backoff %v, got %v", expected, *waits)
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected aggregated status error, got %v", err)
	}
}

func TestTransientFailureRecovers(t *testing.T) {
	stubWait(t)

	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(t, w, map[string]any{"id": "42", "name": "Go Developer"})
	}))
	defer srv.Close()

	vacancy, err := newTestClient(t, srv).GetVacancy(context.Background(), "42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vacancy.Name != "Go Developer" {
		t.Fatalf("unexpected vacancy: %+v", vacancy)
	}
}

func TestUnexpectedStatusIsNotRetried(t *testing.T) {
	stubWait(t)

	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).GetVacancy(context.Background(), "missing")
	if !errors.Is(err, ErrUnexpectedStatus) {
		t.Fatalf("expected ErrUnexpectedStatus, got %v", err)
	}
	if got := requests.Load(); got != 1 {
		t.Fatalf("expected 1 request, got %d", got)
	}
}

func TestGzipBodiesAreDecoded(t *testing.T) {
	stubWait(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token" {
			t.Errorf("unexpected authorization header %q", r.Header.Get("Authorization"))
		}
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		_, _ = zw.Write([]byte(`{"id":"7","name":"SRE","key_skills":[{"name":"Go"},{"name":" "},{"name":"Kubernetes"}]}`))
		_ = zw.Close()

		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	vacancy, err := newTestClient(t, srv).GetVacancy(context.Background(), "7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := vacancy.Skills(); fmt.Sprint(got) != "[Go Kubernetes]" {
		t.Fatalf("unexpected skills: %v", got)
	}
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		value  string
		expect time.Duration
		ok     bool
	}{
		{name: "empty", value: ""},
		{name: "seconds", value: "30", expect: 30 * time.Second, ok: true},
		{name: "zero", value: "0", expect: 0, ok: true},
		{name: "negative", value: "-1"},
		{name: "http date", value: now.Add(90 * time.Second).Format(http.TimeFormat), expect: 90 * time.Second, ok: true},
		{name: "date in the past", value: now.Add(-time.Minute).Format(http.TimeFormat), expect: 0, ok: true},
		{name: "garbage", value: "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := parseRetryAfter(tt.value, now)
			if got != tt.expect || ok != tt.ok {
				t.Fatalf("expected (%s, %t), got (%s, %t)", tt.expect, tt.ok, got, ok)
			}
		})
	}
}

func TestRateLimitWithZeroRetryAfterRetriesImmediately(t *testing.T) {
	waits := stubWait(t)

	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeJSON(t, w, map[string]any{"id": "1", "is_employer": true, "employer": map[string]any{"id": "e1"}})
	}))
	defer srv.Close()

	if _, err := newTestClient(t, srv).Me(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := requests.Load(); got != 2 {
		t.Fatalf("expected 2 requests, got %d", got)
	}
	if len(*waits) != 1 || (*waits)[0] != 0 {
		t.Fatalf("expected a single zero wait, got %v", *waits)
	}
}

func TestListVacanciesUsesEmployerFromMe(t *testing.T) {
	stubWait(t)

	var meCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		meCalls.Add(1)
		writeJSON(t, w, map[string]any{"id": "u1", "is_employer": true, "employer": map[string]any{"id": "e1"}})
	})
	mux.HandleFunc("/employers/e1/vacancies/active", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"items": []map[string]any{
				{"id": "1", "name": "Go Developer", "salary": map[string]any{"from": 100, "currency": "RUR"}},
				{"id": "2", "name": "SRE"},
			},
			"pages": 1,
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := newTestClient(t, srv)
	for i := 0; i < 2; i++ {
		vacancies, err := client.ListVacancies(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if vacancies.Len() != 2 {
			t.Fatalf("expected 2 vacancies, got %d", vacancies.Len())
		}
		first := vacancies.FindByID("1")
		if first == nil || first.Salary == nil || first.Salary.From == nil || *first.Salary.From != 100 {
			t.Fatalf("unexpected first vacancy: %+v", first)
		}
	}

	if got := meCalls.Load(); got != 1 {
		t.Fatalf("expected employer id to be cached, got %d /me calls", got)
	}
}

func TestEmployerIDRejectsApplicantAccounts(t *testing.T) {
	stubWait(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"id": "u1", "is_employer": false})
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).EmployerID(context.Background())
	if !errors.Is(err, ErrCredentialInvalid) {
		t.Fatalf("expected ErrCredentialInvalid, got %v", err)
	}
}
