package headhunter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
)

func negotiationItem(id, resumeID string) map[string]any {
	return map[string]any{
		"id":         id,
		"created_at": "2025-01-01T10:00:00+0300",
		"state":      map[string]any{"id": "response", "name": "Отклик"},
		"resume": map[string]any{
			"id":         resumeID,
			"title":      "Go Developer",
			"first_name": "Ivan",
			"last_name":  "Petrov",
			"age":        31,
			"contact": []map[string]any{
				{"type": map[string]any{"id": "email"}, "value": "ivan@example.com"},
				{
					"type":      map[string]any{"id": "cell"},
					"preferred": true,
					"value":     map[string]any{"country": "7", "city": "999", "number": "1234567"},
				},
			},
			"experience": []map[string]any{
				{"company": "Acme", "position": "Backend", "start": "2021-01-01", "end": nil},
			},
			"skill_set": []string{"Go", "PostgreSQL"},
		},
	}
}

func TestListApplicationsWalksCollections(t *testing.T) {
	stubWait(t)

	var srv *httptest.Server
	var consideredRequests atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/negotiations", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("vacancy_id"); got != "42" {
			t.Errorf("expected vacancy_id=42, got %q", got)
		}
		writeJSON(t, w, map[string]any{
			"collections": []map[string]any{
				{"id": "response", "url": srv.URL + "/negotiations/response?vacancy_id=42"},
				{"id": "consider", "url": srv.URL + "/negotiations/consider?vacancy_id=42"},
				{"id": "discard_by_employer", "url": srv.URL + "/negotiations/discard_by_employer?vacancy_id=42"},
				{"id": "phone_interview", "url": srv.URL + "/negotiations/phone_interview?vacancy_id=42"},
				{"id": "empty_url"},
			},
		})
	})
	mux.HandleFunc("/negotiations/response", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"items": []map[string]any{negotiationItem("n1", "r1"), negotiationItem("n2", "r2")},
			"pages": 1,
		})
	})
	mux.HandleFunc("/negotiations/consider", func(w http.ResponseWriter, r *http.Request) {
		consideredRequests.Add(1)
		if got := r.URL.Query().Get("vacancy_id"); got != "42" {
			t.Errorf("collection query lost: %q", r.URL.RawQuery)
		}
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		writeJSON(t, w, map[string]any{
			"items": []map[string]any{negotiationItem("c"+strconv.Itoa(page), "rc"+strconv.Itoa(page))},
			"pages": 2,
			"page":  page,
		})
	})
	mux.HandleFunc("/negotiations/discard_by_employer", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"items": []map[string]any{
				negotiationItem("d1", "rd1"),
				{"id": "broken", "resume": "not an object"},
				{"id": "no-resume"},
			},
			"pages": 1,
		})
	})
	mux.HandleFunc("/negotiations/phone_interview", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"items": []map[string]any{negotiationItem("p1", "rp1")}, "pages": 1})
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	apps, err := newTestClient(t, srv).ListApplications(context.Background(), "42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if apps.Len() != 6 {
		t.Fatalf("expected 6 applications, got %d", apps.Len())
	}
	if got := consideredRequests.Load(); got != 2 {
		t.Fatalf("expected 2 requests for the consider collection, got %d", got)
	}

	labels := map[string]string{}
	for _, item := range apps.Items {
		labels[item.ID] = item.Collection
		if len(item.Raw) == 0 {
			t.Fatalf("expected raw payload for %s", item.ID)
		}
	}
	expected := map[string]string{
		"n1": "new",
		"n2": "new",
		"c0": "consider",
		"c1": "consider",
		"d1": "rejected",
		"p1": "phone_interview",
	}
	for id, label := range expected {
		if labels[id] != label {
			t.Fatalf("expected %s in %q, got %q", id, label, labels[id])
		}
	}

	if len(apps.Rejected) != 2 {
		t.Fatalf("expected 2 quarantined items, got %d", len(apps.Rejected))
	}
	for _, q := range apps.Rejected {
		if q.Reason == "" || q.Collection != "rejected" {
			t.Fatalf("unexpected quarantined item: %+v", q)
		}
	}
}

func TestResumeContacts(t *testing.T) {
	t.Parallel()

	negotiation, reason := decodeNegotiation(negotiationItem("n1", "r1"))
	if reason != "" {
		t.Fatalf("unexpected quarantine: %s", reason)
	}

	resume := negotiation.Resume
	if resume.Age == nil || *resume.Age != 31 {
		t.Fatalf("unexpected age: %v", resume.Age)
	}

	primary, ok := resume.PrimaryContact()
	if !ok {
		t.Fatalf("expected a primary contact")
	}
	if primary.Kind != ContactPhone || primary.Value != "+79991234567" {
		t.Fatalf("expected preferred phone, got %+v", primary)
	}
	if got := resume.FirstOf(ContactEmail); got != "ivan@example.com" {
		t.Fatalf("unexpected email: %q", got)
	}
}

func TestContactEntryResolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		entry   ContactEntry
		kind    ContactKind
		value   string
		wantErr bool
	}{
		{
			name:  "email",
			entry: ContactEntry{Type: Named{ID: "email"}, Value: " a@b.c "},
			kind:  ContactEmail,
			value: "a@b.c",
		},
		{
			name:  "formatted phone wins",
			entry: ContactEntry{Type: Named{ID: "cell"}, Value: map[string]any{"formatted": "+7 (999) 123-45-67", "number": "1"}},
			kind:  ContactPhone,
			value: "+7 (999) 123-45-67",
		},
		{
			name:    "email with object value",
			entry:   ContactEntry{Type: Named{ID: "email"}, Value: map[string]any{}},
			kind:    ContactEmail,
			wantErr: true,
		},
		{
			name:  "unknown kind",
			entry: ContactEntry{Type: Named{ID: "telegram"}, Value: "@ivan"},
			kind:  ContactUnknown,
			value: "@ivan",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			contact, err := tt.entry.Resolve()
			if (err != nil) != tt.wantErr {
				t.Fatalf("unexpected error: %v", err)
			}
			if contact.Kind != tt.kind || contact.Value != tt.value {
				t.Fatalf("unexpected contact: %+v", contact)
			}
		})
	}
}

func TestCollectionLabel(t *testing.T) {
	t.Parallel()

	for id, label := range map[string]string{
		"response":            "new",
		"consider":            "consider",
		"interview":           "interview",
		"discard_by_employer": "rejected",
		"offer":               "offer",
	} {
		if got := CollectionLabel(id); got != label {
			t.Fatalf("expected %q for %q, got %q", label, id, got)
		}
	}
}

func TestParseTime(t *testing.T) {
	t.Parallel()

	for _, value := range []string{"2025-01-01T10:00:00+0300", "2025-01-01T10:00:00+03:00"} {
		got, err := ParseTime(value)
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", value, err)
		}
		if got.UTC().Hour() != 7 {
			t.Fatalf("unexpected time for %q: %s", value, got)
		}
	}

	if _, err := ParseTime("yesterday"); err == nil {
		t.Fatalf("expected error")
	}
	if !(&Negotiation{CreatedAt: "bad"}).Created().IsZero() {
		t.Fatalf("expected zero time for unparsable value")
	}
}
