package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	tokenFile := filepath.Join(dir, "token")
	if err := os.WriteFile(tokenFile, []byte("  from-file\n"), 0o600); err != nil {
		t.Fatalf("write token: %v", err)
	}
	emptyFile := filepath.Join(dir, "empty")
	if err := os.WriteFile(emptyFile, []byte("\n"), 0o600); err != nil {
		t.Fatalf("write empty: %v", err)
	}
	t.Setenv("HH_SCREENER_TEST_SECRET", " from-env ")

	tests := []struct {
		name    string
		src     Source
		want    string
		wantErr string
	}{
		{name: "file wins", src: Source{File: tokenFile, Value: "inline", Env: "HH_SCREENER_TEST_SECRET"}, want: "from-file"},
		{name: "inline", src: Source{Value: " inline ", Env: "HH_SCREENER_TEST_SECRET"}, want: "inline"},
		{name: "env", src: Source{Env: "HH_SCREENER_TEST_SECRET"}, want: "from-env"},
		{name: "empty file", src: Source{Name: "hh token", File: emptyFile}, wantErr: "is empty"},
		{name: "missing file", src: Source{Name: "hh token", File: filepath.Join(dir, "nope")}, wantErr: "reading hh token"},
		{name: "unset env", src: Source{Name: "gemini key", Env: "HH_SCREENER_TEST_UNSET"}, wantErr: "set HH_SCREENER_TEST_UNSET"},
		{name: "nothing", src: Source{}, wantErr: "secret is not configured"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(tt.src)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
