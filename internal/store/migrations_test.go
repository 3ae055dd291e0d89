package store

import "testing"

func TestMigrationURL(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"postgres://u:p@localhost:5432/db?sslmode=disable": "pgx5://u:p@localhost:5432/db?sslmode=disable",
		"postgresql://localhost/db":                        "pgx5://localhost/db",
		"pgx5://localhost/db":                              "pgx5://localhost/db",
	}

	for input, expect := range tests {
		if got := migrationURL(input); got != expect {
			t.Fatalf("migrationURL(%q) = %q, want %q", input, got, expect)
		}
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	t.Parallel()

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	if len(entries) == 0 || len(entries)%2 != 0 {
		t.Fatalf("expected up/down migration pairs, got %d files", len(entries))
	}
}
