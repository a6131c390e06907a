package migrate

import (
	"strings"
	"testing"
)

func TestLoadMigrations(t *testing.T) {
	migrations, err := LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations failed: %v", err)
	}
	if len(migrations) == 0 {
		t.Fatal("no embedded migrations found")
	}

	for i, m := range migrations {
		if m.Version != i+1 {
			t.Errorf("migration %d has version %d, want %d", i, m.Version, i+1)
		}
		if m.UpSQL == "" {
			t.Errorf("migration %d (%s) has empty up SQL", m.Version, m.Name)
		}
	}

	first := migrations[0]
	if !strings.Contains(first.UpSQL, "CREATE TABLE experiments") {
		t.Error("initial migration does not create the experiments table")
	}
	if !strings.Contains(first.UpSQL, "UNIQUE (experiment_id, user_id)") {
		t.Error("initial migration does not enforce assignment uniqueness")
	}
	if !strings.Contains(first.DownSQL, "DROP TABLE") {
		t.Error("initial migration has no down SQL")
	}
}

func TestSplitSQL(t *testing.T) {
	statements := SplitSQL("CREATE TABLE a (id INTEGER); CREATE INDEX idx ON a(id);")
	nonEmpty := 0
	for _, s := range statements {
		if strings.TrimSpace(s) != "" {
			nonEmpty++
		}
	}
	if nonEmpty != 2 {
		t.Errorf("split into %d statements, want 2", nonEmpty)
	}
}
