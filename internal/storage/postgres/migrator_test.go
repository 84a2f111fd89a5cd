package postgres

import (
	"testing"
	"testing/fstest"
)

func migrationFS(files map[string]string) fstest.MapFS {
	fsys := fstest.MapFS{}
	for name, body := range files {
		fsys["sql/migrations/"+name] = &fstest.MapFile{Data: []byte(body)}
	}
	return fsys
}

func TestLoadMigrations_SortsByVersion(t *testing.T) {
	fsys := migrationFS(map[string]string{
		"0002_outbox.up.sql":   "CREATE TABLE b (id TEXT);",
		"0002_outbox.down.sql": "DROP TABLE b;",
		"0001_core.up.sql":     "CREATE TABLE a (id TEXT);",
		"0001_core.down.sql":   "DROP TABLE a;",
	})

	migrations, err := loadMigrations(fsys)
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[1].Version != 2 {
		t.Fatalf("migrations are not sorted: %+v", migrations)
	}
	if migrations[0].Name != "core" {
		t.Fatalf("unexpected migration name %q", migrations[0].Name)
	}
}

func TestLoadMigrations_RejectsIncompletePair(t *testing.T) {
	fsys := migrationFS(map[string]string{
		"0001_core.up.sql": "CREATE TABLE a (id TEXT);",
	})

	if _, err := loadMigrations(fsys); err == nil {
		t.Fatal("expected error for missing down migration")
	}
}

func TestLoadMigrations_RejectsBadName(t *testing.T) {
	fsys := migrationFS(map[string]string{
		"core.up.sql":        "CREATE TABLE a (id TEXT);",
		"0001_core.down.sql": "DROP TABLE a;",
	})

	if _, err := loadMigrations(fsys); err == nil {
		t.Fatal("expected error for invalid migration file name")
	}
}

func TestLoadMigrations_EmbeddedSchemaIsValid(t *testing.T) {
	migrations, err := loadMigrations(migrationsFS)
	if err != nil {
		t.Fatalf("embedded migrations must load: %v", err)
	}
	if len(migrations) == 0 {
		t.Fatal("expected embedded migrations")
	}
	for _, m := range migrations {
		if m.UpSQL == "" || m.DownSQL == "" {
			t.Fatalf("migration %d_%s has empty body", m.Version, m.Name)
		}
	}
}
