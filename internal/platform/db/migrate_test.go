package db

import (
	"testing"
	"testing/fstest"
	"time"

	"github.com/aimedicare/aimedicare/migrations"
)

func TestLoadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"001_users.sql":        {Data: []byte("CREATE TABLE users (id UUID PRIMARY KEY);")},
		"002_reset_index.sql":  {Data: []byte("CREATE INDEX users_reset_idx ON users (password_reset_token);")},
		"003_user_updated.sql": {Data: []byte("ALTER TABLE users ADD COLUMN updated_at TIMESTAMPTZ;")},
	}

	migrations, err := NewMigrator(nil, fsys).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}

	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[0].Name != "001_users.sql" {
		t.Errorf("unexpected first migration: %+v", migrations[0])
	}
	if migrations[0].SQL != "CREATE TABLE users (id UUID PRIMARY KEY);" {
		t.Errorf("unexpected SQL content: %s", migrations[0].SQL)
	}
	if migrations[2].Version != 3 {
		t.Errorf("expected version 3, got %d", migrations[2].Version)
	}
}

func TestLoadMigrations_SortsNumerically(t *testing.T) {
	fsys := fstest.MapFS{
		"10_late.sql":  {Data: []byte("SELECT 10;")},
		"2_mid.sql":    {Data: []byte("SELECT 2;")},
		"001_init.sql": {Data: []byte("SELECT 1;")},
	}

	migrations, err := NewMigrator(nil, fsys).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}

	want := []int{1, 2, 10}
	for i, v := range want {
		if migrations[i].Version != v {
			t.Errorf("position %d: expected version %d, got %d", i, v, migrations[i].Version)
		}
	}
}

func TestLoadMigrations_SkipsInvalidFilenames(t *testing.T) {
	fsys := fstest.MapFS{
		"001_users.sql":   {Data: []byte("SELECT 1;")},
		"README.md":       {Data: []byte("docs")},
		"users.sql":       {Data: []byte("SELECT 2;")},
		"abc_users.sql":   {Data: []byte("SELECT 3;")},
		"sub/002_sub.sql": {Data: []byte("SELECT 4;")},
	}

	migrations, err := NewMigrator(nil, fsys).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 1 {
		t.Fatalf("expected 1 migration, got %d: %+v", len(migrations), migrations)
	}
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"001_users.sql": {Data: []byte("SELECT 1;")},
		"1_again.sql":   {Data: []byte("SELECT 1;")},
	}

	if _, err := NewMigrator(nil, fsys).LoadMigrations(); err == nil {
		t.Error("expected an error for duplicate versions")
	}
}

func TestLoadMigrations_Empty(t *testing.T) {
	migrations, err := NewMigrator(nil, fstest.MapFS{}).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 0 {
		t.Errorf("expected no migrations, got %d", len(migrations))
	}
}

func TestPending(t *testing.T) {
	migrations := []Migration{{Version: 1}, {Version: 2}, {Version: 3}}
	applied := map[int]time.Time{1: time.Now()}

	got := pending(migrations, applied, 0)
	if len(got) != 2 || got[0].Version != 2 || got[1].Version != 3 {
		t.Errorf("expected 2 and 3 pending, got %+v", got)
	}

	got = pending(migrations, applied, 2)
	if len(got) != 1 || got[0].Version != 2 {
		t.Errorf("expected only 2 pending up to target, got %+v", got)
	}
}

func TestBuildStatus(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	migrations := []Migration{
		{Version: 1, Name: "001_users.sql"},
		{Version: 2, Name: "002_reset_index.sql"},
	}

	statuses := buildStatus(migrations, map[int]time.Time{1: at})

	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if !statuses[0].Applied || statuses[0].AppliedAt == nil || !statuses[0].AppliedAt.Equal(at) {
		t.Errorf("expected 001 applied at %v, got %+v", at, statuses[0])
	}
	if statuses[1].Applied || statuses[1].AppliedAt != nil {
		t.Errorf("expected 002 pending, got %+v", statuses[1])
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	migs, err := NewMigrator(nil, migrations.FS).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migs) == 0 || migs[0].Version != 1 {
		t.Fatalf("expected embedded migrations starting at version 1, got %+v", migs)
	}
}
