package database

import (
	"context"
	"testing"
	"testing/fstest"
)

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"20260301_090000_create_events.up.sql": {Data: []byte(
			"CREATE TABLE events (id TEXT PRIMARY KEY, action TEXT NOT NULL);")},
		"20260301_090000_create_events.down.sql": {Data: []byte("DROP TABLE events;")},
		"20260302_100000_add_role.up.sql": {Data: []byte(
			"ALTER TABLE events ADD COLUMN role TEXT;\nCREATE INDEX idx_events_role ON events(role);")},
		"README.md":      {Data: []byte("not a migration")},
		"broken.up.sql":  {Data: []byte("SELECT 1;")},
		"sub/x_y.up.sql": {Data: []byte("SELECT 1;")},
	}
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&n)
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	return n == 1
}

func TestLoadMigrations(t *testing.T) {
	got, err := LoadMigrations(testMigrations())
	if err != nil {
		t.Fatalf("LoadMigrations() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d migrations, want 2", len(got))
	}
	if got[0].Version != "20260301_090000" || got[0].Name != "create_events" || got[0].DownSQL == "" {
		t.Errorf("first migration = %+v", got[0])
	}
	if got[1].Version != "20260302_100000" || got[1].Name != "add_role" || got[1].DownSQL != "" {
		t.Errorf("second migration = %+v", got[1])
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		file        string
		wantVersion string
		wantName    string
		wantUp      bool
		wantOK      bool
	}{
		{"20260301_090000_create_audit_logs.up.sql", "20260301_090000", "create_audit_logs", true, true},
		{"20260301_090000_create_audit_logs.down.sql", "20260301_090000", "create_audit_logs", false, true},
		{"20260301_090000.up.sql", "20260301_090000", "20260301_090000", true, true},
		{"20260301_090000_x.sql", "", "", false, false},
		{"2026_09_x.up.sql", "", "", false, false},
		{"notes.txt", "", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			version, name, up, ok := parseMigrationFilename(tt.file)
			if version != tt.wantVersion || name != tt.wantName || up != tt.wantUp || ok != tt.wantOK {
				t.Errorf("got (%q, %q, %v, %v), want (%q, %q, %v, %v)",
					version, name, up, ok, tt.wantVersion, tt.wantName, tt.wantUp, tt.wantOK)
			}
		})
	}
}

func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	fsys := testMigrations()

	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if !tableExists(t, db, "events") {
		t.Fatal("events table not created")
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO events (id, action, role) VALUES ('a', 'x', 'setpoint')"); err != nil {
		t.Errorf("second migration not applied: %v", err)
	}

	pending, err := db.Pending(ctx, fsys)
	if err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("Pending() = %d migrations, want 0", len(pending))
	}

	if err := db.Migrate(ctx, fsys); err != nil {
		t.Errorf("second Migrate() error = %v", err)
	}
}

func TestMigrate_FailureRollsBack(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	fsys := fstest.MapFS{
		"20260301_090000_ok.up.sql":  {Data: []byte("CREATE TABLE good (id INTEGER);")},
		"20260302_090000_bad.up.sql": {Data: []byte("CREATE TABLE half (id INTEGER); NOT SQL;")},
	}

	if err := db.Migrate(ctx, fsys); err == nil {
		t.Fatal("Migrate() succeeded on broken SQL")
	}
	if !tableExists(t, db, "good") {
		t.Error("earlier migration was not kept")
	}
	pending, err := db.Pending(ctx, fsys)
	if err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	if len(pending) != 1 || pending[0].Name != "bad" {
		t.Errorf("Pending() = %+v, want only bad", pending)
	}
}

func TestMigrateDown(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	fsys := fstest.MapFS{
		"20260301_090000_create_events.up.sql":   {Data: []byte("CREATE TABLE events (id TEXT);")},
		"20260301_090000_create_events.down.sql": {Data: []byte("DROP TABLE events;")},
	}

	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx, fsys); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if tableExists(t, db, "events") {
		t.Error("events table still present after MigrateDown")
	}
	if err := db.MigrateDown(ctx, fsys); err == nil {
		t.Error("MigrateDown() with nothing applied succeeded")
	}
}
