package database

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/ritikbhatt20/copperx-telegram-bot/core/config"
)

func TestDSNEscapesCredentials(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{
		Host: "db", Port: "5432", User: "bot", Password: "p@ss:word", Name: "copperx", SSLMode: "disable",
	})
	if !strings.HasPrefix(dsn, "postgres://bot:p%40ss%3Aword@db:5432/copperx") {
		t.Fatalf("unexpected dsn %s", dsn)
	}
	if !strings.HasSuffix(dsn, "?sslmode=disable") {
		t.Fatalf("sslmode missing: %s", dsn)
	}
}

func TestEmbeddedSchemaIsPaired(t *testing.T) {
	src := migrationSource("")
	ups, _ := fs.Glob(src, "*.up.sql")
	downs, _ := fs.Glob(src, "*.down.sql")
	if len(ups) == 0 || len(ups) != len(downs) {
		t.Fatalf("up=%v down=%v", ups, downs)
	}
	if sourceName("") != "embedded" || sourceName("/srv/migrations") != "/srv/migrations" {
		t.Fatal("unexpected source names")
	}
}

func TestBetweenSelectsAppliedWindow(t *testing.T) {
	files := []string{"000001_sessions.up.sql", "000002_sessions_index.up.sql", "000003_future.up.sql", "notes.up.sql"}
	if got := between(files, 0, 2); len(got) != 2 {
		t.Fatalf("between(0,2) = %v", got)
	}
	if got := between(files, 2, 2); len(got) != 0 {
		t.Fatalf("between(2,2) = %v", got)
	}
	if got := between(files, 1, 3); len(got) != 2 || got[0] != "000002_sessions_index.up.sql" {
		t.Fatalf("between(1,3) = %v", got)
	}
}

func TestConnectOptionsDefaults(t *testing.T) {
	o := ConnectOptions{}.withDefaults()
	if o.Wait <= 0 || o.Interval <= 0 {
		t.Fatalf("defaults = %+v", o)
	}
}
