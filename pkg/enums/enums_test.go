package enums

import "testing"

func TestParsePerformanceTier(t *testing.T) {
	for _, raw := range []string{"A", "B", "C"} {
		tier, err := ParsePerformanceTier(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if tier.String() != raw {
			t.Fatalf("expected %q, got %q", raw, tier)
		}
	}
	if _, err := ParsePerformanceTier("D"); err == nil {
		t.Fatal("expected error for unknown tier")
	}
}

func TestPerformanceTierRank(t *testing.T) {
	if !(PerformanceTierA.Rank() < PerformanceTierB.Rank() && PerformanceTierB.Rank() < PerformanceTierC.Rank()) {
		t.Fatal("expected A < B < C")
	}
	if PerformanceTier("Z").Rank() != 3 {
		t.Fatal("expected unknown tier to rank last")
	}
}

func TestParseDBDriverAliases(t *testing.T) {
	cases := map[string]DBDriver{
		"sqlserver":  DBDriverSQLServer,
		"MSSQL":      DBDriverSQLServer,
		"postgresql": DBDriverPostgres,
		"mysql":      DBDriverMySQL,
		"sqlite3":    DBDriverSQLite,
	}
	for raw, want := range cases {
		got, err := ParseDBDriver(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if got != want {
			t.Fatalf("parse %q: expected %s, got %s", raw, want, got)
		}
	}
	if _, err := ParseDBDriver("oracle"); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestGooseDialect(t *testing.T) {
	if DBDriverSQLServer.GooseDialect() != "mssql" {
		t.Fatalf("unexpected dialect %s", DBDriverSQLServer.GooseDialect())
	}
	if DBDriverSQLite.GooseDialect() != "sqlite3" {
		t.Fatalf("unexpected dialect %s", DBDriverSQLite.GooseDialect())
	}
	if DBDriverPostgres.GooseDialect() != "postgres" {
		t.Fatalf("unexpected dialect %s", DBDriverPostgres.GooseDialect())
	}
}
