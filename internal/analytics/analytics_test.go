package analytics

import (
	"database/sql"
	"testing"

	"github.com/lucasnoah/soc2guard/internal/cost"
	"github.com/lucasnoah/soc2guard/internal/soc2"
	"github.com/lucasnoah/soc2guard/internal/store"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	if err := s.Migrate(); err != nil {
		t.Fatalf("migrate test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func exec(t *testing.T, conn *sql.DB, query string, args ...interface{}) {
	t.Helper()
	if _, err := conn.Exec(query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

func seedScan(t *testing.T, s *store.Store, id string) {
	t.Helper()
	if err := s.CreateScan(id, "/repo", soc2.ModeSmart, "claude-sonnet-4-5", 5); err != nil {
		t.Fatal(err)
	}
}

func insertViolation(t *testing.T, s *store.Store, scanID, control, severity, method, file string) {
	t.Helper()
	exec(t, s.Conn(), `INSERT INTO violations
		(scan_id, control_id, severity, description, file_path, line_number, detection_method)
		VALUES (?, ?, ?, 'd', ?, 1, ?)`, scanID, control, severity, file, method)
}

func TestQueryControlBreakdown(t *testing.T) {
	s := testStore(t)
	seedScan(t, s, "scan-1")

	insertViolation(t, s, "scan-1", "CC6.7", "critical", "pattern", "a.py")
	insertViolation(t, s, "scan-1", "CC6.7", "high", "pattern", "a.py")
	insertViolation(t, s, "scan-1", "CC6.7", "high", "hybrid", "b.py")
	insertViolation(t, s, "scan-1", "CC6.1", "high", "pattern", "c.py")

	got, err := QueryControlBreakdown(s, "scan-1")
	if err != nil {
		t.Fatalf("QueryControlBreakdown: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 controls, got %d", len(got))
	}
	// CC6.7 has more violations, so it sorts first.
	if got[0].ControlID != "CC6.7" || got[0].Total != 3 || got[0].Critical != 1 || got[0].High != 2 {
		t.Errorf("CC6.7 breakdown = %+v", got[0])
	}
	if got[1].ControlID != "CC6.1" || got[1].Total != 1 {
		t.Errorf("CC6.1 breakdown = %+v", got[1])
	}
}

func TestQueryControlBreakdownEmptyScan(t *testing.T) {
	s := testStore(t)
	seedScan(t, s, "scan-1")

	got, err := QueryControlBreakdown(s, "scan-1")
	if err != nil {
		t.Fatalf("QueryControlBreakdown: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no breakdowns, got %+v", got)
	}
}

func TestQueryMethodSplit(t *testing.T) {
	s := testStore(t)
	seedScan(t, s, "scan-1")

	insertViolation(t, s, "scan-1", "CC6.7", "critical", "pattern", "a.py")
	insertViolation(t, s, "scan-1", "CC6.7", "high", "pattern", "a.py")
	exec(t, s.Conn(), `INSERT INTO violations
		(scan_id, control_id, severity, description, file_path, line_number, detection_method, confidence_score)
		VALUES ('scan-1', 'CC6.1', 'high', 'd', 'b.py', 1, 'semantic', 90)`)
	exec(t, s.Conn(), `INSERT INTO violations
		(scan_id, control_id, severity, description, file_path, line_number, detection_method, confidence_score)
		VALUES ('scan-1', 'CC7.2', 'medium', 'd', 'c.py', 1, 'hybrid', 70)`)

	got, err := QueryMethodSplit(s, "scan-1")
	if err != nil {
		t.Fatalf("QueryMethodSplit: %v", err)
	}
	if got.Pattern != 2 || got.Semantic != 1 || got.Hybrid != 1 {
		t.Errorf("split = %+v", got)
	}
	// Confidence averages over the scored findings only.
	if got.AvgConfidence != 80 {
		t.Errorf("avg confidence = %v, want 80", got.AvgConfidence)
	}
}

func TestQueryFileHotspots(t *testing.T) {
	s := testStore(t)
	seedScan(t, s, "scan-1")

	insertViolation(t, s, "scan-1", "CC6.7", "high", "pattern", "hot.py")
	insertViolation(t, s, "scan-1", "CC6.1", "high", "pattern", "hot.py")
	insertViolation(t, s, "scan-1", "CC7.2", "medium", "pattern", "hot.py")
	insertViolation(t, s, "scan-1", "CC6.7", "high", "pattern", "warm.py")
	insertViolation(t, s, "scan-1", "A1.2", "high", "pattern", "cold.py")

	got, err := QueryFileHotspots(s, "scan-1", 2)
	if err != nil {
		t.Fatalf("QueryFileHotspots: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 hotspots, got %d", len(got))
	}
	if got[0].FilePath != "hot.py" || got[0].Count != 3 {
		t.Errorf("top hotspot = %+v", got[0])
	}
}

func TestQueryScanCost(t *testing.T) {
	s := testStore(t)
	seedScan(t, s, "scan-1")
	snap := cost.Snapshot{
		InputTokens:      10000,
		OutputTokens:     2000,
		CacheReadTokens:  4000,
		CacheWriteTokens: 500,
		TotalCostUSD:     1.20,
	}
	if err := s.FinishScan("scan-1", 4, 1, snap); err != nil {
		t.Fatal(err)
	}

	got, err := QueryScanCost(s, "scan-1")
	if err != nil {
		t.Fatalf("QueryScanCost: %v", err)
	}
	if got.CostUSD != 1.20 || got.InputTokens != 10000 {
		t.Errorf("cost = %+v", got)
	}
	if got.CacheReadTokens != 4000 || got.CacheWriteTokens != 500 {
		t.Errorf("cache tokens = %+v", got)
	}
	if got.CostPerFile != 0.30 {
		t.Errorf("cost per file = %v, want 0.30", got.CostPerFile)
	}
	if got.DurationSeconds < 0 {
		t.Errorf("duration = %v, want non-negative", got.DurationSeconds)
	}
}

func TestQueryScanCostMissing(t *testing.T) {
	s := testStore(t)
	if _, err := QueryScanCost(s, "nope"); err == nil {
		t.Fatal("expected error for unknown scan")
	}
}

func TestQueryFixCoverage(t *testing.T) {
	s := testStore(t)
	seedScan(t, s, "scan-1")

	insertViolation(t, s, "scan-1", "CC6.7", "critical", "pattern", "a.py")
	insertViolation(t, s, "scan-1", "CC6.1", "high", "pattern", "b.py")
	exec(t, s.Conn(), `INSERT INTO fixes
		(scan_id, control_id, file_path, line_number, fixed_code, trust_level)
		VALUES ('scan-1', 'CC6.7', 'a.py', 1, 'fixed', 'review')`)

	got, err := QueryFixCoverage(s, "scan-1")
	if err != nil {
		t.Fatalf("QueryFixCoverage: %v", err)
	}
	if got.Violations != 2 || got.Fixes != 1 {
		t.Errorf("coverage = %+v", got)
	}
	if got.Pct != 50 {
		t.Errorf("pct = %v, want 50", got.Pct)
	}
}
