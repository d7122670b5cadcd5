package store

import (
	"testing"

	"github.com/lucasnoah/soc2guard/internal/cost"
	"github.com/lucasnoah/soc2guard/internal/soc2"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	if err := s.Migrate(); err != nil {
		t.Fatalf("migrate test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrate(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if err := s.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	// Verify all tables exist
	tables := []string{"schema_version", "scans", "violations", "fixes", "scan_events"}
	for _, table := range tables {
		var name string
		err := s.conn.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}

	// Migrate again should be idempotent
	if err := s.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestScanLifecycle(t *testing.T) {
	s := testStore(t)

	if err := s.CreateScan("scan-1", "/repo", soc2.ModeSmart, "claude-sonnet-4-5", 10); err != nil {
		t.Fatalf("create scan: %v", err)
	}

	r, err := s.GetScan("scan-1")
	if err != nil {
		t.Fatalf("get scan: %v", err)
	}
	if r == nil {
		t.Fatal("scan not found")
	}
	if r.Mode != soc2.ModeSmart || r.FilesTotal != 10 {
		t.Errorf("got %+v", r)
	}
	if r.FinishedAt != "" {
		t.Errorf("new scan should not be finished, got %q", r.FinishedAt)
	}

	snap := cost.Snapshot{
		InputTokens:      5000,
		OutputTokens:     1200,
		CacheReadTokens:  800,
		CacheWriteTokens: 300,
		TotalCostUSD:     0.42,
	}
	if err := s.FinishScan("scan-1", 9, 1, snap); err != nil {
		t.Fatalf("finish scan: %v", err)
	}
	r, err = s.GetScan("scan-1")
	if err != nil {
		t.Fatalf("get scan after finish: %v", err)
	}
	if r.FilesScanned != 9 || r.FilesFailed != 1 || r.CostUSD != 0.42 {
		t.Errorf("got %+v", r)
	}
	if r.InputTokens != 5000 || r.OutputTokens != 1200 {
		t.Errorf("token counters not persisted: %+v", r)
	}
	if r.CacheReadTokens != 800 || r.CacheWriteTokens != 300 {
		t.Errorf("cache token counters not persisted: %+v", r)
	}
	if r.FinishedAt == "" {
		t.Error("finished scan should carry a finished_at timestamp")
	}
}

func TestGetScanMissing(t *testing.T) {
	s := testStore(t)
	r, err := s.GetScan("nope")
	if err != nil {
		t.Fatalf("get scan: %v", err)
	}
	if r != nil {
		t.Errorf("expected nil for unknown scan, got %+v", r)
	}
}

func TestLatestScan(t *testing.T) {
	s := testStore(t)

	r, err := s.LatestScan()
	if err != nil {
		t.Fatalf("latest scan: %v", err)
	}
	if r != nil {
		t.Errorf("empty store should have no latest scan, got %+v", r)
	}

	if err := s.CreateScan("scan-a", "/repo", soc2.ModeRegexOnly, "m", 1); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateScan("scan-b", "/repo", soc2.ModeRegexOnly, "m", 1); err != nil {
		t.Fatal(err)
	}

	r, err = s.LatestScan()
	if err != nil {
		t.Fatalf("latest scan: %v", err)
	}
	if r == nil || r.ID != "scan-b" {
		t.Errorf("latest = %+v, want scan-b", r)
	}
}

func TestSaveAndLoadViolations(t *testing.T) {
	s := testStore(t)
	if err := s.CreateScan("scan-1", "/repo", soc2.ModeSmart, "m", 1); err != nil {
		t.Fatal(err)
	}

	conf := 85
	vs := []soc2.Violation{
		{
			ControlID:        soc2.ControlSecrets,
			Severity:         soc2.SeverityCritical,
			Description:      "hardcoded credential",
			FilePath:         "settings.py",
			LineNumber:       3,
			CodeSnippet:      "password = 'x'",
			DetectionMethod:  soc2.MethodPattern,
			PatternReasoning: "matched",
		},
		{
			ControlID:         soc2.ControlAccessControl,
			Severity:          soc2.SeverityHigh,
			Description:       "unauthenticated view",
			FilePath:          "views.py",
			LineNumber:        12,
			DetectionMethod:   soc2.MethodHybrid,
			ConfidenceScore:   &conf,
			PatternReasoning:  "matched",
			SemanticReasoning: "confirmed",
		},
	}
	if err := s.SaveViolations("scan-1", vs); err != nil {
		t.Fatalf("save violations: %v", err)
	}

	got, err := s.Violations("scan-1")
	if err != nil {
		t.Fatalf("load violations: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 violations, got %d", len(got))
	}
	// Ordered by file path: settings.py before views.py
	if got[0].ControlID != soc2.ControlSecrets || got[0].ConfidenceScore != nil {
		t.Errorf("pattern row round-trip wrong: %+v", got[0])
	}
	if got[1].ConfidenceScore == nil || *got[1].ConfidenceScore != 85 {
		t.Errorf("hybrid confidence lost: %+v", got[1])
	}
	if err := got[1].Validate(); err != nil {
		t.Errorf("loaded violation should validate: %v", err)
	}
}

func TestSaveAndLoadFixes(t *testing.T) {
	s := testStore(t)
	if err := s.CreateScan("scan-1", "/repo", soc2.ModeSmart, "m", 1); err != nil {
		t.Fatal(err)
	}

	fixes := []soc2.Fix{{
		ControlID:    soc2.ControlSecrets,
		FilePath:     "settings.py",
		LineNumber:   3,
		OriginalCode: "password = 'x'",
		FixedCode:    "password = os.environ.get(\"PASSWORD\")",
		Explanation:  "env var",
		TrustLevel:   soc2.TrustReview,
	}}
	if err := s.SaveFixes("scan-1", fixes); err != nil {
		t.Fatalf("save fixes: %v", err)
	}

	got, err := s.Fixes("scan-1")
	if err != nil {
		t.Fatalf("load fixes: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 fix, got %d", len(got))
	}
	if got[0].TrustLevel != soc2.TrustReview || got[0].FixedCode == "" {
		t.Errorf("fix round-trip wrong: %+v", got[0])
	}
}

func TestScanEvents(t *testing.T) {
	s := testStore(t)
	if err := s.CreateScan("scan-1", "/repo", soc2.ModeSmart, "m", 2); err != nil {
		t.Fatal(err)
	}

	for _, ev := range []string{"started", "file_done", "limit_hit", "resumed", "finished"} {
		if err := s.LogEvent("scan-1", ev, "", ""); err != nil {
			t.Fatalf("log %s: %v", ev, err)
		}
	}

	events, err := s.Events("scan-1")
	if err != nil {
		t.Fatalf("load events: %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("expected 5 events, got %d", len(events))
	}
	if events[0].Event != "started" || events[4].Event != "finished" {
		t.Errorf("events out of order: %+v", events)
	}
}

func TestLogEventRejectsUnknownKind(t *testing.T) {
	s := testStore(t)
	if err := s.LogEvent("scan-1", "sideways", "", ""); err == nil {
		t.Fatal("expected CHECK constraint to reject unknown event kind")
	}
}
