package store

import (
	"database/sql"
	"fmt"

	"github.com/lucasnoah/soc2guard/internal/cost"
	"github.com/lucasnoah/soc2guard/internal/soc2"
)

// ScanRecord represents a row in the scans table.
type ScanRecord struct {
	ID               string
	RootPath         string
	Mode             soc2.ScanMode
	Model            string
	FilesTotal       int
	FilesScanned     int
	FilesFailed      int
	InputTokens      int
	OutputTokens     int
	CacheReadTokens  int
	CacheWriteTokens int
	CostUSD          float64
	StartedAt        string
	FinishedAt       string
}

// ScanEvent represents a row in the scan_events table.
type ScanEvent struct {
	ID        int
	ScanID    string
	Event     string
	FilePath  string
	Detail    string
	Timestamp string
}

// CreateScan inserts a new scan row at its start.
func (s *Store) CreateScan(id, rootPath string, mode soc2.ScanMode, model string, filesTotal int) error {
	_, err := s.conn.Exec(
		`INSERT INTO scans (id, root_path, mode, model, files_total) VALUES (?, ?, ?, ?, ?)`,
		id, rootPath, string(mode), model, filesTotal,
	)
	if err != nil {
		return fmt.Errorf("create scan: %w", err)
	}
	return nil
}

// FinishScan records the scan's final counters and its full token/cost
// snapshot.
func (s *Store) FinishScan(id string, filesScanned, filesFailed int, snap cost.Snapshot) error {
	_, err := s.conn.Exec(
		`UPDATE scans SET files_scanned = ?, files_failed = ?, input_tokens = ?,
		 output_tokens = ?, cache_read_tokens = ?, cache_write_tokens = ?, cost_usd = ?,
		 finished_at = datetime('now') WHERE id = ?`,
		filesScanned, filesFailed, snap.InputTokens, snap.OutputTokens,
		snap.CacheReadTokens, snap.CacheWriteTokens, snap.TotalCostUSD, id,
	)
	if err != nil {
		return fmt.Errorf("finish scan: %w", err)
	}
	return nil
}

// GetScan returns one scan row, or nil if the id is unknown.
func (s *Store) GetScan(id string) (*ScanRecord, error) {
	row := s.conn.QueryRow(
		`SELECT id, root_path, mode, model, files_total, files_scanned, files_failed,
		 input_tokens, output_tokens, cache_read_tokens, cache_write_tokens, cost_usd,
		 started_at, COALESCE(finished_at, '')
		 FROM scans WHERE id = ?`, id,
	)
	var r ScanRecord
	err := row.Scan(&r.ID, &r.RootPath, &r.Mode, &r.Model, &r.FilesTotal, &r.FilesScanned,
		&r.FilesFailed, &r.InputTokens, &r.OutputTokens, &r.CacheReadTokens,
		&r.CacheWriteTokens, &r.CostUSD, &r.StartedAt, &r.FinishedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get scan: %w", err)
	}
	return &r, nil
}

// LatestScan returns the most recently started scan, or nil when the store
// is empty.
func (s *Store) LatestScan() (*ScanRecord, error) {
	var id string
	err := s.conn.QueryRow(`SELECT id FROM scans ORDER BY started_at DESC, rowid DESC LIMIT 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest scan: %w", err)
	}
	return s.GetScan(id)
}

// SaveViolations inserts a file's violations in one transaction.
func (s *Store) SaveViolations(scanID string, violations []soc2.Violation) error {
	if len(violations) == 0 {
		return nil
	}
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO violations (scan_id, control_id, severity, description, file_path,
		 line_number, code_snippet, detection_method, confidence_score, pattern_reasoning,
		 semantic_reasoning) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare violation insert: %w", err)
	}
	defer stmt.Close()

	for _, v := range violations {
		var conf interface{}
		if v.ConfidenceScore != nil {
			conf = *v.ConfidenceScore
		}
		if _, err := stmt.Exec(scanID, string(v.ControlID), string(v.Severity), v.Description,
			v.FilePath, v.LineNumber, v.CodeSnippet, string(v.DetectionMethod), conf,
			v.PatternReasoning, v.SemanticReasoning); err != nil {
			return fmt.Errorf("insert violation: %w", err)
		}
	}
	return tx.Commit()
}

// SaveFixes inserts a file's fixes in one transaction.
func (s *Store) SaveFixes(scanID string, fixes []soc2.Fix) error {
	if len(fixes) == 0 {
		return nil
	}
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO fixes (scan_id, control_id, file_path, line_number, original_code,
		 fixed_code, explanation, trust_level) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare fix insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range fixes {
		if _, err := stmt.Exec(scanID, string(f.ControlID), f.FilePath, f.LineNumber,
			f.OriginalCode, f.FixedCode, f.Explanation, string(f.TrustLevel)); err != nil {
			return fmt.Errorf("insert fix: %w", err)
		}
	}
	return tx.Commit()
}

// Violations returns all violations recorded for a scan, ordered by file and
// line.
func (s *Store) Violations(scanID string) ([]soc2.Violation, error) {
	rows, err := s.conn.Query(
		`SELECT control_id, severity, description, file_path, line_number,
		 COALESCE(code_snippet, ''), detection_method, confidence_score,
		 COALESCE(pattern_reasoning, ''), COALESCE(semantic_reasoning, '')
		 FROM violations WHERE scan_id = ? ORDER BY file_path, line_number, id`, scanID,
	)
	if err != nil {
		return nil, fmt.Errorf("query violations: %w", err)
	}
	defer rows.Close()

	var out []soc2.Violation
	for rows.Next() {
		var v soc2.Violation
		var conf sql.NullInt64
		if err := rows.Scan(&v.ControlID, &v.Severity, &v.Description, &v.FilePath,
			&v.LineNumber, &v.CodeSnippet, &v.DetectionMethod, &conf,
			&v.PatternReasoning, &v.SemanticReasoning); err != nil {
			return nil, fmt.Errorf("scan violation row: %w", err)
		}
		if conf.Valid {
			c := int(conf.Int64)
			v.ConfidenceScore = &c
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Fixes returns all fixes recorded for a scan, ordered by file and line.
func (s *Store) Fixes(scanID string) ([]soc2.Fix, error) {
	rows, err := s.conn.Query(
		`SELECT control_id, file_path, line_number, COALESCE(original_code, ''),
		 fixed_code, COALESCE(explanation, ''), trust_level
		 FROM fixes WHERE scan_id = ? ORDER BY file_path, line_number, id`, scanID,
	)
	if err != nil {
		return nil, fmt.Errorf("query fixes: %w", err)
	}
	defer rows.Close()

	var out []soc2.Fix
	for rows.Next() {
		var f soc2.Fix
		if err := rows.Scan(&f.ControlID, &f.FilePath, &f.LineNumber, &f.OriginalCode,
			&f.FixedCode, &f.Explanation, &f.TrustLevel); err != nil {
			return nil, fmt.Errorf("scan fix row: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// LogEvent inserts a scan lifecycle event.
func (s *Store) LogEvent(scanID, event, filePath, detail string) error {
	_, err := s.conn.Exec(
		`INSERT INTO scan_events (scan_id, event, file_path, detail) VALUES (?, ?, ?, ?)`,
		scanID, event, filePath, detail,
	)
	if err != nil {
		return fmt.Errorf("log scan event: %w", err)
	}
	return nil
}

// Events returns a scan's lifecycle events, oldest first.
func (s *Store) Events(scanID string) ([]ScanEvent, error) {
	rows, err := s.conn.Query(
		`SELECT id, scan_id, event, COALESCE(file_path, ''), COALESCE(detail, ''), timestamp
		 FROM scan_events WHERE scan_id = ? ORDER BY id`, scanID,
	)
	if err != nil {
		return nil, fmt.Errorf("query scan events: %w", err)
	}
	defer rows.Close()

	var out []ScanEvent
	for rows.Next() {
		var e ScanEvent
		if err := rows.Scan(&e.ID, &e.ScanID, &e.Event, &e.FilePath, &e.Detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
