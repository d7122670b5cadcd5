// Package analytics derives compliance reporting aggregates from the scan
// store: violation counts by control and severity, detection method splits,
// and per-scan cost.
package analytics

import (
	"database/sql"
	"fmt"
	"sort"
)

// DB is the interface for database queries used by analytics.
type DB interface {
	Conn() *sql.DB
}

// ControlBreakdown holds violation counts for one control in one scan.
type ControlBreakdown struct {
	ControlID string `json:"control_id"`
	Total     int    `json:"total"`
	Critical  int    `json:"critical"`
	High      int    `json:"high"`
	Medium    int    `json:"medium"`
	Low       int    `json:"low"`
}

// QueryControlBreakdown returns per-control violation counts for a scan,
// ordered by total descending then control id.
func QueryControlBreakdown(database DB, scanID string) ([]ControlBreakdown, error) {
	rows, err := database.Conn().Query(`
		SELECT control_id,
			COUNT(*) as total,
			SUM(CASE WHEN severity = 'critical' THEN 1 ELSE 0 END),
			SUM(CASE WHEN severity = 'high' THEN 1 ELSE 0 END),
			SUM(CASE WHEN severity = 'medium' THEN 1 ELSE 0 END),
			SUM(CASE WHEN severity = 'low' THEN 1 ELSE 0 END)
		FROM violations WHERE scan_id = ?
		GROUP BY control_id`, scanID)
	if err != nil {
		return nil, fmt.Errorf("query control breakdown: %w", err)
	}
	defer rows.Close()

	var results []ControlBreakdown
	for rows.Next() {
		var b ControlBreakdown
		if err := rows.Scan(&b.ControlID, &b.Total, &b.Critical, &b.High, &b.Medium, &b.Low); err != nil {
			return nil, fmt.Errorf("scan control breakdown: %w", err)
		}
		results = append(results, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Total != results[j].Total {
			return results[i].Total > results[j].Total
		}
		return results[i].ControlID < results[j].ControlID
	})
	return results, nil
}

// MethodSplit holds violation counts by detection method for one scan.
// AvgConfidence averages the confidence scores of semantic and hybrid
// findings; pattern findings carry none.
type MethodSplit struct {
	Pattern       int     `json:"pattern"`
	Semantic      int     `json:"semantic"`
	Hybrid        int     `json:"hybrid"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// QueryMethodSplit returns how many of a scan's violations came from each
// detection stage.
func QueryMethodSplit(database DB, scanID string) (*MethodSplit, error) {
	row := database.Conn().QueryRow(`
		SELECT
			SUM(CASE WHEN detection_method = 'pattern' THEN 1 ELSE 0 END),
			SUM(CASE WHEN detection_method = 'semantic' THEN 1 ELSE 0 END),
			SUM(CASE WHEN detection_method = 'hybrid' THEN 1 ELSE 0 END),
			AVG(confidence_score)
		FROM violations WHERE scan_id = ?`, scanID)

	var pattern, semantic, hybrid sql.NullInt64
	var avgConf sql.NullFloat64
	if err := row.Scan(&pattern, &semantic, &hybrid, &avgConf); err != nil {
		return nil, fmt.Errorf("query method split: %w", err)
	}
	return &MethodSplit{
		Pattern:       int(pattern.Int64),
		Semantic:      int(semantic.Int64),
		Hybrid:        int(hybrid.Int64),
		AvgConfidence: avgConf.Float64,
	}, nil
}

// FileHotspot is a file ranked by violation count.
type FileHotspot struct {
	FilePath string `json:"file_path"`
	Count    int    `json:"count"`
}

// QueryFileHotspots returns the files with the most violations in a scan,
// limited to the top n.
func QueryFileHotspots(database DB, scanID string, n int) ([]FileHotspot, error) {
	rows, err := database.Conn().Query(`
		SELECT file_path, COUNT(*) as cnt
		FROM violations WHERE scan_id = ?
		GROUP BY file_path
		ORDER BY cnt DESC, file_path
		LIMIT ?`, scanID, n)
	if err != nil {
		return nil, fmt.Errorf("query file hotspots: %w", err)
	}
	defer rows.Close()

	var results []FileHotspot
	for rows.Next() {
		var h FileHotspot
		if err := rows.Scan(&h.FilePath, &h.Count); err != nil {
			return nil, fmt.Errorf("scan file hotspot: %w", err)
		}
		results = append(results, h)
	}
	return results, rows.Err()
}

// ScanCost summarizes the spend and duration of one scan. DurationSeconds is
// zero while the scan is still running.
type ScanCost struct {
	ScanID           string  `json:"scan_id"`
	InputTokens      int     `json:"input_tokens"`
	OutputTokens     int     `json:"output_tokens"`
	CacheReadTokens  int     `json:"cache_read_tokens"`
	CacheWriteTokens int     `json:"cache_write_tokens"`
	CostUSD          float64 `json:"cost_usd"`
	FilesScanned     int     `json:"files_scanned"`
	CostPerFile      float64 `json:"cost_per_file"`
	DurationSeconds  float64 `json:"duration_seconds"`
}

// QueryScanCost returns the token and USD spend recorded for a scan.
func QueryScanCost(database DB, scanID string) (*ScanCost, error) {
	row := database.Conn().QueryRow(`
		SELECT id, input_tokens, output_tokens, cache_read_tokens, cache_write_tokens,
			cost_usd, files_scanned,
			COALESCE((julianday(finished_at) - julianday(started_at)) * 86400, 0)
		FROM scans WHERE id = ?`, scanID)

	var c ScanCost
	if err := row.Scan(&c.ScanID, &c.InputTokens, &c.OutputTokens, &c.CacheReadTokens,
		&c.CacheWriteTokens, &c.CostUSD, &c.FilesScanned, &c.DurationSeconds); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("scan %q not found", scanID)
		}
		return nil, fmt.Errorf("query scan cost: %w", err)
	}
	if c.FilesScanned > 0 {
		c.CostPerFile = c.CostUSD / float64(c.FilesScanned)
	}
	return &c, nil
}

// FixCoverage reports how many violations in a scan got a synthesized fix.
type FixCoverage struct {
	Violations int     `json:"violations"`
	Fixes      int     `json:"fixes"`
	Pct        float64 `json:"coverage_pct"`
}

// QueryFixCoverage returns the fix coverage for a scan.
func QueryFixCoverage(database DB, scanID string) (*FixCoverage, error) {
	var c FixCoverage
	err := database.Conn().QueryRow(
		`SELECT COUNT(*) FROM violations WHERE scan_id = ?`, scanID,
	).Scan(&c.Violations)
	if err != nil {
		return nil, fmt.Errorf("count violations: %w", err)
	}
	err = database.Conn().QueryRow(
		`SELECT COUNT(*) FROM fixes WHERE scan_id = ?`, scanID,
	).Scan(&c.Fixes)
	if err != nil {
		return nil, fmt.Errorf("count fixes: %w", err)
	}
	if c.Violations > 0 {
		c.Pct = 100 * float64(c.Fixes) / float64(c.Violations)
	}
	return &c, nil
}
