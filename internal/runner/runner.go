// Package runner drives a whole-repository scan: it walks the tree, fans
// files out to a bounded worker pool, funnels each file through the agent
// pipeline, and persists results. The cost governor is shared across workers;
// when the ceiling is crossed the host's decision callback picks between
// raising the ceiling and finishing the scan on pattern results alone.
package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lucasnoah/soc2guard/internal/agent"
	"github.com/lucasnoah/soc2guard/internal/config"
	"github.com/lucasnoah/soc2guard/internal/cost"
	"github.com/lucasnoah/soc2guard/internal/fix"
	"github.com/lucasnoah/soc2guard/internal/llm"
	"github.com/lucasnoah/soc2guard/internal/semantic"
	"github.com/lucasnoah/soc2guard/internal/soc2"
	"github.com/lucasnoah/soc2guard/internal/store"
)

// DecisionFunc is asked what to do when the scan crosses its cost ceiling.
// Returning true raises the ceiling and continues semantic analysis;
// returning false finishes the scan with pattern detection only.
type DecisionFunc func(cost.LimitNotice) bool

// Runner executes repository scans.
type Runner struct {
	cfg      *config.ScanConfig
	store    *store.Store
	client   llm.Client
	decide   DecisionFunc
	progress io.Writer
}

// New creates a Runner. st may be nil to skip persistence; client may be nil
// to force pattern-only scanning regardless of mode; decide may be nil, which
// stops semantic analysis at the first ceiling crossing.
func New(cfg *config.ScanConfig, st *store.Store, client llm.Client, decide DecisionFunc, progress io.Writer) *Runner {
	if progress == nil {
		progress = io.Discard
	}
	return &Runner{
		cfg:      cfg,
		store:    st,
		client:   client,
		decide:   decide,
		progress: progress,
	}
}

func (r *Runner) logf(format string, args ...interface{}) {
	fmt.Fprintf(r.progress, format+"\n", args...)
}

// ScanResult aggregates everything one scan produced.
type ScanResult struct {
	ScanID          string           `json:"scan_id"`
	RootPath        string           `json:"root_path"`
	Mode            soc2.ScanMode    `json:"mode"`
	FilesTotal      int              `json:"files_total"`
	FilesScanned    int              `json:"files_scanned"`
	FilesFailed     int              `json:"files_failed"`
	Violations      []soc2.Violation `json:"violations"`
	Fixes           []soc2.Fix       `json:"fixes"`
	Cost            cost.Snapshot    `json:"cost"`
	DurationSeconds float64          `json:"duration_seconds"`
}

// Run scans the tree rooted at root. On context cancellation the partial
// result is returned alongside the error: files processed before the cancel
// keep their violations and fixes.
func (r *Runner) Run(ctx context.Context, root string) (*ScanResult, error) {
	s := r.cfg.Scan
	started := time.Now()

	files, err := ListFiles(root, s.IncludeExtensions, s.ExcludeDirs, s.MaxFileKB)
	if err != nil {
		return nil, err
	}

	scanID := uuid.New().String()
	result := &ScanResult{
		ScanID:     scanID,
		RootPath:   root,
		Mode:       s.Mode,
		FilesTotal: len(files),
	}
	r.logf("scan %s: %d file(s) under %s, mode %s", scanID, len(files), root, s.Mode)

	governor := cost.NewGovernor(s.Model, s.CostLimitUSD)
	governor.SetProgress(0, len(files))
	governor.SetNotify(func(n cost.LimitNotice) {
		r.logf("scan %s: cost $%.2f crossed the $%.2f ceiling (%d/%d files analyzed)",
			scanID, n.CurrentCostUSD, n.CostLimitUSD, n.FilesAnalyzed, n.TotalFiles)
		r.logEvent(scanID, "limit_hit", "", fmt.Sprintf("cost_usd=%.4f", n.CurrentCostUSD))

		cont := r.decide != nil && r.decide(n)
		governor.Resume(cont)
		if cont {
			r.logf("scan %s: ceiling raised, semantic analysis continues", scanID)
			r.logEvent(scanID, "resumed", "", "")
		} else {
			r.logf("scan %s: semantic analysis stopped, finishing with pattern detection", scanID)
			r.logEvent(scanID, "stopped", "", "")
		}
	})

	var pipelineClient llm.Client
	if s.Mode != soc2.ModeRegexOnly {
		pipelineClient = r.client
	}
	analyzer := semantic.NewAnalyzer(pipelineClient, governor, s.Model, r.progress)
	synth := fix.NewSynthesizer(pipelineClient, governor, s.Model)
	pipe := agent.NewPipeline(synth,
		agent.WithAnalyzer(analyzer),
		agent.WithMode(s.Mode),
		agent.WithTolerance(s.MergeTolerance),
		agent.WithProgress(r.progress),
	)

	if r.store != nil {
		if err := r.store.CreateScan(scanID, root, s.Mode, s.Model, len(files)); err != nil {
			return nil, err
		}
	}
	r.logEvent(scanID, "started", "", "")

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.Concurrency)

	for _, rel := range files {
		rel := rel
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			data, err := os.ReadFile(filepath.Join(root, rel))
			if err != nil {
				r.logf("scan %s: reading %s: %v", scanID, rel, err)
				r.recordFailure(result, &mu, scanID, rel, err.Error())
				return nil
			}

			state := soc2.NewAgentState(rel, string(data), soc2.FrameworkUnknown)
			res := pipe.Run(gctx, state)
			governor.FileDone()

			if !res.Success {
				r.recordFailure(result, &mu, scanID, rel, state.Error)
				return nil
			}

			mu.Lock()
			result.FilesScanned++
			result.Violations = append(result.Violations, state.Violations...)
			result.Fixes = append(result.Fixes, state.Fixes...)
			mu.Unlock()

			if r.store != nil {
				if err := r.store.SaveViolations(scanID, state.Violations); err != nil {
					return err
				}
				if err := r.store.SaveFixes(scanID, state.Fixes); err != nil {
					return err
				}
			}
			r.logEvent(scanID, "file_done", rel, "")
			return nil
		})
	}

	waitErr := g.Wait()

	result.Cost = governor.Snapshot()
	result.DurationSeconds = time.Since(started).Seconds()
	if r.store != nil {
		if err := r.store.FinishScan(scanID, result.FilesScanned, result.FilesFailed,
			result.Cost); err != nil {
			return result, err
		}
	}
	if waitErr != nil {
		r.logEvent(scanID, "stopped", "", waitErr.Error())
		r.logf("scan %s: stopped after %d file(s): %v", scanID, result.FilesScanned, waitErr)
		return result, waitErr
	}
	r.logEvent(scanID, "finished", "", "")
	r.logf("scan %s: %d scanned, %d failed, %d violation(s), %d fix(es), $%.4f",
		scanID, result.FilesScanned, result.FilesFailed, len(result.Violations), len(result.Fixes), result.Cost.TotalCostUSD)

	return result, nil
}

func (r *Runner) recordFailure(result *ScanResult, mu *sync.Mutex, scanID, rel, detail string) {
	mu.Lock()
	result.FilesFailed++
	mu.Unlock()
	r.logEvent(scanID, "file_failed", rel, detail)
}

// logEvent persists a lifecycle event; persistence problems are logged, not
// fatal, so a bad event row never loses scan results.
func (r *Runner) logEvent(scanID, event, filePath, detail string) {
	if r.store == nil {
		return
	}
	if err := r.store.LogEvent(scanID, event, filePath, detail); err != nil {
		r.logf("scan %s: recording %s event: %v", scanID, event, err)
	}
}
