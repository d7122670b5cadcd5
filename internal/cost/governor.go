// Package cost tracks token and USD spend for one scan and gates semantic
// analyzer invocations against a configured per-scan ceiling. The governor is
// the only state shared across concurrently processed files, so every
// counter mutation and limit check happens under one mutex; the lock is never
// held across an external call.
package cost

import (
	"sync"

	"github.com/lucasnoah/soc2guard/internal/llm"
)

// ModelPrice is USD per million tokens for one model.
type ModelPrice struct {
	InputUSDPerMTok  float64
	OutputUSDPerMTok float64
}

// Cache token pricing relative to the input rate.
const (
	cacheReadFactor  = 0.1
	cacheWriteFactor = 1.25
)

var priceTable = map[string]ModelPrice{
	"claude-3-5-haiku":  {0.80, 4.00},
	"claude-sonnet-4-5": {3.00, 15.00},
	"claude-opus-4-1":   {15.00, 75.00},
}

var defaultPrice = ModelPrice{3.00, 15.00}

// PriceFor returns the price entry for a model, falling back to the default
// for unknown model names.
func PriceFor(model string) ModelPrice {
	if p, ok := priceTable[model]; ok {
		return p
	}
	return defaultPrice
}

// Snapshot is a point-in-time copy of the governor's accumulated cost.
type Snapshot struct {
	InputTokens      int     `json:"input_tokens"`
	OutputTokens     int     `json:"output_tokens"`
	CacheReadTokens  int     `json:"cache_read_tokens"`
	CacheWriteTokens int     `json:"cache_write_tokens"`
	TotalCostUSD     float64 `json:"total_cost_usd"`
}

// LimitNotice is the signal surfaced to the host when the ceiling is crossed.
type LimitNotice struct {
	CurrentCostUSD float64 `json:"current_cost_usd"`
	CostLimitUSD   float64 `json:"cost_limit_usd"`
	FilesAnalyzed  int     `json:"files_analyzed"`
	TotalFiles     int     `json:"total_files"`
}

// Governor accumulates usage for one scan and enforces the cost ceiling.
type Governor struct {
	mu            sync.Mutex
	price         ModelPrice
	usage         llm.Usage
	costUSD       float64
	limitUSD      float64 // effective ceiling; <= 0 means no ceiling
	incrementUSD  float64 // added to the ceiling on a continue decision
	suspended     bool
	disabled      bool
	filesAnalyzed int
	totalFiles    int
	notify        func(LimitNotice)
}

// NewGovernor creates a governor for one scan. limitUSD <= 0 disables the
// ceiling entirely.
func NewGovernor(model string, limitUSD float64) *Governor {
	return &Governor{
		price:        PriceFor(model),
		limitUSD:     limitUSD,
		incrementUSD: limitUSD,
	}
}

// SetNotify installs the host callback invoked on each ceiling crossing.
func (g *Governor) SetNotify(fn func(LimitNotice)) {
	g.mu.Lock()
	g.notify = fn
	g.mu.Unlock()
}

// SetProgress records scan progress counters carried in limit notices.
func (g *Governor) SetProgress(filesAnalyzed, totalFiles int) {
	g.mu.Lock()
	g.filesAnalyzed = filesAnalyzed
	g.totalFiles = totalFiles
	g.mu.Unlock()
}

// FileDone increments the files-analyzed progress counter.
func (g *Governor) FileDone() {
	g.mu.Lock()
	g.filesAnalyzed++
	g.mu.Unlock()
}

// RecordUsage atomically adds token usage and recomputes the USD total.
func (g *Governor) RecordUsage(u llm.Usage) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.usage.Add(u)
	g.costUSD = g.cost()
}

// cost derives the USD total from the counters. Caller holds the lock.
func (g *Governor) cost() float64 {
	in := float64(g.usage.InputTokens) * g.price.InputUSDPerMTok
	in += float64(g.usage.CacheReadTokens) * g.price.InputUSDPerMTok * cacheReadFactor
	in += float64(g.usage.CacheWriteTokens) * g.price.InputUSDPerMTok * cacheWriteFactor
	out := float64(g.usage.OutputTokens) * g.price.OutputUSDPerMTok
	return (in + out) / 1e6
}

// CheckLimit reports whether the total cost has crossed the ceiling. On the
// first crossing the governor transitions to suspended and notifies the host
// (outside the lock). Further semantic calls are blocked until Resume.
func (g *Governor) CheckLimit() bool {
	g.mu.Lock()
	over := g.limitUSD > 0 && g.costUSD >= g.limitUSD
	var notice *LimitNotice
	var notify func(LimitNotice)
	if over && !g.suspended && !g.disabled {
		g.suspended = true
		notify = g.notify
		notice = &LimitNotice{
			CurrentCostUSD: g.costUSD,
			CostLimitUSD:   g.limitUSD,
			FilesAnalyzed:  g.filesAnalyzed,
			TotalFiles:     g.totalFiles,
		}
	}
	g.mu.Unlock()

	if notice != nil && notify != nil {
		notify(*notice)
	}
	return over
}

// Allow reports whether a new semantic call may be dispatched.
func (g *Governor) Allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.suspended && !g.disabled
}

// Resume applies the host's decision after a limit notice. A continue
// decision raises the effective ceiling by one configured increment (the
// original limit), never removing it; a stop decision permanently disables
// semantic calls for the remainder of the scan. Pattern results collected so
// far stay valid either way.
func (g *Governor) Resume(cont bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cont {
		g.suspended = false
		g.limitUSD += g.incrementUSD
		return
	}
	g.disabled = true
	g.suspended = false
}

// Snapshot returns a copy of the accumulated counters and cost.
func (g *Governor) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Snapshot{
		InputTokens:      g.usage.InputTokens,
		OutputTokens:     g.usage.OutputTokens,
		CacheReadTokens:  g.usage.CacheReadTokens,
		CacheWriteTokens: g.usage.CacheWriteTokens,
		TotalCostUSD:     g.costUSD,
	}
}
