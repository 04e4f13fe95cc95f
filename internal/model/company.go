package model

import "time"

// RunStatus represents the lifecycle state of a scan run: accepted but not
// started, finished cleanly, or finished with at least one failed company.
// Per-stage detail travels in ProgressEvent.Stage, not here.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Company identifies one company to scan. URL is optional; when empty the
// discovery step probes and searches for a pipeline page.
type Company struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// Run represents a single scan run over one or more companies.
type Run struct {
	ID        string          `json:"id"`
	Companies []Company       `json:"companies"`
	Status    RunStatus       `json:"status"`
	Results   []CompanyResult `json:"results,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ProgressStage names a pipeline stage for progress reporting.
type ProgressStage string

const (
	StageDiscovery  ProgressStage = "discovery"
	StageOverview   ProgressStage = "overview"
	StageDetailPage ProgressStage = "detail_page"
	StageEnrichment ProgressStage = "enrichment"
	StageCompany    ProgressStage = "company"
)

// ProgressEvent is a structured progress update streamed to the CLI and to
// serve-mode SSE consumers while a run executes.
type ProgressEvent struct {
	RunID      string        `json:"run_id,omitempty"`
	Company    string        `json:"company"`
	Stage      ProgressStage `json:"stage"`
	Message    string        `json:"message"`
	URL        string        `json:"url,omitempty"`
	AssetCount int           `json:"asset_count,omitempty"`
	Err        string        `json:"error,omitempty"`
	At         time.Time     `json:"at"`
}
