package models

import "time"

type AnalysisKind string

const (
	AnalysisMarket     AnalysisKind = "market"
	AnalysisDeviation  AnalysisKind = "deviation"
	AnalysisRegulation AnalysisKind = "regulation"
	AnalysisTrades     AnalysisKind = "trades"
	AnalysisContract   AnalysisKind = "contract"
	AnalysisForecast   AnalysisKind = "forecast"
	AnalysisRisks      AnalysisKind = "risks"
	AnalysisStrategy   AnalysisKind = "strategy"
)

var AnalysisKinds = []AnalysisKind{
	AnalysisMarket, AnalysisDeviation, AnalysisRegulation, AnalysisTrades,
	AnalysisContract, AnalysisForecast, AnalysisRisks, AnalysisStrategy,
}

func (k AnalysisKind) Valid() bool {
	for _, v := range AnalysisKinds {
		if k == v {
			return true
		}
	}
	return false
}

// Analysis is a generated report: the model's summary plus the deterministic
// figures it was built from.
type Analysis struct {
	ID        string       `json:"id"`
	Kind      AnalysisKind `json:"kind"`
	SessionID string       `json:"session_id"`
	Prompt    string       `json:"prompt,omitempty"`
	Summary   string       `json:"summary"`
	Provider  string       `json:"provider,omitempty"`
	Model     string       `json:"model,omitempty"`
	Figures   interface{}  `json:"figures,omitempty"`
	Sources   []string     `json:"sources,omitempty"`
	Cached    bool         `json:"cached"`
	CreatedAt time.Time    `json:"created_at"`
}

// Briefing gathers every analysis that could run for a session.
// Note: errors are per kind, a briefing itself never fails.
type Briefing struct {
	SessionID string                     `json:"session_id"`
	Timestamp time.Time                  `json:"timestamp"`
	Analyses  map[AnalysisKind]*Analysis `json:"analyses"`
	Errors    map[AnalysisKind]string    `json:"errors,omitempty"`
}

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

type Job struct {
	ID        string       `json:"id"`
	Kind      AnalysisKind `json:"kind"`
	SessionID string       `json:"session_id"`
	Status    JobStatus    `json:"status"`
	Error     string       `json:"error,omitempty"`
	Result    *Analysis    `json:"result,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// ContractAlert flags a session whose PPA has run past its end date.
type ContractAlert struct {
	SessionID string    `json:"session_id"`
	DatasetID string    `json:"dataset_id"`
	EndDate   string    `json:"end_date"`
	CheckedAt time.Time `json:"checked_at"`
}
