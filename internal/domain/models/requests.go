package models

// Requests for the assistant HTTP endpoints. Defined in domain for reuse by
// the job queue.

type SessionRequest struct {
	SessionID string `param:"session" json:"session_id" validate:"required,max=64"`
}

type DatasetRequest struct {
	SessionID string `param:"session" json:"session_id" validate:"required,max=64"`
	Kind      string `param:"kind" json:"kind" validate:"required,oneof=market forecast actual regulation trades contract"`
}

type AnalysisRequest struct {
	SessionID string `param:"session" json:"session_id" validate:"required,max=64"`
	Kind      string `param:"kind" json:"kind" validate:"required,oneof=market deviation regulation trades contract forecast risks strategy"`
	// IncludePrompt echoes the prompt sent to the model.
	IncludePrompt bool `query:"include_prompt" json:"include_prompt"`
}

type JobRequest struct {
	SessionID string `param:"session" json:"session_id" validate:"required,max=64"`
	Kind      string `json:"kind" validate:"required,oneof=market deviation regulation trades contract forecast risks strategy"`
}

type JobStatusRequest struct {
	ID string `param:"id" json:"id" validate:"required,uuid"`
}

type PricesRequest struct {
	Region string `query:"region" json:"region" validate:"required"`
	From   string `query:"from" json:"from"`
	To     string `query:"to" json:"to"`
	Limit  int    `query:"limit" json:"limit" default:"500" validate:"gte=1,lte=10000"`
	// Resolution buckets prices; raw returns ticks.
	Resolution string `query:"resolution" json:"resolution" default:"raw" validate:"oneof=raw 30m 1h 1d"`
}

type ReportsRequest struct {
	SessionID string `query:"session" json:"session" validate:"required,max=64"`
	Kind      string `query:"kind" json:"kind" validate:"omitempty,oneof=market deviation regulation trades contract forecast risks strategy"`
	Limit     int    `query:"limit" json:"limit" default:"20" validate:"gte=1,lte=200"`
}
