package model

import "time"

// RunStatus represents the overall state of a pipeline run (a transaction).
type RunStatus string

const (
	RunStatusPending RunStatus = "PENDING"
	RunStatusSuccess RunStatus = "SUCCESS"
	RunStatusFailure RunStatus = "FAILURE"
)

// Terminal reports whether the status is final.
func (s RunStatus) Terminal() bool {
	return s == RunStatusSuccess || s == RunStatusFailure
}

// StageStatus represents the state of a single stage (a log item).
type StageStatus string

const (
	StageStatusStarted   StageStatus = "STARTED"
	StageStatusCompleted StageStatus = "COMPLETED"
	StageStatusFailed    StageStatus = "FAILED"
)

// Terminal reports whether the status is final.
func (s StageStatus) Terminal() bool {
	return s == StageStatusCompleted || s == StageStatusFailed
}

// StageName identifies one step of the pipeline.
type StageName string

const (
	StageValidation StageName = "Parameter Validation"
	StageFetch      StageName = "Fetch"
	StageConversion StageName = "Conversion"
	StageExtraction StageName = "Extraction"
	StageError      StageName = "Error Handling"
)

// Run is one end-to-end invocation of the pipeline for one document.
// EndTime, DurationMS, NumPages and NumCharacters stay nil until they are known.
type Run struct {
	ID            string     `json:"transaction_id" yaml:"transaction_id"`
	Status        RunStatus  `json:"status" yaml:"status"`
	StartTime     time.Time  `json:"start_time" yaml:"start_time"`
	EndTime       *time.Time `json:"end_time" yaml:"end_time"`
	DurationMS    *int64     `json:"duration_ms" yaml:"duration_ms"`
	NumPages      *int       `json:"num_pages" yaml:"num_pages"`
	NumCharacters *int       `json:"num_characters" yaml:"num_characters"`
	ParsedText    string     `json:"-" yaml:"-"`
	Stages        []Stage    `json:"log_items" yaml:"log_items"`
}

// Stage is one named, independently timed step within a run.
type Stage struct {
	RunID      string      `json:"-" yaml:"-"`
	Seq        int         `json:"-" yaml:"seq"`
	Name       StageName   `json:"step_name" yaml:"step_name"`
	Status     StageStatus `json:"status" yaml:"status"`
	StartTime  time.Time   `json:"start_time" yaml:"start_time"`
	EndTime    *time.Time  `json:"end_time" yaml:"end_time"`
	DurationMS *int64      `json:"duration_ms" yaml:"duration_ms"`
	Message    string      `json:"message" yaml:"message,omitempty"`
}

// RunOutcome is the terminal transition applied to a run.
// Counts are only set when extraction completed.
type RunOutcome struct {
	Status        RunStatus
	EndTime       time.Time
	DurationMS    int64
	NumPages      *int
	NumCharacters *int
	ParsedText    string
}

// StageOutcome is the terminal transition applied to a stage.
type StageOutcome struct {
	Status     StageStatus
	EndTime    time.Time
	DurationMS int64
	Message    string
}
