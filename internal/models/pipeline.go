package models

import "time"

// TaskKind selects which artifact a generation call produces.
type TaskKind string

const (
	TaskSoapNote TaskKind = "soap_note"
	TaskSummary  TaskKind = "summary"
)

// GenerationRequest is one call to the generation backend.
type GenerationRequest struct {
	Task       TaskKind
	Transcript string
}

// PipelineResult is emitted only when both artifacts were generated.
type PipelineResult struct {
	SoapNote       string `json:"soapNote"`
	PatientSummary string `json:"patientSummary"`
}

const (
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// PipelineRun is the metadata record of a single pipeline execution.
// It never carries transcript or artifact text.
type PipelineRun struct {
	ID         string        `json:"id"`
	FileName   string        `json:"file_name"`
	FileKind   string        `json:"file_kind"`
	Size       int64         `json:"size"`
	Status     string        `json:"status"`
	ErrorKind  string        `json:"error_kind,omitempty"`
	Duration   time.Duration `json:"duration"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}
