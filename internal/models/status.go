package models

import (
	"fmt"
	"time"
)

// PipelineState is a step of the single-job state machine:
// START → CONFIG_LOADED → MODEL_LOADED → GENERATED → WRITING → DONE, or FAILED from any step.
type PipelineState string

const (
	StateStart        PipelineState = "start"
	StateConfigLoaded PipelineState = "config_loaded"
	StateModelLoaded  PipelineState = "model_loaded"
	StateGenerated    PipelineState = "generated"
	StateWriting      PipelineState = "writing"
	StateDone         PipelineState = "done"
	StateFailed       PipelineState = "failed"
)

// Terminal reports whether no further transition is possible from s.
func (s PipelineState) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// JobStatus represents the lifecycle state reported to the platform.
type JobStatus string

const (
	StatusInProgress JobStatus = "in_progress" // Configuration accepted, model work under way
	StatusCompleted  JobStatus = "completed"   // All artifacts written
	StatusFailed     JobStatus = "failed"      // Job terminated with a fatal error
)

// TaskStatusUpdate is published to report the current status of the job.
type TaskStatusUpdate struct {
	JobID      string    `json:"job_id"`
	ProviderID string    `json:"provider_id"` // Host running this job
	Status     JobStatus `json:"status"`
	State      string    `json:"state"`
	Timestamp  time.Time `json:"timestamp"`
	Message    string    `json:"message,omitempty"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Results    []string  `json:"results,omitempty"` // Artifact file names written so far
}

// NewTaskStatusUpdate creates a new TaskStatusUpdate with the current timestamp.
func NewTaskStatusUpdate(jobID, providerID string, status JobStatus, state PipelineState, message string) *TaskStatusUpdate {
	return &TaskStatusUpdate{
		JobID:      jobID,
		ProviderID: providerID,
		Status:     status,
		State:      string(state),
		Message:    message,
		Timestamp:  time.Now().UTC(),
	}
}

// String returns a human-readable string representation of the TaskStatusUpdate.
func (tsu *TaskStatusUpdate) String() string {
	return fmt.Sprintf("JobID: %s, Provider: %s, Status: %s, State: %s, Time: %s, Msg: %s",
		tsu.JobID, tsu.ProviderID, tsu.Status, tsu.State, tsu.Timestamp.Format(time.RFC3339), tsu.Message)
}
