package model

import "time"

// RunStatus tracks a batch run through its lifecycle.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// RunStats summarizes a finished batch.
type RunStats struct {
	Features  int `json:"features"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Cells     int `json:"cells"`
}

// BatchRun is the persisted record of one batch invocation: the input it
// read, the options it ran under, and its aggregate results.
type BatchRun struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Status    RunStatus `json:"status"`
	Options   Options   `json:"options"`
	Stats     RunStats  `json:"stats"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
