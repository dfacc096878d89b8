package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskOverdueScan is the task type for the nightly overdue invoice sweep.
	TaskOverdueScan = "documents:overdue_scan"
)

// OverdueScanPayload carries the reference time for an overdue sweep. A zero
// AsOf means "now" at execution time.
type OverdueScanPayload struct {
	AsOf time.Time `json:"as_of"`
}

// NewOverdueScanTask constructs an Asynq task.
func NewOverdueScanTask(payload OverdueScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOverdueScan, data), nil
}
