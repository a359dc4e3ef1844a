// Package jobs runs background maintenance through an asynq worker. The
// only scheduled task today is the giveaway-number backfill sweep.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	TaskTypeNumberBackfill = "giveaway:backfill"
)

const (
	QueueDefault = "default"
	QueueLow     = "low"
)

// NumberBackfillPayload carries no parameters today; the struct exists so
// the payload stays extensible without a task-type change.
type NumberBackfillPayload struct{}

func NewNumberBackfillTask() (*asynq.Task, error) {
	payload, err := json.Marshal(NumberBackfillPayload{})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(TaskTypeNumberBackfill, payload, asynq.Queue(QueueLow)), nil
}
