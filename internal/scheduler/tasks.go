package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskRecorrelate = "attribution.recorrelate"

type RecorrelatePayload struct {
	LeadIDs []string `json:"leadIds"`
}

func NewRecorrelateTask(payload RecorrelatePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRecorrelate, data), nil
}

func ParseRecorrelatePayload(task *asynq.Task) (RecorrelatePayload, error) {
	var payload RecorrelatePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return RecorrelatePayload{}, err
	}
	return payload, nil
}
