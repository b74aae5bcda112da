// Package jobs runs the background tasks of the web tier on asynq.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLocationRefresh reloads the district and upazila dataset.
	TaskLocationRefresh = "location:refresh"
	// TaskListsWarmup prefetches the public donation request list.
	TaskListsWarmup = "lists:warmup"
)

// DefaultWarmupPages is how many public list pages a warmup run fetches.
const DefaultWarmupPages = 3

// ListsWarmupPayload configures a warmup run.
type ListsWarmupPayload struct {
	Pages int `json:"pages"`
}

// NewLocationRefreshTask constructs the dataset refresh task.
func NewLocationRefreshTask() *asynq.Task {
	return asynq.NewTask(TaskLocationRefresh, nil)
}

// NewListsWarmupTask constructs a warmup task for the given page count.
func NewListsWarmupTask(pages int) (*asynq.Task, error) {
	data, err := json.Marshal(ListsWarmupPayload{Pages: pages})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskListsWarmup, data), nil
}
