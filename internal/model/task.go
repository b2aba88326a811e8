package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TaskStatus is the lifecycle state of a controller task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "PENDING"
	TaskRunning    TaskStatus = "RUNNING"
	TaskSuccess    TaskStatus = "SUCCESS"
	TaskFailed     TaskStatus = "FAILED"
	TaskTerminated TaskStatus = "TERMINATED"
)

// TaskType names the operation a task was created for.
type TaskType string

const (
	TaskInstallForge TaskType = "install-forge"
	TaskInstallMods  TaskType = "install-mods"
	TaskRun          TaskType = "run"
	TaskStop         TaskType = "stop"
)

// Task is the controller's record for one requested operation. It is never
// stored locally; all mutations go through status notifications.
type Task struct {
	ID        string     `json:"id"`
	ServerID  string     `json:"serverId"`
	Type      TaskType   `json:"type"`
	Status    TaskStatus `json:"status"`
	Result    string     `json:"result,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Request is the payload of every inbound operation.
type Request struct {
	Server Server `json:"server"`
	Task   Task   `json:"task"`
}

// UnmarshalJSON accepts the task under either "task" or the legacy "tasks" key.
func (r *Request) UnmarshalJSON(b []byte) error {
	var raw struct {
		Server Server `json:"server"`
		Task   *Task  `json:"task"`
		Tasks  *Task  `json:"tasks"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	r.Server = raw.Server
	switch {
	case raw.Task != nil:
		r.Task = *raw.Task
	case raw.Tasks != nil:
		r.Task = *raw.Tasks
	default:
		r.Task = Task{}
	}
	return nil
}

// Validate checks the identifiers every pipeline depends on.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Server.ID) == "" {
		return fmt.Errorf("%w: server.id required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.Server.Name) == "" {
		return fmt.Errorf("%w: server.name required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.Task.ID) == "" {
		return fmt.Errorf("%w: task.id required", ErrInvalidRequest)
	}
	return nil
}
