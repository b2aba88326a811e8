package client

import "time"

// Operation names a lifecycle endpoint of the agent.
type Operation string

const (
	OpInstall Operation = "install"
	OpMods    Operation = "mods"
	OpStart   Operation = "start"
	OpStop    Operation = "stop"
	OpKill    Operation = "kill"
)

// Valid reports whether op is one of the known endpoints.
func (op Operation) Valid() bool {
	switch op {
	case OpInstall, OpMods, OpStart, OpStop, OpKill:
		return true
	}
	return false
}

// Accepted is returned when the agent queued an operation.
type Accepted struct {
	Accepted  bool   `json:"accepted"`
	Operation string `json:"operation"`
	TaskID    string `json:"task_id"`
}

// CommandRequest carries one console line for the running server.
type CommandRequest struct {
	Command string `json:"command"`
}

// Handle identifies the running server process.
type Handle struct {
	RunID     string    `json:"run_id"`
	Name      string    `json:"name"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
}

// ExitInfo describes how the last server run ended.
type ExitInfo struct {
	Cause   string `json:"cause"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Resources is the latest CPU and memory sample of the server process.
type Resources struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryRSS  uint64    `json:"memory_rss"`
	NumThreads int32     `json:"num_threads"`
	Children   int       `json:"children"`
	Timestamp  time.Time `json:"timestamp"`
}

// Status is the response of GET /status.
type Status struct {
	State     string     `json:"state"`
	Current   *Handle    `json:"current,omitempty"`
	LastExit  *ExitInfo  `json:"last_exit,omitempty"`
	Resources *Resources `json:"resources,omitempty"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
