package model

import (
	"encoding/json"
	"time"
)

// Response is the envelope of the plain HTTP endpoints (health, status).
type Response struct {
	Status    string          `json:"status"`
	RequestID string          `json:"request_id"`
	Timestamp time.Time       `json:"timestamp"`
	Data      any             `json:"data"`
	Error     *SchedulerError `json:"error"`
}

// RPCRequest is a JSON-RPC call with positional parameters.
type RPCRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// RPCResponse carries exactly one of Result or Error.
type RPCResponse struct {
	ID     json.RawMessage `json:"id"`
	Result any             `json:"result"`
	Error  *SchedulerError `json:"error"`
}

// SignatureResult is returned by acceptTask and taskInProgress.
type SignatureResult struct {
	Signature string `json:"sig"`
}

// RestartResult is returned by restartTasks.
type RestartResult struct {
	Restarted int `json:"restarted"`
}

// WorkerStatistics is what a worker may attach to taskFinished.
type WorkerStatistics struct {
	HostName    string `json:"hostName,omitempty"`
	Version     string `json:"version,omitempty"`
	MemoryTotal uint64 `json:"memoryTotal,omitempty"`
	MemoryUsed  uint64 `json:"memoryUsed,omitempty"`
}
