// Package model holds the persisted domain entities of the execution
// engine: Workflow, Node, Edge, Job, JobStep, and UploadedFile. None of
// these types carry behavior beyond small invariant helpers; execution
// logic lives in dag, nodeexec, agent, scheduler, and coordinator.
package model

import "time"

// NodeType discriminates the four node executors the engine supports.
type NodeType string

const (
	NodeExtractText  NodeType = "extract_text"
	NodeGenerativeAI NodeType = "generative_ai"
	NodeFormatter    NodeType = "formatter"
	NodeAgent        NodeType = "agent"
)

// Workflow owns a set of Nodes and Edges. It carries no execution state.
type Workflow struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Node is a typed transform belonging to a Workflow. Config is an opaque
// JSON document whose shape is determined by Type (see internal/nodecfg).
type Node struct {
	ID         string          `json:"id"`
	WorkflowID string          `json:"workflow_id"`
	Type       NodeType        `json:"type"`
	Config     map[string]any  `json:"config"`
	OrderIndex int             `json:"order_index"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Edge is a directed dependency between two Nodes of the same Workflow.
// Condition is reserved and ignored by the engine.
type Edge struct {
	ID         string  `json:"id"`
	WorkflowID string  `json:"workflow_id"`
	FromNodeID string  `json:"from_node_id"`
	ToNodeID   string  `json:"to_node_id"`
	FromPort   string  `json:"from_port,omitempty"`
	ToPort     string  `json:"to_port,omitempty"`
	Condition  *string `json:"condition,omitempty"`
}

// JobStatus is the lifecycle state of a Job or JobStep. It is monotone
// along Pending -> Running -> {Succeeded, Failed}.
type JobStatus string

const (
	StatusPending   JobStatus = "Pending"
	StatusRunning   JobStatus = "Running"
	StatusSucceeded JobStatus = "Succeeded"
	StatusFailed    JobStatus = "Failed"
)

// Terminal reports whether s is a terminal status.
func (s JobStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Job is one execution attempt of a Workflow.
type Job struct {
	ID           string     `json:"id"`
	WorkflowID   string     `json:"workflow_id"`
	Status       JobStatus  `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	FinalOutput  *string    `json:"final_output,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
}

// JobStep is one node's execution record within a Job.
type JobStep struct {
	ID              string          `json:"id"`
	JobID           string          `json:"job_id"`
	NodeID          *string         `json:"node_id,omitempty"`
	NodeType        NodeType        `json:"node_type"`
	Status          JobStatus       `json:"status"`
	StartedAt       time.Time       `json:"started_at"`
	FinishedAt      *time.Time      `json:"finished_at,omitempty"`
	InputText       *string         `json:"input_text,omitempty"`
	OutputText      *string         `json:"output_text,omitempty"`
	ErrorMessage    *string         `json:"error_message,omitempty"`
	ConfigSnapshot  map[string]any  `json:"config_snapshot"`
	Attempt         int             `json:"attempt,omitempty"`
}

// UploadedFile references an externally stored, read-only blob.
type UploadedFile struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	MimeType  string    `json:"mime_type"`
	SizeBytes int64     `json:"size_bytes"`
	Path      string    `json:"path"`
	SHA256    string    `json:"sha256"`
	CreatedAt time.Time `json:"created_at"`
}

// MaxStoredTextBytes bounds how much of input_text/output_text is persisted
// in a JobStep; longer text is truncated for storage per spec.md §4.5.
const MaxStoredTextBytes = 64 * 1024

// TruncateForStorage returns s, truncated to MaxStoredTextBytes with a
// marker suffix if it was cut.
func TruncateForStorage(s string) string {
	if len(s) <= MaxStoredTextBytes {
		return s
	}
	return s[:MaxStoredTextBytes] + "...[truncated]"
}
