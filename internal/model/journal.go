package model

// JournalEntry is one audited decision or mutation of a run.
type JournalEntry struct {
	RunID    string `json:"run_id"`
	Phase    string `json:"phase"`
	Action   string `json:"action"` // skip|create|update|delete|error|relink|keep
	Table    string `json:"table,omitempty"`
	RecordID string `json:"record_id,omitempty"`
	Detail   string `json:"detail,omitempty"`
	DryRun   bool   `json:"dry_run"`
}

// Journal actions.
const (
	ActionSkip   = "skip"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionError  = "error"
	ActionKeep   = "keep"
)
