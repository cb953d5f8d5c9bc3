package validate

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/rekey/internal/snapshot"
)

// Check names.
const (
	CheckCounts     = "counts"
	CheckEntitySet  = "entity_set"
	CheckSnapshot   = "snapshot"
	CheckOrphans    = "orphans"
	CheckDuplicates = "duplicates"
	CheckSample     = "sample"
	CheckRead       = "read"
)

// Finding is one error or warning of a check.
type Finding struct {
	Check     string   `json:"check"`
	Message   string   `json:"message"`
	RecordIDs []string `json:"record_ids,omitempty"`
}

func (f Finding) String() string {
	if len(f.RecordIDs) == 0 {
		return fmt.Sprintf("[%s] %s", f.Check, f.Message)
	}
	return fmt.Sprintf("[%s] %s (%d records)", f.Check, f.Message, len(f.RecordIDs))
}

// Stats summarizes what the checks saw.
type Stats struct {
	Events           int `json:"events"`
	Classes          int `json:"classes"`
	ExpectedEvents   int `json:"expected_events"`
	ExpectedClasses  int `json:"expected_classes"`
	Orphans          int `json:"orphans"`
	DuplicateGroups  int `json:"duplicate_groups"`
	Sampled          int `json:"sampled"`
	SampleMismatches int `json:"sample_mismatches"`
}

// Report is the structured result of a validation pass.
type Report struct {
	Passed      bool      `json:"passed"`
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Errors      []Finding `json:"errors"`
	Warnings    []Finding `json:"warnings"`
	Stats       Stats     `json:"stats"`
}

func (r *Report) errorf(check string, ids []string, format string, args ...any) {
	r.Errors = append(r.Errors, Finding{Check: check, Message: fmt.Sprintf(format, args...), RecordIDs: ids})
}

func (r *Report) warnf(check string, ids []string, format string, args ...any) {
	r.Warnings = append(r.Warnings, Finding{Check: check, Message: fmt.Sprintf(format, args...), RecordIDs: ids})
}

// ExitCode is 0 when the report passed and 1 otherwise.
func (r Report) ExitCode() int {
	if r.Passed {
		return 0
	}
	return 1
}

// Write stores the report as indented JSON, replacing path atomically.
func (r Report) Write(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return snapshot.WriteFileAtomic(path, append(data, '\n'))
}
