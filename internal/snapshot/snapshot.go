// Package snapshot holds the extraction snapshot: the unique Events and
// Classes derived from legacy journey rows, written once before
// reconciliation and read back by the validator.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/roach88/rekey/internal/identity"
	"github.com/roach88/rekey/internal/model"
)

// Version is the snapshot format version.
const Version = 1

// ErrMissing is returned by Read when no snapshot exists at the path.
var ErrMissing = errors.New("snapshot missing")

// Snapshot is the source-of-truth entity set of one extraction.
type Snapshot struct {
	Version     int        `json:"version"`
	RunID       string     `json:"run_id"`
	CreatedAt   time.Time  `json:"created_at"`
	Fingerprint string     `json:"fingerprint"`
	Counts      Counts     `json:"counts"`
	Events      []EventRow `json:"events"`
	Classes     []ClassRow `json:"classes"`
}

// Counts are the expected table cardinalities.
type Counts struct {
	Events  int `json:"events"`
	Classes int `json:"classes"`
}

// EventRow is one unique Event as extracted.
type EventRow struct {
	EventID         string `json:"event_id"`
	SchoolName      string `json:"school_name"`
	EventDate       string `json:"event_date"`
	EventType       string `json:"event_type,omitempty"`
	Category        string `json:"category"`
	LegacyBookingID string `json:"legacy_booking_id,omitempty"`
}

// ClassRow is one unique Class as extracted.
type ClassRow struct {
	ClassID       string `json:"class_id"`
	EventID       string `json:"event_id"`
	ClassName     string `json:"class_name"`
	MainTeacher   string `json:"main_teacher,omitempty"`
	TotalChildren int64  `json:"total_children,omitempty"`
}

// Extract derives unique Events and Classes from journey rows.
//
// Events are unique per natural key (school, date); the first row of a key
// supplies its attributes. Classes are unique per (Event, class-name slug).
// Rows without a usable school or date are skipped and counted.
func Extract(rows []model.Record, f model.JourneyFields) (events []EventRow, classes []ClassRow, skipped int) {
	eventByKey := make(map[model.NaturalKey]int)
	classSeen := make(map[string]bool)

	for _, r := range rows {
		school := r.Raw(f.School)
		date := r.String(f.Date)
		key := model.NaturalKey{School: identity.Slug(school, 0), Date: identity.DateToken(date)}
		if !key.Valid() {
			skipped++
			continue
		}

		idx, ok := eventByKey[key]
		if !ok {
			typ := r.String(f.Type)
			events = append(events, EventRow{
				EventID:         identity.EventID(school, typ, date),
				SchoolName:      school,
				EventDate:       date,
				EventType:       typ,
				Category:        identity.NormalizeCategory(typ),
				LegacyBookingID: r.String(f.LegacyBooking),
			})
			idx = len(events) - 1
			eventByKey[key] = idx
		}
		ev := events[idx]

		name := r.Raw(f.ClassName)
		slug := identity.Slug(name, 0)
		if slug == "" {
			continue
		}
		ck := ev.EventID + "|" + slug
		if classSeen[ck] {
			continue
		}
		classSeen[ck] = true
		classes = append(classes, ClassRow{
			ClassID:       identity.ClassID(ev.SchoolName, name, ev.EventDate),
			EventID:       ev.EventID,
			ClassName:     name,
			MainTeacher:   r.String(f.Teacher),
			TotalChildren: r.Int(f.TotalChildren),
		})
	}
	return events, classes, skipped
}

// New builds a snapshot and computes its counts and fingerprint.
func New(runID string, createdAt time.Time, events []EventRow, classes []ClassRow) *Snapshot {
	s := &Snapshot{
		Version:   Version,
		RunID:     runID,
		CreatedAt: createdAt.UTC(),
		Events:    events,
		Classes:   classes,
		Counts:    Counts{Events: len(events), Classes: len(classes)},
	}
	s.Fingerprint = identity.Fingerprint(s.IDs())
	return s
}

// IDs returns every Event and Class id, sorted.
func (s *Snapshot) IDs() []string {
	ids := make([]string, 0, len(s.Events)+len(s.Classes))
	for _, e := range s.Events {
		ids = append(ids, e.EventID)
	}
	for _, c := range s.Classes {
		ids = append(ids, c.ClassID)
	}
	sort.Strings(ids)
	return ids
}

// Write stores the snapshot as indented JSON. The file is replaced
// atomically so a crash never leaves a truncated snapshot.
func (s *Snapshot) Write(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return WriteFileAtomic(path, append(data, '\n'))
}

// Read loads a snapshot. A missing file yields ErrMissing.
func Read(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrMissing, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	if s.Version != Version {
		return nil, fmt.Errorf("snapshot %s: unsupported version %d", path, s.Version)
	}
	return &s, nil
}

// WriteFileAtomic writes data to a temp file beside path and renames it over path.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
