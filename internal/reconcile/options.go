package reconcile

import (
	"github.com/roach88/rekey/internal/model"
)

// Phase is the audit phase name of reconciliation.
const Phase = "fix-duplicates"

// Dependent is a table whose records reference an Event or Class.
// TextField holds a copy of the textual identifier; LinkField holds record
// links. Either may be empty, not both.
type Dependent struct {
	Name      string `yaml:"name" json:"name"`
	Table     string `yaml:"table" json:"table"`
	TextField string `yaml:"text_field,omitempty" json:"text_field,omitempty"`
	LinkField string `yaml:"link_field,omitempty" json:"link_field,omitempty"`
	Optional  bool   `yaml:"optional,omitempty" json:"optional,omitempty"`
}

// Policy picks the member kept when no member already holds the canonical id.
type Policy struct {
	Name string
	Pick func(members []model.Event) int
}

// SelectFirst keeps the first member in source order.
var SelectFirst = Policy{
	Name: "first-member",
	Pick: func([]model.Event) int { return 0 },
}

// policyCanonical names the rule that keeps a member already canonical.
const policyCanonical = "matches-canonical"

// Options configures an Engine.
type Options struct {
	EventsTable     string
	ClassesTable    string
	EventFields     model.EventFields
	ClassFields     model.ClassFields
	Dependents      []Dependent
	ClassDependents []Dependent
	MergeClasses    bool
	Policy          Policy
}

// DefaultOptions returns the production table layout.
func DefaultOptions() Options {
	return Options{
		EventsTable:     "Events",
		ClassesTable:    "Classes",
		EventFields:     model.DefaultEventFields(),
		ClassFields:     model.DefaultClassFields(),
		Dependents:      DefaultDependents(),
		ClassDependents: DefaultClassDependents(),
		MergeClasses:    true,
		Policy:          SelectFirst,
	}
}

// DefaultDependents lists the Event dependents in relink order.
// The classes dependent must stay on its link field: class merging reads it.
func DefaultDependents() []Dependent {
	return []Dependent{
		{Name: "legacy_journey", Table: "parent_journey_table", TextField: "booking_id"},
		{Name: "orders", Table: "Orders", TextField: "booking_id", Optional: true},
		{Name: "classes", Table: "Classes", LinkField: "event"},
		{Name: "registrations", Table: "Registrations", TextField: "event_id", LinkField: "event"},
	}
}

// DefaultClassDependents lists the Class dependents relinked when Classes merge.
func DefaultClassDependents() []Dependent {
	return []Dependent{
		{Name: "legacy_journey_class", Table: "parent_journey_table", TextField: "class_id"},
		{Name: "registrations_class", Table: "Registrations", LinkField: "class"},
	}
}
