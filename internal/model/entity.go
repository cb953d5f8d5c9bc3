package model

// Event is one school's one booking occasion.
type Event struct {
	RecordID         string
	EventID          string
	SchoolName       string
	EventDate        string
	EventType        string
	LegacyBookingID  string
	AssignedStaff    []string
	AssignedEngineer []string
}

// Class is one roster within an Event.
type Class struct {
	RecordID      string
	ClassID       string
	ClassName     string
	MainTeacher   string
	TotalChildren int64
	EventLinks    []string
}

// OwningEvent returns the first linked Event record id, or "".
func (c Class) OwningEvent() string {
	if len(c.EventLinks) == 0 {
		return ""
	}
	return c.EventLinks[0]
}

// NaturalKey is the normalized (school, date) pair that identifies an Event.
type NaturalKey struct {
	School string `json:"school"`
	Date   string `json:"date"`
}

func (k NaturalKey) String() string {
	return k.School + "|" + k.Date
}

// Valid reports whether both components are present.
func (k NaturalKey) Valid() bool {
	return k.School != "" && k.Date != ""
}

// DuplicateGroup is the set of Event records sharing a natural key.
// Transient: exists only during a run.
type DuplicateGroup struct {
	Key         NaturalKey
	Members     []Event
	CanonicalID string
}

// ClassKey identifies a Class within its owning Event record.
type ClassKey struct {
	EventRecordID string
	Name          string
}

// ClassGroup is a set of Class records sharing an owning Event and class name.
type ClassGroup struct {
	Key         ClassKey
	Members     []Class
	CanonicalID string
}

// EventFields maps Event attributes to store field names.
type EventFields struct {
	ID              string `yaml:"id" json:"id"`
	School          string `yaml:"school" json:"school"`
	Date            string `yaml:"date" json:"date"`
	Type            string `yaml:"type" json:"type"`
	LegacyBookingID string `yaml:"legacy_booking_id" json:"legacy_booking_id"`
	Staff           string `yaml:"staff" json:"staff"`
	Engineer        string `yaml:"engineer" json:"engineer"`
}

// DefaultEventFields returns the field names of the production Events table.
func DefaultEventFields() EventFields {
	return EventFields{
		ID:              "event_id",
		School:          "school_name",
		Date:            "event_date",
		Type:            "event_type",
		LegacyBookingID: "legacy_booking_id",
		Staff:           "assigned_staff",
		Engineer:        "assigned_engineer",
	}
}

// Decode builds an Event from a store record.
func (f EventFields) Decode(r Record) Event {
	return Event{
		RecordID:         r.ID,
		EventID:          r.String(f.ID),
		SchoolName:       r.Raw(f.School),
		EventDate:        r.String(f.Date),
		EventType:        r.String(f.Type),
		LegacyBookingID:  r.String(f.LegacyBookingID),
		AssignedStaff:    r.Links(f.Staff),
		AssignedEngineer: r.Links(f.Engineer),
	}
}

// Encode renders the writable attributes of an Event as store fields.
// Empty attributes are omitted.
func (f EventFields) Encode(e Event) Fields {
	out := Fields{f.ID: e.EventID, f.School: e.SchoolName, f.Date: e.EventDate}
	if e.EventType != "" {
		out[f.Type] = e.EventType
	}
	if e.LegacyBookingID != "" {
		out[f.LegacyBookingID] = e.LegacyBookingID
	}
	if len(e.AssignedStaff) > 0 {
		out[f.Staff] = LinkIDs(e.AssignedStaff...)
	}
	if len(e.AssignedEngineer) > 0 {
		out[f.Engineer] = LinkIDs(e.AssignedEngineer...)
	}
	return out
}

// ClassFields maps Class attributes to store field names.
type ClassFields struct {
	ID            string `yaml:"id" json:"id"`
	Name          string `yaml:"name" json:"name"`
	Teacher       string `yaml:"teacher" json:"teacher"`
	TotalChildren string `yaml:"total_children" json:"total_children"`
	Event         string `yaml:"event" json:"event"`
}

// DefaultClassFields returns the field names of the production Classes table.
func DefaultClassFields() ClassFields {
	return ClassFields{
		ID:            "class_id",
		Name:          "class_name",
		Teacher:       "main_teacher",
		TotalChildren: "total_children",
		Event:         "event",
	}
}

// Decode builds a Class from a store record.
func (f ClassFields) Decode(r Record) Class {
	return Class{
		RecordID:      r.ID,
		ClassID:       r.String(f.ID),
		ClassName:     r.Raw(f.Name),
		MainTeacher:   r.String(f.Teacher),
		TotalChildren: r.Int(f.TotalChildren),
		EventLinks:    r.Links(f.Event),
	}
}

// Encode renders the writable attributes of a Class as store fields.
func (f ClassFields) Encode(c Class) Fields {
	out := Fields{f.ID: c.ClassID, f.Name: c.ClassName}
	if c.MainTeacher != "" {
		out[f.Teacher] = c.MainTeacher
	}
	if c.TotalChildren > 0 {
		out[f.TotalChildren] = c.TotalChildren
	}
	if len(c.EventLinks) > 0 {
		out[f.Event] = LinkIDs(c.EventLinks...)
	}
	return out
}

// JourneyFields maps legacy journey row attributes to store field names.
// Journey rows are the source of truth for extraction.
type JourneyFields struct {
	BookingID     string `yaml:"booking_id" json:"booking_id"`
	ClassID       string `yaml:"class_id" json:"class_id"`
	School        string `yaml:"school" json:"school"`
	Date          string `yaml:"date" json:"date"`
	Type          string `yaml:"type" json:"type"`
	ClassName     string `yaml:"class_name" json:"class_name"`
	Teacher       string `yaml:"teacher" json:"teacher"`
	TotalChildren string `yaml:"total_children" json:"total_children"`
	LegacyBooking string `yaml:"legacy_booking" json:"legacy_booking"`
}

// DefaultJourneyFields returns the field names of the legacy journey table.
func DefaultJourneyFields() JourneyFields {
	return JourneyFields{
		BookingID:     "booking_id",
		ClassID:       "class_id",
		School:        "school_name",
		Date:          "booking_date",
		Type:          "event_type",
		ClassName:     "class",
		Teacher:       "main_teacher",
		TotalChildren: "total_children",
		LegacyBooking: "legacy_booking_id",
	}
}
