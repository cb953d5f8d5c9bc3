package queryir

// Predicate represents a filter condition over a record's fields.
//
// This is a sealed interface - only types in this package implement it.
//
// Predicate types:
//   - Equals: field = literal
//   - Contains: literal is a substring of a text field
//   - HasLink: a linked-record field includes a record id
//   - And / Or: conjunction / disjunction
type Predicate interface {
	predicateNode()
}

// Select reads every record of a table matching Filter.
//
// Semantics:
//
//	SELECT <fields> FROM <from> WHERE <filter>
//
// Fields limits the returned fields; nil returns every field. Filter nil
// matches every record. Backends always return records in a stable order.
type Select struct {
	From   string
	Filter Predicate
	Fields []string
}

// Equals matches records whose field equals Value exactly.
// Value must be string, int64 or bool.
type Equals struct {
	Field string
	Value any
}

func (Equals) predicateNode() {}

// Contains matches records whose text field contains Substring.
type Contains struct {
	Field     string
	Substring string
}

func (Contains) predicateNode() {}

// HasLink matches records whose linked-record field includes RecordID.
type HasLink struct {
	Field    string
	RecordID string
}

func (HasLink) predicateNode() {}

// And is true when every predicate is true. Empty And is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Or is true when any predicate is true. Empty Or is always false.
type Or struct {
	Predicates []Predicate
}

func (Or) predicateNode() {}

// AnyEquals matches records whose field equals any of values.
// Duplicate values are dropped; order is preserved.
func AnyEquals(field string, values []string) Predicate {
	seen := make(map[string]bool, len(values))
	preds := make([]Predicate, 0, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		preds = append(preds, Equals{Field: field, Value: v})
	}
	return Or{Predicates: preds}
}

// AnyLink matches records whose linked field includes any of ids.
func AnyLink(field string, ids []string) Predicate {
	seen := make(map[string]bool, len(ids))
	preds := make([]Predicate, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		preds = append(preds, HasLink{Field: field, RecordID: id})
	}
	return Or{Predicates: preds}
}
