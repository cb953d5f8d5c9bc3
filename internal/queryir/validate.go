package queryir

import (
	"fmt"
	"strings"
)

// ValidationError describes one malformed node of a query.
type ValidationError struct {
	Path    string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validate checks a Select for shapes no backend can execute:
// empty table or field names, field names containing quoting characters,
// unsupported literal types, nil predicates inside And/Or.
//
// Validate is a pure function with no side effects.
func Validate(q Select) []ValidationError {
	v := &validator{}
	if strings.TrimSpace(q.From) == "" {
		v.add("from", "table name is empty")
	}
	for i, f := range q.Fields {
		v.checkField(fmt.Sprintf("fields[%d]", i), f)
	}
	if q.Filter != nil {
		v.validatePredicate("filter", q.Filter)
	}
	return v.errs
}

// validator accumulates errors during traversal.
type validator struct {
	errs []ValidationError
}

func (v *validator) add(path, format string, args ...any) {
	v.errs = append(v.errs, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

// checkField rejects names that would break either backend's quoting.
func (v *validator) checkField(path, field string) {
	if strings.TrimSpace(field) == "" {
		v.add(path, "field name is empty")
		return
	}
	if strings.ContainsAny(field, "{}\"") {
		v.add(path, "field name %q contains a quoting character", field)
	}
}

func (v *validator) validatePredicate(path string, p Predicate) {
	switch pred := p.(type) {
	case nil:
		v.add(path, "nil predicate")
	case Equals:
		v.checkField(path+".field", pred.Field)
		switch pred.Value.(type) {
		case string, int64, bool:
		default:
			v.add(path+".value", "unsupported literal type %T", pred.Value)
		}
	case Contains:
		v.checkField(path+".field", pred.Field)
		if pred.Substring == "" {
			v.add(path+".substring", "empty substring matches every record")
		}
	case HasLink:
		v.checkField(path+".field", pred.Field)
		if pred.RecordID == "" {
			v.add(path+".record_id", "record id is empty")
		}
	case And:
		for i, sub := range pred.Predicates {
			v.validatePredicate(fmt.Sprintf("%s.and[%d]", path, i), sub)
		}
	case Or:
		for i, sub := range pred.Predicates {
			v.validatePredicate(fmt.Sprintf("%s.or[%d]", path, i), sub)
		}
	default:
		v.add(path, "unsupported predicate type %T", p)
	}
}
