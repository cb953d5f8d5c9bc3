package airtable

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/rekey/internal/queryir"
)

// matchAll is the formula that selects every record.
const matchAll = "TRUE()"

// Formula compiles a predicate to a filterByFormula expression.
// A nil predicate compiles to "".
//
// Inside a formula a linked-record field evaluates to the primary-field
// values of the linked records, never to their record ids. HasLink therefore
// compiles to TRUE() and callers match link fields on the returned records.
// An OR containing a HasLink widens to TRUE() as well.
func Formula(p queryir.Predicate) (string, error) {
	if p == nil {
		return "", nil
	}
	switch pred := p.(type) {
	case queryir.Equals:
		lit, err := literal(pred.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s = %s", fieldRef(pred.Field), lit), nil
	case queryir.Contains:
		return fmt.Sprintf("FIND(%s, %s) > 0", quote(pred.Substring), fieldRef(pred.Field)), nil
	case queryir.HasLink:
		return matchAll, nil
	case queryir.And:
		return junction("AND", matchAll, pred.Predicates)
	case queryir.Or:
		return junction("OR", "FALSE()", pred.Predicates)
	default:
		return "", fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func junction(fn, empty string, preds []queryir.Predicate) (string, error) {
	if len(preds) == 0 {
		return empty, nil
	}
	parts := make([]string, 0, len(preds))
	widened := false
	for _, p := range preds {
		if p == nil {
			return "", fmt.Errorf("nil predicate in %s", fn)
		}
		s, err := Formula(p)
		if err != nil {
			return "", err
		}
		if s == matchAll {
			widened = true
			continue
		}
		parts = append(parts, s)
	}
	if len(parts) == 0 || (widened && fn == "OR") {
		return matchAll, nil
	}
	return fn + "(" + strings.Join(parts, ", ") + ")", nil
}

func fieldRef(name string) string {
	return "{" + name + "}"
}

func literal(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return quote(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case bool:
		if x {
			return "TRUE()", nil
		}
		return "FALSE()", nil
	default:
		return "", fmt.Errorf("unsupported literal type: %T", v)
	}
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func quote(s string) string {
	return "'" + quoteEscaper.Replace(s) + "'"
}
