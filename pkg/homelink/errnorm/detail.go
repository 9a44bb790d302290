package errnorm

import (
	"fmt"
)

// DetailKind tags a single normalized message.
type DetailKind int

const (
	// DetailGeneric carries free text.
	DetailGeneric DetailKind = iota
	// DetailFieldMissing reports a required field that was not supplied.
	DetailFieldMissing
	// DetailFieldInvalid reports a field that failed validation.
	DetailFieldInvalid
)

// Detail is one entry of a normalized error, decided once when the body is
// parsed.
type Detail struct {
	Kind     DetailKind
	Location string
	Text     string
}

// Message renders the detail as user-facing text.
func (d Detail) Message() string {
	switch d.Kind {
	case DetailFieldMissing:
		return fmt.Sprintf("Missing field %s", d.Location)
	case DetailFieldInvalid:
		return fmt.Sprintf("Field %s %s", d.Location, d.Text)
	default:
		return d.Text
	}
}

// expandEntry classifies one entry of a validation-error list, such as
// {"type": "missing", "loc": ["body", "name"], "msg": "Field required"}.
func expandEntry(entry any) Detail {
	obj, ok := entry.(map[string]any)
	if !ok {
		return Detail{Kind: DetailGeneric, Text: stringify(entry)}
	}

	typ, _ := obj["type"].(string)
	loc, hasLoc := location(obj["loc"])

	if typ == "missing" {
		return Detail{Kind: DetailFieldMissing, Location: loc}
	}

	for _, field := range []string{"msg", "message"} {
		if text, ok := obj[field].(string); ok && text != "" {
			return Detail{Kind: DetailGeneric, Text: text}
		}
	}

	if hasLoc {
		if loc == "" {
			loc = typ
		}
		text := "is invalid"
		if typ != "" && typ != loc {
			text = typ
		}
		return Detail{Kind: DetailFieldInvalid, Location: loc, Text: text}
	}

	return Detail{Kind: DetailGeneric, Text: stringify(entry)}
}

// location picks the field name out of a "loc" value. Lists such as
// ["body", "name"] name the field in their second element.
func location(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case []any:
		switch len(t) {
		case 0:
			return "", true
		case 1:
			return fmt.Sprint(t[0]), true
		default:
			return fmt.Sprint(t[1]), true
		}
	}
	return fmt.Sprint(v), true
}
