package query

import (
	"encoding/json"
	"os"
	"strings"

	"xin/internal/envelope"
)

// filterProperties is the closed set of Email/query leaf condition
// keys from RFC 8621 section 4.4.1.
var filterProperties = map[string]bool{
	"inMailbox":               true,
	"inMailboxOtherThan":      true,
	"before":                  true,
	"after":                   true,
	"minSize":                 true,
	"maxSize":                 true,
	"allInThreadHaveKeyword":  true,
	"someInThreadHaveKeyword": true,
	"noneInThreadHaveKeyword": true,
	"hasKeyword":              true,
	"notKeyword":              true,
	"hasAttachment":           true,
	"text":                    true,
	"from":                    true,
	"to":                      true,
	"cc":                      true,
	"bcc":                     true,
	"subject":                 true,
	"body":                    true,
	"header":                  true,
}

// ParseFilterJSON accepts a raw filter object, inline or as @path, and
// validates it against the Email/query filter grammar before use.
func ParseFilterJSON(arg string) (map[string]any, error) {
	text := arg
	if path, ok := strings.CutPrefix(arg, "@"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, envelope.Usagef("cannot read filter file %s", path)
		}
		text = string(data)
	}
	var filter map[string]any
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	if err := dec.Decode(&filter); err != nil {
		return nil, envelope.Usagef("invalid filter JSON: %v", err)
	}
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	return filter, nil
}

func validateFilter(node map[string]any) error {
	if op, isOperator := node["operator"]; isOperator {
		name, ok := op.(string)
		if !ok || (name != "AND" && name != "OR" && name != "NOT") {
			return envelope.Usagef("unknown filter operator %v (use AND, OR or NOT)", op)
		}
		for key := range node {
			if key != "operator" && key != "conditions" {
				return envelope.Usagef("operator nodes allow only operator and conditions, got %q", key)
			}
		}
		conditions, ok := node["conditions"].([]any)
		if !ok {
			return envelope.Usagef("filter operator %s needs a conditions array", name)
		}
		for _, c := range conditions {
			child, ok := c.(map[string]any)
			if !ok {
				return envelope.Usagef("filter conditions must be objects, got %T", c)
			}
			if err := validateFilter(child); err != nil {
				return err
			}
		}
		return nil
	}
	for key := range node {
		if !filterProperties[key] {
			return envelope.Usagef("unknown filter property %q", key)
		}
	}
	return nil
}
