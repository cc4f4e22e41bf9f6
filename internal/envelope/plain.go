package envelope

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

// RenderPlain writes a human-oriented rendering of the envelope. The JSON
// envelope is the contract; this output is best-effort and may change.
func (e *Envelope) RenderPlain(w io.Writer) error {
	if !e.OK {
		if e.Error == nil {
			_, err := fmt.Fprintln(w, "error: unknown failure")
			return err
		}
		if _, err := fmt.Fprintf(w, "error (%s): %s\n", e.Error.Kind, e.Error.Message); err != nil {
			return err
		}
		if e.Error.HTTP != nil && e.Error.HTTP.Status != 0 {
			if _, err := fmt.Fprintf(w, "  http status: %d\n", e.Error.HTTP.Status); err != nil {
				return err
			}
		}
		if e.Error.JMAP != nil && e.Error.JMAP.Type != "" {
			if _, err := fmt.Fprintf(w, "  jmap error: %s\n", e.Error.JMAP.Type); err != nil {
				return err
			}
		}
		return nil
	}

	if err := renderPlainValue(w, e.Data, ""); err != nil {
		return err
	}
	if e.Meta.NextPage != "" {
		if _, err := fmt.Fprintf(w, "next page: %s\n", e.Meta.NextPage); err != nil {
			return err
		}
	}
	for _, warning := range e.Meta.Warnings {
		if _, err := fmt.Fprintf(w, "warning: %s\n", warning); err != nil {
			return err
		}
	}
	return nil
}

// renderPlainValue prints data as indented key/value lines. Data is
// round-tripped through JSON so the plain view always matches what the
// JSON envelope would have shown.
func renderPlainValue(w io.Writer, data any, indent string) error {
	if data == nil {
		_, err := fmt.Fprintln(w, indent+"ok")
		return err
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to render data: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("failed to render data: %w", err)
	}
	return printGeneric(w, generic, indent)
}

func printGeneric(w io.Writer, v any, indent string) error {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			child := val[k]
			switch child.(type) {
			case map[string]any, []any:
				if _, err := fmt.Fprintf(w, "%s%s:\n", indent, k); err != nil {
					return err
				}
				if err := printGeneric(w, child, indent+"  "); err != nil {
					return err
				}
			default:
				if _, err := fmt.Fprintf(w, "%s%s: %s\n", indent, k, plainScalar(child)); err != nil {
					return err
				}
			}
		}
	case []any:
		if len(val) == 0 {
			_, err := fmt.Fprintln(w, indent+"(none)")
			return err
		}
		for i, item := range val {
			switch item.(type) {
			case map[string]any, []any:
				if _, err := fmt.Fprintf(w, "%s- [%d]\n", indent, i); err != nil {
					return err
				}
				if err := printGeneric(w, item, indent+"  "); err != nil {
					return err
				}
			default:
				if _, err := fmt.Fprintf(w, "%s- %s\n", indent, plainScalar(item)); err != nil {
					return err
				}
			}
		}
	default:
		if _, err := fmt.Fprintf(w, "%s%s\n", indent, plainScalar(val)); err != nil {
			return err
		}
	}
	return nil
}

func plainScalar(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		if strings.ContainsAny(val, "\n\t") {
			return fmt.Sprintf("%q", val)
		}
		return val
	case float64:
		// JSON numbers arrive as float64; render integers without decimals.
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case bool:
		return fmt.Sprintf("%t", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
