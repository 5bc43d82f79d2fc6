package panel

import (
	"context"
	"net/url"
	"strings"
)

// Selection joins the selected values of a pulldown. A single selection is a
// one-element join, nothing selected is "".
func Selection(values []string) string {
	return strings.Join(values, ",")
}

// ReadForm maps each field to the value posted for its control. Text inputs
// are taken verbatim; a control that was not posted reads as "".
func ReadForm(fields []Field, form url.Values) map[string]string {
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		vals := form[f.Name]
		if f.Kind == KindInput {
			if len(vals) > 0 {
				out[f.Name] = vals[0]
			} else {
				out[f.Name] = ""
			}
			continue
		}
		out[f.Name] = Selection(vals)
	}
	return out
}

// WriteFields writes the posted value of every field, in field order, and
// stops at the first host error. Values already written stay written.
func WriteFields(ctx context.Context, acc *Accessor, deviceID int, fields []Field, values map[string]string) error {
	for _, f := range fields {
		if err := acc.SetService(ctx, deviceID, f.ServiceID, f.Name, values[f.Name]); err != nil {
			return err
		}
	}
	return nil
}
