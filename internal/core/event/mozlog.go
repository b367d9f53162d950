package event

import (
	"encoding/json"

	perr "amplisend/internal/platform/errors"
)

// unwrapMozlog lifts the event out of a Mozlog envelope. With `op` and a string
// `data`, data holds the whole event; otherwise Fields is the event and its
// stringified property objects are decoded in place.
func unwrapMozlog(ev Event) (Event, error) {
	fields, ok := ev["Fields"].(map[string]any)
	if !ok {
		return ev, nil
	}

	if data, ok := fields["data"].(string); ok && data != "" && truthy(fields["op"]) {
		inner, err := Decode([]byte(data))
		if err != nil {
			return nil, perr.WithField(err, "Fields.data")
		}
		return inner, nil
	}

	out := Event(fields)
	for _, k := range []string{"event_properties", "user_properties"} {
		s, ok := out[k].(string)
		if !ok || s == "" {
			continue
		}
		obj, err := Decode([]byte(s))
		if err != nil {
			return nil, perr.WithField(err, "Fields."+k)
		}
		out[k] = map[string]any(obj)
	}
	return out, nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case json.Number:
		return t.String() != "0"
	default:
		return true
	}
}
