package event

import "strings"

// EventTypeIdentify is the event_type of user property updates
const EventTypeIdentify = "$identify"

// IdentifyVerbs are the user_properties operations the ingestion endpoint only
// honours on $identify events
var IdentifyVerbs = []string{"$set", "$setOnce", "$add", "$append", "$unset"}

// splitIdentify moves every identify verb out of ev's user_properties into a new
// $identify event carrying ev's identifiers. It returns nil, leaving ev alone,
// unless at least one verb holds a non-null value.
func splitIdentify(ev Event) Event {
	props, ok := ev[FieldUserProperties].(map[string]any)
	if !ok {
		return nil
	}
	assigned := false
	for _, v := range IdentifyVerbs {
		if props[v] != nil {
			assigned = true
			break
		}
	}
	if !assigned {
		return nil
	}

	payload := make(map[string]any, len(IdentifyVerbs))
	for _, v := range IdentifyVerbs {
		if val, ok := props[v]; ok {
			payload[v] = val
			delete(props, v)
		}
	}

	id := Event{
		FieldEventType:      EventTypeIdentify,
		FieldUserProperties: payload,
	}
	for _, k := range []string{FieldUserID, FieldDeviceID} {
		if v := ev[k]; v != nil {
			id[k] = v
		}
	}
	return id
}

// leadingInt reads s the way a lenient integer parser does: optional leading
// space and sign, then digits up to the first non-digit. No digits gives "-1".
func leadingInt(s string) string {
	s = strings.TrimLeft(s, " \t\n\r\f\v")
	neg := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return "-1"
	}
	digits := strings.TrimLeft(s[:end], "0")
	if digits == "" {
		return "0"
	}
	if neg {
		return "-" + digits
	}
	return digits
}
