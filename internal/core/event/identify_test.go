package event

import (
	"encoding/json"
	"testing"
)

func mustExpand(t *testing.T, n *Normalizer, line string) []Event {
	t.Helper()
	evs, err := n.Expand([]byte(line))
	if err != nil {
		t.Fatalf("Expand(%s): %v", line, err)
	}
	return evs
}

func TestExpandSplitsIdentifyVerbs(t *testing.T) {
	n := NewNormalizer(testKey, WithIdentify(true))
	evs := mustExpand(t, n, `{"user_id":"alice","device_id":"dev","event_type":"fxa_login","time":5,
		"user_properties":{"$set":{"plan":"pro"},"$append":{"tags":"x"},"$unset":null,"locale":"en"}}`)
	if len(evs) != 2 {
		t.Fatalf("got %d events", len(evs))
	}
	id, ev := evs[0], evs[1]

	if id[FieldEventType] != EventTypeIdentify {
		t.Fatalf("first event_type = %v", id[FieldEventType])
	}
	if id[FieldUserID] != sum("alice") || id[FieldDeviceID] != "dev" {
		t.Fatalf("identify ids = %v / %v", id[FieldUserID], id[FieldDeviceID])
	}
	if _, ok := id[FieldInsertID]; ok {
		t.Fatalf("identify event must not carry the main insert_id")
	}
	payload := id[FieldUserProperties].(map[string]any)
	if len(payload) != 3 {
		t.Fatalf("identify payload = %v", payload)
	}
	if _, ok := payload["$unset"]; !ok {
		t.Fatalf("null verb not moved with the others: %v", payload)
	}

	props := ev[FieldUserProperties].(map[string]any)
	if len(props) != 1 || props["locale"] != "en" {
		t.Fatalf("main user_properties = %v", props)
	}
	if ev[FieldEventType] != "fxa_login" || ev[FieldInsertID] == nil {
		t.Fatalf("main event changed: %v", ev)
	}
}

func TestExpandLeavesEventsWithoutVerbs(t *testing.T) {
	cases := []string{
		`{"device_id":"d","event_type":"e","time":1}`,
		`{"device_id":"d","event_type":"e","time":1,"user_properties":{"locale":"en"}}`,
		`{"device_id":"d","event_type":"e","time":1,"user_properties":{"$set":null}}`,
		`{"device_id":"d","event_type":"e","time":1,"user_properties":"{\"$set\":{}}"}`,
	}
	n := NewNormalizer(testKey, WithIdentify(true))
	for _, line := range cases {
		if evs := mustExpand(t, n, line); len(evs) != 1 {
			t.Fatalf("%s: got %d events", line, len(evs))
		}
	}
}

func TestExpandIdentifyIsOptIn(t *testing.T) {
	line := `{"device_id":"d","event_type":"e","time":1,"user_properties":{"$set":{"a":1}}}`
	evs := mustExpand(t, NewNormalizer(testKey), line)
	if len(evs) != 1 {
		t.Fatalf("got %d events", len(evs))
	}
	if _, ok := evs[0][FieldUserProperties].(map[string]any)["$set"]; !ok {
		t.Fatalf("verb removed while identify is off")
	}
}

func TestExpandIdentifyAfterMozlog(t *testing.T) {
	n := NewNormalizer(testKey, WithMozlog(true), WithIdentify(true))
	evs := mustExpand(t, n, `{"Fields":{"device_id":"d","event_type":"e","time":1,"user_properties":"{\"$setOnce\":{\"first\":\"x\"}}"}}`)
	if len(evs) != 2 || evs[0][FieldEventType] != EventTypeIdentify {
		t.Fatalf("events = %v", evs)
	}
	if _, ok := evs[0][FieldUserID]; ok {
		t.Fatalf("identify event gained a user_id")
	}
}

func TestSessionCoercion(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{`"12345"`, "12345"},
		{`" 42abc"`, "42"},
		{`"-7"`, "-7"},
		{`"007"`, "7"},
		{`"abc"`, "-1"},
		{`""`, "-1"},
	}
	n := NewNormalizer(testKey, WithSessionCoercion(true))
	for _, c := range cases {
		ev := mustNormalize(t, n, `{"device_id":"d","event_type":"e","time":1,"session_id":`+c.in+`}`)
		if ev[FieldSessionID] != json.Number(c.want) {
			t.Fatalf("session_id %s -> %v, want %s", c.in, ev[FieldSessionID], c.want)
		}
		if ev[FieldInsertID] != sum("d", c.want, "e", "1") {
			t.Fatalf("session_id %s: insert_id not over the coerced value", c.in)
		}
	}

	ev := mustNormalize(t, NewNormalizer(testKey), `{"device_id":"d","event_type":"e","time":1,"session_id":"abc"}`)
	if ev[FieldSessionID] != "abc" {
		t.Fatalf("coercion must be opt-in, got %v", ev[FieldSessionID])
	}
	out, _ := json.Marshal(mustNormalize(t, n, `{"device_id":"d","event_type":"e","time":1,"session_id":"9x"}`))
	if !json.Valid(out) {
		t.Fatalf("coerced event does not encode: %s", out)
	}
}
