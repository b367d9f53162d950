package event

import (
	"testing"

	perr "amplisend/internal/platform/errors"
	kit "amplisend/internal/platform/testkit"
)

func TestMozlogOpData(t *testing.T) {
	n := NewNormalizer(testKey, WithMozlog(true))
	line := `{"Type":"amplitudeEvent","Fields":{"op":"amplitudeEvent","data":"{\"device_id\":\"d\",\"event_type\":\"fxa_reg\",\"time\":9}"}}`
	ev, err := n.Normalize([]byte(line))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if ev[FieldEventType] != "fxa_reg" || ev["Fields"] != nil {
		t.Fatalf("envelope not unwrapped: %v", ev)
	}
}

func TestMozlogStringifiedProperties(t *testing.T) {
	n := NewNormalizer(testKey, WithMozlog(true))
	line := `{"Fields":{"device_id":"d","event_type":"e","time":1,"event_properties":"{\"service\":\"sync\"}","user_properties":""}}`
	ev, err := n.Normalize([]byte(line))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	props, ok := ev["event_properties"].(map[string]any)
	if !ok || props["service"] != "sync" {
		t.Fatalf("event_properties = %#v", ev["event_properties"])
	}
	if ev["user_properties"] != "" {
		t.Fatalf("empty user_properties should be left as is")
	}
}

func TestMozlogMalformedInner(t *testing.T) {
	n := NewNormalizer(testKey, WithMozlog(true))
	_, err := n.Normalize([]byte(`{"Fields":{"op":"x","data":"{nope"}}`))
	kit.MustErrCode(t, err, perr.ErrorCodeJSON)
	if e, _ := perr.As(err); e.Field() != "Fields.data" {
		t.Fatalf("field = %q", e.Field())
	}
}

func TestMozlogDisabledLeavesEnvelope(t *testing.T) {
	n := NewNormalizer(testKey)
	_, err := n.Normalize([]byte(`{"Fields":{"device_id":"d","event_type":"e","time":1}}`))
	kit.MustErrCode(t, err, perr.ErrorCodeValidation)
}

func TestMozlogPlainEventUntouched(t *testing.T) {
	n := NewNormalizer(testKey, WithMozlog(true))
	if _, err := n.Normalize([]byte(`{"device_id":"d","event_type":"e","time":1}`)); err != nil {
		t.Fatalf("plain event rejected: %v", err)
	}
}
