// Package event validates and pseudonymizes single analytics events.
//
// A Normalizer checks that an event carries an identifier, an event_type and a
// time, replaces user_id with its keyed hash, and stamps an insert_id that the
// ingestion endpoint uses to drop duplicates. Expand can also split identify
// verbs out into a separate $identify event. It performs no I/O.
package event

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"hash"
	"io"
	"math"
	"strconv"
	"strings"

	perr "amplisend/internal/platform/errors"
	"amplisend/internal/platform/validate"
)

// Event is one decoded JSON object. Numbers are kept as json.Number so they are
// re-encoded exactly as received.
type Event map[string]any

// Well known field names
const (
	FieldUserID    = "user_id"
	FieldDeviceID  = "device_id"
	FieldSessionID = "session_id"
	FieldEventType = "event_type"
	FieldTime      = "time"
	FieldInsertID  = "insert_id"

	FieldUserProperties = "user_properties"
)

// required is the presence view of an event; nil means absent (missing or JSON null)
type required struct {
	UserID    *string `json:"user_id" validate:"required_without=DeviceID"`
	DeviceID  *string `json:"device_id" validate:"required_without=UserID"`
	EventType *string `json:"event_type" validate:"required"`
	Time      *string `json:"time" validate:"required"`
	SessionID *string `json:"session_id"`
}

// Option tunes a Normalizer
type Option func(*Normalizer)

// WithMozlog enables unwrapping of Mozlog `Fields` envelopes before validation
func WithMozlog(on bool) Option { return func(n *Normalizer) { n.mozlog = on } }

// WithIdentify makes Expand move identify verbs out of user_properties into a
// separate $identify event
func WithIdentify(on bool) Option { return func(n *Normalizer) { n.identify = on } }

// WithSessionCoercion rewrites a string session_id as its leading integer, or -1
// when it has none, before the event is fingerprinted
func WithSessionCoercion(on bool) Option { return func(n *Normalizer) { n.coerceSession = on } }

// Normalizer is safe for concurrent use; it holds only the key and options
type Normalizer struct {
	key           []byte
	mozlog        bool
	identify      bool
	coerceSession bool
}

// NewNormalizer returns a Normalizer keyed with hmacKey
func NewNormalizer(hmacKey []byte, opts ...Option) *Normalizer {
	n := &Normalizer{key: append([]byte(nil), hmacKey...)}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Normalize parses one line and returns the enriched event. Errors carry
// ErrorCodeJSON (malformed_json) or ErrorCodeValidation (missing_required_field).
func (n *Normalizer) Normalize(line []byte) (Event, error) {
	ev, err := Decode(line)
	if err != nil {
		return nil, err
	}
	if n.mozlog {
		if ev, err = unwrapMozlog(ev); err != nil {
			return nil, err
		}
	}

	req, err := presence(ev)
	if err != nil {
		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	if n.coerceSession {
		if s, ok := ev[FieldSessionID].(string); ok {
			num := leadingInt(s)
			ev[FieldSessionID] = json.Number(num)
			req.SessionID = &num
		}
	}

	fp := n.mac()
	if req.UserID != nil {
		pseudo := n.Pseudonymize(*req.UserID)
		ev[FieldUserID] = pseudo
		fp.Write([]byte(pseudo))
	}
	if req.DeviceID != nil {
		fp.Write([]byte(*req.DeviceID))
	}
	if req.SessionID != nil {
		fp.Write([]byte(*req.SessionID))
	}
	fp.Write([]byte(*req.EventType))
	fp.Write([]byte(*req.Time))
	ev[FieldInsertID] = hex.EncodeToString(fp.Sum(nil))

	return ev, nil
}

// Expand normalizes line and returns the events to send for it: the $identify
// event first when WithIdentify is on and user_properties carries an identify
// verb, then the event itself.
func (n *Normalizer) Expand(line []byte) ([]Event, error) {
	ev, err := n.Normalize(line)
	if err != nil {
		return nil, err
	}
	if n.identify {
		if id := splitIdentify(ev); id != nil {
			return []Event{id, ev}, nil
		}
	}
	return []Event{ev}, nil
}

// Pseudonymize returns the lowercase hex HMAC-SHA256 of id
func (n *Normalizer) Pseudonymize(id string) string {
	m := n.mac()
	m.Write([]byte(id))
	return hex.EncodeToString(m.Sum(nil))
}

func (n *Normalizer) mac() hash.Hash { return hmac.New(sha256.New, n.key) }

// Decode parses line as a single JSON object, keeping numbers as json.Number
func Decode(line []byte) (Event, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()

	var ev Event
	if err := dec.Decode(&ev); err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeJSON, "malformed_json")
	}
	if ev == nil {
		return nil, perr.JSONErrf("malformed_json: not an object")
	}
	if err := dec.Decode(new(json.RawMessage)); !errors.Is(err, io.EOF) {
		return nil, perr.JSONErrf("malformed_json: trailing data after object")
	}
	return ev, nil
}

// presence builds the validation view. Identifiers and event_type must be JSON
// strings; time may be a string or a number; session_id of any other type is
// fingerprinted by its compact JSON text. Numbers are fingerprinted in their
// shortest decimal form, so 1e3 and 1000 hash alike.
func presence(ev Event) (required, error) {
	var r required
	var err error
	if r.UserID, err = stringField(ev, FieldUserID, false); err != nil {
		return r, err
	}
	if r.DeviceID, err = stringField(ev, FieldDeviceID, false); err != nil {
		return r, err
	}
	if r.EventType, err = stringField(ev, FieldEventType, false); err != nil {
		return r, err
	}
	if r.Time, err = stringField(ev, FieldTime, true); err != nil {
		return r, err
	}
	r.SessionID = looseField(ev, FieldSessionID)
	return r, nil
}

func stringField(ev Event, name string, numberOK bool) (*string, error) {
	switch v := ev[name].(type) {
	case nil:
		return nil, nil
	case string:
		return &v, nil
	case json.Number:
		if numberOK {
			s := numberText(v)
			return &s, nil
		}
	}
	return nil, perr.WithField(perr.JSONErrf("malformed_json: %s has the wrong type", name), name)
}

func looseField(ev Event, name string) *string {
	switch v := ev[name].(type) {
	case nil:
		return nil
	case string:
		return &v
	case json.Number:
		s := numberText(v)
		return &s
	default:
		b, _ := json.Marshal(v)
		s := string(b)
		return &s
	}
}

// numberText renders n as the shortest decimal that round-trips, switching to
// exponent form below 1e-6 and from 1e21 up. The event itself keeps the literal.
func numberText(n json.Number) string {
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil || math.IsInf(f, 0) {
		return n.String()
	}
	if f == 0 {
		return "0"
	}
	if a := math.Abs(f); a >= 1e-6 && a < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	s := strconv.FormatFloat(f, 'e', -1, 64)
	mant, exp, _ := strings.Cut(s, "e")
	sign, digits := exp[:1], strings.TrimLeft(exp[1:], "0")
	return mant + "e" + sign + digits
}
