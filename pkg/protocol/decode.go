package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"
)

// Structured payload type discriminators
const (
	TypePrivate       = "private"
	TypeFile          = "file"
	TypeTypingPrivate = "typing_private"
)

// generalReceiver is accepted as an alias for a null file receiver
const generalReceiver = "general"

// DecodeError describes a structured payload whose type is known but whose fields are not usable
type DecodeError struct {
	Type   string
	Field  string
	Reason string
	Raw    string
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("decode %q payload: %s", e.Type, e.Reason)
	}
	return fmt.Sprintf("decode %q payload: field %q %s", e.Type, e.Field, e.Reason)
}

// Decode turns one raw inbound frame into exactly one InboundEvent.
// The structured (JSON object with a "type" tag) form is tried first; anything
// else goes through the legacy plain-text matchers. The returned event is never
// nil. A non-nil error is always a *DecodeError and accompanies an Unrecognized
// event for a known structured type with missing or mistyped fields.
func Decode(raw string) (InboundEvent, error) {
	fields, typ, ok := parseTagged(raw)
	if ok {
		switch typ {
		case TypePrivate:
			return decodePrivate(raw, fields)
		case TypeFile:
			return decodeFile(raw, fields)
		case TypeTypingPrivate:
			return decodeTypingPrivate(raw, fields)
		}
	}
	return decodeLegacy(raw), nil
}

// parseTagged reports whether raw is a JSON object carrying a string "type"
func parseTagged(raw string) (map[string]json.RawMessage, string, bool) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, "", false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &fields); err != nil {
		return nil, "", false
	}
	var typ string
	if err := json.Unmarshal(fields["type"], &typ); err != nil || typ == "" {
		return nil, "", false
	}
	return fields, typ, true
}

func decodePrivate(raw string, fields map[string]json.RawMessage) (InboundEvent, error) {
	r := fieldReader{typ: TypePrivate, raw: raw, fields: fields}
	msg := PrivateMessage{
		Sender:   r.requiredString("sender"),
		Receiver: r.requiredString("receiver"),
		Content:  r.text("content"),
	}
	msg.Timestamp, msg.RawTimestamp = r.timestamp("timestamp")
	if r.err != nil {
		return Unrecognized{Raw: raw}, r.err
	}
	return msg, nil
}

func decodeFile(raw string, fields map[string]json.RawMessage) (InboundEvent, error) {
	r := fieldReader{typ: TypeFile, raw: raw, fields: fields}
	msg := FileMessage{
		Sender:   r.requiredString("sender"),
		Filename: r.requiredString("filename"),
		Path:     r.requiredString("path"),
		Receiver: r.nullableString("receiver"),
	}
	msg.Timestamp, msg.RawTimestamp = r.timestamp("timestamp")
	if r.err != nil {
		return Unrecognized{Raw: raw}, r.err
	}
	if msg.Receiver == generalReceiver {
		msg.Receiver = ""
	}
	return msg, nil
}

func decodeTypingPrivate(raw string, fields map[string]json.RawMessage) (InboundEvent, error) {
	r := fieldReader{typ: TypeTypingPrivate, raw: raw, fields: fields}
	msg := TypingPrivate{
		Sender:    r.requiredString("sender"),
		Recipient: r.requiredString("recipient"),
		Active:    r.flag("status"),
	}
	if r.err != nil {
		return Unrecognized{Raw: raw}, r.err
	}
	return msg, nil
}

// fieldReader extracts typed fields and keeps the first failure
type fieldReader struct {
	typ    string
	raw    string
	fields map[string]json.RawMessage
	err    *DecodeError
}

func (r *fieldReader) fail(field, reason string) {
	if r.err == nil {
		r.err = &DecodeError{Type: r.typ, Field: field, Reason: reason, Raw: r.raw}
	}
}

func (r *fieldReader) lookup(field string) (json.RawMessage, bool) {
	v, ok := r.fields[field]
	if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return nil, false
	}
	return v, true
}

// text requires a present string value, empty allowed
func (r *fieldReader) text(field string) string {
	v, ok := r.lookup(field)
	if !ok {
		r.fail(field, "is missing")
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		r.fail(field, "is not a string")
		return ""
	}
	return s
}

func (r *fieldReader) requiredString(field string) string {
	s := r.text(field)
	if r.err == nil && s == "" {
		r.fail(field, "is empty")
	}
	return s
}

// nullableString accepts a missing or null value as ""
func (r *fieldReader) nullableString(field string) string {
	v, ok := r.lookup(field)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		r.fail(field, "is not a string or null")
		return ""
	}
	return s
}

func (r *fieldReader) flag(field string) bool {
	v, ok := r.lookup(field)
	if !ok {
		r.fail(field, "is missing")
		return false
	}
	var b bool
	if err := json.Unmarshal(v, &b); err != nil {
		r.fail(field, "is not a boolean")
		return false
	}
	return b
}

// timestamp requires a non-empty string. Text that does not parse is kept
// raw with a zero time, as for legacy frames.
func (r *fieldReader) timestamp(field string) (time.Time, string) {
	s := r.requiredString(field)
	if r.err != nil {
		return time.Time{}, ""
	}
	if strings.TrimSpace(s) == "" {
		r.fail(field, "is empty")
		return time.Time{}, ""
	}
	ts, _ := ParseTimestamp(s)
	return ts, s
}

// timestampLayouts covers RFC 3339, ISO offsets without a colon and the
// naive ISO forms the server emits
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02 15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseTimestamp parses a server timestamp. Naive forms are read as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// Dispatcher decodes frames and logs the ones it has to degrade
type Dispatcher struct {
	logger    *log.Logger
	onFailure func(*DecodeError)
}

// NewDispatcher creates a dispatcher
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// SetLogger sets a logger for decode warnings
func (d *Dispatcher) SetLogger(logger *log.Logger) {
	d.logger = logger
}

// OnDecodeFailure registers f to be called for every structured frame whose
// fields could not be used
func (d *Dispatcher) OnDecodeFailure(f func(*DecodeError)) {
	d.onFailure = f
}

// Dispatch decodes raw; it never fails, malformed frames come back as Unrecognized
func (d *Dispatcher) Dispatch(raw string) InboundEvent {
	event, err := Decode(raw)
	if err != nil {
		d.logf("Warning: %v", err)
		var decodeErr *DecodeError
		if d.onFailure != nil && errors.As(err, &decodeErr) {
			d.onFailure(decodeErr)
		}
		return event
	}
	if event.Kind() == KindUnrecognized {
		d.logf("Warning: unrecognized frame: %q", truncate(raw, 120))
	}
	return event
}

func (d *Dispatcher) logf(format string, args ...interface{}) {
	if d.logger != nil {
		d.logger.Printf(format, args...)
	}
}

// truncate cuts s to at most n bytes without splitting a rune
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
