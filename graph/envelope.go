// Package graph provides the workflow execution core: a directed graph of
// named steps driven over a shared state envelope, with conditional routing,
// human intervention gates, durable checkpoints, and event publication.
package graph

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Field identifies a named slot in the envelope.
//
// Steps declare the fields they update as typed constants rather than free
// string keys, so a typo is a compile error instead of a silent no-op:
//
//	const (
//	    FieldRawText Field = "raw_text"
//	    FieldTheme   Field = "policy_theme"
//	)
type Field string

// ValueKind discriminates the variants of Value.
type ValueKind int

// Value variants. Envelope values are strings, ordered sequences, or nested
// mappings; the core enforces no schema beyond the shape.
const (
	StringKind ValueKind = iota
	ListKind
	MapKind
)

// Value is a tagged union holding one envelope field value.
//
// Construct values with String, Strings, List, Map, or Bool rather than
// struct literals.
type Value struct {
	Kind ValueKind        `json:"kind"`
	Str  string           `json:"str,omitempty"`
	Seq  []Value          `json:"seq,omitempty"`
	Obj  map[string]Value `json:"obj,omitempty"`
}

// String returns a string-kind Value.
func String(s string) Value {
	return Value{Kind: StringKind, Str: s}
}

// Bool returns a string-kind Value holding "true" or "false".
func Bool(b bool) Value {
	if b {
		return String("true")
	}
	return String("false")
}

// Strings returns a list-kind Value of string elements.
func Strings(ss ...string) Value {
	seq := make([]Value, len(ss))
	for i, s := range ss {
		seq[i] = String(s)
	}
	return Value{Kind: ListKind, Seq: seq}
}

// List returns a list-kind Value.
func List(vs ...Value) Value {
	return Value{Kind: ListKind, Seq: vs}
}

// Map returns a map-kind Value.
func Map(m map[string]Value) Value {
	return Value{Kind: MapKind, Obj: m}
}

// AsString returns the string content, or "" for non-string kinds.
func (v Value) AsString() string {
	if v.Kind != StringKind {
		return ""
	}
	return v.Str
}

// AsStrings returns the string elements of a list-kind value. Non-string
// elements and non-list kinds yield nil entries dropped from the result.
func (v Value) AsStrings() []string {
	if v.Kind != ListKind {
		return nil
	}
	out := make([]string, 0, len(v.Seq))
	for _, e := range v.Seq {
		if e.Kind == StringKind {
			out = append(out, e.Str)
		}
	}
	return out
}

// IsTrue reports whether the value is the string "true".
func (v Value) IsTrue() bool {
	return v.Kind == StringKind && v.Str == "true"
}

// Update is a partial state update: the set of fields one step (or one
// intervention response) writes. Merging an update overwrites any prior
// value of the same field; there is no field deletion.
type Update map[Field]Value

// LogRecord is one entry in the envelope's append-only progress log. Records
// are appended by the executor after each step application, never rewritten.
type LogRecord struct {
	StepID    string    `json:"step_id"`
	Note      string    `json:"note"`
	Timestamp time.Time `json:"timestamp"`
}

// InterventionRef marks an open intervention request on the envelope.
type InterventionRef struct {
	StepID   string    `json:"step_id"`
	OpenedAt time.Time `json:"opened_at"`
	Deadline time.Time `json:"deadline"`
}

// Envelope is the versioned state record threaded through a run.
//
// It holds an ordered field map, the append-only log, the cursor (the step
// about to execute, or the step the run most recently suspended at), and an
// optional reference to an open intervention request.
//
// The executor has exclusive write access during a run; all other components
// observe envelopes only through committed snapshots. Envelope is not safe
// for concurrent mutation.
type Envelope struct {
	fields  map[Field]Value
	order   []Field
	log     []LogRecord
	cursor  string
	pending *InterventionRef
}

// NewEnvelope creates an envelope holding the given initial fields.
// Initial fields are ordered by name; later updates append in merge order.
func NewEnvelope(initial Update) *Envelope {
	e := &Envelope{fields: make(map[Field]Value, len(initial))}
	keys := make([]Field, 0, len(initial))
	for f := range initial {
		keys = append(keys, f)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, f := range keys {
		e.fields[f] = initial[f]
		e.order = append(e.order, f)
	}
	return e
}

// Get returns the value of a field and whether it is populated.
// Steps signal "no value yet" by omission; there is no null state.
func (e *Envelope) Get(f Field) (Value, bool) {
	v, ok := e.fields[f]
	return v, ok
}

// GetString is shorthand for Get on a string-kind field.
func (e *Envelope) GetString(f Field) string {
	v, _ := e.Get(f)
	return v.AsString()
}

// Apply merges a partial update into the envelope. Existing fields are
// overwritten; new fields are appended to the field order by name.
func (e *Envelope) Apply(u Update) {
	keys := make([]Field, 0, len(u))
	for f := range u {
		keys = append(keys, f)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, f := range keys {
		if _, exists := e.fields[f]; !exists {
			e.order = append(e.order, f)
		}
		e.fields[f] = u[f]
	}
}

// AppendLog appends one record to the progress log.
func (e *Envelope) AppendLog(r LogRecord) {
	e.log = append(e.log, r)
}

// Log returns a copy of the progress log.
func (e *Envelope) Log() []LogRecord {
	out := make([]LogRecord, len(e.log))
	copy(out, e.log)
	return out
}

// Cursor returns the identifier of the step about to execute, or the step
// the run most recently suspended at.
func (e *Envelope) Cursor() string {
	return e.cursor
}

// SetCursor records the step about to execute.
func (e *Envelope) SetCursor(stepID string) {
	e.cursor = stepID
}

// Pending returns the open intervention reference, or nil.
func (e *Envelope) Pending() *InterventionRef {
	return e.pending
}

// SetPending records an open intervention request on the envelope.
// Pass nil to clear it.
func (e *Envelope) SetPending(ref *InterventionRef) {
	e.pending = ref
}

// Fields returns the populated fields in envelope order.
func (e *Envelope) Fields() []Field {
	out := make([]Field, len(e.order))
	copy(out, e.order)
	return out
}

// Clone creates a deep copy of the envelope using a JSON round trip.
// Value contents are plain data, so this copies everything.
func (e *Envelope) Clone() (*Envelope, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	copied := &Envelope{}
	if err := json.Unmarshal(data, copied); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	return copied, nil
}

// envelopeJSON is the serialized form of Envelope. Field order is persisted
// explicitly because Go maps do not preserve it.
type envelopeJSON struct {
	Order   []Field          `json:"order"`
	Fields  map[Field]Value  `json:"fields"`
	Log     []LogRecord      `json:"log"`
	Cursor  string           `json:"cursor"`
	Pending *InterventionRef `json:"pending,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (e *Envelope) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelopeJSON{
		Order:   e.order,
		Fields:  e.fields,
		Log:     e.log,
		Cursor:  e.cursor,
		Pending: e.pending,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var s envelopeJSON
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	e.order = s.Order
	e.fields = s.Fields
	e.log = s.Log
	e.cursor = s.Cursor
	e.pending = s.Pending
	if e.fields == nil {
		e.fields = make(map[Field]Value)
	}
	return nil
}
