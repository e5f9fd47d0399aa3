// Package event defines the change events emitted when a document is written
// and the decoding step the downstream stage applies to them.
//
// An event is an envelope (ChangeEvent) carrying an opaque payload. The
// payload is a DocumentEventData: the document before and after the write,
// with typed field values. Both stages agree on this schema out of band.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

// TypeDocumentWritten is the event type emitted for every document write.
const TypeDocumentWritten = "triggerbench.document.v1.written"

var (
	// ErrEmptyPayload is returned when an event carries no data.
	ErrEmptyPayload = errors.New("event payload is empty")

	// ErrMissingRequestID marks an event whose new document has no requestId.
	// The downstream stage drops such events without touching any record.
	ErrMissingRequestID = errors.New("no requestId found in document data")
)

// ChangeEvent is the envelope delivered to the downstream stage.
type ChangeEvent struct {
	ID     string
	Type   string
	Source string
	Time   string
	Data   []byte
}

// Value is a typed document field. Exactly one member is set.
// IntegerValue accepts both quoted and bare JSON numbers.
type Value struct {
	StringValue  *string      `json:"stringValue,omitempty"`
	IntegerValue *json.Number `json:"integerValue,omitempty"`
	DoubleValue  *float64     `json:"doubleValue,omitempty"`
	BooleanValue *bool        `json:"booleanValue,omitempty"`
}

// Document is a stored document with its resource path.
type Document struct {
	Name       string           `json:"name"`
	Fields     map[string]Value `json:"fields,omitempty"`
	CreateTime string           `json:"createTime,omitempty"`
	UpdateTime string           `json:"updateTime,omitempty"`
}

// DocumentEventData is the decoded payload: the document before and after the write.
// OldValue is nil when the document did not exist.
type DocumentEventData struct {
	OldValue *Document `json:"oldValue,omitempty"`
	Value    *Document `json:"value,omitempty"`
}

// NewValue converts a Go value into a typed field value.
func NewValue(v any) (Value, error) {
	switch x := v.(type) {
	case string:
		return Value{StringValue: &x}, nil
	case int:
		return integerValue(int64(x)), nil
	case int64:
		return integerValue(x), nil
	case float64:
		return Value{DoubleValue: &x}, nil
	case bool:
		return Value{BooleanValue: &x}, nil
	default:
		return Value{}, fmt.Errorf("unsupported field type %T", v)
	}
}

func integerValue(n int64) Value {
	num := json.Number(strconv.FormatInt(n, 10))
	return Value{IntegerValue: &num}
}

// NewDocument builds a document from plain Go field values.
func NewDocument(name string, fields map[string]any, now time.Time) (*Document, error) {
	doc := &Document{
		Name:       name,
		Fields:     make(map[string]Value, len(fields)),
		UpdateTime: now.UTC().Format(time.RFC3339Nano),
	}
	for k, v := range fields {
		val, err := NewValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		doc.Fields[k] = val
	}
	return doc, nil
}

// Encode serializes the payload for transport.
func (d *DocumentEventData) Encode() ([]byte, error) {
	return json.Marshal(d)
}

// Decode parses an event payload.
func Decode(data []byte) (*DocumentEventData, error) {
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}
	var d DocumentEventData
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to decode document event data: %w", err)
	}
	return &d, nil
}

// Trigger holds the values the downstream stage needs from the new document.
type Trigger struct {
	RequestID    string
	Timestamp    int64
	DocumentPath string
}

// ExtractTrigger reads requestId and the originating timestamp from the new
// document value. The timestamp may be encoded as an integer or a double;
// doubles are truncated toward zero. A missing timestamp yields zero.
func (d *DocumentEventData) ExtractTrigger() (Trigger, error) {
	if d.Value == nil {
		return Trigger{}, ErrMissingRequestID
	}

	t := Trigger{DocumentPath: d.Value.Name}

	rid, ok := d.Value.Fields["requestId"]
	if !ok || rid.StringValue == nil || *rid.StringValue == "" {
		return Trigger{}, ErrMissingRequestID
	}
	t.RequestID = *rid.StringValue

	if ts, ok := d.Value.Fields["timestamp"]; ok {
		switch {
		case ts.IntegerValue != nil:
			n, err := parseInteger(*ts.IntegerValue)
			if err != nil {
				return Trigger{}, fmt.Errorf("invalid timestamp: %w", err)
			}
			t.Timestamp = n
		case ts.DoubleValue != nil:
			t.Timestamp = int64(math.Trunc(*ts.DoubleValue))
		}
	}

	return t, nil
}

func parseInteger(n json.Number) (int64, error) {
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, err
	}
	return int64(math.Trunc(f)), nil
}
