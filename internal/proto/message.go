package proto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// Reserved lifecycle names. They are never routed as ordinary channels when
// they appear as keys of an inbound frame.
const (
	EventConnection = "connection"
	EventDisconnect = "disconnect"
)

// IsReserved reports whether name is a lifecycle event name.
func IsReserved(name string) bool {
	return name == EventConnection || name == EventDisconnect
}

// Field is one key/value pair of an inbound frame.
type Field struct {
	Key   string
	Value any
}

// Frame is a decoded inbound message. Fields keep the order in which keys
// first appeared on the wire.
type Frame struct {
	Fields []Field
}

// DecodeError is returned when an inbound frame is not valid UTF-8 text or
// not a JSON object.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode frame: %s: %v", e.Reason, e.Err)
	}
	return "decode frame: " + e.Reason
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// DecodeFrame parses raw bytes into a Frame. A repeated key keeps its first
// position and takes the last value.
func DecodeFrame(data []byte) (Frame, error) {
	if !utf8.Valid(data) {
		return Frame{}, &DecodeError{Reason: "invalid utf-8"}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return Frame{}, &DecodeError{Reason: "malformed json", Err: err}
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return Frame{}, &DecodeError{Reason: "expected json object"}
	}

	var frame Frame
	index := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Frame{}, &DecodeError{Reason: "malformed json", Err: err}
		}
		key, ok := tok.(string)
		if !ok {
			return Frame{}, &DecodeError{Reason: "expected object key"}
		}

		var value any
		if err := dec.Decode(&value); err != nil {
			return Frame{}, &DecodeError{Reason: "malformed value for " + key, Err: err}
		}

		if i, seen := index[key]; seen {
			frame.Fields[i].Value = value
			continue
		}
		index[key] = len(frame.Fields)
		frame.Fields = append(frame.Fields, Field{Key: key, Value: value})
	}

	if _, err := dec.Token(); err != nil {
		return Frame{}, &DecodeError{Reason: "malformed json", Err: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Frame{}, &DecodeError{Reason: "trailing data after object"}
	}

	return frame, nil
}

// EncodeMessage renders a message value for a subscriber push. Strings and
// byte slices go out verbatim, everything else as JSON.
func EncodeMessage(v any) ([]byte, error) {
	switch m := v.(type) {
	case nil:
		return []byte("null"), nil
	case string:
		return []byte(m), nil
	case []byte:
		return m, nil
	case json.RawMessage:
		return m, nil
	default:
		data, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("encode message: %w", err)
		}
		return data, nil
	}
}
