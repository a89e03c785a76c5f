package onepanel

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SuccessCode is the envelope code the panel uses for success.
const SuccessCode = 200

// =============================================================================
// Envelope
// =============================================================================

// PayloadKind is the shape of an envelope's data field.
type PayloadKind int

const (
	// PayloadEmpty: data is absent or null.
	PayloadEmpty PayloadKind = iota
	// PayloadItems: data is a page object {items: [...], total: n}.
	PayloadItems
	// PayloadArray: data is a bare array.
	PayloadArray
	// PayloadValue: data is any other scalar or object.
	PayloadValue
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadEmpty:
		return "empty"
	case PayloadItems:
		return "items"
	case PayloadArray:
		return "array"
	default:
		return "value"
	}
}

// Payload is the decoded data field of a successful envelope.
type Payload struct {
	Kind  PayloadKind
	Total int // page total, only for PayloadItems

	raw  json.RawMessage // whole data field
	list json.RawMessage // the array, for PayloadItems and PayloadArray
}

// Envelope is a successful {code, message, data} response.
type Envelope struct {
	Code    int
	Message string
	Data    Payload
}

// DecodeEnvelope decodes a response body. The code is checked before the
// payload is looked at: a non-200 code yields *APIError and no envelope.
func DecodeEnvelope(body []byte) (*Envelope, error) {
	var wire struct {
		Code    *int            `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if wire.Code == nil {
		return nil, fmt.Errorf("%w: missing code", ErrMalformedEnvelope)
	}
	if *wire.Code != SuccessCode {
		return nil, &APIError{Code: *wire.Code, Message: wire.Message}
	}

	payload, err := decodePayload(wire.Data)
	if err != nil {
		return nil, err
	}
	return &Envelope{Code: *wire.Code, Message: wire.Message, Data: payload}, nil
}

func decodePayload(data json.RawMessage) (Payload, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Payload{Kind: PayloadEmpty}, nil
	}

	switch trimmed[0] {
	case '[':
		return Payload{Kind: PayloadArray, raw: trimmed, list: trimmed}, nil
	case '{':
		var page struct {
			Items json.RawMessage `json:"items"`
			Total int             `json:"total"`
		}
		if err := json.Unmarshal(trimmed, &page); err != nil {
			// Not a page; the object is the payload
			return Payload{Kind: PayloadValue, raw: trimmed}, nil
		}
		items := bytes.TrimSpace(page.Items)
		switch {
		case len(items) > 0 && items[0] == '[':
			return Payload{Kind: PayloadItems, Total: page.Total, raw: trimmed, list: items}, nil
		case bytes.Equal(items, []byte("null")):
			// Empty pages come back as {items: null, total: 0}
			return Payload{Kind: PayloadItems, Total: page.Total, raw: trimmed}, nil
		}
	}
	return Payload{Kind: PayloadValue, raw: trimmed}, nil
}

// List decodes a page or array payload into dst, a pointer to a slice.
// An empty payload leaves dst untouched.
func (p Payload) List(dst any) error {
	switch p.Kind {
	case PayloadEmpty:
		return nil
	case PayloadItems, PayloadArray:
		if p.list == nil {
			return nil
		}
		if err := json.Unmarshal(p.list, dst); err != nil {
			return fmt.Errorf("%w: %v", ErrUnexpectedPayload, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: expected list, got %s", ErrUnexpectedPayload, p.Kind)
	}
}

// Value decodes a scalar or object payload into dst.
func (p Payload) Value(dst any) error {
	if p.Kind != PayloadValue {
		return fmt.Errorf("%w: expected value, got %s", ErrUnexpectedPayload, p.Kind)
	}
	if err := json.Unmarshal(p.raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrUnexpectedPayload, err)
	}
	return nil
}

// Text returns the payload when it is a JSON string.
func (p Payload) Text() (string, bool) {
	var s string
	if p.Kind != PayloadValue || json.Unmarshal(p.raw, &s) != nil {
		return "", false
	}
	return s, true
}

// Raw returns the data field as received, or nil for an empty payload.
func (p Payload) Raw() json.RawMessage {
	return p.raw
}
