package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Price is a decimal amount. The backend serializes decimals as strings
// ("500.00") but some frames carry plain numbers. Prices are only displayed
// and compared; they are always formatted to two decimals and never used
// for arithmetic.
type Price float64

// UnmarshalJSON accepts a JSON string or number.
func (p *Price) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = 0
		return nil
	}
	raw := string(data)
	if strings.HasPrefix(raw, `"`) {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			*p = 0
			return nil
		}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("parse price %q: %w", raw, err)
	}
	*p = Price(v)
	return nil
}

// MarshalJSON writes the price with two decimals, as the backend does.
func (p Price) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p Price) String() string {
	return strconv.FormatFloat(float64(p), 'f', 2, 64)
}

// Timestamp is an ISO-8601 instant. Offsets and fractional seconds are optional;
// a value without offset is read as UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses the formats emitted by the backend.
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{Time: t}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("parse timestamp %q", s)
}

// UnmarshalJSON accepts a string timestamp or null.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	if s == "" {
		*t = Timestamp{}
		return nil
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalJSON writes RFC 3339 with nanoseconds, or null when zero.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

// NameRef is a related entity that arrives either as a bare name or as
// an object with id and nombre.
type NameRef struct {
	ID   int64  `json:"id,omitempty"`
	Name string `json:"nombre,omitempty"`
}

// UnmarshalJSON accepts a string, an object, or null.
func (n *NameRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*n = NameRef{}
		return nil
	case len(data) > 0 && data[0] == '"':
		*n = NameRef{}
		return json.Unmarshal(data, &n.Name)
	}
	type plain NameRef
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = NameRef(v)
	return nil
}
