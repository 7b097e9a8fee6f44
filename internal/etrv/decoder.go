package etrv

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// Field is the decoded value of one datapoint.
type Field struct {
	// Present is false when the payload had no node for the datapoint.
	Present bool

	// Raw is the value attribute as sent by the appliance.
	Raw string

	// Number holds the typed value for numeric roles. Valve level is
	// already scaled to a percentage.
	Number float64

	// Low holds the battery flag for RoleLowBattery.
	Low bool

	// Err is set when the node exists but its value has the wrong type.
	Err error
}

// Usable reports whether the field can be applied to device state.
func (f Field) Usable() bool {
	return f.Present && f.Err == nil
}

// Decoded holds the per-role results of one batch response.
type Decoded struct {
	fields [len(roleNames)]Field
}

// Field returns the decoded result for role. Untracked roles are never present.
func (d Decoded) Field(role Role) Field {
	if role < 0 || int(role) >= len(d.fields) {
		return Field{}
	}
	return d.fields[role]
}

// Errors returns the per-field typing errors in role order.
func (d Decoded) Errors() []error {
	var errs []error
	for _, f := range d.fields {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errs
}

// Decode parses an ISO-8859-1 batch state response.
//
// A non-200 status yields *HTTPStatusError and a payload that is not a
// well-formed XML document yields ErrMalformed. A datapoint missing from an
// otherwise valid document only marks that field as not present.
func Decode(status int, payload []byte, reg *Registry) (Decoded, error) {
	var out Decoded

	if status != http.StatusOK {
		return out, &HTTPStatusError{Code: status}
	}

	values, err := scanDatapoints(payload)
	if err != nil {
		return out, err
	}

	for _, role := range reg.Roles() {
		id, _ := reg.ID(role)
		raw, ok := values[id]
		if !ok {
			continue
		}
		out.fields[role] = typeField(role, raw)
	}

	return out, nil
}

// scanDatapoints walks the document and collects the value attribute of
// every datapoint node keyed by its identifier.
func scanDatapoints(payload []byte) (map[string]string, error) {
	utf8Payload, err := charmap.ISO8859_1.NewDecoder().Bytes(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: charset: %w", ErrMalformed, err)
	}

	dec := xml.NewDecoder(bytes.NewReader(utf8Payload))
	// The body is already UTF-8; ignore the declared encoding.
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}

	values := make(map[string]string)
	sawRoot := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		sawRoot = true
		if start.Name.Local != "datapoint" {
			continue
		}

		var id, value string
		var hasValue bool
		for _, attr := range start.Attr {
			switch attr.Name.Local {
			case "ise_id":
				id = attr.Value
			case "id":
				if id == "" {
					id = attr.Value
				}
			case "value":
				value = attr.Value
				hasValue = true
			}
		}
		if id != "" && hasValue {
			values[id] = value
		}
	}

	if !sawRoot {
		return nil, fmt.Errorf("%w: no root element", ErrMalformed)
	}

	return values, nil
}

func typeField(role Role, raw string) Field {
	f := Field{Present: true, Raw: raw}
	v := strings.TrimSpace(raw)

	switch role {
	case RoleSetpoint, RoleTemperature:
		n, err := parseFinite(v)
		if err != nil {
			f.Err = &FieldError{Role: role, Value: raw, Err: ErrNotNumeric}
			return f
		}
		f.Number = n

	case RoleLowBattery:
		switch strings.ToLower(v) {
		case "true":
			f.Low = true
		case "false":
			f.Low = false
		default:
			f.Err = &FieldError{Role: role, Value: raw, Err: ErrInvalidValue}
		}

	case RoleValveLevel:
		n, err := parseFinite(v)
		if err != nil {
			f.Err = &FieldError{Role: role, Value: raw, Err: ErrNotNumeric}
			return f
		}
		f.Number = n * 100

	case RoleProfile:
		p, err := parseProfile(v)
		if err != nil {
			f.Err = &FieldError{Role: role, Value: raw, Err: err}
			return f
		}
		f.Number = float64(p)
	}

	return f
}

// parseFinite rejects NaN and infinities along with non-numbers.
func parseFinite(v string) (float64, error) {
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, ErrNotNumeric
	}
	return n, nil
}

// parseProfile accepts "2" as well as "2.000000".
func parseProfile(v string) (int, error) {
	if p, err := strconv.Atoi(v); err == nil {
		return p, nil
	}
	n, err := parseFinite(v)
	if err != nil {
		return 0, ErrNotNumeric
	}
	if n != math.Trunc(n) {
		return 0, ErrInvalidValue
	}
	return int(n), nil
}
