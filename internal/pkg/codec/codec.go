/*
codec.go Wire format of a published estimate. The payload is a JSON array of
{"node","voltage"} objects in node iteration order. Field names, field order and
the complex voltage text form are frozen; consumers depend on them.
*/

package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ohowland/sestream/internal/pkg/estimator"
)

// Record is one node of a published estimate.
type Record struct {
	Node    string `json:"node"`
	Voltage string `json:"voltage"`
}

// Records maps an estimate to its records, preserving node order.
func Records(r estimator.Result) []Record {
	records := make([]Record, len(r.Nodes))
	for i, n := range r.Nodes {
		records[i] = Record{
			Node:    n.NodeID,
			Voltage: FormatVoltage(n.Voltage),
		}
	}
	return records
}

// Encode serializes an estimate to its payload.
func Encode(r estimator.Result) ([]byte, error) {
	return EncodeRecords(Records(r))
}

// EncodeRecords serializes records to a payload.
func EncodeRecords(records []Record) ([]byte, error) {
	if records == nil {
		records = make([]Record, 0)
	}
	return json.Marshal(records)
}

// Decode parses a payload and checks every voltage is well formed.
func Decode(payload []byte) ([]Record, error) {
	records := make([]Record, 0)
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	for i, r := range records {
		if r.Node == "" {
			return nil, fmt.Errorf("decode payload: record %d has no node", i)
		}
		if _, err := ParseVoltage(r.Voltage); err != nil {
			return nil, fmt.Errorf("decode payload: record %d (%s): %w", i, r.Node, err)
		}
	}
	return records, nil
}

// FormatVoltage renders a complex value as real±imag followed by j, e.g. 1.0+0j.
// The real part always carries a decimal point; both parts use the shortest
// representation that parses back to the same float64.
func FormatVoltage(v complex128) string {
	re := strconv.FormatFloat(real(v), 'g', -1, 64)
	if !strings.ContainsAny(re, ".eEIN") {
		re += ".0"
	}
	im := strconv.FormatFloat(imag(v), 'g', -1, 64)
	if !math.Signbit(imag(v)) {
		im = "+" + im
	}
	return re + im + "j"
}

// ParseVoltage is the inverse of FormatVoltage. Surrounding parentheses are accepted.
func ParseVoltage(s string) (complex128, error) {
	t := strings.TrimSpace(s)
	t = strings.TrimSuffix(strings.TrimPrefix(t, "("), ")")
	if !strings.HasSuffix(t, "j") {
		return 0, fmt.Errorf("voltage %q: missing imaginary unit", s)
	}
	t = strings.TrimSuffix(t, "j")

	split := -1
	for i := len(t) - 1; i > 0; i-- {
		if (t[i] == '+' || t[i] == '-') && t[i-1] != 'e' && t[i-1] != 'E' {
			split = i
			break
		}
	}
	if split < 0 {
		return 0, fmt.Errorf("voltage %q: %w", s, errMissingSign)
	}

	re, err := strconv.ParseFloat(t[:split], 64)
	if err != nil {
		return 0, fmt.Errorf("voltage %q: real part: %w", s, err)
	}
	im, err := strconv.ParseFloat(t[split:], 64)
	if err != nil {
		return 0, fmt.Errorf("voltage %q: imaginary part: %w", s, err)
	}
	return complex(re, im), nil
}

var errMissingSign = errors.New("missing sign between real and imaginary parts")
