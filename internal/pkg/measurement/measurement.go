package measurement

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrFinalized is returned when adding to a set that has been finalized.
var ErrFinalized = errors.New("measurement set is finalized")

// Kind is the measured quantity. The set of kinds is closed.
type Kind int

const (
	VoltageMagnitude Kind = iota
	VoltagePhase
	InjectedRealPower
	InjectedReactivePower
	PMUMagnitude
	PMUPhase
	numKinds
)

var kindNames = [numKinds]string{
	VoltageMagnitude:      "voltage-magnitude",
	VoltagePhase:          "voltage-phase",
	InjectedRealPower:     "injected-real-power",
	InjectedReactivePower: "injected-reactive-power",
	PMUMagnitude:          "pmu-magnitude",
	PMUPhase:              "pmu-phase",
}

// AllKinds returns every measurement kind in declaration order.
func AllKinds() []Kind {
	kinds := make([]Kind, numKinds)
	for i := range kinds {
		kinds[i] = Kind(i)
	}
	return kinds
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	return k >= 0 && k < numKinds
}

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// IsPhase reports whether the kind measures an angle.
func (k Kind) IsPhase() bool {
	return k == VoltagePhase || k == PMUPhase
}

// ParseKind maps a kind name back to its Kind.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range kindNames {
		if name == s {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown measurement kind %q", s)
}

// ParseKinds parses a comma separated list of kind names.
func ParseKinds(s string) ([]Kind, error) {
	kinds := make([]Kind, 0)
	for _, field := range strings.Split(s, ",") {
		if strings.TrimSpace(field) == "" {
			continue
		}
		k, err := ParseKind(field)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// ElemType is the grid element a measurement is taken on.
type ElemType int

const (
	Node ElemType = iota
	Branch
)

func (e ElemType) String() string {
	switch e {
	case Node:
		return "node"
	case Branch:
		return "branch"
	}
	return fmt.Sprintf("ElemType(%d)", int(e))
}

// Measurement is a single synthesized reading.
type Measurement struct {
	Subject     string
	Element     ElemType
	Kind        Kind
	Ideal       float64
	Value       float64
	Uncertainty float64
}

// Set is an ordered, append-only collection of measurements. A Set is built
// fresh every cycle and must be finalized before estimation.
type Set struct {
	measurements []Measurement
	finalized    bool
}

// NewSet returns an empty, open Set.
func NewSet() *Set {
	return &Set{measurements: make([]Measurement, 0)}
}

// Add appends a measurement.
func (s *Set) Add(m Measurement) error {
	if s.finalized {
		return ErrFinalized
	}
	if !m.Kind.Valid() {
		return fmt.Errorf("measurement on %s: invalid kind %v", m.Subject, m.Kind)
	}
	s.measurements = append(s.measurements, m)
	return nil
}

// Finalize closes the set to further additions. Finalizing twice is a no-op.
func (s *Set) Finalize() {
	s.finalized = true
}

// Finalized reports whether Finalize has been called.
func (s *Set) Finalized() bool {
	return s.finalized
}

// Len returns the number of measurements.
func (s *Set) Len() int {
	return len(s.measurements)
}

// Measurements returns a copy of the measurements in insertion order.
func (s *Set) Measurements() []Measurement {
	out := make([]Measurement, len(s.measurements))
	copy(out, s.measurements)
	return out
}

// Kinds returns the distinct kinds present, sorted.
func (s *Set) Kinds() []Kind {
	seen := make(map[Kind]bool)
	kinds := make([]Kind, 0)
	for _, m := range s.measurements {
		if !seen[m.Kind] {
			seen[m.Kind] = true
			kinds = append(kinds, m.Kind)
		}
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Summary describes the set for diagnostics.
type Summary struct {
	Count int
	Kinds []Kind
}

func (s Summary) String() string {
	names := make([]string, len(s.Kinds))
	for i, k := range s.Kinds {
		names[i] = k.String()
	}
	return fmt.Sprintf("%d measurements [%s]", s.Count, strings.Join(names, ","))
}

// Summary returns the count and kinds of the set.
func (s *Set) Summary() Summary {
	return Summary{Count: s.Len(), Kinds: s.Kinds()}
}
