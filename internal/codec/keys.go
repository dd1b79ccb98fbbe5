package codec

import (
	"fmt"
	"strconv"
	"strings"
)

// RecordKind identifies which of the three record kinds a key names.
type RecordKind int

const (
	KindSimulation RecordKind = iota + 1
	KindDriver
	KindCase
)

func (k RecordKind) String() string {
	switch k {
	case KindSimulation:
		return "simulation_info"
	case KindDriver:
		return "driver_info"
	case KindCase:
		return "iteration_case"
	}
	return "unknown"
}

// SimulationKey is the top-level key of the header record.
const SimulationKey = "simulation_info"

const (
	driverPrefix = "driver_info_"
	casePrefix   = "iteration_case_"
)

// DriverKey returns the top-level key of the k-th driver record (1-based).
func DriverKey(k int) string { return driverPrefix + strconv.Itoa(k) }

// CaseKey returns the top-level key of the k-th case record (1-based).
func CaseKey(k int) string { return casePrefix + strconv.Itoa(k) }

// ParseKey splits a top-level key into its record kind and sequence number.
// The simulation key has number 0.
func ParseKey(key string) (RecordKind, int, error) {
	if key == SimulationKey {
		return KindSimulation, 0, nil
	}
	var kind RecordKind
	var rest string
	switch {
	case strings.HasPrefix(key, driverPrefix):
		kind, rest = KindDriver, strings.TrimPrefix(key, driverPrefix)
	case strings.HasPrefix(key, casePrefix):
		kind, rest = KindCase, strings.TrimPrefix(key, casePrefix)
	default:
		return 0, 0, fmt.Errorf("unknown record key %q", key)
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 {
		return 0, 0, fmt.Errorf("bad sequence number in record key %q", key)
	}
	return kind, n, nil
}
