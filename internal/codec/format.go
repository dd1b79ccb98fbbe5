// Package codec implements the two case-file wire formats.
//
// Text is a single JSON object whose top-level keys are simulation_info,
// driver_info_<k> and iteration_case_<k>, written one record at a time with
// four-space indentation. Binary is a flat sequence of frames, each a
// uint32 little-endian length followed by one BSON document.
//
// Both formats carry the same logical records, built by SimulationDoc,
// DriverDoc and CaseDoc and read back by DecodeSimulation, DecodeDriver and
// DecodeCase.
package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
)

// Format selects a wire format.
type Format int

const (
	// Auto detects the format from the first bytes of the input.
	// Valid for reading only.
	Auto Format = iota
	Text
	Binary
)

func (f Format) String() string {
	switch f {
	case Text:
		return "text"
	case Binary:
		return "binary"
	default:
		return "auto"
	}
}

// ParseFormat parses a format name. "json" and "bson" are accepted as
// aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return Auto, nil
	case "text", "json":
		return Text, nil
	case "binary", "bson":
		return Binary, nil
	}
	return Auto, fmt.Errorf("unknown format %q (want text, binary or auto)", s)
}

// DetectFormat guesses the format of a stream from its first bytes.
// A binary frame's length prefix is repeated as the BSON document's own
// length, so two equal leading uint32s mean Binary. Otherwise text files
// begin with '{' followed by a quoted key or the closing brace.
func DetectFormat(prefix []byte) Format {
	if len(prefix) >= 8 &&
		binary.LittleEndian.Uint32(prefix[0:4]) == binary.LittleEndian.Uint32(prefix[4:8]) {
		return Binary
	}
	rest := bytes.TrimLeft(prefix, " \t\r\n")
	if len(rest) == 0 || rest[0] != '{' {
		return Binary
	}
	rest = bytes.TrimLeft(rest[1:], " \t\r\n")
	if len(rest) == 0 || rest[0] == '"' || rest[0] == '}' {
		return Text
	}
	return Binary
}
