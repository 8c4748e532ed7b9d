// Package codestream holds the JPEG 2000 coding parameters that drive
// packet ordering and packet header syntax, together with the marker
// segments that carry them.
package codestream

import (
	"fmt"
	"strings"
)

// Marker codes used around packets. These are defined in ISO/IEC 15444-1
// Annex A.
const (
	SOT Marker = 0xFF90 // Start of tile-part
	SOD Marker = 0xFF93 // Start of data
	POC Marker = 0xFF5F // Progression order change
	PLT Marker = 0xFF58 // Packet length, tile-part header
	SOP Marker = 0xFF91 // Start of packet
	EPH Marker = 0xFF92 // End of packet header
)

// Marker represents a JPEG 2000 marker code.
type Marker uint16

// String returns the string representation of a marker.
func (m Marker) String() string {
	switch m {
	case SOT:
		return "SOT"
	case SOD:
		return "SOD"
	case POC:
		return "POC"
	case PLT:
		return "PLT"
	case SOP:
		return "SOP"
	case EPH:
		return "EPH"
	default:
		return "UNKNOWN"
	}
}

// Bytes returns the big-endian encoding of the marker.
func (m Marker) Bytes() [2]byte {
	return [2]byte{byte(m >> 8), byte(m)}
}

// Coding style flags (from COD/COC markers).
const (
	// CodingStylePrecincts indicates custom precinct sizes are used.
	CodingStylePrecincts uint8 = 0x01
	// CodingStyleSOP indicates SOP markers are used.
	CodingStyleSOP uint8 = 0x02
	// CodingStyleEPH indicates EPH markers are used.
	CodingStyleEPH uint8 = 0x04
)

// Code block style flags. Only the termination related flags change the
// packet header syntax; the rest are carried through for the block coder.
const (
	// CodeBlockBypass enables selective arithmetic coding bypass.
	CodeBlockBypass uint8 = 0x01
	// CodeBlockReset resets context probabilities on each coding pass.
	CodeBlockReset uint8 = 0x02
	// CodeBlockTermination enables termination on each coding pass.
	CodeBlockTermination uint8 = 0x04
	// CodeBlockVerticalCausal enables vertically causal context formation.
	CodeBlockVerticalCausal uint8 = 0x08
	// CodeBlockPredictableTermination enables predictable termination.
	CodeBlockPredictableTermination uint8 = 0x10
	// CodeBlockSegmentationSymbols enables segmentation symbols.
	CodeBlockSegmentationSymbols uint8 = 0x20
)

// ProgressionOrder defines the order in which packets are encoded/decoded.
type ProgressionOrder uint8

const (
	// LRCP is Layer-Resolution-Component-Position order.
	LRCP ProgressionOrder = iota
	// RLCP is Resolution-Layer-Component-Position order.
	RLCP
	// RPCL is Resolution-Position-Component-Layer order.
	RPCL
	// PCRL is Position-Component-Resolution-Layer order.
	PCRL
	// CPRL is Component-Position-Resolution-Layer order.
	CPRL
)

var progressionNames = [...]string{"LRCP", "RLCP", "RPCL", "PCRL", "CPRL"}

// String returns the four letter name of the order.
func (p ProgressionOrder) String() string {
	if p.Valid() {
		return progressionNames[p]
	}
	return fmt.Sprintf("ProgressionOrder(%d)", uint8(p))
}

// Valid reports whether p is one of the five defined orders.
func (p ProgressionOrder) Valid() bool {
	return int(p) < len(progressionNames)
}

// ParseProgressionOrder parses a four letter order name, ignoring case.
func ParseProgressionOrder(s string) (ProgressionOrder, error) {
	for i, name := range progressionNames {
		if strings.EqualFold(s, name) {
			return ProgressionOrder(i), nil
		}
	}
	return 0, fmt.Errorf("unknown progression order %q", s)
}
