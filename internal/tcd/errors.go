package tcd

import (
	"errors"
	"fmt"

	"github.com/mrjoshuak/j2kpacket/internal/bio"
)

// Errors returned by the packet iterator and the packet codec. Callers
// should test for them with errors.Is.
var (
	// ErrOutOfMemory is returned when the inclusion state of a tile would
	// not fit in memory.
	ErrOutOfMemory = errors.New("tcd: inclusion state too large")

	// ErrTruncated is returned when the input ends in the middle of a packet.
	ErrTruncated = errors.New("tcd: packet truncated")

	// ErrOverflow is returned when a packet does not fit in the output buffer.
	ErrOverflow = errors.New("tcd: output buffer too small")

	// ErrCorruptStream is returned when a decoded packet header field is out
	// of range.
	ErrCorruptStream = errors.New("tcd: corrupt packet stream")
)

// bitError maps bit channel errors onto the package sentinels.
func bitError(id PacketID, err error) error {
	switch {
	case errors.Is(err, bio.ErrTruncated):
		return fmt.Errorf("packet %v: %w", id, ErrTruncated)
	case errors.Is(err, bio.ErrOverflow):
		return fmt.Errorf("packet %v: %w", id, ErrOverflow)
	}
	return fmt.Errorf("packet %v: %w", id, err)
}

func corrupt(id PacketID, format string, args ...any) error {
	return fmt.Errorf("packet %v: %s: %w", id, fmt.Sprintf(format, args...), ErrCorruptStream)
}
