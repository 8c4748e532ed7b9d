package codestream

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/mrjoshuak/j2kpacket/internal/bio"
)

// ErrShortSegment is returned when a marker segment body ends early.
var ErrShortSegment = errors.New("codestream: marker segment too short")

// pocEntrySize returns the size of one POC entry. Component indices take
// two bytes once the image has more than 256 components.
func pocEntrySize(numComponents int) int {
	if numComponents >= 257 {
		return 9
	}
	return 7
}

// ReadPOC parses the body of a POC marker segment (everything after Lpoc).
func ReadPOC(body []byte, numComponents int) ([]ProgressionOrderChange, error) {
	entrySize := pocEntrySize(numComponents)
	if len(body) == 0 || len(body)%entrySize != 0 {
		return nil, fmt.Errorf("POC body of %d bytes: %w", len(body), ErrShortSegment)
	}

	wide := entrySize == 9
	readComp := func(b []byte) (uint16, []byte) {
		if wide {
			return binary.BigEndian.Uint16(b), b[2:]
		}
		return uint16(b[0]), b[1:]
	}

	pocs := make([]ProgressionOrderChange, 0, len(body)/entrySize)
	for b := body; len(b) > 0; {
		var poc ProgressionOrderChange
		poc.ResolutionStart = b[0]
		poc.ComponentStart, b = readComp(b[1:])
		poc.LayerEnd = binary.BigEndian.Uint16(b)
		poc.ResolutionEnd = b[2]
		poc.ComponentEnd, b = readComp(b[3:])
		if !wide && poc.ComponentEnd == 0 {
			poc.ComponentEnd = 256
		}
		poc.ProgressionOrder = ProgressionOrder(b[0])
		b = b[1:]

		if !poc.ProgressionOrder.Valid() {
			return nil, fmt.Errorf("POC entry %d: invalid progression order %d",
				len(pocs), uint8(poc.ProgressionOrder))
		}
		pocs = append(pocs, poc)
	}
	return pocs, nil
}

// AppendPOC appends a complete POC marker segment (marker, Lpoc and
// entries) to dst.
func AppendPOC(dst []byte, pocs []ProgressionOrderChange, numComponents int) ([]byte, error) {
	entrySize := pocEntrySize(numComponents)
	length := 2 + len(pocs)*entrySize
	if len(pocs) == 0 || length > 0xFFFF {
		return dst, fmt.Errorf("cannot write POC segment with %d entries", len(pocs))
	}
	// The one byte form stores a component end of 256 as 0.
	for i, poc := range pocs {
		if entrySize == 7 && (poc.ComponentStart > 255 || poc.ComponentEnd > 256) {
			return dst, fmt.Errorf("POC entry %d: components %d-%d do not fit one byte",
				i, poc.ComponentStart, poc.ComponentEnd)
		}
	}

	m := POC.Bytes()
	dst = append(dst, m[0], m[1])
	dst = binary.BigEndian.AppendUint16(dst, uint16(length))
	appendComp := func(dst []byte, c uint16) []byte {
		if entrySize == 9 {
			return binary.BigEndian.AppendUint16(dst, c)
		}
		return append(dst, byte(c))
	}
	for _, poc := range pocs {
		dst = append(dst, poc.ResolutionStart)
		dst = appendComp(dst, poc.ComponentStart)
		dst = binary.BigEndian.AppendUint16(dst, poc.LayerEnd)
		dst = append(dst, poc.ResolutionEnd)
		dst = appendComp(dst, poc.ComponentEnd)
		dst = append(dst, byte(poc.ProgressionOrder))
	}
	return dst, nil
}

// maxPLTBody keeps each PLT segment within the 16-bit length field.
const maxPLTBody = 0xFFFF - 3

// AppendPLT appends PLT marker segments listing the given packet lengths.
// Lengths are split over as many segments as needed; Zplt starts at index.
func AppendPLT(dst []byte, index uint8, lengths []int) ([]byte, error) {
	var body bytes.Buffer
	w := bio.NewVariableLengthWriter(&body)
	segments := int(index)

	flush := func() error {
		if segments > 0xFF {
			return errors.New("too many PLT segments")
		}
		segments++
		m := PLT.Bytes()
		dst = append(dst, m[0], m[1])
		dst = binary.BigEndian.AppendUint16(dst, uint16(body.Len()+3))
		dst = append(dst, index)
		dst = append(dst, body.Bytes()...)
		body.Reset()
		index++
		return nil
	}

	for _, n := range lengths {
		if n < 0 || uint64(n) > 0xFFFFFFFF {
			return dst, fmt.Errorf("invalid packet length %d", n)
		}
		// A value never takes more than five bytes.
		if body.Len()+5 > maxPLTBody {
			if err := flush(); err != nil {
				return dst, err
			}
		}
		if err := w.Write(uint32(n)); err != nil {
			return dst, err
		}
	}
	if body.Len() > 0 || len(lengths) == 0 {
		if err := flush(); err != nil {
			return dst, err
		}
	}
	return dst, nil
}

// ReadPLT parses the body of a PLT marker segment (everything after Lplt).
func ReadPLT(body []byte) (index uint8, lengths []int, err error) {
	if len(body) < 1 {
		return 0, nil, fmt.Errorf("PLT body: %w", ErrShortSegment)
	}
	index = body[0]
	r := bytes.NewReader(body[1:])
	vr := bio.NewVariableLengthReader(r)
	for r.Len() > 0 {
		v, err := vr.Read()
		if err != nil {
			return index, lengths, fmt.Errorf("PLT packet %d: %w", len(lengths), err)
		}
		lengths = append(lengths, int(v))
	}
	return index, lengths, nil
}
