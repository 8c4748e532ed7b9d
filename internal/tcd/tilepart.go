package tcd

import (
	"encoding/binary"
	"fmt"

	"github.com/mrjoshuak/j2kpacket/internal/codestream"
)

// sotLength is the value of Lsot.
const sotLength = 10

// AppendTilePart appends tp as a complete tile-part (SOT, POC when tp
// carries progression order changes, optional PLT, SOD and packet data) to
// dst. numComponents selects the width of the POC component fields.
func AppendTilePart(dst []byte, tileIndex int, tp *TilePart, numParts, numComponents int, withPLT bool) ([]byte, error) {
	if tileIndex < 0 || tileIndex > 0xFFFE {
		return dst, fmt.Errorf("tcd: tile index %d out of range", tileIndex)
	}
	if tp.Index < 0 || tp.Index > 254 || numParts > 255 {
		return dst, fmt.Errorf("tcd: tile-part %d of %d out of range", tp.Index, numParts)
	}

	var poc []byte
	if len(tp.ProgressionOrderChanges) > 0 {
		var err error
		if poc, err = codestream.AppendPOC(nil, tp.ProgressionOrderChanges, numComponents); err != nil {
			return dst, err
		}
	}

	var plt []byte
	if withPLT {
		var err error
		if plt, err = codestream.AppendPLT(nil, 0, tp.PacketLengths); err != nil {
			return dst, err
		}
	}

	psot := uint64(2+sotLength) + uint64(len(poc)) + uint64(len(plt)) + 2 + uint64(len(tp.Data))
	if psot > 0xFFFFFFFF {
		return dst, fmt.Errorf("tcd: tile-part of %d bytes too large", psot)
	}

	dst = binary.BigEndian.AppendUint16(dst, uint16(codestream.SOT))
	dst = binary.BigEndian.AppendUint16(dst, sotLength)
	dst = binary.BigEndian.AppendUint16(dst, uint16(tileIndex))
	dst = binary.BigEndian.AppendUint32(dst, uint32(psot))
	dst = append(dst, byte(tp.Index), byte(numParts))
	dst = append(dst, poc...)
	dst = append(dst, plt...)
	dst = binary.BigEndian.AppendUint16(dst, uint16(codestream.SOD))
	dst = append(dst, tp.Data...)
	return dst, nil
}

// ReadTileParts splits a sequence of tile-parts written by AppendTilePart.
// Packet lengths are filled in from PLT segments and progression order
// changes from POC segments when present.
func ReadTileParts(data []byte, numComponents int) (tileIndex int, parts []TilePart, err error) {
	tileIndex = -1
	for len(data) > 0 {
		if len(data) < 2+sotLength || codestream.Marker(binary.BigEndian.Uint16(data)) != codestream.SOT {
			return tileIndex, parts, fmt.Errorf("tile-part %d: missing SOT: %w", len(parts), codestream.ErrShortSegment)
		}
		isot := int(binary.BigEndian.Uint16(data[4:]))
		psot := int(binary.BigEndian.Uint32(data[6:]))
		if psot < 2+sotLength+2 || psot > len(data) {
			return tileIndex, parts, fmt.Errorf("tile-part %d: bad length %d: %w", len(parts), psot, codestream.ErrShortSegment)
		}
		if tileIndex >= 0 && isot != tileIndex {
			return tileIndex, parts, fmt.Errorf("tile-part %d belongs to tile %d, not %d", len(parts), isot, tileIndex)
		}
		tileIndex = isot

		tp := TilePart{Index: int(data[10])}
		body := data[2+sotLength : psot]
		for {
			if len(body) < 2 {
				return tileIndex, parts, fmt.Errorf("tile-part %d: missing SOD: %w", len(parts), codestream.ErrShortSegment)
			}
			m := codestream.Marker(binary.BigEndian.Uint16(body))
			if m == codestream.SOD {
				tp.Data = body[2:]
				break
			}
			if len(body) < 4 {
				return tileIndex, parts, fmt.Errorf("tile-part %d: %w", len(parts), codestream.ErrShortSegment)
			}
			n := int(binary.BigEndian.Uint16(body[2:]))
			if n < 2 || 2+n > len(body) {
				return tileIndex, parts, fmt.Errorf("tile-part %d: %v segment: %w", len(parts), m, codestream.ErrShortSegment)
			}
			switch m {
			case codestream.PLT:
				_, lengths, err := codestream.ReadPLT(body[4 : 2+n])
				if err != nil {
					return tileIndex, parts, err
				}
				tp.PacketLengths = append(tp.PacketLengths, lengths...)
			case codestream.POC:
				pocs, err := codestream.ReadPOC(body[4:2+n], numComponents)
				if err != nil {
					return tileIndex, parts, fmt.Errorf("tile-part %d: %w", len(parts), err)
				}
				tp.ProgressionOrderChanges = append(tp.ProgressionOrderChanges, pocs...)
			}
			body = body[2+n:]
		}

		parts = append(parts, tp)
		data = data[psot:]
	}
	return tileIndex, parts, nil
}
