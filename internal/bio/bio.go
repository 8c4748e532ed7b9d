// Package bio provides bit-level I/O for JPEG 2000 packet headers.
//
// Packet headers are written MSB first. After a 0xFF byte only seven bits
// are stored in the next byte, so the header can never contain a marker
// code (ISO/IEC 15444-1 B.10.1).
package bio

import (
	"errors"
	"io"
)

var (
	// ErrTruncated is returned when a read runs past the end of the input.
	ErrTruncated = errors.New("bio: input truncated")
	// ErrOverflow is returned when a write does not fit in the output.
	ErrOverflow = errors.New("bio: output buffer too small")
	// ErrValueTooLarge is returned when a variable-length value needs more
	// than five bytes.
	ErrValueTooLarge = errors.New("bio: variable-length value exceeds 32 bits")
)

// Reader reads bits from a byte slice.
type Reader struct {
	src    []byte
	pos    int   // Next byte to load
	buf    byte  // Current byte
	cnt    uint8 // Unread bits in buf
	prevFF bool  // Last loaded byte was 0xFF
}

// NewReader creates a bit reader over src.
func NewReader(src []byte) *Reader {
	return &Reader{src: src}
}

// ReadBit reads a single bit (0 or 1).
func (r *Reader) ReadBit() (int, error) {
	if r.cnt == 0 {
		if r.pos >= len(r.src) {
			return 0, ErrTruncated
		}
		r.buf = r.src[r.pos]
		r.pos++
		// The MSB following 0xFF is a stuffed zero.
		if r.prevFF {
			r.cnt = 7
		} else {
			r.cnt = 8
		}
		r.prevFF = r.buf == 0xFF
	}
	r.cnt--
	return int((r.buf >> r.cnt) & 1), nil
}

// ReadBits reads n bits (0-32) and returns them right aligned.
func (r *Reader) ReadBits(n uint) (uint32, error) {
	var result uint32
	for i := uint(0); i < n; i++ {
		bit, err := r.ReadBit()
		if err != nil {
			return 0, err
		}
		result = (result << 1) | uint32(bit)
	}
	return result, nil
}

// Align discards the rest of the current byte. If the last byte was 0xFF
// the following stuffed byte is consumed as well.
func (r *Reader) Align() error {
	if r.prevFF {
		if r.pos >= len(r.src) {
			return ErrTruncated
		}
		r.pos++
		r.prevFF = false
	}
	r.cnt = 0
	return nil
}

// Len returns the number of bytes consumed so far.
func (r *Reader) Len() int {
	return r.pos
}

// Writer writes bits into a caller-supplied byte slice. The first error is
// sticky: once the slice is full every later write is dropped and Flush
// reports ErrOverflow.
type Writer struct {
	dst   []byte
	n     int   // Bytes emitted
	buf   byte  // Byte being assembled
	cnt   uint8 // Bits in buf
	limit uint8 // Bits that fit in buf (7 after 0xFF)
	err   error
}

// NewWriter creates a bit writer over dst.
func NewWriter(dst []byte) *Writer {
	return &Writer{dst: dst, limit: 8}
}

// WriteBit writes a single bit.
func (w *Writer) WriteBit(bit int) {
	w.buf = (w.buf << 1) | byte(bit&1)
	w.cnt++
	if w.cnt == w.limit {
		w.emit()
	}
}

// WriteBits writes the n (0-32) low bits of val.
func (w *Writer) WriteBits(val uint32, n uint) {
	for i := n; i > 0; i-- {
		w.WriteBit(int((val >> (i - 1)) & 1))
	}
}

// WriteBool writes 1 for true and 0 for false.
func (w *Writer) WriteBool(b bool) {
	if b {
		w.WriteBit(1)
	} else {
		w.WriteBit(0)
	}
}

func (w *Writer) emit() {
	if w.err == nil && w.n >= len(w.dst) {
		w.err = ErrOverflow
	}
	if w.err == nil {
		w.dst[w.n] = w.buf
		w.n++
	}
	if w.buf == 0xFF {
		w.limit = 7
	} else {
		w.limit = 8
	}
	w.buf = 0
	w.cnt = 0
}

// Flush pads the current byte with zeros and writes it. A trailing 0xFF is
// followed by a zero byte so that the header never ends on a marker prefix.
func (w *Writer) Flush() error {
	if w.cnt > 0 {
		w.buf <<= w.limit - w.cnt
		w.emit()
	} else if w.limit == 7 {
		w.emit()
	}
	return w.err
}

// Len returns the number of complete bytes written.
func (w *Writer) Len() int {
	return w.n
}

// Err returns the first write error, if any.
func (w *Writer) Err() error {
	return w.err
}

// VariableLengthReader reads variable-length encoded values.
type VariableLengthReader struct {
	r io.ByteReader
}

// NewVariableLengthReader creates a new variable-length reader.
func NewVariableLengthReader(r io.ByteReader) *VariableLengthReader {
	return &VariableLengthReader{r: r}
}

// Read reads a variable-length encoded value.
// Values are encoded with continuation bit (bit 7) set for all bytes
// except the last.
func (v *VariableLengthReader) Read() (uint32, error) {
	var result uint32
	for i := 0; ; i++ {
		b, err := v.r.ReadByte()
		if err != nil {
			if i > 0 && err == io.EOF {
				return 0, io.ErrUnexpectedEOF
			}
			return 0, err
		}
		if i == 5 {
			return 0, ErrValueTooLarge
		}
		result = (result << 7) | uint32(b&0x7F)
		if b&0x80 == 0 {
			return result, nil
		}
	}
}

// VariableLengthWriter writes variable-length encoded values.
type VariableLengthWriter struct {
	w io.Writer
}

// NewVariableLengthWriter creates a new variable-length writer.
func NewVariableLengthWriter(w io.Writer) *VariableLengthWriter {
	return &VariableLengthWriter{w: w}
}

// Write writes a value using variable-length encoding.
func (v *VariableLengthWriter) Write(val uint32) error {
	var bytes [5]byte
	n := 0
	for {
		bytes[4-n] = byte(val & 0x7F)
		if n > 0 {
			bytes[4-n] |= 0x80 // Set continuation bit
		}
		val >>= 7
		n++
		if val == 0 {
			break
		}
	}
	_, err := v.w.Write(bytes[5-n:])
	return err
}
