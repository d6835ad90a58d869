package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/migmoog/distsys-prj3/internal/errs"
)

// MaxFrameSize bounds a single frame's payload. Framing always reads
// exactly the length-prefixed number of bytes, looping over the
// underlying reader as needed, so frames of any size decode correctly
// regardless of how reads happen to coalesce; this cap only guards
// against a corrupt or hostile length prefix forcing an unbounded
// allocation.
const MaxFrameSize = 1 << 20

// WriteFrame length-prefixes payload with an 8-byte little-endian
// length and writes both in a single Write call, so a slow or
// interleaved writer on the same connection can't split the header from
// the body.
func WriteFrame(w io.Writer, payload []byte) error {
	frame := make([]byte, 8+len(payload))
	binary.LittleEndian.PutUint64(frame[:8], uint64(len(payload)))
	copy(frame[8:], payload)
	if _, err := w.Write(frame); err != nil {
		return errs.WrapIO("write frame", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r, maintaining
// correctness across partial reads by looping io.ReadFull over both the
// 8-byte header and the payload.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, errs.WrapIO("read frame header", err)
	}
	length := binary.LittleEndian.Uint64(header[:])
	if length > MaxFrameSize {
		return nil, fmt.Errorf("%w: frame size %d exceeds cap", errs.ErrBadMessage, length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, errs.WrapIO("read frame payload", err)
	}
	return payload, nil
}

// WriteLetter encodes and frames l onto w in one call.
func WriteLetter(w io.Writer, l Letter) error {
	payload, err := Encode(l)
	if err != nil {
		return err
	}
	return WriteFrame(w, payload)
}

// ReadLetter reads one frame from r and decodes it into a Letter.
func ReadLetter(r io.Reader) (Letter, error) {
	payload, err := ReadFrame(r)
	if err != nil {
		return Letter{}, err
	}
	return Decode(payload)
}
