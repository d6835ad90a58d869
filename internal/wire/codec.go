package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/migmoog/distsys-prj3/internal/errs"
	"github.com/migmoog/distsys-prj3/internal/types"
)

// MaxMembers bounds the NEWVIEW member count so a corrupt length prefix
// can't be used to force an enormous allocation while decoding.
const MaxMembers = 1 << 16

// Encode serializes a Letter into a little-endian, tag-as-u32 layout.
// The returned bytes are the frame payload; framing.WriteFrame prefixes
// them with the 8-byte length.
func Encode(l Letter) ([]byte, error) {
	var buf bytes.Buffer
	writeU32(&buf, uint32(l.Sender))
	writeString(&buf, l.ProtocolVersion)
	writeU32(&buf, uint32(l.Body.Kind()))

	switch body := l.Body.(type) {
	case Join:
	case Req:
		writeU32(&buf, uint32(body.Instruction.RequestId))
		writeU32(&buf, uint32(body.Instruction.PeerId))
		writeU32(&buf, uint32(body.Instruction.ViewId))
		writeU32(&buf, uint32(body.Instruction.Op))
	case Ok:
		writeU32(&buf, uint32(body.RequestId))
		writeU32(&buf, uint32(body.ViewId))
	case NewView:
		writeU32(&buf, uint32(body.ViewId))
		members := body.Members.Sorted()
		writeU64(&buf, uint64(len(members)))
		for _, m := range members {
			writeU32(&buf, uint32(m))
		}
	case Heartbeat:
	default:
		return nil, fmt.Errorf("%w: unknown message type %T", errs.ErrBadMessage, body)
	}
	return buf.Bytes(), nil
}

// Decode parses a frame payload back into a Letter.
func Decode(payload []byte) (Letter, error) {
	r := bytes.NewReader(payload)

	sender, err := readU32(r)
	if err != nil {
		return Letter{}, badMessage(err)
	}
	version, err := readString(r)
	if err != nil {
		return Letter{}, badMessage(err)
	}
	kind, err := readU32(r)
	if err != nil {
		return Letter{}, badMessage(err)
	}

	var body Message
	switch Kind(kind) {
	case KindJoin:
		body = Join{}
	case KindReq:
		requestID, err1 := readU32(r)
		peerID, err2 := readU32(r)
		viewID, err3 := readU32(r)
		op, err4 := readU32(r)
		if err := firstErr(err1, err2, err3, err4); err != nil {
			return Letter{}, badMessage(err)
		}
		body = Req{Instruction: types.Instruction{
			RequestId: types.RequestId(requestID),
			PeerId:    types.PeerId(peerID),
			ViewId:    types.ViewId(viewID),
			Op:        types.Operation(op),
		}}
	case KindOk:
		requestID, err1 := readU32(r)
		viewID, err2 := readU32(r)
		if err := firstErr(err1, err2); err != nil {
			return Letter{}, badMessage(err)
		}
		body = Ok{RequestId: types.RequestId(requestID), ViewId: types.ViewId(viewID)}
	case KindNewView:
		viewID, err1 := readU32(r)
		count, err2 := readU64(r)
		if err := firstErr(err1, err2); err != nil {
			return Letter{}, badMessage(err)
		}
		if count > MaxMembers {
			return Letter{}, badMessage(fmt.Errorf("member count %d exceeds cap", count))
		}
		members := types.NewPeerSet()
		for i := uint64(0); i < count; i++ {
			id, err := readU32(r)
			if err != nil {
				return Letter{}, badMessage(err)
			}
			members.Add(types.PeerId(id))
		}
		body = NewView{ViewId: types.ViewId(viewID), Members: members}
	case KindHeartbeat:
		body = Heartbeat{}
	default:
		return Letter{}, badMessage(fmt.Errorf("unknown message kind %d", kind))
	}

	return Letter{
		Sender:          types.PeerId(sender),
		ProtocolVersion: version,
		Body:            body,
	}, nil
}

func badMessage(err error) error {
	return fmt.Errorf("%w: %v", errs.ErrBadMessage, err)
}

func firstErr(errors ...error) error {
	for _, err := range errors {
		if err != nil {
			return err
		}
	}
	return nil
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	buf.Write(tmp[:])
}

func writeString(buf *bytes.Buffer, s string) {
	writeU64(buf, uint64(len(s)))
	buf.WriteString(s)
}

func readU32(r *bytes.Reader) (uint32, error) {
	var tmp [4]byte
	if _, err := readFull(r, tmp[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(tmp[:]), nil
}

func readU64(r *bytes.Reader) (uint64, error) {
	var tmp [8]byte
	if _, err := readFull(r, tmp[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(tmp[:]), nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readU64(r)
	if err != nil {
		return "", err
	}
	if n > MaxMembers {
		return "", fmt.Errorf("string length %d exceeds cap", n)
	}
	out := make([]byte, n)
	if _, err := readFull(r, out); err != nil {
		return "", err
	}
	return string(out), nil
}

func readFull(r *bytes.Reader, p []byte) (int, error) {
	n, err := r.Read(p)
	if err != nil {
		return n, err
	}
	if n != len(p) {
		return n, fmt.Errorf("short read: wanted %d, got %d", len(p), n)
	}
	return n, nil
}
