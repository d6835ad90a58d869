package wire

import (
	"bytes"
	"io"
	"testing"

	"github.com/migmoog/distsys-prj3/internal/types"
)

func roundTrip(t *testing.T, l Letter) Letter {
	t.Helper()
	payload, err := Encode(l)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := Decode(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return decoded
}

func TestCodec_Join(t *testing.T) {
	got := roundTrip(t, Letter{Sender: 3, ProtocolVersion: "1.0.0", Body: Join{}})
	if got.Sender != 3 || got.ProtocolVersion != "1.0.0" || got.Body.Kind() != KindJoin {
		t.Fatalf("unexpected round trip: %#v", got)
	}
}

func TestCodec_Req(t *testing.T) {
	instr := types.Instruction{RequestId: 7, PeerId: 4, ViewId: 2, Op: types.Delete}
	got := roundTrip(t, Letter{Sender: 1, Body: Req{Instruction: instr}})
	req, ok := got.Body.(Req)
	if !ok {
		t.Fatalf("expected Req, got %#v", got.Body)
	}
	if req.Instruction != instr {
		t.Fatalf("expected %#v, got %#v", instr, req.Instruction)
	}
}

func TestCodec_Ok(t *testing.T) {
	got := roundTrip(t, Letter{Sender: 2, Body: Ok{RequestId: 9, ViewId: 5}})
	ok, valid := got.Body.(Ok)
	if !valid || ok.RequestId != 9 || ok.ViewId != 5 {
		t.Fatalf("unexpected: %#v", got.Body)
	}
}

func TestCodec_NewView(t *testing.T) {
	members := types.NewPeerSet(1, 2, 3)
	got := roundTrip(t, Letter{Sender: 1, Body: NewView{ViewId: 4, Members: members}})
	nv, ok := got.Body.(NewView)
	if !ok {
		t.Fatalf("expected NewView, got %#v", got.Body)
	}
	if nv.ViewId != 4 || !nv.Members.Equal(members) {
		t.Fatalf("expected members %v, got %v", members, nv.Members)
	}
}

func TestCodec_Heartbeat(t *testing.T) {
	got := roundTrip(t, Letter{Sender: 2, Body: Heartbeat{}})
	if got.Body.Kind() != KindHeartbeat {
		t.Fatalf("expected heartbeat, got %#v", got.Body)
	}
}

func TestCodec_BadMessageOnUnknownKind(t *testing.T) {
	payload, err := Encode(Letter{Sender: 1, Body: Join{}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// corrupt the kind tag (comes right after sender u32 + 8-byte
	// string-length prefix for an empty ProtocolVersion).
	payload[4+8] = 0xFF
	if _, err := Decode(payload); err == nil {
		t.Fatalf("expected decode error for corrupted kind tag")
	}
}

func TestFraming_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	l := Letter{Sender: 5, Body: Req{Instruction: types.Instruction{RequestId: 1, PeerId: 2, ViewId: 1, Op: types.Add}}}
	if err := WriteLetter(&buf, l); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := ReadLetter(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	req := got.Body.(Req)
	if req.Instruction.RequestId != 1 {
		t.Fatalf("unexpected instruction: %#v", req.Instruction)
	}
}

// partialReader trickles bytes one at a time to exercise the
// io.ReadFull looping in ReadFrame/ReadLetter against reads that split
// or coalesce arbitrarily.
type partialReader struct {
	data []byte
}

func (p *partialReader) Read(b []byte) (int, error) {
	if len(p.data) == 0 {
		return 0, io.EOF
	}
	n := copy(b, p.data[:1])
	p.data = p.data[1:]
	return n, nil
}

func TestFraming_SurvivesPartialReads(t *testing.T) {
	var buf bytes.Buffer
	l := Letter{Sender: 9, Body: NewView{ViewId: 3, Members: types.NewPeerSet(1, 2, 3, 4, 5)}}
	if err := WriteLetter(&buf, l); err != nil {
		t.Fatalf("write: %v", err)
	}

	pr := &partialReader{data: buf.Bytes()}
	got, err := ReadLetter(pr)
	if err != nil {
		t.Fatalf("read over partial reader: %v", err)
	}
	nv := got.Body.(NewView)
	if nv.ViewId != 3 || len(nv.Members) != 5 {
		t.Fatalf("unexpected letter: %#v", nv)
	}
}
