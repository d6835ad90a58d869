package types

// Instruction is the payload the leader ships inside a REQ letter: a
// single membership change the issuing process wants every member of
// the recorded view to acknowledge.
type Instruction struct {
	RequestId RequestId
	PeerId    PeerId
	ViewId    ViewId
	Op        Operation
}
