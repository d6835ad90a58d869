// Package errs enumerates the fatal-or-not error kinds the protocol
// distinguishes, using package-level sentinel errors the way
// ErrUnsupportedProtocol and ErrCommandUnknown do elsewhere.
package errs

import "errors"

var (
	// ErrHostNotInHostsfile is returned by hostlist loading when this
	// process's own hostname does not appear in the supplied file.
	ErrHostNotInHostsfile = errors.New("host not in hostsfile")

	// ErrBadMessage wraps a decode failure. On UDP this is logged and
	// ignored; on TCP it is fatal.
	ErrBadMessage = errors.New("bad message")

	// ErrProtocolViolation is raised when a role receives a message kind
	// it is not permitted to receive (e.g. a follower receiving JOIN).
	// Always fatal.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrUnknownRequest names the case of an OK referencing a request id
	// the leader has no record of. Not fatal. No function in this module
	// returns it: role.Leading.AcknowledgeOk ignores such OKs silently.
	ErrUnknownRequest = errors.New("unknown request id")
)

// IO wraps an underlying socket/file error. Transient IO on a per-peer
// send, a dial, or a bind is fatal to the whole process - this is a
// small static cluster, silent drops are not tolerated.
type IO struct {
	Op  string
	Err error
}

func (e *IO) Error() string {
	if e.Err == nil {
		return "io error during " + e.Op
	}
	return "io error during " + e.Op + ": " + e.Err.Error()
}

func (e *IO) Unwrap() error { return e.Err }

// WrapIO builds an *IO with the operation name that failed, or returns
// nil if err is nil - a convenience used at every socket call site.
func WrapIO(op string, err error) error {
	if err == nil {
		return nil
	}
	return &IO{Op: op, Err: err}
}
