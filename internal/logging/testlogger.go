package logging

import "sync"

// EventRecord captures one EventNewView/EventUnreachable/EventCrashing
// call, letting tests assert on membership-change scenarios without
// scraping formatted text.
type EventRecord struct {
	Kind    string
	ProcID  uint32
	ViewID  uint32
	Leader  uint32
	Members []uint32
	Peer    uint32
}

// Recording is a Logger that swallows ordinary log lines and records
// every pinned event call, used across the state/transport/heart test
// suites and internal/testcluster as a lightweight stand-in for a real
// stderr-writing logger.
type Recording struct {
	mu     sync.Mutex
	Events []EventRecord
	debug  bool
}

func NewRecording() *Recording { return &Recording{} }

func (r *Recording) Info(args ...interface{})                  {}
func (r *Recording) Infof(format string, args ...interface{})  {}
func (r *Recording) Warn(args ...interface{})                  {}
func (r *Recording) Warnf(format string, args ...interface{})  {}
func (r *Recording) Error(args ...interface{})                 {}
func (r *Recording) Errorf(format string, args ...interface{}) {}
func (r *Recording) Debug(args ...interface{})                 {}
func (r *Recording) Debugf(format string, args ...interface{}) {}
func (r *Recording) Fatal(args ...interface{})                 {}
func (r *Recording) Fatalf(format string, args ...interface{}) {}

func (r *Recording) ToggleDebug(enabled bool) bool {
	r.debug = enabled
	return enabled
}

func (r *Recording) WithFields(fields map[string]interface{}) Logger {
	return r
}

func (r *Recording) EventNewView(procID, viewID, leader uint32, members []uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, EventRecord{Kind: kindNewView, ProcID: procID, ViewID: viewID, Leader: leader, Members: members})
}

func (r *Recording) EventUnreachable(procID, viewID, leader, peer uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, EventRecord{Kind: kindUnreachable, ProcID: procID, ViewID: viewID, Leader: leader, Peer: peer})
}

func (r *Recording) EventCrashing(procID, viewID, leader uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, EventRecord{Kind: kindCrashing, ProcID: procID, ViewID: viewID, Leader: leader})
}

// Snapshot returns a copy of the recorded events so far, safe to read
// concurrently with further logging.
func (r *Recording) Snapshot() []EventRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventRecord, len(r.Events))
	copy(out, r.Events)
	return out
}
