package markduplicates

import (
	"fmt"
	"sync/atomic"

	"github.com/grailbio/base/log"
)

// EventKind names a diagnostic condition observed while marking duplicates.
type EventKind int

const (
	// ClassificationMismatch is reported when the fragments out of a
	// classification do not add up to the fragments that went in.
	ClassificationMismatch EventKind = iota
	// MissingCandidatePartner is reported when a candidate fragment cannot
	// find its candidate set, or the set never completes.
	MissingCandidatePartner
	// ConsensusFailure is reported when a consensus read cannot be built.
	ConsensusFailure
	// CacheConflict is reported when a read-id is registered in a partition
	// cache that already holds it.
	CacheConflict
	// SlowLock is reported when a partition lock is held for longer than
	// Opts.LockWarnThreshold.
	SlowLock
	// PaddingExceeded is reported when a fragment's lower 5' end lies in
	// another partition, further than Opts.Padding from its first record.
	// The fragment is classified in the partition of its first record.
	PaddingExceeded

	numEventKinds
)

var eventKindNames = [numEventKinds]string{
	"ClassificationMismatch",
	"MissingCandidatePartner",
	"ConsensusFailure",
	"CacheConflict",
	"SlowLock",
	"PaddingExceeded",
}

func (k EventKind) String() string {
	if k < 0 || k >= numEventKinds {
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
	return eventKindNames[k]
}

// Event is one diagnostic report.
type Event struct {
	Kind EventKind
	// Partition is the key of the partition that raised the event, if any.
	Partition string
	// ReadID is the read or group the event is about, if any.
	ReadID  string
	Message string
}

func (e Event) String() string {
	return fmt.Sprintf("%v partition=%s read=%s: %s", e.Kind, e.Partition, e.ReadID, e.Message)
}

// EventSink receives diagnostic events. Implementations must be safe for
// concurrent use.
type EventSink interface {
	Emit(e Event)
}

// LogSink logs every event and counts them by kind.
type LogSink struct {
	counts [numEventKinds]int64
}

// Emit implements EventSink.
func (s *LogSink) Emit(e Event) {
	if e.Kind >= 0 && e.Kind < numEventKinds {
		atomic.AddInt64(&s.counts[e.Kind], 1)
	}
	switch e.Kind {
	case SlowLock:
		log.Printf("warning: %v", e)
	case CacheConflict, ClassificationMismatch:
		log.Error.Printf("%v", e)
	default:
		log.Debug.Printf("%v", e)
	}
}

// Count returns the number of events of the given kind seen so far.
func (s *LogSink) Count(kind EventKind) int64 {
	return atomic.LoadInt64(&s.counts[kind])
}

// LogSummary logs the per-kind event counts.
func (s *LogSink) LogSummary() {
	for k := EventKind(0); k < numEventKinds; k++ {
		if n := s.Count(k); n > 0 {
			log.Printf("%d %v events", n, k)
		}
	}
}
