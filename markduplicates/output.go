package markduplicates

import (
	"fmt"
	"strings"

	"github.com/grailbio/dupcons/consensus"
	gbam "github.com/grailbio/dupcons/encoding/bam"
	"github.com/grailbio/hts/sam"
)

var (
	// ConsensusCountTag holds the number of records a consensus record was
	// built from.
	ConsensusCountTag = sam.Tag{'X', 'C'}
	// DualStrandTag is set on consensus records built from both strands of a
	// molecule.
	DualStrandTag = sam.Tag{'X', 'D'}
)

var dualStrandAux = mustNewAux(DualStrandTag, 1)

// recordSink receives output records.
type recordSink interface {
	AddRecord(r *sam.Record)
}

// output writes the records and consensus records produced by one worker.
type output struct {
	sink    recordSink
	builder consensus.Builder
	events  EventSink
	stats   *Statistics
}

func (o *output) write(r *sam.Record) {
	if gbam.IsDuplicate(r) {
		o.stats.DuplicateReads++
	}
	o.sink.AddRecord(r)
}

func (o *output) writeAll(reads []*sam.Record) {
	for _, r := range reads {
		o.write(r)
	}
}

func (o *output) handle(res PartitionResults) {
	o.writeAll(res.Reads)
	o.consensus(res.Drained)
}

// consensus builds and writes one consensus record per bucket. A bucket that
// fails to build is reported and skipped.
func (o *output) consensus(buckets []DrainedBucket) {
	for _, b := range buckets {
		result, err := o.builder.Build(b.Reads, b.ReadName)
		if err != nil {
			o.events.Emit(Event{
				Kind:    ConsensusFailure,
				ReadID:  b.GroupID,
				Message: fmt.Sprintf("%v bucket: %v\n%s", b.ReadType, err, dumpReads(b.Reads)),
			})
			continue
		}
		rec := result.Record
		rec.Flags &^= sam.Duplicate
		gbam.SetAux(rec, mustNewAux(ConsensusCountTag, result.ReadCount))
		if b.DualStrand || (result.FirstInPairRatio > 0 && result.FirstInPairRatio < 1) {
			gbam.SetAux(rec, dualStrandAux)
		}
		if b.Partial {
			gbam.SetAux(rec, incompleteAux)
		}
		o.stats.ConsensusReads++
		o.write(rec)
	}
}

func dumpReads(reads []*sam.Record) string {
	lines := make([]string, len(reads))
	for i, r := range reads {
		lines[i] = r.String()
	}
	return strings.Join(lines, "\n")
}
