package markduplicates

import (
	"fmt"

	gbam "github.com/grailbio/dupcons/encoding/bam"
	"github.com/grailbio/hts/sam"
)

// ReadType is the role of a record within a duplicate group.
type ReadType int

const (
	// ReadTypePrimary is the primary record of the lower end.
	ReadTypePrimary ReadType = iota
	// ReadTypeMate is the primary record of the upper end.
	ReadTypeMate
	// ReadTypePrimarySupplementary is a supplementary record of the lower
	// end's read.
	ReadTypePrimarySupplementary
	// ReadTypeMateSupplementary is a supplementary record of the upper end's
	// read.
	ReadTypeMateSupplementary

	numReadTypes
)

var readTypeNames = [numReadTypes]string{"PRIMARY", "MATE", "PRIMARY_SUPPLEMENTARY", "MATE_SUPPLEMENTARY"}

func (t ReadType) String() string {
	if t < 0 || t >= numReadTypes {
		return fmt.Sprintf("ReadType(%d)", int(t))
	}
	return readTypeNames[t]
}

func (t ReadType) isSupplementary() bool {
	return t == ReadTypePrimarySupplementary || t == ReadTypeMateSupplementary
}

// supplementary returns the supplementary read type of a primary read type.
func (t ReadType) supplementary() ReadType {
	if t == ReadTypePrimary {
		return ReadTypePrimarySupplementary
	}
	return ReadTypeMateSupplementary
}

// BucketState is the state of one read type bucket of a UmiGroup.
type BucketState int

const (
	// BucketEmpty holds no records.
	BucketEmpty BucketState = iota
	// BucketFilling holds some of the expected records.
	BucketFilling
	// BucketReady holds all expected records.
	BucketReady
	// BucketDrained has handed its records to consensus and accepts no more.
	BucketDrained
)

var bucketStateNames = []string{"EMPTY", "FILLING", "READY", "DRAINED"}

func (s BucketState) String() string {
	if s < 0 || int(s) >= len(bucketStateNames) {
		return fmt.Sprintf("BucketState(%d)", int(s))
	}
	return bucketStateNames[s]
}

type readBucket struct {
	state    BucketState
	reads    []*sam.Record
	received int
	// expected is fixed once final is set.
	expected int
	final    bool
}

func (b *readBucket) updateState() {
	if b.state == BucketDrained {
		return
	}
	switch {
	case b.final && b.expected > 0 && b.received >= b.expected:
		b.state = BucketReady
	case b.received > 0:
		b.state = BucketFilling
	default:
		b.state = BucketEmpty
	}
}

func (b *readBucket) done() bool {
	return b.state == BucketDrained || (b.final && b.expected == 0)
}

// DrainedBucket is the set of records of one read type of one group, ready
// for consensus.
type DrainedBucket struct {
	GroupID  string
	ReadName string
	ReadType ReadType
	Reads    []*sam.Record
	// DualStrand is set if the group holds fragments of both strands.
	DualStrand bool
	// Partial is set if the bucket was drained before all records arrived.
	Partial bool
}

// UmiGroup collects the records of a set of duplicate fragments, by read
// type, until each read type can be collapsed into one consensus record.
type UmiGroup struct {
	ID  string
	UMI string
	// ReadName is the name of the consensus records.
	ReadName    string
	FragmentIDs []string
	DualStrand  bool

	lower, upper ReadEnd
	lowerIsRead1 map[string]bool
	buckets      [numReadTypes]readBucket
}

// NewUmiGroup creates a group from duplicate fragments and files their
// current records. The fragments keep their records. The group is dual
// strand if its fragments do not agree on which read of the pair is lower.
func NewUmiGroup(id, umi, readName string, fragments []*Fragment) *UmiGroup {
	coord := fragments[0].Coordinates
	g := &UmiGroup{
		ID:           id,
		UMI:          umi,
		ReadName:     readName,
		lower:        coord.Lower,
		upper:        coord.Upper,
		lowerIsRead1: map[string]bool{},
	}
	if !coord.HasUpper {
		g.upper = ReadEnd{RefID: gbam.UnmappedRefID, Unmapped: true}
	}
	n := len(fragments)
	g.buckets[ReadTypePrimary].expected = n
	g.buckets[ReadTypePrimary].final = true
	if fragments[0].primaryExpected == 2 {
		g.buckets[ReadTypeMate].expected = n
	}
	g.buckets[ReadTypeMate].final = true

	reversed := 0
	for _, f := range fragments {
		g.FragmentIDs = append(g.FragmentIDs, f.ID)
		g.lowerIsRead1[f.ID] = !f.Coordinates.Reversed
		if f.Coordinates.Reversed {
			reversed++
		}
	}
	if reversed > 0 && reversed < n {
		g.DualStrand = true
	}
	for _, f := range fragments {
		for _, r := range f.Reads {
			g.AddRead(r)
		}
	}
	return g
}

func (g *UmiGroup) isLowerRead(r *sam.Record) bool {
	if !gbam.IsPaired(r) {
		return true
	}
	lowerIsRead1, ok := g.lowerIsRead1[r.Name]
	if !ok {
		lowerIsRead1 = true
	}
	return gbam.IsRead1(r) == lowerIsRead1
}

func (g *UmiGroup) readType(r *sam.Record) ReadType {
	// Ends with equal descriptors are told apart by read number only.
	sameEnds := g.lower.matches(g.upper)
	if gbam.IsSupplementary(r) {
		if alns, err := gbam.ParseSupplementaryAlignments(r); err == nil && len(alns) > 0 && !sameEnds {
			primary := ReadEnd{
				RefName: alns[0].RefName,
				Pos:     alns[0].UnclippedFivePrimePosition(),
				Reverse: alns[0].Reverse,
			}
			switch {
			case primary.matches(g.lower):
				return ReadTypePrimarySupplementary
			case primary.matches(g.upper):
				return ReadTypeMateSupplementary
			}
		}
		if g.isLowerRead(r) {
			return ReadTypePrimarySupplementary
		}
		return ReadTypeMateSupplementary
	}
	end := readEndOf(r)
	switch {
	case sameEnds:
		if g.isLowerRead(r) {
			return ReadTypePrimary
		}
		return ReadTypeMate
	case end.matches(g.lower):
		return ReadTypePrimary
	case end.matches(g.upper):
		return ReadTypeMate
	case g.isLowerRead(r):
		return ReadTypePrimary
	}
	return ReadTypeMate
}

// AddRead files r in its bucket. It returns false if that bucket has
// already been drained, in which case r is not used for consensus.
func (g *UmiGroup) AddRead(r *sam.Record) bool {
	t := g.readType(r)
	b := &g.buckets[t]
	if b.state == BucketDrained {
		return false
	}
	b.reads = append(b.reads, r)
	b.received++
	if !t.isSupplementary() {
		supp := &g.buckets[t.supplementary()]
		supp.expected += gbam.SupplementaryCount(r)
	}
	g.updateStates()
	return true
}

func (g *UmiGroup) updateStates() {
	for _, t := range []ReadType{ReadTypePrimary, ReadTypeMate} {
		parent := &g.buckets[t]
		supp := &g.buckets[t.supplementary()]
		supp.final = parent.final && parent.received >= parent.expected
		parent.updateState()
		supp.updateState()
	}
}

// State returns the state of the bucket of read type t.
func (g *UmiGroup) State(t ReadType) BucketState {
	return g.buckets[t].state
}

// DrainReady empties every READY bucket. Drained buckets never accept records
// again, so each read type is drained at most once.
func (g *UmiGroup) DrainReady() []DrainedBucket {
	var drained []DrainedBucket
	for t := ReadType(0); t < numReadTypes; t++ {
		if g.buckets[t].state == BucketReady {
			drained = append(drained, g.drain(t, false))
		}
	}
	return drained
}

// DrainPartial empties every bucket that holds records and marks all buckets
// drained. It is used at the end of a run.
func (g *UmiGroup) DrainPartial() []DrainedBucket {
	var drained []DrainedBucket
	for t := ReadType(0); t < numReadTypes; t++ {
		b := &g.buckets[t]
		if b.state == BucketDrained {
			continue
		}
		if len(b.reads) > 0 {
			drained = append(drained, g.drain(t, b.state != BucketReady))
		}
		b.state = BucketDrained
	}
	return drained
}

func (g *UmiGroup) drain(t ReadType, partial bool) DrainedBucket {
	b := &g.buckets[t]
	reads := b.reads
	if t.isSupplementary() {
		reads = SelectSupplementaryReads(reads)
	}
	b.reads = nil
	b.state = BucketDrained
	return DrainedBucket{
		GroupID:    g.ID,
		ReadName:   g.ReadName,
		ReadType:   t,
		Reads:      reads,
		DualStrand: g.DualStrand,
		Partial:    partial,
	}
}

// Complete returns true once every bucket that expects records has been
// drained.
func (g *UmiGroup) Complete() bool {
	for t := range g.buckets {
		if !g.buckets[t].done() {
			return false
		}
	}
	return true
}

func (g *UmiGroup) String() string {
	s := fmt.Sprintf("group %s umi=%s fragments=%v", g.ID, g.UMI, g.FragmentIDs)
	for t := ReadType(0); t < numReadTypes; t++ {
		b := &g.buckets[t]
		s += fmt.Sprintf(" %v=%v(%d/%d)", t, b.state, b.received, b.expected)
	}
	return s
}
