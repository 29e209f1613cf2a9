package markduplicates

import (
	"fmt"

	gbam "github.com/grailbio/dupcons/encoding/bam"
	"github.com/grailbio/dupcons/encoding/bamprovider"
	"github.com/grailbio/hts/sam"
)

// partitionReader marks the records of one partition. The partition is read
// with Opts.Padding on both sides. Fragments whose lower 5' end lies in the
// partition are classified here, even if their first record lies in the
// padding. Other records of the partition proper are handed to the
// PartitionData of their fragment's base partition.
type partitionReader struct {
	opts       *Opts
	shard      gbam.Shard
	store      *PartitionDataStore
	partition  *PartitionData
	classifier *DuplicateClassifier
	groups     *DuplicateGroups
	buffer     *positionBuffer
	out        *output
}

func newPartitionReader(opts *Opts, shard gbam.Shard, store *PartitionDataStore, out *output) *partitionReader {
	key := unmappedPartition
	if !shard.IsUnmapped() {
		key = PartitionKey(shard.StartRef.Name(), shard.Start, opts.PartitionSize)
	}
	return &partitionReader{
		opts:       opts,
		shard:      shard,
		store:      store,
		partition:  store.Get(key),
		classifier: NewDuplicateClassifier(opts, out.events, key),
		groups:     NewDuplicateGroups(opts),
		buffer:     newPositionBuffer(opts.BufferSize),
		out:        out,
	}
}

// isDriver returns true if r is the primary record that starts its fragment:
// the leftmost mapped primary record of the template, with the first read
// winning ties.
func isDriver(r *sam.Record) bool {
	if gbam.HasNoMappedMate(r) {
		return true
	}
	c := gbam.CoordFromSAMRecord(r).Compare(gbam.NewCoord(r.MateRef, r.MatePos))
	if c != 0 {
		return c < 0
	}
	return gbam.IsRead1(r)
}

func (p *partitionReader) run(iter bamprovider.Iterator) error {
	for iter.Scan() {
		p.processRecord(iter.Record())
	}
	p.flush(p.buffer.popAll())
	return iter.Err()
}

func (p *partitionReader) processRecord(r *sam.Record) {
	if !p.shard.RecordInShard(r) {
		p.processPadding(r)
		return
	}
	p.out.stats.TotalReads++
	switch {
	case gbam.IsSecondary(r):
		p.out.stats.SecondaryReads++
		p.out.write(r)
		return
	case gbam.IsFullyUnmapped(r):
		p.out.stats.Unmap.FullyUnmapped++
		p.out.write(r)
		return
	}
	if r.Ref != nil {
		p.flush(p.buffer.popBefore(r.Ref.ID(), r.Pos))
	}

	switch {
	case gbam.IsSupplementary(r):
		p.addNonDriver(r)
		return
	case gbam.IsUnmapped(r):
		p.out.stats.Unmap.UnmappedMates++
		p.addNonDriver(r)
		return
	case gbam.IsPaired(r) && gbam.IsMateUnmapped(r):
		p.out.stats.Unmap.MateUnmapped++
	}
	if !isDriver(r) {
		p.addNonDriver(r)
		return
	}
	p.addDriver(r)
}

// processPadding handles a record of the padding around the partition. Only
// the first records of fragments classified in this partition are used; the
// partition that holds a record handles it otherwise.
func (p *partitionReader) processPadding(r *sam.Record) {
	if r.Ref == nil || gbam.IsSecondary(r) || gbam.IsSupplementary(r) || gbam.IsUnmapped(r) || !isDriver(r) {
		return
	}
	p.flush(p.buffer.popBefore(r.Ref.ID(), r.Pos))
	p.addDriver(r)
}

// addDriver starts the fragment of its first record r, if the fragment is
// classified in this partition.
func (p *partitionReader) addDriver(r *sam.Record) {
	f := NewFragment(r)
	if p.opts.UseUmis {
		f.UMI = fragmentUMI(p.opts, r.Name)
	}
	f.UpdateCoordinates()
	if r.Ref == nil || p.shard.IsUnmapped() {
		p.buffer.add(f)
		return
	}
	home := r.Pos / p.opts.PartitionSize
	idx := p.classifyingPartition(f, r)
	if idx != p.shard.Start/p.opts.PartitionSize {
		return
	}
	if idx != home {
		key := PartitionKey(r.Ref.Name(), r.Pos, p.opts.PartitionSize)
		if early := p.store.Get(key).Forward(f.ID, p.partition.Key); early != nil {
			f.Merge(early)
		}
	}
	p.buffer.add(f)
}

// classifyingPartition returns the index of the partition, on the reference
// of r, that classifies the fragment f whose first record is r. It is the
// partition of f's lower 5' end, unless r lies outside that partition's
// padding, in which case it is the partition of r.
func (p *partitionReader) classifyingPartition(f *Fragment, r *sam.Record) int {
	size := p.opts.PartitionSize
	home := r.Pos / size
	lower := f.Coordinates.Lower
	if lower.Unmapped || lower.RefID != r.Ref.ID() {
		return home
	}
	pos := lower.Pos
	if pos < 0 {
		pos = 0
	}
	if n := r.Ref.Len(); pos >= n {
		pos = n - 1
	}
	idx := pos / size
	if idx == home {
		return home
	}
	if r.Pos < idx*size-p.opts.Padding || r.Pos >= (idx+1)*size+p.opts.Padding {
		if p.shard.RecordInShard(r) {
			p.out.events.Emit(Event{
				Kind:      PaddingExceeded,
				Partition: p.partition.Key,
				ReadID:    f.ID,
				Message:   fmt.Sprintf("lower 5' end %d is more than %d bp from %d", lower.Pos, p.opts.Padding, r.Pos),
			})
		}
		return home
	}
	return idx
}

// addNonDriver joins r to its buffered fragment, or else delivers it to the
// fragment's base partition.
func (p *partitionReader) addNonDriver(r *sam.Record) {
	if f := p.buffer.find(r.Name); f != nil {
		f.AddRead(r)
		return
	}
	pd := p.partition
	if key := p.store.BasePartitionKey(r); key != pd.Key {
		pd = p.store.Get(key)
	}
	p.deliver(pd, NewFragment(r))
}

// deliver hands the records of f to pd, following a redirect to the
// partition that classified f.
func (p *partitionReader) deliver(pd *PartitionData, f *Fragment) {
	res := pd.ProcessIncompleteFragment(f)
	p.out.handle(res)
	for _, r := range res.Redirected {
		p.deliver(p.store.Get(r.Key), r.Fragment)
	}
}

// flush classifies buckets of fragments. Fragments and groups that are
// complete are written directly; the rest are registered with the
// partition.
func (p *partitionReader) flush(buckets [][]*Fragment) {
	if len(buckets) == 0 {
		return
	}
	var pending PrimaryFragments
	for _, bucket := range buckets {
		for _, f := range bucket {
			f.UpdateCoordinates()
		}
		res := p.classifier.FindDuplicateFragments(bucket)
		grouping := p.groups.Resolve(res, p.out.stats)
		for _, f := range grouping.Resolved {
			if !f.AllReadsPresent() {
				pending.Resolved = append(pending.Resolved, f)
				continue
			}
			f.SetStatus(f.Status)
			p.out.writeAll(f.TakeReads())
		}
		for _, f := range grouping.Members {
			f.SetStatus(Duplicate)
			p.out.writeAll(f.TakeReads())
		}
		for _, g := range grouping.Groups {
			p.out.consensus(g.DrainReady())
			if !g.Complete() {
				pending.Groups = append(pending.Groups, g)
			}
		}
		pending.Candidates = append(pending.Candidates, res.Candidates...)
	}
	if len(pending.Resolved) > 0 || len(pending.Groups) > 0 || len(pending.Candidates) > 0 {
		p.out.handle(p.partition.ProcessPrimaryFragments(pending))
	}
}
