package bamprovider

import (
	gbam "github.com/grailbio/dupcons/encoding/bam"
	"github.com/grailbio/hts/sam"
)

// fakeProvider is only for unittests. It yields the given records.
type fakeProvider struct {
	header *sam.Header
	recs   []*sam.Record
}

type fakeIterator struct {
	recs []*sam.Record
	rec  *sam.Record

	startAddr, limitAddr gbam.Coord
}

// NewFakeProvider creates a provider that returns "header" in response to a
// GetHeader() call, and recs by GenerateShards+NewIterator calls. recs must be
// sorted by coordinate.
func NewFakeProvider(header *sam.Header, recs []*sam.Record) Provider {
	return &fakeProvider{header, recs}
}

// GetHeader implements the Provider interface. It returns the header passed to
// the constructor.
func (b *fakeProvider) GetHeader() (*sam.Header, error) {
	return b.header, nil
}

// Close implements the Provider interface.
func (b *fakeProvider) Close() error {
	return nil
}

// GenerateShards implements the Provider interface.
func (b *fakeProvider) GenerateShards(opts GenerateShardsOpts) ([]gbam.Shard, error) {
	if opts.ShardSize <= 0 {
		opts.ShardSize = DefaultShardSize
	}
	return gbam.GetPositionBasedShards(b.header, opts.ShardSize, opts.Padding, opts.IncludeUnmapped)
}

// NewIterator implements the Provider interface.
func (b *fakeProvider) NewIterator(shard gbam.Shard) Iterator {
	return &fakeIterator{
		recs:      b.recs,
		startAddr: shard.StartCoord(),
		limitAddr: shard.EndCoord(),
	}
}

// Err implements the Iterator interface.
func (i *fakeIterator) Err() error {
	return nil
}

// Close implements the Iterator interface.
func (i *fakeIterator) Close() error {
	return nil
}

func (i *fakeIterator) Scan() bool {
	for {
		if len(i.recs) == 0 {
			return false
		}
		i.rec = i.recs[0]
		i.recs = i.recs[1:]
		addr := gbam.CoordFromSAMRecord(i.rec)
		if !addr.LT(i.startAddr) && addr.LT(i.limitAddr) {
			return true
		}
	}
}

func (i *fakeIterator) Record() *sam.Record {
	// Return a copy so that the code under test cannot alter the
	// original test input data.
	copy := sam.GetFromFreePool()
	*copy = *i.rec
	copy.AuxFields = append(sam.AuxFields(nil), i.rec.AuxFields...)
	return copy
}
