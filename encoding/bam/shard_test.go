package bam_test

import (
	"testing"

	"github.com/grailbio/dupcons/encoding/bam"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil/expect"
	"github.com/grailbio/testutil/h"
)

func TestShard(t *testing.T) {
	ref1, err := sam.NewReference("chr1", "", "", 100, nil, nil)
	expect.NoError(t, err)
	_, err = sam.NewHeader(nil, []*sam.Reference{ref1})
	expect.NoError(t, err)
	s := bam.Shard{StartRef: ref1, Start: 20, EndRef: ref1, End: 90, Padding: 3}
	expect.EQ(t, s.PaddedStart(), 17)
	expect.EQ(t, s.PaddedEnd(), 93)
	expect.EQ(t, s.PadStart(8), 12)
	expect.EQ(t, s.PadStart(21), 0)
	expect.EQ(t, s.PadEnd(11), 100)
	expect.False(t, s.IsUnmapped())

	expect.True(t, s.CoordInShard(0, bam.NewCoord(ref1, 20)))
	expect.False(t, s.CoordInShard(0, bam.NewCoord(ref1, 19)))
	expect.True(t, s.CoordInShard(3, bam.NewCoord(ref1, 17)))
	expect.False(t, s.CoordInShard(0, bam.NewCoord(ref1, 90)))
	expect.False(t, s.CoordInShard(0, bam.NewCoord(nil, 0)))

	u := bam.Shard{Start: 0, End: 1 << 30}
	expect.True(t, u.IsUnmapped())
	expect.True(t, u.CoordInShard(0, bam.NewCoord(nil, -1)))
}

func TestCoordOrder(t *testing.T) {
	ref1, _ := sam.NewReference("chr1", "", "", 100, nil, nil)
	ref2, _ := sam.NewReference("chr2", "", "", 100, nil, nil)
	_, err := sam.NewHeader(nil, []*sam.Reference{ref1, ref2})
	expect.NoError(t, err)

	expect.True(t, bam.NewCoord(ref1, 99).LT(bam.NewCoord(ref2, 0)))
	expect.True(t, bam.NewCoord(ref2, 99).LT(bam.NewCoord(nil, -1)))
	expect.EQ(t, bam.NewCoord(nil, 50), bam.NewCoord(nil, -1))
	expect.EQ(t, bam.NewCoord(ref1, 5).Compare(bam.NewCoord(ref1, 5)), 0)
}

func TestNewShardChannel(t *testing.T) {
	ref1, err := sam.NewReference("chr1", "", "", 100, nil, nil)
	expect.NoError(t, err)
	ref2, err := sam.NewReference("chr2", "", "", 101, nil, nil)
	expect.NoError(t, err)
	ref3, err := sam.NewReference("chr3", "", "", 1, nil, nil)
	expect.NoError(t, err)
	header, _ := sam.NewHeader(nil, []*sam.Reference{ref1, ref2, ref3})
	shardList, err := bam.GetPositionBasedShards(header, 50, 10, false)
	expect.NoError(t, err)
	shardChan := bam.NewShardChannel(shardList)

	shards := []bam.Shard{}
	for s := range shardChan {
		shards = append(shards, s)
	}

	expect.That(t, shards, h.UnorderedElementsAre(
		bam.Shard{ref1, ref1, 0, 50, 10, 0},
		bam.Shard{ref1, ref1, 50, 100, 10, 1},
		bam.Shard{ref2, ref2, 0, 50, 10, 2},
		bam.Shard{ref2, ref2, 50, 100, 10, 3},
		bam.Shard{ref2, ref2, 100, 101, 10, 4},
		bam.Shard{ref3, ref3, 0, 1, 10, 5}))
}

func TestPositionBasedShardsUnmapped(t *testing.T) {
	ref1, _ := sam.NewReference("chr1", "", "", 100, nil, nil)
	header, _ := sam.NewHeader(nil, []*sam.Reference{ref1})
	shards, err := bam.GetPositionBasedShards(header, 60, 0, true)
	expect.NoError(t, err)
	expect.EQ(t, len(shards), 3)
	expect.True(t, shards[2].IsUnmapped())
	expect.EQ(t, shards[2].ShardIdx, 2)

	_, err = bam.GetPositionBasedShards(header, 0, 0, true)
	expect.NotNil(t, err)
}

func TestValidateShardList(t *testing.T) {
	ref1, _ := sam.NewReference("chr1", "", "", 100, nil, nil)
	header, _ := sam.NewHeader(nil, []*sam.Reference{ref1})
	expect.NoError(t, bam.ValidateShardList(header, []bam.Shard{
		{StartRef: ref1, EndRef: ref1, Start: 0, End: 100},
	}))
	expect.NotNil(t, bam.ValidateShardList(header, []bam.Shard{
		{StartRef: ref1, EndRef: ref1, Start: 0, End: 40},
		{StartRef: ref1, EndRef: ref1, Start: 50, End: 100},
	}))
	expect.NotNil(t, bam.ValidateShardList(header, []bam.Shard{
		{Start: 0, End: 10},
		{StartRef: ref1, EndRef: ref1, Start: 0, End: 100},
	}))
}
