// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bam

import (
	"fmt"
	"math"

	"github.com/grailbio/hts/sam"
	"github.com/pkg/errors"
)

// UnmappedRefID is the reference id given to unmapped records in a Coord. It
// sorts after every mapped reference.
const UnmappedRefID = math.MaxInt32

// Coord is a position in the genome. Unmapped records have RefID
// UnmappedRefID and Pos 0.
type Coord struct {
	RefID int
	Pos   int
}

// NewCoord generates a Coord from the given parameters.
func NewCoord(ref *sam.Reference, pos int) Coord {
	if ref == nil || ref.ID() < 0 {
		// Pos for unmapped reads is meaningless.  The convention in SAM/BAM is
		// to store -1, but we don't use negative positions elsewhere.
		return Coord{RefID: UnmappedRefID}
	}
	return Coord{RefID: ref.ID(), Pos: pos}
}

// CoordFromSAMRecord computes the Coord for the given record.
func CoordFromSAMRecord(rec *sam.Record) Coord {
	return NewCoord(rec.Ref, rec.Pos)
}

// Compare returns a negative value if c < o, zero if they are equal, and a
// positive value otherwise.
func (c Coord) Compare(o Coord) int {
	if c.RefID != o.RefID {
		if c.RefID < o.RefID {
			return -1
		}
		return 1
	}
	return c.Pos - o.Pos
}

// LT returns true if c sorts before o.
func (c Coord) LT(o Coord) bool {
	return c.Compare(o) < 0
}

// Shard represents a genomic interval. The <StartRef,Start> and <EndRef,End>
// coordinates form a half-open, 0-based interval. An iterator for such a
// range will return reads whose start positions fall within that range.
//
// An unmapped sequence has coordinate (nil,0), and it is stored after any
// mapped sequence. Thus, a shard that contains unmapped sequences has
// EndRef=nil.
//
// Padding must be >=0. It expands the read range to [PaddedStart,
// PaddedEnd). The padding regions are not part of the shard.
//
// ShardIdx is the position of the shard in the ordering of the input file.
type Shard struct {
	StartRef *sam.Reference
	EndRef   *sam.Reference
	Start    int
	End      int

	Padding  int
	ShardIdx int
}

// UniversalShard creates a Shard that covers the entire genome, and unmapped
// reads.
func UniversalShard(header *sam.Header) Shard {
	var startRef *sam.Reference
	if len(header.Refs()) > 0 {
		startRef = header.Refs()[0]
	}
	return Shard{
		StartRef: startRef,
		EndRef:   nil,
		Start:    0,
		End:      math.MaxInt32,
	}
}

// IsUnmapped returns true if the shard covers only unmapped reads.
func (s *Shard) IsUnmapped() bool {
	return s.StartRef == nil && s.EndRef == nil
}

// PadStart returns max(s.Start-padding, 0).
func (s *Shard) PadStart(padding int) int {
	return max(0, s.Start-padding)
}

// PaddedStart computes the effective start of the range to read, including
// padding.
func (s *Shard) PaddedStart() int {
	return s.PadStart(s.Padding)
}

// PadEnd end returns min(s.End+padding, length of s.EndRef)
func (s *Shard) PadEnd(padding int) int {
	if s.EndRef == nil {
		return min(math.MaxInt32, s.End+padding)
	}
	return min(s.EndRef.Len(), s.End+padding)
}

// PaddedEnd computes the effective limit of the range to read, including
// padding.
func (s *Shard) PaddedEnd() int {
	return s.PadEnd(s.Padding)
}

// StartCoord returns the first coordinate of the padded shard.
func (s *Shard) StartCoord() Coord {
	return NewCoord(s.StartRef, s.PaddedStart())
}

// EndCoord returns the limit coordinate of the padded shard.
func (s *Shard) EndCoord() Coord {
	if s.EndRef == nil {
		return Coord{RefID: UnmappedRefID, Pos: math.MaxInt32}
	}
	return NewCoord(s.EndRef, s.PaddedEnd())
}

// RecordInShard returns true if r is in s.
func (s *Shard) RecordInShard(r *sam.Record) bool {
	return s.CoordInShard(0, CoordFromSAMRecord(r))
}

// CoordInShard returns whether coord is within the shard plus the
// supplied padding (this uses the padding parameter in place of
// s.Padding).
func (s *Shard) CoordInShard(padding int, coord Coord) bool {
	startCoord := NewCoord(s.StartRef, s.PadStart(padding))
	if coord.LT(startCoord) {
		return false
	}
	endCoord := Coord{RefID: UnmappedRefID, Pos: math.MaxInt32}
	if s.EndRef != nil {
		endCoord = NewCoord(s.EndRef, s.PadEnd(padding))
	}
	return coord.LT(endCoord)
}

// String returns a debug string for s.
func (s *Shard) String() string {
	return fmt.Sprintf("%d:(%s,%d(%d))-(%s,%d(%d))",
		s.ShardIdx, refName(s.StartRef), s.Start, s.PaddedStart(),
		refName(s.EndRef), s.End, s.PaddedEnd())
}

func refName(ref *sam.Reference) string {
	if ref == nil {
		return "*"
	}
	return ref.Name()
}

func min(x, y int) int {
	if y < x {
		return y
	}
	return x
}

func max(x, y int) int {
	if y > x {
		return y
	}
	return x
}

// NewShardChannel returns a closed channel containing the shards.
func NewShardChannel(shards []Shard) chan Shard {
	shardChan := make(chan Shard, len(shards))
	for _, shard := range shards {
		shardChan <- shard
	}
	close(shardChan)
	return shardChan
}

// GetPositionBasedShards returns a list of shards that cover the genome using
// the specified shard size and padding size.  Return a shard for the unmapped
// && mate-unmapped pairs if includeUnmapped is true.
func GetPositionBasedShards(header *sam.Header, shardSize int, padding int, includeUnmapped bool) ([]Shard, error) {
	if shardSize <= 0 {
		return nil, errors.Errorf("shard size must be positive, got %d", shardSize)
	}
	var shards []Shard
	shardIdx := 0
	for _, ref := range header.Refs() {
		var start int
		for start < ref.Len() {
			end := min(start+shardSize, ref.Len())
			shards = append(shards,
				Shard{
					StartRef: ref,
					EndRef:   ref,
					Start:    start,
					End:      end,
					Padding:  padding,
					ShardIdx: shardIdx,
				})
			start += shardSize
			shardIdx++
		}
	}
	if includeUnmapped {
		shards = append(shards,
			Shard{
				StartRef: nil,
				EndRef:   nil,
				Start:    0,
				End:      math.MaxInt32,
				ShardIdx: shardIdx,
			})
	}
	if err := ValidateShardList(header, shards); err != nil {
		return nil, err
	}
	return shards, nil
}

// ValidateShardList checks that shardList tiles each reference without gaps,
// and that only the last shard covers unmapped reads.
func ValidateShardList(header *sam.Header, shardList []Shard) error {
	var prevRef *sam.Reference
	for i, shard := range shardList {
		if shard.Start >= shard.End {
			return errors.Errorf("shard start must precede end for ref %s: %d, %d", refName(shard.StartRef), shard.Start, shard.End)
		}
		if shard.StartRef == nil {
			if i == len(shardList)-1 {
				continue
			}
			return errors.Errorf("only the last shard may have nil Ref, not shard %d", i)
		}
		if i == 0 || shard.StartRef != prevRef {
			prevRef = shard.StartRef
			if shard.Start != 0 {
				return errors.Errorf("first shard of ref %s should start at 0, not %d", shard.StartRef.Name(), shard.Start)
			}
		} else if shard.Start != shardList[i-1].End {
			return errors.Errorf("shard gap for ref %s between %d and %d", shard.StartRef.Name(), shardList[i-1].End, shard.Start)
		}
		if i < len(shardList)-1 && shardList[i+1].StartRef != shard.StartRef && shard.End != shard.StartRef.Len() {
			return errors.Errorf("last shard of %s should end at reference end: %d, %d", shard.StartRef.Name(), shard.End, shard.StartRef.Len())
		}
		if shard.Padding < 0 {
			return errors.Errorf("padding must be non-negative: %d", shard.Padding)
		}
	}
	return nil
}
