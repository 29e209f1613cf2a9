package markduplicates

import (
	"strconv"

	gbam "github.com/grailbio/dupcons/encoding/bam"
	"github.com/grailbio/hts/sam"
)

const (
	coordinateDelim    = "_"
	reverseSuffix      = "_R"
	reversedPairMarker = "_N"
)

// FormCoordinate returns the key segment of one read end. position is the
// 1-based unclipped 5' position.
func FormCoordinate(chromosome string, position int, isForward bool) string {
	c := chromosome + coordinateDelim + strconv.Itoa(position)
	if !isForward {
		c += reverseSuffix
	}
	return c
}

// FormKey composes the key of a two ended fragment. The reversed pair marker
// is appended when the lower end of the fragment is not its first read.
func FormKey(lowerCoord, upperCoord string, fragmentForward bool) string {
	key := lowerCoord + coordinateDelim + upperCoord
	if !fragmentForward {
		key += reversedPairMarker
	}
	return key
}

// ReadEnd describes the aligned 5' end of one primary read.
type ReadEnd struct {
	RefID   int
	RefName string
	// Pos is the 0-based unclipped 5' position.
	Pos      int
	Reverse  bool
	Unmapped bool
}

func readEndOf(r *sam.Record) ReadEnd {
	if gbam.IsUnmapped(r) {
		return ReadEnd{RefID: gbam.UnmappedRefID, Unmapped: true}
	}
	return ReadEnd{
		RefID:   r.Ref.ID(),
		RefName: r.Ref.Name(),
		Pos:     gbam.UnclippedFivePrimePosition(r),
		Reverse: gbam.IsReverse(r),
	}
}

// mateEndOf computes the 5' end of r's mate from the mate cigar.
func mateEndOf(r *sam.Record) (ReadEnd, bool) {
	pos, ok := gbam.MateUnclippedFivePrimePosition(r)
	if !ok {
		return ReadEnd{}, false
	}
	return ReadEnd{
		RefID:   r.MateRef.ID(),
		RefName: r.MateRef.Name(),
		Pos:     pos,
		Reverse: gbam.IsMateReverse(r),
	}, true
}

// Coordinate returns the key segment of e.
func (e ReadEnd) Coordinate() string {
	if e.Unmapped {
		return ""
	}
	return FormCoordinate(e.RefName, e.Pos+1, !e.Reverse)
}

// matches reports whether e and o describe the same alignment end.
func (e ReadEnd) matches(o ReadEnd) bool {
	if e.Unmapped || o.Unmapped {
		return e.Unmapped == o.Unmapped
	}
	return e.RefName == o.RefName && e.Pos == o.Pos && e.Reverse == o.Reverse
}

// less orders ends by reference, position and forward before reverse. ok is
// false when the ends are equal.
func (e ReadEnd) less(o ReadEnd) (less, ok bool) {
	if e.RefID != o.RefID {
		return e.RefID < o.RefID, true
	}
	if e.Pos != o.Pos {
		return e.Pos < o.Pos, true
	}
	if e.Reverse != o.Reverse {
		return !e.Reverse, true
	}
	return false, false
}

// FragmentCoordinates is the positional identity of a fragment.
type FragmentCoordinates struct {
	// Key is the orientation independent key. Fragments with equal keys are
	// duplicates.
	Key string
	// OrientedKey additionally distinguishes which read of the pair is lower.
	OrientedKey string
	// Lower is the end with the smaller 5' position.
	Lower ReadEnd
	// Upper is the other end. It is only set if HasUpper.
	Upper    ReadEnd
	HasUpper bool
	// Reversed is true if the lower end is the second read of a pair.
	Reversed bool
	// Incomplete is true if the mate is mapped but its 5' position could not
	// be derived.
	Incomplete bool
}

// NewFragmentCoordinates derives coordinates from the primary reads of a
// fragment. A single mapped read uses its mate cigar to locate the mate.
func NewFragmentCoordinates(primaries []*sam.Record) FragmentCoordinates {
	var mapped []*sam.Record
	for _, r := range primaries {
		if !gbam.IsUnmapped(r) {
			mapped = append(mapped, r)
		}
	}
	switch {
	case len(mapped) == 0:
		return FragmentCoordinates{Incomplete: true}
	case len(mapped) >= 2:
		return pairCoordinates(readEndOf(mapped[0]), readEndOf(mapped[1]), gbam.IsRead1(mapped[0]))
	}

	r := mapped[0]
	end := readEndOf(r)
	if gbam.HasNoMappedMate(r) {
		c := FragmentCoordinates{
			Lower:    end,
			Reversed: gbam.IsPaired(r) && gbam.IsRead2(r),
		}
		c.Key = end.Coordinate()
		c.OrientedKey = c.Key
		if c.Reversed {
			c.OrientedKey += reversedPairMarker
		}
		return c
	}
	if mate, ok := mateEndOf(r); ok {
		return pairCoordinates(end, mate, gbam.IsRead1(r))
	}
	c := FragmentCoordinates{
		Lower:      end,
		Reversed:   gbam.IsRead2(r),
		Incomplete: true,
	}
	c.Key = end.Coordinate()
	c.OrientedKey = c.Key
	return c
}

// pairCoordinates orders two ends; aIsRead1 breaks ties between identical
// ends.
func pairCoordinates(a, b ReadEnd, aIsRead1 bool) FragmentCoordinates {
	aLower, ok := a.less(b)
	if !ok {
		aLower = aIsRead1
	}
	c := FragmentCoordinates{HasUpper: true}
	if aLower {
		c.Lower, c.Upper, c.Reversed = a, b, !aIsRead1
	} else {
		c.Lower, c.Upper, c.Reversed = b, a, aIsRead1
	}
	c.Key = FormKey(c.Lower.Coordinate(), c.Upper.Coordinate(), true)
	c.OrientedKey = FormKey(c.Lower.Coordinate(), c.Upper.Coordinate(), !c.Reversed)
	return c
}

// InitialPosition returns the 1-based 5' position of the lower end, negated
// for reverse strand ends.
func (c FragmentCoordinates) InitialPosition() int {
	if c.Lower.Reverse {
		return -(c.Lower.Pos + 1)
	}
	return c.Lower.Pos + 1
}

func (c FragmentCoordinates) String() string {
	if c.Incomplete {
		return c.OrientedKey + "(incomplete)"
	}
	return c.OrientedKey
}
