package bam

import (
	"strconv"
	"strings"

	"github.com/grailbio/hts/sam"
	"github.com/pkg/errors"
)

var (
	// MateCigarTag is the standard tag holding the cigar string of the mate.
	MateCigarTag = sam.Tag{'M', 'C'}
	// SupplementaryTag is the standard tag listing the other alignments of a
	// chimeric read.
	SupplementaryTag = sam.Tag{'S', 'A'}
)

// IsPaired returns true if the template has multiple segments.
func IsPaired(r *sam.Record) bool {
	return r.Flags&sam.Paired != 0
}

// IsProperPair returns true if each segment is properly aligned.
func IsProperPair(r *sam.Record) bool {
	return r.Flags&sam.ProperPair != 0
}

// IsUnmapped returns true if the segment is unmapped.
func IsUnmapped(r *sam.Record) bool {
	return r.Flags&sam.Unmapped != 0
}

// IsMateUnmapped returns true if the next segment in the template is unmapped.
func IsMateUnmapped(r *sam.Record) bool {
	return r.Flags&sam.MateUnmapped != 0
}

// IsReverse returns true if the sequence is reverse complemented.
func IsReverse(r *sam.Record) bool {
	return r.Flags&sam.Reverse != 0
}

// IsMateReverse returns true if the sequence of the mate is reverse complemented.
func IsMateReverse(r *sam.Record) bool {
	return r.Flags&sam.MateReverse != 0
}

// IsRead1 returns true if this is the first segment in the template.
func IsRead1(r *sam.Record) bool {
	return r.Flags&sam.Read1 != 0
}

// IsRead2 returns true if this is the last segment in the template.
func IsRead2(r *sam.Record) bool {
	return r.Flags&sam.Read2 != 0
}

// IsSecondary returns true if this is a secondary alignment.
func IsSecondary(r *sam.Record) bool {
	return r.Flags&sam.Secondary != 0
}

// IsQCFail returns true if the read did not pass quality controls.
func IsQCFail(r *sam.Record) bool {
	return r.Flags&sam.QCFail != 0
}

// IsDuplicate returns true if the read is a PCR or optical duplicate.
func IsDuplicate(r *sam.Record) bool {
	return r.Flags&sam.Duplicate != 0
}

// IsSupplementary returns true if this is a supplementary alignment.
func IsSupplementary(r *sam.Record) bool {
	return r.Flags&sam.Supplementary != 0
}

// IsPrimary returns true if the read is neither secondary nor supplementary.
func IsPrimary(r *sam.Record) bool {
	return r.Flags&(sam.Secondary|sam.Supplementary) == 0
}

// HasNoMappedMate returns true if record is unpaired or has an unmapped mate.
func HasNoMappedMate(record *sam.Record) bool {
	return (record.Flags&sam.Paired) == 0 || (record.Flags&sam.MateUnmapped) != 0
}

// IsFullyUnmapped returns true if neither the read nor its mate are mapped.
func IsFullyUnmapped(r *sam.Record) bool {
	return IsUnmapped(r) && HasNoMappedMate(r)
}

func leadingClips(cigar sam.Cigar) int {
	clips := 0
	for _, op := range cigar {
		t := op.Type()
		if t != sam.CigarSoftClipped && t != sam.CigarHardClipped {
			break
		}
		clips += op.Len()
	}
	return clips
}

func trailingClips(cigar sam.Cigar) int {
	clips := 0
	for i := len(cigar) - 1; i >= 0; i-- {
		t := cigar[i].Type()
		if t != sam.CigarSoftClipped && t != sam.CigarHardClipped {
			break
		}
		clips += cigar[i].Len()
	}
	return clips
}

func refLen(cigar sam.Cigar) int {
	ref, _ := cigar.Lengths()
	return ref
}

// LeftClipDistance returns the number of soft and hard clipped bases at the
// left end of the alignment.
func LeftClipDistance(r *sam.Record) int {
	return leadingClips(r.Cigar)
}

// RightClipDistance returns the number of soft and hard clipped bases at the
// right end of the alignment.
func RightClipDistance(r *sam.Record) int {
	return trailingClips(r.Cigar)
}

// FivePrimeClipDistance returns the number of clipped bases at the 5' end of
// the read.
func FivePrimeClipDistance(r *sam.Record) int {
	if IsReverse(r) {
		return RightClipDistance(r)
	}
	return LeftClipDistance(r)
}

// UnclippedStart returns the 0-based reference position of the leftmost base
// of the read, including clipped bases.
func UnclippedStart(r *sam.Record) int {
	return r.Pos - LeftClipDistance(r)
}

// UnclippedEnd returns the 0-based reference position of the rightmost base of
// the read, including clipped bases.
func UnclippedEnd(r *sam.Record) int {
	return r.Pos + refLen(r.Cigar) - 1 + RightClipDistance(r)
}

// UnclippedFivePrimePosition returns the 0-based unclipped position of the
// read's 5' end.
func UnclippedFivePrimePosition(r *sam.Record) int {
	return unclippedFivePrime(r.Pos, r.Cigar, IsReverse(r))
}

func unclippedFivePrime(pos int, cigar sam.Cigar, reverse bool) int {
	if reverse {
		return pos + refLen(cigar) - 1 + trailingClips(cigar)
	}
	return pos - leadingClips(cigar)
}

// MateCigar returns the parsed MC tag of r. The second return value is false if
// the tag is absent or malformed.
func MateCigar(r *sam.Record) (sam.Cigar, bool) {
	aux := r.AuxFields.Get(MateCigarTag)
	if aux == nil {
		return nil, false
	}
	s, ok := aux.Value().(string)
	if !ok || s == "" || s == "*" {
		return nil, false
	}
	cigar, err := sam.ParseCigar([]byte(s))
	if err != nil {
		return nil, false
	}
	return cigar, true
}

// MateUnclippedFivePrimePosition computes the unclipped 5' position of the
// mate of r using r's MC tag. The second return value is false if the mate
// cigar is unknown or the mate is unmapped.
func MateUnclippedFivePrimePosition(r *sam.Record) (int, bool) {
	if HasNoMappedMate(r) {
		return 0, false
	}
	cigar, ok := MateCigar(r)
	if !ok {
		return 0, false
	}
	return unclippedFivePrime(r.MatePos, cigar, IsMateReverse(r)), true
}

// ClearAuxTags removes all aux tags in tags from r.
func ClearAuxTags(r *sam.Record, tags []sam.Tag) {
	kept := r.AuxFields[:0]
	for _, aux := range r.AuxFields {
		drop := false
		for _, tag := range tags {
			if aux.Tag() == tag {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, aux)
		}
	}
	r.AuxFields = kept
}

// SetAux replaces any existing aux field with the same tag as aux, or appends
// aux if there is none.
func SetAux(r *sam.Record, aux sam.Aux) {
	for i, a := range r.AuxFields {
		if a.Tag() == aux.Tag() {
			r.AuxFields[i] = aux
			return
		}
	}
	r.AuxFields = append(r.AuxFields, aux)
}

// SupplementaryAlignment is one entry of an SA tag.
type SupplementaryAlignment struct {
	RefName string
	// Pos is 0-based.
	Pos     int
	Reverse bool
	Cigar   sam.Cigar
	MapQ    int
	NM      int
}

// UnclippedFivePrimePosition returns the 0-based unclipped 5' position of the
// alignment.
func (s SupplementaryAlignment) UnclippedFivePrimePosition() int {
	return unclippedFivePrime(s.Pos, s.Cigar, s.Reverse)
}

// ParseSupplementaryAlignments parses the SA tag of r. It returns nil if the
// tag is absent.
//
// The tag format is "rname,pos,strand,CIGAR,mapQ,NM;" repeated once per
// alignment, with a 1-based pos.
func ParseSupplementaryAlignments(r *sam.Record) ([]SupplementaryAlignment, error) {
	aux := r.AuxFields.Get(SupplementaryTag)
	if aux == nil {
		return nil, nil
	}
	s, ok := aux.Value().(string)
	if !ok {
		return nil, errors.Errorf("%s: SA tag is not a string: %v", r.Name, aux)
	}
	var alns []SupplementaryAlignment
	for _, entry := range strings.Split(s, ";") {
		if entry == "" {
			continue
		}
		fields := strings.Split(entry, ",")
		if len(fields) != 6 {
			return nil, errors.Errorf("%s: malformed SA entry %q", r.Name, entry)
		}
		pos, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, errors.Wrapf(err, "%s: SA entry %q", r.Name, entry)
		}
		cigar, err := sam.ParseCigar([]byte(fields[3]))
		if err != nil {
			return nil, errors.Wrapf(err, "%s: SA entry %q", r.Name, entry)
		}
		mapQ, err := strconv.Atoi(fields[4])
		if err != nil {
			return nil, errors.Wrapf(err, "%s: SA entry %q", r.Name, entry)
		}
		nm, err := strconv.Atoi(fields[5])
		if err != nil {
			return nil, errors.Wrapf(err, "%s: SA entry %q", r.Name, entry)
		}
		alns = append(alns, SupplementaryAlignment{
			RefName: fields[0],
			Pos:     pos - 1,
			Reverse: fields[2] == "-",
			Cigar:   cigar,
			MapQ:    mapQ,
			NM:      nm,
		})
	}
	return alns, nil
}

// SupplementaryCount returns the number of SA entries on r. Malformed tags
// count as zero.
func SupplementaryCount(r *sam.Record) int {
	alns, err := ParseSupplementaryAlignments(r)
	if err != nil {
		return 0
	}
	return len(alns)
}
