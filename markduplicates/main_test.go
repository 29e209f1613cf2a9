package markduplicates

import (
	"github.com/grailbio/hts/sam"
)

var (
	chr1, _   = sam.NewReference("chr1", "", "", 10000, nil, nil)
	chr2, _   = sam.NewReference("chr2", "", "", 10000, nil, nil)
	header, _ = sam.NewHeader(nil, []*sam.Reference{chr1, chr2})

	// Properly oriented pairs: a forward read whose mate is reverse, and
	// the reverse mate.
	r1F = sam.Paired | sam.Read1 | sam.MateReverse
	r1R = sam.Paired | sam.Read1 | sam.Reverse
	r2F = sam.Paired | sam.Read2 | sam.MateReverse
	r2R = sam.Paired | sam.Read2 | sam.Reverse
	// Mapped reads with unmapped mates, and their unmapped mates.
	s1F = sam.Paired | sam.Read1 | sam.MateUnmapped
	s2F = sam.Paired | sam.Read2 | sam.MateUnmapped
	u1  = sam.Paired | sam.Read1 | sam.Unmapped
	u2  = sam.Paired | sam.Read2 | sam.Unmapped
	// Supplementary alignments.
	sup1F = r1F | sam.Supplementary
	sup2R = r2R | sam.Supplementary
	sec   = r1F | sam.Secondary
	up1   = sam.Paired | sam.Read1 | sam.Unmapped | sam.MateUnmapped
	up2   = sam.Paired | sam.Read2 | sam.Unmapped | sam.MateUnmapped

	cigar10M = []sam.CigarOp{
		sam.NewCigarOp(sam.CigarMatch, 10),
	}
	cigarSoft2 = []sam.CigarOp{
		sam.NewCigarOp(sam.CigarSoftClipped, 2),
		sam.NewCigarOp(sam.CigarMatch, 8),
	}
	cigarSoftEnd2 = []sam.CigarOp{
		sam.NewCigarOp(sam.CigarMatch, 8),
		sam.NewCigarOp(sam.CigarSoftClipped, 2),
	}

	mc10M = NewAux("MC", "10M")
	seq10 = "ACGTACGTAC"
)

// pair returns the two records of an FR pair: read 1 forward at pos1 and read
// 2 reverse at pos2, both 10M with MC tags.
func pair(name string, ref *sam.Reference, pos1, pos2 int) (*sam.Record, *sam.Record) {
	return NewRecordAux(name, ref, pos1, r1F, pos2, ref, cigar10M, mc10M),
		NewRecordAux(name, ref, pos2, r2R, pos1, ref, cigar10M, mc10M)
}

// pairQual is pair with sequence, every base at quality q.
func pairQual(name string, ref *sam.Reference, pos1, pos2 int, q byte) (*sam.Record, *sam.Record) {
	a := NewRecordSeq(name, ref, pos1, r1F, pos2, ref, cigar10M, seq10, qualities(q, 10))
	b := NewRecordSeq(name, ref, pos2, r2R, pos1, ref, cigar10M, seq10, qualities(q, 10))
	a.AuxFields = append(a.AuxFields, mc10M)
	b.AuxFields = append(b.AuxFields, mc10M)
	return a, b
}

// fragmentOf builds a classified-ready fragment from records of one template.
func fragmentOf(reads ...*sam.Record) *Fragment {
	f := NewFragment(reads[0])
	for _, r := range reads[1:] {
		f.AddRead(r)
	}
	f.UpdateCoordinates()
	return f
}

func testOpts() *Opts {
	opts := DefaultOpts
	return &opts
}
