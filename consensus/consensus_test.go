package consensus

import (
	"testing"

	"github.com/grailbio/hts/sam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	chr1, _ = sam.NewReference("chr1", "", "", 1000, nil, nil)
	chr2, _ = sam.NewReference("chr2", "", "", 1000, nil, nil)
	_, _    = sam.NewHeader(nil, []*sam.Reference{chr1, chr2})

	cigar4M   = sam.Cigar{sam.NewCigarOp(sam.CigarMatch, 4)}
	cigar1S3M = sam.Cigar{sam.NewCigarOp(sam.CigarSoftClipped, 1), sam.NewCigarOp(sam.CigarMatch, 3)}
)

func newRead(name string, ref *sam.Reference, pos int, flags sam.Flags, cigar sam.Cigar, seq string, qual []byte) *sam.Record {
	return &sam.Record{
		Name:  name,
		Ref:   ref,
		Pos:   pos,
		MapQ:  30,
		Flags: flags,
		Cigar: cigar,
		Seq:   sam.NewSeq([]byte(seq)),
		Qual:  qual,
	}
}

func TestQualityVote(t *testing.T) {
	reads := []*sam.Record{
		newRead("a", chr1, 100, sam.Paired|sam.Read1|sam.Duplicate, cigar4M, "ACGT", []byte{30, 30, 30, 30}),
		newRead("b", chr1, 100, sam.Paired|sam.Read1|sam.Duplicate, cigar4M, "ACGA", []byte{30, 30, 30, 10}),
		newRead("c", chr1, 100, sam.Paired|sam.Read2|sam.Duplicate, cigar4M, "TCGA", []byte{10, 30, 30, 15}),
	}
	res, err := QualityVote{}.Build(reads, "CNS_a")
	require.NoError(t, err)
	assert.Equal(t, 3, res.ReadCount)
	assert.InDelta(t, 2.0/3.0, res.FirstInPairRatio, 1e-9)

	r := res.Record
	assert.Equal(t, "CNS_a", r.Name)
	assert.Equal(t, "ACGT", string(r.Seq.Expand()))
	assert.Equal(t, []byte{50, MaxQuality, MaxQuality, 5}, r.Qual)
	assert.Equal(t, sam.Flags(0), r.Flags&sam.Duplicate)
	assert.Equal(t, 100, r.Pos)

	// The source reads are left untouched.
	assert.Equal(t, "a", reads[0].Name)
	assert.NotEqual(t, sam.Flags(0), reads[0].Flags&sam.Duplicate)
}

func TestQualityVoteModalCigar(t *testing.T) {
	reads := []*sam.Record{
		newRead("a", chr1, 101, sam.Paired|sam.Read1, cigar1S3M, "TTTT", []byte{30, 30, 30, 30}),
		newRead("b", chr1, 100, sam.Paired|sam.Read1, cigar4M, "ACGT", []byte{30, 30, 30, 30}),
		newRead("c", chr1, 100, sam.Paired|sam.Read1, cigar4M, "ACGT", []byte{30, 30, 30, 30}),
	}
	res, err := QualityVote{}.Build(reads, "x")
	require.NoError(t, err)
	assert.Equal(t, "ACGT", string(res.Record.Seq.Expand()))
	assert.Equal(t, cigar4M.String(), res.Record.Cigar.String())
	assert.Equal(t, 3, res.ReadCount)
	assert.Equal(t, 1.0, res.FirstInPairRatio)
}

func TestQualityVoteErrors(t *testing.T) {
	_, err := QualityVote{}.Build(nil, "x")
	assert.Error(t, err)

	_, err = QualityVote{}.Build([]*sam.Record{
		newRead("a", chr1, 100, sam.Paired|sam.Read1, cigar4M, "ACGT", nil),
		newRead("b", chr2, 100, sam.Paired|sam.Read1, cigar4M, "ACGT", nil),
	}, "x")
	assert.Error(t, err)

	_, err = QualityVote{}.Build([]*sam.Record{
		newRead("a", chr1, 100, sam.Paired|sam.Read1, cigar4M, "ACGT", nil),
		newRead("b", chr1, 100, sam.Paired|sam.Read1, cigar4M, "ACG", nil),
	}, "x")
	assert.Error(t, err)
}
