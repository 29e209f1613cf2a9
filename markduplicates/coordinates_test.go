package markduplicates

import (
	"testing"

	"github.com/grailbio/hts/sam"
	"github.com/stretchr/testify/assert"
)

func TestFormKey(t *testing.T) {
	assert.Equal(t, "chr1_1000", FormCoordinate("chr1", 1000, true))
	assert.Equal(t, "chr1_1200_R", FormCoordinate("chr1", 1200, false))
	assert.Equal(t, "chr1_1000_chr1_1200_R", FormKey("chr1_1000", "chr1_1200_R", true))
	assert.Equal(t, "chr1_1000_chr1_1200_R_N", FormKey("chr1_1000", "chr1_1200_R", false))
}

func TestFragmentCoordinates(t *testing.T) {
	const key = "chr1_1000_chr1_1200_R"
	a1, a2 := pair("A", chr1, 999, 1190)

	tests := []struct {
		name     string
		reads    []*sam.Record
		key      string
		oriented string
		initial  int
	}{
		{"both reads", []*sam.Record{a1, a2}, key, key, 1000},
		{"read 1 and mate cigar", []*sam.Record{a1}, key, key, 1000},
		{"read 2 and mate cigar", []*sam.Record{a2}, key, key, 1000},
		{
			"soft clipped",
			[]*sam.Record{NewRecordAux("B", chr1, 1001, r1F, 1190, chr1, cigarSoft2, mc10M)},
			key, key, 1000,
		},
		{
			"lower end is read 2",
			[]*sam.Record{
				NewRecordAux("C", chr1, 999, r2F, 1190, chr1, cigar10M, mc10M),
				NewRecordAux("C", chr1, 1190, r1R, 999, chr1, cigar10M, mc10M),
			},
			key, key + "_N", 1000,
		},
		{
			"unmapped mate",
			[]*sam.Record{NewRecord("D", chr1, 999, s1F, 999, chr1, cigar10M)},
			"chr1_1000", "chr1_1000", 1000,
		},
		{
			"unmapped mate of read 2",
			[]*sam.Record{NewRecord("E", chr1, 999, s2F, 999, chr1, cigar10M)},
			"chr1_1000", "chr1_1000_N", 1000,
		},
		{
			"reverse lower end",
			[]*sam.Record{NewRecord("F", chr1, 1190, s1F|sam.Reverse, 1190, chr1, cigar10M)},
			"chr1_1200_R", "chr1_1200_R", -1200,
		},
	}
	for _, test := range tests {
		c := NewFragmentCoordinates(test.reads)
		assert.False(t, c.Incomplete, test.name)
		assert.Equal(t, test.key, c.Key, test.name)
		assert.Equal(t, test.oriented, c.OrientedKey, test.name)
		assert.Equal(t, test.initial, c.InitialPosition(), test.name)
	}
}

func TestFragmentCoordinatesIncomplete(t *testing.T) {
	// Read 1 without a mate cigar cannot locate its mate.
	r := NewRecord("A", chr1, 999, r1F, 1190, chr1, cigar10M)
	c := NewFragmentCoordinates([]*sam.Record{r})
	assert.True(t, c.Incomplete)
	assert.False(t, c.HasUpper)
	assert.Equal(t, "chr1_1000", c.Key)
	assert.Equal(t, 999, c.Lower.Pos)

	// The mate completes it.
	_, a2 := pair("A", chr1, 999, 1190)
	c = NewFragmentCoordinates([]*sam.Record{r, a2})
	assert.False(t, c.Incomplete)
	assert.Equal(t, "chr1_1000_chr1_1200_R", c.Key)
}

func TestFragmentCoordinatesTie(t *testing.T) {
	// Both ends at the same 5' position and strand: read 1 is lower.
	a := NewRecordAux("A", chr1, 999, sam.Paired|sam.Read1, 999, chr1, cigar10M, mc10M)
	b := NewRecordAux("A", chr1, 999, sam.Paired|sam.Read2, 999, chr1, cigar10M, mc10M)
	c := NewFragmentCoordinates([]*sam.Record{b, a})
	assert.False(t, c.Reversed)
	assert.Equal(t, "chr1_1000_chr1_1000", c.OrientedKey)
	assert.Equal(t, c.Key, c.OrientedKey)
}
