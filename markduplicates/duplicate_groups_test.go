package markduplicates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePrimaryByQuality(t *testing.T) {
	low := fragmentOf(pairQual("A", chr1, 999, 1190, 25))
	high := fragmentOf(pairQual("B", chr1, 999, 1190, 30))
	assert.Equal(t, 30.0, high.AverageBaseQuality())

	stats := NewStatistics()
	res := NewDuplicateGroups(testOpts()).Resolve(ClassificationResult{
		DuplicateSets: [][]*Fragment{{low, high}},
	}, stats)
	assert.Len(t, res.Resolved, 2)
	assert.Empty(t, res.Groups)
	assert.Equal(t, Duplicate, low.Status)
	assert.Equal(t, Primary, high.Status)
	assert.Equal(t, int64(1), stats.DuplicateGroups)
	assert.Equal(t, int64(1), stats.DuplicateFrequencies[2].Frequency)
}

func TestResolvePrimaryTie(t *testing.T) {
	a := fragmentOf(pairQual("A", chr1, 999, 1190, 30))
	b := fragmentOf(pairQual("B", chr1, 999, 1190, 30))
	NewDuplicateGroups(testOpts()).Resolve(ClassificationResult{
		DuplicateSets: [][]*Fragment{{a, b}},
	}, NewStatistics())
	assert.Equal(t, Primary, a.Status)
	assert.Equal(t, Duplicate, b.Status)
}

func TestResolveUmis(t *testing.T) {
	opts := testOpts()
	opts.UseUmis = true
	set := make([]*Fragment, 0, 4)
	for _, name := range []string{"r1:AAAA", "r2:AAAT", "r3:AAAA", "r4:GGGG"} {
		f := fragmentOf(pair(name, chr1, 999, 1190))
		f.UMI = fragmentUMI(opts, name)
		set = append(set, f)
	}
	stats := NewStatistics()
	none := fragmentOf(pair("r5:CCCC", chr1, 2999, 3190))
	res := NewDuplicateGroups(opts).Resolve(ClassificationResult{
		Resolved:      []*Fragment{none},
		DuplicateSets: [][]*Fragment{set},
	}, stats)

	require.Len(t, res.Groups, 1)
	g := res.Groups[0]
	assert.Equal(t, "AAAA", g.UMI)
	assert.Equal(t, "r1:CNS_AAAA", g.ReadName)
	assert.Equal(t, []string{"r1:AAAA", "r2:AAAT", "r3:AAAA"}, g.FragmentIDs)
	assert.Len(t, res.Members, 3)
	for _, f := range res.Members {
		assert.Equal(t, Duplicate, f.Status)
	}
	require.Len(t, res.Resolved, 2)
	assert.Equal(t, "r5:CCCC", res.Resolved[0].ID)
	assert.Equal(t, "r4:GGGG", res.Resolved[1].ID)
	assert.Equal(t, None, res.Resolved[1].Status)

	assert.Equal(t, int64(1), stats.UmiGroups)
	assert.Equal(t, int64(2), stats.DuplicateFrequencies[1].Frequency)
	assert.Equal(t, int64(1), stats.DuplicateFrequencies[3].Frequency)
}

func TestResolveDuplexUmis(t *testing.T) {
	opts := testOpts()
	opts.UseUmis = true
	opts.UmiDuplex = true
	opts.UmiPermittedEdits = 0
	a := fragmentOf(pair("r1:AC_GT", chr1, 999, 1190))
	// The same molecule read from the other strand carries swapped halves.
	b := fragmentOf(
		NewRecordAux("r2:GT_AC", chr1, 999, r2F, 1190, chr1, cigar10M, mc10M),
		NewRecordAux("r2:GT_AC", chr1, 1190, r1R, 999, chr1, cigar10M, mc10M))
	a.UMI = fragmentUMI(opts, a.ID)
	b.UMI = fragmentUMI(opts, b.ID)

	stats := NewStatistics()
	res := NewDuplicateGroups(opts).Resolve(ClassificationResult{
		DuplicateSets: [][]*Fragment{{a, b}},
	}, stats)
	require.Len(t, res.Groups, 1)
	assert.True(t, res.Groups[0].DualStrand)
	assert.Equal(t, int64(1), stats.DuplicateFrequencies[2].DualStrandFrequency)
}

func TestResolveFormConsensus(t *testing.T) {
	opts := testOpts()
	opts.FormConsensus = true
	a := fragmentOf(pair("A", chr1, 999, 1190))
	b := fragmentOf(pair("B", chr1, 999, 1190))
	stats := NewStatistics()
	res := NewDuplicateGroups(opts).Resolve(ClassificationResult{
		DuplicateSets: [][]*Fragment{{b, a}},
	}, stats)
	require.Len(t, res.Groups, 1)
	assert.Equal(t, "CNS_A", res.Groups[0].ReadName)
	assert.Empty(t, res.Resolved)
	assert.Equal(t, int64(1), stats.DuplicateGroups)
	assert.Equal(t, groupID(a.Coordinates.Key, ""), res.Groups[0].ID)
}
