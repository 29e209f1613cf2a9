package bamprovider_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/dupcons/encoding/bamprovider"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	shutdown := grail.Init()
	status := m.Run()
	shutdown()
	os.Exit(status)
}

var (
	chr1, _   = sam.NewReference("chr1", "", "", 100, nil, nil)
	chr2, _   = sam.NewReference("chr2", "", "", 100, nil, nil)
	header, _ = sam.NewHeader(nil, []*sam.Reference{chr1, chr2})

	cigar = []sam.CigarOp{sam.NewCigarOp(sam.CigarMatch, 10)}
)

func newRecord(name string, ref *sam.Reference, pos int) *sam.Record {
	flags := sam.Paired | sam.Read1 | sam.MateUnmapped
	if ref == nil {
		flags |= sam.Unmapped
		pos = -1
	}
	return &sam.Record{Name: name, Ref: ref, Pos: pos, Flags: flags, Cigar: cigar, MatePos: -1}
}

func readNames(t *testing.T, p bamprovider.Provider, opts bamprovider.GenerateShardsOpts) [][]string {
	shards, err := p.GenerateShards(opts)
	require.NoError(t, err)
	var names [][]string
	for _, shard := range shards {
		iter := p.NewIterator(shard)
		var shardNames []string
		for iter.Scan() {
			shardNames = append(shardNames, iter.Record().Name)
		}
		require.NoError(t, iter.Close())
		names = append(names, shardNames)
	}
	return names
}

func TestFakeProvider(t *testing.T) {
	recs := []*sam.Record{
		newRecord("a", chr1, 5),
		newRecord("b", chr1, 52),
		newRecord("c", chr1, 60),
		newRecord("d", chr2, 0),
		newRecord("u", nil, 0),
	}
	p := bamprovider.NewFakeProvider(header, recs)
	h, err := p.GetHeader()
	require.NoError(t, err)
	require.Equal(t, header, h)

	names := readNames(t, p, bamprovider.GenerateShardsOpts{ShardSize: 50, IncludeUnmapped: true})
	require.Equal(t, [][]string{{"a"}, {"b", "c"}, {"d"}, nil, {"u"}}, names)

	names = readNames(t, p, bamprovider.GenerateShardsOpts{ShardSize: 50, Padding: 5})
	require.Equal(t, [][]string{{"a", "b"}, {"b", "c"}, {"d"}, nil}, names)
	require.NoError(t, p.Close())
}

func TestFakeProviderCopiesRecords(t *testing.T) {
	orig := newRecord("a", chr1, 5)
	p := bamprovider.NewFakeProvider(header, []*sam.Record{orig})
	shards, err := p.GenerateShards(bamprovider.GenerateShardsOpts{})
	require.NoError(t, err)
	iter := p.NewIterator(shards[0])
	require.True(t, iter.Scan())
	iter.Record().Name = "modified"
	require.Equal(t, "a", orig.Name)
	require.NoError(t, iter.Close())
}

func TestBAMProviderHeader(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	path := filepath.Join(tmpDir, "test.bam")

	f, err := os.Create(path)
	require.NoError(t, err)
	w, err := bam.NewWriter(f, header, 1)
	require.NoError(t, err)
	require.NoError(t, w.Write(newRecord("a", chr1, 5)))
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	p := bamprovider.NewProvider(path)
	h, err := p.GetHeader()
	require.NoError(t, err)
	require.Equal(t, 2, len(h.Refs()))
	require.Equal(t, "chr1", h.Refs()[0].Name())

	shards, err := p.GenerateShards(bamprovider.GenerateShardsOpts{ShardSize: 40})
	require.NoError(t, err)
	require.Equal(t, 6, len(shards))

	// There is no index next to the BAM file.
	iter := p.NewIterator(shards[0])
	require.False(t, iter.Scan())
	require.Error(t, iter.Close())
	require.Error(t, p.Close())
}
