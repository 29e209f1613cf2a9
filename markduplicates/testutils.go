package markduplicates

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/dupcons/encoding/bamprovider"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRecord is an input record and what the output copy of it must look
// like.
type TestRecord struct {
	R              *sam.Record
	DupFlag        bool
	ExpectedAuxs   []sam.Aux
	UnexpectedTags []sam.Tag
}

// TestCase is one end-to-end run.
type TestCase struct {
	TRecords []TestRecord
	// Consensus lists the names of the consensus records expected in the
	// output, one entry per record.
	Consensus []string
	Opts      Opts
}

// NewRecord creates a record without sequence.
func NewRecord(name string, ref *sam.Reference, pos int, flags sam.Flags, matePos int, mateRef *sam.Reference, cigar sam.Cigar) *sam.Record {
	r := sam.GetFromFreePool()
	r.Name = name
	r.Ref = ref
	r.Pos = pos
	r.MatePos = matePos
	r.MateRef = mateRef
	r.Flags = flags
	r.Cigar = cigar
	r.MapQ = 60
	return r
}

// NewRecordSeq creates a record with sequence and qualities. qual holds raw
// quality values, one per base.
func NewRecordSeq(name string, ref *sam.Reference, pos int, flags sam.Flags, matePos int, mateRef *sam.Reference,
	cigar sam.Cigar, seq string, qual []byte) *sam.Record {
	if len(seq) != len(qual) {
		panic("seq and qual must be equal length")
	}
	r := NewRecord(name, ref, pos, flags, matePos, mateRef, cigar)
	r.Seq = sam.NewSeq([]byte(seq))
	r.Qual = qual
	return r
}

// NewRecordAux creates a record without sequence, with the given aux fields.
func NewRecordAux(name string, ref *sam.Reference, pos int, flags sam.Flags, matePos int, mateRef *sam.Reference,
	cigar sam.Cigar, auxs ...sam.Aux) *sam.Record {
	r := NewRecord(name, ref, pos, flags, matePos, mateRef, cigar)
	r.AuxFields = append(r.AuxFields, auxs...)
	return r
}

// NewAux creates an aux field and panics on error.
func NewAux(name string, val interface{}) sam.Aux {
	return mustNewAux(sam.NewTag(name), val)
}

// qualities returns n copies of q.
func qualities(q byte, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = q
	}
	return b
}

// recordingSink keeps every event it receives.
type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Emit(e Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func (s *recordingSink) count(kind EventKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// recordKey identifies an input record in the output, where its duplicate
// flag may have changed.
func recordKey(r *sam.Record) string {
	kind := r.Flags & (sam.Read1 | sam.Read2 | sam.Secondary | sam.Supplementary)
	ref := "*"
	if r.Ref != nil {
		ref = r.Ref.Name()
	}
	return fmt.Sprintf("%s/%d/%s/%d", r.Name, kind, ref, r.Pos)
}

// RunTestCases marks each test case and verifies the output records. Output
// records are matched to input records by name, read number and position,
// since output is ordered by partition.
func RunTestCases(t *testing.T, header *sam.Header, cases []TestCase) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	for testIdx, test := range cases {
		t.Logf("---- starting TestCase[%d] ----", testIdx)
		testrecords := make([]*sam.Record, 0, len(test.TRecords))
		expected := map[string]TestRecord{}
		for _, tr := range test.TRecords {
			testrecords = append(testrecords, tr.R)
			expected[recordKey(tr.R)] = tr
		}
		provider := bamprovider.NewFakeProvider(header, testrecords)

		opts := test.Opts
		opts.OutputPath = filepath.Join(tempDir, fmt.Sprintf("%d.bam", testIdx))
		events := &recordingSink{}
		markDuplicates := &MarkDuplicates{
			Provider: provider,
			Opts:     &opts,
			Events:   events,
		}
		_, err := markDuplicates.Mark(vcontext.Background())
		require.NoError(t, err)
		for i, r := range testrecords {
			t.Logf("input[%v]: %v", i, r)
		}

		actualRecords := ReadRecords(t, opts.OutputPath)
		assert.Equal(t, len(test.TRecords)+len(test.Consensus), len(actualRecords))
		var consensusNames []string
		for i, r := range actualRecords {
			t.Logf("output[%v]: %v", i, r)
			if strings.Contains(r.Name, consensusPrefix) {
				consensusNames = append(consensusNames, r.Name)
				assert.False(t, r.Flags&sam.Duplicate != 0, "consensus record %s is flagged duplicate", r.Name)
				continue
			}
			tr, ok := expected[recordKey(r)]
			if !assert.True(t, ok, "unexpected output record %v", r) {
				continue
			}
			assert.Equal(t, tr.DupFlag, r.Flags&sam.Duplicate != 0, "duplicate flag is wrong for %v", r)

			// Verify that exactly one of each expected tag exists, and has the right value.
			for _, expectedAux := range tr.ExpectedAuxs {
				found := 0
				for _, aux := range r.AuxFields {
					if aux.Tag() == expectedAux.Tag() {
						assert.Equal(t, expectedAux.String(), aux.String())
						found++
					}
				}
				assert.Equal(t, 1, found, "Incorrect number of %s tags, expected 1, got %d",
					expectedAux.Tag(), found)
			}
			// Verify that these tags do not exist.
			for _, negTag := range tr.UnexpectedTags {
				actual, ok := r.Tag([]byte{negTag[0], negTag[1]})
				assert.Equal(t, false, ok, "Expected tag to be absent, but it exists: %v", actual)
			}
		}
		assert.ElementsMatch(t, test.Consensus, consensusNames)
		assert.Equal(t, 0, events.count(ConsensusFailure))
		assert.Equal(t, 0, events.count(CacheConflict))
		assert.Equal(t, 0, events.count(ClassificationMismatch))
	}
}

// ReadRecords reads the records from the BAM file at path, in order.
func ReadRecords(t *testing.T, path string) []*sam.Record {
	records := make([]*sam.Record, 0)
	// BAM files produced by the tests don't have indexes, so read them using
	// the raw reader.
	in, err := os.Open(path)
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, in.Close())
	}()
	reader, err := bam.NewReader(in, 1)
	require.NoError(t, err)
	for {
		r, err := reader.Read()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		records = append(records, r)
	}
	return records
}
