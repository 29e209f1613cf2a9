package markduplicates

import (
	"fmt"

	"github.com/grailbio/base/simd"
	gbam "github.com/grailbio/dupcons/encoding/bam"
	"github.com/grailbio/hts/sam"
)

// FragmentStatus is the duplicate status of a fragment.
type FragmentStatus int

const (
	// Unset means the fragment has not been classified.
	Unset FragmentStatus = iota
	// None means the fragment has no duplicates.
	None
	// Primary means the fragment is the representative of its duplicate set.
	Primary
	// Duplicate means the fragment is a duplicate of another fragment.
	Duplicate
	// Candidate means the fragment may be a duplicate, pending the arrival
	// of mate reads.
	Candidate
)

var fragmentStatusNames = []string{"UNSET", "NONE", "PRIMARY", "DUPLICATE", "CANDIDATE"}

func (s FragmentStatus) String() string {
	if s < 0 || int(s) >= len(fragmentStatusNames) {
		return fmt.Sprintf("FragmentStatus(%d)", int(s))
	}
	return fragmentStatusNames[s]
}

// Resolved returns true for the final statuses.
func (s FragmentStatus) Resolved() bool {
	return s == None || s == Primary || s == Duplicate
}

// Fragment is one sequenced template and the records of it seen so far.
type Fragment struct {
	ID string
	// Reads holds the records that have not been written yet.
	Reads       []*sam.Record
	Coordinates FragmentCoordinates
	Status      FragmentStatus
	UMI         string
	// CandidateKey is the key of the CandidateDuplicates holding this fragment.
	CandidateKey string

	primaryExpected int
	primaryReceived int
	suppExpected    int
	suppReceived    int
}

// NewFragment creates a fragment from its first record.
func NewFragment(r *sam.Record) *Fragment {
	f := &Fragment{ID: r.Name}
	f.AddRead(r)
	return f
}

// AddRead adds a record of the same template to f.
func (f *Fragment) AddRead(r *sam.Record) {
	f.Reads = append(f.Reads, r)
	f.count(r)
}

func (f *Fragment) count(r *sam.Record) {
	if gbam.IsSupplementary(r) {
		f.suppReceived++
		return
	}
	f.primaryReceived++
	if gbam.IsPaired(r) {
		f.primaryExpected = 2
	} else {
		f.primaryExpected = 1
	}
	f.suppExpected += gbam.SupplementaryCount(r)
}

// Merge moves the records of other into f.
func (f *Fragment) Merge(other *Fragment) {
	f.Reads = append(f.Reads, other.Reads...)
	f.primaryReceived += other.primaryReceived
	f.suppReceived += other.suppReceived
	f.suppExpected += other.suppExpected
	if other.primaryExpected > f.primaryExpected {
		f.primaryExpected = other.primaryExpected
	}
	other.Reads = nil
}

// TakeReads returns the unwritten records of f and forgets them. Counts of
// received records are kept.
func (f *Fragment) TakeReads() []*sam.Record {
	reads := f.Reads
	f.Reads = nil
	return reads
}

// PrimaryReads returns the unwritten primary records.
func (f *Fragment) PrimaryReads() []*sam.Record {
	var reads []*sam.Record
	for _, r := range f.Reads {
		if !gbam.IsSupplementary(r) {
			reads = append(reads, r)
		}
	}
	return reads
}

// PrimaryReadsPresent returns true once every primary record has arrived.
func (f *Fragment) PrimaryReadsPresent() bool {
	return f.primaryExpected > 0 && f.primaryReceived >= f.primaryExpected
}

// AllReadsPresent returns true once every primary and supplementary record
// has arrived. The supplementary count is only known once the primaries are
// present.
func (f *Fragment) AllReadsPresent() bool {
	return f.PrimaryReadsPresent() && f.suppReceived >= f.suppExpected
}

// Unpaired returns true if f has no mapped mate.
func (f *Fragment) Unpaired() bool {
	return !f.Coordinates.HasUpper && !f.Coordinates.Incomplete
}

// UpdateCoordinates recomputes the coordinates from the primary records held.
func (f *Fragment) UpdateCoordinates() {
	f.Coordinates = NewFragmentCoordinates(f.PrimaryReads())
}

// SetStatus sets the status and the duplicate flag of every held record.
func (f *Fragment) SetStatus(s FragmentStatus) {
	f.Status = s
	for _, r := range f.Reads {
		setDuplicateFlag(r, s == Duplicate)
	}
}

func setDuplicateFlag(r *sam.Record, dup bool) {
	if dup {
		r.Flags |= sam.Duplicate
	} else {
		r.Flags &^= sam.Duplicate
	}
}

// AverageBaseQuality returns the mean base quality over the primary records.
func (f *Fragment) AverageBaseQuality() float64 {
	var sum, n int
	for _, r := range f.Reads {
		if gbam.IsSupplementary(r) || len(r.Qual) == 0 || r.Qual[0] == 0xff {
			continue
		}
		sum += simd.Accumulate8Greater(r.Qual, 0)
		n += len(r.Qual)
	}
	if n == 0 {
		return 0
	}
	return float64(sum) / float64(n)
}

func (f *Fragment) String() string {
	return fmt.Sprintf("%s %v %v reads=%d", f.ID, f.Coordinates, f.Status, len(f.Reads))
}
