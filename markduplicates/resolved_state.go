package markduplicates

import (
	gbam "github.com/grailbio/dupcons/encoding/bam"
	"github.com/grailbio/hts/sam"
)

// ResolvedFragmentState remembers the status of a classified fragment until
// its remaining records have arrived.
type ResolvedFragmentState struct {
	Status FragmentStatus

	primaryExpected int
	primaryReceived int
	suppExpected    int
	suppReceived    int
}

func newResolvedFragmentState(f *Fragment) *ResolvedFragmentState {
	return &ResolvedFragmentState{
		Status:          f.Status,
		primaryExpected: f.primaryExpected,
		primaryReceived: f.primaryReceived,
		suppExpected:    f.suppExpected,
		suppReceived:    f.suppReceived,
	}
}

func (s *ResolvedFragmentState) update(r *sam.Record) {
	if gbam.IsSupplementary(r) {
		s.suppReceived++
		return
	}
	s.primaryReceived++
	s.suppExpected += gbam.SupplementaryCount(r)
}

// AllReceived returns true once every record of the fragment has been seen.
func (s *ResolvedFragmentState) AllReceived() bool {
	return s.primaryReceived >= s.primaryExpected && s.suppReceived >= s.suppExpected
}
