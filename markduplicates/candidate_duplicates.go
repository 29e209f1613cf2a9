package markduplicates

// CandidateDuplicates is a tentative duplicate set whose members could not be
// compared because some mate positions were unknown.
type CandidateDuplicates struct {
	// Key is the lower coordinate of the anchor fragment plus its read-id.
	Key       string
	Fragments []*Fragment
	finalised bool
}

func newCandidateDuplicates(fragments []*Fragment) *CandidateDuplicates {
	anchor := fragments[0]
	c := &CandidateDuplicates{
		Key:       anchor.Coordinates.Lower.Coordinate() + coordinateDelim + anchor.ID,
		Fragments: fragments,
	}
	for _, f := range fragments {
		f.Status = Candidate
		f.CandidateKey = c.Key
	}
	return c
}

// AllPrimaryReadsPresent returns true once every member has all of its
// primary records.
func (c *CandidateDuplicates) AllPrimaryReadsPresent() bool {
	for _, f := range c.Fragments {
		if !f.PrimaryReadsPresent() {
			return false
		}
	}
	return true
}

// Finalised returns true once Finalise has been called.
func (c *CandidateDuplicates) Finalised() bool { return c.finalised }

// Finalise reclassifies the members using their complete coordinates. It
// must only be called once AllPrimaryReadsPresent.
func (c *CandidateDuplicates) Finalise(classifier *DuplicateClassifier) ClassificationResult {
	for _, f := range c.Fragments {
		f.UpdateCoordinates()
		f.Status = Unset
		f.CandidateKey = ""
	}
	res := classifier.classifyByPosition(c.Fragments)

	// Complete coordinates never compare as candidates, but a member whose
	// mate position stays unknown would. Such members are left unduplicated.
	for _, cd := range res.Candidates {
		for _, f := range cd.Fragments {
			f.Status = None
			f.CandidateKey = ""
			res.Resolved = append(res.Resolved, f)
		}
	}
	res.Candidates = nil
	c.finalised = true
	return res
}
