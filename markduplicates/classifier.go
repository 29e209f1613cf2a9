package markduplicates

import (
	"fmt"

	gbam "github.com/grailbio/dupcons/encoding/bam"
)

// CandidatePolicy decides whether two candidate fragments can be treated as
// duplicates without waiting for their mates.
type CandidatePolicy func(f1, f2 *Fragment) bool

// InsertSizePolicy promotes candidates whose template lengths differ by at
// most tolerance.
func InsertSizePolicy(tolerance int) CandidatePolicy {
	return func(f1, f2 *Fragment) bool {
		l1, ok1 := templateLength(f1)
		l2, ok2 := templateLength(f2)
		if !ok1 || !ok2 {
			return false
		}
		d := l1 - l2
		if d < 0 {
			d = -d
		}
		return d <= tolerance
	}
}

func templateLength(f *Fragment) (int, bool) {
	for _, r := range f.Reads {
		if gbam.IsSupplementary(r) || r.TempLen == 0 {
			continue
		}
		if r.TempLen < 0 {
			return -r.TempLen, true
		}
		return r.TempLen, true
	}
	return 0, false
}

// ClassificationResult is the outcome of classifying one bucket.
type ClassificationResult struct {
	// Resolved fragments have status None.
	Resolved []*Fragment
	// DuplicateSets hold fragments with status Duplicate. Each set still
	// needs a primary or a UMI split.
	DuplicateSets [][]*Fragment
	Candidates    []*CandidateDuplicates
}

func (r *ClassificationResult) merge(o ClassificationResult) {
	r.Resolved = append(r.Resolved, o.Resolved...)
	r.DuplicateSets = append(r.DuplicateSets, o.DuplicateSets...)
	r.Candidates = append(r.Candidates, o.Candidates...)
}

func (r *ClassificationResult) count() int {
	n := len(r.Resolved)
	for _, set := range r.DuplicateSets {
		n += len(set)
	}
	for _, c := range r.Candidates {
		n += len(c.Fragments)
	}
	return n
}

// DuplicateClassifier finds duplicates among fragments that share an initial
// position.
type DuplicateClassifier struct {
	// StrandSpecific compares oriented keys, so that a pair is never a
	// duplicate of the same pair sequenced from the other strand.
	StrandSpecific bool
	// Promote, if set, may turn a candidate pair into a duplicate pair.
	Promote   CandidatePolicy
	Events    EventSink
	Partition string
}

// NewDuplicateClassifier creates a classifier configured from opts.
func NewDuplicateClassifier(opts *Opts, events EventSink, partition string) *DuplicateClassifier {
	c := &DuplicateClassifier{
		StrandSpecific: opts.StrandSpecific,
		Events:         events,
		Partition:      partition,
	}
	if opts.HighDepthCandidates {
		c.Promote = InsertSizePolicy(10)
	}
	return c
}

func (c *DuplicateClassifier) key(coord FragmentCoordinates) string {
	if c.StrandSpecific {
		return coord.OrientedKey
	}
	return coord.Key
}

// CalcFragmentStatus compares two fragments. It returns Duplicate if their
// coordinates are equal, Candidate if they may be equal but one of them is
// incomplete, and None otherwise.
func (c *DuplicateClassifier) CalcFragmentStatus(f1, f2 *Fragment) FragmentStatus {
	if f1.Unpaired() != f2.Unpaired() {
		return None
	}
	c1, c2 := f1.Coordinates, f2.Coordinates
	if c1.Incomplete || c2.Incomplete {
		if !c1.Lower.matches(c2.Lower) {
			return None
		}
		if c.StrandSpecific && c1.Reversed != c2.Reversed {
			return None
		}
		if c.Promote != nil && c.Promote(f1, f2) {
			return Duplicate
		}
		return Candidate
	}
	if c.key(c1) == c.key(c2) {
		return Duplicate
	}
	return None
}

// FindDuplicateFragments classifies the fragments of one bucket. Every
// fragment ends up in exactly one of the result's lists. Candidate links are
// transitive: if A and B, and B and C are candidates, A, B and C form one
// CandidateDuplicates.
func (c *DuplicateClassifier) FindDuplicateFragments(fragments []*Fragment) ClassificationResult {
	var res ClassificationResult
	n := len(fragments)
	if n == 0 {
		return res
	}
	if n == 1 {
		fragments[0].Status = None
		res.Resolved = append(res.Resolved, fragments[0])
		return res
	}

	uf := newUnionFind(n)
	removed := make([]bool, n)
	var candidateLinked []int
	for i := 0; i < n; i++ {
		if removed[i] {
			continue
		}
		for j := i + 1; j < n; j++ {
			if removed[j] {
				continue
			}
			switch c.CalcFragmentStatus(fragments[i], fragments[j]) {
			case Duplicate:
				uf.union(i, j)
				removed[j] = true
			case Candidate:
				uf.union(i, j)
				candidateLinked = append(candidateLinked, i)
			}
		}
	}

	hasCandidate := map[int]bool{}
	for _, i := range candidateLinked {
		hasCandidate[uf.find(i)] = true
	}
	for _, comp := range uf.components() {
		members := make([]*Fragment, len(comp))
		for k, i := range comp {
			members[k] = fragments[i]
		}
		switch {
		case len(members) == 1:
			members[0].Status = None
			res.Resolved = append(res.Resolved, members[0])
		case hasCandidate[uf.find(comp[0])]:
			res.Candidates = append(res.Candidates, newCandidateDuplicates(members))
		default:
			for _, f := range members {
				f.Status = Duplicate
			}
			res.DuplicateSets = append(res.DuplicateSets, members)
		}
	}

	if got := res.count(); got != n {
		c.Events.Emit(Event{
			Kind:      ClassificationMismatch,
			Partition: c.Partition,
			ReadID:    fragments[0].ID,
			Message:   fmt.Sprintf("classified %d of %d fragments", got, n),
		})
	}
	return res
}

// classifyByPosition buckets fragments by initial position, keeping the
// order of first appearance, and classifies each bucket.
func (c *DuplicateClassifier) classifyByPosition(fragments []*Fragment) ClassificationResult {
	buckets := map[int][]*Fragment{}
	var order []int
	for _, f := range fragments {
		pos := f.Coordinates.InitialPosition()
		if _, ok := buckets[pos]; !ok {
			order = append(order, pos)
		}
		buckets[pos] = append(buckets[pos], f)
	}
	var res ClassificationResult
	for _, pos := range order {
		res.merge(c.FindDuplicateFragments(buckets[pos]))
	}
	return res
}
