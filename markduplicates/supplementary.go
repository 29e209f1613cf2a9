package markduplicates

import (
	gbam "github.com/grailbio/dupcons/encoding/bam"
	"github.com/grailbio/hts/sam"
)

type alignmentLocation struct {
	ref string
	pos int
}

func locationOf(r *sam.Record) alignmentLocation {
	if r.Ref == nil {
		return alignmentLocation{pos: -1}
	}
	return alignmentLocation{ref: r.Ref.Name(), pos: gbam.UnclippedFivePrimePosition(r)}
}

// SelectSupplementaryReads picks the supplementary records of one bucket that
// agree on their location. If all records share a location they are all
// used. Two records at two locations cannot outvote each other, so the first
// one is used. Otherwise the records at the most frequent location win, with
// ties going to the location seen first.
func SelectSupplementaryReads(reads []*sam.Record) []*sam.Record {
	if len(reads) <= 1 {
		return reads
	}
	counts := map[alignmentLocation]int{}
	var order []alignmentLocation
	for _, r := range reads {
		loc := locationOf(r)
		if counts[loc] == 0 {
			order = append(order, loc)
		}
		counts[loc]++
	}
	switch {
	case len(order) == 1:
		return reads
	case len(reads) == 2:
		return reads[:1]
	}
	best := order[0]
	for _, loc := range order[1:] {
		if counts[loc] > counts[best] {
			best = loc
		}
	}
	selected := make([]*sam.Record, 0, counts[best])
	for _, r := range reads {
		if locationOf(r) == best {
			selected = append(selected, r)
		}
	}
	return selected
}
