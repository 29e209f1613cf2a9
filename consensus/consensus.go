// Package consensus synthesizes one alignment record from a group of
// duplicate reads of the same read type.
package consensus

import (
	"github.com/grailbio/hts/sam"
	"github.com/pkg/errors"
)

// MaxQuality caps the base quality of a consensus base.
const MaxQuality = 60

// Result is the output of a consensus build.
type Result struct {
	// Record is the synthesized read.
	Record *sam.Record
	// ReadCount is the number of source reads.
	ReadCount int
	// FirstInPairRatio is the fraction of source reads that are the first
	// read of their pair.
	FirstInPairRatio float64
}

// Builder builds consensus reads.
type Builder interface {
	// Build returns one record representing reads, named readName. All
	// reads must be of the same read type within their duplicate group.
	Build(reads []*sam.Record, readName string) (Result, error)
}

// QualityVote builds a consensus by a per-base vote weighted by base quality
// over the reads sharing the most common cigar.
type QualityVote struct{}

var bases = [...]byte{'A', 'C', 'G', 'T', 'N'}

func baseIndex(b byte) int {
	switch b {
	case 'A', 'a':
		return 0
	case 'C', 'c':
		return 1
	case 'G', 'g':
		return 2
	case 'T', 't':
		return 3
	}
	return 4
}

// modalCigar returns the reads with the most frequent cigar. Ties go to the
// cigar seen first.
func modalCigar(reads []*sam.Record) []*sam.Record {
	counts := map[string]int{}
	var order []string
	for _, r := range reads {
		c := r.Cigar.String()
		if _, ok := counts[c]; !ok {
			order = append(order, c)
		}
		counts[c]++
	}
	best := order[0]
	for _, c := range order[1:] {
		if counts[c] > counts[best] {
			best = c
		}
	}
	var selected []*sam.Record
	for _, r := range reads {
		if r.Cigar.String() == best {
			selected = append(selected, r)
		}
	}
	return selected
}

// Build implements Builder.
func (QualityVote) Build(reads []*sam.Record, readName string) (Result, error) {
	if len(reads) == 0 {
		return Result{}, errors.Errorf("%s: no reads to build a consensus from", readName)
	}
	first := reads[0]
	for _, r := range reads[1:] {
		if r.Ref != first.Ref {
			return Result{}, errors.Errorf("%s: reads %s and %s are on different references", readName, first.Name, r.Name)
		}
		if (r.Flags&sam.Unmapped == 0) != (first.Flags&sam.Unmapped == 0) {
			return Result{}, errors.Errorf("%s: reads %s and %s disagree on mapping", readName, first.Name, r.Name)
		}
	}

	selected := modalCigar(reads)
	template := selected[0]
	seqs := make([][]byte, len(selected))
	for i, r := range selected {
		seqs[i] = r.Seq.Expand()
		if len(seqs[i]) != len(seqs[0]) {
			return Result{}, errors.Errorf("%s: reads %s and %s have the same cigar but different lengths",
				readName, template.Name, r.Name)
		}
	}

	n := len(seqs[0])
	seq := make([]byte, n)
	qual := make([]byte, n)
	for pos := 0; pos < n; pos++ {
		var weights [len(bases)]int
		for i, r := range selected {
			q := 1
			if pos < len(r.Qual) && r.Qual[pos] != 0xff {
				q = int(r.Qual[pos])
			}
			weights[baseIndex(seqs[i][pos])] += q
		}
		best := baseIndex(seqs[0][pos])
		total := 0
		for b, w := range weights {
			total += w
			if w > weights[best] {
				best = b
			}
		}
		seq[pos] = bases[best]
		q := weights[best] - (total - weights[best])
		if q < 0 {
			q = 0
		}
		if q > MaxQuality {
			q = MaxQuality
		}
		qual[pos] = byte(q)
	}

	rec := sam.GetFromFreePool()
	*rec = *template
	rec.Name = readName
	rec.Flags &^= sam.Duplicate
	rec.Seq = sam.NewSeq(seq)
	rec.Qual = qual
	rec.Cigar = append(sam.Cigar(nil), template.Cigar...)
	rec.AuxFields = append(sam.AuxFields(nil), template.AuxFields...)
	for _, r := range selected {
		if r.Pos < rec.Pos {
			rec.Pos = r.Pos
		}
		if r.MapQ > rec.MapQ {
			rec.MapQ = r.MapQ
		}
	}

	firstInPair := 0
	for _, r := range reads {
		if r.Flags&sam.Read1 != 0 {
			firstInPair++
		}
	}
	return Result{
		Record:           rec,
		ReadCount:        len(reads),
		FirstInPairRatio: float64(firstInPair) / float64(len(reads)),
	}, nil
}
