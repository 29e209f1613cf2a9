package markduplicates

import (
	"context"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/klauspost/compress/gzip"
)

// UnmapStats counts records without a full alignment.
type UnmapStats struct {
	// FullyUnmapped counts unmapped records whose mate is unmapped too.
	FullyUnmapped int64
	// MateUnmapped counts mapped records whose mate is unmapped.
	MateUnmapped int64
	// UnmappedMates counts unmapped records whose mate is mapped.
	UnmappedMates int64
}

func (u *UnmapStats) merge(o UnmapStats) {
	u.FullyUnmapped += o.FullyUnmapped
	u.MateUnmapped += o.MateUnmapped
	u.UnmappedMates += o.UnmappedMates
}

// DuplicateFrequency counts duplicate sets of one size.
type DuplicateFrequency struct {
	Frequency           int64
	DualStrandFrequency int64
}

// Statistics summarizes a run. Each worker and partition keeps its own copy,
// which are merged at the end.
type Statistics struct {
	// TotalReads counts input records.
	TotalReads int64
	// DuplicateReads counts output records flagged as duplicates.
	DuplicateReads int64
	// SecondaryReads counts secondary records, which are passed through.
	SecondaryReads int64
	// DuplicateGroups counts duplicate sets resolved without UMIs.
	DuplicateGroups int64
	// UmiGroups counts duplicate sets formed from one UMI cluster.
	UmiGroups int64
	// ConsensusReads counts synthesized records.
	ConsensusReads int64
	// IncompleteReads counts records written at the end of the run because
	// their fragment never completed.
	IncompleteReads int64
	Unmap           UnmapStats

	// DuplicateFrequencies maps a duplicate set size to the number of sets
	// of that size. Unduplicated fragments are sets of size one.
	DuplicateFrequencies map[int]*DuplicateFrequency
}

// NewStatistics returns empty statistics.
func NewStatistics() *Statistics {
	return &Statistics{DuplicateFrequencies: map[int]*DuplicateFrequency{}}
}

// AddFrequency records one duplicate set of the given size.
func (s *Statistics) AddFrequency(size int, dualStrand bool) {
	f, ok := s.DuplicateFrequencies[size]
	if !ok {
		f = &DuplicateFrequency{}
		s.DuplicateFrequencies[size] = f
	}
	f.Frequency++
	if dualStrand {
		f.DualStrandFrequency++
	}
}

// Merge adds the counts of other to s.
func (s *Statistics) Merge(other *Statistics) {
	s.TotalReads += other.TotalReads
	s.DuplicateReads += other.DuplicateReads
	s.SecondaryReads += other.SecondaryReads
	s.DuplicateGroups += other.DuplicateGroups
	s.UmiGroups += other.UmiGroups
	s.ConsensusReads += other.ConsensusReads
	s.IncompleteReads += other.IncompleteReads
	s.Unmap.merge(other.Unmap)
	for size, f := range other.DuplicateFrequencies {
		existing, ok := s.DuplicateFrequencies[size]
		if !ok {
			existing = &DuplicateFrequency{}
			s.DuplicateFrequencies[size] = existing
		}
		existing.Frequency += f.Frequency
		existing.DualStrandFrequency += f.DualStrandFrequency
	}
}

// Log writes a summary of s to the log.
func (s *Statistics) Log() {
	log.Printf("records: %d total, %d duplicate, %d secondary, %d incomplete",
		s.TotalReads, s.DuplicateReads, s.SecondaryReads, s.IncompleteReads)
	log.Printf("unmapped: %d fully, %d with unmapped mate, %d unmapped mates",
		s.Unmap.FullyUnmapped, s.Unmap.MateUnmapped, s.Unmap.UnmappedMates)
	log.Printf("duplicate groups: %d, umi groups: %d, consensus records: %d",
		s.DuplicateGroups, s.UmiGroups, s.ConsensusReads)
	if size, err := s.EstimatedLibrarySize(); err == nil {
		log.Printf("estimated library size: %d", size)
	} else {
		log.Debug.Printf("library size not estimated: %v", err)
	}
}

// WriteDuplicateFrequency writes the duplicate set size histogram as a tab
// separated file. Paths ending in .gz are gzip compressed. The
// DualStrandFrequency column is only written with dualStrand.
func WriteDuplicateFrequency(ctx context.Context, path string, s *Statistics, dualStrand bool) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "create duplicate frequency file", path)
	}
	defer file.CloseAndReport(ctx, out, &err)

	var w io.Writer = out.Writer(ctx)
	if strings.HasSuffix(path, ".gz") {
		gz := gzip.NewWriter(w)
		defer func() {
			if e := gz.Close(); e != nil && err == nil {
				err = e
			}
		}()
		w = gz
	}
	if err = writeDuplicateFrequency(w, s, dualStrand); err != nil {
		return errors.E(err, "write duplicate frequency file", path)
	}
	return nil
}

func writeDuplicateFrequency(w io.Writer, s *Statistics, dualStrand bool) error {
	tw := tsv.NewWriter(w)
	header := "DuplicateReadCount\tFrequency"
	if dualStrand {
		header += "\tDualStrandFrequency"
	}
	tw.WriteString(header)
	if err := tw.EndLine(); err != nil {
		return err
	}
	sizes := make([]int, 0, len(s.DuplicateFrequencies))
	for size := range s.DuplicateFrequencies {
		sizes = append(sizes, size)
	}
	sort.Ints(sizes)
	for _, size := range sizes {
		f := s.DuplicateFrequencies[size]
		tw.WriteString(strconv.Itoa(size))
		tw.WriteString(strconv.FormatInt(f.Frequency, 10))
		if dualStrand {
			tw.WriteString(strconv.FormatInt(f.DualStrandFrequency, 10))
		}
		if err := tw.EndLine(); err != nil {
			return err
		}
	}
	return tw.Flush()
}
