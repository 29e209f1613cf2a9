package umi

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"strings"

	"github.com/antzucaro/matchr"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
)

var (
	alphabetMap = map[byte]bool{
		'A': true,
		'C': true,
		'G': true,
		'T': true,
	}

	alphabetWithN    = []byte{'A', 'C', 'G', 'T', 'N'}
	alphabetWithNMap = map[byte]bool{
		'A': true,
		'C': true,
		'G': true,
		'T': true,
		'N': true,
	}
)

type snapCorrectorEntry struct {
	knownUMI string
	edits    int
}

// SnapCorrector implements "snap" correction of UMIs.  A umi U is
// snappable if there is a known non-random umi U1 that is closer to U
// than all other known umis, in terms of Levenshtein edit distance.
type SnapCorrector struct {
	knownUMIs []string
	k         int

	// correctionTable contains a mapping from all snappable k-mers (k
	// is the length of the umi) to the known UMI they should snap to.
	correctionTable map[string]snapCorrectorEntry
}

// LoadSnapCorrector reads a newline separated list of known UMIs from path and
// builds a SnapCorrector from it.
func LoadSnapCorrector(ctx context.Context, path string) (c *SnapCorrector, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open umi file", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	data, err := ioutil.ReadAll(in.Reader(ctx))
	if err != nil {
		return nil, errors.E(err, "read umi file", path)
	}
	return NewSnapCorrector(data)
}

// NewSnapCorrector creates a new snap corrector.  The knownUMIs are a
// \n separated list of UMIs (identical to the file content of a list
// of UMIs, where each line contains a UMI).  Each UMI must consist
// of characters ACGT, and all UMIs must have the same length.
func NewSnapCorrector(knownUMIs []byte) (*SnapCorrector, error) {
	log.Debug.Printf("Building snappable UMI correction table")
	scanner := bufio.NewScanner(bytes.NewBuffer(knownUMIs))
	known := []string{}
	k := -1
	for scanner.Scan() {
		umi := strings.ToUpper(strings.TrimSpace(scanner.Text()))
		if umi == "" {
			continue
		}
		if k < 0 {
			k = len(umi)
		}
		if len(umi) != k {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("umi %s has length %d, other umis have length %d", umi, len(umi), k))
		}
		if err := validateUMI(umi, false); err != nil {
			return nil, err
		}
		known = append(known, umi)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if k < 0 {
		return nil, errors.E(errors.Invalid, "no umis in input")
	}

	correctionTable := map[string]snapCorrectorEntry{}
	for _, umi := range allKmers(k, alphabetWithN) {
		// closest holds the known umis at the minimum distance seen so far.
		best := -1
		var closest []string
		for _, knownUMI := range known {
			cost := matchr.Levenshtein(umi, knownUMI)
			switch {
			case best < 0 || cost < best:
				best = cost
				closest = append(closest[:0], knownUMI)
			case cost == best:
				closest = append(closest, knownUMI)
			}
		}
		if len(closest) == 1 {
			correctionTable[umi] = snapCorrectorEntry{closest[0], best}
		}
	}
	log.Debug.Printf("Done building snappable UMI correction table, %d entries", len(correctionTable))

	return &SnapCorrector{
		knownUMIs:       known,
		k:               k,
		correctionTable: correctionTable,
	}, nil
}

// CorrectUMI returns a corrected umi, number of edits to the
// corrected umi, and true if there is exactly one known UMI that is
// closest to the original umi with respect to Levenshtein edit
// distance.  Otherwise, return the original umi, -1, and false.
func (c *SnapCorrector) CorrectUMI(umi string) (correctedUMI string, edits int, corrected bool) {
	umi = strings.ToUpper(umi)
	entry, ok := c.correctionTable[umi]
	if ok {
		return entry.knownUMI, entry.edits, entry.knownUMI != umi
	}
	return umi, -1, false
}

func validateUMI(umi string, allowN bool) error {
	for _, c := range umi {
		if (allowN && !alphabetWithNMap[byte(c)]) || (!allowN && !alphabetMap[byte(c)]) {
			return errors.E(errors.Invalid, fmt.Sprintf("invalid base %c in umi %v", c, umi))
		}
	}
	return nil
}

// returns a slice of all possible kmers with the given alphabet.
func allKmers(k int, alphabet []byte) []string {
	var fn func(partial string, length int) []string
	fn = func(partial string, length int) []string {
		if len(partial) == length {
			return []string{partial}
		}

		kmers := []string{}
		for _, c := range alphabet {
			newPartial := append([]byte(partial), c)
			kmers = append(kmers, fn(string(newPartial), length)...)
		}
		return kmers
	}

	return fn("", k)
}
