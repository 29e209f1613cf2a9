package markduplicates

/**
* MIT License
*
* Copyright (c) 2017 Broad Institute
*
* Permission is hereby granted, free of charge, to any person obtaining a copy
* of this software and associated documentation files (the "Software"), to deal
* in the Software without restriction, including without limitation the rights
* to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
* copies of the Software, and to permit persons to whom the Software is
* furnished to do so, subject to the following conditions:
*
* The above copyright notice and this permission notice shall be included in all
* copies or substantial portions of the Software.
*
* THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
* IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
* FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
* AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
* LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
* OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
* SOFTWARE.
 */

import (
	"fmt"
	"math"
)

// estimateLibrarySize estimates the number of distinct molecules in a
// library from the number of fragments observed and the number of distinct
// fragments among them. It solves the Lander-Waterman equation
//   C/X = 1 - exp( -N/X )
// where
//   X = number of distinct molecules in library
//   N = number of fragments
//   C = number of distinct fragments observed
// by bisection.
func estimateLibrarySize(fragments, uniqueFragments uint64) (uint64, error) {
	f := func(x, c, n float64) float64 {
		return c/x + math.Expm1(-n/x)
	}

	if fragments == 0 || uniqueFragments >= fragments {
		return 0, fmt.Errorf("no duplicates among %d fragments", fragments)
	}
	n := float64(fragments)
	c := float64(uniqueFragments)
	m := float64(1.0)
	M := float64(100.0)
	if c == 0 || f(m*c, c, n) < 0 {
		return 0, fmt.Errorf("invalid fragment counts: %v, %v", n, c)
	}

	// If c and n are large and almost equal, M can go to +Inf before f()
	// becomes negative.
	for f(M*c, c, n) >= 0 {
		M *= 10.0
		if math.IsInf(M, 1) {
			return 0, fmt.Errorf("could not find M to make f() negative with arguments (%v, %v)",
				fragments, uniqueFragments)
		}
	}

	for i := 0; i < 40; i++ {
		r := (m + M) / 2.0
		u := f(r*c, c, n)
		if u == 0 {
			break
		} else if u > 0 {
			m = r
		} else {
			M = r
		}
	}
	return uint64(c * (m + M) / 2.0), nil
}

// EstimatedLibrarySize estimates the number of distinct molecules from the
// duplicate set histogram. Each duplicate set is one distinct fragment.
func (s *Statistics) EstimatedLibrarySize() (uint64, error) {
	var fragments, unique uint64
	for size, f := range s.DuplicateFrequencies {
		fragments += uint64(size) * uint64(f.Frequency)
		unique += uint64(f.Frequency)
	}
	return estimateLibrarySize(fragments, unique)
}
