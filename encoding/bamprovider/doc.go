// Package bamprovider provides utilities for scanning a BAM file in parallel.
//
// The Provider is an interface for reading a coordinate-sorted BAM file one
// genomic shard at a time.
package bamprovider
