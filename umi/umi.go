// Package umi extracts unique molecular identifiers from read names, snaps them
// to a list of known UMIs, and clusters UMIs that differ by sequencing errors.
package umi

import (
	"sort"
	"strings"

	"github.com/antzucaro/matchr"
)

// Extract returns the UMI stored in the last delim-separated field of a read
// name. It returns "" if the name has no delimiter.
func Extract(readName string, delim byte) string {
	i := strings.LastIndexByte(readName, delim)
	if i < 0 {
		return ""
	}
	return readName[i+1:]
}

// Prefix returns readName up to and including its last delim. It returns ""
// if the name has no delimiter.
func Prefix(readName string, delim byte) string {
	i := strings.LastIndexByte(readName, delim)
	if i < 0 {
		return ""
	}
	return readName[:i+1]
}

// DuplexKey returns the strand-independent form of a duplex UMI "X<delim>Y".
// Fragments sequenced from the opposite strand carry the two halves swapped,
// so reversed fragments swap them back. UMIs without the delimiter are
// returned unchanged.
func DuplexKey(umi string, delim byte, reversed bool) string {
	if !reversed {
		return umi
	}
	i := strings.IndexByte(umi, delim)
	if i < 0 {
		return umi
	}
	return umi[i+1:] + string(delim) + umi[:i]
}

// Cluster is a set of UMIs that are treated as one molecule.
type Cluster struct {
	// UMI is the representative, which is the most frequent member.
	UMI string
	// Members are indexes into the slice passed to ClusterUMIs, in increasing
	// order.
	Members []int
}

// ClusterUMIs groups umis whose edit distance to a cluster representative is
// at most maxEdits. Distinct UMIs are visited in decreasing order of frequency
// (ties broken lexicographically) and each one joins the first existing
// cluster whose representative is close enough, or else starts a new cluster.
// Clusters are returned in the order they were created.
func ClusterUMIs(umis []string, maxEdits int) []Cluster {
	counts := map[string][]int{}
	var distinct []string
	for i, u := range umis {
		if _, ok := counts[u]; !ok {
			distinct = append(distinct, u)
		}
		counts[u] = append(counts[u], i)
	}
	sort.SliceStable(distinct, func(i, j int) bool {
		ci, cj := len(counts[distinct[i]]), len(counts[distinct[j]])
		if ci != cj {
			return ci > cj
		}
		return distinct[i] < distinct[j]
	})

	var clusters []Cluster
	for _, u := range distinct {
		joined := false
		if maxEdits > 0 {
			for ci := range clusters {
				if matchr.Levenshtein(u, clusters[ci].UMI) <= maxEdits {
					clusters[ci].Members = append(clusters[ci].Members, counts[u]...)
					joined = true
					break
				}
			}
		}
		if !joined {
			clusters = append(clusters, Cluster{UMI: u, Members: append([]int(nil), counts[u]...)})
		}
	}
	for ci := range clusters {
		sort.Ints(clusters[ci].Members)
	}
	return clusters
}
