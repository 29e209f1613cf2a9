package markduplicates

import (
	"fmt"

	farm "github.com/dgryski/go-farm"
	"github.com/grailbio/dupcons/umi"
)

// consensusPrefix marks the name of a consensus record.
const consensusPrefix = "CNS_"

// ConsensusReadName names the consensus records of a group from the smallest
// member read-id. With UMIs, the UMI field of that id is replaced by the
// consensus prefix and the group's UMI.
func ConsensusReadName(ids []string, groupUMI string, useUmis bool, delim byte) string {
	first := ids[0]
	for _, id := range ids[1:] {
		if id < first {
			first = id
		}
	}
	if useUmis {
		return umi.Prefix(first, delim) + consensusPrefix + groupUMI
	}
	return consensusPrefix + first
}

// fragmentUMI extracts the UMI of a read name and snaps it to the known UMIs.
func fragmentUMI(opts *Opts, readName string) string {
	u := umi.Extract(readName, opts.umiDelim())
	if opts.KnownUmis != nil {
		u, _, _ = opts.KnownUmis.CorrectUMI(u)
	}
	return u
}

// groupID derives a stable group id from the coordinate key and the UMI.
func groupID(key, groupUMI string) string {
	return fmt.Sprintf("%016x", farm.Fingerprint64([]byte(key+coordinateDelim+groupUMI)))
}

// GroupingResult holds the outcome of resolving duplicate sets.
type GroupingResult struct {
	// Resolved fragments have their final status and are not part of a group.
	Resolved []*Fragment
	// Groups collect the records of duplicate fragments for consensus. Their
	// members are marked Duplicate.
	Groups []*UmiGroup
	// Members holds the member fragments of Groups.
	Members []*Fragment
}

// DuplicateGroups turns classified duplicate sets into primary/duplicate
// statuses and consensus groups.
type DuplicateGroups struct {
	opts *Opts
}

// NewDuplicateGroups creates a DuplicateGroups configured from opts.
func NewDuplicateGroups(opts *Opts) *DuplicateGroups {
	return &DuplicateGroups{opts: opts}
}

// Resolve assigns final statuses to the None fragments and duplicate sets of
// res and records them in stats. Candidates of res are ignored.
func (d *DuplicateGroups) Resolve(res ClassificationResult, stats *Statistics) GroupingResult {
	var out GroupingResult
	for _, f := range res.Resolved {
		f.Status = None
		stats.AddFrequency(1, false)
		out.Resolved = append(out.Resolved, f)
	}
	for _, set := range res.DuplicateSets {
		d.resolveSet(set, stats, &out)
	}
	return out
}

func (d *DuplicateGroups) resolveSet(set []*Fragment, stats *Statistics, out *GroupingResult) {
	switch {
	case d.opts.UseUmis:
		d.resolveUMIs(set, stats, out)
	case d.opts.FormConsensus:
		d.addGroup(set, "", stats, out)
		stats.DuplicateGroups++
	default:
		selectPrimary(set)
		stats.AddFrequency(len(set), false)
		stats.DuplicateGroups++
		out.Resolved = append(out.Resolved, set...)
	}
}

// selectPrimary marks the fragment with the highest average base quality as
// Primary and the others as Duplicate. The first fragment wins ties.
func selectPrimary(set []*Fragment) {
	best, bestQual := 0, set[0].AverageBaseQuality()
	for i, f := range set[1:] {
		if q := f.AverageBaseQuality(); q > bestQual {
			best, bestQual = i+1, q
		}
	}
	for i, f := range set {
		if i == best {
			f.Status = Primary
		} else {
			f.Status = Duplicate
		}
	}
}

func (d *DuplicateGroups) resolveUMIs(set []*Fragment, stats *Statistics, out *GroupingResult) {
	umis := make([]string, len(set))
	for i, f := range set {
		umis[i] = f.UMI
		if d.opts.UmiDuplex {
			umis[i] = umi.DuplexKey(f.UMI, d.opts.duplexDelim(), f.Coordinates.Reversed)
		}
	}
	for _, cluster := range umi.ClusterUMIs(umis, d.opts.UmiPermittedEdits) {
		if len(cluster.Members) == 1 {
			f := set[cluster.Members[0]]
			f.Status = None
			stats.AddFrequency(1, false)
			out.Resolved = append(out.Resolved, f)
			continue
		}
		members := make([]*Fragment, len(cluster.Members))
		for i, m := range cluster.Members {
			members[i] = set[m]
		}
		d.addGroup(members, cluster.UMI, stats, out)
		stats.UmiGroups++
	}
}

func (d *DuplicateGroups) addGroup(members []*Fragment, groupUMI string, stats *Statistics, out *GroupingResult) {
	ids := make([]string, len(members))
	for i, f := range members {
		f.Status = Duplicate
		ids[i] = f.ID
	}
	var delim byte
	if d.opts.UseUmis {
		delim = d.opts.umiDelim()
	}
	name := ConsensusReadName(ids, groupUMI, d.opts.UseUmis, delim)
	g := NewUmiGroup(groupID(members[0].Coordinates.Key, groupUMI), groupUMI, name, members)
	stats.AddFrequency(len(members), g.DualStrand)
	out.Groups = append(out.Groups, g)
	out.Members = append(out.Members, members...)
}
