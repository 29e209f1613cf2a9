package markduplicates

import (
	"fmt"
	"sort"
	"sync"
	"time"

	gbam "github.com/grailbio/dupcons/encoding/bam"
	"github.com/grailbio/hts/sam"
)

// IncompleteTag marks records and consensus records that were written at the
// end of the run without their fragment or group completing.
var IncompleteTag = sam.Tag{'Z', 'I'}

var incompleteAux = mustNewAux(IncompleteTag, 1)

func mustNewAux(tag sam.Tag, val interface{}) sam.Aux {
	aux, err := sam.NewAux(tag, val)
	if err != nil {
		panic(fmt.Sprintf("error creating %s %v tag: %v", tag, val, err))
	}
	return aux
}

// PartitionResults is what a PartitionData operation hands back to the
// caller.
type PartitionResults struct {
	// Reads are ready to be written.
	Reads []*sam.Record
	// Drained buckets are ready for consensus.
	Drained []DrainedBucket
	// Incomplete lists the fragments that never completed. It is only set
	// by ExtractRemainingFragments, and their records are in Reads.
	Incomplete []*Fragment
	// Redirected fragments were classified in another partition, and must
	// be delivered to it.
	Redirected []Redirect
}

// Redirect names the partition that classified a fragment.
type Redirect struct {
	Key      string
	Fragment *Fragment
}

// PrimaryFragments are the outcome of classifying a buffer of fragments
// whose records are not all present yet.
type PrimaryFragments struct {
	// Resolved fragments have their final status.
	Resolved []*Fragment
	// Groups are consensus groups whose buckets are not all drained.
	Groups     []*UmiGroup
	Candidates []*CandidateDuplicates
}

// PartitionData holds the state of the fragments whose base partition is
// this partition, while their records arrive from any worker.
//
// A read-id is held in at most one of fragmentStatus, incompleteFragments and
// umiGroups. forwards maps the read-ids of fragments whose first record lies
// in this partition, but that were classified in another one, to that
// partition's key.
type PartitionData struct {
	Key string

	mu                  sync.Mutex
	fragmentStatus      map[string]*ResolvedFragmentState
	incompleteFragments map[string]*Fragment
	candidateDuplicates map[string]*CandidateDuplicates
	umiGroups           map[string]*UmiGroup
	forwards            map[string]string
	stats               *Statistics

	classifier        *DuplicateClassifier
	groups            *DuplicateGroups
	events            EventSink
	lockWarnThreshold time.Duration
	now               func() time.Time
}

// NewPartitionData creates the state of one partition.
func NewPartitionData(key string, opts *Opts, events EventSink) *PartitionData {
	return &PartitionData{
		Key:                 key,
		fragmentStatus:      map[string]*ResolvedFragmentState{},
		incompleteFragments: map[string]*Fragment{},
		candidateDuplicates: map[string]*CandidateDuplicates{},
		umiGroups:           map[string]*UmiGroup{},
		forwards:            map[string]string{},
		stats:               NewStatistics(),
		classifier:          NewDuplicateClassifier(opts, events, key),
		groups:              NewDuplicateGroups(opts),
		events:              events,
		lockWarnThreshold:   opts.LockWarnThreshold,
		now:                 time.Now,
	}
}

// lock acquires the partition lock and returns the function releasing it.
func (pd *PartitionData) lock(op string) (unlock func()) {
	pd.mu.Lock()
	start := pd.now()
	return func() {
		held := pd.now().Sub(start)
		pd.mu.Unlock()
		if pd.lockWarnThreshold > 0 && held > pd.lockWarnThreshold {
			pd.events.Emit(Event{
				Kind:      SlowLock,
				Partition: pd.Key,
				Message:   fmt.Sprintf("%s held the lock for %v", op, held),
			})
		}
	}
}

// ProcessPrimaryFragments registers classified fragments whose records are
// not all present. Records of these fragments that arrived earlier are
// merged in and returned with their final status.
func (pd *PartitionData) ProcessPrimaryFragments(p PrimaryFragments) PartitionResults {
	defer pd.lock("ProcessPrimaryFragments")()
	var res PartitionResults
	for _, f := range p.Resolved {
		pd.mergeEarlyReads(f)
		pd.processResolved(f, &res)
	}
	for _, g := range p.Groups {
		pd.registerGroup(g, &res)
	}
	for _, c := range p.Candidates {
		pd.registerCandidates(c, &res)
	}
	return res
}

// ProcessIncompleteFragment delivers records of a fragment whose first
// record was seen by another worker, or not yet at all.
func (pd *PartitionData) ProcessIncompleteFragment(f *Fragment) PartitionResults {
	defer pd.lock("ProcessIncompleteFragment")()
	var res PartitionResults
	pd.processIncomplete(f, &res)
	return res
}

// ProcessIncompleteFragments is ProcessIncompleteFragment for many fragments
// under one lock.
func (pd *PartitionData) ProcessIncompleteFragments(fragments []*Fragment) PartitionResults {
	defer pd.lock("ProcessIncompleteFragments")()
	var res PartitionResults
	for _, f := range fragments {
		pd.processIncomplete(f, &res)
	}
	return res
}

// Forward records that the fragment id is classified in the partition key.
// Records of id that arrive later are redirected there. Records that
// arrived earlier are removed and returned, or nil if there are none.
func (pd *PartitionData) Forward(id, key string) *Fragment {
	defer pd.lock("Forward")()
	pd.forwards[id] = key
	early, ok := pd.incompleteFragments[id]
	if !ok {
		return nil
	}
	if early.Status != Unset {
		pd.conflict(id, fmt.Sprintf("forwarded fragment has status %v", early.Status))
	}
	delete(pd.incompleteFragments, id)
	return early
}

func (pd *PartitionData) processIncomplete(f *Fragment, res *PartitionResults) {
	if key, ok := pd.forwards[f.ID]; ok {
		res.Redirected = append(res.Redirected, Redirect{Key: key, Fragment: f})
		return
	}
	if state, ok := pd.fragmentStatus[f.ID]; ok {
		for _, r := range f.Reads {
			state.update(r)
		}
		f.SetStatus(state.Status)
		res.Reads = append(res.Reads, f.TakeReads()...)
		if state.AllReceived() {
			delete(pd.fragmentStatus, f.ID)
		}
		return
	}
	if g, ok := pd.umiGroups[f.ID]; ok {
		pd.addToGroup(g, f, res)
		if g.Complete() {
			pd.unregisterGroup(g)
		}
		return
	}
	if cached, ok := pd.incompleteFragments[f.ID]; ok {
		cached.Merge(f)
		if cached.Status != Candidate || !cached.PrimaryReadsPresent() {
			return
		}
		c, ok := pd.candidateDuplicates[cached.CandidateKey]
		if !ok {
			pd.events.Emit(Event{
				Kind:      MissingCandidatePartner,
				Partition: pd.Key,
				ReadID:    cached.ID,
				Message:   fmt.Sprintf("candidate set %s not found", cached.CandidateKey),
			})
			delete(pd.incompleteFragments, cached.ID)
			cached.Status = None
			cached.CandidateKey = ""
			pd.stats.AddFrequency(1, false)
			pd.processResolved(cached, res)
			return
		}
		if c.AllPrimaryReadsPresent() {
			pd.finaliseCandidates(c, res)
		}
		return
	}
	pd.incompleteFragments[f.ID] = f
}

// mergeEarlyReads moves records of f that arrived before f was classified
// into f.
func (pd *PartitionData) mergeEarlyReads(f *Fragment) {
	early, ok := pd.incompleteFragments[f.ID]
	if !ok || early == f {
		return
	}
	if early.Status != Unset {
		pd.conflict(f.ID, fmt.Sprintf("cached fragment has status %v", early.Status))
	}
	delete(pd.incompleteFragments, f.ID)
	f.Merge(early)
}

// conflict reports a read-id found in more than one cache.
func (pd *PartitionData) conflict(id, msg string) {
	pd.events.Emit(Event{Kind: CacheConflict, Partition: pd.Key, ReadID: id, Message: msg})
}

// clearStale drops older entries of an id that is about to be registered.
func (pd *PartitionData) clearStale(id string) {
	if _, ok := pd.fragmentStatus[id]; ok {
		pd.conflict(id, "read-id already has a resolved status")
		delete(pd.fragmentStatus, id)
	}
	if g, ok := pd.umiGroups[id]; ok {
		pd.conflict(id, "read-id already belongs to group "+g.ID)
		delete(pd.umiGroups, id)
	}
}

func (pd *PartitionData) processResolved(f *Fragment, res *PartitionResults) {
	pd.clearStale(f.ID)
	f.SetStatus(f.Status)
	res.Reads = append(res.Reads, f.TakeReads()...)
	if !f.AllReadsPresent() {
		pd.fragmentStatus[f.ID] = newResolvedFragmentState(f)
	}
}

func (pd *PartitionData) addToGroup(g *UmiGroup, f *Fragment, res *PartitionResults) {
	for _, r := range f.TakeReads() {
		setDuplicateFlag(r, true)
		g.AddRead(r)
		res.Reads = append(res.Reads, r)
	}
	res.Drained = append(res.Drained, g.DrainReady()...)
}

func (pd *PartitionData) registerGroup(g *UmiGroup, res *PartitionResults) {
	for _, id := range g.FragmentIDs {
		if early, ok := pd.incompleteFragments[id]; ok {
			delete(pd.incompleteFragments, id)
			pd.addToGroup(g, early, res)
		}
	}
	res.Drained = append(res.Drained, g.DrainReady()...)
	if g.Complete() {
		return
	}
	for _, id := range g.FragmentIDs {
		pd.clearStale(id)
		pd.umiGroups[id] = g
	}
}

func (pd *PartitionData) unregisterGroup(g *UmiGroup) {
	for _, id := range g.FragmentIDs {
		if pd.umiGroups[id] == g {
			delete(pd.umiGroups, id)
		}
	}
}

func (pd *PartitionData) registerCandidates(c *CandidateDuplicates, res *PartitionResults) {
	for _, f := range c.Fragments {
		pd.mergeEarlyReads(f)
		pd.clearStale(f.ID)
		pd.incompleteFragments[f.ID] = f
	}
	if _, ok := pd.candidateDuplicates[c.Key]; ok {
		pd.conflict(c.Key, "candidate set registered twice")
	}
	pd.candidateDuplicates[c.Key] = c
	if c.AllPrimaryReadsPresent() {
		pd.finaliseCandidates(c, res)
	}
}

func (pd *PartitionData) finaliseCandidates(c *CandidateDuplicates, res *PartitionResults) {
	delete(pd.candidateDuplicates, c.Key)
	for _, f := range c.Fragments {
		delete(pd.incompleteFragments, f.ID)
	}
	grouping := pd.groups.Resolve(c.Finalise(pd.classifier), pd.stats)
	for _, f := range grouping.Resolved {
		pd.processResolved(f, res)
	}
	for _, f := range grouping.Members {
		f.SetStatus(Duplicate)
		res.Reads = append(res.Reads, f.TakeReads()...)
	}
	for _, g := range grouping.Groups {
		pd.registerGroup(g, res)
	}
}

// ExtractRemainingFragments empties the partition at the end of a run.
// Fragments that never completed are returned with status None and their
// records tagged as incomplete. Groups hand back whatever their buckets
// hold.
func (pd *PartitionData) ExtractRemainingFragments() PartitionResults {
	defer pd.lock("ExtractRemainingFragments")()
	var res PartitionResults

	var keys []string
	for key := range pd.candidateDuplicates {
		keys = append(keys, key)
	}
	for _, key := range sortStrings(keys) {
		c := pd.candidateDuplicates[key]
		pd.events.Emit(Event{
			Kind:      MissingCandidatePartner,
			Partition: pd.Key,
			ReadID:    key,
			Message:   fmt.Sprintf("candidate set of %d fragments never completed", len(c.Fragments)),
		})
		for _, f := range c.Fragments {
			f.CandidateKey = ""
		}
	}
	keys = keys[:0]
	for id := range pd.incompleteFragments {
		keys = append(keys, id)
	}
	for _, id := range sortStrings(keys) {
		f := pd.incompleteFragments[id]
		f.Status = None
		pd.stats.AddFrequency(1, false)
		pd.stats.IncompleteReads += int64(len(f.Reads))
		for _, r := range f.Reads {
			setDuplicateFlag(r, false)
			gbam.SetAux(r, incompleteAux)
		}
		res.Reads = append(res.Reads, f.TakeReads()...)
		res.Incomplete = append(res.Incomplete, f)
	}

	keys = keys[:0]
	for id := range pd.umiGroups {
		keys = append(keys, id)
	}
	seen := map[*UmiGroup]bool{}
	for _, id := range sortStrings(keys) {
		g := pd.umiGroups[id]
		if seen[g] {
			continue
		}
		seen[g] = true
		res.Drained = append(res.Drained, g.DrainPartial()...)
	}

	pd.fragmentStatus = map[string]*ResolvedFragmentState{}
	pd.incompleteFragments = map[string]*Fragment{}
	pd.candidateDuplicates = map[string]*CandidateDuplicates{}
	pd.umiGroups = map[string]*UmiGroup{}
	pd.forwards = map[string]string{}
	return res
}

// CacheSizes returns the number of entries in each cache: resolved states,
// incomplete fragments, candidate sets and group members.
func (pd *PartitionData) CacheSizes() (resolved, incomplete, candidates, groupMembers int) {
	pd.mu.Lock()
	defer pd.mu.Unlock()
	return len(pd.fragmentStatus), len(pd.incompleteFragments), len(pd.candidateDuplicates), len(pd.umiGroups)
}

// Statistics returns the partition's statistics. It must not be called
// while the partition is in use.
func (pd *PartitionData) Statistics() *Statistics {
	return pd.stats
}

func sortStrings(keys []string) []string {
	sort.Strings(keys)
	return keys
}
