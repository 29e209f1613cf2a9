package markduplicates

import (
	"sort"
	"strconv"
	"sync"

	gbam "github.com/grailbio/dupcons/encoding/bam"
	"github.com/grailbio/hts/sam"
)

// unmappedPartition is the key of the partition of records with no position.
const unmappedPartition = "unmapped"

// PartitionKey returns the key of the partition holding position pos of the
// named reference.
func PartitionKey(refName string, pos, partitionSize int) string {
	return refName + coordinateDelim + strconv.Itoa(pos/partitionSize)
}

// PartitionDataStore creates and finds the PartitionData of every partition.
type PartitionDataStore struct {
	opts      *Opts
	events    EventSink
	refByName map[string]*sam.Reference

	mu         sync.Mutex
	partitions map[string]*PartitionData
}

// NewPartitionDataStore creates an empty store for the references of header.
func NewPartitionDataStore(header *sam.Header, opts *Opts, events EventSink) *PartitionDataStore {
	s := &PartitionDataStore{
		opts:       opts,
		events:     events,
		refByName:  map[string]*sam.Reference{},
		partitions: map[string]*PartitionData{},
	}
	for _, ref := range header.Refs() {
		s.refByName[ref.Name()] = ref
	}
	return s
}

// Get returns the PartitionData of key, creating it if needed.
func (s *PartitionDataStore) Get(key string) *PartitionData {
	s.mu.Lock()
	defer s.mu.Unlock()
	pd, ok := s.partitions[key]
	if !ok {
		pd = NewPartitionData(key, s.opts, s.events)
		s.partitions[key] = pd
	}
	return pd
}

// All returns every partition created so far, ordered by key.
func (s *PartitionDataStore) All() []*PartitionData {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]*PartitionData, 0, len(s.partitions))
	for _, pd := range s.partitions {
		all = append(all, pd)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Key < all[j].Key })
	return all
}

// BasePartitionKey returns the key of the partition that owns the fragment of
// r: the partition of the lower of the template's primary alignments.
func (s *PartitionDataStore) BasePartitionKey(r *sam.Record) string {
	ref, pos, ok := s.basePosition(r)
	if !ok {
		return unmappedPartition
	}
	return PartitionKey(ref.Name(), pos, s.opts.PartitionSize)
}

func (s *PartitionDataStore) basePosition(r *sam.Record) (*sam.Reference, int, bool) {
	ref, pos := r.Ref, r.Pos
	if gbam.IsSupplementary(r) {
		alns, err := gbam.ParseSupplementaryAlignments(r)
		if err == nil && len(alns) > 0 {
			if primaryRef, ok := s.refByName[alns[0].RefName]; ok {
				ref, pos = primaryRef, alns[0].Pos
			}
		}
	}
	if ref == nil {
		return nil, 0, false
	}
	if !gbam.HasNoMappedMate(r) && r.MateRef != nil {
		own := gbam.NewCoord(ref, pos)
		mate := gbam.NewCoord(r.MateRef, r.MatePos)
		if mate.LT(own) {
			ref, pos = r.MateRef, r.MatePos
		}
	}
	return ref, pos, true
}
