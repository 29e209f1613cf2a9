package markduplicates

import (
	"github.com/biogo/store/llrb"
)

// positionBucket holds the fragments sharing one lower 5' end.
type positionBucket struct {
	refID     int
	pos       int
	reverse   bool
	fragments []*Fragment
}

// Compare implements llrb.Comparable.
func (b *positionBucket) Compare(c llrb.Comparable) int {
	o := c.(*positionBucket)
	switch {
	case b.refID != o.refID:
		return b.refID - o.refID
	case b.pos != o.pos:
		return b.pos - o.pos
	case b.reverse == o.reverse:
		return 0
	case !b.reverse:
		return -1
	}
	return 1
}

// positionBuffer holds fragments until no more duplicates of them can show
// up. Fragments are bucketed by the 5' end of their lower read, and found
// by read-id so that their mates can join them.
type positionBuffer struct {
	size int
	tree llrb.Tree
	byID map[string]*Fragment
}

func newPositionBuffer(size int) *positionBuffer {
	return &positionBuffer{size: size, byID: map[string]*Fragment{}}
}

func (b *positionBuffer) add(f *Fragment) {
	lower := f.Coordinates.Lower
	key := &positionBucket{refID: lower.RefID, pos: lower.Pos, reverse: lower.Reverse}
	if existing := b.tree.Get(key); existing != nil {
		key = existing.(*positionBucket)
	} else {
		b.tree.Insert(key)
	}
	key.fragments = append(key.fragments, f)
	b.byID[f.ID] = f
}

// find returns the buffered fragment with the given read-id, or nil.
func (b *positionBuffer) find(id string) *Fragment {
	return b.byID[id]
}

func (b *positionBuffer) len() int {
	return len(b.byID)
}

// popBefore removes the buckets whose 5' position is more than the buffer
// size before pos on refID, or on an earlier reference.
func (b *positionBuffer) popBefore(refID, pos int) [][]*Fragment {
	var out [][]*Fragment
	for b.tree.Len() > 0 {
		min := b.tree.Min().(*positionBucket)
		if min.refID == refID && min.pos >= pos-b.size {
			break
		}
		if min.refID > refID {
			break
		}
		b.tree.DeleteMin()
		out = append(out, b.forget(min))
	}
	return out
}

// popAll removes every bucket in position order.
func (b *positionBuffer) popAll() [][]*Fragment {
	var out [][]*Fragment
	for b.tree.Len() > 0 {
		min := b.tree.Min().(*positionBucket)
		b.tree.DeleteMin()
		out = append(out, b.forget(min))
	}
	return out
}

func (b *positionBuffer) forget(bucket *positionBucket) []*Fragment {
	for _, f := range bucket.fragments {
		delete(b.byID, f.ID)
	}
	return bucket.fragments
}
