package markduplicates

// unionFind is a disjoint set over the indexes [0, n).
type unionFind struct {
	parent []int
	size   []int
}

func newUnionFind(n int) *unionFind {
	u := &unionFind{
		parent: make([]int, n),
		size:   make([]int, n),
	}
	for i := range u.parent {
		u.parent[i] = i
		u.size[i] = 1
	}
	return u
}

func (u *unionFind) find(i int) int {
	root := i
	for u.parent[root] != root {
		root = u.parent[root]
	}
	for u.parent[i] != root {
		next := u.parent[i]
		u.parent[i] = root
		i = next
	}
	return root
}

// union merges the sets of i and j, folding the smaller set into the larger.
func (u *unionFind) union(i, j int) {
	ri, rj := u.find(i), u.find(j)
	if ri == rj {
		return
	}
	if u.size[ri] < u.size[rj] {
		ri, rj = rj, ri
	}
	u.parent[rj] = ri
	u.size[ri] += u.size[rj]
}

// components returns the members of each set in increasing order. Sets are
// ordered by their smallest member, which is the set's anchor.
func (u *unionFind) components() [][]int {
	byRoot := map[int]int{}
	var comps [][]int
	for i := range u.parent {
		root := u.find(i)
		ci, ok := byRoot[root]
		if !ok {
			ci = len(comps)
			byRoot[root] = ci
			comps = append(comps, nil)
		}
		comps[ci] = append(comps[ci], i)
	}
	return comps
}
