package cluster

import (
	"sort"

	"github.com/tributary-data/coalesce/pkg/types"
)

// part is one fragment of a split component.
type part struct {
	members []string
	edges   []*types.SimilarityEdge
}

// cappedUnionFind is a union-find that refuses unions which would push a set
// past the cap. It backs the split policy: strong edges merge first, weak
// edges that would breach the ceiling are discarded.
type cappedUnionFind struct {
	parent map[string]string
	size   map[string]int
	cap    int
}

func newCappedUnionFind(cap int) *cappedUnionFind {
	return &cappedUnionFind{parent: make(map[string]string), size: make(map[string]int), cap: cap}
}

func (uf *cappedUnionFind) find(x string) string {
	if _, ok := uf.parent[x]; !ok {
		uf.parent[x] = x
		uf.size[x] = 1
		return x
	}
	root := x
	for uf.parent[root] != root {
		root = uf.parent[root]
	}
	for uf.parent[x] != root {
		next := uf.parent[x]
		uf.parent[x] = root
		x = next
	}
	return root
}

// union merges the sets if the result stays within the cap. Reports whether
// the endpoints ended up in the same set.
func (uf *cappedUnionFind) union(a, b string) bool {
	rootA, rootB := uf.find(a), uf.find(b)
	if rootA == rootB {
		return true
	}
	if uf.size[rootA]+uf.size[rootB] > uf.cap {
		return false
	}
	if rootA > rootB {
		rootA, rootB = rootB, rootA
	}
	uf.parent[rootB] = rootA
	uf.size[rootA] += uf.size[rootB]
	return true
}

// splitComponent breaks an oversized component into parts no larger than
// maxSize. Edges are replayed strongest first; an edge that would merge two
// fragments past the ceiling is dropped. Deterministic given the edge set.
func splitComponent(edges []*types.SimilarityEdge, maxSize int) []part {
	ordered := append([]*types.SimilarityEdge(nil), edges...)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Weight != ordered[j].Weight {
			return ordered[i].Weight > ordered[j].Weight
		}
		return ordered[i].Key < ordered[j].Key
	})

	uf := newCappedUnionFind(maxSize)
	kept := make(map[string][]*types.SimilarityEdge)
	for _, edge := range ordered {
		if uf.union(edge.SourceID, edge.TargetID) {
			root := uf.find(edge.SourceID)
			kept[root] = append(kept[root], edge)
		}
	}

	membersByRoot := make(map[string][]string)
	for member := range uf.parent {
		root := uf.find(member)
		membersByRoot[root] = append(membersByRoot[root], member)
	}

	// Kept edges were grouped under the root at insertion time; roots can
	// move as later unions happen, so regroup under the final roots.
	edgesByRoot := make(map[string][]*types.SimilarityEdge)
	for _, group := range kept {
		for _, edge := range group {
			root := uf.find(edge.SourceID)
			edgesByRoot[root] = append(edgesByRoot[root], edge)
		}
	}

	roots := make([]string, 0, len(membersByRoot))
	for root := range membersByRoot {
		roots = append(roots, root)
	}
	sort.Strings(roots)

	parts := make([]part, 0, len(roots))
	for _, root := range roots {
		members := membersByRoot[root]
		sort.Strings(members)
		parts = append(parts, part{members: members, edges: edgesByRoot[root]})
	}
	return parts
}
