package utils

// UnionFind assigns record ids to disjoint sets with iterative path
// compression. The cluster engine uses it as the component assignment for
// weakly-connected components; roots are the lexicographically smallest id
// in each set, which keeps component identity deterministic across runs.
type UnionFind struct {
	parent map[string]string
}

// NewUnionFind creates an empty structure. Elements are added lazily on
// first Find or Union.
func NewUnionFind() *UnionFind {
	return &UnionFind{parent: make(map[string]string)}
}

// Find returns the root of the set containing x, compressing the path.
func (uf *UnionFind) Find(x string) string {
	if _, ok := uf.parent[x]; !ok {
		uf.parent[x] = x
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

// Union merges the sets containing a and b. The lexicographically smaller
// root wins so set identity is stable regardless of union order.
func (uf *UnionFind) Union(a, b string) {
	rootA, rootB := uf.Find(a), uf.Find(b)
	if rootA == rootB {
		return
	}
	if rootA < rootB {
		uf.parent[rootB] = rootA
	} else {
		uf.parent[rootA] = rootB
	}
}

// Sets groups every known element by its root.
func (uf *UnionFind) Sets() map[string][]string {
	sets := make(map[string][]string)
	for x := range uf.parent {
		root := uf.Find(x)
		sets[root] = append(sets[root], x)
	}
	return sets
}
