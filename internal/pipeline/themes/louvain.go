package themes

import (
	"sort"

	"github.com/google/uuid"
)

// graph is a weighted undirected multigraph over node IDs, used as the
// Louvain input. There is no modularity-community detection library
// anywhere in the dependency pack, so this is hand-rolled after the
// Louvain local moving phase only (communities are not aggregated into
// super-nodes), documented in DESIGN.md as a stdlib-only component with no suitable
// library found.
type graph struct {
	nodes   []uuid.UUID
	index   map[uuid.UUID]int
	weights map[[2]int]float64 // undirected edge weight, keyed by (min,max) index pair
	degree  []float64
	total   float64
}

func newGraph() *graph {
	return &graph{
		index:   map[uuid.UUID]int{},
		weights: map[[2]int]float64{},
	}
}

func (g *graph) addNode(id uuid.UUID) int {
	if i, ok := g.index[id]; ok {
		return i
	}
	i := len(g.nodes)
	g.nodes = append(g.nodes, id)
	g.index[id] = i
	g.degree = append(g.degree, 0)
	return i
}

func (g *graph) addEdge(a, b uuid.UUID, weight float64) {
	if a == b || weight <= 0 {
		return
	}
	ia := g.addNode(a)
	ib := g.addNode(b)
	key := edgeKey(ia, ib)
	g.weights[key] += weight
	g.degree[ia] += weight
	g.degree[ib] += weight
	g.total += weight
}

func edgeKey(a, b int) [2]int {
	if a > b {
		a, b = b, a
	}
	return [2]int{a, b}
}

// community is one detected partition: its member node IDs and the
// modularity of the partition it came from.
type community struct {
	members    []uuid.UUID
	modularity float64
}

// louvain repeats localMove passes over the original node graph, up to 20
// passes or until a pass moves no node. Communities are not aggregated into
// super-nodes between passes. Deterministic: nodes are always visited in a
// stable order and ties are broken by node index, so the same graph always
// yields the same partition.
func louvain(g *graph) []community {
	if len(g.nodes) == 0 {
		return nil
	}
	n := len(g.nodes)
	assignment := make([]int, n)
	for i := range assignment {
		assignment[i] = i
	}

	improved := true
	for pass := 0; pass < 20 && improved; pass++ {
		improved = localMove(g, assignment)
	}

	groups := map[int][]uuid.UUID{}
	for i, comm := range assignment {
		groups[comm] = append(groups[comm], g.nodes[i])
	}

	q := modularity(g, assignment)
	keys := make([]int, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	out := make([]community, 0, len(keys))
	for _, k := range keys {
		members := groups[k]
		sort.Slice(members, func(i, j int) bool { return members[i].String() < members[j].String() })
		out = append(out, community{members: members, modularity: q})
	}
	return out
}

// localMove greedily reassigns each node to the neighboring community with
// the heaviest edge weight to it, iterating until a full sweep makes no
// change. This is a simplified stand-in for exact modularity-gain
// comparison (it skips the degree-penalty term), traded for determinism
// and speed at the chunk/concept scale this runs at.
func localMove(g *graph, assignment []int) bool {
	if g.total <= 0 {
		return false
	}
	anyMoved := false
	for sweep := 0; sweep < 50; sweep++ {
		movedThisSweep := false
		for i := range g.nodes {
			neighborWeight := map[int]float64{}
			for key, w := range g.weights {
				if key[0] == i {
					neighborWeight[assignment[key[1]]] += w
				} else if key[1] == i {
					neighborWeight[assignment[key[0]]] += w
				}
			}
			if len(neighborWeight) == 0 {
				continue
			}
			current := assignment[i]
			bestComm := current
			bestGain := 0.0
			candidates := make([]int, 0, len(neighborWeight))
			for c := range neighborWeight {
				candidates = append(candidates, c)
			}
			sort.Ints(candidates)
			for _, c := range candidates {
				if c == current {
					continue
				}
				gain := neighborWeight[c] - neighborWeight[current]
				if gain > bestGain {
					bestGain = gain
					bestComm = c
				}
			}
			if bestComm != current && bestGain > 1e-9 {
				assignment[i] = bestComm
				movedThisSweep = true
				anyMoved = true
			}
		}
		if !movedThisSweep {
			break
		}
	}
	return anyMoved
}

// modularity computes Newman's Q for the given partition: sum over
// communities of (internal edge weight / total weight) minus (expected
// internal weight under random attachment, from degree products).
func modularity(g *graph, assignment []int) float64 {
	if g.total <= 0 {
		return 0
	}
	twoM := 2 * g.total
	sumInternal := 0.0
	for key, w := range g.weights {
		if assignment[key[0]] == assignment[key[1]] {
			sumInternal += 2 * w
		}
	}
	degreeSumByComm := map[int]float64{}
	for i, comm := range assignment {
		degreeSumByComm[comm] += g.degree[i]
	}
	expected := 0.0
	for _, d := range degreeSumByComm {
		expected += d * d
	}
	expected /= twoM * twoM
	return sumInternal/twoM - expected
}
