package segment

import (
	"math"
	"sort"
)

const (
	// minPAE floors PAE values before they are turned into edge weights.
	minPAE = 0.1
	// gainEpsilon keeps float noise from producing endless zero-gain moves.
	gainEpsilon = 1e-12
	// maxPasses bounds the node sweeps of one Louvain level.
	maxPasses = 1000
)

type edge struct {
	to int
	w  float64
}

// graph is an undirected weighted graph. Self loops are kept apart from
// the adjacency lists and count twice towards a node's degree.
type graph struct {
	adj  [][]edge
	self []float64
	m    float64
}

func newGraph(n int) *graph {
	return &graph{adj: make([][]edge, n), self: make([]float64, n)}
}

func (g *graph) size() int { return len(g.adj) }

func (g *graph) addEdge(u, v int, w float64) {
	g.m += w
	if u == v {
		g.self[u] += w
		return
	}
	g.adj[u] = append(g.adj[u], edge{to: v, w: w})
	g.adj[v] = append(g.adj[v], edge{to: u, w: w})
}

func (g *graph) degree(u int) float64 {
	d := 2 * g.self[u]
	for _, e := range g.adj[u] {
		d += e.w
	}
	return d
}

// pae2graph links residues whose symmetric mean PAE is below cutoff. Lower
// PAE gives heavier edges.
func pae2graph(m Matrix, cutoff, power float64) *graph {
	n := m.Size()
	g := newGraph(n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			pae := SymmetricMean(m, i, j)
			if pae >= cutoff {
				continue
			}
			g.addEdge(i, j, 1/math.Pow(math.Max(pae, minPAE), power))
		}
	}
	return g
}

// louvain returns a community label for every node of g. Nodes are swept in
// index order and candidate communities in ascending label order, so equal
// inputs always give equal partitions.
func louvain(g *graph, resolution float64) []int {
	labels := make([]int, g.size())
	for i := range labels {
		labels[i] = i
	}
	if g.m == 0 {
		return labels
	}
	for {
		comm, k, moved := oneLevel(g, resolution)
		if !moved {
			return labels
		}
		for i, l := range labels {
			labels[i] = comm[l]
		}
		g = aggregate(g, comm, k)
	}
}

// oneLevel moves nodes between neighbouring communities while modularity
// improves. It returns the communities relabelled 0..k-1 by first node.
func oneLevel(g *graph, resolution float64) ([]int, int, bool) {
	n := g.size()
	comm := make([]int, n)
	deg := make([]float64, n)
	stot := make([]float64, n)
	for u := 0; u < n; u++ {
		comm[u] = u
		deg[u] = g.degree(u)
		stot[u] = deg[u]
	}

	m := g.m
	w2c := make([]float64, n)
	seen := make([]bool, n)
	var touched []int
	moved := false
	for pass := 0; pass < maxPasses; pass++ {
		moves := 0
		for u := 0; u < n; u++ {
			touched = touched[:0]
			for _, e := range g.adj[u] {
				c := comm[e.to]
				if !seen[c] {
					seen[c] = true
					touched = append(touched, c)
				}
				w2c[c] += e.w
			}
			sort.Ints(touched)

			own := comm[u]
			d := deg[u]
			stot[own] -= d
			removeCost := -w2c[own]/m + resolution*stot[own]*d/(2*m*m)
			best, bestGain := own, 0.0
			for _, c := range touched {
				gain := removeCost + w2c[c]/m - resolution*stot[c]*d/(2*m*m)
				if gain > bestGain+gainEpsilon {
					best, bestGain = c, gain
				}
			}
			stot[best] += d
			if best != own {
				comm[u] = best
				moves++
			}

			for _, c := range touched {
				w2c[c] = 0
				seen[c] = false
			}
		}
		if moves == 0 {
			break
		}
		moved = true
	}

	relabel := map[int]int{}
	for u, c := range comm {
		l, ok := relabel[c]
		if !ok {
			l = len(relabel)
			relabel[c] = l
		}
		comm[u] = l
	}
	return comm, len(relabel), moved
}

// aggregate collapses each community of g into a single node.
func aggregate(g *graph, comm []int, k int) *graph {
	acc := make([]map[int]float64, k)
	for i := range acc {
		acc[i] = map[int]float64{}
	}
	out := newGraph(k)
	for u := 0; u < g.size(); u++ {
		cu := comm[u]
		out.self[cu] += g.self[u]
		for _, e := range g.adj[u] {
			if e.to < u {
				continue
			}
			cv := comm[e.to]
			if cu == cv {
				out.self[cu] += e.w
				continue
			}
			a, b := min(cu, cv), max(cu, cv)
			acc[a][b] += e.w
		}
	}
	out.m = g.m
	for a := range acc {
		targets := make([]int, 0, len(acc[a]))
		for b := range acc[a] {
			targets = append(targets, b)
		}
		sort.Ints(targets)
		for _, b := range targets {
			w := acc[a][b]
			out.adj[a] = append(out.adj[a], edge{to: b, w: w})
			out.adj[b] = append(out.adj[b], edge{to: a, w: w})
		}
	}
	return out
}

// Modularity scores a partition on the soft PAE graph. Unassigned indices
// are treated as singletons.
func Modularity(m Matrix, domains []Domain, p Params) float64 {
	if p.Power == 0 {
		p.Power = 1
	}
	labels := make([]int, m.Size())
	for i := range labels {
		labels[i] = -1 - i
	}
	for d, domain := range domains {
		for _, i := range domain {
			labels[i] = d
		}
	}
	return modularity(pae2graph(m, p.Cutoff, p.Power), labels, p.Resolution)
}

func modularity(g *graph, labels []int, resolution float64) float64 {
	if g.m == 0 {
		return 0
	}
	in := map[int]float64{}
	tot := map[int]float64{}
	for u := 0; u < g.size(); u++ {
		c := labels[u]
		tot[c] += g.degree(u)
		in[c] += 2 * g.self[u]
		for _, e := range g.adj[u] {
			if labels[e.to] == c {
				in[c] += e.w
			}
		}
	}
	q := 0.0
	for c, t := range tot {
		q += in[c]/(2*g.m) - resolution*(t/(2*g.m))*(t/(2*g.m))
	}
	return q
}
