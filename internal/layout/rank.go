package layout

// longestPathRanks assigns each connected node one plus the largest rank of its
// predecessors, sources getting rank 0 (Kahn's topological traversal). Nodes that
// are not connected, or that the traversal never reaches, get -1 and are left to
// the orphan grid.
func longestPathRanks(n int, dag []workEdge, connected []bool) []int {
	ranks := make([]int, n)
	inDeg := make([]int, n)
	children := make([][]int, n)
	for _, e := range dag {
		children[e.from] = append(children[e.from], e.to)
		inDeg[e.to]++
	}

	queue := make([]int, 0, n)
	for v := 0; v < n; v++ {
		ranks[v] = -1
		if connected[v] && inDeg[v] == 0 {
			ranks[v] = 0
			queue = append(queue, v)
		}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, child := range children[cur] {
			if r := ranks[cur] + 1; r > ranks[child] {
				ranks[child] = r
			}
			inDeg[child]--
			if inDeg[child] == 0 {
				queue = append(queue, child)
			}
		}
	}

	// A node left with in-degree > 0 sits on a cycle the pre-pass failed to break.
	for v := 0; v < n; v++ {
		if inDeg[v] > 0 {
			ranks[v] = -1
		}
	}
	return ranks
}

// buildLayers groups node indices by rank, in index order within each rank.
func buildLayers(ranks []int) [][]int {
	maxRank := -1
	for _, r := range ranks {
		if r > maxRank {
			maxRank = r
		}
	}
	layers := make([][]int, maxRank+1)
	for v, r := range ranks {
		if r >= 0 {
			layers[r] = append(layers[r], v)
		}
	}
	// Ranks are dense unless longestPathRanks cleared nodes on an unbroken cycle.
	out := layers[:0]
	for _, l := range layers {
		if len(l) > 0 {
			out = append(out, l)
		}
	}
	return out
}
