package layout

// breakCycles returns, per edge, whether the ranking step must treat it as reversed.
// It uses the greedy heuristic of Eades, Lin and Smyth: peel sinks to the back and
// sources to the front of a vertex sequence; when neither exists, move the vertex
// with the largest out-degree minus in-degree to the front. Edges pointing backwards
// in the final sequence form the feedback set. The input edges are not modified.
func breakCycles(n int, edges []workEdge) []bool {
	out := make([][]int, n)
	in := make([][]int, n)
	outDeg := make([]int, n)
	inDeg := make([]int, n)
	for i, e := range edges {
		out[e.from] = append(out[e.from], i)
		in[e.to] = append(in[e.to], i)
		outDeg[e.from]++
		inDeg[e.to]++
	}

	removed := make([]bool, n)
	remaining := n
	remove := func(v int) {
		removed[v] = true
		remaining--
		for _, ei := range out[v] {
			if w := edges[ei].to; !removed[w] {
				inDeg[w]--
			}
		}
		for _, ei := range in[v] {
			if u := edges[ei].from; !removed[u] {
				outDeg[u]--
			}
		}
	}

	var front, back []int
	for remaining > 0 {
		for changed := true; changed; {
			changed = false
			for v := 0; v < n; v++ {
				if !removed[v] && outDeg[v] == 0 {
					remove(v)
					back = append(back, v)
					changed = true
				}
			}
			for v := 0; v < n; v++ {
				if !removed[v] && inDeg[v] == 0 {
					remove(v)
					front = append(front, v)
					changed = true
				}
			}
		}
		if remaining == 0 {
			break
		}
		best, bestDelta := -1, 0
		for v := 0; v < n; v++ {
			if removed[v] {
				continue
			}
			if d := outDeg[v] - inDeg[v]; best < 0 || d > bestDelta {
				best, bestDelta = v, d
			}
		}
		remove(best)
		front = append(front, best)
	}

	order := make([]int, n)
	pos := 0
	for _, v := range front {
		order[v] = pos
		pos++
	}
	for i := len(back) - 1; i >= 0; i-- {
		order[back[i]] = pos
		pos++
	}

	reversed := make([]bool, len(edges))
	for i, e := range edges {
		reversed[i] = order[e.from] > order[e.to]
	}
	return reversed
}
