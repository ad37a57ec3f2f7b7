package layout

import "sort"

// orderLayers reorders nodes within each layer to reduce edge crossings. Each pass
// is a downward sweep (barycenter of predecessors) followed by an upward sweep
// (barycenter of successors). The ordering with the fewest crossings seen is kept.
func orderLayers(layers [][]int, dag []workEdge, passes int) [][]int {
	if len(layers) < 2 {
		return layers
	}
	layerOf := make(map[int]int)
	for li, l := range layers {
		for _, v := range l {
			layerOf[v] = li
		}
	}
	preds := make(map[int][]int)
	succs := make(map[int][]int)
	for _, e := range dag {
		if _, ok := layerOf[e.from]; !ok {
			continue
		}
		if _, ok := layerOf[e.to]; !ok {
			continue
		}
		preds[e.to] = append(preds[e.to], e.from)
		succs[e.from] = append(succs[e.from], e.to)
	}

	pos := make(map[int]int)
	index := func() {
		for _, l := range layers {
			for i, v := range l {
				pos[v] = i
			}
		}
	}
	index()

	best := cloneLayers(layers)
	bestCrossings := countCrossings(layers, layerOf, dag)
	for pass := 0; pass < passes && bestCrossings > 0; pass++ {
		for li := 1; li < len(layers); li++ {
			sortByBarycenter(layers[li], preds, pos)
			for i, v := range layers[li] {
				pos[v] = i
			}
		}
		for li := len(layers) - 2; li >= 0; li-- {
			sortByBarycenter(layers[li], succs, pos)
			for i, v := range layers[li] {
				pos[v] = i
			}
		}
		if c := countCrossings(layers, layerOf, dag); c < bestCrossings {
			best, bestCrossings = cloneLayers(layers), c
		}
	}
	return best
}

// sortByBarycenter orders a layer by the mean position of each node's neighbours.
// Nodes without neighbours keep their current position as barycenter; ties keep
// the current relative order.
func sortByBarycenter(layer []int, neighbours map[int][]int, pos map[int]int) {
	bary := make(map[int]float64, len(layer))
	for _, v := range layer {
		ns := neighbours[v]
		if len(ns) == 0 {
			bary[v] = float64(pos[v])
			continue
		}
		sum := 0
		for _, u := range ns {
			sum += pos[u]
		}
		bary[v] = float64(sum) / float64(len(ns))
	}
	sort.SliceStable(layer, func(a, b int) bool {
		va, vb := layer[a], layer[b]
		if bary[va] != bary[vb] {
			return bary[va] < bary[vb]
		}
		return pos[va] < pos[vb]
	})
}

// countCrossings counts crossings between edges joining adjacent layers.
func countCrossings(layers [][]int, layerOf map[int]int, dag []workEdge) int {
	pos := make(map[int]int)
	for _, l := range layers {
		for i, v := range l {
			pos[v] = i
		}
	}
	between := make([][][2]int, len(layers))
	for _, e := range dag {
		lf, ok1 := layerOf[e.from]
		lt, ok2 := layerOf[e.to]
		if !ok1 || !ok2 || lt != lf+1 {
			continue
		}
		between[lf] = append(between[lf], [2]int{pos[e.from], pos[e.to]})
	}
	total := 0
	for _, es := range between {
		for i := 0; i < len(es); i++ {
			for j := i + 1; j < len(es); j++ {
				if (es[i][0]-es[j][0])*(es[i][1]-es[j][1]) < 0 {
					total++
				}
			}
		}
	}
	return total
}

func cloneLayers(layers [][]int) [][]int {
	out := make([][]int, len(layers))
	for i, l := range layers {
		out[i] = append([]int(nil), l...)
	}
	return out
}
