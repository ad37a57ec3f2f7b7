package layout

import "github.com/PrasadTelasula/kaptivan-sub000/internal/models"

// assignCoordinates places the ordered layers. Along the primary axis each layer
// is as thick as its largest footprint; along the secondary axis nodes are packed
// with NodeSeparation between footprints and every layer is centered on the widest
// one. Positions are top-left corners. It returns the extent of the drawing.
func assignCoordinates(layers [][]int, sizes []Size, opts Options, pos []models.Position, placed []bool) (float64, float64) {
	if len(layers) == 0 {
		return 0, 0
	}
	lr := opts.Direction == LeftToRight
	primary := func(s Size) float64 {
		if lr {
			return s.Width
		}
		return s.Height
	}
	secondary := func(s Size) float64 {
		if lr {
			return s.Height
		}
		return s.Width
	}

	thickness := make([]float64, len(layers))
	spans := make([]float64, len(layers))
	maxSpan := 0.0
	for li, l := range layers {
		for i, v := range l {
			if t := primary(sizes[v]); t > thickness[li] {
				thickness[li] = t
			}
			spans[li] += secondary(sizes[v])
			if i > 0 {
				spans[li] += opts.NodeSeparation
			}
		}
		if spans[li] > maxSpan {
			maxSpan = spans[li]
		}
	}

	offset := 0.0
	for li, l := range layers {
		cursor := (maxSpan - spans[li]) / 2
		for _, v := range l {
			// Center each node within the thickness of its layer.
			p := offset + (thickness[li]-primary(sizes[v]))/2
			if lr {
				pos[v] = models.Position{X: p, Y: cursor}
			} else {
				pos[v] = models.Position{X: cursor, Y: p}
			}
			placed[v] = true
			cursor += secondary(sizes[v]) + opts.NodeSeparation
		}
		offset += thickness[li]
		if li < len(layers)-1 {
			offset += opts.RankSeparation
		}
	}

	if lr {
		return offset, maxSpan
	}
	return maxSpan, offset
}
